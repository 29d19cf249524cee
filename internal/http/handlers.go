package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/flight-deals-service/internal/client"
	"github.com/kjstillabower/flight-deals-service/internal/health"
	"github.com/kjstillabower/flight-deals-service/internal/models"
	"github.com/kjstillabower/flight-deals-service/internal/observability"
	"github.com/kjstillabower/flight-deals-service/internal/traffic"
	"github.com/kjstillabower/flight-deals-service/internal/validation"
)

const serviceName = "flight-deals-service"

// DealsService is the query surface the handlers need from the repository.
type DealsService interface {
	FetchDeals(ctx context.Context, q models.Query) ([]models.Flight, error)
}

// HandlerConfig holds request defaults and the optional cache probe for /health.
type HandlerConfig struct {
	DefaultOrigin   string
	DefaultCurrency string
	Version         string
	// CachePing, when set, checks remote cache reachability. Nil for the in-memory backend.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deals            DealsService
	tracker          *traffic.Tracker
	monitor          *health.Monitor
	cfg              HandlerConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(deals DealsService, tracker *traffic.Tracker, monitor *health.Monitor, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Handler{
		deals:   deals,
		tracker: tracker,
		monitor: monitor,
		cfg:     cfg,
		logger:  logger,
	}
}

type dealsResponse struct {
	Flights []models.Flight `json:"flights"`
	Count   int             `json:"count"`
}

// GetDeals handles GET /deals?origin=&destination=&currency=&date=.
func (h *Handler) GetDeals(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseDealsQuery(w, r)
	if !ok {
		return
	}

	flights, err := h.deals.FetchDeals(r.Context(), q)
	if err != nil {
		h.tracker.RecordError()
		writeServiceError(w, r, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, dealsResponse{Flights: flights, Count: len(flights)})
}

// parseDealsQuery validates query parameters, writing a 400 and returning false on failure.
func (h *Handler) parseDealsQuery(w http.ResponseWriter, r *http.Request) (models.Query, bool) {
	params := r.URL.Query()
	var q models.Query

	origin := params.Get("origin")
	if strings.TrimSpace(origin) == "" {
		origin = h.cfg.DefaultOrigin
	}
	v, err := validation.ValidateIATACode(origin)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ORIGIN", "origin: "+err.Error())
		return q, false
	}
	q.Origin = v

	if dest := params.Get("destination"); strings.TrimSpace(dest) != "" {
		v, err := validation.ValidateIATACode(dest)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_DESTINATION", "destination: "+err.Error())
			return q, false
		}
		q.Destination = v
	}

	currency := params.Get("currency")
	if strings.TrimSpace(currency) == "" {
		currency = h.cfg.DefaultCurrency
	}
	v, err = validation.ValidateCurrency(currency)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CURRENCY", "currency: "+err.Error())
		return q, false
	}
	q.Currency = v

	if date := params.Get("date"); strings.TrimSpace(date) != "" {
		d, err := validation.ValidateDate(date)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_DATE", "date: "+err.Error())
			return q, false
		}
		q.Date = &d
	}
	return q, true
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := h.monitor.Evaluate()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != report.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", report.Status),
			zap.String("reason", report.Reason))
	}
	h.healthStatusPrev = report.Status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"priceApi": "healthy"}
	if report.Status == health.StatusDegraded {
		checks["priceApi"] = "unhealthy"
	}
	if h.cfg.CachePing != nil {
		if err := h.cfg.CachePing(r.Context()); err != nil {
			checks["cache"] = "unhealthy"
			h.logger.Debug("cache ping failed", zap.Error(err))
		} else {
			checks["cache"] = "healthy"
		}
	}
	writeJSON(w, report.StatusCode, map[string]interface{}{
		"status":    report.Status,
		"service":   serviceName,
		"version":   h.cfg.Version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{code,message,requestId}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeErrorBody(w, status, map[string]interface{}{
		"code":      code,
		"message":   message,
		"requestId": observability.CorrelationIDFromContext(r.Context()),
	})
}

func writeErrorBody(w http.ResponseWriter, status int, body map[string]interface{}) {
	writeJSON(w, status, map[string]interface{}{"error": body})
}

// writeServiceError maps a repository failure onto a response. Provider failures are 502,
// deadlines 504 and a missing API key 503.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := http.StatusInternalServerError, "INTERNAL_ERROR", "Unable to fetch deals"
	body := map[string]interface{}{}

	switch client.CategorizeError(err) {
	case client.ErrorCategoryNotConfigured:
		status, code, message = http.StatusServiceUnavailable, "PROVIDER_NOT_CONFIGURED", "Price provider is not configured"
	case client.ErrorCategoryAuth:
		status, code, message = http.StatusBadGateway, "UPSTREAM_AUTH", "Price provider rejected credentials"
	case client.ErrorCategoryRateLimited, client.ErrorCategoryUpstream4xx, client.ErrorCategoryUpstream5xx,
		client.ErrorCategoryUpstreamOther:
		status, code, message = http.StatusBadGateway, "UPSTREAM_STATUS", "Price provider returned an error"
		if upstream, ok := client.StatusCode(err); ok {
			body["upstreamStatus"] = upstream
		}
	case client.ErrorCategoryTimeout:
		status, code, message = http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Price provider timed out"
	case client.ErrorCategoryTransport:
		status, code, message = http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Price provider unreachable"
	case client.ErrorCategoryDecoding:
		status, code, message = http.StatusBadGateway, "UPSTREAM_MALFORMED", "Price provider returned a malformed response"
	}

	body["code"] = code
	body["message"] = message
	body["requestId"] = observability.CorrelationIDFromContext(r.Context())
	writeErrorBody(w, status, body)

	if logger := observability.LoggerFromContext(r.Context()); logger != nil {
		level := zap.DebugLevel
		if status == http.StatusInternalServerError || errors.Is(err, client.ErrNotConfigured) {
			level = zap.ErrorLevel
		}
		logger.Check(level, "deals request failed").Write(zap.String("code", code), zap.Error(err))
	}
}
