package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/flight-deals-service/internal/models"
	"github.com/kjstillabower/flight-deals-service/internal/observability"
	"github.com/kjstillabower/flight-deals-service/internal/traffic"
)

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func TestMiddleware_GeneratesCorrelationID(t *testing.T) {
	h, _, _ := newTestHandler(&mockDeals{flights: []models.Flight{}}, nil)
	w := serve(t, h, "GET", "/deals")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	var seenID string
	var seenLogger *zap.Logger
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seenID = observability.CorrelationIDFromContext(r.Context())
		seenLogger = observability.LoggerFromContext(r.Context())
	})

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
	if seenID != "client-provided-id" {
		t.Errorf("context correlation id = %q", seenID)
	}
	if seenLogger == nil {
		t.Error("request logger missing from context")
	}
}

func TestMiddleware_RequestLoggerCarriesCorrelationID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFromContext(r.Context()).Info("inside")
	})

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Correlation-ID", "id-1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("inside").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "id-1" {
		t.Errorf("log entries = %+v, want one with correlation_id id-1", entries)
	}
}

func TestMiddleware_GetRouteUsesTemplate(t *testing.T) {
	var route string
	router := mux.NewRouter()
	router.HandleFunc("/routes/{origin}", func(w http.ResponseWriter, r *http.Request) {
		route = getRoute(r)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/routes/MOW", nil))

	if route != "/routes/{origin}" {
		t.Errorf("getRoute() = %q, want /routes/{origin}", route)
	}
	if got := getRoute(httptest.NewRequest("GET", "/nowhere", nil)); got != "unmatched" {
		t.Errorf("getRoute() without route = %q, want unmatched", got)
	}
}

func TestMiddleware_StatusRecorder(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	rec.WriteHeader(http.StatusBadGateway)
	if rec.statusCode != http.StatusBadGateway {
		t.Errorf("statusCode = %d, want 502", rec.statusCode)
	}
	if got := statusCodeString(rec.statusCode); got != "5xx" {
		t.Errorf("statusCodeString() = %q, want 5xx", got)
	}
}

func TestMiddleware_MetricsRoute(t *testing.T) {
	h, _, _ := newTestHandler(&mockDeals{}, nil)
	w := serve(t, h, "GET", "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	handler := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/deals", nil))

	if !ok || time.Until(deadline) > 50*time.Millisecond {
		t.Errorf("deadline = %v (set %v), want within 50ms", deadline, ok)
	}
}

func TestTimeoutMiddleware_ZeroDisables(t *testing.T) {
	var ok bool
	handler := TimeoutMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = r.Context().Deadline()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/deals", nil).WithContext(context.Background()))
	if ok {
		t.Error("deadline set with zero timeout")
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	h, tracker, _ := newTestHandler(&mockDeals{flights: []models.Flight{}}, nil)
	router := NewRouter(h, rate.NewLimiter(1, 2), time.Second)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/deals", nil))

		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		var errResp errorBody
		if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
			t.Fatalf("decode 429 response: %v", err)
		}
		if errResp.Error.Code != "RATE_LIMITED" || errResp.Error.RequestID == "" {
			t.Errorf("error = %+v, want RATE_LIMITED with requestId", errResp.Error)
		}
	}
	if n := tracker.DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount() = %d, want 1", n)
	}
}

func TestRateLimitMiddleware_HealthNotLimited(t *testing.T) {
	h, _, _ := newTestHandler(&mockDeals{}, nil)
	router := NewRouter(h, rate.NewLimiter(rate.Every(time.Hour), 1), time.Second)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: /health status = %d, want 200", i, w.Code)
		}
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	handler := RateLimitMiddleware(nil, &traffic.Tracker{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/deals", nil))
	if !called {
		t.Error("nil limiter blocked the request")
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	var during int64
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
	}))
	before := InFlightCount()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/deals", nil))

	if during != before+1 {
		t.Errorf("in-flight during request = %d, want %d", during, before+1)
	}
	if after := InFlightCount(); after != before {
		t.Errorf("in-flight after request = %d, want %d", after, before)
	}
}
