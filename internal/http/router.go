package http

import (
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/flight-deals-service/internal/observability"
)

// NewRouter wires the REST surface. Rate limiting and the request timeout apply to /deals only.
// limiter may be nil to disable rate limiting.
func NewRouter(h *Handler, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(h.logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	dealsRouter := router.PathPrefix("/deals").Subrouter()
	dealsRouter.Use(RateLimitMiddleware(limiter, h.tracker))
	dealsRouter.Use(TimeoutMiddleware(requestTimeout))
	dealsRouter.HandleFunc("", h.GetDeals).Methods("GET")
	return router
}
