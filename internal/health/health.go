// Package health derives the service status reported by GET /health from the shutdown
// flag and the sliding-window request outcomes.
package health

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/flight-deals-service/internal/traffic"
)

// Status values reported by /health.
const (
	StatusHealthy      = "healthy"
	StatusDegraded     = "degraded"
	StatusOverloaded   = "overloaded"
	StatusShuttingDown = "shutting-down"
)

// Thresholds configures when the service reports overloaded or degraded.
// A zero window or percentage disables that check.
type Thresholds struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
}

// Report is one evaluation of the service status.
type Report struct {
	Status     string
	StatusCode int
	Reason     string
}

// Monitor evaluates status in priority order: shutting-down > overloaded > degraded > healthy.
type Monitor struct {
	tracker      *traffic.Tracker
	thresholds   Thresholds
	shuttingDown atomic.Bool
}

// NewMonitor returns a Monitor reading outcomes from tracker.
func NewMonitor(tracker *traffic.Tracker, thresholds Thresholds) *Monitor {
	return &Monitor{tracker: tracker, thresholds: thresholds}
}

// SetShuttingDown marks the process as draining. Call when SIGTERM/SIGINT is received.
func (m *Monitor) SetShuttingDown(v bool) {
	m.shuttingDown.Store(v)
}

// ShuttingDown reports whether the process is draining.
func (m *Monitor) ShuttingDown() bool {
	return m.shuttingDown.Load()
}

// Evaluate returns the current status.
func (m *Monitor) Evaluate() Report {
	if m.ShuttingDown() {
		return Report{StatusShuttingDown, http.StatusServiceUnavailable, "signal"}
	}
	if m.overloaded() {
		return Report{StatusOverloaded, http.StatusServiceUnavailable, "overload_threshold"}
	}
	if m.degraded() {
		return Report{StatusDegraded, http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return Report{StatusHealthy, http.StatusOK, ""}
}

// overloaded reports whether requests in the window exceed OverloadThresholdPct of the
// rate limiter's capacity for that window.
func (m *Monitor) overloaded() bool {
	th := m.thresholds
	if th.OverloadWindow <= 0 || th.OverloadThresholdPct <= 0 || th.RateLimitRPS <= 0 {
		return false
	}
	limit := float64(th.RateLimitRPS) * th.OverloadWindow.Seconds() * float64(th.OverloadThresholdPct) / 100
	return float64(m.tracker.RequestCount(th.OverloadWindow)) > limit
}

func (m *Monitor) degraded() bool {
	th := m.thresholds
	if th.DegradedWindow <= 0 || th.DegradedErrorPct <= 0 {
		return false
	}
	errs, total := m.tracker.ErrorRate(th.DegradedWindow)
	if total == 0 {
		return false
	}
	return errs*100 >= th.DegradedErrorPct*total
}
