package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across client, http, service, and cache packages.
func TestMetrics_Usable(t *testing.T) {
	// Route uses path template to avoid cardinality
	HTTPRequestsTotal.WithLabelValues("GET", "/deals", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/deals").Observe(0.01)
	PriceAPICallsTotal.WithLabelValues("success").Inc()
	PriceAPICallsTotal.WithLabelValues("error").Inc()
	PriceAPIDuration.WithLabelValues("success").Observe(0.1)
	PriceAPIErrorsTotal.WithLabelValues("transport").Inc()
	CacheHitsTotal.WithLabelValues("deals").Inc()
	CacheMissesTotal.Inc()
	CacheErrorsTotal.WithLabelValues("get", "timeout").Inc()
	CacheStampedeDetectedTotal.Inc()
	RequestCoalescingHitsTotal.Inc()
	DealsQueriesTotal.Inc()
	DealsQueriesByOriginTotal.WithLabelValues("MOW").Inc()
	DealsQueriesByOriginTotal.WithLabelValues("other").Inc()
	DealsReturnedTotal.Add(3)
	CacheWarmingTotal.Inc()
	CacheWarmingErrorsTotal.Inc()
	CacheWarmingDurationSeconds.Observe(0.2)
}

// TestSetTrackedOrigins_and_MetricOriginLabel verifies that SetTrackedOrigins
// configures the origin allow-list and untracked origins collapse to "other".
func TestSetTrackedOrigins_and_MetricOriginLabel(t *testing.T) {
	SetTrackedOrigins([]string{"mow", " LED "})
	defer SetTrackedOrigins(nil)

	tests := []struct {
		in   string
		want string
	}{
		{"MOW", "MOW"},
		{"led", "LED"},
		{"DXB", "other"},
		{"", "other"},
	}
	for _, tt := range tests {
		if got := MetricOriginLabel(tt.in); got != tt.want {
			t.Errorf("MetricOriginLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	RecordDealsQuery("mow")
	RecordDealsQuery("xyz")
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}

type fixedCounter struct{ requests, denials int }

func (c fixedCounter) RequestCount(time.Duration) int { return c.requests }
func (c fixedCounter) DenialCount(time.Duration) int  { return c.denials }

func TestRegisterRateLimitGauges(t *testing.T) {
	RegisterRateLimitGauges(time.Minute, fixedCounter{requests: 7, denials: 2})
	// A second registration is a no-op rather than a duplicate-registration panic.
	RegisterRateLimitGauges(time.Minute, fixedCounter{})

	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, "rateLimitRequestsInWindow 7") {
		t.Error("rateLimitRequestsInWindow gauge missing or wrong")
	}
	if !strings.Contains(body, "rateLimitRejectsInWindow 2") {
		t.Error("rateLimitRejectsInWindow gauge missing or wrong")
	}
}
