package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/flight-deals-service/internal/observability"
)

const (
	cheapPricesPath   = "/v1/prices/cheap"
	accessTokenHeader = "X-Access-Token"
	dateLayout        = "2006-01-02"

	// NoDestination is sent when the caller has no destination filter.
	// The provider treats it as "search all" but requires some token.
	NoDestination = "-"
)

// PriceClient fetches raw cheap-price payloads. One call is exactly one round trip.
type PriceClient interface {
	FetchCheapPrices(ctx context.Context, origin, destination, currency string, departDate *time.Time) ([]byte, error)
}

// TravelpayoutsClient implements PriceClient against the Travelpayouts v1 API.
type TravelpayoutsClient struct {
	apiKey  string
	baseURL *url.URL
	client  *http.Client
}

// NewTravelpayoutsClient returns a ready client or an ErrNotConfigured error when the
// API key or base URL is missing or unusable. A nil httpClient gets one with no timeout,
// leaving deadlines to the transport defaults and the caller's context.
func NewTravelpayoutsClient(apiKey, baseURL string, httpClient *http.Client) (*TravelpayoutsClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrNotConfigured)
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrNotConfigured)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base URL: %v", ErrNotConfigured, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base URL %q must be absolute", ErrNotConfigured, baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &TravelpayoutsClient{
		apiKey:  apiKey,
		baseURL: u,
		client:  httpClient,
	}, nil
}

// FetchCheapPrices performs GET /v1/prices/cheap and returns the raw body on a 2xx response.
// Parameters are sent verbatim; callers normalize them. No retries.
func (c *TravelpayoutsClient) FetchCheapPrices(ctx context.Context, origin, destination, currency string, departDate *time.Time) ([]byte, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	body, status, err := c.do(ctx, origin, destination, currency, departDate)
	duration := time.Since(start)

	label := "error"
	if status != 0 {
		label = statusLabel(status)
	}
	observability.PriceAPICallsTotal.WithLabelValues(label).Inc()
	observability.PriceAPIDuration.WithLabelValues(label).Observe(duration.Seconds())

	if err != nil {
		observability.PriceAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		if logger != nil {
			logger.Debug("price provider call failed",
				zap.String("origin", origin),
				zap.String("destination", destination),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.Error(err))
		}
		return nil, err
	}
	if logger != nil {
		logger.Debug("price provider call",
			zap.String("origin", origin),
			zap.String("destination", destination),
			zap.Int("status", status),
			zap.Int("bytes", len(body)),
			zap.Duration("duration", duration))
	}
	return body, nil
}

func (c *TravelpayoutsClient) do(ctx context.Context, origin, destination, currency string, departDate *time.Time) ([]byte, int, error) {
	req, err := c.buildRequest(ctx, origin, destination, currency, departDate)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, &HTTPStatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Err: fmt.Errorf("read response body: %w", err)}
	}
	return body, resp.StatusCode, nil
}

func (c *TravelpayoutsClient) buildRequest(ctx context.Context, origin, destination, currency string, departDate *time.Time) (*http.Request, error) {
	if origin == "" || destination == "" || currency == "" {
		return nil, fmt.Errorf("%w: origin, destination and currency are required", ErrInvalidRequest)
	}

	u := c.baseURL.JoinPath(cheapPricesPath)
	params := url.Values{}
	params.Set("origin", origin)
	params.Set("destination", destination)
	params.Set("currency", currency)
	if departDate != nil {
		params.Set("depart_date", departDate.UTC().Format(dateLayout))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(accessTokenHeader, c.apiKey)
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
