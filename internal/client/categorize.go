package client

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (priceApiErrorsTotal).
const (
	ErrorCategoryNotConfigured  ErrorCategory = "not_configured"
	ErrorCategoryInvalidRequest ErrorCategory = "invalid_request"
	ErrorCategoryAuth           ErrorCategory = "auth"
	ErrorCategoryRateLimited    ErrorCategory = "rate_limited"
	ErrorCategoryUpstream4xx    ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx    ErrorCategory = "upstream_5xx"
	ErrorCategoryUpstreamOther  ErrorCategory = "upstream_other"
	ErrorCategoryTimeout        ErrorCategory = "timeout"
	ErrorCategoryTransport      ErrorCategory = "transport"
	ErrorCategoryDecoding       ErrorCategory = "decoding"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNotConfigured):
		return ErrorCategoryNotConfigured
	case errors.Is(err, ErrInvalidRequest):
		return ErrorCategoryInvalidRequest
	case errors.Is(err, ErrDecoding):
		return ErrorCategoryDecoding
	}

	if code, ok := StatusCode(err); ok {
		switch {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return ErrorCategoryAuth
		case code == http.StatusTooManyRequests:
			return ErrorCategoryRateLimited
		case code >= 500:
			return ErrorCategoryUpstream5xx
		case code >= 400:
			return ErrorCategoryUpstream4xx
		default:
			return ErrorCategoryUpstreamOther
		}
	}

	if IsTimeout(err) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrTransport) {
		return ErrorCategoryTransport
	}
	return ErrorCategoryUnknown
}

// IsTimeout reports whether err stems from a deadline, cancellation or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
