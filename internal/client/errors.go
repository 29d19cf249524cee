package client

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. HTTPStatusError, TransportError and DecodingError match
// ErrHTTPStatus, ErrTransport and ErrDecoding respectively.
var (
	ErrNotConfigured  = errors.New("price client not configured")
	ErrInvalidRequest = errors.New("invalid price request")
	ErrHTTPStatus     = errors.New("unexpected HTTP status")
	ErrTransport      = errors.New("transport failure")
	ErrDecoding       = errors.New("decoding failure")
)

// HTTPStatusError reports a provider response outside [200,300). Code is the raw status.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("price provider returned HTTP %d", e.Code)
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}

// TransportError is a network-level failure: DNS, connection reset, timeout, body read.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "price provider transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// DecodingError is a malformed provider payload.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return "decode price response: " + e.Err.Error()
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

func (e *DecodingError) Is(target error) bool {
	return target == ErrDecoding
}

// StatusCode returns the provider status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code, true
	}
	return 0, false
}
