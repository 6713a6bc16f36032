package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"

	"github.com/jmylchreest/vodarr/pkg/httpclient"
)

// API errors.
var (
	// ErrBadRequest indicates the API rejected the request as malformed.
	ErrBadRequest = errors.New("bad request")

	// ErrForbidden indicates the request was refused, typically an expired
	// or insufficient OAuth token.
	ErrForbidden = errors.New("access forbidden")

	// ErrNotFound indicates the requested resource does not exist. For a
	// variant playlist this is how the CDN signals the broadcast has ended.
	ErrNotFound = errors.New("resource not found")

	// ErrStreamOffline indicates the channel exists but is not live.
	ErrStreamOffline = errors.New("stream offline")
)

// APIError represents an unexpected non-2xx response.
type APIError struct {
	Status int
	URL    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
}

// statusErr maps a non-OK response status to the error taxonomy.
func statusErr(status int, reqURL string) error {
	switch status {
	case 400:
		return fmt.Errorf("%s: %w", reqURL, ErrBadRequest)
	case 403:
		return fmt.Errorf("%s: %w", reqURL, ErrForbidden)
	case 404:
		return fmt.Errorf("%s: %w", reqURL, ErrNotFound)
	default:
		return &APIError{Status: status, URL: reqURL}
	}
}

// IsTransient reports whether err is a connection-level failure worth
// retrying: timeouts, resets, interrupted bodies, an open circuit. Status
// mapped errors and context cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrStreamOffline) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// The resilient client reports exhausted retries and open breakers for
	// transport-level failures only; both clear once the upstream recovers.
	if errors.Is(err, httpclient.ErrMaxRetries) || errors.Is(err, httpclient.ErrCircuitOpen) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
