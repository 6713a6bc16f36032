package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/pkg/httpclient"
)

func TestStatusErr(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{400, ErrBadRequest},
		{403, ErrForbidden},
		{404, ErrNotFound},
	}
	for _, tt := range tests {
		err := statusErr(tt.status, "https://example.com/x")
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		assert.Contains(t, err.Error(), "https://example.com/x")
	}

	t.Run("other statuses become APIError", func(t *testing.T) {
		err := statusErr(500, "https://example.com/x")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 500, apiErr.Status)
		assert.Equal(t, "https://example.com/x", apiErr.URL)
		assert.Contains(t, err.Error(), "500")
	})
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("pass: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"not found", statusErr(404, "u"), false},
		{"forbidden", statusErr(403, "u"), false},
		{"api error", statusErr(500, "u"), false},
		{"offline", fmt.Errorf("channel: %w", ErrStreamOffline), false},
		{"max retries", fmt.Errorf("%w: refused", httpclient.ErrMaxRetries), true},
		{"circuit open", httpclient.ErrCircuitOpen, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, true},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: io.EOF}, true},
		{"plain error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
