package twitch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/vodarr/internal/version"
	"github.com/jmylchreest/vodarr/pkg/httpclient"
)

// edgeAcceptableStatuses marks 404 as expected alongside success: the CDN
// answers 404 for the variant playlist once the broadcast ends, and that
// must not trip the circuit breaker.
var edgeAcceptableStatuses = httpclient.MustParseStatusCodes("200-299,404")

// EdgeConfig holds delivery client configuration.
type EdgeConfig struct {
	// Timeout applies per request, covering the full body read.
	Timeout time.Duration
	// MaxResponseSize caps response bodies. Zero means unlimited.
	MaxResponseSize int64
	Logger          *slog.Logger
}

// EdgeClient fetches variant playlists and media parts from the delivery
// CDN. Each capture session owns one, registered under the session's name
// with the shared breaker manager so its health is visible while running.
// The client never retries; sessions apply their own attempt budgets.
type EdgeClient struct {
	http   *httpclient.Client
	name   string
	logger *slog.Logger
}

// NewEdgeClient creates a delivery client whose circuit breaker is
// registered under name. Close releases the registration.
func NewEdgeClient(name string, cfg EdgeConfig) *EdgeClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "twitch-edge"), slog.String("session", name))

	hcfg := httpclient.DefaultConfig()
	hcfg.RetryAttempts = 0
	hcfg.Timeout = cfg.Timeout
	hcfg.UserAgent = version.UserAgent()
	hcfg.MaxResponseSize = cfg.MaxResponseSize
	hcfg.AcceptableStatusCodes = edgeAcceptableStatuses
	hcfg.Logger = logger

	return &EdgeClient{
		http:   httpclient.NewWithBreaker(hcfg, httpclient.DefaultManager.GetOrCreate(name)),
		name:   name,
		logger: logger,
	}
}

// FetchManifest retrieves a variant playlist. A 404 maps to ErrNotFound,
// the end-of-broadcast signal; other non-OK statuses map through the error
// taxonomy. Transport failures surface as transient errors.
func (e *EdgeClient) FetchManifest(ctx context.Context, manifestURL string) ([]byte, error) {
	resp, err := e.http.Get(ctx, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(resp.StatusCode, redactQuery(manifestURL))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return body, nil
}

// Get performs a plain download, handing the status code and body stream to
// the caller. Used for media part fetches where the caller decides how a
// non-OK status is treated.
func (e *EdgeClient) Get(ctx context.Context, url string) (*http.Response, error) {
	return e.http.Get(ctx, url)
}

// Close releases the session's circuit breaker registration.
func (e *EdgeClient) Close() {
	httpclient.DefaultManager.Remove(e.name)
}
