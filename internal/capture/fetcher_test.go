package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/internal/twitch"
)

// scriptedDownloader answers Get calls from a script, indexed by call
// number starting at one.
type scriptedDownloader struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, url string) (*http.Response, error)
}

func (d *scriptedDownloader) Get(_ context.Context, url string) (*http.Response, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.mu.Unlock()
	return d.fn(call, url)
}

func (d *scriptedDownloader) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func okResponse(body string) *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}
}

func statusResponse(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}
}

func transientErr(u string) error {
	return &url.Error{Op: "Get", URL: u, Err: &net.OpError{
		Op: "read", Net: "tcp", Err: errors.New("connection reset by peer"),
	}}
}

func testSegment(id int, urls ...string) *Segment {
	seg := &Segment{ID: id}
	for _, u := range urls {
		seg.append(Part{URL: u, Duration: 2 * time.Second, Label: "live"})
	}
	return seg
}

func newTestFetcher(t *testing.T, edge PartDownloader, attempts int) (*Fetcher, string, string) {
	t.Helper()
	staging := t.TempDir()
	dest := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFetcher(edge, staging, attempts, logger), staging, dest
}

func TestFetcher_DownloadSegment(t *testing.T) {
	bodies := map[string]string{"p0": "AAAA", "p1": "BBBB", "p2": "CCCC"}

	t.Run("writes parts in order and promotes", func(t *testing.T) {
		edge := &scriptedDownloader{fn: func(_ int, u string) (*http.Response, error) {
			return okResponse(bodies[u]), nil
		}}
		f, staging, dest := newTestFetcher(t, edge, 5)

		promoted, err := f.DownloadSegment(context.Background(), testSegment(3, "p0", "p1", "p2"), dest)
		require.NoError(t, err)
		assert.True(t, promoted)

		data, err := os.ReadFile(filepath.Join(dest, "00003.ts"))
		require.NoError(t, err)
		assert.Equal(t, "AAAABBBBCCCC", string(data))

		// The staging file moved out rather than being copied.
		entries, err := os.ReadDir(staging)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("rejected part abandons the segment without retrying", func(t *testing.T) {
		edge := &scriptedDownloader{fn: func(call int, _ string) (*http.Response, error) {
			if call == 3 {
				return statusResponse(http.StatusNotFound), nil
			}
			return okResponse("X"), nil
		}}
		f, _, dest := newTestFetcher(t, edge, 5)

		promoted, err := f.DownloadSegment(context.Background(), testSegment(0, "p0", "p1", "p2"), dest)
		require.NoError(t, err)
		assert.False(t, promoted)
		assert.Equal(t, 3, edge.callCount())
		assert.NoFileExists(t, filepath.Join(dest, "00000.ts"))
	})

	t.Run("transient failure restarts the whole segment", func(t *testing.T) {
		edge := &scriptedDownloader{fn: func(call int, u string) (*http.Response, error) {
			if call == 2 {
				return nil, transientErr(u)
			}
			return okResponse(bodies[u]), nil
		}}
		f, _, dest := newTestFetcher(t, edge, 5)

		promoted, err := f.DownloadSegment(context.Background(), testSegment(7, "p0", "p1", "p2"), dest)
		require.NoError(t, err)
		assert.True(t, promoted)

		// First attempt fetched p0 and failed on p1; the second attempt
		// rewrote the file from the start, so no bytes are duplicated.
		data, err := os.ReadFile(filepath.Join(dest, "00007.ts"))
		require.NoError(t, err)
		assert.Equal(t, "AAAABBBBCCCC", string(data))
		assert.Equal(t, 5, edge.callCount())
	})

	t.Run("abandons after the attempt budget", func(t *testing.T) {
		edge := &scriptedDownloader{fn: func(_ int, u string) (*http.Response, error) {
			return nil, transientErr(u)
		}}
		f, _, dest := newTestFetcher(t, edge, 3)

		promoted, err := f.DownloadSegment(context.Background(), testSegment(0, "p0"), dest)
		require.NoError(t, err)
		assert.False(t, promoted)
		assert.Equal(t, 3, edge.callCount())
	})

	t.Run("cancellation is fatal", func(t *testing.T) {
		edge := &scriptedDownloader{fn: func(_ int, u string) (*http.Response, error) {
			return nil, &url.Error{Op: "Get", URL: u, Err: context.Canceled}
		}}
		f, _, dest := newTestFetcher(t, edge, 5)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		promoted, err := f.DownloadSegment(ctx, testSegment(0, "p0"), dest)
		assert.False(t, promoted)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, edge.callCount())
	})

	t.Run("relocation failure is fatal", func(t *testing.T) {
		edge := &scriptedDownloader{fn: func(_ int, _ string) (*http.Response, error) {
			return okResponse("X"), nil
		}}
		f, _, _ := newTestFetcher(t, edge, 5)

		// A file where the output directory should be makes the move fail.
		blocked := filepath.Join(t.TempDir(), "blocked")
		require.NoError(t, os.WriteFile(blocked, []byte("x"), 0640))

		promoted, err := f.DownloadSegment(context.Background(), testSegment(3, "p0"), blocked)
		assert.False(t, promoted)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "relocate segment 3")
	})
}

func TestFetcher_DownloadSegment_EdgeClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data-" + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	edge := twitch.NewEdgeClient("capture-fetcher-test", twitch.EdgeConfig{Logger: logger})
	t.Cleanup(edge.Close)

	f := NewFetcher(edge, t.TempDir(), 5, logger)
	dest := t.TempDir()

	seg := testSegment(12, srv.URL+"/p0.ts", srv.URL+"/p1.ts")
	promoted, err := f.DownloadSegment(context.Background(), seg, dest)
	require.NoError(t, err)
	assert.True(t, promoted)

	data, err := os.ReadFile(filepath.Join(dest, "00012.ts"))
	require.NoError(t, err)
	assert.Equal(t, "data-p0.tsdata-p1.ts", string(data))
}
