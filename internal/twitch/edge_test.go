package twitch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/pkg/httpclient"
)

func newTestEdge(t *testing.T, name string) *EdgeClient {
	t.Helper()
	t.Cleanup(func() { httpclient.DefaultManager.Remove(name) })
	return NewEdgeClient(name, EdgeConfig{
		Timeout: 5 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestEdgeClient_FetchManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/live.m3u8":
			fmt.Fprint(w, "#EXTM3U\n#EXT-X-VERSION:3\n")
		case "/ended.m3u8":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	t.Run("returns the playlist body", func(t *testing.T) {
		edge := newTestEdge(t, "edge-manifest-ok")
		body, err := edge.FetchManifest(context.Background(), srv.URL+"/live.m3u8")
		require.NoError(t, err)
		assert.Equal(t, "#EXTM3U\n#EXT-X-VERSION:3\n", string(body))
	})

	t.Run("ended broadcast maps to not found without tripping the breaker", func(t *testing.T) {
		edge := newTestEdge(t, "edge-manifest-ended")
		_, err := edge.FetchManifest(context.Background(), srv.URL+"/ended.m3u8?token=secret")
		require.ErrorIs(t, err, ErrNotFound)
		assert.False(t, IsTransient(err))
		assert.NotContains(t, err.Error(), "secret")

		breaker := httpclient.DefaultManager.Get("edge-manifest-ended")
		require.NotNil(t, breaker)
		assert.Equal(t, 0, breaker.Failures())
	})

	t.Run("server errors count against the breaker", func(t *testing.T) {
		edge := newTestEdge(t, "edge-manifest-boom")
		_, err := edge.FetchManifest(context.Background(), srv.URL+"/boom.m3u8")
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)

		breaker := httpclient.DefaultManager.Get("edge-manifest-boom")
		require.NotNil(t, breaker)
		assert.Equal(t, 1, breaker.Failures())
	})

	t.Run("connection failures are transient", func(t *testing.T) {
		edge := newTestEdge(t, "edge-manifest-refused")
		_, err := edge.FetchManifest(context.Background(), "http://127.0.0.1:1/live.m3u8")
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})
}

func TestEdgeClient_Get(t *testing.T) {
	payload := []byte{0x47, 0x40, 0x11, 0x10, 0x00}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/part0.ts" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	edge := newTestEdge(t, "edge-get")

	resp, err := edge.Get(context.Background(), srv.URL+"/part0.ts")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, body)

	// Statuses come back to the caller rather than becoming errors.
	resp, err = edge.Get(context.Background(), srv.URL+"/missing.ts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEdgeClient_Close(t *testing.T) {
	edge := newTestEdge(t, "edge-close")
	require.NotNil(t, httpclient.DefaultManager.Get("edge-close"))

	edge.Close()
	assert.Nil(t, httpclient.DefaultManager.Get("edge-close"))
}
