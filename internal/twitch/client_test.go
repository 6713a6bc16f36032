package twitch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/pkg/httpclient"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	t.Cleanup(func() {
		httpclient.DefaultManager.ResetBreaker("twitch-gql")
		httpclient.DefaultManager.ResetBreaker("twitch-usher")
	})
	if cfg.ClientID == "" {
		cfg.ClientID = "test-client-id"
	}
	cfg.Timeout = 5 * time.Second
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg)
}

func TestClient_StreamInfo(t *testing.T) {
	t.Run("live broadcast", func(t *testing.T) {
		gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-client-id", r.Header.Get("Client-ID"))
			assert.Empty(t, r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"user":{"broadcastSettings":{"title":"Any% attempts"},`+
				`"stream":{"id":"42331654321","createdAt":"2026-08-23T14:00:00Z","viewersCount":1234,`+
				`"game":{"name":"Tetris"}}}}}`)
		}))
		defer gql.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL})
		b, err := client.StreamInfo(context.Background(), "streamer")
		require.NoError(t, err)

		assert.Equal(t, "42331654321", b.ID)
		assert.Equal(t, "streamer", b.Login)
		assert.Equal(t, "Any% attempts", b.Title)
		assert.Equal(t, "Tetris", b.GameName)
		assert.Equal(t, 1234, b.ViewerCount)
		assert.Equal(t, time.Date(2026, 8, 23, 14, 0, 0, 0, time.UTC), b.CreatedAt.UTC())
	})

	t.Run("offline channel", func(t *testing.T) {
		gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"user":{"broadcastSettings":{"title":"old title"},"stream":null}}}`)
		}))
		defer gql.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL})
		_, err := client.StreamInfo(context.Background(), "streamer")
		assert.ErrorIs(t, err, ErrStreamOffline)
	})

	t.Run("unknown channel", func(t *testing.T) {
		gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"user":null}}`)
		}))
		defer gql.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL})
		_, err := client.StreamInfo(context.Background(), "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("forwards oauth token", func(t *testing.T) {
		gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "OAuth user-token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"user":null}}`)
		}))
		defer gql.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL, OAuthToken: "user-token"})
		client.StreamInfo(context.Background(), "streamer")
	})
}

func TestClient_BroadcastVODID(t *testing.T) {
	startedAt := time.Date(2026, 8, 23, 14, 0, 0, 0, time.UTC)

	t.Run("matches the recording archive", func(t *testing.T) {
		gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), "type: ARCHIVE")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"user":{"videos":{"edges":[`+
				`{"node":{"id":"2280123456","createdAt":"2026-08-23T14:00:07Z","status":"RECORDING"}},`+
				`{"node":{"id":"2279000000","createdAt":"2026-08-22T18:00:00Z","status":"RECORDED"}}`+
				`]}}}}`)
		}))
		defer gql.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL})
		id, err := client.BroadcastVODID(context.Background(), "streamer", startedAt)
		require.NoError(t, err)
		assert.Equal(t, "2280123456", id)
	})

	t.Run("no archive yet", func(t *testing.T) {
		gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"user":{"videos":{"edges":[`+
				`{"node":{"id":"2279000000","createdAt":"2026-08-22T18:00:00Z","status":"RECORDED"}}`+
				`]}}}}`)
		}))
		defer gql.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL})
		id, err := client.BroadcastVODID(context.Background(), "streamer", startedAt)
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	t.Run("channel without videos", func(t *testing.T) {
		gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"user":{"videos":null}}}`)
		}))
		defer gql.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL})
		id, err := client.BroadcastVODID(context.Background(), "streamer", startedAt)
		require.NoError(t, err)
		assert.Empty(t, id)
	})
}

func newTokenGQL(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.Contains(t, string(body), "streamPlaybackAccessToken")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"streamPlaybackAccessToken":{"value":"tok-value","signature":"sig-abc"}}}`)
	}))
}

func TestClient_IndexURL(t *testing.T) {
	t.Run("resolves the requested variant", func(t *testing.T) {
		gql := newTokenGQL(t)
		defer gql.Close()

		usher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/channel/hls/streamer.m3u8", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "tok-value", q.Get("token"))
			assert.Equal(t, "sig-abc", q.Get("sig"))
			assert.Equal(t, "true", q.Get("allow_source"))
			assert.Equal(t, "true", q.Get("playlist_include_framerate"))
			assert.Len(t, q.Get("p"), 7)
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			fmt.Fprint(w, testMultivariant)
		}))
		defer usher.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL, UsherEndpoint: usher.URL})

		url, err := client.IndexURL(context.Background(), "Streamer", "best")
		require.NoError(t, err)
		assert.Equal(t, "https://video-weaver.arn04.hls.ttvnw.net/v1/playlist/chunked.m3u8", url)

		url, err = client.IndexURL(context.Background(), "streamer", "720p30")
		require.NoError(t, err)
		assert.Equal(t, "https://video-weaver.arn04.hls.ttvnw.net/v1/playlist/720p30.m3u8", url)
	})

	t.Run("resolves relative variant URIs", func(t *testing.T) {
		gql := newTokenGQL(t)
		defer gql.Close()

		usher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			fmt.Fprint(w, "#EXTM3U\n"+
				`#EXT-X-STREAM-INF:BANDWIDTH=6214927,RESOLUTION=1920x1080,CODECS="avc1.64002A,mp4a.40.2"`+"\n"+
				"chunked.m3u8\n")
		}))
		defer usher.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL, UsherEndpoint: usher.URL})

		url, err := client.IndexURL(context.Background(), "streamer", "best")
		require.NoError(t, err)
		assert.Equal(t, usher.URL+"/api/channel/hls/chunked.m3u8", url)
	})

	t.Run("offline channel maps to not found without leaking the token", func(t *testing.T) {
		gql := newTokenGQL(t)
		defer gql.Close()

		usher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer usher.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL, UsherEndpoint: usher.URL})

		_, err := client.IndexURL(context.Background(), "streamer", "best")
		require.ErrorIs(t, err, ErrNotFound)
		assert.NotContains(t, err.Error(), "tok-value")
	})

	t.Run("missing token is forbidden", func(t *testing.T) {
		gql := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"streamPlaybackAccessToken":null}}`)
		}))
		defer gql.Close()

		client := newTestClient(t, Config{GQLEndpoint: gql.URL})
		_, err := client.IndexURL(context.Background(), "streamer", "best")
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestRedactQuery(t *testing.T) {
	assert.Equal(t, "https://u.example/a.m3u8", redactQuery("https://u.example/a.m3u8?token=secret&sig=x"))
	assert.Equal(t, "https://u.example/a.m3u8", redactQuery("https://u.example/a.m3u8"))
}

func TestHeaderTransport(t *testing.T) {
	var gotClientID, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClientID = r.Header.Get("Client-ID")
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &headerTransport{
		base:     http.DefaultTransport,
		clientID: "abc",
		token:    "tok",
	}}
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("{}"))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "abc", gotClientID)
	assert.Equal(t, "OAuth tok", gotAuth)
}
