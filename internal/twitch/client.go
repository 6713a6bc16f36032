// Package twitch talks to the Twitch GraphQL gateway and the HLS delivery
// edge. It resolves broadcast metadata, archive identity, and variant
// playlist locations for capture sessions.
package twitch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
	"github.com/hasura/go-graphql-client"

	"github.com/jmylchreest/vodarr/internal/version"
	"github.com/jmylchreest/vodarr/pkg/httpclient"
)

// Default endpoints and identity.
const (
	DefaultGQLEndpoint   = "https://gql.twitch.tv/gql"
	DefaultUsherEndpoint = "https://usher.ttvnw.net"

	// DefaultClientID is the public web player client id. It grants access
	// to public playback tokens only.
	DefaultClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"

	defaultTimeout = 10 * time.Second
)

// archiveMatchWindow is how far before the live stream's start an archive
// video may be dated and still be treated as its recording. The archive
// appears shortly after the stream starts, with second-level clock skew
// between the two timestamps.
const archiveMatchWindow = 5 * time.Minute

// Config holds client configuration.
type Config struct {
	ClientID string
	// OAuthToken is optional. When set it is forwarded to the gateway,
	// which unlocks subscriber-only playback tokens.
	OAuthToken    string
	GQLEndpoint   string
	UsherEndpoint string
	Timeout       time.Duration
	// MaxResponseSize caps playlist response bodies. Zero means unlimited.
	MaxResponseSize int64
	Logger          *slog.Logger
}

// Client resolves channel, broadcast, and playlist information.
type Client struct {
	cfg    Config
	gql    *graphql.Client
	usher  *httpclient.Client
	logger *slog.Logger
}

// New creates a Client. Gateway calls share the "twitch-gql" circuit
// breaker, usher calls the "twitch-usher" one, so a failing upstream is
// detected across all capture sessions.
func New(cfg Config) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.GQLEndpoint == "" {
		cfg.GQLEndpoint = DefaultGQLEndpoint
	}
	if cfg.UsherEndpoint == "" {
		cfg.UsherEndpoint = DefaultUsherEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "twitch"))

	gqlCfg := httpclient.DefaultConfig()
	gqlCfg.Timeout = cfg.Timeout
	gqlCfg.UserAgent = version.UserAgent()
	gqlCfg.Logger = logger
	gqlHTTP := httpclient.NewWithBreaker(gqlCfg, httpclient.DefaultManager.GetOrCreate("twitch-gql"))

	std := gqlHTTP.StandardClient()
	std.Transport = &headerTransport{
		base:     std.Transport,
		clientID: cfg.ClientID,
		token:    cfg.OAuthToken,
	}

	usherCfg := httpclient.DefaultConfig()
	usherCfg.Timeout = cfg.Timeout
	usherCfg.UserAgent = version.UserAgent()
	usherCfg.Logger = logger
	usherCfg.MaxResponseSize = cfg.MaxResponseSize
	usher := httpclient.NewWithBreaker(usherCfg, httpclient.DefaultManager.GetOrCreate("twitch-usher"))

	return &Client{
		cfg:    cfg,
		gql:    graphql.NewClient(cfg.GQLEndpoint, std),
		usher:  usher,
		logger: logger,
	}
}

// headerTransport injects the gateway identity headers on every request.
type headerTransport struct {
	base     http.RoundTripper
	clientID string
	token    string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Client-ID", t.clientID)
	if t.token != "" {
		clone.Header.Set("Authorization", "OAuth "+t.token)
	}
	return t.base.RoundTrip(clone)
}

// StreamInfo returns the live broadcast metadata for a channel.
// It returns ErrNotFound for an unknown login and ErrStreamOffline when
// the channel exists but is not live.
func (c *Client) StreamInfo(ctx context.Context, login string) (*Broadcast, error) {
	var q struct {
		User *struct {
			BroadcastSettings struct {
				Title graphql.String
			}
			Stream *struct {
				ID           graphql.String
				CreatedAt    time.Time
				ViewersCount graphql.Int
				Game         *struct {
					Name graphql.String
				}
			}
		} `graphql:"user(login: $login)"`
	}

	err := c.gql.Query(ctx, &q, map[string]interface{}{
		"login": graphql.String(login),
	})
	if err != nil {
		return nil, fmt.Errorf("stream info for %q: %w", login, err)
	}
	if q.User == nil {
		return nil, fmt.Errorf("channel %q: %w", login, ErrNotFound)
	}
	if q.User.Stream == nil {
		return nil, fmt.Errorf("channel %q: %w", login, ErrStreamOffline)
	}

	b := &Broadcast{
		ID:          string(q.User.Stream.ID),
		Login:       login,
		Title:       string(q.User.BroadcastSettings.Title),
		CreatedAt:   q.User.Stream.CreatedAt,
		ViewerCount: int(q.User.Stream.ViewersCount),
	}
	if q.User.Stream.Game != nil {
		b.GameName = string(q.User.Stream.Game.Name)
	}
	return b, nil
}

// BroadcastVODID returns the archive video id recording the broadcast that
// started at startedAt, or an empty string if no archive has appeared yet.
// The archive shows up some time after going live, so callers poll this.
func (c *Client) BroadcastVODID(ctx context.Context, login string, startedAt time.Time) (string, error) {
	var q struct {
		User *struct {
			Videos *struct {
				Edges []struct {
					Node *struct {
						ID        graphql.String
						CreatedAt time.Time
						Status    graphql.String
					}
				}
			} `graphql:"videos(first: 5, type: ARCHIVE, sort: TIME)"`
		} `graphql:"user(login: $login)"`
	}

	err := c.gql.Query(ctx, &q, map[string]interface{}{
		"login": graphql.String(login),
	})
	if err != nil {
		return "", fmt.Errorf("archive lookup for %q: %w", login, err)
	}
	if q.User == nil || q.User.Videos == nil {
		return "", nil
	}

	cutoff := startedAt.Add(-archiveMatchWindow)
	for _, edge := range q.User.Videos.Edges {
		node := edge.Node
		if node == nil {
			continue
		}
		// Newest first; anything dated before this broadcast belongs to an
		// earlier one.
		if node.CreatedAt.Before(cutoff) {
			break
		}
		c.logger.Debug("matched archive video",
			slog.String("login", login),
			slog.String("vod_id", string(node.ID)),
			slog.String("status", string(node.Status)),
		)
		return string(node.ID), nil
	}
	return "", nil
}

// IndexURL resolves the variant playlist URL for a channel at the requested
// quality. Quality is "best", "worst", or a named rendition such as
// "1080p60" or "720p".
func (c *Client) IndexURL(ctx context.Context, login, quality string) (string, error) {
	token, sig, err := c.playbackAccessToken(ctx, login)
	if err != nil {
		return "", err
	}

	reqURL, err := c.usherURL(login, token, sig)
	if err != nil {
		return "", err
	}

	resp, err := c.usher.Get(ctx, reqURL)
	if err != nil {
		return "", fmt.Errorf("fetch multivariant playlist for %q: %w", login, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusErr(resp.StatusCode, redactQuery(reqURL))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read multivariant playlist for %q: %w", login, err)
	}

	parsed, err := playlist.Unmarshal(body)
	if err != nil {
		return "", fmt.Errorf("parse multivariant playlist for %q: %w", login, err)
	}
	mv, ok := parsed.(*playlist.Multivariant)
	if !ok {
		return "", fmt.Errorf("playlist for %q is not multivariant", login)
	}

	variant, err := selectVariant(mv, quality)
	if err != nil {
		return "", fmt.Errorf("channel %q: %w", login, err)
	}

	c.logger.Debug("selected variant",
		slog.String("login", login),
		slog.String("quality", quality),
		slog.Int("bandwidth", variant.Bandwidth),
		slog.String("resolution", variant.Resolution),
	)
	return absolutizeURL(reqURL, variant.URI), nil
}

// playbackAccessToken requests a signed playback token for the channel.
func (c *Client) playbackAccessToken(ctx context.Context, login string) (value, signature string, err error) {
	var q struct {
		StreamPlaybackAccessToken *struct {
			Value     graphql.String
			Signature graphql.String
		} `graphql:"streamPlaybackAccessToken(channelName: $login, params: $params)"`
	}

	err = c.gql.Query(ctx, &q, map[string]interface{}{
		"login": graphql.String(login),
		"params": PlaybackAccessTokenParams{
			Platform:      "web",
			PlayerBackend: "mediaplayer",
			PlayerType:    "site",
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("playback access token for %q: %w", login, err)
	}
	if q.StreamPlaybackAccessToken == nil {
		return "", "", fmt.Errorf("no playback access token for %q: %w", login, ErrForbidden)
	}
	return string(q.StreamPlaybackAccessToken.Value), string(q.StreamPlaybackAccessToken.Signature), nil
}

// usherURL builds the multivariant playlist request for a channel.
func (c *Client) usherURL(login, token, sig string) (string, error) {
	u, err := url.Parse(c.cfg.UsherEndpoint)
	if err != nil {
		return "", fmt.Errorf("parse usher endpoint: %w", err)
	}
	u.Path = "/api/channel/hls/" + strings.ToLower(login) + ".m3u8"

	v := url.Values{}
	v.Set("token", token)
	v.Set("sig", sig)
	v.Set("allow_source", "true")
	v.Set("allow_audio_only", "true")
	v.Set("playlist_include_framerate", "true")
	v.Set("fast_bread", "true")
	v.Set("player", "twitchweb")
	v.Set("p", strconv.Itoa(1000000+rand.IntN(9000000)))
	u.RawQuery = v.Encode()
	return u.String(), nil
}

// redactQuery strips query parameters so signed tokens never reach logs or
// error chains.
func redactQuery(rawURL string) string {
	if idx := strings.IndexByte(rawURL, '?'); idx >= 0 {
		return rawURL[:idx]
	}
	return rawURL
}

// absolutizeURL converts a relative variant URI to absolute based on the
// playlist URL. Usher normally emits absolute URIs already.
func absolutizeURL(playlistURL, uri string) string {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}
	base, err := url.Parse(playlistURL)
	if err != nil {
		return uri
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return base.ResolveReference(ref).String()
}
