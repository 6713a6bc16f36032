package watcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/vodarr/internal/capture"
	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/repository"
	"github.com/jmylchreest/vodarr/internal/twitch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubManifest keeps a session in its steady loop: one part, never a
// complete segment, no new announcements after the first pass.
const stubManifest = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-PROGRAM-DATE-TIME:2026-08-23T14:00:00.000Z
#EXTINF:2.000,live
https://video-edge.test/part-0.ts
`

type stubPlatform struct {
	mu        sync.Mutex
	broadcast twitch.Broadcast
	infoErr   error
	infoCalls int
}

func (p *stubPlatform) StreamInfo(ctx context.Context, login string) (*twitch.Broadcast, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infoCalls++
	if p.infoErr != nil {
		return nil, p.infoErr
	}
	b := p.broadcast
	b.Login = login
	return &b, nil
}

func (p *stubPlatform) BroadcastVODID(ctx context.Context, login string, startedAt time.Time) (string, error) {
	return "", nil
}

func (p *stubPlatform) IndexURL(ctx context.Context, login, quality string) (string, error) {
	return "https://usher.test/api/channel/hls/" + login + ".m3u8", nil
}

func (p *stubPlatform) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.infoCalls
}

// stubEdge without a manifest reports the playlist gone, ending sessions
// on their first pass.
type stubEdge struct {
	mu       sync.Mutex
	manifest []byte
	closed   bool
}

func (e *stubEdge) FetchManifest(ctx context.Context, url string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.manifest == nil {
		return nil, fmt.Errorf("fetch manifest: %w", twitch.ErrNotFound)
	}
	return e.manifest, nil
}

func (e *stubEdge) Get(ctx context.Context, url string) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func (e *stubEdge) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *stubEdge) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func setupWatcherDB(t *testing.T) repository.RecordingRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Recording{}))

	return repository.NewRecordingRepository(db)
}

func testBroadcast() twitch.Broadcast {
	return twitch.Broadcast{
		ID:        "40000001",
		Login:     "streamer",
		Title:     "Watcher Test",
		GameName:  "Software and Game Development",
		CreatedAt: time.Now().UTC().Add(-10 * time.Minute),
	}
}

func newTestWatcher(t *testing.T, platform *stubPlatform, edge *stubEdge, repo repository.RecordingRepository) *Watcher {
	t.Helper()

	recordingsDir := t.TempDir()
	tempDir := t.TempDir()
	factory := func(channel string) (*capture.Session, error) {
		return capture.New(capture.Config{
			Channel:       channel,
			RecordingsDir: recordingsDir,
			TempDir:       tempDir,
			PassInterval:  10 * time.Millisecond,
			QuietPeriod:   time.Minute,
			Platform:      platform,
			Edge:          edge,
			Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
	}

	w, err := New(Config{
		Channels:   []string{"Streamer"},
		Schedule:   "* * * * *",
		Recordings: repo,
		Platform:   platform,
		NewSession: factory,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return w
}

func TestNew_Validation(t *testing.T) {
	repo := setupWatcherDB(t)
	platform := &stubPlatform{}
	factory := func(string) (*capture.Session, error) { return nil, nil }

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "no channels",
			cfg:     Config{Recordings: repo, Platform: platform, NewSession: factory},
			wantErr: "no channels",
		},
		{
			name:    "missing repository",
			cfg:     Config{Channels: []string{"a"}, Platform: platform, NewSession: factory},
			wantErr: "recordings repository is required",
		},
		{
			name:    "missing platform",
			cfg:     Config{Channels: []string{"a"}, Recordings: repo, NewSession: factory},
			wantErr: "platform client is required",
		},
		{
			name:    "missing factory",
			cfg:     Config{Channels: []string{"a"}, Recordings: repo, Platform: platform},
			wantErr: "session factory is required",
		},
		{
			name: "invalid schedule",
			cfg: Config{
				Channels: []string{"a"}, Recordings: repo, Platform: platform,
				NewSession: factory, Schedule: "every minute",
			},
			wantErr: "invalid schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatcher_RecordsLiveChannel(t *testing.T) {
	repo := setupWatcherDB(t)
	platform := &stubPlatform{broadcast: testBroadcast()}
	edge := &stubEdge{} // playlist gone: the session ends on its first pass

	w := newTestWatcher(t, platform, edge, repo)
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.Eventually(t, func() bool {
		recs, err := repo.ListRecent(ctx, 10)
		return err == nil && len(recs) == 1 && recs[0].IsFinished()
	}, 5*time.Second, 10*time.Millisecond)

	recs, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, models.RecordingStatusCompleted, rec.Status)
	assert.Equal(t, "streamer", rec.ChannelLogin, "channel logins are normalized to lower case")
	assert.Equal(t, "40000001", rec.StreamID)
	assert.Equal(t, "Watcher Test", rec.Title)
	assert.Empty(t, rec.VODID)
	assert.NotEmpty(t, rec.OutputDir)
	assert.Zero(t, rec.SegmentCount)
	require.NotNil(t, rec.EndedAt)
}

func TestWatcher_SkipsOfflineChannel(t *testing.T) {
	repo := setupWatcherDB(t)
	platform := &stubPlatform{
		infoErr: fmt.Errorf("resolving stream: %w", twitch.ErrStreamOffline),
	}

	w := newTestWatcher(t, platform, &stubEdge{}, repo)
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))

	require.Eventually(t, func() bool {
		return platform.calls() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	w.Stop()

	recs, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, w.Sessions())
}

func TestWatcher_SkipsRecordedBroadcast(t *testing.T) {
	repo := setupWatcherDB(t)
	platform := &stubPlatform{broadcast: testBroadcast()}
	ctx := context.Background()

	done := &models.Recording{
		ChannelLogin: "streamer",
		StreamID:     "40000001",
		StartedAt:    time.Now().Add(-10 * time.Minute),
	}
	done.MarkCompleted(12)
	require.NoError(t, repo.Create(ctx, done))

	w := newTestWatcher(t, platform, &stubEdge{}, repo)
	require.NoError(t, w.Start(ctx))

	require.Eventually(t, func() bool {
		return platform.calls() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	w.Stop()

	recs, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1, "the finished broadcast must not be re-recorded")
	assert.Equal(t, done.ID, recs[0].ID)
}

func TestWatcher_RetriesFailedBroadcast(t *testing.T) {
	repo := setupWatcherDB(t)
	platform := &stubPlatform{broadcast: testBroadcast()}
	ctx := context.Background()

	failed := &models.Recording{
		ChannelLogin: "streamer",
		StreamID:     "40000001",
		StartedAt:    time.Now().Add(-10 * time.Minute),
	}
	failed.MarkFailed(fmt.Errorf("manifest fetch exhausted"))
	require.NoError(t, repo.Create(ctx, failed))

	w := newTestWatcher(t, platform, &stubEdge{}, repo)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.Eventually(t, func() bool {
		recs, err := repo.ListRecent(ctx, 10)
		return err == nil && len(recs) == 2
	}, 5*time.Second, 10*time.Millisecond)

	count, err := repo.CountByStatus(ctx, models.RecordingStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "the failed attempt stays in the catalog")
}

func TestWatcher_GracefulStopInterruptsSessions(t *testing.T) {
	repo := setupWatcherDB(t)
	platform := &stubPlatform{broadcast: testBroadcast()}
	edge := &stubEdge{manifest: []byte(stubManifest)}

	w := newTestWatcher(t, platform, edge, repo)
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx), "starting twice must fail")

	require.Eventually(t, func() bool {
		sessions := w.Sessions()
		return len(sessions) == 1 && sessions[0].State == capture.StateRecording
	}, 5*time.Second, 10*time.Millisecond)

	sessions := w.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "streamer", sessions[0].Channel)

	w.Stop()

	assert.Empty(t, w.Sessions(), "stop waits for sessions to unwind")
	assert.True(t, edge.isClosed())

	recs, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.RecordingStatusInterrupted, recs[0].Status)
}
