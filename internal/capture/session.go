package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/vodarr/internal/storage"
	"github.com/jmylchreest/vodarr/internal/twitch"
)

const (
	defaultPassInterval     = 4 * time.Second
	defaultQuietPeriod      = 20 * time.Second
	defaultStartupBuffer    = 120 * time.Second
	defaultManifestAttempts = 5
)

// Platform answers the API lookups a session needs: broadcast metadata,
// the paired archive id, and the media playlist URL for a quality.
type Platform interface {
	StreamInfo(ctx context.Context, login string) (*twitch.Broadcast, error)
	BroadcastVODID(ctx context.Context, login string, startedAt time.Time) (string, error)
	IndexURL(ctx context.Context, login, quality string) (string, error)
}

// Edge fetches media playlists and parts from the CDN edge serving the
// broadcast. The session owns the edge and closes it on exit.
type Edge interface {
	PartDownloader
	FetchManifest(ctx context.Context, url string) ([]byte, error)
	Close()
}

var (
	_ Platform = (*twitch.Client)(nil)
	_ Edge     = (*twitch.EdgeClient)(nil)
)

// State describes where a session is in its lifecycle.
type State string

const (
	// StatePending is set while the session resolves the broadcast.
	StatePending State = "pending"
	// StateBuffering is set while capturing ahead of the archive lookup.
	StateBuffering State = "buffering"
	// StateRecording is the steady capture loop.
	StateRecording State = "recording"
	// StateEnded means the broadcast finished and the recording is complete.
	StateEnded State = "ended"
	// StateInterrupted means the session was cancelled mid-capture.
	StateInterrupted State = "interrupted"
	// StateFailed means the session stopped on an error.
	StateFailed State = "failed"
)

// Status is a point-in-time snapshot of a running session.
type Status struct {
	Channel           string    `json:"channel"`
	State             State     `json:"state"`
	VODID             string    `json:"vod_id,omitempty"`
	Title             string    `json:"title,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	OutputDir         string    `json:"output_dir,omitempty"`
	Aligned           bool      `json:"aligned"`
	CurrentSegment    int       `json:"current_segment"`
	CompletedSegments int       `json:"completed_segments"`
	AbandonedSegments int       `json:"abandoned_segments"`
	LastAnnounce      time.Time `json:"last_announce"`
}

// Config holds the settings for a capture session.
type Config struct {
	// Channel is the login of the broadcaster to record.
	Channel string

	// Quality selects the stream variant ("best", "worst" or a name
	// like "720p60"). Empty means best.
	Quality string

	// RecordingsDir is the base directory recordings are written under.
	RecordingsDir string

	// TempDir is where the per-session staging directory is created.
	// Empty means the system temp dir.
	TempDir string

	// PassInterval is the cadence between capture passes (default 4s).
	PassInterval time.Duration

	// QuietPeriod is how long the session waits without new parts being
	// announced before treating the broadcast as ended (default 20s).
	QuietPeriod time.Duration

	// StartupBuffer is how long after broadcast start the archive lookup
	// is allowed to lag; younger streams are buffered until this age
	// before the lookup is retried (default 120s).
	StartupBuffer time.Duration

	// ManifestAttempts bounds manifest fetch retries within one pass.
	ManifestAttempts int

	// SegmentAttempts bounds download retries per segment.
	SegmentAttempts int

	Platform Platform
	Edge     Edge
	Logger   *slog.Logger
}

// Session captures one live broadcast from start to finish. Create it
// with New and drive it with Run; a Session is not reusable.
type Session struct {
	cfg      Config
	platform Platform
	edge     Edge
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time

	mu     sync.Mutex
	status Status

	// capture state, owned by Run
	broadcast    twitch.Broadcast
	vodID        string
	indexURL     string
	outputDir    string
	stagingDir   string
	queue        *SegmentList
	fetcher      *Fetcher
	processed    map[string]struct{}
	pending      []Part
	lastAnnounce time.Time
}

// New validates cfg and returns a Session ready to run.
func New(cfg Config) (*Session, error) {
	if cfg.Channel == "" {
		return nil, fmt.Errorf("capture: channel is required")
	}
	if cfg.Platform == nil {
		return nil, fmt.Errorf("capture: platform client is required")
	}
	if cfg.Edge == nil {
		return nil, fmt.Errorf("capture: edge client is required")
	}
	if cfg.RecordingsDir == "" {
		return nil, fmt.Errorf("capture: recordings directory is required")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.PassInterval <= 0 {
		cfg.PassInterval = defaultPassInterval
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = defaultQuietPeriod
	}
	if cfg.StartupBuffer <= 0 {
		cfg.StartupBuffer = defaultStartupBuffer
	}
	if cfg.ManifestAttempts <= 0 {
		cfg.ManifestAttempts = defaultManifestAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Session{
		cfg:      cfg,
		platform: cfg.Platform,
		edge:     cfg.Edge,
		logger: cfg.Logger.With(
			slog.String("component", "capture"),
			slog.String("channel", cfg.Channel)),
		now:       time.Now,
		status:    Status{Channel: cfg.Channel, State: StatePending},
		processed: make(map[string]struct{}),
	}, nil
}

// Status returns a snapshot of the session's progress. Safe to call from
// any goroutine while Run is active.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run records the broadcast until it ends, the announce stream goes
// quiet, or ctx is cancelled. Every error is wrapped in a *SessionError
// carrying the channel name.
func (s *Session) Run(ctx context.Context) error {
	defer s.cleanup()

	if err := s.setup(ctx); err != nil {
		s.finishState(err)
		return &SessionError{Channel: s.cfg.Channel, Err: err}
	}

	if err := s.run(ctx); err != nil {
		s.finishState(err)
		return &SessionError{Channel: s.cfg.Channel, Err: err}
	}

	s.setState(StateEnded)
	return nil
}

func (s *Session) cleanup() {
	if s.stagingDir != "" {
		if err := os.RemoveAll(s.stagingDir); err != nil {
			s.logger.Warn("failed to remove staging directory",
				slog.String("path", s.stagingDir),
				slog.Any("error", err))
		}
	}
	s.edge.Close()
}

// setup resolves the broadcast, its playlist and its archive identity,
// buffering the capture when the broadcast is too young for the archive
// API to have caught up.
func (s *Session) setup(ctx context.Context) error {
	info, err := s.platform.StreamInfo(ctx, s.cfg.Channel)
	if err != nil {
		return err
	}
	s.broadcast = *info
	s.broadcast.CreatedAt = wallClockUTC(s.broadcast.CreatedAt)

	s.mu.Lock()
	s.status.Title = s.broadcast.Title
	s.status.StartedAt = s.broadcast.CreatedAt
	s.mu.Unlock()

	elapsed := s.now().UTC().Sub(s.broadcast.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	s.logger.Debug("broadcast resolved",
		slog.String("stream_id", s.broadcast.ID),
		slog.String("title", s.broadcast.Title),
		slog.Duration("elapsed", elapsed))

	s.indexURL, err = s.platform.IndexURL(ctx, s.cfg.Channel, s.cfg.Quality)
	if err != nil {
		return err
	}

	s.vodID, err = s.platform.BroadcastVODID(ctx, s.cfg.Channel, s.broadcast.CreatedAt)
	if err != nil {
		return err
	}
	s.lastAnnounce = s.now()

	// A broadcast younger than the startup buffer may simply not have an
	// archive yet. Capture into a buffer directory while the archive API
	// catches up, then look again.
	if s.vodID == "" && elapsed < s.cfg.StartupBuffer {
		if err := s.bufferStream(ctx, elapsed); err != nil {
			return err
		}
		s.vodID, err = s.platform.BroadcastVODID(ctx, s.cfg.Channel, s.broadcast.CreatedAt)
		if err != nil {
			return err
		}
	}

	aligned := true
	if s.vodID == "" {
		// No archive exists, so there is nothing to stay aligned with.
		// Segments are numbered from wherever the capture starts.
		aligned = false
		if s.queue != nil {
			s.queue.DisableAlignment()
		}
		if s.outputDir == "" {
			s.outputDir = filepath.Join(s.cfg.RecordingsDir,
				storage.BuildOutputDirName(s.broadcast.Title, s.broadcast.CreatedAt, ""))
		}
		if err := os.MkdirAll(s.outputDir, 0750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		s.logger.Info("broadcast has no paired archive, disabling segment alignment")
	} else {
		vodDir := filepath.Join(s.cfg.RecordingsDir,
			storage.BuildOutputDirName(s.broadcast.Title, s.broadcast.CreatedAt, s.vodID))
		if s.outputDir != "" && s.outputDir != vodDir {
			// The buffered captures belong to the archive-named directory.
			if err := storage.MoveContents(s.outputDir, vodDir); err != nil {
				return fmt.Errorf("relocate buffered capture: %w", err)
			}
		} else if err := os.MkdirAll(vodDir, 0750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		s.outputDir = vodDir
		s.logger.Info("paired archive found", slog.String("vod_id", s.vodID))
	}

	// A queue from the buffering phase keeps its in-memory state; a fresh
	// one resumes from whatever an earlier run left in the output dir.
	if s.queue == nil {
		highest, err := storage.HighestSegmentID(s.outputDir)
		if err != nil {
			return err
		}
		if highest >= 0 {
			s.logger.Info("resuming interrupted capture", slog.Int("last_segment", highest))
		}
		s.queue = NewSegmentList(s.broadcast.CreatedAt, aligned, highest)
	}
	if err := s.initStaging(); err != nil {
		return err
	}

	s.mu.Lock()
	s.status.VODID = s.vodID
	s.status.OutputDir = s.outputDir
	s.status.Aligned = s.queue.Aligned()
	s.status.State = StateRecording
	s.mu.Unlock()

	s.logger.Info("capture session starting",
		slog.String("vod_id", s.vodID),
		slog.Bool("aligned", s.queue.Aligned()),
		slog.String("output_dir", s.outputDir))
	return nil
}

// initStaging creates the staging directory and fetcher once.
func (s *Session) initStaging() error {
	if s.fetcher != nil {
		return nil
	}
	s.stagingDir = filepath.Join(s.cfg.TempDir, storage.BufferDirPrefix+s.broadcast.ID)
	if err := os.MkdirAll(s.stagingDir, 0750); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	s.fetcher = NewFetcher(s.edge, s.stagingDir, s.cfg.SegmentAttempts, s.logger)
	return nil
}

// bufferStream captures passes until the broadcast is old enough for the
// archive lookup to be authoritative.
func (s *Session) bufferStream(ctx context.Context, elapsed time.Duration) error {
	s.setState(StateBuffering)
	s.logger.Info("broadcast just started, buffering until the archive api catches up",
		slog.Duration("remaining", s.cfg.StartupBuffer-elapsed))

	s.outputDir = filepath.Join(s.cfg.RecordingsDir,
		storage.BuildOutputDirName(s.broadcast.Title, s.broadcast.CreatedAt, ""))
	if err := os.MkdirAll(s.outputDir, 0750); err != nil {
		return fmt.Errorf("create buffer directory: %w", err)
	}

	s.queue = NewSegmentList(s.broadcast.CreatedAt, true, -1)
	if err := s.initStaging(); err != nil {
		return err
	}

	remaining := s.cfg.StartupBuffer - elapsed
	passes := int(remaining / s.cfg.PassInterval)
	for i := 0; i < passes; i++ {
		start := s.now()
		ended, err := s.pass(ctx)
		if err != nil {
			return err
		}
		if ended {
			// The broadcast died while buffering. Fall through to the
			// archive lookup; the main loop rediscovers the end.
			return nil
		}
		if err := s.sleepRemainder(ctx, start); err != nil {
			return err
		}
	}
	return sleepCtx(ctx, remaining%s.cfg.PassInterval)
}

// run is the steady capture loop.
func (s *Session) run(ctx context.Context) error {
	for {
		start := s.now()

		ended, err := s.pass(ctx)
		if err != nil {
			return err
		}
		if ended {
			s.logger.Info("channel is offline or stream ended")
			return s.flushFinal(ctx)
		}
		if s.now().Sub(s.lastAnnounce) > s.cfg.QuietPeriod {
			s.logger.Info("no new parts announced, assuming stream ended",
				slog.Duration("quiet", s.now().Sub(s.lastAnnounce)))
			return s.flushFinal(ctx)
		}

		if err := s.sleepRemainder(ctx, start); err != nil {
			return err
		}
	}
}

// pass fetches the manifest, queues new parts and downloads completed
// segments. It reports ended when the playlist has gone away.
func (s *Session) pass(ctx context.Context) (bool, error) {
	ended, err := s.fetchParts(ctx)
	if err != nil || ended {
		return ended, err
	}
	if err := s.enqueueParts(); err != nil {
		return false, err
	}
	if err := s.downloadCompleted(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.status.CurrentSegment = s.queue.CurrentID()
	s.status.LastAnnounce = s.lastAnnounce
	s.mu.Unlock()
	return false, nil
}

// fetchParts pulls the media playlist and ingests newly advertised parts.
// Transient fetch errors are retried within the attempt budget; a missing
// playlist means the broadcast ended.
func (s *Session) fetchParts(ctx context.Context) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.ManifestAttempts; attempt++ {
		data, err := s.edge.FetchManifest(ctx, s.indexURL)
		if err != nil {
			if errors.Is(err, twitch.ErrNotFound) {
				return true, nil
			}
			if twitch.IsTransient(err) && ctx.Err() == nil {
				s.logger.Debug("manifest fetch failed, retrying",
					slog.Int("attempt", attempt),
					slog.Any("error", err))
				lastErr = err
				continue
			}
			return false, fmt.Errorf("fetch manifest: %w", err)
		}

		parts, err := ParseManifest(data, s.indexURL)
		if err != nil {
			return false, fmt.Errorf("parse manifest: %w", err)
		}
		s.ingest(parts)
		return false, nil
	}
	return false, fmt.Errorf("%w: %w", ErrFetchExhausted, lastErr)
}

// ingest records parts not seen before. Parts are identified by URL, so
// re-advertised parts are ignored no matter how often they appear.
func (s *Session) ingest(parts []Part) {
	for _, p := range parts {
		if _, seen := s.processed[p.URL]; seen {
			continue
		}
		s.processed[p.URL] = struct{}{}
		s.pending = append(s.pending, p)
		s.lastAnnounce = s.now()
	}
}

// enqueueParts moves pending parts into the segment queue. Advertisement
// parts are dropped. While aligned, one part with an off-nominal duration
// is tolerated (the closing part of a broadcast is usually short), but a
// second one means the broadcast cannot be aligned and the capture stops.
func (s *Session) enqueueParts() error {
	anomalous := make(map[string]struct{})
	for _, part := range s.pending {
		if part.Label != labelLive {
			s.logger.Debug("blocking advertisement part", slog.String("url", part.URL))
			continue
		}

		if s.queue.Aligned() && part.Duration != partNominalDuration {
			s.logger.Debug("part has unsupported duration",
				slog.Duration("duration", part.Duration))
			anomalous[part.URL] = struct{}{}
		}
		if len(anomalous) > 1 {
			return fmt.Errorf("enqueue parts: %w", ErrUnsupportedPartDuration)
		}

		s.queue.AddPart(part)
	}
	s.pending = s.pending[:0]
	return nil
}

// downloadCompleted drains every full segment from the queue.
func (s *Session) downloadCompleted(ctx context.Context) error {
	for _, id := range s.queue.CompletedIDs() {
		seg, err := s.queue.PopSegment(id)
		if err != nil {
			return err
		}
		promoted, err := s.fetcher.DownloadSegment(ctx, seg, s.outputDir)
		if err != nil {
			return err
		}
		s.countSegment(promoted)
	}
	return nil
}

// flushFinal downloads the in-progress segment, full or not, so the tail
// of the broadcast is kept.
func (s *Session) flushFinal(ctx context.Context) error {
	cur := s.queue.CurrentID()
	if !s.queue.HasSegment(cur) {
		return nil
	}
	seg, err := s.queue.SegmentByID(cur)
	if err != nil {
		return err
	}

	s.logger.Debug("fetching final segment",
		slog.Int("segment", seg.ID),
		slog.Int("parts", len(seg.Parts)))
	promoted, err := s.fetcher.DownloadSegment(ctx, seg, s.outputDir)
	if err != nil {
		return err
	}
	s.countSegment(promoted)
	return nil
}

func (s *Session) countSegment(promoted bool) {
	s.mu.Lock()
	if promoted {
		s.status.CompletedSegments++
	} else {
		s.status.AbandonedSegments++
	}
	s.mu.Unlock()
}

// sleepRemainder pads a pass out to the configured interval.
func (s *Session) sleepRemainder(ctx context.Context, start time.Time) error {
	elapsed := s.now().Sub(start)
	if elapsed >= s.cfg.PassInterval {
		return ctx.Err()
	}
	return sleepCtx(ctx, s.cfg.PassInterval-elapsed)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.status.State = st
	s.mu.Unlock()
}

func (s *Session) finishState(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.setState(StateInterrupted)
		return
	}
	s.setState(StateFailed)
}

// sleepCtx sleeps for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
