// Package watcher monitors configured channels and records their broadcasts.
// Each channel that goes live gets its own capture session; finished sessions
// are written back to the recording catalog.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/vodarr/internal/capture"
	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/repository"
	"github.com/jmylchreest/vodarr/internal/twitch"
)

// defaultSchedule checks every minute.
const defaultSchedule = "* * * * *"

// persistTimeout bounds catalog writes that must land even while the
// watcher context is already cancelled during shutdown.
const persistTimeout = 10 * time.Second

// SessionFactory builds a capture session for a channel. The watcher owns
// the returned session until Run finishes.
type SessionFactory func(channel string) (*capture.Session, error)

// Config holds the settings for a watcher.
type Config struct {
	// Channels lists the broadcaster logins to monitor.
	Channels []string

	// Schedule is a standard 5-field cron expression for the check
	// cadence. Empty means every minute.
	Schedule string

	// Recordings is the catalog the watcher records session outcomes in.
	Recordings repository.RecordingRepository

	// Platform answers the is-it-live check before a session is spawned.
	Platform capture.Platform

	// NewSession builds the capture session for a live channel.
	NewSession SessionFactory

	Logger *slog.Logger
}

// Watcher checks channels on a cron cadence and runs one capture session
// per live broadcast.
type Watcher struct {
	mu sync.Mutex

	channels   []string
	schedule   cron.Schedule
	recordings repository.RecordingRepository
	platform   capture.Platform
	newSession SessionFactory
	logger     *slog.Logger

	active map[string]*capture.Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher from cfg.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("watcher: no channels configured")
	}
	if cfg.Recordings == nil {
		return nil, fmt.Errorf("watcher: recordings repository is required")
	}
	if cfg.Platform == nil {
		return nil, fmt.Errorf("watcher: platform client is required")
	}
	if cfg.NewSession == nil {
		return nil, fmt.Errorf("watcher: session factory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	expr := cfg.Schedule
	if expr == "" {
		expr = defaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("watcher: invalid schedule %q: %w", expr, err)
	}

	channels := make([]string, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, strings.ToLower(ch))
	}

	return &Watcher{
		channels:   channels,
		schedule:   schedule,
		recordings: cfg.Recordings,
		platform:   cfg.Platform,
		newSession: cfg.NewSession,
		logger:     cfg.Logger.With(slog.String("component", "watcher")),
		active:     make(map[string]*capture.Session),
	}, nil
}

// Start begins the watcher's background check loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx != nil {
		return fmt.Errorf("watcher already started")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Info("watcher started",
		slog.Int("channels", len(w.channels)),
		slog.Time("next_check", w.schedule.Next(time.Now())))

	return nil
}

// Stop cancels the check loop and waits for in-flight capture sessions to
// wind down. Sessions honor cancellation at pass boundaries.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	w.ctx = nil
	w.cancel = nil
	w.mu.Unlock()

	w.logger.Info("watcher stopped")
}

// Sessions returns status snapshots of the active capture sessions,
// ordered by channel.
func (w *Watcher) Sessions() []capture.Status {
	w.mu.Lock()
	sessions := make([]*capture.Session, 0, len(w.active))
	for _, s := range w.active {
		sessions = append(sessions, s)
	}
	w.mu.Unlock()

	statuses := make([]capture.Status, 0, len(sessions))
	for _, s := range sessions {
		statuses = append(statuses, s.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Channel < statuses[j].Channel
	})
	return statuses
}

// watchLoop checks all channels immediately, then on the cron cadence.
func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	w.checkAll(w.ctx)

	for {
		next := w.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-w.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			w.checkAll(w.ctx)
		}
	}
}

// checkAll runs one check pass over every configured channel.
func (w *Watcher) checkAll(ctx context.Context) {
	for _, channel := range w.channels {
		if ctx.Err() != nil {
			return
		}
		if err := w.checkChannel(ctx, channel); err != nil {
			w.logger.Error("channel check failed",
				slog.String("channel", channel),
				slog.Any("error", err))
		}
	}
}

// checkChannel starts a capture session when the channel is live and its
// broadcast has not been recorded yet.
func (w *Watcher) checkChannel(ctx context.Context, channel string) error {
	w.mu.Lock()
	_, running := w.active[channel]
	w.mu.Unlock()
	if running {
		w.logger.Debug("session already active", slog.String("channel", channel))
		return nil
	}

	info, err := w.platform.StreamInfo(ctx, channel)
	if err != nil {
		if errors.Is(err, twitch.ErrStreamOffline) {
			w.logger.Debug("channel is offline", slog.String("channel", channel))
			return nil
		}
		return fmt.Errorf("checking channel: %w", err)
	}

	existing, err := w.recordings.GetByStreamID(ctx, info.ID)
	if err != nil {
		return err
	}
	if existing != nil && (existing.IsActive() || existing.Status == models.RecordingStatusCompleted) {
		w.logger.Debug("broadcast already recorded",
			slog.String("channel", channel),
			slog.String("stream_id", info.ID),
			slog.String("status", string(existing.Status)))
		return nil
	}

	rec := &models.Recording{
		ChannelLogin: channel,
		StreamID:     info.ID,
		Title:        info.Title,
		GameName:     info.GameName,
		StartedAt:    info.CreatedAt,
		Status:       models.RecordingStatusPending,
	}
	if err := w.recordings.Create(ctx, rec); err != nil {
		return err
	}

	session, err := w.newSession(channel)
	if err != nil {
		rec.MarkFailed(err)
		w.persist(rec)
		return fmt.Errorf("creating session: %w", err)
	}

	w.mu.Lock()
	w.active[channel] = session
	w.mu.Unlock()

	w.logger.Info("channel went live, starting capture",
		slog.String("channel", channel),
		slog.String("title", info.Title),
		slog.String("stream_id", info.ID))

	w.wg.Add(1)
	go w.runSession(channel, rec, session)
	return nil
}

// runSession drives one capture session to completion and records its
// outcome in the catalog.
func (w *Watcher) runSession(channel string, rec *models.Recording, session *capture.Session) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		delete(w.active, channel)
		w.mu.Unlock()
	}()

	rec.MarkRecording()
	w.persist(rec)

	err := session.Run(w.ctx)

	st := session.Status()
	rec.VODID = st.VODID
	rec.OutputDir = st.OutputDir
	rec.SegmentCount = st.CompletedSegments

	switch {
	case err == nil:
		rec.MarkCompleted(st.CompletedSegments)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		rec.MarkInterrupted()
	default:
		rec.MarkFailed(err)
	}
	w.persist(rec)

	w.logger.Info("capture session finished",
		slog.String("channel", channel),
		slog.String("status", string(rec.Status)),
		slog.Int("segments", rec.SegmentCount))
}

// persist writes rec with its own deadline. Session outcomes must reach
// the catalog even when the watcher context is already cancelled.
func (w *Watcher) persist(rec *models.Recording) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := w.recordings.Update(ctx, rec); err != nil {
		w.logger.Error("failed to persist recording state",
			slog.String("channel", rec.ChannelLogin),
			slog.String("status", string(rec.Status)),
			slog.Any("error", err))
	}
}
