package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/vodarr/internal/capture"
	"github.com/jmylchreest/vodarr/internal/config"
	"github.com/jmylchreest/vodarr/internal/database"
	internalhttp "github.com/jmylchreest/vodarr/internal/http"
	"github.com/jmylchreest/vodarr/internal/http/handlers"
	"github.com/jmylchreest/vodarr/internal/repository"
	"github.com/jmylchreest/vodarr/internal/storage"
	"github.com/jmylchreest/vodarr/internal/version"
	"github.com/jmylchreest/vodarr/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch channels and record their broadcasts",
	Long: `Run as a daemon that monitors the configured channels and records
every broadcast they go live with.

Channels are checked on the configured schedule (default every minute).
Each live broadcast gets its own capture session and an entry in the
recording catalog. With server.enabled the daemon also serves the
read-only status API.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSlice("channels", nil, "channel logins to watch (comma separated)")
	watchCmd.Flags().String("schedule", "", "cron expression for the live check cadence")
	watchCmd.Flags().String("database", "", "database DSN")
	watchCmd.Flags().String("data-dir", "", "base directory recordings are written under")
	watchCmd.Flags().Bool("api", false, "serve the status API")
	watchCmd.Flags().Int("port", 0, "status API port")
}

// applyWatchFlags overrides config values with flags the user set
// explicitly, preserving flag > env > config file precedence.
func applyWatchFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("channels") {
		cfg.Watcher.Channels, _ = flags.GetStringSlice("channels")
	}
	if flags.Changed("schedule") {
		cfg.Watcher.Schedule, _ = flags.GetString("schedule")
	}
	if flags.Changed("database") {
		cfg.Database.DSN, _ = flags.GetString("database")
	}
	if flags.Changed("data-dir") {
		cfg.Storage.BaseDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("api") {
		cfg.Server.Enabled, _ = flags.GetBool("api")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyWatchFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if len(cfg.Watcher.Channels) == 0 {
		return fmt.Errorf("no channels configured: set watcher.channels or pass --channels")
	}

	logger := slog.Default()

	// Remove broadcast buffers orphaned by a previous crash.
	tempDir := cfg.Storage.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	removed, err := storage.CleanupOrphanedBuffers(logger, tempDir, cfg.Storage.BufferCleanupAge.Duration())
	if err != nil {
		logger.Warn("failed to clean orphaned buffer directories", slog.Any("error", err))
	} else if removed > 0 {
		logger.Info("cleaned orphaned buffer directories", slog.Int("removed", removed))
	}

	// Initialize database
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	recordings := repository.NewRecordingRepository(db.DB)

	// Recordings left mid-capture by a previous run can never complete.
	recovered, err := recordings.RecoverStale(ctx)
	if err != nil {
		return fmt.Errorf("recovering stale recordings: %w", err)
	}
	if recovered > 0 {
		logger.Info("marked stale recordings as interrupted", slog.Int64("recordings", recovered))
	}

	client := newTwitchClient(cfg, logger)

	w, err := watcher.New(watcher.Config{
		Channels:   cfg.Watcher.Channels,
		Schedule:   cfg.Watcher.Schedule,
		Recordings: recordings,
		Platform:   client,
		NewSession: func(channel string) (*capture.Session, error) {
			return newCaptureSession(cfg, client, channel, logger)
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	logger.Info("vodarr watching",
		slog.Int("channels", len(cfg.Watcher.Channels)),
		slog.String("schedule", cfg.Watcher.Schedule),
		slog.String("version", version.Version),
	)

	if cfg.Server.Enabled {
		srv := internalhttp.NewServer(cfg.Server, logger, version.Version)

		healthHandler := handlers.NewHealthHandler(version.Version).
			WithDB(db).
			WithRecordingsDir(cfg.Storage.RecordingsPath())
		healthHandler.Register(srv.API())

		sessionHandler := handlers.NewSessionHandler(w)
		sessionHandler.Register(srv.API())

		recordingHandler := handlers.NewRecordingHandler(recordings)
		recordingHandler.Register(srv.API())

		err = srv.ListenAndServe(ctx)
	} else {
		<-ctx.Done()
	}

	w.Stop()
	return err
}
