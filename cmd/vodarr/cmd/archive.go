package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vodarr/internal/capture"
	"github.com/jmylchreest/vodarr/internal/config"
	"github.com/jmylchreest/vodarr/internal/twitch"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <channel>",
	Short: "Record a channel's live broadcast",
	Long: `Record a single live broadcast from start to finish.

The channel must be live. Capture runs until the broadcast ends, then the
finished recording is left in the recordings directory, named after the
broadcast. Interrupting with Ctrl-C keeps the segments captured so far;
re-running the command against the same broadcast resumes after the last
completed segment.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveCmd.Flags().String("quality", "", "stream quality (best, worst, or a variant name like 720p60)")
	archiveCmd.Flags().String("data-dir", "", "base directory recordings are written under")
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config and environment only when set explicitly.
	if cmd.Flags().Changed("quality") {
		cfg.Capture.Quality, _ = cmd.Flags().GetString("quality")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.BaseDir, _ = cmd.Flags().GetString("data-dir")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	channel := strings.ToLower(args[0])
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	session, err := newCaptureSession(cfg, newTwitchClient(cfg, logger), channel, logger)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	err = session.Run(ctx)
	st := session.Status()

	switch {
	case err == nil:
		logger.Info("broadcast captured",
			slog.String("channel", channel),
			slog.String("title", st.Title),
			slog.String("output_dir", st.OutputDir),
			slog.Int("segments", st.CompletedSegments))
	case errors.Is(err, context.Canceled):
		logger.Info("capture interrupted",
			slog.String("channel", channel),
			slog.String("output_dir", st.OutputDir),
			slog.Int("segments", st.CompletedSegments))
	default:
		return fmt.Errorf("capturing %s: %w", channel, err)
	}
	return nil
}

// newTwitchClient builds the shared gateway client from cfg.
func newTwitchClient(cfg *config.Config, logger *slog.Logger) *twitch.Client {
	return twitch.New(twitch.Config{
		ClientID:        cfg.Twitch.ClientID,
		OAuthToken:      cfg.Twitch.OAuthToken,
		GQLEndpoint:     cfg.Twitch.GQLEndpoint,
		UsherEndpoint:   cfg.Twitch.UsherEndpoint,
		Timeout:         cfg.Twitch.Timeout,
		MaxResponseSize: cfg.Twitch.MaxResponseSize.Bytes(),
		Logger:          logger,
	})
}

// newCaptureSession wires a capture session for channel. Each session gets
// its own edge client; the session closes it when Run returns.
func newCaptureSession(cfg *config.Config, client *twitch.Client, channel string, logger *slog.Logger) (*capture.Session, error) {
	edge := twitch.NewEdgeClient("edge-"+channel, twitch.EdgeConfig{
		Timeout:         cfg.Capture.DownloadTimeout,
		MaxResponseSize: cfg.Twitch.MaxResponseSize.Bytes(),
		Logger:          logger,
	})

	return capture.New(capture.Config{
		Channel:          channel,
		Quality:          cfg.Capture.Quality,
		RecordingsDir:    cfg.Storage.RecordingsPath(),
		TempDir:          cfg.Storage.TempDir,
		PassInterval:     cfg.Capture.PassInterval,
		QuietPeriod:      cfg.Capture.QuietPeriod,
		StartupBuffer:    cfg.Capture.StartupBuffer,
		ManifestAttempts: cfg.Capture.ManifestAttempts,
		SegmentAttempts:  cfg.Capture.SegmentAttempts,
		Platform:         client,
		Edge:             edge,
		Logger:           logger,
	})
}
