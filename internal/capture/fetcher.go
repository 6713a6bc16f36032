package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jmylchreest/vodarr/internal/storage"
	"github.com/jmylchreest/vodarr/internal/twitch"
)

// partCopyBufferSize is the read buffer used when streaming part bodies to
// the staging file.
const partCopyBufferSize = 256 * 1024

// defaultSegmentAttempts bounds how often a segment download is retried
// before the segment is abandoned.
const defaultSegmentAttempts = 5

// errPartStatus marks a part the edge refused to serve. The segment it
// belongs to is abandoned without retrying: the edge has already dropped
// the part and it will not come back.
var errPartStatus = errors.New("part rejected by edge")

// PartDownloader fetches a single media part and returns the raw response.
// The caller inspects the status code and consumes the body.
type PartDownloader interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Fetcher downloads queued segments part by part into a staging directory
// and promotes finished files into the recording output directory.
type Fetcher struct {
	edge       PartDownloader
	stagingDir string
	attempts   int
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher writing staged segments under stagingDir.
// The directory must already exist. attempts <= 0 selects the default
// budget of five.
func NewFetcher(edge PartDownloader, stagingDir string, attempts int, logger *slog.Logger) *Fetcher {
	if attempts <= 0 {
		attempts = defaultSegmentAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		edge:       edge,
		stagingDir: stagingDir,
		attempts:   attempts,
		logger:     logger,
	}
}

// DownloadSegment writes every part of seg to a staging file in manifest
// order, then moves the finished file to destDir. It reports whether the
// segment was promoted:
//
//   - (true, nil): the segment file is in destDir.
//   - (false, nil): the segment was abandoned, either because the edge
//     refused a part or because the attempt budget ran out. The recording
//     continues with a gap at this id.
//   - (false, err): the failure is not local to this segment and the
//     session must stop.
//
// Each attempt rewrites the staging file from the start, so a promoted
// file never contains bytes from a failed attempt.
func (f *Fetcher) DownloadSegment(ctx context.Context, seg *Segment, destDir string) (bool, error) {
	stagingPath := filepath.Join(f.stagingDir, seg.FileName())

	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		err := f.writeSegment(ctx, seg, stagingPath)
		if err == nil {
			if err := storage.SafeMove(stagingPath, filepath.Join(destDir, seg.FileName())); err != nil {
				return false, fmt.Errorf("relocate segment %d: %w", seg.ID, err)
			}
			f.logger.Debug("segment captured",
				slog.Int("segment", seg.ID),
				slog.Int("parts", len(seg.Parts)),
				slog.Int("attempt", attempt))
			return true, nil
		}

		if errors.Is(err, errPartStatus) {
			f.logger.Warn("abandoning segment",
				slog.Int("segment", seg.ID),
				slog.Any("error", err))
			return false, nil
		}

		if !twitch.IsTransient(err) || ctx.Err() != nil {
			return false, fmt.Errorf("download segment %d: %w", seg.ID, err)
		}

		lastErr = err
		f.logger.Warn("segment download failed",
			slog.Int("segment", seg.ID),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}

	f.logger.Error("abandoning segment after repeated failures",
		slog.Int("segment", seg.ID),
		slog.Int("attempts", f.attempts),
		slog.Any("error", lastErr))
	return false, nil
}

// writeSegment downloads all parts of seg into the staging file at path,
// truncating whatever a previous attempt left there.
func (f *Fetcher) writeSegment(ctx context.Context, seg *Segment, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}

	for i, part := range seg.Parts {
		if err := f.writePart(ctx, file, i, part); err != nil {
			file.Close()
			return err
		}
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}
	return nil
}

func (f *Fetcher) writePart(ctx context.Context, file *os.File, idx int, part Part) error {
	resp, err := f.edge.Get(ctx, part.URL)
	if err != nil {
		return fmt.Errorf("fetch part %d: %w", idx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("part %d: status %d: %w", idx, resp.StatusCode, errPartStatus)
	}

	buf := make([]byte, partCopyBufferSize)
	if _, err := io.CopyBuffer(file, resp.Body, buf); err != nil {
		return fmt.Errorf("stream part %d: %w", idx, err)
	}
	return nil
}
