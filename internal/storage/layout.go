// Package storage manages the on-disk layout of recordings: output
// directory naming, segment numbering scans for resume, atomic moves from
// the staging area into the output directory, and cleanup of staging
// directories left behind by crashed sessions.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BufferDirPrefix prefixes every session staging directory created under
// the temp dir. Cleanup relies on it to find leftovers from crashed runs.
const BufferDirPrefix = "vodarr-buffer-"

// BuildOutputDirName returns the directory name for a recording:
// YYYY-MM-DD_<title>_<vodID>, with filesystem-hostile characters replaced.
// The vodID component is omitted while the broadcast has no archive
// identity yet.
func BuildOutputDirName(title string, startedAt time.Time, vodID string) string {
	parts := []string{startedAt.Format("2006-01-02")}
	if t := sanitizeFileName(title); t != "" {
		parts = append(parts, t)
	}
	if vodID != "" {
		parts = append(parts, sanitizeFileName(vodID))
	}
	return strings.Join(parts, "_")
}

// sanitizeFileName replaces characters that are unsafe in directory names
// on common filesystems with underscores and trims trailing dots and
// spaces. Unicode text passes through unchanged.
func sanitizeFileName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
	return strings.Trim(mapped, " .")
}

// HighestSegmentID scans dir for zero-padded segment files (NNNNN.ts) and
// returns the highest id found, or -1 when the directory is missing or
// holds none. Names that do not round-trip through the segment format are
// ignored.
func HighestSegmentID(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return -1, nil
		}
		return -1, fmt.Errorf("reading output directory: %w", err)
	}

	highest := -1
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base, ok := strings.CutSuffix(entry.Name(), ".ts")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(base)
		if err != nil || base != fmt.Sprintf("%05d", id) {
			continue
		}
		if id > highest {
			highest = id
		}
	}
	return highest, nil
}

// CleanupOrphanedBuffers removes staging directories under baseDir whose
// modification time is older than maxAge. A session removes its own
// staging directory on exit, so anything old enough to match here was left
// by a crash. Returns the number of directories removed.
func CleanupOrphanedBuffers(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading temp directory: %w", err)
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), BufferDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to remove orphaned buffer directory",
				slog.String("path", path),
				slog.Any("error", err))
			continue
		}
		logger.Info("removed orphaned buffer directory",
			slog.String("path", path),
			slog.Duration("age", time.Since(info.ModTime())))
		removed++
	}
	return removed, nil
}
