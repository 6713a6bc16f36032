package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOutputDirName(t *testing.T) {
	startedAt := time.Date(2026, 8, 23, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		title string
		vodID string
		want  string
	}{
		{"with archive identity", "Speedrun Sunday", "2280123456", "2026-08-23_Speedrun Sunday_2280123456"},
		{"without archive identity", "Speedrun Sunday", "", "2026-08-23_Speedrun Sunday"},
		{"hostile characters", `24/7 "Marathon": part?2`, "123", "2026-08-23_24_7 _Marathon__ part_2_123"},
		{"trailing dots and spaces", "stream... ", "123", "2026-08-23_stream_123"},
		{"empty title", "", "123", "2026-08-23_123"},
		{"title sanitizes to nothing", "...", "", "2026-08-23"},
		{"unicode preserved", "日本語配信", "", "2026-08-23_日本語配信"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildOutputDirName(tt.title, startedAt, tt.vodID))
		})
	}
}

func TestHighestSegmentID(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		id, err := HighestSegmentID(filepath.Join(t.TempDir(), "nope"))
		require.NoError(t, err)
		assert.Equal(t, -1, id)
	})

	t.Run("empty directory", func(t *testing.T) {
		id, err := HighestSegmentID(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, -1, id)
	})

	t.Run("highest among segment files", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"00000.ts", "00001.ts", "00007.ts"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("ts"), 0640))
		}
		// Names that are not zero-padded segment files must be ignored.
		for _, name := range []string{"index.m3u8", "7.ts", "000ab.ts", "00002.ts.tmp", "-0001.ts"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0640))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "00099.ts"), 0750))

		id, err := HighestSegmentID(dir)
		require.NoError(t, err)
		assert.Equal(t, 7, id)
	})
}

func TestCleanupOrphanedBuffers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("missing base directory", func(t *testing.T) {
		removed, err := CleanupOrphanedBuffers(logger, filepath.Join(t.TempDir(), "nope"), time.Hour)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("removes only stale buffer directories", func(t *testing.T) {
		base := t.TempDir()
		stale := filepath.Join(base, BufferDirPrefix+"40000001")
		fresh := filepath.Join(base, BufferDirPrefix+"40000002")
		unrelated := filepath.Join(base, "downloads")
		require.NoError(t, os.Mkdir(stale, 0750))
		require.NoError(t, os.Mkdir(fresh, 0750))
		require.NoError(t, os.Mkdir(unrelated, 0750))
		require.NoError(t, os.WriteFile(filepath.Join(stale, "00000.ts"), []byte("ts"), 0640))
		require.NoError(t, os.WriteFile(filepath.Join(base, BufferDirPrefix+"notadir"), []byte("x"), 0640))

		old := time.Now().Add(-48 * time.Hour)
		require.NoError(t, os.Chtimes(stale, old, old))
		require.NoError(t, os.Chtimes(unrelated, old, old))

		removed, err := CleanupOrphanedBuffers(logger, base, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		assert.NoDirExists(t, stale)
		assert.DirExists(t, fresh)
		assert.DirExists(t, unrelated)
		assert.FileExists(t, filepath.Join(base, BufferDirPrefix+"notadir"))
	})
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Speedrun Sunday", "Speedrun Sunday"},
		{"path separators", `a/b\c`, "a_b_c"},
		{"reserved punctuation", `t:i*t?l"e<1>|2`, "t_i_t_l_e_1__2"},
		{"control characters", "a\x00b\tc", "a_b_c"},
		{"trailing dots and spaces", " title.. ", "title"},
		{"unicode", "日本語 🎮", "日本語 🎮"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFileName(tt.input))
		})
	}
}
