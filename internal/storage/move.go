package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SafeMove moves src to dst, creating dst's parent directory if needed.
// It tries a direct rename first (atomic on the same filesystem) and falls
// back to copy-then-rename when src and dst live on different filesystems,
// so a partially written file is never visible at dst.
func SafeMove(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	return copyThenRename(src, dst)
}

// copyThenRename copies src to a temporary name beside dst, renames it
// into place, then removes src.
func copyThenRename(src, dst string) error {
	tempName := fmt.Sprintf(".%s.%s.tmp", filepath.Base(dst), randomHex(8))
	tempPath := filepath.Join(filepath.Dir(dst), tempName)

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer srcFile.Close()

	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	_, err = io.Copy(tempFile, srcFile)
	closeErr := tempFile.Close()

	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("copying to temp file: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tempPath, dst); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("removing source file: %w", err)
	}
	return nil
}

// MoveContents moves every entry of srcDir into dstDir, then removes the
// emptied srcDir. The recording layout keeps segment files flat, so
// entries are plain files and SafeMove handles each one.
func MoveContents(srcDir, dstDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("reading source directory: %w", err)
	}

	if err := os.MkdirAll(dstDir, 0750); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	for _, entry := range entries {
		src := filepath.Join(srcDir, entry.Name())
		dst := filepath.Join(dstDir, entry.Name())
		if err := SafeMove(src, dst); err != nil {
			return fmt.Errorf("moving %s: %w", entry.Name(), err)
		}
	}

	if err := os.Remove(srcDir); err != nil {
		return fmt.Errorf("removing source directory: %w", err)
	}
	return nil
}

// randomHex generates a random hex string of the specified length.
func randomHex(n int) string {
	bytes := make([]byte, n/2+1)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to less random but still unique
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(bytes)[:n]
}
