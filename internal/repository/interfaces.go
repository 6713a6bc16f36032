// Package repository defines data access interfaces for vodarr entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"

	"github.com/jmylchreest/vodarr/internal/models"
)

// RecordingRepository defines operations for recording persistence.
type RecordingRepository interface {
	// Create creates a new recording.
	Create(ctx context.Context, rec *models.Recording) error
	// Update updates an existing recording.
	Update(ctx context.Context, rec *models.Recording) error
	// GetByID retrieves a recording by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Recording, error)
	// GetByStreamID retrieves the most recent recording for a broadcast.
	// Watch mode uses it to avoid recording the same broadcast twice.
	GetByStreamID(ctx context.Context, streamID string) (*models.Recording, error)
	// ListRecent retrieves recordings ordered by broadcast start, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.Recording, error)
	// CountByStatus returns the number of recordings with the given status.
	CountByStatus(ctx context.Context, status models.RecordingStatus) (int64, error)
	// RecoverStale marks recordings left active by a dead process as
	// interrupted. Run at startup before any session starts.
	RecoverStale(ctx context.Context) (int64, error)
}
