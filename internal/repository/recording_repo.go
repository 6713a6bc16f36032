package repository

import (
	"context"
	"fmt"

	"github.com/jmylchreest/vodarr/internal/models"
	"gorm.io/gorm"
)

// recordingRepo implements RecordingRepository using GORM.
type recordingRepo struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *gorm.DB) *recordingRepo {
	return &recordingRepo{db: db}
}

// Create creates a new recording.
func (r *recordingRepo) Create(ctx context.Context, rec *models.Recording) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("creating recording: %w", err)
	}
	return nil
}

// Update updates an existing recording.
func (r *recordingRepo) Update(ctx context.Context, rec *models.Recording) error {
	if err := r.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("updating recording: %w", err)
	}
	return nil
}

// GetByID retrieves a recording by ID.
func (r *recordingRepo) GetByID(ctx context.Context, id models.ULID) (*models.Recording, error) {
	var rec models.Recording
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recording by ID: %w", err)
	}
	return &rec, nil
}

// GetByStreamID retrieves the most recent recording for a broadcast.
func (r *recordingRepo) GetByStreamID(ctx context.Context, streamID string) (*models.Recording, error) {
	var rec models.Recording
	err := r.db.WithContext(ctx).
		Where("stream_id = ?", streamID).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recording by stream ID: %w", err)
	}
	return &rec, nil
}

// ListRecent retrieves recordings ordered by broadcast start, newest first.
func (r *recordingRepo) ListRecent(ctx context.Context, limit int) ([]*models.Recording, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []*models.Recording
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing recent recordings: %w", err)
	}
	return recs, nil
}

// CountByStatus returns the number of recordings with the given status.
func (r *recordingRepo) CountByStatus(ctx context.Context, status models.RecordingStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Recording{}).
		Where("status = ?", status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting recordings by status: %w", err)
	}
	return count, nil
}

// RecoverStale marks recordings left active by a dead process as interrupted.
func (r *recordingRepo) RecoverStale(ctx context.Context) (int64, error) {
	now := models.Now()
	// UpdateColumns avoids the validation hooks; stale rows may predate
	// the current schema rules.
	result := r.db.WithContext(ctx).
		Model(&models.Recording{}).
		Where("status IN ?", []models.RecordingStatus{
			models.RecordingStatusPending,
			models.RecordingStatusRecording,
		}).
		UpdateColumns(map[string]interface{}{
			"status":     models.RecordingStatusInterrupted,
			"ended_at":   now,
			"updated_at": now,
		})

	if result.Error != nil {
		return 0, fmt.Errorf("recovering stale recordings: %w", result.Error)
	}
	return result.RowsAffected, nil
}
