package models

import (
	"time"

	"gorm.io/gorm"
)

// RecordingStatus represents the lifecycle state of a recording.
type RecordingStatus string

const (
	// RecordingStatusPending indicates the row exists but capture has not started.
	RecordingStatusPending RecordingStatus = "pending"
	// RecordingStatusRecording indicates an active capture session.
	RecordingStatusRecording RecordingStatus = "recording"
	// RecordingStatusCompleted indicates the broadcast ended and capture finished cleanly.
	RecordingStatusCompleted RecordingStatus = "completed"
	// RecordingStatusFailed indicates the capture session stopped on an error.
	RecordingStatusFailed RecordingStatus = "failed"
	// RecordingStatusInterrupted indicates capture was cancelled or cut off mid-broadcast.
	RecordingStatusInterrupted RecordingStatus = "interrupted"
)

// Recording represents one captured broadcast and its on-disk output.
type Recording struct {
	BaseModel

	// ChannelLogin is the broadcaster this recording belongs to.
	ChannelLogin string `gorm:"not null;size:100;index" json:"channel_login"`

	// StreamID is the platform's id for the live broadcast. Watch mode
	// uses it to avoid recording the same broadcast twice.
	StreamID string `gorm:"size:50;index" json:"stream_id,omitempty"`

	// VODID is the archive video paired with the broadcast, empty when
	// the broadcaster keeps no archive.
	VODID string `gorm:"size:50" json:"vod_id,omitempty"`

	// Title is the broadcast title at capture start.
	Title string `gorm:"size:512" json:"title,omitempty"`

	// GameName is the category the broadcast started under.
	GameName string `gorm:"size:255" json:"game_name,omitempty"`

	// StartedAt is when the broadcast went live.
	StartedAt Time `json:"started_at"`

	// OutputDir is the directory the captured segments were written to.
	OutputDir string `gorm:"size:1024" json:"output_dir,omitempty"`

	// Status indicates the current status of the recording.
	Status RecordingStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// SegmentCount is the number of segments promoted to the output dir.
	SegmentCount int `gorm:"default:0" json:"segment_count"`

	// Error contains the failure message when Status is failed.
	Error string `gorm:"size:4096" json:"error,omitempty"`

	// EndedAt is when the capture session reached a terminal state.
	EndedAt *Time `json:"ended_at,omitempty"`
}

// TableName returns the table name for Recording.
func (Recording) TableName() string {
	return "recordings"
}

// IsActive returns true while a capture session owns this recording.
func (r *Recording) IsActive() bool {
	return r.Status == RecordingStatusPending || r.Status == RecordingStatusRecording
}

// IsFinished returns true once the recording reached a terminal state.
func (r *Recording) IsFinished() bool {
	return r.Status == RecordingStatusCompleted || r.Status == RecordingStatusFailed ||
		r.Status == RecordingStatusInterrupted
}

// Duration returns how long the capture ran, zero while still active.
func (r *Recording) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// MarkRecording marks the recording as actively capturing.
func (r *Recording) MarkRecording() {
	r.Status = RecordingStatusRecording
	r.Error = ""
}

// MarkCompleted marks the recording as finished cleanly.
func (r *Recording) MarkCompleted(segments int) {
	r.Status = RecordingStatusCompleted
	now := Now()
	r.EndedAt = &now
	r.SegmentCount = segments
	r.Error = ""
}

// MarkFailed marks the recording as failed with an error message.
func (r *Recording) MarkFailed(err error) {
	r.Status = RecordingStatusFailed
	now := Now()
	r.EndedAt = &now

	if err != nil {
		r.Error = err.Error()
	}
}

// MarkInterrupted marks the recording as cut off before the broadcast ended.
func (r *Recording) MarkInterrupted() {
	r.Status = RecordingStatusInterrupted
	now := Now()
	r.EndedAt = &now
}

// Validate performs basic validation on the recording.
func (r *Recording) Validate() error {
	if r.ChannelLogin == "" {
		return ErrChannelLoginRequired
	}
	if r.StartedAt.IsZero() {
		return ErrStartTimeRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the recording and generates its ULID.
func (r *Recording) BeforeCreate(tx *gorm.DB) error {
	if err := r.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return r.Validate()
}

// BeforeUpdate is a GORM hook that validates the recording before update.
func (r *Recording) BeforeUpdate(tx *gorm.DB) error {
	return r.Validate()
}
