// Package handlers provides the status API handlers for vodarr.
package handlers

import (
	"time"

	"github.com/jmylchreest/vodarr/internal/models"
)

// RecordingResponse represents a recording in API responses.
type RecordingResponse struct {
	ID              models.ULID            `json:"id"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	ChannelLogin    string                 `json:"channel_login"`
	StreamID        string                 `json:"stream_id,omitempty"`
	VODID           string                 `json:"vod_id,omitempty"`
	Title           string                 `json:"title,omitempty"`
	GameName        string                 `json:"game_name,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	EndedAt         *time.Time             `json:"ended_at,omitempty"`
	DurationSeconds float64                `json:"duration_seconds"`
	OutputDir       string                 `json:"output_dir,omitempty"`
	Status          models.RecordingStatus `json:"status"`
	SegmentCount    int                    `json:"segment_count"`
	Error           string                 `json:"error,omitempty"`
}

// RecordingFromModel converts a model to a response.
func RecordingFromModel(r *models.Recording) RecordingResponse {
	return RecordingResponse{
		ID:              r.ID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ChannelLogin:    r.ChannelLogin,
		StreamID:        r.StreamID,
		VODID:           r.VODID,
		Title:           r.Title,
		GameName:        r.GameName,
		StartedAt:       r.StartedAt,
		EndedAt:         r.EndedAt,
		DurationSeconds: r.Duration().Seconds(),
		OutputDir:       r.OutputDir,
		Status:          r.Status,
		SegmentCount:    r.SegmentCount,
		Error:           r.Error,
	}
}

// RecordingStatsResponse summarizes the recording catalog by status.
type RecordingStatsResponse struct {
	Pending     int64 `json:"pending"`
	Recording   int64 `json:"recording"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Interrupted int64 `json:"interrupted"`
	Total       int64 `json:"total"`
}

// Health types

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPU           CPUInfo           `json:"cpu"`
	Memory        MemoryInfo        `json:"memory"`
	Disk          *DiskInfo         `json:"disk,omitempty"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// CPUInfo holds CPU load information.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory usage.
type MemoryInfo struct {
	TotalMB        float64 `json:"total_mb"`
	UsedMB         float64 `json:"used_mb"`
	AvailableMB    float64 `json:"available_mb"`
	UsedPercent    float64 `json:"used_percent"`
	SwapTotalMB    float64 `json:"swap_total_mb"`
	SwapUsedMB     float64 `json:"swap_used_mb"`
	ProcessRSSMB   float64 `json:"process_rss_mb"`
	ProcessPercent float64 `json:"process_percent"`
}

// DiskInfo holds usage of the recordings volume.
type DiskInfo struct {
	Path        string  `json:"path"`
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// HealthComponents holds per-component health details.
type HealthComponents struct {
	Database        DatabaseHealth         `json:"database"`
	CircuitBreakers []CircuitBreakerStatus `json:"circuit_breakers,omitempty"`
}

// DatabaseHealth holds database connectivity and pool information.
type DatabaseHealth struct {
	Status                 string  `json:"status"`
	Driver                 string  `json:"driver,omitempty"`
	ResponseTimeMS         float64 `json:"response_time_ms"`
	ConnectionPoolSize     int     `json:"connection_pool_size"`
	ActiveConnections      int     `json:"active_connections"`
	IdleConnections        int     `json:"idle_connections"`
	PoolUtilizationPercent float64 `json:"pool_utilization_percent"`
}

// CircuitBreakerStatus is the health view of one named circuit breaker.
type CircuitBreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}
