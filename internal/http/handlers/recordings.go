package handlers

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/vodarr/internal/models"
	"github.com/jmylchreest/vodarr/internal/repository"
)

// RecordingHandler handles the recording catalog endpoints.
type RecordingHandler struct {
	recordings repository.RecordingRepository
}

// NewRecordingHandler creates a new recording handler.
func NewRecordingHandler(recordings repository.RecordingRepository) *RecordingHandler {
	return &RecordingHandler{
		recordings: recordings,
	}
}

// Register registers the recording routes with the API.
func (h *RecordingHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRecordings",
		Method:      "GET",
		Path:        "/api/v1/recordings",
		Summary:     "List recordings",
		Description: "Returns recent recordings, newest broadcast first",
		Tags:        []string{"Recordings"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getRecordingStats",
		Method:      "GET",
		Path:        "/api/v1/recordings/stats",
		Summary:     "Get recording statistics",
		Description: "Returns recording counts by status",
		Tags:        []string{"Recordings"},
	}, h.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "getRecording",
		Method:      "GET",
		Path:        "/api/v1/recordings/{id}",
		Summary:     "Get recording",
		Description: "Returns a recording by ID",
		Tags:        []string{"Recordings"},
	}, h.GetByID)
}

// ListRecordingsInput is the input for listing recordings.
type ListRecordingsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum number of recordings to return"`
}

// ListRecordingsOutput is the output for listing recordings.
type ListRecordingsOutput struct {
	Body struct {
		Recordings []RecordingResponse `json:"recordings"`
	}
}

// List returns recent recordings, newest broadcast first.
func (h *RecordingHandler) List(ctx context.Context, input *ListRecordingsInput) (*ListRecordingsOutput, error) {
	recordings, err := h.recordings.ListRecent(ctx, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list recordings", err)
	}

	resp := &ListRecordingsOutput{}
	resp.Body.Recordings = make([]RecordingResponse, 0, len(recordings))
	for _, r := range recordings {
		resp.Body.Recordings = append(resp.Body.Recordings, RecordingFromModel(r))
	}

	return resp, nil
}

// GetRecordingInput is the input for getting a recording.
type GetRecordingInput struct {
	ID string `path:"id" doc:"Recording ID (ULID)"`
}

// GetRecordingOutput is the output for getting a recording.
type GetRecordingOutput struct {
	Body RecordingResponse
}

// GetByID returns a recording by ID.
func (h *RecordingHandler) GetByID(ctx context.Context, input *GetRecordingInput) (*GetRecordingOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	rec, err := h.recordings.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get recording", err)
	}
	if rec == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("recording %s not found", input.ID))
	}

	return &GetRecordingOutput{
		Body: RecordingFromModel(rec),
	}, nil
}

// GetRecordingStatsInput is the input for recording statistics.
type GetRecordingStatsInput struct{}

// GetRecordingStatsOutput is the output for recording statistics.
type GetRecordingStatsOutput struct {
	Body RecordingStatsResponse
}

// GetStats returns recording counts by status.
func (h *RecordingHandler) GetStats(ctx context.Context, input *GetRecordingStatsInput) (*GetRecordingStatsOutput, error) {
	var stats RecordingStatsResponse

	counts := []struct {
		status models.RecordingStatus
		dest   *int64
	}{
		{models.RecordingStatusPending, &stats.Pending},
		{models.RecordingStatusRecording, &stats.Recording},
		{models.RecordingStatusCompleted, &stats.Completed},
		{models.RecordingStatusFailed, &stats.Failed},
		{models.RecordingStatusInterrupted, &stats.Interrupted},
	}

	for _, c := range counts {
		n, err := h.recordings.CountByStatus(ctx, c.status)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count recordings", err)
		}
		*c.dest = n
		stats.Total += n
	}

	return &GetRecordingStatsOutput{Body: stats}, nil
}
