package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/vodarr/internal/capture"
	"github.com/jmylchreest/vodarr/internal/watcher"
)

// SessionLister provides snapshots of running capture sessions.
type SessionLister interface {
	Sessions() []capture.Status
}

var _ SessionLister = (*watcher.Watcher)(nil)

// SessionHandler handles the capture session endpoints.
type SessionHandler struct {
	sessions SessionLister
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions SessionLister) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
	}
}

// Register registers the session routes with the API.
func (h *SessionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      "GET",
		Path:        "/api/v1/sessions",
		Summary:     "List capture sessions",
		Description: "Returns a snapshot of all running capture sessions",
		Tags:        []string{"Sessions"},
	}, h.List)
}

// ListSessionsInput is the input for listing sessions.
type ListSessionsInput struct{}

// ListSessionsOutput is the output for listing sessions.
type ListSessionsOutput struct {
	Body struct {
		Sessions []capture.Status `json:"sessions"`
		Count    int              `json:"count"`
	}
}

// List returns a snapshot of all running capture sessions.
func (h *SessionHandler) List(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	sessions := h.sessions.Sessions()
	if sessions == nil {
		sessions = []capture.Status{}
	}

	resp := &ListSessionsOutput{}
	resp.Body.Sessions = sessions
	resp.Body.Count = len(sessions)

	return resp, nil
}
