// Package handler implements the control API endpoints the host
// application drives the engine with.
package handler

import (
	"net/http"

	"github.com/waypost/waypost/internal/api/response"
	"github.com/waypost/waypost/internal/profile"
	"github.com/waypost/waypost/internal/queue"
	"github.com/waypost/waypost/internal/record"
	"github.com/waypost/waypost/internal/syncer"
	"github.com/waypost/waypost/internal/tracker"
)

// StatusHandler reports the engine's combined run state.
type StatusHandler struct {
	tracker  *tracker.Tracker
	syncer   *syncer.Engine
	queue    queue.Repository
	profiles *profile.Engine
	version  string
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(t *tracker.Tracker, s *syncer.Engine, q queue.Repository, p *profile.Engine, version string) *StatusHandler {
	return &StatusHandler{tracker: t, syncer: s, queue: q, profiles: p, version: version}
}

type statusResponse struct {
	Version       string            `json:"version"`
	Tracking      tracker.Status    `json:"tracking"`
	Sync          syncer.Status     `json:"sync"`
	Queue         record.QueueStats `json:"queue"`
	ActiveProfile string            `json:"activeProfile,omitempty"`
}

// GetStatus handles GET /v1/status.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to read queue stats")
		return
	}

	response.JSON(w, r, http.StatusOK, statusResponse{
		Version:       h.version,
		Tracking:      h.tracker.Status(),
		Sync:          h.syncer.Status(),
		Queue:         stats,
		ActiveProfile: h.profiles.Active(),
	})
}
