package handler

import (
	"net/http"

	"github.com/waypost/waypost/internal/api/response"
	"github.com/waypost/waypost/internal/tracker"
)

// TrackingHandler drives the capture pipeline.
type TrackingHandler struct {
	tracker *tracker.Tracker
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(t *tracker.Tracker) *TrackingHandler {
	return &TrackingHandler{tracker: t}
}

// Start handles POST /v1/tracking/start. The command is processed
// asynchronously by the pipeline goroutine, hence 202.
func (h *TrackingHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.tracker.Start()
	response.Accepted(w, r, "/v1/status", h.tracker.Status())
}

// Stop handles POST /v1/tracking/stop. Queued records are left alone.
func (h *TrackingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.tracker.Stop()
	response.Accepted(w, r, "/v1/status", h.tracker.Status())
}
