package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/waypost/waypost/internal/api/response"
	"github.com/waypost/waypost/internal/queue"
)

// QueueHandler exposes delivery queue statistics and maintenance.
type QueueHandler struct {
	repo queue.Repository
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(repo queue.Repository) *QueueHandler {
	return &QueueHandler{repo: repo}
}

// GetStats handles GET /v1/queue/stats.
func (h *QueueHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to read queue stats")
		return
	}
	response.JSON(w, r, http.StatusOK, stats)
}

type purgeRequest struct {
	// OlderThanHours limits the purge to sent records older than this many
	// hours. Zero purges every sent record.
	OlderThanHours int `json:"olderThanHours"`
}

type purgeResponse struct {
	Purged int64 `json:"purged"`
}

// Purge handles POST /v1/queue/purge: deletes sent records. Queued and
// failed records are never purged here.
func (h *QueueHandler) Purge(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, r, "invalid JSON body", nil)
			return
		}
	}
	if req.OlderThanHours < 0 {
		response.BadRequest(w, r, "olderThanHours must not be negative", nil)
		return
	}

	cutoff := time.Now().Add(-time.Duration(req.OlderThanHours) * time.Hour)
	purged, err := h.repo.PurgeSent(r.Context(), cutoff)
	if err != nil {
		response.InternalError(w, r, "failed to purge sent records")
		return
	}
	response.JSON(w, r, http.StatusOK, purgeResponse{Purged: purged})
}
