package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/waypost/waypost/internal/api/response"
	"github.com/waypost/waypost/internal/profile"
	"github.com/waypost/waypost/internal/syncer"
	"github.com/waypost/waypost/internal/tracker"
)

// SignalsHandler receives device condition updates from the host
// platform (battery, car mode, speed, connectivity) and fans them out
// to the profile engine, the sync engine and the tracker.
type SignalsHandler struct {
	profiles *profile.Engine
	syncer   *syncer.Engine
	tracker  *tracker.Tracker

	mu      sync.Mutex
	current profile.Signals
}

// NewSignalsHandler creates a new SignalsHandler.
func NewSignalsHandler(p *profile.Engine, s *syncer.Engine, t *tracker.Tracker) *SignalsHandler {
	return &SignalsHandler{profiles: p, syncer: s, tracker: t}
}

type networkSignal struct {
	Reachable bool `json:"reachable"`
	Wifi      bool `json:"wifi"`
}

// signalsRequest is a partial update: absent fields keep their last
// reported value.
type signalsRequest struct {
	Charging        *bool          `json:"charging,omitempty"`
	CarMode         *bool          `json:"carMode,omitempty"`
	SpeedMps        *float64       `json:"speedMps,omitempty"`
	Network         *networkSignal `json:"network,omitempty"`
	BatteryCritical bool           `json:"batteryCritical,omitempty"`
}

type signalsResponse struct {
	Charging      bool    `json:"charging"`
	CarMode       bool    `json:"carMode"`
	SpeedMps      float64 `json:"speedMps"`
	ActiveProfile string  `json:"activeProfile,omitempty"`
}

// PostSignals handles POST /v1/signals.
func (h *SignalsHandler) PostSignals(w http.ResponseWriter, r *http.Request) {
	var req signalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	h.mu.Lock()
	if req.Charging != nil {
		h.current.Charging = *req.Charging
	}
	if req.CarMode != nil {
		h.current.CarMode = *req.CarMode
	}
	if req.SpeedMps != nil {
		h.current.Speed = *req.SpeedMps
	}
	sig := h.current
	h.mu.Unlock()

	if req.Network != nil {
		h.syncer.SetNetwork(req.Network.Reachable, req.Network.Wifi)
	}
	if req.BatteryCritical {
		h.tracker.BatteryCritical()
	}

	if _, err := h.profiles.Update(r.Context(), sig); err != nil {
		response.InternalError(w, r, "failed to evaluate profiles")
		return
	}

	response.JSON(w, r, http.StatusOK, signalsResponse{
		Charging:      sig.Charging,
		CarMode:       sig.CarMode,
		SpeedMps:      sig.Speed,
		ActiveProfile: h.profiles.Active(),
	})
}
