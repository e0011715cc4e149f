package handler

import (
	"encoding/json"
	"net/http"

	"github.com/waypost/waypost/internal/api/response"
	"github.com/waypost/waypost/internal/settings"
)

// SettingsHandler exposes the settings store.
type SettingsHandler struct {
	store *settings.Store
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

type settingsResponse struct {
	// Base is the stored configuration.
	Base settings.Settings `json:"base"`
	// Effective is Base with any active profile override applied; this is
	// what the pipeline actually runs with.
	Effective  settings.Settings `json:"effective"`
	Overridden bool              `json:"overridden"`
}

// GetSettings handles GET /v1/settings.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, settingsResponse{
		Base:       h.store.Base(),
		Effective:  h.store.Snapshot(),
		Overridden: h.store.Override() != nil,
	})
}

// PutSettings handles PUT /v1/settings: full replacement of the base
// configuration.
func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var base settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&base); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if err := h.store.SetBase(base); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	h.GetSettings(w, r)
}

// ImportSettings handles POST /v1/settings:import: a partial merge that
// is applied all-or-nothing. An invalid value anywhere in the payload
// leaves the stored configuration untouched.
func (h *SettingsHandler) ImportSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if err := h.store.Import(patch); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	h.GetSettings(w, r)
}
