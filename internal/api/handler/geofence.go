package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/waypost/waypost/internal/api/response"
	"github.com/waypost/waypost/internal/geofence"
)

// GeofenceHandler exposes geofence CRUD.
type GeofenceHandler struct {
	repo geofence.Repository
}

// NewGeofenceHandler creates a new GeofenceHandler.
func NewGeofenceHandler(repo geofence.Repository) *GeofenceHandler {
	return &GeofenceHandler{repo: repo}
}

// ListGeofences handles GET /v1/geofences.
func (h *GeofenceHandler) ListGeofences(w http.ResponseWriter, r *http.Request) {
	zones, err := h.repo.List(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to list geofences")
		return
	}
	response.JSON(w, r, http.StatusOK, zones)
}

// GetGeofence handles GET /v1/geofences/{geofenceId}.
func (h *GeofenceHandler) GetGeofence(w http.ResponseWriter, r *http.Request) {
	zone, err := h.repo.Get(r.Context(), chi.URLParam(r, "geofenceId"))
	if err != nil {
		if errors.Is(err, geofence.ErrGeofenceNotFound) {
			response.NotFound(w, r, "geofence not found")
			return
		}
		response.InternalError(w, r, "failed to load geofence")
		return
	}
	response.JSON(w, r, http.StatusOK, zone)
}

// CreateGeofence handles POST /v1/geofences.
func (h *GeofenceHandler) CreateGeofence(w http.ResponseWriter, r *http.Request) {
	var zone geofence.Geofence
	if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if zone.ID == "" {
		zone.ID = uuid.New().String()
	}
	if zone.CreatedAt == 0 {
		zone.CreatedAt = time.Now().Unix()
	}

	if err := h.repo.Create(r.Context(), &zone); err != nil {
		if errors.Is(err, geofence.ErrInvalidRadius) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		response.InternalError(w, r, "failed to create geofence")
		return
	}
	response.Created(w, r, "/v1/geofences/"+zone.ID, zone)
}

// UpdateGeofence handles PUT /v1/geofences/{geofenceId}.
func (h *GeofenceHandler) UpdateGeofence(w http.ResponseWriter, r *http.Request) {
	var zone geofence.Geofence
	if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	zone.ID = chi.URLParam(r, "geofenceId")

	if err := h.repo.Update(r.Context(), &zone); err != nil {
		switch {
		case errors.Is(err, geofence.ErrGeofenceNotFound):
			response.NotFound(w, r, "geofence not found")
		case errors.Is(err, geofence.ErrInvalidRadius):
			response.BadRequest(w, r, err.Error(), nil)
		default:
			response.InternalError(w, r, "failed to update geofence")
		}
		return
	}
	response.JSON(w, r, http.StatusOK, zone)
}

// DeleteGeofence handles DELETE /v1/geofences/{geofenceId}.
func (h *GeofenceHandler) DeleteGeofence(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "geofenceId")); err != nil {
		if errors.Is(err, geofence.ErrGeofenceNotFound) {
			response.NotFound(w, r, "geofence not found")
			return
		}
		response.InternalError(w, r, "failed to delete geofence")
		return
	}
	response.NoContent(w, r)
}
