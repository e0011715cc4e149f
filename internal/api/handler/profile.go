package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/waypost/waypost/internal/api/response"
	"github.com/waypost/waypost/internal/profile"
)

// ProfileHandler exposes tracking profile CRUD.
type ProfileHandler struct {
	repo profile.Repository
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(repo profile.Repository) *ProfileHandler {
	return &ProfileHandler{repo: repo}
}

// ListProfiles handles GET /v1/profiles.
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.repo.List(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to list profiles")
		return
	}
	response.JSON(w, r, http.StatusOK, profiles)
}

// GetProfile handles GET /v1/profiles/{profileId}.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.Get(r.Context(), chi.URLParam(r, "profileId"))
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			response.NotFound(w, r, "profile not found")
			return
		}
		response.InternalError(w, r, "failed to load profile")
		return
	}
	response.JSON(w, r, http.StatusOK, p)
}

// profileBody shadows the Enabled field so a body that omits it defaults
// to an enabled profile instead of a silently inert one.
type profileBody struct {
	profile.Profile
	Enabled *bool `json:"enabled"`
}

func (b profileBody) resolve() profile.Profile {
	p := b.Profile
	p.Enabled = b.Enabled == nil || *b.Enabled
	return p
}

// CreateProfile handles POST /v1/profiles.
func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	p := body.resolve()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().Unix()
	}

	if err := h.repo.Create(r.Context(), &p); err != nil {
		if errors.Is(err, profile.ErrInvalidCondition) || errors.Is(err, profile.ErrInvalidOverride) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		response.InternalError(w, r, "failed to create profile")
		return
	}
	response.Created(w, r, "/v1/profiles/"+p.ID, p)
}

// UpdateProfile handles PUT /v1/profiles/{profileId}.
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	p := body.resolve()
	p.ID = chi.URLParam(r, "profileId")

	if err := h.repo.Update(r.Context(), &p); err != nil {
		switch {
		case errors.Is(err, profile.ErrProfileNotFound):
			response.NotFound(w, r, "profile not found")
		case errors.Is(err, profile.ErrInvalidCondition), errors.Is(err, profile.ErrInvalidOverride):
			response.BadRequest(w, r, err.Error(), nil)
		default:
			response.InternalError(w, r, "failed to update profile")
		}
		return
	}
	response.JSON(w, r, http.StatusOK, p)
}

// DeleteProfile handles DELETE /v1/profiles/{profileId}.
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "profileId")); err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			response.NotFound(w, r, "profile not found")
			return
		}
		response.InternalError(w, r, "failed to delete profile")
		return
	}
	response.NoContent(w, r)
}
