package handlers

import (
	"mime/multipart"
	"net/http"

	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/rs/zerolog"
)

// ProfileHandler handles the caller's account and viewer profiles
type ProfileHandler struct {
	userService *services.UserService
	sessions    SessionStore
	maxUpload   int64
	logger      zerolog.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(userService *services.UserService, sessions SessionStore, maxUpload int64, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		userService: userService,
		sessions:    sessions,
		maxUpload:   maxUpload,
		logger:      logger,
	}
}

// Me handles GET /api/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	user, err := h.userService.Get(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":            user,
		"activeProfileId": identity.ProfileID,
	})
}

// UpdateMe handles PATCH /api/me
func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var input models.UpdateSelfInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.userService.UpdateSelf(r.Context(), identity.UserID, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// List handles GET /api/profiles
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	profiles, err := h.userService.ListProfiles(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": profiles})
}

// decodeProfile reads a profile input from JSON, or from a multipart form with an "avatar" file
func (h *ProfileHandler) decodeProfile(w http.ResponseWriter, r *http.Request) (models.ProfileInput, *multipart.FileHeader, error) {
	var input models.ProfileInput
	if !isMultipart(r) {
		return input, nil, decodeJSON(w, r, &input)
	}
	if err := parseMultipart(w, r, h.maxUpload); err != nil {
		return input, nil, err
	}
	if _, ok := r.MultipartForm.Value["name"]; ok {
		name := r.FormValue("name")
		input.Name = &name
	}
	return input, formFile(r.MultipartForm, "avatar"), nil
}

// Create handles POST /api/profiles
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	input, avatar, err := h.decodeProfile(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var name string
	if input.Name != nil {
		name = *input.Name
	}

	profile, err := h.userService.AddProfile(r.Context(), identity.UserID, name, avatar)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, profile)
}

// Update handles PATCH /api/profiles/{id}
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	profileID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	input, avatar, err := h.decodeProfile(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.userService.UpdateProfile(r.Context(), identity.UserID, profileID, input, avatar)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// Delete handles DELETE /api/profiles/{id}
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	profileID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.userService.DeleteProfile(r.Context(), identity.UserID, profileID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Select handles POST /api/profiles/{id}/select.
// The profile becomes active in the session (if any) and a token bound to it is returned.
func (h *ProfileHandler) Select(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	profileID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.userService.Get(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	token, err := h.userService.IssueToken(r.Context(), user, &profileID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if identity.SessionID != "" {
		if err := h.sessions.SetProfile(r.Context(), identity.SessionID, profileID); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profileId": profileID,
		"token":     token,
	})
}
