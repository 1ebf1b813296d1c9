package handlers

import (
	"net/http"

	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/rs/zerolog"
)

// AdminHandler handles account administration
type AdminHandler struct {
	userService *services.UserService
	logger      zerolog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(userService *services.UserService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		userService: userService,
		logger:      logger,
	}
}

// ListUsers handles GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": users})
}

// SetRoles handles PATCH /api/admin/users/{id}/roles
func (h *AdminHandler) SetRoles(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input models.SetRolesInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.userService.SetRoles(r.Context(), identity.UserID, id, input.Roles)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /api/admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.userService.DeleteUser(r.Context(), identity.UserID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
