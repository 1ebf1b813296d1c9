package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/rs/zerolog"
)

// HistoryHandler handles watch-history requests
type HistoryHandler struct {
	historyService *services.HistoryService
	logger         zerolog.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(historyService *services.HistoryService, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
		logger:         logger,
	}
}

// Progress handles PUT /api/history/{contentId}/progress
func (h *HistoryHandler) Progress(w http.ResponseWriter, r *http.Request) {
	// Get identity and active profile
	identity, profileID, ok := requireProfile(w, r)
	if !ok {
		return
	}

	contentID, err := pathUUID(r, "contentId")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Parse request body
	var input models.ProgressInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	history, err := h.historyService.UpsertProgress(r.Context(), identity.UserID, profileID, contentID, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// Like handles PUT /api/history/{contentId}/like
func (h *HistoryHandler) Like(w http.ResponseWriter, r *http.Request) {
	identity, profileID, ok := requireProfile(w, r)
	if !ok {
		return
	}

	contentID, err := pathUUID(r, "contentId")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input models.LikeInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	history, err := h.historyService.ToggleLike(r.Context(), identity.UserID, profileID, contentID, input.Liked)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// Reset handles POST /api/history/{contentId}/reset
func (h *HistoryHandler) Reset(w http.ResponseWriter, r *http.Request) {
	identity, profileID, ok := requireProfile(w, r)
	if !ok {
		return
	}

	contentID, err := pathUUID(r, "contentId")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	history, err := h.historyService.ResetProgress(r.Context(), identity.UserID, profileID, contentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// parseHistoryFilter reads the list filter from the query string
func parseHistoryFilter(r *http.Request) (models.HistoryFilter, error) {
	var (
		filter models.HistoryFilter
		err    error
	)
	query := r.URL.Query()

	if raw := query.Get("profileId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, services.ErrBadRequest("invalid profileId")
		}
		filter.ProfileID = &id
	}
	if filter.Completed, err = queryBool(r, "completed"); err != nil {
		return filter, err
	}
	if filter.Liked, err = queryBool(r, "liked"); err != nil {
		return filter, err
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		return filter, err
	}
	for _, part := range strings.Split(query.Get("include"), ",") {
		switch strings.TrimSpace(part) {
		case "content":
			filter.IncludeContent = true
		case "profile":
			filter.IncludeProfile = true
		}
	}
	return filter, nil
}

// List handles GET /api/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	filter, err := parseHistoryFilter(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	entries, err := h.historyService.ListForUser(r.Context(), identity.UserID, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": entries})
}
