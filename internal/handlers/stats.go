package handlers

import (
	"net/http"

	"github.com/liamwears/reelstream/internal/services"
	"github.com/rs/zerolog"
)

// StatsHandler serves per-profile viewing statistics
type StatsHandler struct {
	statsService *services.StatsService
	logger       zerolog.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(statsService *services.StatsService, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		logger:       logger,
	}
}

// Genres handles GET /api/stats/genres
func (h *StatsHandler) Genres(w http.ResponseWriter, r *http.Request) {
	identity, profileID, ok := requireProfile(w, r)
	if !ok {
		return
	}

	days, err := queryInt(r, "days")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	counts, err := h.statsService.GenreCounts(r.Context(), identity.UserID, profileID, days)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}

// Daily handles GET /api/stats/daily
func (h *StatsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	identity, profileID, ok := requireProfile(w, r)
	if !ok {
		return
	}

	days, err := queryInt(r, "days")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	counts, err := h.statsService.DailyCounts(r.Context(), identity.UserID, profileID, days)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}
