package handlers

import (
	"encoding/json"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/rs/zerolog"
)

// SeriesHandler handles series and episode requests
type SeriesHandler struct {
	contentService *services.ContentService
	maxUpload      int64
	logger         zerolog.Logger
}

// NewSeriesHandler creates a new series handler
func NewSeriesHandler(contentService *services.ContentService, maxUpload int64, logger zerolog.Logger) *SeriesHandler {
	return &SeriesHandler{
		contentService: contentService,
		maxUpload:      maxUpload,
		logger:         logger,
	}
}

// episodePath reads the series id, season and episode path values
func episodePath(r *http.Request) (uuid.UUID, int, int, error) {
	id, err := pathUUID(r, "id")
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	season, err := pathInt(r, "season")
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	episode, err := pathInt(r, "episode")
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	return id, season, episode, nil
}

// Create handles POST /api/series
func (h *SeriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.CreateContentInput
	files, err := decodeWithFiles(w, r, h.maxUpload, &input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	series, err := h.contentService.CreateSeries(r.Context(), input, files)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, series)
}

// AddEpisode handles POST /api/series/{id}/episodes
func (h *SeriesHandler) AddEpisode(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input models.AddEpisodeInput
	files, err := decodeWithFiles(w, r, h.maxUpload, &input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	episode, err := h.contentService.AddEpisode(r.Context(), id, input, files)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, episode)
}

// AddEpisodesBatch handles POST /api/series/{id}/episodes/batch.
// The body is either {"episodes": [...]} or a multipart form with an "episodes" JSON field
// and optional poster_<i> / video_<i> files.
func (h *SeriesHandler) AddEpisodesBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var (
		inputs []models.AddEpisodeInput
		files  map[string]*multipart.FileHeader
	)
	if isMultipart(r) {
		if err := parseMultipart(w, r, h.maxUpload); err != nil {
			writeError(w, h.logger, err)
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("episodes")), &inputs); err != nil {
			badRequest(w, "invalid episodes field")
			return
		}
		files = make(map[string]*multipart.FileHeader, len(r.MultipartForm.File))
		for field := range r.MultipartForm.File {
			files[field] = formFile(r.MultipartForm, field)
		}
	} else {
		var body struct {
			Episodes []models.AddEpisodeInput `json:"episodes"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, h.logger, err)
			return
		}
		inputs = body.Episodes
	}

	episodes, err := h.contentService.AddEpisodesBatch(r.Context(), id, inputs, files)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"episodes": episodes})
}

// UpdateEpisode handles PATCH /api/series/{id}/seasons/{season}/episodes/{episode}
func (h *SeriesHandler) UpdateEpisode(w http.ResponseWriter, r *http.Request) {
	id, season, number, err := episodePath(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input models.UpdateEpisodeInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	episode, err := h.contentService.UpdateEpisode(r.Context(), id, season, number, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, episode)
}

// RemoveEpisode handles DELETE /api/series/{id}/seasons/{season}/episodes/{episode}
func (h *SeriesHandler) RemoveEpisode(w http.ResponseWriter, r *http.Request) {
	id, season, number, err := episodePath(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.contentService.RemoveEpisode(r.Context(), id, season, number); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
