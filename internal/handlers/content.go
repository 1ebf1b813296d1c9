package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/rs/zerolog"
)

// ContentHandler handles catalog requests
type ContentHandler struct {
	contentService *services.ContentService
	maxUpload      int64
	logger         zerolog.Logger
}

// NewContentHandler creates a new content handler; maxUpload bounds multipart bodies in bytes
func NewContentHandler(contentService *services.ContentService, maxUpload int64, logger zerolog.Logger) *ContentHandler {
	return &ContentHandler{
		contentService: contentService,
		maxUpload:      maxUpload,
		logger:         logger,
	}
}

// decodeWithFiles reads v from a JSON body, or from the "data" field of a multipart form
// whose poster and video parts are returned alongside
func decodeWithFiles(w http.ResponseWriter, r *http.Request, maxUpload int64, v interface{}) (services.MediaFiles, error) {
	if !isMultipart(r) {
		return services.MediaFiles{}, decodeJSON(w, r, v)
	}
	if err := parseMultipart(w, r, maxUpload); err != nil {
		return services.MediaFiles{}, err
	}
	if err := json.Unmarshal([]byte(r.FormValue("data")), v); err != nil {
		return services.MediaFiles{}, services.ErrBadRequest("invalid data field")
	}
	return services.MediaFiles{
		Poster: formFile(r.MultipartForm, "poster"),
		Video:  formFile(r.MultipartForm, "video"),
	}, nil
}

// List handles GET /api/content
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	query := r.URL.Query()

	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var genres []string
	for _, raw := range query["genres"] {
		for _, g := range strings.Split(raw, ",") {
			if g = strings.TrimSpace(g); g != "" {
				genres = append(genres, g)
			}
		}
	}

	// Call service
	result, err := h.contentService.List(r.Context(), models.ContentFilter{
		Type:   models.ContentType(query.Get("type")),
		Title:  query.Get("title"),
		Genres: genres,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Get handles GET /api/content/{id}
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	content, err := h.contentService.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, content)
}

// Create handles POST /api/content
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	// Parse request body
	var input models.CreateContentInput
	files, err := decodeWithFiles(w, r, h.maxUpload, &input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	content, err := h.contentService.Create(r.Context(), input, files)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, content)
}

// Update handles PATCH /api/content/{id}
func (h *ContentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Parse request body
	var input models.UpdateContentInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	content, err := h.contentService.Update(r.Context(), id, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, content)
}

// Delete handles DELETE /api/content/{id}
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.contentService.Remove(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
