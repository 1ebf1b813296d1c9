package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/middleware"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/rs/zerolog"
)

// maxJSONBody caps non-upload request bodies
const maxJSONBody = 1 << 20

type errorBody struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the ServiceError's status, or 500 for anything else
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	if svcErr, ok := services.AsServiceError(err); ok {
		if svcErr.Status >= http.StatusInternalServerError {
			logger.Error().Err(err).Msg("request failed")
		}
		writeJSON(w, svcErr.Status, errorBody{Error: svcErr.Message, Details: svcErr.Details})
		return
	}
	logger.Error().Err(err).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return services.ErrBadRequest("invalid request body")
	}
	return nil
}

// isMultipart reports whether the request carries a multipart form
func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart reads a multipart form of at most maxBytes
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return services.ServiceError{Status: http.StatusRequestEntityTooLarge, Message: "upload too large"}
		}
		return services.ErrBadRequest("invalid multipart form")
	}
	return nil
}

// formFile returns the first file under field, or nil
func formFile(form *multipart.Form, field string) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File[field]; len(files) > 0 {
		return files[0]
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, services.ErrBadRequest("invalid " + name)
	}
	return id, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		return 0, services.ErrBadRequest("invalid " + name)
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, services.ErrBadRequest("invalid " + name)
	}
	return &v, nil
}

// queryInt parses an optional integer query parameter, returning 0 when absent
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.ErrBadRequest("invalid " + name)
	}
	return v, nil
}

// requireIdentity fetches the caller set by the auth middleware
func requireIdentity(w http.ResponseWriter, r *http.Request) (*middleware.Identity, bool) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return nil, false
	}
	return identity, true
}

// requireProfile fetches the caller and their active profile
func requireProfile(w http.ResponseWriter, r *http.Request) (*middleware.Identity, uuid.UUID, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return nil, uuid.Nil, false
	}
	if identity.ProfileID == nil {
		http.Error(w, `{"error":"select a profile first"}`, http.StatusForbidden)
		return nil, uuid.Nil, false
	}
	return identity, *identity.ProfileID, true
}
