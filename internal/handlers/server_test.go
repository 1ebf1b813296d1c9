package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/database"
	"github.com/liamwears/reelstream/internal/middleware"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/liamwears/reelstream/internal/storage"
	"github.com/liamwears/reelstream/internal/store/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySessions stands in for the redis session store
type memorySessions struct {
	mu       sync.Mutex
	next     int
	sessions map[string]database.Session
}

func (m *memorySessions) GenerateSessionID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return fmt.Sprintf("sess-%d", m.next), nil
}

func (m *memorySessions) Set(ctx context.Context, id string, sess database.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = sess
	return nil
}

func (m *memorySessions) Get(ctx context.Context, id string) (*database.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, database.ErrSessionNotFound
	}
	return &sess, nil
}

func (m *memorySessions) SetProfile(ctx context.Context, id string, profileID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return database.ErrSessionNotFound
	}
	sess.ProfileID = &profileID
	m.sessions[id] = sess
	return nil
}

func (m *memorySessions) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type testServer struct {
	mux      *http.ServeMux
	sessions *memorySessions
}

// newTestServer mounts the API and page routes over the memory store
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	st := memory.New().Bundle()
	files := storage.NewLocalStorage(t.TempDir(), "/uploads")
	sessions := &memorySessions{sessions: make(map[string]database.Session)}

	tokens := services.NewTokenService("handler-test-secret", time.Hour)
	contentService := services.NewContentService(st.Content, files, nil, logger)
	historyService := services.NewHistoryService(st.History, st.Content, st.Users, nil, logger)
	statsService := services.NewStatsService(st.History, st.Content, nil, 0, nil, logger)
	userService := services.NewUserService(st.Users, tokens, files, []string{"admin@example.com"}, logger)

	renderer, err := NewRenderer(logger)
	require.NoError(t, err)

	auth := middleware.NewAuthMiddleware(sessions, userService, tokens, logger, "session", false)
	authHandler := NewAuthHandler(userService, sessions, auth, renderer, AuthConfig{CallbackHost: "http://localhost"}, logger)
	contentHandler := NewContentHandler(contentService, 8<<20, logger)
	seriesHandler := NewSeriesHandler(contentService, 8<<20, logger)
	historyHandler := NewHistoryHandler(historyService, logger)
	statsHandler := NewStatsHandler(statsService, logger)
	profileHandler := NewProfileHandler(userService, sessions, 8<<20, logger)
	adminHandler := NewAdminHandler(userService, logger)
	pageHandler := NewPageHandler(contentService, historyService, statsService, userService, sessions, renderer, logger)

	api := func(h http.HandlerFunc) http.Handler { return auth.RequireAuthAPI(h) }
	withProfile := func(h http.HandlerFunc) http.Handler { return auth.RequireAuthAPI(auth.RequireProfile(h)) }
	admin := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAuthAPI(auth.RequireRole(models.RoleAdmin)(h))
	}
	page := func(h http.HandlerFunc) http.Handler { return auth.RequireAuth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", authHandler.Login)
	mux.Handle("GET /browse", page(pageHandler.Browse))
	mux.Handle("GET /stats", page(pageHandler.Stats))
	mux.Handle("POST /profiles", page(pageHandler.CreateProfile))
	mux.HandleFunc("POST /api/auth/register", authHandler.APIRegister)
	mux.HandleFunc("POST /api/auth/login", authHandler.APILogin)
	mux.HandleFunc("POST /api/auth/token", authHandler.APIToken)
	mux.Handle("POST /api/auth/logout", api(authHandler.APILogout))
	mux.Handle("GET /api/me", api(profileHandler.Me))
	mux.Handle("PATCH /api/me", api(profileHandler.UpdateMe))
	mux.Handle("GET /api/profiles", api(profileHandler.List))
	mux.Handle("POST /api/profiles", api(profileHandler.Create))
	mux.Handle("DELETE /api/profiles/{id}", api(profileHandler.Delete))
	mux.Handle("POST /api/profiles/{id}/select", api(profileHandler.Select))
	mux.Handle("GET /api/content", api(contentHandler.List))
	mux.Handle("POST /api/content", admin(contentHandler.Create))
	mux.Handle("GET /api/content/{id}", api(contentHandler.Get))
	mux.Handle("PATCH /api/content/{id}", admin(contentHandler.Update))
	mux.Handle("DELETE /api/content/{id}", admin(contentHandler.Delete))
	mux.Handle("POST /api/series", admin(seriesHandler.Create))
	mux.Handle("POST /api/series/{id}/episodes", admin(seriesHandler.AddEpisode))
	mux.Handle("POST /api/series/{id}/episodes/batch", admin(seriesHandler.AddEpisodesBatch))
	mux.Handle("DELETE /api/series/{id}/seasons/{season}/episodes/{episode}", admin(seriesHandler.RemoveEpisode))
	mux.Handle("PUT /api/history/{contentId}/progress", withProfile(historyHandler.Progress))
	mux.Handle("PUT /api/history/{contentId}/like", withProfile(historyHandler.Like))
	mux.Handle("POST /api/history/{contentId}/reset", withProfile(historyHandler.Reset))
	mux.Handle("GET /api/history", api(historyHandler.List))
	mux.Handle("GET /api/stats/genres", withProfile(statsHandler.Genres))
	mux.Handle("GET /api/stats/daily", withProfile(statsHandler.Daily))
	mux.Handle("GET /api/admin/users", admin(adminHandler.ListUsers))
	mux.Handle("PATCH /api/admin/users/{id}/roles", admin(adminHandler.SetRoles))

	return &testServer{mux: mux, sessions: sessions}
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	token       string
	cookie      string
}

func (s *testServer) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(req.method, req.path, req.body)
	if req.contentType != "" {
		r.Header.Set("Content-Type", req.contentType)
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.cookie != "" {
		r.AddCookie(&http.Cookie{Name: "session", Value: req.cookie})
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, r)
	return rec
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		body = jsonBody(t, v)
	}
	return s.do(t, request{method: method, path: path, body: body, contentType: "application/json", token: token})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// account registers a user and returns it with a bearer token bound to its first profile
func (s *testServer) account(t *testing.T, email string) (models.User, string) {
	t.Helper()
	rec := s.doJSON(t, http.MethodPost, "/api/auth/register", "", models.RegisterInput{Email: email, Password: "password123", Name: "Sam"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user models.User
	decode(t, rec, &user)
	require.Len(t, user.Profiles, 1)

	rec = s.doJSON(t, http.MethodPost, "/api/auth/token", "", map[string]interface{}{
		"email": email, "password": "password123", "profileId": user.Profiles[0].ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var token struct {
		Token     string `json:"token"`
		TokenType string `json:"tokenType"`
	}
	decode(t, rec, &token)
	assert.Equal(t, "Bearer", token.TokenType)
	return user, token.Token
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, name := range files {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte("file-" + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}
