package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/liamwears/reelstream/internal/database"
	"github.com/liamwears/reelstream/internal/middleware"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/rs/zerolog"
)

const oauthStateCookie = "oauth_state"

// SessionStore keeps server-side sessions
type SessionStore interface {
	GenerateSessionID() (string, error)
	Set(ctx context.Context, sessionID string, sess database.Session) error
	SetProfile(ctx context.Context, sessionID string, profileID uuid.UUID) error
	Delete(ctx context.Context, sessionID string) error
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	userService    *services.UserService
	sessionStore   SessionStore
	authMiddleware *middleware.AuthMiddleware
	googleConfig   *oauth2.Config
	githubConfig   *oauth2.Config
	renderer       *Renderer
	isProduction   bool
	logger         zerolog.Logger
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	CallbackHost       string
	IsProduction       bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	userService *services.UserService,
	sessionStore SessionStore,
	authMiddleware *middleware.AuthMiddleware,
	renderer *Renderer,
	cfg AuthConfig,
	logger zerolog.Logger,
) *AuthHandler {
	ghConfig := &oauth2.Config{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		RedirectURL:  fmt.Sprintf("%s/auth/github/callback", cfg.CallbackHost),
		Scopes:       []string{"user:email"},
		Endpoint:     github.Endpoint,
	}

	googleConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  fmt.Sprintf("%s/auth/google/callback", cfg.CallbackHost),
		Scopes:       []string{"profile", "email"},
		Endpoint:     google.Endpoint,
	}

	logger.Debug().Str("google_callback", googleConfig.RedirectURL).Str("github_callback", ghConfig.RedirectURL).Msg("oauth configured")

	return &AuthHandler{
		userService:    userService,
		sessionStore:   sessionStore,
		authMiddleware: authMiddleware,
		renderer:       renderer,
		isProduction:   cfg.IsProduction,
		logger:         logger,
		googleConfig:   googleConfig,
		githubConfig:   ghConfig,
	}
}

// startSession stores a new session for user and sets the cookie
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) error {
	sessionID, err := h.sessionStore.GenerateSessionID()
	if err != nil {
		return fmt.Errorf("failed to generate session ID: %w", err)
	}

	sess := database.Session{UserID: user.ID}
	// Single-profile accounts start with that profile active
	if len(user.Profiles) == 1 {
		sess.ProfileID = &user.Profiles[0].ID
	}
	if err := h.sessionStore.Set(r.Context(), sessionID, sess); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	h.authMiddleware.SetSessionCookie(w, sessionID)
	return nil
}

// endSession drops the caller's session, if any, and clears the cookie
func (h *AuthHandler) endSession(w http.ResponseWriter, r *http.Request) {
	if identity, ok := middleware.GetIdentity(r.Context()); ok && identity.SessionID != "" {
		if err := h.sessionStore.Delete(r.Context(), identity.SessionID); err != nil {
			h.logger.Warn().Err(err).Msg("failed to delete session")
		}
	}
	h.authMiddleware.ClearSessionCookie(w)
}

// withProfiles reloads user with their profiles
func (h *AuthHandler) withProfiles(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Profiles != nil {
		return user, nil
	}
	return h.userService.Get(ctx, user.ID)
}

// APIRegister handles POST /api/auth/register
func (h *AuthHandler) APIRegister(w http.ResponseWriter, r *http.Request) {
	var input models.RegisterInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.userService.Register(r.Context(), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// APILogin handles POST /api/auth/login
func (h *AuthHandler) APILogin(w http.ResponseWriter, r *http.Request) {
	var input models.LoginInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.userService.Authenticate(r.Context(), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user, err = h.withProfiles(r.Context(), user); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.startSession(w, r, user); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// APIToken handles POST /api/auth/token
func (h *AuthHandler) APIToken(w http.ResponseWriter, r *http.Request) {
	var input struct {
		models.LoginInput
		ProfileID *uuid.UUID `json:"profileId,omitempty"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.userService.Authenticate(r.Context(), input.LoginInput)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	token, err := h.userService.IssueToken(r.Context(), user, input.ProfileID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"tokenType": "Bearer",
	})
}

// APILogout handles POST /api/auth/logout
func (h *AuthHandler) APILogout(w http.ResponseWriter, r *http.Request) {
	h.endSession(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Login displays the login page
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.renderer.RenderPage(w, "login.html", nil)
}

// LoginSubmit handles the login form
func (h *AuthHandler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	input := models.LoginInput{Email: r.FormValue("email"), Password: r.FormValue("password")}

	user, err := h.userService.Authenticate(r.Context(), input)
	if err == nil {
		user, err = h.withProfiles(r.Context(), user)
	}
	if err == nil {
		err = h.startSession(w, r, user)
	}
	if err != nil {
		h.renderFormError(w, "login.html", err, map[string]interface{}{"Email": input.Email})
		return
	}

	http.Redirect(w, r, "/profiles", http.StatusSeeOther)
}

// Register displays the registration page
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.renderer.RenderPage(w, "register.html", nil)
}

// RegisterSubmit handles the registration form
func (h *AuthHandler) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	input := models.RegisterInput{
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		Name:     r.FormValue("name"),
	}

	user, err := h.userService.Register(r.Context(), input)
	if err == nil {
		err = h.startSession(w, r, user)
	}
	if err != nil {
		h.renderFormError(w, "register.html", err, map[string]interface{}{"Email": input.Email, "Name": input.Name})
		return
	}

	http.Redirect(w, r, "/profiles", http.StatusSeeOther)
}

// renderFormError re-renders a form page with the error message and its status
func (h *AuthHandler) renderFormError(w http.ResponseWriter, page string, err error, data map[string]interface{}) {
	status := http.StatusInternalServerError
	message := "Something went wrong, please try again."
	if svcErr, ok := services.AsServiceError(err); ok && svcErr.Status < http.StatusInternalServerError {
		status = svcErr.Status
		message = svcErr.Message
	} else {
		h.logger.Error().Err(err).Str("page", page).Msg("form submission failed")
	}
	data["Error"] = message
	h.renderer.RenderPageStatus(w, status, page, data)
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.endSession(w, r)

	// Redirect to login
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// beginOAuth stores a state token in a short-lived cookie and redirects to the provider
func (h *AuthHandler) beginOAuth(w http.ResponseWriter, r *http.Request, cfg *oauth2.Config, opts ...oauth2.AuthCodeOption) {
	// Generate state token for CSRF protection
	state, err := h.sessionStore.GenerateSessionID()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to generate state token")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, cfg.AuthCodeURL(state, opts...), http.StatusTemporaryRedirect)
}

// exchange verifies the callback state and trades the code for a token
func (h *AuthHandler) exchange(w http.ResponseWriter, r *http.Request, cfg *oauth2.Config) (*oauth2.Token, bool) {
	cookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return nil, false
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/auth/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "No code provided", http.StatusBadRequest)
		return nil, false
	}

	// Exchange code for token
	token, err := cfg.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to exchange code")
		http.Error(w, "Failed to exchange code", http.StatusInternalServerError)
		return nil, false
	}
	return token, true
}

// finishOAuth links or creates the account and starts a session
func (h *AuthHandler) finishOAuth(w http.ResponseWriter, r *http.Request, provider models.Provider, providerID, email, name string) {
	user, err := h.userService.FindOrCreateOAuth(r.Context(), provider, providerID, email, name)
	if err == nil {
		user, err = h.withProfiles(r.Context(), user)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("provider", provider.String()).Msg("failed to find or create user")
		http.Error(w, "Failed to sign in", http.StatusInternalServerError)
		return
	}

	if err := h.startSession(w, r, user); err != nil {
		h.logger.Error().Err(err).Msg("failed to start session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/profiles", http.StatusSeeOther)
}

// GoogleLogin initiates Google OAuth flow
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	h.beginOAuth(w, r, h.googleConfig, oauth2.AccessTypeOnline)
}

// GoogleCallback handles Google OAuth callback
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	token, ok := h.exchange(w, r, h.googleConfig)
	if !ok {
		return
	}

	// Get user info from Google
	client := h.googleConfig.Client(r.Context(), token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get google user info")
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	var userInfo struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		h.logger.Error().Err(err).Msg("failed to decode google user info")
		http.Error(w, "Failed to decode user info", http.StatusInternalServerError)
		return
	}

	h.finishOAuth(w, r, models.ProviderGoogle, userInfo.ID, userInfo.Email, userInfo.Name)
}

// GitHubLogin initiates GitHub OAuth flow
func (h *AuthHandler) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	h.beginOAuth(w, r, h.githubConfig)
}

// GitHubCallback handles GitHub OAuth callback
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	token, ok := h.exchange(w, r, h.githubConfig)
	if !ok {
		return
	}

	// Get user info from GitHub
	client := h.githubConfig.Client(r.Context(), token)
	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get github user info")
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	var userInfo struct {
		ID    int    `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		h.logger.Error().Err(err).Msg("failed to decode github user info")
		http.Error(w, "Failed to decode user info", http.StatusInternalServerError)
		return
	}

	// GitHub might not return email in main user object, need to fetch separately if null
	if userInfo.Email == "" {
		emailResp, err := client.Get("https://api.github.com/user/emails")
		if err == nil {
			defer emailResp.Body.Close()
			var emails []struct {
				Email    string `json:"email"`
				Primary  bool   `json:"primary"`
				Verified bool   `json:"verified"`
			}
			if err := json.NewDecoder(emailResp.Body).Decode(&emails); err == nil {
				for _, email := range emails {
					if email.Primary && email.Verified {
						userInfo.Email = email.Email
						break
					}
				}
			}
		}
	}

	// Use login if name is empty
	if userInfo.Name == "" {
		userInfo.Name = userInfo.Login
	}

	h.finishOAuth(w, r, models.ProviderGitHub, fmt.Sprintf("%d", userInfo.ID), userInfo.Email, userInfo.Name)
}
