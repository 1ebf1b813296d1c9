package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/database"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/rs/zerolog"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// IdentityContextKey is the key for storing the caller's identity in context
const IdentityContextKey ContextKey = "identity"

var errNoCredentials = errors.New("no credentials")

// Identity is who the request acts as
type Identity struct {
	UserID    uuid.UUID
	ProfileID *uuid.UUID
	Roles     []models.Role
	// SessionID is empty for bearer token requests
	SessionID string
}

// HasRole reports whether the identity carries role
func (i *Identity) HasRole(role models.Role) bool {
	return models.HasRole(i.Roles, role)
}

// Sessions reads server-side sessions
type Sessions interface {
	Get(ctx context.Context, sessionID string) (*database.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// Accounts looks up the live state of users and their profiles
type Accounts interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetProfile(ctx context.Context, userID, profileID uuid.UUID) (*models.Profile, error)
}

// AuthMiddleware handles authentication for protected routes.
// Requests authenticate with the session cookie or an "Authorization: Bearer" token.
type AuthMiddleware struct {
	sessions     Sessions
	accounts     Accounts
	tokens       *services.TokenService
	logger       zerolog.Logger
	cookieName   string
	isProduction bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(sessions Sessions, accounts Accounts, tokens *services.TokenService, logger zerolog.Logger, cookieName string, isProduction bool) *AuthMiddleware {
	if cookieName == "" {
		cookieName = "session"
	}
	return &AuthMiddleware{
		sessions:     sessions,
		accounts:     accounts,
		tokens:       tokens,
		logger:       logger,
		cookieName:   cookieName,
		isProduction: isProduction,
	}
}

// identify resolves the request's credentials into an Identity
func (m *AuthMiddleware) identify(r *http.Request) (*Identity, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return nil, errNoCredentials
		}
		claims, err := m.tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return nil, err
		}
		identity := &Identity{UserID: userID, Roles: claims.Roles}
		if claims.ProfileID != "" {
			pid, err := uuid.Parse(claims.ProfileID)
			if err != nil {
				return nil, err
			}
			identity.ProfileID = &pid
		}
		return identity, nil
	}

	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return nil, errNoCredentials
	}

	// Get session from redis
	sess, err := m.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}

	// Roles are read from the account on every request so changes apply at once
	user, err := m.accounts.Get(r.Context(), sess.UserID)
	if err != nil {
		_ = m.sessions.Delete(r.Context(), cookie.Value)
		return nil, err
	}

	return &Identity{
		UserID:    user.ID,
		ProfileID: sess.ProfileID,
		Roles:     user.Roles,
		SessionID: cookie.Value,
	}, nil
}

func withIdentity(r *http.Request, identity *Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), IdentityContextKey, identity))
}

// RequireAuth ensures the user is authenticated, redirecting pages to the login form
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.identify(r)
		if err != nil {
			if !errors.Is(err, errNoCredentials) {
				m.ClearSessionCookie(w)
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, withIdentity(r, identity))
	})
}

// RequireAuthAPI ensures the user is authenticated for API requests
func (m *AuthMiddleware) RequireAuthAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.identify(r)
		if err != nil {
			if !errors.Is(err, errNoCredentials) {
				m.logger.Debug().Err(err).Msg("rejected credentials")
			}
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, withIdentity(r, identity))
	})
}

// RequireProfile ensures an active profile owned by the caller is selected.
// Must run after RequireAuthAPI.
func (m *AuthMiddleware) RequireProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := GetIdentity(r.Context())
		if !ok {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if identity.ProfileID == nil {
			http.Error(w, `{"error":"select a profile first"}`, http.StatusForbidden)
			return
		}
		if _, err := m.accounts.GetProfile(r.Context(), identity.UserID, *identity.ProfileID); err != nil {
			http.Error(w, `{"error":"select a profile first"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole ensures the caller carries role. Must run after RequireAuthAPI.
func (m *AuthMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentity(r.Context())
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if !identity.HasRole(role) {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity retrieves the caller's identity from request context
func GetIdentity(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*Identity)
	return identity, ok
}

// SetSessionCookie sets a session cookie
func (m *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	cookie := &http.Cookie{
		Name:     m.cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60, // 7 days
		HttpOnly: true,
		Secure:   m.isProduction,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie clears the session cookie
func (m *AuthMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.isProduction,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
}
