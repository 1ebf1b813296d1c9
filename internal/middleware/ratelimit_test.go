package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Identifier(t *testing.T) {
	t.Run("direct clients", func(t *testing.T) {
		rl := NewRateLimiter(nil, 10, time.Minute, false, false, zerolog.Nop())

		req := httptest.NewRequest(http.MethodGet, "/api/content", nil)
		req.RemoteAddr = "10.0.0.7:51234"
		assert.Equal(t, "ip:10.0.0.7", rl.getIdentifier(req))

		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		assert.Equal(t, "ip:10.0.0.7", rl.getIdentifier(req), "forwarded header ignored without a trusted proxy")
	})

	t.Run("behind a trusted proxy", func(t *testing.T) {
		rl := NewRateLimiter(nil, 10, time.Minute, false, true, zerolog.Nop())

		req := httptest.NewRequest(http.MethodGet, "/api/content", nil)
		req.RemoteAddr = "10.0.0.1:443"
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		assert.Equal(t, "ip:203.0.113.9", rl.getIdentifier(req))

		req.Header.Del("X-Forwarded-For")
		assert.Equal(t, "ip:10.0.0.1", rl.getIdentifier(req))
	})

	t.Run("authenticated", func(t *testing.T) {
		rl := NewRateLimiter(nil, 10, time.Minute, false, false, zerolog.Nop())
		userID := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/api/content", nil)
		req = req.WithContext(context.WithValue(req.Context(), IdentityContextKey, &Identity{UserID: userID}))
		assert.Equal(t, "user:"+userID.String(), rl.getIdentifier(req))
	})
}

func TestRateLimiter_KeysByUserBehindAuth(t *testing.T) {
	f := newAuthFixture(t)

	// nothing listens on port 1, so every check fails open and logs its key
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { client.Close() })

	var logs bytes.Buffer
	rl := NewRateLimiter(client, 10, time.Minute, true, false, zerolog.New(&logs))

	var seen *Identity
	chain := f.mw.RequireAuthAPI(rl.Limit(echoIdentity(&seen)))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "valid"})
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Contains(t, logs.String(), `"identifier":"user:`+f.user.ID.String()+`"`)
	assert.NotContains(t, logs.String(), "1.2.3.4")
}

func TestRateLimiter_SkippedOutsideProduction(t *testing.T) {
	rl := NewRateLimiter(nil, 1, time.Minute, false, false, zerolog.Nop())
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/content", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
