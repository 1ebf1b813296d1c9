package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimiter provides rate limiting functionality
type RateLimiter struct {
	redis        redis.Cmdable
	maxRequests  int
	window       time.Duration
	isProduction bool
	trustProxy   bool
	logger       zerolog.Logger
}

// NewRateLimiter creates a new rate limiter. X-Forwarded-For is only
// honoured when trustProxy is set.
func NewRateLimiter(client redis.Cmdable, maxRequests int, window time.Duration, isProduction, trustProxy bool, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		redis:        client,
		maxRequests:  maxRequests,
		window:       window,
		isProduction: isProduction,
		trustProxy:   trustProxy,
		logger:       logger,
	}
}

// Limit returns a middleware that rate limits requests
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get identifier (user ID if authenticated, IP otherwise)
		identifier := rl.getIdentifier(r)

		// Check rate limit
		allowed, err := rl.checkRateLimit(r.Context(), identifier)
		if err != nil {
			// Fail open when redis is unavailable
			rl.logger.Warn().Err(err).Str("identifier", identifier).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"too many requests, please try again later"}`)
			return
		}

		// Request allowed, continue
		next.ServeHTTP(w, r)
	})
}

// getIdentifier returns the identifier for rate limiting
func (rl *RateLimiter) getIdentifier(r *http.Request) string {
	if identity, ok := GetIdentity(r.Context()); ok {
		return fmt.Sprintf("user:%s", identity.UserID.String())
	}

	return fmt.Sprintf("ip:%s", rl.clientIP(r))
}

func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if ip := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-For"), ",")[0]); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// checkRateLimit checks if the request should be allowed
func (rl *RateLimiter) checkRateLimit(ctx context.Context, identifier string) (bool, error) {
	// Skip rate limiting in local/dev mode for easier testing
	if !rl.isProduction || rl.redis == nil {
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:%s", identifier)
	now := time.Now()
	windowStart := now.Add(-rl.window).UnixNano()

	// Use Redis sorted set for sliding window
	pipe := rl.redis.Pipeline()

	// Remove old entries outside the window
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))

	// Count requests in current window
	countCmd := pipe.ZCard(ctx, key)

	// Add current request; members must be unique or same-instant requests collapse
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})

	// Set expiry on the key
	pipe.Expire(ctx, key, rl.window)

	// Execute pipeline
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	// Check if count exceeds limit
	return countCmd.Val() < int64(rl.maxRequests), nil
}
