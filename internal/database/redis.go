package database

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrSessionNotFound is returned when a session ID is unknown or expired
var ErrSessionNotFound = errors.New("session not found")

// RedisClient wraps the redis client
type RedisClient struct {
	*redis.Client
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// NewRedisClient creates a new Redis client
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*RedisClient, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping Redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("connected to redis")

	return &RedisClient{Client: client}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r.Client != nil {
		log.Info().Msg("closing redis connection")
		return r.Client.Close()
	}
	return nil
}

// Health checks the Redis connection health
func (r *RedisClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.Ping(ctx).Err()
}

// Session is the value stored under a session key
type Session struct {
	UserID    uuid.UUID  `json:"userId"`
	ProfileID *uuid.UUID `json:"profileId,omitempty"`
}

// SessionStore handles session storage in Redis
type SessionStore struct {
	client *RedisClient
	ttl    time.Duration
}

// NewSessionStore creates a new session store
func NewSessionStore(client *RedisClient, ttl time.Duration) *SessionStore {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour // default 7 days
	}
	return &SessionStore{
		client: client,
		ttl:    ttl,
	}
}

// GenerateSessionID generates a cryptographically secure session ID
func (s *SessionStore) GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// Set stores a session value
func (s *SessionStore) Set(ctx context.Context, sessionID string, sess Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.client.Set(ctx, sessionKey(sessionID), raw, s.ttl).Err()
}

// Get retrieves a session and refreshes its TTL
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := sessionKey(sessionID)

	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("invalid session payload: %w", err)
	}

	// Refresh TTL on access
	s.client.Expire(ctx, key, s.ttl)

	return &sess, nil
}

// SetProfile records the active profile on an existing session
func (s *SessionStore) SetProfile(ctx context.Context, sessionID string, profileID uuid.UUID) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.ProfileID = &profileID
	return s.Set(ctx, sessionID, *sess)
}

// Delete removes a session
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKey(sessionID)).Err()
}

// Cache is a small TTL cache on top of Redis for derived read models
type Cache struct {
	client *RedisClient
	prefix string
}

// NewCache creates a cache whose keys are namespaced by prefix
func NewCache(client *RedisClient, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Get returns the cached bytes; ok is false on a miss
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores value under key for ttl
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}
