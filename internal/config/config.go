package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/liamwears/reelstream/internal/database"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	OAuth    OAuthConfig
	TMDB     TMDBConfig
	Session  SessionConfig
	Uploads  UploadConfig
	Enrich   EnrichConfig
	Stats    StatsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Env         string
	Port        string
	Host        string
	CorsOrigins []string
	Timezone    *time.Location
	SentryDSN   string
	TrustProxy  bool
}

type DatabaseConfig struct {
	Driver   string
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	TLS      bool
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	CallbackHost       string
}

type TMDBConfig struct {
	APIKey  string
	BaseURL string
}

type SessionConfig struct {
	SecretKey   string
	JWTSecret   string
	TokenTTL    time.Duration
	AdminEmails []string
}

type UploadConfig struct {
	Dir             string
	MaxMB           int64
	UseSpaces       bool
	SpacesEndpoint  string
	SpacesRegion    string
	SpacesBucket    string
	SpacesCDNURL    string
	SpacesAccessKey string
	SpacesSecretKey string
}

type EnrichConfig struct {
	Workers   int
	QueueSize int
}

type StatsConfig struct {
	CacheTTL time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads environment variables and returns a Config struct
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	tz, err := time.LoadLocation(getEnv("APP_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}

	secret := getEnv("SECRET_KEY", "")

	cfg := &Config{
		Server: ServerConfig{
			Env:         getEnv("APP_ENV", "local"),
			Port:        getEnv("PORT", "4000"),
			Host:        getEnv("HOST", "http://localhost:4000"),
			CorsOrigins: parseCSV(getEnv("CORS_ORIGINS", "")),
			Timezone:    tz,
			SentryDSN:   getEnv("SENTRY_DSN", ""),
			TrustProxy:  getEnv("TRUST_PROXY", "false") == "true",
		},
		Database: DatabaseConfig{
			Driver:   getEnv("STORE_DRIVER", "postgres"),
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt("DB_MAX_CONNS", 20),
			MinConns: getEnvInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			TLS:      getEnv("REDIS_TLS", "false") == "true",
		},
		OAuth: OAuthConfig{
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			CallbackHost:       getEnv("HOST", "http://localhost:4000"),
		},
		TMDB: TMDBConfig{
			APIKey:  getEnv("TMDB_KEY", ""),
			BaseURL: getEnv("TMDB_URL", "https://api.themoviedb.org/3"),
		},
		Session: SessionConfig{
			SecretKey:   secret,
			JWTSecret:   getEnv("JWT_SECRET", secret),
			TokenTTL:    getEnvDuration("TOKEN_TTL", 24*time.Hour),
			AdminEmails: parseCSV(strings.ToLower(getEnv("ADMIN_EMAILS", ""))),
		},
		Uploads: UploadConfig{
			Dir:             getEnv("UPLOAD_DIR", "./uploads"),
			MaxMB:           int64(getEnvInt("MAX_UPLOAD_MB", 512)),
			UseSpaces:       getEnv("USE_SPACES", "false") == "true",
			SpacesEndpoint:  getEnv("SPACES_ENDPOINT", ""),
			SpacesRegion:    getEnv("SPACES_REGION", ""),
			SpacesBucket:    getEnv("SPACES_BUCKET", ""),
			SpacesCDNURL:    getEnv("SPACES_CDN_URL", ""),
			SpacesAccessKey: getEnv("SPACES_ACCESS_KEY", ""),
			SpacesSecretKey: getEnv("SPACES_SECRET_KEY", ""),
		},
		Enrich: EnrichConfig{
			Workers:   getEnvInt("ENRICH_WORKERS", 2),
			QueueSize: getEnvInt("ENRICH_QUEUE", 256),
		},
		Stats: StatsConfig{
			CacheTTL: getEnvDuration("STATS_CACHE_TTL", time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required fields
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Database.Driver)
	}
	if cfg.Session.SecretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY is required")
	}
	if len(cfg.Session.SecretKey) < 32 {
		return nil, fmt.Errorf("SECRET_KEY must be at least 32 characters")
	}
	if cfg.Uploads.UseSpaces && cfg.Uploads.SpacesBucket == "" {
		return nil, fmt.Errorf("SPACES_BUCKET is required when USE_SPACES=true")
	}
	if cfg.Enrich.Workers < 1 {
		cfg.Enrich.Workers = 1
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	parsed, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	parsed, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			items = append(items, value)
		}
	}
	return items
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IsDevelopment returns true if running in development/local mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "local" || c.Server.Env == "development"
}

// RedisAddr returns the Redis address in host:port format
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// IsAdminEmail reports whether new accounts with this email start with the admin role.
func (c *Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range c.Session.AdminEmails {
		if e == email {
			return true
		}
	}
	return false
}

// Pool returns the pgx pool settings for the configured database
func (d DatabaseConfig) Pool() database.Config {
	return database.Config{
		URL:      d.URL,
		MaxConns: int32(d.MaxConns),
		MinConns: int32(d.MinConns),
	}
}
