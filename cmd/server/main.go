package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/liamwears/reelstream/internal/config"
	"github.com/liamwears/reelstream/internal/database"
	"github.com/liamwears/reelstream/internal/handlers"
	"github.com/liamwears/reelstream/internal/metrics"
	"github.com/liamwears/reelstream/internal/middleware"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/services"
	"github.com/liamwears/reelstream/internal/storage"
	"github.com/liamwears/reelstream/internal/store"
	"github.com/liamwears/reelstream/internal/store/memory"
	"github.com/liamwears/reelstream/internal/store/postgres"
	"github.com/liamwears/reelstream/internal/telemetry"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.Log)
	log.Logger = logger

	// Check for migrate command
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg, os.Args[2:])
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Format == "pretty" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.With().Timestamp().Str("service", "reelstream").Logger()
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	logger.Info().Str("env", cfg.Server.Env).Str("store", cfg.Database.Driver).Msg("starting reelstream")

	// Error reporting
	enabled, err := telemetry.InitSentry(cfg.Server.SentryDSN, cfg.Server.Env, version)
	if err != nil {
		logger.Warn().Err(err).Msg("sentry disabled")
	} else if enabled {
		defer telemetry.Flush()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage backend
	var (
		stores   store.Store
		dbHealth func(context.Context) error
	)
	switch cfg.Database.Driver {
	case "memory":
		stores = memory.New().Bundle()
		dbHealth = func(context.Context) error { return nil }
	default:
		db, err := database.New(ctx, cfg.Database.Pool())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := database.NewMigrator(db.Pool).Up(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		stores = postgres.New(db.Pool)
		dbHealth = db.Health
	}

	// Initialize Redis connection
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       0,
		TLS:      cfg.Redis.TLS,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	sessionStore := database.NewSessionStore(redisClient, 7*24*time.Hour)
	statsCache := database.NewCache(redisClient, "stats")

	// Initialize file storage
	var files storage.Storage
	if cfg.Uploads.UseSpaces {
		files, err = storage.NewSpacesStorage(
			cfg.Uploads.SpacesEndpoint,
			cfg.Uploads.SpacesRegion,
			cfg.Uploads.SpacesBucket,
			cfg.Uploads.SpacesCDNURL,
			cfg.Uploads.SpacesAccessKey,
			cfg.Uploads.SpacesSecretKey,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize spaces storage: %w", err)
		}
	} else {
		files = storage.NewLocalStorage(cfg.Uploads.Dir, "/uploads")
	}

	// Initialize services
	tokens := services.NewTokenService(cfg.Session.JWTSecret, cfg.Session.TokenTTL)
	ratings := services.NewTMDBService(services.TMDBConfig{
		APIKey:  cfg.TMDB.APIKey,
		BaseURL: cfg.TMDB.BaseURL,
	})
	enricher := services.NewEnricher(stores.Content, ratings, logger, cfg.Enrich.Workers, cfg.Enrich.QueueSize)

	userService := services.NewUserService(stores.Users, tokens, files, cfg.Session.AdminEmails, logger.With().Str("component", "users").Logger())
	contentService := services.NewContentService(stores.Content, files, enricher, logger.With().Str("component", "content").Logger())
	historyService := services.NewHistoryService(stores.History, stores.Content, stores.Users, cfg.Server.Timezone, logger.With().Str("component", "history").Logger())
	statsService := services.NewStatsService(stores.History, stores.Content, statsCache, cfg.Stats.CacheTTL, cfg.Server.Timezone, logger.With().Str("component", "stats").Logger())

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(sessionStore, userService, tokens, logger, "session", cfg.IsProduction())

	// Initialize rate limiter (100 req/min in production, unlimited in local/dev)
	maxRequests := 1000
	if cfg.IsProduction() {
		maxRequests = 100
	}
	rateLimiter := middleware.NewRateLimiter(redisClient.Client, maxRequests, time.Minute, cfg.IsProduction(), cfg.Server.TrustProxy, logger)

	// Initialize renderer
	renderer, err := handlers.NewRenderer(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize renderer: %w", err)
	}

	// Initialize handlers
	maxUpload := cfg.Uploads.MaxMB << 20
	authHandler := handlers.NewAuthHandler(
		userService,
		sessionStore,
		authMiddleware,
		renderer,
		handlers.AuthConfig{
			GoogleClientID:     cfg.OAuth.GoogleClientID,
			GoogleClientSecret: cfg.OAuth.GoogleClientSecret,
			GitHubClientID:     cfg.OAuth.GitHubClientID,
			GitHubClientSecret: cfg.OAuth.GitHubClientSecret,
			CallbackHost:       cfg.OAuth.CallbackHost,
			IsProduction:       cfg.IsProduction(),
		},
		logger,
	)
	contentHandler := handlers.NewContentHandler(contentService, maxUpload, logger)
	seriesHandler := handlers.NewSeriesHandler(contentService, maxUpload, logger)
	historyHandler := handlers.NewHistoryHandler(historyService, logger)
	statsHandler := handlers.NewStatsHandler(statsService, logger)
	profileHandler := handlers.NewProfileHandler(userService, sessionStore, maxUpload, logger)
	adminHandler := handlers.NewAdminHandler(userService, logger)
	pageHandler := handlers.NewPageHandler(contentService, historyService, statsService, userService, sessionStore, renderer, logger)

	// Route helpers. The limiter sits inside auth so it can key by user.
	api := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.RequireAuthAPI(rateLimiter.Limit(h))
	}
	withProfile := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.RequireAuthAPI(rateLimiter.Limit(authMiddleware.RequireProfile(h)))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.RequireAuthAPI(rateLimiter.Limit(authMiddleware.RequireRole(models.RoleAdmin)(h)))
	}
	page := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.RequireAuth(h)
	}

	mux := http.NewServeMux()

	// Auth routes (public)
	mux.HandleFunc("GET /login", authHandler.Login)
	mux.Handle("POST /login", rateLimiter.Limit(http.HandlerFunc(authHandler.LoginSubmit)))
	mux.HandleFunc("GET /register", authHandler.Register)
	mux.Handle("POST /register", rateLimiter.Limit(http.HandlerFunc(authHandler.RegisterSubmit)))
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("GET /auth/github/login", authHandler.GitHubLogin)
	mux.HandleFunc("GET /auth/github/callback", authHandler.GitHubCallback)
	mux.Handle("POST /auth/logout", page(authHandler.Logout))

	// Page routes (protected)
	mux.Handle("GET /profiles", page(pageHandler.Profiles))
	mux.Handle("POST /profiles", page(pageHandler.CreateProfile))
	mux.Handle("POST /profiles/{id}/select", page(pageHandler.SelectProfile))
	mux.Handle("GET /browse", page(pageHandler.Browse))
	mux.Handle("GET /title/{id}", page(pageHandler.Title))
	mux.Handle("GET /history", page(pageHandler.History))
	mux.Handle("GET /stats", page(pageHandler.Stats))
	mux.Handle("GET /{$}", http.RedirectHandler("/browse", http.StatusSeeOther))

	// Auth API
	mux.Handle("POST /api/auth/register", rateLimiter.Limit(http.HandlerFunc(authHandler.APIRegister)))
	mux.Handle("POST /api/auth/login", rateLimiter.Limit(http.HandlerFunc(authHandler.APILogin)))
	mux.Handle("POST /api/auth/token", rateLimiter.Limit(http.HandlerFunc(authHandler.APIToken)))
	mux.Handle("POST /api/auth/logout", api(authHandler.APILogout))

	// Account and profiles
	mux.Handle("GET /api/me", api(profileHandler.Me))
	mux.Handle("PATCH /api/me", api(profileHandler.UpdateMe))
	mux.Handle("GET /api/profiles", api(profileHandler.List))
	mux.Handle("POST /api/profiles", api(profileHandler.Create))
	mux.Handle("PATCH /api/profiles/{id}", api(profileHandler.Update))
	mux.Handle("DELETE /api/profiles/{id}", api(profileHandler.Delete))
	mux.Handle("POST /api/profiles/{id}/select", api(profileHandler.Select))

	// Catalog
	mux.Handle("GET /api/content", api(contentHandler.List))
	mux.Handle("POST /api/content", admin(contentHandler.Create))
	mux.Handle("GET /api/content/{id}", api(contentHandler.Get))
	mux.Handle("PATCH /api/content/{id}", admin(contentHandler.Update))
	mux.Handle("DELETE /api/content/{id}", admin(contentHandler.Delete))
	mux.Handle("POST /api/series", admin(seriesHandler.Create))
	mux.Handle("POST /api/series/{id}/episodes", admin(seriesHandler.AddEpisode))
	mux.Handle("POST /api/series/{id}/episodes/batch", admin(seriesHandler.AddEpisodesBatch))
	mux.Handle("PATCH /api/series/{id}/seasons/{season}/episodes/{episode}", admin(seriesHandler.UpdateEpisode))
	mux.Handle("DELETE /api/series/{id}/seasons/{season}/episodes/{episode}", admin(seriesHandler.RemoveEpisode))

	// Watch history and stats
	mux.Handle("PUT /api/history/{contentId}/progress", withProfile(historyHandler.Progress))
	mux.Handle("PUT /api/history/{contentId}/like", withProfile(historyHandler.Like))
	mux.Handle("POST /api/history/{contentId}/reset", withProfile(historyHandler.Reset))
	mux.Handle("GET /api/history", api(historyHandler.List))
	mux.Handle("GET /api/stats/genres", withProfile(statsHandler.Genres))
	mux.Handle("GET /api/stats/daily", withProfile(statsHandler.Daily))

	// Administration
	mux.Handle("GET /api/admin/users", admin(adminHandler.ListUsers))
	mux.Handle("PATCH /api/admin/users/{id}/roles", admin(adminHandler.SetRoles))
	mux.Handle("DELETE /api/admin/users/{id}", admin(adminHandler.DeleteUser))

	// Serve uploaded files
	if !cfg.Uploads.UseSpaces {
		uploads := http.FileServer(http.Dir(cfg.Uploads.Dir))
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", uploads))
	}

	// Observability
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// Check database health
		dbErr := dbHealth(r.Context())
		redisErr := redisClient.Health(r.Context())

		if dbErr != nil || redisErr != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			dbStatus := "up"
			if dbErr != nil {
				dbStatus = "down"
			}
			redisStatus := "up"
			if redisErr != nil {
				redisStatus = "down"
			}
			fmt.Fprintf(w, `{"status":"unhealthy","database":"%s","redis":"%s"}`, dbStatus, redisStatus)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","database":"up","redis":"up"}`)
	})

	// Wrap with CORS, recovery and logging middleware
	var handler http.Handler = mux
	if len(cfg.Server.CorsOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		})(handler)
	}
	handler = middleware.Recover(logger)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	// Start enrichment workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	enricher.Start(workerCtx)

	// Create HTTP server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		stopWorkers()
		enricher.Wait()
		return fmt.Errorf("server failed to start: %w", err)
	}

	logger.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	stopWorkers()
	enricher.Wait()

	logger.Info().Msg("server exited")
	return nil
}

// runMigrations runs database migrations: migrate [up|down|status]
func runMigrations(cfg *config.Config, args []string) {
	if cfg.Database.Driver != "postgres" {
		log.Fatal().Str("driver", cfg.Database.Driver).Msg("migrations need STORE_DRIVER=postgres")
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.Database.Pool())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	migrator := database.NewMigrator(db.Pool)

	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	case "status":
		var statuses []database.MigrationStatus
		if statuses, err = migrator.Status(ctx); err == nil {
			for _, st := range statuses {
				state := "pending"
				if st.Applied {
					state = "applied"
				}
				fmt.Printf("%s_%s\t%s\n", st.Version, st.Name, state)
			}
		}
	default:
		log.Fatal().Str("command", cmd).Msg("usage: migrate [up|down|status]")
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("migration failed")
	}

	log.Info().Str("command", cmd).Msg("migrations completed successfully")
}
