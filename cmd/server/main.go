// ChatDesk - Customer Support Chat Orchestration Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eroshenko/chatdesk/internal/admin"
	"github.com/eroshenko/chatdesk/internal/analytics"
	"github.com/eroshenko/chatdesk/internal/api"
	"github.com/eroshenko/chatdesk/internal/balancer"
	"github.com/eroshenko/chatdesk/internal/breaker"
	"github.com/eroshenko/chatdesk/internal/cache"
	"github.com/eroshenko/chatdesk/internal/config"
	"github.com/eroshenko/chatdesk/internal/convctx"
	"github.com/eroshenko/chatdesk/internal/middleware"
	"github.com/eroshenko/chatdesk/internal/nlp"
	"github.com/eroshenko/chatdesk/internal/pipeline"
	"github.com/eroshenko/chatdesk/internal/realtime"
	"github.com/eroshenko/chatdesk/internal/session"
	"github.com/eroshenko/chatdesk/internal/store"
	"github.com/eroshenko/chatdesk/internal/token"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			slog.Error("Failed to close Redis client", "error", closeErr)
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		slog.Error("Redis health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Redis connected", "addr", cfg.RedisAddr)

	emitter, err := analytics.NewEmitter(analytics.Config{
		Enabled:   cfg.Analytics.Enabled,
		Path:      cfg.Analytics.Path,
		QueueSize: cfg.Analytics.QueueSize,
	})
	if err != nil {
		slog.Error("Failed to initialize analytics emitter", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := emitter.Close(); closeErr != nil {
			slog.Error("Failed to close analytics emitter", "error", closeErr)
		}
	}()

	// Initialize services.
	configCache := cache.New(redisClient)
	adminClient := admin.NewClient(cfg.AdminBaseURL, cfg.AdminTimeout, configCache, cfg.TenantID)
	nlpClient := nlp.NewClient(cfg.NLPBaseURL, cfg.NLPTimeout, cfg.NLPRetryAttempts, cfg.NLPRetryBackoff)
	brk := breaker.New(redisClient, cfg.BreakerThreshold, cfg.BreakerCooldown)
	contexts := convctx.New(redisClient)
	lb := balancer.New(repo)
	pipe := pipeline.New(repo, adminClient, nlpClient, brk, contexts, lb, emitter)

	tokens := token.NewManager(cfg.TokenSecret, 0)
	registry := realtime.NewRegistry()

	// Initialize handlers.
	chatHandler := api.NewChatHandler(repo, pipe, tokens)
	wsHandler := realtime.NewHandler(repo, pipe, adminClient, registry, cfg.AllowedOrigins, isDevelopment(cfg))

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	chatHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	// Create server. WebSocket channels are long-lived, so no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start idle session sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartIdleSweeper(ctx, repo, contexts, cfg.SessionIdleTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func isDevelopment(cfg *config.Config) bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	for _, origin := range cfg.AllowedOrigins {
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			return true
		}
	}
	return false
}
