// Stylebot - WhatsApp stylist assistant backend
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/veluna/stylebot/internal/api"
	"github.com/veluna/stylebot/internal/config"
	"github.com/veluna/stylebot/internal/engine"
	"github.com/veluna/stylebot/internal/middleware"
	"github.com/veluna/stylebot/internal/provider"
	"github.com/veluna/stylebot/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

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

	// Capability providers.
	providers := engine.Providers{
		Vision:     provider.NewHTTPVisionAnalyzer(cfg.Vision.URL, cfg.Vision.Token, cfg.Vision.Timeout),
		Search:     provider.NewHTTPProductSearch(cfg.Search.URL, cfg.Search.Token, cfg.Search.TopN, cfg.Search.Timeout),
		Compositor: provider.NewHTTPGarmentCompositor(cfg.Compositor.URL, cfg.Compositor.Token, cfg.Compositor.PollInterval, cfg.Compositor.PollTimeout),
		Dispatcher: provider.NewWhatsAppDispatcher(cfg.WhatsApp.URL, cfg.WhatsApp.Token, cfg.WhatsApp.Timeout),
	}

	quota := engine.Quota{
		FreeAnalyses: cfg.FreeAnalyses,
		FreeTryOns:   cfg.FreeTryOns,
	}

	eng := engine.New(repo, providers, quota)

	// Dashboard live activity feed.
	turnEvents := make(chan engine.TurnEvent, cfg.FeedQueueSize)
	eng.SetActivityFeed(turnEvents)
	feed := api.NewDashboardFeed(turnEvents)
	defer feed.Close()

	handler := api.NewHandler(eng, repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	handler.RegisterRoutes(r)
	r.Get("/ws/dashboard", feed.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout; compositor-backed turns can take tens of seconds
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	}

	slog.Info("Server stopped")
}
