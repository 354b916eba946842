// Nutribot - conversational KBJU tracking server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ashureev/nutribot/internal/api"
	"github.com/ashureev/nutribot/internal/chatws"
	"github.com/ashureev/nutribot/internal/config"
	"github.com/ashureev/nutribot/internal/convlog"
	"github.com/ashureev/nutribot/internal/dialogue"
	"github.com/ashureev/nutribot/internal/estimator"
	"github.com/ashureev/nutribot/internal/grpchealth"
	"github.com/ashureev/nutribot/internal/identity"
	"github.com/ashureev/nutribot/internal/middleware"
	"github.com/ashureev/nutribot/internal/store"
	"github.com/ashureev/nutribot/internal/telegram"
	"github.com/ashureev/nutribot/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
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

	est := newEstimator(cfg.Estimator, logger)

	convLogger, err := convlog.New(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := convLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	sessions := dialogue.NewSessionManager(time.Now)
	bot := dialogue.NewBot(repo, est, sessions, dialogue.WithConversationLog(convLogger))

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo)
	chatHandler := api.NewChatHandler(bot, limiter)
	wsSessions := chatws.NewSessionManager()
	wsHandler := chatws.NewHandler(bot, wsSessions, limiter, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded chat client (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions.StartSweeper(ctx, cfg.SessionTTL)

	var background sync.WaitGroup

	if cfg.Telegram.Enabled() {
		tgAPI, err := telegram.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			slog.Error("Failed to initialize Telegram bot", "error", err)
			os.Exit(1)
		}
		channel := telegram.NewChannel(tgAPI, bot, cfg.Telegram.PollTimeout, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			channel.Run(ctx)
		}()
	} else {
		slog.Info("Telegram channel disabled (TELEGRAM_BOT_TOKEN not set)")
	}

	var healthServer *grpchealth.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "addr", cfg.GRPCAddr, "error", err)
			os.Exit(1)
		}
		healthServer = grpchealth.NewServer(repo, grpchealth.DefaultConfig(), logger)
		go func() {
			if err := healthServer.Serve(lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

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

	wsSessions.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if healthServer != nil {
		healthServer.Stop()
	}
	background.Wait()

	slog.Info("Server stopped successfully")
}

// newEstimator falls back to a disabled estimator so profile commands keep
// working without an API key.
func newEstimator(cfg config.EstimatorConfig, logger *slog.Logger) estimator.Estimator {
	if !cfg.Enabled() {
		slog.Warn("OPENAI_API_KEY not set, food estimates are disabled")
		return estimator.Disabled{}
	}

	client, err := estimator.NewOpenAIClient(estimator.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Temperature: cfg.Temperature,
	}, logger)
	if err != nil {
		slog.Warn("Failed to initialize estimator, food estimates are disabled", "error", err)
		return estimator.Disabled{}
	}
	slog.Info("Estimator initialized", "model", cfg.Model)
	return client
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
