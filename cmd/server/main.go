package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mmeink/livechat/backend/internal/api"
	"github.com/mmeink/livechat/backend/internal/archive"
	"github.com/mmeink/livechat/backend/internal/auth"
	"github.com/mmeink/livechat/backend/internal/chat"
	"github.com/mmeink/livechat/backend/internal/config"
	"github.com/mmeink/livechat/backend/internal/dispatch"
	"github.com/mmeink/livechat/backend/internal/metrics"
	"github.com/mmeink/livechat/backend/internal/queue"
	"github.com/mmeink/livechat/backend/internal/registry"
	"github.com/mmeink/livechat/backend/internal/storage"
	"github.com/mmeink/livechat/backend/internal/sweeper"
	"github.com/mmeink/livechat/backend/internal/websocket"
	"github.com/mmeink/livechat/backend/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting livechat backend server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage (DynamoDB or noop, per DYNAMO_MODE)
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Core state
	agents := registry.New(cfg.MaxConcurrentChats, log.Logger)
	sessions := chat.NewStore(cfg.ResumeTokenTTL, log.Logger)
	waitQueue := queue.New(log.Logger)
	recorder := metrics.NewRecorder(store, log.Logger)
	archiver := archive.New(store, log.Logger)

	// Agent WebSocket hub
	hub := websocket.NewAgentHub(agents, log.Logger)
	go hub.Run()

	// Dispatcher and sweeper loops
	dispatcher := dispatch.New(sessions, waitQueue, agents, recorder, hub, archiver,
		cfg.TransferAcceptTimeout, cfg.DispatchInterval, log.Logger)
	go dispatcher.Start(ctx)

	abandonSweeper := sweeper.New(sessions, waitQueue, recorder,
		cfg.AbandonmentThreshold, cfg.SweeperInterval, log.Logger)
	go abandonSweeper.Start(ctx)

	// HTTP handlers
	wsHandler := websocket.NewAgentHandler(hub, cfg, log.Logger)
	customerAPI := api.NewCustomerHandler(sessions, dispatcher, recorder, log.Logger)
	agentAPI := api.NewAgentHandler(sessions, dispatcher, agents, log.Logger)
	adminAPI := api.NewAdminHandler(sessions, waitQueue, agents, recorder, dispatcher, store, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)

	// Customer routes (resume token is the customer's credential)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", customerAPI.CreateSession)
		r.Post("/resume", customerAPI.Resume)
		r.Get("/{sessionId}", customerAPI.GetSession)
		r.Post("/{sessionId}/messages", customerAPI.PostMessage)
		r.Get("/{sessionId}/messages", customerAPI.GetMessages)
		r.Post("/{sessionId}/escalate", customerAPI.Escalate)
		r.Get("/{sessionId}/queue", customerAPI.QueuePosition)
		r.Post("/{sessionId}/close", customerAPI.CloseSession)
		r.Post("/{sessionId}/rating", customerAPI.RateSession)
	})

	// Protected routes for agents and supervisors
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/api/agents/{agentId}", func(r chi.Router) {
			r.Get("/", agentAPI.GetAgent)
			r.Put("/availability", agentAPI.SetAvailability)
			r.Put("/status", agentAPI.SetStatus)

			r.Route("/sessions/{sessionId}", func(r chi.Router) {
				r.Post("/activate", agentAPI.Activate)
				r.Post("/messages", agentAPI.PostMessage)
				r.Get("/messages", agentAPI.GetMessages)
				r.Post("/hold", agentAPI.Hold)
				r.Post("/resume", agentAPI.ResumeHold)
				r.Post("/close", agentAPI.CloseSession)
				r.Put("/followup", agentAPI.SetFollowup)
				r.Post("/transfer", agentAPI.Transfer)
			})

			r.Route("/transfers/{transferId}", func(r chi.Router) {
				r.Post("/accept", agentAPI.AcceptTransfer)
				r.Post("/cancel", agentAPI.CancelTransfer)
			})
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Post("/roster", adminAPI.HandleRoster)
			r.Get("/agents", adminAPI.GetAgents)
			r.Get("/queue", adminAPI.GetQueue)
			r.Get("/stats", adminAPI.GetStats)
			r.Get("/facts", adminAPI.GetFacts)
			r.Put("/sessions/{sessionId}/priority", adminAPI.SetPriority)
			r.Get("/sessions/{sessionId}/holds", adminAPI.GetHolds)
			r.Delete("/agents/{agentId}", adminAPI.DeregisterAgent)
			r.Get("/agents/{agentId}/history", adminAPI.GetAgentHistory)
			r.Get("/agents/{agentId}/facts", adminAPI.GetAgentFacts)
			r.Get("/transcripts/{sessionId}", adminAPI.GetTranscript)
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop the dispatcher and sweeper loops
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"livechat-backend"}`)
}
