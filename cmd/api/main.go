// Package main is the entry point for the API server.
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
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/config"
	"github.com/agile-ai/ragchat-platform/internal/handler"
	"github.com/agile-ai/ragchat-platform/internal/llm"
	"github.com/agile-ai/ragchat-platform/internal/middleware"
	natsclient "github.com/agile-ai/ragchat-platform/internal/nats"
	"github.com/agile-ai/ragchat-platform/internal/pipeline"
	"github.com/agile-ai/ragchat-platform/internal/search"
	"github.com/agile-ai/ragchat-platform/internal/store"
	"github.com/agile-ai/ragchat-platform/pkg/logger"
	"github.com/agile-ai/ragchat-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var log *zap.Logger
	var err error
	if cfg.Environment == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "ragchat-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := natsclient.Connect(natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	// State bucket and answer-event stream
	kvClient, err := store.NewNATSKVClient(ctx, natsClient.JetStream())
	if err != nil {
		log.Error("failed to create state bucket", zap.Error(err))
		os.Exit(1)
	}

	publisher := natsclient.NewEventPublisher(natsClient.JetStream())
	if err := publisher.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure answer stream", zap.Error(err))
		os.Exit(1)
	}

	// Initialize LLM client
	provider := llm.ProviderOpenAI
	llmAPIKey := cfg.OpenAIAPIKey
	if cfg.AnthropicAPIKey != "" {
		provider = llm.ProviderAnthropic
		llmAPIKey = cfg.AnthropicAPIKey
	}
	llmClient, err := llm.NewClient(provider, llmAPIKey)
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}

	// Without an embedder, vector and hybrid retrieval degrade to keyword
	// search only.
	var embedder llm.Embedder
	if oe, err := llm.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel); err != nil {
		log.Warn("embedder unavailable, retrieval will be keyword-only", zap.Error(err))
	} else {
		embedder = oe
	}

	// Search index client; image retrieval rides the same index service.
	searchClient := search.NewClient(cfg.SearchEndpoint, cfg.SearchAPIKey)
	var visionEmbedder llm.Embedder
	if cfg.VisionEnabled && embedder != nil {
		visionEmbedder = embedder
	}

	// Assemble the answer pipeline
	p := pipeline.New(
		pipeline.NewQueryReformulator(llmClient, cfg.ChatModel),
		pipeline.NewRetriever(searchClient, embedder, visionEmbedder, log),
		pipeline.NewAnswerSynthesizer(llmClient, cfg.ChatModel),
		pipeline.NewFollowupGenerator(llmClient, cfg.ChatModel),
		cfg.CitationBaseURL,
		log,
	)

	chatStore := store.NewChatStateStore(kvClient, log)
	dispatcher := handler.NewStreamDispatcher(log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	chatHandler := handler.NewChatHandler(p, chatStore, publisher, dispatcher, log)
	threadHandler := handler.NewThreadHandler(chatStore, log)
	adminHandler := handler.NewAdminHandler(kvClient, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Thread-ID", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Chat
		r.Post("/chat", chatHandler.Chat)

		// Threads
		r.Route("/threads", func(r chi.Router) {
			r.Post("/", threadHandler.Create)
			r.Get("/", threadHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", threadHandler.Get)
				r.Put("/", threadHandler.Update)
				r.Delete("/", threadHandler.Delete)
				r.Get("/messages", threadHandler.Messages)
			})
		})

		// Administrative record cleanup
		r.Route("/admin", func(r chi.Router) {
			r.Delete("/files", adminHandler.DeleteFiles)
			r.Delete("/indexes/{id}", adminHandler.DeleteIndex)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
