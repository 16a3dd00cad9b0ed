// Package main is the entry point for the registry event processor.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/swiss-ai-registry/event-processor/internal/agent"
	"github.com/swiss-ai-registry/event-processor/internal/config"
	"github.com/swiss-ai-registry/event-processor/internal/handler"
	natsclient "github.com/swiss-ai-registry/event-processor/internal/nats"
	"github.com/swiss-ai-registry/event-processor/internal/processor"
	"github.com/swiss-ai-registry/event-processor/internal/store"
	"github.com/swiss-ai-registry/event-processor/pkg/logger"
	"github.com/swiss-ai-registry/event-processor/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting event processor")

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "registry-event-processor", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Open the registry database
	st, err := store.NewSQLiteStore(cfg.DatabasePath, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer st.Close()

	// Initialize agent backend
	apiKey := ""
	switch agent.Provider(cfg.AgentProvider) {
	case agent.ProviderAnthropic:
		apiKey = cfg.AnthropicAPIKey
	case agent.ProviderOpenAI:
		apiKey = cfg.OpenAIAPIKey
	}
	agentClient, err := agent.NewClient(agent.Provider(cfg.AgentProvider), apiKey, cfg.AgentModel)
	if err != nil {
		log.Fatal("failed to create agent client", zap.Error(err))
	}
	log.Info("agent backend ready", zap.String("provider", agentClient.Name()))

	opts := processor.Options{
		SessionTTL:    cfg.SessionTTL,
		RefreshMargin: cfg.SessionRefreshMargin,
		AgentTimeout:  cfg.AgentTimeout,
	}

	// Connect to NATS when configured
	var bus handler.BusStatus
	var natsClient *natsclient.Client
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		opts.Notifier = streamManager
		bus = natsClient
	}

	proc := processor.New(st, agentClient, log, opts)

	if natsClient != nil {
		consumer := natsclient.NewConsumer(natsClient, proc, cfg.AgentTimeout+10*time.Second, log)
		cc, err := consumer.Start(ctx)
		if err != nil {
			log.Fatal("failed to start consumer", zap.Error(err))
		}
		defer cc.Stop()
	}

	router := handler.NewRouter(handler.RouterConfig{
		Events:            handler.NewEventHandler(proc, log),
		Health:            handler.NewHealthHandler(st, bus),
		Logger:            log,
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
