package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/inboxpilot/otp-relay/internal/config"
	"github.com/inboxpilot/otp-relay/internal/events"
	"github.com/inboxpilot/otp-relay/internal/extractor"
	"github.com/inboxpilot/otp-relay/internal/handlers"
	"github.com/inboxpilot/otp-relay/internal/llm"
	"github.com/inboxpilot/otp-relay/internal/logging"
	"github.com/inboxpilot/otp-relay/internal/middleware"
	"github.com/inboxpilot/otp-relay/internal/ratelimit"
	"github.com/inboxpilot/otp-relay/internal/registry"
	"github.com/inboxpilot/otp-relay/internal/server"
	"github.com/inboxpilot/otp-relay/internal/service"
	"github.com/inboxpilot/otp-relay/internal/webhook"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("otp-relay"))
	logging.SetDefault(logger)

	slog.Info("Starting OTP relay service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}
	if cfg.Auth.SkipVerification {
		slog.Warn("Webhook signature verification is DISABLED - do not run this in production")
	}

	// Initialize rate limiter
	var rateLimiter ratelimit.RateLimiter
	if cfg.Redis.Enabled && cfg.RateLimit.Enabled {
		log.Printf("Initializing Redis rate limiter: %s", cfg.Redis.URL)
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.RateLimit.Requests,
			cfg.RateLimit.Window,
		)
		if err != nil {
			log.Printf("WARNING: Failed to initialize Redis rate limiter: %v", err)
			log.Println("Continuing without rate limiting")
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			log.Printf("Rate limiting enabled: %d requests per %s", cfg.RateLimit.Requests, cfg.RateLimit.Window)
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
		if !cfg.Redis.Enabled {
			log.Println("Redis disabled - rate limiting not available")
		}
	}
	defer rateLimiter.Close()

	// Initialize event publisher
	var publisher *events.Publisher
	if cfg.Events.Enabled {
		publisher, err = events.Connect(cfg.Events.NatsURL)
		if err != nil {
			log.Printf("WARNING: Failed to connect to NATS: %v", err)
			log.Println("Continuing without event publishing")
			publisher = nil
		} else {
			log.Printf("Event publishing enabled (nats: %s)", cfg.Events.NatsURL)
			defer publisher.Close()
		}
	} else {
		log.Println("Event publishing disabled")
	}

	// Initialize code registry with background expiry sweep
	reg := registry.New(cfg.Registry.TTL, cfg.Registry.SweepInterval)
	log.Printf("Code registry initialized (TTL: %s, sweep: %s)", cfg.Registry.TTL, cfg.Registry.SweepInterval)
	defer reg.Close()

	// Initialize extraction pipeline
	var llmClient llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient = llm.NewAnthropicClient(cfg.LLM.APIKey, llm.Options{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
		log.Printf("LLM extraction enabled (model: %s)", cfg.LLM.Model)
	} else {
		log.Println("WARNING: llm.api_key not set - extraction will rely on fallback rules only")
	}
	codeExtractor := extractor.New(llmClient, cfg.LLM.Timeout, logger.Logger)

	// Initialize webhook verifier
	verifier := webhook.NewVerifier(cfg.Auth.SigningKey, cfg.Auth.MaxWebhookAge, logger.Logger)

	// Wire up the relay service and HTTP layer
	relayService := service.New(verifier, codeExtractor, reg, publisher, cfg.Auth.SkipVerification, logger)
	handler := handlers.NewHandler(relayService, rateLimiter, logger, false)
	router := server.NewRouter(handler, middleware.CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	// Create server with config values
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("OTP relay listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
