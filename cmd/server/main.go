package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/pricewatch/price-tracker/internal/analytics"
	"github.com/pricewatch/price-tracker/internal/api"
	"github.com/pricewatch/price-tracker/internal/browser"
	"github.com/pricewatch/price-tracker/internal/config"
	"github.com/pricewatch/price-tracker/internal/database"
	"github.com/pricewatch/price-tracker/internal/extractor"
	"github.com/pricewatch/price-tracker/internal/fetcher"
	"github.com/pricewatch/price-tracker/internal/llm"
	"github.com/pricewatch/price-tracker/internal/recorder"
	"github.com/pricewatch/price-tracker/internal/scraper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Relay.PollInterval,
		BatchSize:    cfg.Relay.BatchSize,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	targetStore := database.NewTargetStore(db, cfg.Relay.Stream)
	observationStore := database.NewObservationStore(db)

	llmClient := llm.NewClient(llm.Options{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Timeout:     cfg.LLM.Timeout,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if !llmClient.Configured() {
		logger.Warn("LLM_API_KEY not set, extraction will rely on pattern fallback only")
	}

	orchestrator := scraper.New(
		newSessionFactory(cfg),
		extractor.NewPrimary(llmClient, cfg.LLM.MaxPromptLength),
		extractor.NewFallback(),
		recorder.New(targetStore, cfg.Scraper.RawSnippetLength),
		cfg.Scraper.RequestDelay,
	)

	analyzer := analytics.New(observationStore, targetStore, targetStore, cfg.Alerts)

	handlers := api.NewHandlers(orchestrator, targetStore, analyzer, cfg, logger)
	router := api.NewRouter(handlers, api.HealthDeps{
		Ping: db.Ping,
		PendingEvents: func(ctx context.Context) (int64, error) {
			return relay.PendingCount(ctx, db)
		},
		LLMConfigured: llmClient.Configured(),
		LLMModel:      llmClient.Model(),
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

// newSessionFactory builds the per-batch browser session opener. Each batch
// gets a fresh browser; the returned release function tears it down.
func newSessionFactory(cfg *config.Config) scraper.SessionFactory {
	return func() (scraper.PageFetcher, func() error, error) {
		session, err := browser.New(&browser.Options{
			Headless:       cfg.Browser.Headless,
			Timeout:        cfg.Browser.Timeout,
			UserAgent:      cfg.Browser.UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
		})
		if err != nil {
			return nil, nil, err
		}
		f := fetcher.New(session, cfg.Browser.SettleDelay, cfg.Scraper.MaxContentLength)
		return f, session.Close, nil
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
