package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/pricewatch/price-tracker/internal/analytics"
	"github.com/pricewatch/price-tracker/internal/browser"
	"github.com/pricewatch/price-tracker/internal/config"
	"github.com/pricewatch/price-tracker/internal/database"
	"github.com/pricewatch/price-tracker/internal/extractor"
	"github.com/pricewatch/price-tracker/internal/fetcher"
	"github.com/pricewatch/price-tracker/internal/llm"
	"github.com/pricewatch/price-tracker/internal/recorder"
	"github.com/pricewatch/price-tracker/internal/scraper"
)

// price-scraper runs one scrape batch from the command line, for cron jobs
// and manual runs. The server binary exposes the same pipeline over HTTP.
func main() {
	var (
		product     = flag.String("product", "", "Only scrape targets for this product id")
		limit       = flag.Int("limit", 0, "Max targets to scrape (default: configured batch limit)")
		headless    = flag.Bool("headless", true, "Run browser in headless mode")
		checkAlerts = flag.Bool("check-alerts", false, "Sweep for price drops after scraping")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.Browser.Headless = *headless

	logLevel := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
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
		logger.Info("received shutdown signal, finishing current vendor")
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

	targetStore := database.NewTargetStore(db, cfg.Relay.Stream)
	observationStore := database.NewObservationStore(db)

	var productID *uuid.UUID
	if *product != "" {
		id, err := uuid.Parse(*product)
		if err != nil {
			logger.Error("invalid product id", "product", *product)
			os.Exit(1)
		}
		productID = &id
	}

	batchLimit := cfg.Scraper.BatchLimit
	if *limit > 0 && *limit < batchLimit {
		batchLimit = *limit
	}

	targets, err := targetStore.GetActiveTargets(ctx, productID, batchLimit)
	if err != nil {
		logger.Error("failed to load targets", "error", err)
		os.Exit(1)
	}
	if len(targets) == 0 {
		logger.Info("no active targets to scrape")
		return
	}

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

	sessions := scraper.SessionFactory(func() (scraper.PageFetcher, func() error, error) {
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
	})

	orchestrator := scraper.New(
		sessions,
		extractor.NewPrimary(llmClient, cfg.LLM.MaxPromptLength),
		extractor.NewFallback(),
		recorder.New(targetStore, cfg.Scraper.RawSnippetLength),
		cfg.Scraper.RequestDelay,
	)

	report, err := orchestrator.RunBatch(ctx, targets)
	if err != nil {
		logger.Error("batch failed to start", "error", err)
		os.Exit(1)
	}

	logger.Info("batch report",
		"total", report.TotalVendors,
		"successful", report.SuccessfulScrapes,
		"failed", report.FailedScrapes,
		"duration", report.EndTime.Sub(report.StartTime))

	for _, outcome := range report.Results {
		if outcome.Success {
			logger.Info("vendor result",
				"target_id", outcome.TargetID,
				"source", outcome.Source,
				"unit_price", outcome.UnitPrice)
		} else {
			logger.Warn("vendor result",
				"target_id", outcome.TargetID,
				"error", outcome.Error)
		}
	}

	if *checkAlerts && ctx.Err() == nil {
		analyzer := analytics.New(observationStore, targetStore, targetStore, cfg.Alerts)
		alerts, err := analyzer.CheckAll(ctx)
		if err != nil {
			logger.Error("alert sweep failed", "error", err)
			os.Exit(1)
		}
		logger.Info("alert sweep finished", "alerts", len(alerts))
	}
}
