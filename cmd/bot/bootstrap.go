package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"stock-autotrader/internal/broker/brokerobs"
	"stock-autotrader/internal/broker/kabus"
	"stock-autotrader/internal/broker/sim"
	"stock-autotrader/internal/engine"
	"stock-autotrader/internal/engine/engineobs"
	"stock-autotrader/internal/eod"
	"stock-autotrader/internal/eod/eodobs"
	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/notify"
	"stock-autotrader/internal/store"
	"stock-autotrader/internal/trace"
	"stock-autotrader/internal/tradelog"
)

// initializeSystem initializes logger, tracer, and EOD summarizer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	// Initialize EOD summarizer with observability
	initializeEOD()

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("TRADER_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old tradelog files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeBroker initializes and returns the broker instance with observability
func initializeBroker(ctx context.Context, cfg *store.Config) interfaces.Broker {
	var brk interfaces.Broker

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders resolve in the simulator")
		brk = sim.New()
	} else {
		logger.Info(ctx, "Connecting to kabu station", "base_url", cfg.Broker.BaseURL)
		brk = kabus.New(kabus.Params{
			BaseURL:       cfg.Broker.BaseURL,
			WSURL:         cfg.Broker.WSURL,
			APIPassword:   os.Getenv("KABUS_API_PASSWORD"),
			OrderPassword: os.Getenv("KABUS_ORDER_PASSWORD"),
		})
	}

	// Wrap with observability middleware
	return brokerobs.Wrap(brk)
}

// initializeSession builds the trading session with observability
func initializeSession(cfg *store.Config, brk interfaces.Broker, sink interfaces.TradeSink) interfaces.Session {
	sess := engine.New(cfg, brk, notify.NewLogNotifier(), sink)

	// Wrap with observability middleware
	return engineobs.Wrap(sess)
}

// initializeEOD wraps the default EOD summarizer with observability
func initializeEOD() {
	// Create base summarizer
	baseSummarizer := eod.NewSummarizer()

	// Wrap with observability middleware
	observableSummarizer := eodobs.Wrap(baseSummarizer)

	// Set as default summarizer
	eod.SetDefaultSummarizer(observableSummarizer)
}
