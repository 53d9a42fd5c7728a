package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-autotrader/internal/eod"
	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/planner"
	"stock-autotrader/internal/store"
	"stock-autotrader/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())
	defer trace.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	must(err)

	compressOldLogs(ctx)

	candidates, err := planner.Load(cfg.Planner.CandidatesFile)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load trade candidates", err, "file", cfg.Planner.CandidatesFile)
		os.Exit(1)
	}
	if len(candidates) == 0 {
		logger.Warn(ctx, "No trade candidates for today, exiting")
		return
	}
	logger.Info(ctx, "Trade candidates loaded", "count", len(candidates), "file", cfg.Planner.CandidatesFile)

	sink, err := store.NewSQLiteSink(cfg.Store.SQLitePath)
	must(err)
	defer sink.Close()

	brk := initializeBroker(ctx, cfg)
	if err := brk.Start(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Failed to start broker", err, "mode", cfg.Mode)
		os.Exit(1)
	}
	sess := initializeSession(cfg, brk, sink)

	if err := sess.StartSession(ctx, candidates); err != nil {
		logger.ErrorWithErr(ctx, "Failed to start session", err)
		os.Exit(1)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	eodTick := time.NewTicker(60 * time.Second)
	defer eodTick.Stop()

	logger.Info(ctx, "Bot started", "mode", cfg.Mode)
	for {
		select {
		case <-eodTick.C:
			if !sess.IsActive() {
				logger.Info(ctx, "Session finished")
				shutdown(ctx, sess, brk)
				return
			}
			if ok, _ := eod.ShouldRunNow(); ok {
				if p, err := eod.SummarizeToday(); err == nil && p != "" {
					logger.Info(ctx, "EOD CSV written", "path", p)
				}
			}
		case <-sigc:
			logger.Info(ctx, "Shutting down...")
			shutdown(ctx, sess, brk)
			if p, err := eod.SummarizeToday(); err == nil && p != "" {
				logger.Info(ctx, "EOD CSV written", "path", p)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// shutdown drains the session first so in-flight orders resolve before
// the broker connection drops.
func shutdown(ctx context.Context, sess interfaces.Session, brk interfaces.Broker) {
	sess.StopSession(ctx)
	brk.Stop(ctx)
}

