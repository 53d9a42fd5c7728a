package engineobs

import (
	"context"
	"time"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/trace"
	"stock-autotrader/internal/types"
)

type observableSession struct {
	session interfaces.Session
}

var _ interfaces.Session = (*observableSession)(nil)

func Wrap(session interfaces.Session) interfaces.Session {
	return &observableSession{
		session: session,
	}
}

func (os *observableSession) StartSession(ctx context.Context, planned []types.PlannedTrade) error {
	ctx, span := trace.StartSpan(ctx, "session.Start")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting trading session", "candidates", len(planned))

	if err := os.session.StartSession(ctx, planned); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Session start failed", err)
		return err
	}

	logger.InfoSkip(ctx, 1, "Trading session started",
		"candidates", len(planned),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (os *observableSession) StopSession(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "session.Stop")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Stopping trading session")
	os.session.StopSession(ctx)
	logger.InfoSkip(ctx, 1, "Trading session stopped",
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (os *observableSession) IsActive() bool {
	return os.session.IsActive()
}

func (os *observableSession) Positions() []types.Position {
	return os.session.Positions()
}
