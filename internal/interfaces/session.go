package interfaces

import (
	"context"

	"stock-autotrader/internal/types"
)

// Session is the engine's control surface for one trading day.
type Session interface {
	// StartSession registers the planner's candidates and starts the
	// scheduler. Returns an error if a session is already active.
	StartSession(ctx context.Context, planned []types.PlannedTrade) error

	// StopSession stops the scheduler. In-flight orders complete or time
	// out naturally; open positions are marked CANCELLED for bookkeeping
	// only.
	StopSession(ctx context.Context)

	IsActive() bool

	// Positions returns a snapshot of all managed positions.
	Positions() []types.Position
}
