package interfaces

import (
	"context"

	"stock-autotrader/internal/types"
)

// TradeSink receives completed round-trips for persistence. Calls are
// fire-and-forget from the engine's perspective: a sink error is logged,
// never propagated into trading decisions.
type TradeSink interface {
	RecordCompletedTrade(ctx context.Context, trade types.CompletedTrade) error
	Close() error
}
