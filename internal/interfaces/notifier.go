package interfaces

import (
	"context"

	"stock-autotrader/internal/types"
)

// Notifier is the progress-event surface consumed by a presentation layer.
// The engine makes no assumption about how events are rendered; the default
// implementation just logs them.
type Notifier interface {
	OrderAttempt(ctx context.Context, symbol string, side types.OrderSide, qty int, price float64)
	OrderAccepted(ctx context.Context, symbol, orderID string)
	OrderRejected(ctx context.Context, symbol, reason string)
	FillProgress(ctx context.Context, symbol, orderID string, filled, total int, avgPrice float64)
	StateChange(ctx context.Context, symbol string, from, to types.PositionState)
	RiskLimitReached(ctx context.Context, symbol, reason string)
	ForcedLiquidation(ctx context.Context, holdings int)
}
