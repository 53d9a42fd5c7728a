package notify

import (
	"context"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

// logNotifier renders progress events as structured log lines. Any
// presentation layer can replace it behind the Notifier interface.
type logNotifier struct{}

var _ interfaces.Notifier = (*logNotifier)(nil)

// NewLogNotifier returns the default, log-backed notifier.
func NewLogNotifier() interfaces.Notifier {
	return &logNotifier{}
}

func (n *logNotifier) OrderAttempt(ctx context.Context, symbol string, side types.OrderSide, qty int, price float64) {
	logger.Info(ctx, "Order attempt started",
		"symbol", symbol,
		"side", string(side),
		"qty", qty,
		"price", price,
	)
}

func (n *logNotifier) OrderAccepted(ctx context.Context, symbol, orderID string) {
	logger.Info(ctx, "Order accepted by broker", "symbol", symbol, "order_id", orderID)
}

func (n *logNotifier) OrderRejected(ctx context.Context, symbol, reason string) {
	logger.Warn(ctx, "Order rejected", "symbol", symbol, "reason", reason)
}

func (n *logNotifier) FillProgress(ctx context.Context, symbol, orderID string, filled, total int, avgPrice float64) {
	logger.Info(ctx, "Order fill progress",
		"symbol", symbol,
		"order_id", orderID,
		"filled", filled,
		"total", total,
		"avg_price", avgPrice,
	)
}

func (n *logNotifier) StateChange(ctx context.Context, symbol string, from, to types.PositionState) {
	logger.Info(ctx, "Position state changed",
		"symbol", symbol,
		"from", string(from),
		"to", string(to),
	)
}

func (n *logNotifier) RiskLimitReached(ctx context.Context, symbol, reason string) {
	logger.Risk(ctx, symbol, "PERMIT_DENIED", "reason", reason)
}

func (n *logNotifier) ForcedLiquidation(ctx context.Context, holdings int) {
	logger.Warn(ctx, "Forced liquidation before market close", "holdings", holdings)
}

// Nop is a Notifier that discards every event; useful in tests.
type Nop struct{}

var _ interfaces.Notifier = (*Nop)(nil)

func (Nop) OrderAttempt(context.Context, string, types.OrderSide, int, float64) {}
func (Nop) OrderAccepted(context.Context, string, string)                       {}
func (Nop) OrderRejected(context.Context, string, string)                       {}
func (Nop) FillProgress(context.Context, string, string, int, int, float64)     {}
func (Nop) StateChange(context.Context, string, types.PositionState, types.PositionState) {
}
func (Nop) RiskLimitReached(context.Context, string, string) {}
func (Nop) ForcedLiquidation(context.Context, int)           {}
