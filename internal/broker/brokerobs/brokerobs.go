package brokerobs

import (
	"context"
	"fmt"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/trace"
	"stock-autotrader/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

// SubmitOrder submits an order with observability
func (ob *observableBroker) SubmitOrder(ctx context.Context, req types.OrderRequest) error {
	ctx, span := trace.StartSpan(ctx, "broker.SubmitOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Submitting order",
		"symbol", req.Symbol,
		"side", string(req.Side),
		"qty", req.Qty,
		"price", req.Price,
		"token", req.Token,
	)

	err := ob.broker.SubmitOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to submit order", err,
			"symbol", req.Symbol,
			"side", string(req.Side),
			"qty", req.Qty,
		)
		return err
	}

	logger.InfoSkip(ctx, 1, "Order submitted",
		"symbol", req.Symbol,
		"token", req.Token,
	)
	return nil
}

// CancelOrder cancels an order with observability
func (ob *observableBroker) CancelOrder(ctx context.Context, orderID string) error {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Cancelling order", "order_id", orderID)

	err := ob.broker.CancelOrder(ctx, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "order_id", orderID)
		return err
	}

	logger.InfoSkip(ctx, 1, "Cancel request accepted", "order_id", orderID)
	return nil
}

// Quote returns the current price with observability
func (ob *observableBroker) Quote(ctx context.Context, symbol string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Quote")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching quote", "symbol", symbol)

	price, err := ob.broker.Quote(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch quote", err, "symbol", symbol)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "Quote fetched successfully", "symbol", symbol, "price", price)
	return price, nil
}

// Events returns the underlying event stream unchanged. Per-event
// logging happens at the gateway where events gain order context.
func (ob *observableBroker) Events() <-chan types.BrokerEvent {
	return ob.broker.Events()
}

// Start initializes the broker with observability
func (ob *observableBroker) Start(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "broker.Start")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting broker")

	err := ob.broker.Start(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to start broker", err)
		return fmt.Errorf("broker start failed: %w", err)
	}

	logger.InfoSkip(ctx, 1, "Broker started successfully")
	return nil
}

// Stop shuts down the broker with observability
func (ob *observableBroker) Stop(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "broker.Stop")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Stopping broker")
	ob.broker.Stop(ctx)
	logger.InfoSkip(ctx, 1, "Broker stopped successfully")
}
