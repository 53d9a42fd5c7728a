package interfaces

import (
	"context"

	"stock-autotrader/internal/types"
)

// Broker is the order-management endpoint as seen by the engine. A
// connected, authenticated session is a precondition; the login handshake
// lives behind the implementation.
//
// SubmitOrder and CancelOrder are asynchronous: they return once the
// request is on the wire, and the outcome arrives later on Events(),
// correlated by the request token (acks/rejects) or the broker order id
// (fills).
type Broker interface {
	SubmitOrder(ctx context.Context, req types.OrderRequest) error
	CancelOrder(ctx context.Context, orderID string) error
	Quote(ctx context.Context, symbol string) (float64, error)
	Events() <-chan types.BrokerEvent
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}
