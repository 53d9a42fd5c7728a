package engine

import (
	"context"
	"sync"
	"time"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"

	"github.com/google/uuid"
)

// Gateway error codes surfaced in OrderResult.ErrCode.
const (
	ErrCodeSubmitFailed  = "SUBMIT_FAILED"
	ErrCodeRejected      = "REJECTED"
	ErrCodeNoAck         = "NO_ACK"
	ErrCodeFillShortfall = "FILL_SHORTFALL"
	ErrCodeCancelled     = "CANCELLED"
)

// GatewayConfig holds the per-request time budgets and the partial-fill
// acceptance threshold.
type GatewayConfig struct {
	AckTimeout     time.Duration
	FillTimeout    time.Duration
	PartialFillMin float64 // fill ratio at or above which a partial is accepted
}

// orderGateway turns the broker's asynchronous ack/fill push model into a
// blocking request/response facade. Each outbound call registers a
// completion channel keyed by its correlation token; a single dispatch
// goroutine resolves channels as matching events arrive. Callers block on
// their own channel only, so concurrent requests never affect each other.
type orderGateway struct {
	broker   interfaces.Broker
	notifier interfaces.Notifier
	cfg      GatewayConfig

	// pending maps correlation token -> event channel for one in-flight
	// request. Entries are removed when the call completes or times out.
	pending sync.Map // string -> chan types.BrokerEvent

	// orderTokens maps broker order id -> correlation token, so fill
	// events (which carry only the order id) can be routed.
	orderTokens sync.Map // string -> string

	dispatchOnce sync.Once
}

func newOrderGateway(broker interfaces.Broker, notifier interfaces.Notifier, cfg GatewayConfig) *orderGateway {
	return &orderGateway{
		broker:   broker,
		notifier: notifier,
		cfg:      cfg,
	}
}

// start launches the dispatch loop. It exits when the broker's event
// channel is closed (broker shutdown).
func (g *orderGateway) start() {
	g.dispatchOnce.Do(func() {
		go g.dispatch()
	})
}

func (g *orderGateway) dispatch() {
	for ev := range g.broker.Events() {
		token := ev.Token
		if ev.Kind == types.EventAck && token != "" && ev.OrderID != "" {
			// Map the order id here, as the ack passes through, not in
			// the caller: a fill can arrive in the same batch as the ack,
			// before the caller has woken up to see either.
			g.orderTokens.Store(ev.OrderID, token)
		}
		if token == "" && ev.OrderID != "" {
			if v, ok := g.orderTokens.Load(ev.OrderID); ok {
				token = v.(string)
			}
		}
		if token == "" {
			logger.Debug(context.Background(), "Dropping uncorrelated broker event",
				"kind", string(ev.Kind), "order_id", ev.OrderID)
			continue
		}
		v, ok := g.pending.Load(token)
		if !ok {
			// Caller already gave up; a late ack or fill lands here. Drop
			// the routing entry too so it cannot leak.
			if ev.OrderID != "" {
				g.orderTokens.CompareAndDelete(ev.OrderID, token)
			}
			logger.Warn(context.Background(), "Broker event arrived after caller gave up",
				"kind", string(ev.Kind), "order_id", ev.OrderID, "token", token)
			continue
		}
		select {
		case v.(chan types.BrokerEvent) <- ev:
		default:
			logger.Warn(context.Background(), "Pending event channel full, dropping event",
				"kind", string(ev.Kind), "order_id", ev.OrderID)
		}
	}
}

// Buy submits a buy order and blocks until it is filled, rejected, or
// timed out. Only the calling goroutine blocks.
func (g *orderGateway) Buy(ctx context.Context, symbol string, qty int, price float64) types.OrderResult {
	return g.place(ctx, types.SideBuy, symbol, qty, price, false)
}

// Sell submits a sell order; semantics mirror Buy.
func (g *orderGateway) Sell(ctx context.Context, symbol string, qty int, price float64) types.OrderResult {
	return g.place(ctx, types.SideSell, symbol, qty, price, false)
}

func (g *orderGateway) place(ctx context.Context, side types.OrderSide, symbol string, qty int, price float64, allOrNothing bool) types.OrderResult {
	token := uuid.NewString()
	ch := make(chan types.BrokerEvent, 16)
	g.pending.Store(token, ch)
	defer g.pending.Delete(token)

	req := types.OrderRequest{
		Side:         side,
		Symbol:       symbol,
		Qty:          qty,
		Price:        price,
		Token:        token,
		AllOrNothing: allOrNothing,
	}

	g.notifier.OrderAttempt(ctx, symbol, side, qty, price)

	if err := g.broker.SubmitOrder(ctx, req); err != nil {
		logger.ErrorWithErr(ctx, "Order submit failed", err, "symbol", symbol, "side", string(side))
		return failure(ErrCodeSubmitFailed, err.Error())
	}

	orderID, res, done := g.awaitAck(ctx, ch, symbol, qty)
	if done {
		return res
	}
	// dispatch registered orderID -> token when the ack passed through;
	// drop the mapping once this attempt resolves.
	defer g.orderTokens.Delete(orderID)

	return g.awaitFills(ctx, ch, symbol, orderID, qty, allOrNothing)
}

// awaitAck waits for acceptance or rejection within the ack budget.
// done=true means the attempt ended here and res is the final result.
func (g *orderGateway) awaitAck(ctx context.Context, ch chan types.BrokerEvent, symbol string, qty int) (orderID string, res types.OrderResult, done bool) {
	timer := time.NewTimer(g.cfg.AckTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-ch:
			switch ev.Kind {
			case types.EventAck:
				g.notifier.OrderAccepted(ctx, symbol, ev.OrderID)
				return ev.OrderID, types.OrderResult{}, false
			case types.EventReject:
				g.notifier.OrderRejected(ctx, symbol, ev.Message)
				return "", failure(ErrCodeRejected, ev.Message), true
			default:
				// A fill cannot be routed here before its ack maps the
				// order id; anything else is noise.
				logger.Debug(ctx, "Ignoring event while awaiting ack", "kind", string(ev.Kind))
			}
		case <-timer.C:
			g.notifier.OrderRejected(ctx, symbol, "no acknowledgement from broker")
			return "", failure(ErrCodeNoAck, "no acknowledgement from broker"), true
		case <-ctx.Done():
			return "", failure(ErrCodeCancelled, ctx.Err().Error()), true
		}
	}
}

// awaitFills accumulates incremental fills within the fill budget. A full
// fill succeeds immediately; at timeout the partial-fill threshold decides,
// and the unfilled remainder gets a best-effort cancel either way.
func (g *orderGateway) awaitFills(ctx context.Context, ch chan types.BrokerEvent, symbol, orderID string, qty int, allOrNothing bool) types.OrderResult {
	timer := time.NewTimer(g.cfg.FillTimeout)
	defer timer.Stop()

	filled := 0
	var notional float64

	for {
		select {
		case ev := <-ch:
			if ev.Kind != types.EventFill {
				logger.Debug(ctx, "Ignoring event while awaiting fills", "kind", string(ev.Kind), "order_id", orderID)
				continue
			}
			filled += ev.FilledQty
			notional += ev.FillPrice * float64(ev.FilledQty)
			avg := notional / float64(filled)
			g.notifier.FillProgress(ctx, symbol, orderID, filled, qty, avg)
			logger.Fill(ctx, symbol, orderID, filled, qty, avg)
			if filled >= qty {
				return types.OrderResult{
					Success:   true,
					OrderID:   orderID,
					FilledQty: filled,
					AvgPrice:  avg,
					Message:   "filled",
				}
			}
		case <-timer.C:
			return g.settlePartial(ctx, symbol, orderID, qty, filled, notional, allOrNothing)
		case <-ctx.Done():
			return g.settlePartial(ctx, symbol, orderID, qty, filled, notional, allOrNothing)
		}
	}
}

// settlePartial resolves an order that did not fully fill in time. The
// remainder is cancelled best-effort; the broker may still have filled it
// moments earlier, which callers must tolerate.
func (g *orderGateway) settlePartial(ctx context.Context, symbol, orderID string, qty, filled int, notional float64, allOrNothing bool) types.OrderResult {
	// Release the fill routing so Cancel can claim the order id and see
	// its own cancel acknowledgement.
	g.orderTokens.Delete(orderID)
	if !g.Cancel(ctx, orderID) {
		logger.Warn(ctx, "Cancel of unfilled remainder not accepted", "symbol", symbol, "order_id", orderID)
	}

	res := types.OrderResult{
		OrderID:      orderID,
		FilledQty:    filled,
		RemainingQty: qty - filled,
	}
	if filled > 0 {
		res.AvgPrice = notional / float64(filled)
	}

	ratio := float64(filled) / float64(qty)
	if filled > 0 && !allOrNothing && ratio >= g.cfg.PartialFillMin {
		res.Success = true
		res.Message = "partial fill accepted"
		return res
	}

	res.ErrCode = ErrCodeFillShortfall
	res.Message = "fill timeout with insufficient quantity"
	if filled == 0 {
		res.Message = "fill timeout with no executions"
	}
	return res
}

// Cancel asks the broker to cancel the given order and waits briefly for
// the cancel acknowledgement. A true return means the broker accepted the
// cancellation, not that the original order did not fill first.
func (g *orderGateway) Cancel(ctx context.Context, orderID string) bool {
	token := uuid.NewString()
	ch := make(chan types.BrokerEvent, 4)
	g.pending.Store(token, ch)
	defer g.pending.Delete(token)

	// Route cancel events for this order id to our channel unless the
	// original caller still owns the mapping.
	if _, loaded := g.orderTokens.LoadOrStore(orderID, token); !loaded {
		defer g.orderTokens.Delete(orderID)
	}

	if err := g.broker.CancelOrder(ctx, orderID); err != nil {
		logger.ErrorWithErr(ctx, "Cancel submit failed", err, "order_id", orderID)
		return false
	}

	timer := time.NewTimer(g.cfg.AckTimeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-ch:
			if ev.Kind == types.EventCancelAck {
				return true
			}
			if ev.Kind == types.EventReject {
				return false
			}
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// GetLastPrice returns the latest quote for an instrument.
func (g *orderGateway) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	return g.broker.Quote(ctx, symbol)
}

func failure(code, msg string) types.OrderResult {
	return types.OrderResult{Success: false, ErrCode: code, Message: msg}
}
