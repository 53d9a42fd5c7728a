package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

// ErrOutstandingOrder signals an attempt to submit a second order for a
// position that already has one in flight. This is an invariant violation,
// not an expected runtime condition.
var ErrOutstandingOrder = errors.New("position already has an outstanding order")

// ExitConfig holds the exit-signal thresholds.
type ExitConfig struct {
	TrailTriggerPct  float64 // running max must exceed entry by more than this
	TrailDropPct     float64 // ...and price must fall below (100-this)% of the max
	EmergencyDropPct float64 // price at or below (100-this)% of entry
	MaxHold          time.Duration
}

// CheckSellSignal evaluates the exit conditions for a holding position.
// It is a pure function of the snapshot and elapsed holding time; checks
// run in fixed order and the first match wins. ProfitTarget is checked
// before StopLoss: both can only be true together if the planner supplied
// target <= stop, which is a precondition violation handled upstream.
func CheckSellSignal(p types.Position, cfg ExitConfig, elapsed time.Duration) types.SellSignal {
	if p.CurrentPrice >= p.TargetPrice {
		return types.SignalProfitTarget
	}
	if p.CurrentPrice <= p.StopPrice {
		return types.SignalStopLoss
	}
	trailTrigger := p.AvgPrice * (1 + cfg.TrailTriggerPct/100)
	trailFloor := p.MaxPrice * (1 - cfg.TrailDropPct/100)
	if p.MaxPrice > trailTrigger && p.CurrentPrice < trailFloor {
		return types.SignalEmergency
	}
	if p.CurrentPrice <= p.AvgPrice*(1-cfg.EmergencyDropPct/100) {
		return types.SignalEmergency
	}
	if elapsed > cfg.MaxHold {
		return types.SignalTimeLimit
	}
	return types.SignalHold
}

// positionTracker owns the in-memory position set and its state machine.
// All mutation goes through transition methods; callers get value
// snapshots, never live pointers.
type positionTracker struct {
	notifier interfaces.Notifier

	mu        sync.Mutex
	positions map[string]*types.Position
}

func newPositionTracker(notifier interfaces.Notifier) *positionTracker {
	return &positionTracker{
		notifier:  notifier,
		positions: make(map[string]*types.Position),
	}
}

// Register adds planner candidates as READY positions. A candidate whose
// target does not exceed its stop is registered anyway but logged, since
// input validity is the planner's contract.
func (pt *positionTracker) Register(ctx context.Context, planned []types.PlannedTrade) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	for _, pl := range planned {
		if _, exists := pt.positions[pl.Symbol]; exists {
			logger.Warn(ctx, "Duplicate planner candidate ignored", "symbol", pl.Symbol)
			continue
		}
		if pl.TargetPrice <= pl.StopPrice {
			logger.Warn(ctx, "Planner candidate with target at or below stop",
				"symbol", pl.Symbol,
				"target", pl.TargetPrice,
				"stop", pl.StopPrice,
			)
		}
		pt.positions[pl.Symbol] = &types.Position{
			Symbol:       pl.Symbol,
			PlannedQty:   pl.Qty,
			PlannedPrice: pl.EntryPrice,
			TargetPrice:  pl.TargetPrice,
			StopPrice:    pl.StopPrice,
			Priority:     pl.Priority,
			State:        types.StateReady,
		}
	}
}

// BeginBuy transitions READY -> BUYING, guaranteeing at most one
// outstanding order per position.
func (pt *positionTracker) BeginBuy(ctx context.Context, symbol string) error {
	return pt.transition(ctx, symbol, types.StateReady, types.StateBuying)
}

// CompleteBuy applies a buy result: success with fills moves the position
// to HOLDING; any failure returns it to READY for a later tick.
func (pt *positionTracker) CompleteBuy(ctx context.Context, symbol string, res types.OrderResult, now time.Time) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p, ok := pt.positions[symbol]
	if !ok || p.State != types.StateBuying {
		logger.Error(ctx, "Buy result for position not in BUYING state", "symbol", symbol)
		return
	}
	p.LastAttempt = now

	if !res.Success || res.FilledQty == 0 {
		pt.setState(ctx, p, types.StateReady)
		return
	}

	p.FilledQty = res.FilledQty
	p.AvgPrice = res.AvgPrice
	p.EntryTime = now
	p.CurrentPrice = res.AvgPrice
	p.MaxPrice = res.AvgPrice
	p.MinPrice = res.AvgPrice
	pt.setState(ctx, p, types.StateHolding)
}

// BeginSell transitions HOLDING -> SELLING.
func (pt *positionTracker) BeginSell(ctx context.Context, symbol string) error {
	return pt.transition(ctx, symbol, types.StateHolding, types.StateSelling)
}

// CompleteSell applies a sell result. A full exit completes the position
// and returns the realized P/L accumulated over every exit leg; a partial
// exit reduces the held quantity, banks the leg's P/L, and returns to
// HOLDING for the remainder; a failure returns to HOLDING unchanged for
// retry.
func (pt *positionTracker) CompleteSell(ctx context.Context, symbol string, res types.OrderResult, now time.Time) (closed bool, realizedPL float64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p, ok := pt.positions[symbol]
	if !ok || p.State != types.StateSelling {
		logger.Error(ctx, "Sell result for position not in SELLING state", "symbol", symbol)
		return false, 0
	}
	p.LastAttempt = now

	if !res.Success || res.FilledQty == 0 {
		pt.setState(ctx, p, types.StateHolding)
		return false, 0
	}

	legPL := (res.AvgPrice - p.AvgPrice) * float64(res.FilledQty)
	p.SoldQty += res.FilledQty
	p.RealizedPL += legPL

	if res.FilledQty < p.FilledQty {
		// The broker filled only part of the exit; keep managing the rest.
		// The leg's P/L is banked on the position and folded into the
		// total when the final leg closes it.
		p.FilledQty -= res.FilledQty
		pt.setState(ctx, p, types.StateHolding)
		return false, legPL
	}

	p.ExitTime = now
	pt.setState(ctx, p, types.StateCompleted)
	return true, p.RealizedPL
}

// UpdateMarket refreshes the market fields of a position from the latest
// quote. Running max/min are maintained since entry.
func (pt *positionTracker) UpdateMarket(symbol string, price float64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p, ok := pt.positions[symbol]
	if !ok {
		return
	}
	p.CurrentPrice = price
	if price > p.MaxPrice {
		p.MaxPrice = price
	}
	if p.MinPrice == 0 || price < p.MinPrice {
		p.MinPrice = price
	}
}

// CancelOpen marks every position without an outstanding order CANCELLED.
// Positions still BUYING or SELLING are left for their in-flight call to
// resolve; the caller re-runs this after reconciliation.
func (pt *positionTracker) CancelOpen(ctx context.Context) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	for _, p := range pt.positions {
		switch p.State {
		case types.StateReady, types.StateHolding:
			pt.setState(ctx, p, types.StateCancelled)
		}
	}
}

// OutstandingOrders reports how many positions have an order in flight.
func (pt *positionTracker) OutstandingOrders() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	n := 0
	for _, p := range pt.positions {
		if p.State == types.StateBuying || p.State == types.StateSelling {
			n++
		}
	}
	return n
}

// Holdings returns snapshots of all HOLDING positions.
func (pt *positionTracker) Holdings() []types.Position {
	return pt.inState(types.StateHolding)
}

// ReadyByPriority returns snapshots of READY positions, highest priority
// first.
func (pt *positionTracker) ReadyByPriority() []types.Position {
	ready := pt.inState(types.StateReady)
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})
	return ready
}

// Snapshot returns copies of all positions.
func (pt *positionTracker) Snapshot() []types.Position {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	out := make([]types.Position, 0, len(pt.positions))
	for _, p := range pt.positions {
		out = append(out, *p)
	}
	return out
}

// Get returns a snapshot of one position.
func (pt *positionTracker) Get(symbol string) (types.Position, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p, ok := pt.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *p, true
}

func (pt *positionTracker) inState(state types.PositionState) []types.Position {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	out := make([]types.Position, 0, len(pt.positions))
	for _, p := range pt.positions {
		if p.State == state {
			out = append(out, *p)
		}
	}
	return out
}

func (pt *positionTracker) transition(ctx context.Context, symbol string, from, to types.PositionState) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p, ok := pt.positions[symbol]
	if !ok {
		return fmt.Errorf("unknown position %s", symbol)
	}
	if p.State == types.StateBuying || p.State == types.StateSelling {
		return fmt.Errorf("%w: %s is %s", ErrOutstandingOrder, symbol, p.State)
	}
	if p.State != from {
		return fmt.Errorf("position %s is %s, want %s", symbol, p.State, from)
	}
	pt.setState(ctx, p, to)
	return nil
}

// setState mutates the state and emits the transition event. Caller holds
// the lock.
func (pt *positionTracker) setState(ctx context.Context, p *types.Position, to types.PositionState) {
	from := p.State
	p.State = to
	pt.notifier.StateChange(ctx, p.Symbol, from, to)
}
