package engine

import (
	"context"
	"testing"
	"time"

	"stock-autotrader/internal/notify"
	"stock-autotrader/internal/store"
	"stock-autotrader/internal/types"
)

func sessionConfig() *store.Config {
	cfg := &store.Config{Mode: "DRY_RUN"}
	// A huge tick interval keeps the background loop quiet so tests can
	// drive ticks by hand.
	cfg.Session.TickSeconds = 3600
	cfg.Session.MaxHoldings = 3
	cfg.Session.StartupBatch = 3
	cfg.Session.CloseCutoff = "14:45"
	cfg.Order.AckTimeoutSeconds = 1
	cfg.Order.FillTimeoutSeconds = 1
	cfg.Order.PartialFillMin = 0.70
	cfg.Risk.DailyLossLimit = -600000
	cfg.Risk.MaxTrades = 10
	cfg.Exit.TrailTriggerPct = 10
	cfg.Exit.TrailDropPct = 5
	cfg.Exit.EmergencyDropPct = 5
	cfg.Exit.MaxHoldMinutes = 180
	return cfg
}

// fillingBroker acknowledges and fully fills every order at its current
// quote.
func fillingBroker() *fakeBroker {
	b := newFakeBroker()
	seq := make(chan int, 1)
	seq <- 0
	b.onSubmit = func(req types.OrderRequest) {
		n := <-seq
		seq <- n + 1
		id := req.Symbol + "-" + string(rune('A'+n))
		b.events <- ack(req.Token, id)
		b.events <- fillEvent(id, req.Qty, b.quote)
	}
	return b
}

func newTestSession(t *testing.T, b *fakeBroker, at time.Time) *session {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	s := New(sessionConfig(), b, notify.Nop{}, nil).(*session)
	clock := at
	s.now = func() time.Time { return clock }
	t.Cleanup(func() { s.StopSession(context.Background()) })
	return s
}

func tradingDay(hour, min int) time.Time {
	return time.Date(2026, 8, 28, hour, min, 0, 0, jst)
}

func TestSessionRoundTripOnProfitTarget(t *testing.T) {
	ctx := context.Background()
	b := fillingBroker()
	b.quote = 10000

	s := newTestSession(t, b, tradingDay(9, 0))

	planned := []types.PlannedTrade{{
		Symbol: "7203", Qty: 100, EntryPrice: 10000, TargetPrice: 11000, StopPrice: 9500, Priority: 1,
	}}
	if err := s.StartSession(ctx, planned); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	// Startup batch runs synchronously, so the entry is already filled.
	p, ok := s.tracker.Get("7203")
	if !ok || p.State != types.StateHolding {
		t.Fatalf("Expected HOLDING after startup buy, got %s", p.State)
	}
	if p.AvgPrice != 10000 {
		t.Fatalf("Expected entry at 10000, got %v", p.AvgPrice)
	}

	// Price rises but stays under the target: no exit.
	b.quote = 10200
	s.tick(ctx)
	s.inflight.Wait()
	p, _ = s.tracker.Get("7203")
	if p.State != types.StateHolding {
		t.Fatalf("Expected HOLDING at 10200, got %s", p.State)
	}

	// Target reached: the position sells and completes.
	b.quote = 11050
	s.tick(ctx)
	s.inflight.Wait()
	p, _ = s.tracker.Get("7203")
	if p.State != types.StateCompleted {
		t.Fatalf("Expected COMPLETED after target hit, got %s", p.State)
	}

	want := (11050.0 - 10000.0) * 100
	if got := s.risk.RealizedPL(); got != want {
		t.Errorf("Expected realized P/L %v, got %v", want, got)
	}
	if s.risk.Trades() != 1 {
		t.Errorf("Expected 1 completed trade, got %d", s.risk.Trades())
	}

	// The symbol is blocked for the rest of the day.
	if s.risk.Permit(ctx, "7203") {
		t.Error("Expected re-entry blocked after the round-trip")
	}
}

func TestSessionPartialExitLegsCountTowardRiskPL(t *testing.T) {
	ctx := context.Background()
	b := newFakeBroker()
	b.quote = 10000

	// Buys fill fully; the first sell fills only 80 of 100, the retry
	// leg fills the rest.
	seq := make(chan int, 1)
	seq <- 0
	b.onSubmit = func(req types.OrderRequest) {
		n := <-seq
		seq <- n + 1
		id := req.Symbol + "-" + string(rune('A'+n))
		b.events <- ack(req.Token, id)
		qty := req.Qty
		if req.Side == types.SideSell && n == 1 {
			qty = req.Qty * 8 / 10
		}
		b.events <- fillEvent(id, qty, b.quote)
	}
	b.onCancel = func(orderID string) {
		b.events <- types.BrokerEvent{Kind: types.EventCancelAck, OrderID: orderID}
	}

	s := newTestSession(t, b, tradingDay(9, 0))

	planned := []types.PlannedTrade{{
		Symbol: "7203", Qty: 100, EntryPrice: 10000, TargetPrice: 11000, StopPrice: 9500, Priority: 1,
	}}
	if err := s.StartSession(ctx, planned); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	// Target reached; the exit fills 80 shares and keeps the remainder.
	b.quote = 11050
	s.tick(ctx)
	s.inflight.Wait()
	p, _ := s.tracker.Get("7203")
	if p.State != types.StateHolding || p.FilledQty != 20 {
		t.Fatalf("Expected 20 shares still held after partial exit, got %s qty=%d", p.State, p.FilledQty)
	}

	// The next tick sells the remainder and closes the round-trip.
	s.tick(ctx)
	s.inflight.Wait()
	p, _ = s.tracker.Get("7203")
	if p.State != types.StateCompleted {
		t.Fatalf("Expected COMPLETED after the final leg, got %s", p.State)
	}

	// The risk budget sees the P/L of both legs, not just the last 20.
	want := (11050.0 - 10000.0) * 100
	if got := s.risk.RealizedPL(); got != want {
		t.Errorf("Expected realized P/L %v across both legs, got %v", want, got)
	}
	if s.risk.Trades() != 1 {
		t.Errorf("Expected 1 completed round-trip, got %d", s.risk.Trades())
	}
}

func TestSessionStartupBatchIsBounded(t *testing.T) {
	ctx := context.Background()
	b := fillingBroker()
	b.quote = 10000

	s := newTestSession(t, b, tradingDay(9, 0))

	planned := []types.PlannedTrade{
		{Symbol: "7203", Qty: 100, EntryPrice: 10000, TargetPrice: 11000, StopPrice: 9500, Priority: 4},
		{Symbol: "6758", Qty: 100, EntryPrice: 10000, TargetPrice: 11000, StopPrice: 9500, Priority: 3},
		{Symbol: "9984", Qty: 100, EntryPrice: 10000, TargetPrice: 11000, StopPrice: 9500, Priority: 2},
		{Symbol: "8306", Qty: 100, EntryPrice: 10000, TargetPrice: 11000, StopPrice: 9500, Priority: 1},
	}
	if err := s.StartSession(ctx, planned); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if got := len(s.tracker.Holdings()); got != 3 {
		t.Fatalf("Expected 3 holdings after startup batch, got %d", got)
	}

	// The lowest-priority candidate is still waiting.
	p, _ := s.tracker.Get("8306")
	if p.State != types.StateReady {
		t.Errorf("Expected 8306 still READY, got %s", p.State)
	}

	// With the holdings cap reached, the next tick buys nothing.
	s.tick(ctx)
	s.inflight.Wait()
	p, _ = s.tracker.Get("8306")
	if p.State != types.StateReady {
		t.Errorf("Expected no entry while at the holdings cap, got %s", p.State)
	}
}

func TestSessionForcedLiquidation(t *testing.T) {
	ctx := context.Background()
	b := fillingBroker()
	b.quote = 10000

	s := newTestSession(t, b, tradingDay(9, 0))

	planned := []types.PlannedTrade{
		{Symbol: "7203", Qty: 100, EntryPrice: 10000, TargetPrice: 20000, StopPrice: 5000, Priority: 2},
		{Symbol: "6758", Qty: 100, EntryPrice: 10000, TargetPrice: 20000, StopPrice: 5000, Priority: 1},
	}
	if err := s.StartSession(ctx, planned); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if got := len(s.tracker.Holdings()); got != 2 {
		t.Fatalf("Expected 2 holdings, got %d", got)
	}

	// Clock passes the cutoff: the next tick liquidates everything and
	// finishes the session.
	clock := tradingDay(14, 46)
	s.now = func() time.Time { return clock }
	b.quote = 10100

	if done := s.tick(ctx); !done {
		t.Fatal("Expected the liquidation tick to finish the session")
	}

	for _, sym := range []string{"7203", "6758"} {
		p, _ := s.tracker.Get(sym)
		if p.State != types.StateCompleted {
			t.Errorf("Expected %s COMPLETED after liquidation, got %s", sym, p.State)
		}
	}
	if s.IsActive() {
		t.Error("Expected session inactive after liquidation")
	}

	// The session cannot restart the same day.
	if err := s.StartSession(ctx, planned); err == nil {
		t.Error("Expected restart after liquidation to be refused")
	}
}

func TestSessionCutoffBoundary(t *testing.T) {
	b := fillingBroker()
	s := newTestSession(t, b, tradingDay(14, 44))

	if s.pastCutoff() {
		t.Error("Expected 14:44 to be before the cutoff")
	}
	s.now = func() time.Time { return tradingDay(14, 45) }
	if !s.pastCutoff() {
		t.Error("Expected 14:45 to trigger the cutoff")
	}
}

func TestSessionMalformedCutoffFallsBack(t *testing.T) {
	cfg := sessionConfig()
	cfg.Session.CloseCutoff = "quarter to three"

	s := New(cfg, newFakeBroker(), notify.Nop{}, nil).(*session)
	if s.cutoffHour != 14 || s.cutoffMin != 45 {
		t.Fatalf("Expected fallback cutoff 14:45, got %02d:%02d", s.cutoffHour, s.cutoffMin)
	}

	// A midnight cutoff would make every tick liquidate.
	s.now = func() time.Time { return tradingDay(9, 0) }
	if s.pastCutoff() {
		t.Error("Expected 09:00 to be before the fallback cutoff")
	}
}

func TestSessionStopLeavesHoldingsOpen(t *testing.T) {
	ctx := context.Background()
	b := fillingBroker()
	b.quote = 10000

	s := newTestSession(t, b, tradingDay(9, 0))

	planned := []types.PlannedTrade{{
		Symbol: "7203", Qty: 100, EntryPrice: 10000, TargetPrice: 20000, StopPrice: 5000, Priority: 1,
	}}
	if err := s.StartSession(ctx, planned); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	s.StopSession(ctx)
	if s.IsActive() {
		t.Fatal("Expected session inactive after stop")
	}

	// Stop is bookkeeping, not liquidation: the holding is cancelled in
	// the tracker, not sold.
	p, _ := s.tracker.Get("7203")
	if p.State != types.StateCancelled {
		t.Errorf("Expected CANCELLED after stop, got %s", p.State)
	}
	if s.risk.Trades() != 0 {
		t.Errorf("Expected no round-trips recorded, got %d", s.risk.Trades())
	}
}
