package engine

import (
	"context"
	"testing"
)

func TestRiskManagerReentryBlocked(t *testing.T) {
	rm := newRiskManager(RiskConfig{DailyLossLimit: -600000, MaxTrades: 10})
	ctx := context.Background()

	if !rm.Permit(ctx, "7203") {
		t.Fatal("Expected fresh symbol to be permitted")
	}

	rm.MarkTraded("7203")
	if rm.Permit(ctx, "7203") {
		t.Error("Expected re-entry to be blocked after MarkTraded")
	}
	if !rm.Permit(ctx, "6758") {
		t.Error("Expected other symbols to remain permitted")
	}

	// The block from a buy fill does not consume a trade slot.
	if rm.Trades() != 0 {
		t.Errorf("Expected 0 trades after MarkTraded, got %d", rm.Trades())
	}
}

func TestRiskManagerDailyLossLimit(t *testing.T) {
	rm := newRiskManager(RiskConfig{DailyLossLimit: -600000, MaxTrades: 10})
	ctx := context.Background()

	rm.Record(ctx, "7203", -250000)
	if !rm.Permit(ctx, "6758") {
		t.Fatal("Expected trading to continue above the loss limit")
	}

	rm.Record(ctx, "6758", -200000)
	if !rm.Permit(ctx, "9984") {
		t.Fatal("Expected trading to continue at -450000")
	}

	rm.Record(ctx, "9984", -200000)
	if rm.Permit(ctx, "8306") {
		t.Error("Expected new entries to halt at -650000")
	}
	if rm.RealizedPL() != -650000 {
		t.Errorf("Expected cumulative P/L -650000, got %v", rm.RealizedPL())
	}
}

func TestRiskManagerLossLimitBoundary(t *testing.T) {
	rm := newRiskManager(RiskConfig{DailyLossLimit: -600000, MaxTrades: 10})
	ctx := context.Background()

	// Exactly at the limit halts.
	rm.Record(ctx, "7203", -600000)
	if rm.Permit(ctx, "6758") {
		t.Error("Expected halt when realized P/L equals the limit")
	}
}

func TestRiskManagerTradeCountLimit(t *testing.T) {
	rm := newRiskManager(RiskConfig{DailyLossLimit: -600000, MaxTrades: 2})
	ctx := context.Background()

	rm.Record(ctx, "7203", 1000)
	if !rm.Permit(ctx, "6758") {
		t.Fatal("Expected second trade to be permitted")
	}

	rm.Record(ctx, "6758", 1000)
	if rm.Permit(ctx, "9984") {
		t.Error("Expected trade count limit to halt new entries")
	}
}

func TestRiskManagerProfitsOffsetLosses(t *testing.T) {
	rm := newRiskManager(RiskConfig{DailyLossLimit: -600000, MaxTrades: 10})
	ctx := context.Background()

	rm.Record(ctx, "7203", -500000)
	rm.Record(ctx, "6758", 200000)
	rm.Record(ctx, "9984", -250000)

	// Net -550000, still above the limit.
	if !rm.Permit(ctx, "8306") {
		t.Error("Expected trading to continue while net P/L is above the limit")
	}
}

func TestRiskManagerHaltLatchesThroughRecovery(t *testing.T) {
	rm := newRiskManager(RiskConfig{DailyLossLimit: -600000, MaxTrades: 10})
	ctx := context.Background()

	rm.Record(ctx, "7203", -650000)
	if rm.Permit(ctx, "6758") {
		t.Fatal("Expected halt at -650000")
	}

	// A winner pulls the running total back above the limit, but the
	// day stays halted once the limit has been touched.
	rm.Record(ctx, "6758", 100000)
	if rm.RealizedPL() != -550000 {
		t.Fatalf("Expected cumulative P/L -550000, got %v", rm.RealizedPL())
	}
	if rm.Permit(ctx, "9984") {
		t.Error("Expected the halt to persist after a recovering trade")
	}

	rm.Reset()
	if !rm.Permit(ctx, "9984") {
		t.Error("Expected the halt cleared by reset")
	}
}

func TestRiskManagerReset(t *testing.T) {
	rm := newRiskManager(RiskConfig{DailyLossLimit: -600000, MaxTrades: 1})
	ctx := context.Background()

	rm.Record(ctx, "7203", -700000)
	if rm.Permit(ctx, "7203") {
		t.Fatal("Expected everything blocked before reset")
	}

	rm.Reset()
	if !rm.Permit(ctx, "7203") {
		t.Error("Expected permits restored after reset")
	}
	if rm.RealizedPL() != 0 || rm.Trades() != 0 {
		t.Error("Expected counters cleared after reset")
	}
}
