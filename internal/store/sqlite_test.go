package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stock-autotrader/internal/types"
)

func newTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("NewSQLiteSink failed: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

func completedTrade(symbol string, pl float64, exit time.Time) types.CompletedTrade {
	return types.CompletedTrade{
		Symbol:     symbol,
		Qty:        100,
		EntryPrice: 10000,
		ExitPrice:  10000 + pl/100,
		RealizedPL: pl,
		EntryTime:  exit.Add(-time.Hour),
		ExitTime:   exit,
		Signal:     types.SignalProfitTarget,
	}
}

func TestSQLiteSinkRecordAndSum(t *testing.T) {
	ctx := context.Background()
	sink := newTestSink(t)

	day := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	if err := sink.RecordCompletedTrade(ctx, completedTrade("7203", 50000, day)); err != nil {
		t.Fatal(err)
	}
	if err := sink.RecordCompletedTrade(ctx, completedTrade("6758", -20000, day)); err != nil {
		t.Fatal(err)
	}
	// A trade from another day does not count.
	if err := sink.RecordCompletedTrade(ctx, completedTrade("9984", 99999, day.AddDate(0, 0, -1))); err != nil {
		t.Fatal(err)
	}

	total, err := sink.DailyRealizedPL(ctx, "2026-08-28")
	if err != nil {
		t.Fatal(err)
	}
	if total != 30000 {
		t.Errorf("Expected daily realized P/L 30000, got %v", total)
	}
}

func TestSQLiteSinkEmptyDay(t *testing.T) {
	sink := newTestSink(t)

	total, err := sink.DailyRealizedPL(context.Background(), "2026-08-28")
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("Expected 0 for an empty day, got %v", total)
	}
}
