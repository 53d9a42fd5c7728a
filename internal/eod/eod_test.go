package eod

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stock-autotrader/internal/tradelog"
)

func TestSummarizeDayAggregatesRoundTrips(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	// Write through the tradelog so the summarizer reads the real format.
	entries := []tradelog.Entry{
		{Symbol: "7203", Side: "BUY", Qty: 100, Price: 10000, OrderID: "O1", Reason: "ENTRY"},
		{Symbol: "7203", Side: "SELL", Qty: 100, Price: 10500, OrderID: "O2", Reason: "PROFIT_TARGET"},
		{Symbol: "6758", Side: "BUY", Qty: 200, Price: 5000, OrderID: "O3", Reason: "ENTRY"},
	}
	for _, e := range entries {
		if err := tradelog.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	s := &eodSummarizer{}
	path, err := s.SummarizeDay(time.Now())
	if err != nil {
		t.Fatalf("SummarizeDay failed: %v", err)
	}
	if path == "" {
		t.Fatal("Expected a CSV path")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	// Header, two symbols, and the total row.
	if len(rows) != 4 {
		t.Fatalf("Expected 4 rows, got %d", len(rows))
	}
	if rows[0][0] != "symbol" {
		t.Errorf("Expected header row, got %v", rows[0])
	}

	// Symbols are sorted; 6758 before 7203.
	if rows[1][0] != "6758" || rows[2][0] != "7203" {
		t.Errorf("Expected sorted symbols, got %s then %s", rows[1][0], rows[2][0])
	}
	if rows[1][5] != "0.00" {
		t.Errorf("Expected no realized P/L on an open position, got %s", rows[1][5])
	}
	if rows[2][5] != "50000.00" {
		t.Errorf("Expected realized P/L 50000.00 for 7203, got %s", rows[2][5])
	}
	if rows[3][0] != "TOTAL" {
		t.Errorf("Expected TOTAL row last, got %s", rows[3][0])
	}
}

func TestSummarizeDayNoTrades(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	s := &eodSummarizer{}
	path, err := s.SummarizeDay(time.Now())
	if err != nil {
		t.Fatalf("SummarizeDay failed: %v", err)
	}
	if path != "" {
		t.Errorf("Expected empty path for a day with no trades, got %s", path)
	}
}

func TestShouldRunNowSkipsExistingCSV(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_LOG_DIR", dir)

	s := &eodSummarizer{}
	run1, path := s.ShouldRunNow()
	if !run1 {
		// Before the cutoff there is nothing to assert beyond the path.
		if path == "" {
			t.Error("Expected a target path either way")
		}
		return
	}

	// Once the CSV exists the check goes quiet.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("symbol\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if run2, _ := s.ShouldRunNow(); run2 {
		t.Error("Expected no rerun once the CSV exists")
	}
}
