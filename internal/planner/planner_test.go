package planner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCandidates(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candidates.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSortsByPriority(t *testing.T) {
	path := writeCandidates(t, `
date: "2026-08-28"
candidates:
  - symbol: "7203"
    qty: 100
    entry_price: 10000
    target_price: 11000
    stop_price: 9500
    priority: 1.5
  - symbol: "6758"
    qty: 200
    entry_price: 5000
    target_price: 5400
    stop_price: 4800
    priority: 3.0
  - symbol: "9984"
    qty: 100
    entry_price: 8000
    target_price: 8600
    stop_price: 7700
    priority: 2.0
`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(got))
	}
	if got[0].Symbol != "6758" || got[1].Symbol != "9984" || got[2].Symbol != "7203" {
		t.Errorf("Expected priority order 6758,9984,7203, got %s,%s,%s",
			got[0].Symbol, got[1].Symbol, got[2].Symbol)
	}
	if got[0].Qty != 200 || got[0].TargetPrice != 5400 {
		t.Errorf("Expected fields preserved, got qty=%d target=%v", got[0].Qty, got[0].TargetPrice)
	}
}

func TestLoadRejectsDuplicateSymbols(t *testing.T) {
	path := writeCandidates(t, `
candidates:
  - {symbol: "7203", qty: 100, entry_price: 10000, target_price: 11000, stop_price: 9500}
  - {symbol: "7203", qty: 200, entry_price: 10000, target_price: 11000, stop_price: 9500}
`)
	if _, err := Load(path); err == nil {
		t.Error("Expected duplicate symbol to be rejected")
	}
}

func TestLoadRejectsTargetBelowStop(t *testing.T) {
	path := writeCandidates(t, `
candidates:
  - {symbol: "7203", qty: 100, entry_price: 10000, target_price: 9000, stop_price: 9500}
`)
	if _, err := Load(path); err == nil {
		t.Error("Expected inverted target/stop to be rejected")
	}
}

func TestLoadRejectsNonPositiveQty(t *testing.T) {
	path := writeCandidates(t, `
candidates:
  - {symbol: "7203", qty: 0, entry_price: 10000, target_price: 11000, stop_price: 9500}
`)
	if _, err := Load(path); err == nil {
		t.Error("Expected zero qty to be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected missing file to error")
	}
}

func TestLoadEmptyPlan(t *testing.T) {
	path := writeCandidates(t, "date: \"2026-08-28\"\ncandidates: []\n")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty plan, got %d candidates", len(got))
	}
}
