package planner

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"stock-autotrader/internal/types"
)

// candidatesFile is the on-disk shape of the day's trade plan.
type candidatesFile struct {
	Date       string               `yaml:"date"`
	Candidates []types.PlannedTrade `yaml:"candidates"`
}

// Load reads the day's planned trades from path, validates each entry
// and returns them sorted by priority, highest first.
func Load(path string) ([]types.PlannedTrade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates file: %w", err)
	}

	var cf candidatesFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse candidates file: %w", err)
	}

	out := make([]types.PlannedTrade, 0, len(cf.Candidates))
	seen := make(map[string]bool)
	for i, c := range cf.Candidates {
		if err := validate(c); err != nil {
			return nil, fmt.Errorf("candidate %d (%s): %w", i, c.Symbol, err)
		}
		if seen[c.Symbol] {
			return nil, fmt.Errorf("candidate %d: duplicate symbol %s", i, c.Symbol)
		}
		seen[c.Symbol] = true
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out, nil
}

func validate(c types.PlannedTrade) error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.Qty <= 0 {
		return fmt.Errorf("qty must be positive, got %d", c.Qty)
	}
	if c.EntryPrice <= 0 {
		return fmt.Errorf("entry_price must be positive, got %v", c.EntryPrice)
	}
	if c.TargetPrice <= 0 || c.StopPrice <= 0 {
		return fmt.Errorf("target_price and stop_price must be positive")
	}
	if c.TargetPrice <= c.StopPrice {
		return fmt.Errorf("target_price %v must be above stop_price %v", c.TargetPrice, c.StopPrice)
	}
	return nil
}
