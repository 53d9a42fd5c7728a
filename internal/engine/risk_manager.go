package engine

import (
	"context"
	"sync"

	"stock-autotrader/internal/logger"
)

// RiskConfig is the session-wide risk budget. DailyLossLimit is negative;
// trading halts once cumulative realized P/L is at or below it.
type RiskConfig struct {
	DailyLossLimit float64
	MaxTrades      int
}

// dailyRiskState is reset at session start and owned exclusively by the
// risk manager.
type dailyRiskState struct {
	traded     map[string]bool
	realizedPL float64
	trades     int

	// halted latches once realized P/L touches the daily loss limit.
	// Later winners can pull the running total back above the limit,
	// but the halt stands until Reset.
	halted bool
}

// riskManager gates every new order against the day's budgets: no
// re-entry into an instrument already traded, a cumulative loss limit,
// and a trade-count ceiling.
type riskManager struct {
	cfg RiskConfig

	mu    sync.Mutex
	state dailyRiskState
}

func newRiskManager(cfg RiskConfig) *riskManager {
	return &riskManager{
		cfg:   cfg,
		state: dailyRiskState{traded: make(map[string]bool)},
	}
}

// Permit reports whether a new entry into symbol is allowed. Pure read,
// no side effects.
func (rm *riskManager) Permit(ctx context.Context, symbol string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state.traded[symbol] {
		logger.Risk(ctx, symbol, "REENTRY_BLOCKED")
		return false
	}
	if rm.state.halted || rm.state.realizedPL <= rm.cfg.DailyLossLimit {
		logger.Risk(ctx, symbol, "DAILY_LOSS_LIMIT",
			"realized_pl", rm.state.realizedPL,
			"limit", rm.cfg.DailyLossLimit,
		)
		return false
	}
	if rm.state.trades >= rm.cfg.MaxTrades {
		logger.Risk(ctx, symbol, "TRADE_COUNT_LIMIT",
			"trades", rm.state.trades,
			"limit", rm.cfg.MaxTrades,
		)
		return false
	}
	return true
}

// MarkTraded records the re-entry block for a symbol without advancing the
// trade counter. Called on buy fill; the counter advances only when the
// round-trip completes.
func (rm *riskManager) MarkTraded(symbol string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.state.traded[symbol] = true
}

// Record accounts one completed round-trip: re-entry block, realized P/L,
// trade count.
func (rm *riskManager) Record(ctx context.Context, symbol string, realizedPL float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.state.traded[symbol] = true
	rm.state.realizedPL += realizedPL
	rm.state.trades++

	logger.Info(ctx, "Round-trip recorded",
		"symbol", symbol,
		"realized_pl", realizedPL,
		"cumulative_pl", rm.state.realizedPL,
		"trades", rm.state.trades,
	)

	if rm.state.realizedPL <= rm.cfg.DailyLossLimit && !rm.state.halted {
		rm.state.halted = true
		logger.Risk(ctx, symbol, "DAILY_LOSS_LIMIT_REACHED",
			"realized_pl", rm.state.realizedPL,
			"limit", rm.cfg.DailyLossLimit,
		)
	}
}

// Reset clears the day's state at session start.
func (rm *riskManager) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.state = dailyRiskState{traded: make(map[string]bool)}
}

// RealizedPL returns the cumulative realized P/L for the session.
func (rm *riskManager) RealizedPL() float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.state.realizedPL
}

// Trades returns the completed round-trip count for the session.
func (rm *riskManager) Trades() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.state.trades
}
