package engine

import (
	"context"
	"sync"
	"time"

	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

// run is the periodic control loop. Each tick evaluates exits, searches
// for one new entry, and checks the forced-liquidation cutoff; the loop
// ends on session stop or after liquidation completes.
func (s *session) run(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.tick(ctx) {
				return
			}
		}
	}
}

// tick performs one scheduler pass. Returns true when the session is
// finished and no further ticks may run.
func (s *session) tick(ctx context.Context) bool {
	s.evaluateExits(ctx)
	s.searchEntries(ctx)

	if s.pastCutoff() {
		s.forceLiquidation(ctx)
		return true
	}
	return false
}

// evaluateExits refreshes quotes for all holdings and fans out one sell
// per signaled position. Sells run concurrently; the state machine keeps
// each position serialized.
func (s *session) evaluateExits(ctx context.Context) {
	for _, h := range s.tracker.Holdings() {
		symbol := h.Symbol

		price, err := s.gateway.GetLastPrice(ctx, symbol)
		if err != nil {
			logger.Warn(ctx, "Quote refresh failed, skipping exit check", "symbol", symbol, "error", err)
			continue
		}
		s.tracker.UpdateMarket(symbol, price)

		p, ok := s.tracker.Get(symbol)
		if !ok || p.State != types.StateHolding {
			continue
		}
		signal := CheckSellSignal(p, s.exitCfg, s.now().Sub(p.EntryTime))
		if signal == types.SignalHold {
			continue
		}

		logger.Info(ctx, "Exit signal",
			"symbol", symbol,
			"signal", string(signal),
			"current_price", p.CurrentPrice,
			"avg_price", p.AvgPrice,
			"unrealized_pl", p.UnrealizedPL(),
		)

		if err := s.tracker.BeginSell(ctx, symbol); err != nil {
			logger.ErrorWithErr(ctx, "Sell transition refused", err, "symbol", symbol)
			continue
		}
		// Orders in flight survive a session stop: the broker may already
		// be filling them.
		orderCtx := context.WithoutCancel(ctx)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.executeSell(orderCtx, symbol, signal)
		}()
	}
}

// searchEntries submits at most one buy per tick: the highest-priority
// READY candidate that passes the risk gate, and only while there is room
// under the concurrent-holdings cap.
func (s *session) searchEntries(ctx context.Context) {
	holdings := len(s.tracker.Holdings())
	if holdings >= s.cfg.Session.MaxHoldings {
		return
	}

	for _, cand := range s.tracker.ReadyByPriority() {
		if !s.risk.Permit(ctx, cand.Symbol) {
			s.notifier.RiskLimitReached(ctx, cand.Symbol, "permit denied")
			continue
		}
		s.executeBuy(context.WithoutCancel(ctx), cand.Symbol)
		return
	}
}

// startupBuys submits the first bounded batch of entries immediately at
// session start, ahead of the first periodic tick.
func (s *session) startupBuys(ctx context.Context) {
	batch := s.cfg.Session.StartupBatch
	if batch > s.cfg.Session.MaxHoldings {
		batch = s.cfg.Session.MaxHoldings
	}

	var wg sync.WaitGroup
	submitted := 0
	for _, cand := range s.tracker.ReadyByPriority() {
		if submitted >= batch {
			break
		}
		if !s.risk.Permit(ctx, cand.Symbol) {
			s.notifier.RiskLimitReached(ctx, cand.Symbol, "permit denied")
			continue
		}
		submitted++
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			s.executeBuy(context.WithoutCancel(ctx), symbol)
		}(cand.Symbol)
	}
	wg.Wait()

	if submitted > 0 {
		logger.Info(ctx, "Startup buy batch complete", "submitted", submitted)
	}
}

// pastCutoff reports whether the wall clock reached the forced-liquidation
// time.
func (s *session) pastCutoff() bool {
	now := s.now()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), s.cutoffHour, s.cutoffMin, 0, 0, now.Location())
	return !now.Before(cutoff)
}

// forceLiquidation submits one sell for every remaining holding, waits for
// all of them to resolve, then finishes the session permanently.
func (s *session) forceLiquidation(ctx context.Context) {
	holdings := s.tracker.Holdings()
	s.notifier.ForcedLiquidation(ctx, len(holdings))
	logger.Warn(ctx, "Forced liquidation triggered", "holdings", len(holdings))

	var wg sync.WaitGroup
	for _, h := range holdings {
		symbol := h.Symbol
		if err := s.tracker.BeginSell(ctx, symbol); err != nil {
			logger.ErrorWithErr(ctx, "Liquidation sell transition refused", err, "symbol", symbol)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.executeSell(ctx, symbol, types.SignalTimeLimit)
		}()
	}
	wg.Wait()

	// Earlier same-tick sells may still be in flight; once everything is
	// resolved, whatever remains open is closed out for bookkeeping.
	s.inflight.Wait()
	s.tracker.CancelOpen(ctx)

	s.mu.Lock()
	s.finished = true
	s.active = false
	s.mu.Unlock()

	logger.Info(ctx, "Session finished after liquidation",
		"realized_pl", s.risk.RealizedPL(),
		"trades", s.risk.Trades(),
	)
}
