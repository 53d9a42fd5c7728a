package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/store"
	"stock-autotrader/internal/tradelog"
	"stock-autotrader/internal/types"
)

// jst is the exchange clock for the session cutoff.
var jst = time.FixedZone("JST", 9*3600)

// session wires the gateway, risk manager, position tracker, and scheduler
// into the engine's control surface for one trading day.
type session struct {
	cfg      *store.Config
	gateway  *orderGateway
	risk     *riskManager
	tracker  *positionTracker
	notifier interfaces.Notifier
	sink     interfaces.TradeSink // optional

	exitCfg      ExitConfig
	tickInterval time.Duration
	cutoffHour   int
	cutoffMin    int

	// now is injectable for tests; defaults to the JST wall clock.
	now func() time.Time

	mu       sync.Mutex
	active   bool
	finished bool // set after forced liquidation; permanent for the session
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	loopDone chan struct{}
}

var _ interfaces.Session = (*session)(nil)

// New builds the engine around an authenticated broker connection.
// sink may be nil when no durable store is configured.
func New(cfg *store.Config, broker interfaces.Broker, notifier interfaces.Notifier, sink interfaces.TradeSink) interfaces.Session {
	cutoff, err := time.Parse("15:04", cfg.Session.CloseCutoff)
	if err != nil {
		// Config validation rejects this earlier. Guard direct
		// construction too, or a bad value becomes a midnight cutoff
		// and the first tick liquidates everything.
		logger.Warn(context.Background(), "Invalid close_cutoff, using 14:45",
			"value", cfg.Session.CloseCutoff, "error", err)
		cutoff, _ = time.Parse("15:04", "14:45")
	}
	return &session{
		cfg: cfg,
		gateway: newOrderGateway(broker, notifier, GatewayConfig{
			AckTimeout:     cfg.AckTimeout(),
			FillTimeout:    cfg.FillTimeout(),
			PartialFillMin: cfg.Order.PartialFillMin,
		}),
		risk: newRiskManager(RiskConfig{
			DailyLossLimit: cfg.Risk.DailyLossLimit,
			MaxTrades:      cfg.Risk.MaxTrades,
		}),
		tracker:      newPositionTracker(notifier),
		notifier:     notifier,
		sink:         sink,
		exitCfg:      exitConfigFrom(cfg),
		tickInterval: cfg.TickInterval(),
		cutoffHour:   cutoff.Hour(),
		cutoffMin:    cutoff.Minute(),
		now:          func() time.Time { return time.Now().In(jst) },
	}
}

func exitConfigFrom(cfg *store.Config) ExitConfig {
	return ExitConfig{
		TrailTriggerPct:  cfg.Exit.TrailTriggerPct,
		TrailDropPct:     cfg.Exit.TrailDropPct,
		EmergencyDropPct: cfg.Exit.EmergencyDropPct,
		MaxHold:          cfg.MaxHold(),
	}
}

// StartSession registers the planner's candidates, runs the startup buy
// batch, and starts the periodic scheduler.
func (s *session) StartSession(ctx context.Context, planned []types.PlannedTrade) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return errors.New("session already active")
	}
	if s.finished {
		s.mu.Unlock()
		return errors.New("session already finished for the day")
	}
	s.active = true
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	s.risk.Reset()
	s.tracker.Register(ctx, planned)
	s.gateway.start()

	logger.Info(ctx, "Session started",
		"candidates", len(planned),
		"tick_seconds", s.cfg.Session.TickSeconds,
		"close_cutoff", s.cfg.Session.CloseCutoff,
	)

	s.startupBuys(loopCtx)
	go s.run(loopCtx)
	return nil
}

// StopSession stops the scheduler, lets in-flight orders resolve
// naturally, then marks remaining open positions CANCELLED. Open holdings
// are not unwound; that is the forced-liquidation pass's job.
func (s *session) StopSession(ctx context.Context) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	cancel := s.cancel
	done := s.loopDone
	s.mu.Unlock()

	cancel()
	<-done
	s.inflight.Wait()
	s.tracker.CancelOpen(ctx)
	logger.Info(ctx, "Session stopped", "realized_pl", s.risk.RealizedPL(), "trades", s.risk.Trades())
}

func (s *session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *session) Positions() []types.Position {
	return s.tracker.Snapshot()
}

// executeBuy runs one full buy attempt for a READY position. Any failure
// path returns the position to READY for a later tick.
func (s *session) executeBuy(ctx context.Context, symbol string) {
	if err := s.tracker.BeginBuy(ctx, symbol); err != nil {
		logger.ErrorWithErr(ctx, "Buy transition refused", err, "symbol", symbol)
		return
	}

	p, _ := s.tracker.Get(symbol)
	price, err := s.gateway.GetLastPrice(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "Quote unavailable, using planned entry price", "symbol", symbol, "error", err)
		price = p.PlannedPrice
	}

	res := s.gateway.Buy(ctx, symbol, p.PlannedQty, price)
	now := s.now()
	s.tracker.CompleteBuy(ctx, symbol, res, now)

	if res.Success && res.FilledQty > 0 {
		s.risk.MarkTraded(symbol)
		logger.Order(ctx, symbol, string(types.SideBuy), res.FilledQty, res.AvgPrice, res.OrderID)
		_ = tradelog.Append(tradelog.Entry{
			Symbol:  symbol,
			Side:    string(types.SideBuy),
			Qty:     res.FilledQty,
			Price:   res.AvgPrice,
			OrderID: res.OrderID,
			Reason:  "ENTRY",
		})
		return
	}
	logger.Warn(ctx, "Buy attempt failed",
		"symbol", symbol,
		"err_code", res.ErrCode,
		"message", res.Message,
	)
}

// executeSell runs one full sell attempt for a HOLDING position already
// transitioned to SELLING by the caller.
func (s *session) executeSell(ctx context.Context, symbol string, signal types.SellSignal) {
	p, ok := s.tracker.Get(symbol)
	if !ok || p.State != types.StateSelling {
		logger.Error(ctx, "Sell requested for position not in SELLING state", "symbol", symbol)
		return
	}

	res := s.gateway.Sell(ctx, symbol, p.FilledQty, p.CurrentPrice)
	now := s.now()
	closed, realizedPL := s.tracker.CompleteSell(ctx, symbol, res, now)

	if res.Success && res.FilledQty > 0 {
		logger.Order(ctx, symbol, string(types.SideSell), res.FilledQty, res.AvgPrice, res.OrderID,
			"signal", string(signal))
		_ = tradelog.Append(tradelog.Entry{
			Symbol:  symbol,
			Side:    string(types.SideSell),
			Qty:     res.FilledQty,
			Price:   res.AvgPrice,
			OrderID: res.OrderID,
			Reason:  string(signal),
		})
	} else {
		logger.Warn(ctx, "Sell attempt failed, will retry on a later tick",
			"symbol", symbol,
			"err_code", res.ErrCode,
			"message", res.Message,
		)
	}

	if closed {
		// realizedPL and the refreshed snapshot cover every exit leg,
		// not just the one that closed the position.
		if final, ok := s.tracker.Get(symbol); ok {
			p = final
		}
		s.risk.Record(ctx, symbol, realizedPL)
		s.recordCompletion(ctx, symbol, p, realizedPL, signal, now)
	}
}

// recordCompletion hands the finished round-trip to the sink,
// fire-and-forget. Quantity and P/L span the whole round-trip; the exit
// price is the quantity-weighted average across its legs.
func (s *session) recordCompletion(ctx context.Context, symbol string, p types.Position, realizedPL float64, signal types.SellSignal, now time.Time) {
	qty := p.SoldQty
	if qty == 0 {
		qty = p.FilledQty
	}
	exitPrice := p.AvgPrice
	if qty > 0 {
		exitPrice = p.AvgPrice + realizedPL/float64(qty)
	}
	_ = tradelog.AppendRoundTrip(tradelog.RoundTripEntry{
		Symbol:     symbol,
		Signal:     string(signal),
		Qty:        qty,
		EntryPrice: p.AvgPrice,
		ExitPrice:  exitPrice,
		RealizedPL: realizedPL,
	})
	if s.sink == nil {
		return
	}
	trade := types.CompletedTrade{
		Symbol:     symbol,
		Qty:        qty,
		EntryPrice: p.AvgPrice,
		ExitPrice:  exitPrice,
		RealizedPL: realizedPL,
		EntryTime:  p.EntryTime,
		ExitTime:   now,
		Signal:     signal,
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.sink.RecordCompletedTrade(context.Background(), trade); err != nil {
			logger.ErrorWithErr(ctx, "Trade sink write failed", err, "symbol", symbol)
		}
	}()
}
