package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

// Behavior controls how the simulator resolves a symbol's orders.
type Behavior struct {
	// Reject makes every order come back with an exchange rejection.
	Reject bool
	// DropAck suppresses the acknowledgement entirely so the caller
	// times out waiting.
	DropAck bool
	// FillRatio is the fraction of requested quantity that fills.
	// Zero means fill everything. The remainder never fills.
	FillRatio float64
	// FillChunks splits the filled quantity across this many partial
	// fill events. Zero or one means a single fill.
	FillChunks int
	// AckDelay and FillDelay override the simulator defaults.
	AckDelay  time.Duration
	FillDelay time.Duration
}

// Sim is an in-process broker that resolves orders asynchronously on
// its own goroutines, the same shape a live exchange feed has.
type Sim struct {
	mu        sync.Mutex
	prices    map[string]float64
	behaviors map[string]Behavior
	events    chan types.BrokerEvent
	started   bool
	stopped   bool
	wg        sync.WaitGroup

	ackDelay  time.Duration
	fillDelay time.Duration
	seq       int64
}

var _ interfaces.Broker = (*Sim)(nil)

// New creates a simulator with immediate-ish resolution. Use SetBehavior
// to shape per-symbol outcomes.
func New() *Sim {
	return &Sim{
		prices:    make(map[string]float64),
		behaviors: make(map[string]Behavior),
		events:    make(chan types.BrokerEvent, 64),
		ackDelay:  5 * time.Millisecond,
		fillDelay: 10 * time.Millisecond,
	}
}

// SetPrice sets the quote the simulator reports for symbol.
func (s *Sim) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// SetBehavior shapes order resolution for symbol.
func (s *Sim) SetBehavior(symbol string, b Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behaviors[symbol] = b
}

func (s *Sim) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	logger.Info(ctx, "Simulated broker started")
	return nil
}

func (s *Sim) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
	close(s.events)
	logger.Info(ctx, "Simulated broker stopped")
}

func (s *Sim) Events() <-chan types.BrokerEvent { return s.events }

func (s *Sim) Quote(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prices[symbol]; ok {
		return p, nil
	}
	// Unknown symbols get a wandering default so dry runs still move.
	p := 1000 + rand.Float64()*100
	return p, nil
}

func (s *Sim) SubmitOrder(ctx context.Context, req types.OrderRequest) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("broker stopped")
	}
	s.seq++
	orderID := fmt.Sprintf("SIM-%d", s.seq)
	b := s.behaviors[req.Symbol]
	price, ok := s.prices[req.Symbol]
	if !ok {
		price = req.Price
	}
	s.mu.Unlock()

	logger.Debug(ctx, "Simulated order accepted for resolution",
		"symbol", req.Symbol, "side", string(req.Side), "qty", req.Qty, "order_id", orderID)

	s.wg.Add(1)
	go s.resolve(req, b, orderID, price)
	return nil
}

// resolve plays out one order's lifecycle on the event channel.
func (s *Sim) resolve(req types.OrderRequest, b Behavior, orderID string, price float64) {
	defer s.wg.Done()

	ackDelay := s.ackDelay
	if b.AckDelay > 0 {
		ackDelay = b.AckDelay
	}
	fillDelay := s.fillDelay
	if b.FillDelay > 0 {
		fillDelay = b.FillDelay
	}

	if b.DropAck {
		return
	}

	time.Sleep(ackDelay)
	if b.Reject {
		s.emit(types.BrokerEvent{
			Kind:    types.EventReject,
			Token:   req.Token,
			OrderID: orderID,
			ErrCode: "SIM_REJECT",
			Message: "rejected by simulator",
			Time:    time.Now(),
		})
		return
	}
	s.emit(types.BrokerEvent{
		Kind:    types.EventAck,
		Token:   req.Token,
		OrderID: orderID,
		Time:    time.Now(),
	})

	fillQty := req.Qty
	if b.FillRatio > 0 && b.FillRatio < 1 {
		fillQty = int(float64(req.Qty) * b.FillRatio)
	}
	if fillQty <= 0 {
		return
	}

	chunks := b.FillChunks
	if chunks <= 1 {
		chunks = 1
	}
	per := fillQty / chunks
	if per <= 0 {
		per = fillQty
		chunks = 1
	}
	sent := 0
	for i := 0; i < chunks; i++ {
		time.Sleep(fillDelay)
		q := per
		if i == chunks-1 {
			q = fillQty - sent
		}
		sent += q
		s.emit(types.BrokerEvent{
			Kind:      types.EventFill,
			OrderID:   orderID,
			FilledQty: q,
			FillPrice: price,
			Time:      time.Now(),
		})
	}
}

func (s *Sim) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("broker stopped")
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		time.Sleep(s.ackDelay)
		s.emit(types.BrokerEvent{
			Kind:    types.EventCancelAck,
			OrderID: orderID,
			Time:    time.Now(),
		})
	}()
	return nil
}

func (s *Sim) emit(ev types.BrokerEvent) {
	defer func() {
		// Events raced against Stop closing the channel are dropped.
		_ = recover()
	}()
	s.events <- ev
}
