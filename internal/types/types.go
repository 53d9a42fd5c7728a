package types

import "time"

// PositionState is the lifecycle state of a managed position.
type PositionState string

const (
	StateReady     PositionState = "READY"
	StateBuying    PositionState = "BUYING"
	StateHolding   PositionState = "HOLDING"
	StateSelling   PositionState = "SELLING"
	StateCompleted PositionState = "COMPLETED"
	StateCancelled PositionState = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s PositionState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// SellSignal is the outcome of exit evaluation for a holding position.
type SellSignal string

const (
	SignalHold         SellSignal = "HOLD"
	SignalProfitTarget SellSignal = "PROFIT_TARGET"
	SignalStopLoss     SellSignal = "STOP_LOSS"
	SignalEmergency    SellSignal = "EMERGENCY_EXIT"
	SignalTimeLimit    SellSignal = "TIME_LIMIT"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderRequest describes one order attempt. Token is the locally generated
// correlation token for matching broker acknowledgements; it is unique per
// attempt, not per position.
type OrderRequest struct {
	Side   OrderSide
	Symbol string
	Qty    int
	Price  float64
	Token  string
	// AllOrNothing makes an above-threshold partial fill a failure too.
	AllOrNothing bool
}

// OrderResult is the outcome of one order attempt.
type OrderResult struct {
	Success      bool
	OrderID      string
	FilledQty    int
	RemainingQty int
	AvgPrice     float64
	ErrCode      string
	Message      string
}

// BrokerEventKind classifies an asynchronous broker push event.
type BrokerEventKind string

const (
	EventAck       BrokerEventKind = "ACK"
	EventReject    BrokerEventKind = "REJECT"
	EventFill      BrokerEventKind = "FILL"
	EventCancelAck BrokerEventKind = "CANCEL_ACK"
)

// BrokerEvent is the typed form of a broker push message. Raw wire fields
// are decoded into this exactly once, at the broker integration edge.
type BrokerEvent struct {
	Kind      BrokerEventKind
	Token     string // correlation token, present on ACK/REJECT
	OrderID   string // broker-issued identifier, present from ACK onward
	FilledQty int
	FillPrice float64
	ErrCode   string
	Message   string
	Time      time.Time
}

// PlannedTrade is the planner's input for one candidate instrument,
// supplied before a position reaches READY. Consumed read-only.
type PlannedTrade struct {
	Symbol      string  `yaml:"symbol" json:"symbol"`
	Qty         int     `yaml:"qty" json:"qty"`
	EntryPrice  float64 `yaml:"entry_price" json:"entry_price"`
	TargetPrice float64 `yaml:"target_price" json:"target_price"`
	StopPrice   float64 `yaml:"stop_price" json:"stop_price"`
	Priority    float64 `yaml:"priority" json:"priority"`
}

// Position is one instrument under active management.
//
// Planned fields come from the planner and are read-only here. Actual
// fields are mutated only through gateway results; market fields only by
// the scheduler tick.
type Position struct {
	Symbol string

	PlannedQty   int
	PlannedPrice float64
	TargetPrice  float64
	StopPrice    float64
	Priority     float64

	FilledQty int
	AvgPrice  float64

	// SoldQty and RealizedPL accumulate across partial exits so the
	// closing leg reports the whole round-trip.
	SoldQty    int
	RealizedPL float64

	CurrentPrice float64
	MaxPrice     float64
	MinPrice     float64

	EntryTime   time.Time
	ExitTime    time.Time // zero until closed
	LastAttempt time.Time

	State PositionState
}

// UnrealizedPL is the open profit/loss at the current price.
func (p *Position) UnrealizedPL() float64 {
	if p.FilledQty == 0 {
		return 0
	}
	return (p.CurrentPrice - p.AvgPrice) * float64(p.FilledQty)
}

// CompletedTrade is the record handed to the trade sink after a round-trip.
type CompletedTrade struct {
	Symbol     string     `json:"symbol"`
	Qty        int        `json:"qty"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	RealizedPL float64    `json:"realized_pl"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	Signal     SellSignal `json:"signal"`
}
