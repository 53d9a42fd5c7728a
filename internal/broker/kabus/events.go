package kabus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

// kabu station wire constants.
const (
	exchangeTSE = 1

	securityTypeStock = 1

	sideSell = "1"
	sideBuy  = "2"

	cashMarginCash      = 1
	delivTypeCash       = 2
	fundTypeCash        = "AA"
	accountTypeSpecific = 4

	frontOrderTypeMarket = 10
	frontOrderTypeLimit  = 20

	// /orders State values.
	orderStateDone = 5
)

type tokenRequest struct {
	APIPassword string `json:"APIPassword"`
}

type tokenResponse struct {
	ResultCode int    `json:"ResultCode"`
	Token      string `json:"Token"`
}

type sendOrderRequest struct {
	Password       string  `json:"Password"`
	Symbol         string  `json:"Symbol"`
	Exchange       int     `json:"Exchange"`
	SecurityType   int     `json:"SecurityType"`
	Side           string  `json:"Side"`
	CashMargin     int     `json:"CashMargin"`
	DelivType      int     `json:"DelivType"`
	FundType       string  `json:"FundType"`
	AccountType    int     `json:"AccountType"`
	Qty            int     `json:"Qty"`
	FrontOrderType int     `json:"FrontOrderType"`
	Price          float64 `json:"Price"`
	ExpireDay      int     `json:"ExpireDay"`
}

type sendOrderResponse struct {
	Result  int    `json:"Result"`
	OrderID string `json:"OrderId"`
}

type cancelOrderRequest struct {
	OrderID  string `json:"OrderID"`
	Password string `json:"Password"`
}

type cancelOrderResponse struct {
	Result  int    `json:"Result"`
	OrderID string `json:"OrderId"`
}

type boardResponse struct {
	Symbol       string  `json:"Symbol"`
	CurrentPrice float64 `json:"CurrentPrice"`
}

// boardPush is the PUSH websocket payload. Only the fields the quote
// cache needs are decoded.
type boardPush struct {
	Symbol       string  `json:"Symbol"`
	CurrentPrice float64 `json:"CurrentPrice"`
}

type orderStatus struct {
	ID       string        `json:"ID"`
	State    int           `json:"State"`
	OrderQty float64       `json:"OrderQty"`
	CumQty   float64       `json:"CumQty"`
	Price    float64       `json:"Price"`
	Details  []orderDetail `json:"Details"`
}

type orderDetail struct {
	RecType int     `json:"RecType"`
	Qty     float64 `json:"Qty"`
	Price   float64 `json:"Price"`
}

const (
	recTypeExecution = 8
	recTypeCancelled = 6
)

func wireSide(s types.OrderSide) string {
	if s == types.SideSell {
		return sideSell
	}
	return sideBuy
}

// runFeed keeps the PUSH websocket open and folds board messages into
// the quote cache. Reconnects with backoff on any read error.
func (c *Client) runFeed(ctx context.Context) {
	defer c.wg.Done()
	if c.p.WSURL == "" {
		return
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.p.WSURL, nil)
		if err != nil {
			logger.Warn(ctx, "PUSH feed dial failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		logger.Info(ctx, "PUSH feed connected", "url", c.p.WSURL)

		// Close the socket when the context ends so ReadMessage unblocks.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		c.readFeed(ctx, conn)
		close(done)
		conn.Close()
	}
}

func (c *Client) readFeed(ctx context.Context, conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn(ctx, "PUSH feed read failed", "error", err)
			}
			return
		}
		var b boardPush
		if err := json.Unmarshal(msg, &b); err != nil || b.Symbol == "" {
			continue
		}
		if b.CurrentPrice > 0 {
			c.mu.Lock()
			c.quotes[b.Symbol] = b.CurrentPrice
			c.mu.Unlock()
		}
	}
}

// pollOrders diffs /orders against the watch list and emits incremental
// fill and cancel events.
func (c *Client) pollOrders(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.p.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

func (c *Client) pollOnce(ctx context.Context) {
	c.mu.Lock()
	if len(c.watched) == 0 {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	resp, err := c.api.GET(ctx, "/orders?product=0", c.authHeader())
	if err != nil {
		logger.Warn(ctx, "Order status poll failed", "error", err)
		return
	}
	var orders []orderStatus
	if err := resp.ParseJSON(&orders); err != nil {
		logger.Warn(ctx, "Order status decode failed", "error", err)
		return
	}

	for _, o := range orders {
		c.applyStatus(o)
	}
}

func (c *Client) applyStatus(o orderStatus) {
	c.mu.Lock()
	prog, ok := c.watched[o.ID]
	if !ok || prog.done {
		c.mu.Unlock()
		return
	}

	cum := int(o.CumQty)
	delta := cum - prog.filledQty
	prog.filledQty = cum

	cancelled := false
	if o.State == orderStateDone {
		prog.done = true
		for _, d := range o.Details {
			if d.RecType == recTypeCancelled {
				cancelled = true
			}
		}
		delete(c.watched, o.ID)
	}
	c.mu.Unlock()

	if delta > 0 {
		c.emit(types.BrokerEvent{
			Kind:      types.EventFill,
			OrderID:   o.ID,
			FilledQty: delta,
			FillPrice: executionPrice(o),
			Time:      time.Now(),
		})
	}
	if cancelled {
		c.emit(types.BrokerEvent{
			Kind:    types.EventCancelAck,
			OrderID: o.ID,
			Time:    time.Now(),
		})
	}
}

// executionPrice averages the execution detail records, falling back to
// the order price when no details are present.
func executionPrice(o orderStatus) float64 {
	var qty, value float64
	for _, d := range o.Details {
		if d.RecType == recTypeExecution && d.Qty > 0 {
			qty += d.Qty
			value += d.Qty * d.Price
		}
	}
	if qty > 0 {
		return value / qty
	}
	return o.Price
}
