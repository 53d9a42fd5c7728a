package kabus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"stock-autotrader/internal/api"
	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

// Params configures the live kabu station connection.
type Params struct {
	BaseURL     string
	WSURL       string
	APIPassword string
	// OrderPassword is required by /sendorder and /cancelorder.
	OrderPassword string
	Exchange      int
	PollInterval  time.Duration
}

// Client talks to a local kabu station instance. Order submission and
// cancellation go over REST; quotes stream in over the PUSH websocket;
// execution status is polled because the PUSH feed carries board data
// only.
type Client struct {
	p      Params
	api    *api.Client
	token  string
	events chan types.BrokerEvent

	mu      sync.Mutex
	quotes  map[string]float64
	watched map[string]*orderProgress
	started bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type orderProgress struct {
	token     string
	filledQty int
	done      bool
}

var _ interfaces.Broker = (*Client)(nil)

func New(p Params) *Client {
	if p.PollInterval <= 0 {
		p.PollInterval = 2 * time.Second
	}
	if p.Exchange == 0 {
		p.Exchange = exchangeTSE
	}
	return &Client{
		p: p,
		api: api.NewClient(
			api.WithBaseURL(strings.TrimRight(p.BaseURL, "/")),
			api.WithTimeout(10*time.Second),
			api.WithLogging(true),
		),
		events:  make(chan types.BrokerEvent, 64),
		quotes:  make(map[string]float64),
		watched: make(map[string]*orderProgress),
	}
}

func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	if err := c.authenticate(ctx); err != nil {
		return fmt.Errorf("kabus authentication failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(2)
	go c.runFeed(runCtx)
	go c.pollOrders(runCtx)

	logger.Info(ctx, "Kabus broker started", "base_url", c.p.BaseURL)
	return nil
}

func (c *Client) Stop(ctx context.Context) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	close(c.events)
	logger.Info(ctx, "Kabus broker stopped")
}

func (c *Client) Events() <-chan types.BrokerEvent { return c.events }

func (c *Client) authenticate(ctx context.Context) error {
	resp, err := c.api.POST(ctx, "/token", tokenRequest{APIPassword: c.p.APIPassword})
	if err != nil {
		return err
	}
	var tr tokenResponse
	if err := resp.ParseJSON(&tr); err != nil {
		return err
	}
	if tr.Token == "" {
		return fmt.Errorf("empty API token (result code %d)", tr.ResultCode)
	}
	c.token = tr.Token
	return nil
}

func (c *Client) authHeader() map[string]string {
	return map[string]string{"X-API-KEY": c.token}
}

// SubmitOrder sends the order and synthesizes the acknowledgement from
// the synchronous REST response. A REST-level rejection surfaces as a
// REJECT event so the caller sees one resolution path for both modes.
func (c *Client) SubmitOrder(ctx context.Context, req types.OrderRequest) error {
	orderType := frontOrderTypeMarket
	if req.Price > 0 {
		orderType = frontOrderTypeLimit
	}
	body := sendOrderRequest{
		Password:       c.p.OrderPassword,
		Symbol:         req.Symbol,
		Exchange:       c.p.Exchange,
		SecurityType:   securityTypeStock,
		Side:           wireSide(req.Side),
		CashMargin:     cashMarginCash,
		DelivType:      delivTypeCash,
		FundType:       fundTypeCash,
		AccountType:    accountTypeSpecific,
		Qty:            req.Qty,
		FrontOrderType: orderType,
		Price:          req.Price,
		ExpireDay:      0, // today
	}
	resp, err := c.api.POST(ctx, "/sendorder", body, c.authHeader())
	if err != nil {
		return err
	}
	var sr sendOrderResponse
	if err := resp.ParseJSON(&sr); err != nil {
		return err
	}
	if sr.Result != 0 || sr.OrderID == "" {
		c.emit(types.BrokerEvent{
			Kind:    types.EventReject,
			Token:   req.Token,
			ErrCode: fmt.Sprintf("KABUS_%d", sr.Result),
			Message: "order rejected at submission",
			Time:    time.Now(),
		})
		return nil
	}

	c.mu.Lock()
	c.watched[sr.OrderID] = &orderProgress{token: req.Token}
	c.mu.Unlock()

	c.emit(types.BrokerEvent{
		Kind:    types.EventAck,
		Token:   req.Token,
		OrderID: sr.OrderID,
		Time:    time.Now(),
	})
	return nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	body := cancelOrderRequest{OrderID: orderID, Password: c.p.OrderPassword}
	resp, err := c.api.PUT(ctx, "/cancelorder", body, c.authHeader())
	if err != nil {
		return err
	}
	var cr cancelOrderResponse
	if err := resp.ParseJSON(&cr); err != nil {
		return err
	}
	if cr.Result != 0 {
		return fmt.Errorf("cancel rejected (result code %d)", cr.Result)
	}
	// The acknowledgement is emitted once the poller observes the
	// cancelled state.
	return nil
}

// Quote prefers the streaming cache and falls back to a board snapshot.
func (c *Client) Quote(ctx context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	p, ok := c.quotes[symbol]
	c.mu.Unlock()
	if ok && p > 0 {
		return p, nil
	}

	resp, err := c.api.GET(ctx, fmt.Sprintf("/board/%s@%d", symbol, c.p.Exchange), c.authHeader())
	if err != nil {
		return 0, err
	}
	var b boardResponse
	if err := resp.ParseJSON(&b); err != nil {
		return 0, err
	}
	if b.CurrentPrice <= 0 {
		return 0, fmt.Errorf("no current price for %s", symbol)
	}
	c.mu.Lock()
	c.quotes[symbol] = b.CurrentPrice
	c.mu.Unlock()
	return b.CurrentPrice, nil
}

func (c *Client) emit(ev types.BrokerEvent) {
	defer func() {
		_ = recover()
	}()
	select {
	case c.events <- ev:
	default:
		logger.Warn(context.Background(), "Kabus event channel full, dropping event",
			"kind", string(ev.Kind), "order_id", ev.OrderID)
	}
}
