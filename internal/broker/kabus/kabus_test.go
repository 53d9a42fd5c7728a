package kabus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stock-autotrader/internal/types"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestKabusStartAuthenticatesAndSignsRequests(t *testing.T) {
	tokenReqs := make(chan string, 1)
	apiKeys := make(chan string, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		tokenReqs <- req.APIPassword
		writeJSON(w, tokenResponse{Token: "tok-123"})
	})
	mux.HandleFunc("/sendorder", func(w http.ResponseWriter, r *http.Request) {
		apiKeys <- r.Header.Get("X-API-KEY")
		writeJSON(w, sendOrderResponse{Result: 0, OrderID: "K-1"})
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []orderStatus{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := New(Params{
		BaseURL:       srv.URL,
		APIPassword:   "api-pw",
		OrderPassword: "order-pw",
		PollInterval:  10 * time.Millisecond,
	})
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop(ctx)

	if got := <-tokenReqs; got != "api-pw" {
		t.Errorf("Expected API password sent to /token, got %q", got)
	}

	if err := c.SubmitOrder(ctx, types.OrderRequest{
		Side: types.SideBuy, Symbol: "7203", Qty: 100, Price: 10000, Token: "t-1",
	}); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if got := <-apiKeys; got != "tok-123" {
		t.Errorf("Expected the session token on /sendorder, got %q", got)
	}

	select {
	case ev := <-c.Events():
		if ev.Kind != types.EventAck || ev.Token != "t-1" || ev.OrderID != "K-1" {
			t.Errorf("Expected ack for t-1/K-1, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected an ack event after submission")
	}
}

func TestKabusStartFailsWithoutToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, tokenResponse{ResultCode: 4001007})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Params{BaseURL: srv.URL, APIPassword: "wrong"})
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Expected Start to fail when no token is issued")
	}
}

func TestKabusPollerEmitsFills(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, tokenResponse{Token: "tok-123"})
	})
	mux.HandleFunc("/sendorder", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sendOrderResponse{Result: 0, OrderID: "K-2"})
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []orderStatus{{
			ID:       "K-2",
			State:    orderStateDone,
			OrderQty: 100,
			CumQty:   100,
			Details:  []orderDetail{{RecType: recTypeExecution, Qty: 100, Price: 10050}},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := New(Params{
		BaseURL:       srv.URL,
		APIPassword:   "api-pw",
		OrderPassword: "order-pw",
		PollInterval:  10 * time.Millisecond,
	})
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop(ctx)

	if err := c.SubmitOrder(ctx, types.OrderRequest{
		Side: types.SideBuy, Symbol: "7203", Qty: 100, Price: 10000, Token: "t-2",
	}); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	var gotFill bool
	deadline := time.After(2 * time.Second)
	for !gotFill {
		select {
		case ev := <-c.Events():
			if ev.Kind != types.EventFill {
				continue
			}
			if ev.OrderID != "K-2" || ev.FilledQty != 100 || ev.FillPrice != 10050 {
				t.Fatalf("Unexpected fill event: %+v", ev)
			}
			gotFill = true
		case <-deadline:
			t.Fatal("Expected the poller to surface the execution as a fill")
		}
	}
}
