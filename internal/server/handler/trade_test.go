package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/outcomelab/tradeflow/internal/domain"
	"github.com/outcomelab/tradeflow/internal/service"
)

type fakeTradeAPI struct {
	result      service.TradeResult
	err         error
	orders      map[string]domain.Order
	settlements []domain.Settlement
	retried     string
	lastReq     service.TradeRequest
}

func (f *fakeTradeAPI) ExecuteTrade(_ context.Context, req service.TradeRequest) (service.TradeResult, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeTradeAPI) GetOrder(_ context.Context, id string) (domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeTradeAPI) ListOrders(_ context.Context, _ domain.ListOpts) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeTradeAPI) ListSettlements(_ context.Context, _ domain.ListOpts) ([]domain.Settlement, error) {
	return f.settlements, nil
}

func (f *fakeTradeAPI) RetrySettlement(_ context.Context, id string) (domain.Settlement, error) {
	f.retried = id
	if f.err != nil {
		return domain.Settlement{ID: id}, f.err
	}
	return domain.Settlement{ID: id, State: domain.SettlementConfirmed}, nil
}

func testOrder() domain.Order {
	return domain.Order{
		ID:          "ord-1",
		MarketID:    "market-1",
		QuestionID:  "question-1",
		Maker:       "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		Side:        domain.OrderSideBuy,
		Outcome:     domain.OutcomeYes,
		PriceTicks:  600_000,
		AmountTicks: 100_000_000,
		Status:      domain.OrderStatusResting,
		CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTradeHandler(api *fakeTradeAPI) *TradeHandler {
	return NewTradeHandler(api, slog.New(slog.DiscardHandler))
}

func TestPlaceTradeAccepted(t *testing.T) {
	api := &fakeTradeAPI{result: service.TradeResult{
		Order:  testOrder(),
		Submit: domain.SubmitResult{Outcome: domain.SubmitAccepted, OrderID: "ord-1"},
	}}
	h := newTradeHandler(api)

	body := `{"market_id":"market-1","question_id":"question-1","side":"buy","outcome":0,"price":"0.6","amount":"100"}`
	req := httptest.NewRequest(http.MethodPost, "/api/trades", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PlaceTrade(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Order   orderView `json:"order"`
		Outcome string    `json:"outcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome != "accepted" {
		t.Errorf("outcome = %q, want accepted", resp.Outcome)
	}
	if resp.Order.Price != "0.6" || resp.Order.Amount != "100" {
		t.Errorf("order view price/amount = %q/%q", resp.Order.Price, resp.Order.Amount)
	}
	if api.lastReq.Side != domain.OrderSideBuy {
		t.Errorf("request side = %q", api.lastReq.Side)
	}
}

func TestPlaceTradeAwaitingCounterpartyIs202(t *testing.T) {
	settlement := domain.Settlement{ID: "set-1", State: domain.SettlementAwaitingCounterparty}
	api := &fakeTradeAPI{
		result: service.TradeResult{
			Order:      testOrder(),
			Submit:     domain.SubmitResult{Outcome: domain.SubmitMatched},
			Settlement: &settlement,
		},
		err: fmt.Errorf("trade_service: %w", domain.ErrAwaitingCounterparty),
	}
	h := newTradeHandler(api)

	req := httptest.NewRequest(http.MethodPost, "/api/trades", strings.NewReader(`{"side":"buy","price":"0.5","amount":"10"}`))
	rec := httptest.NewRecorder()
	h.PlaceTrade(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "awaiting_counterparty") {
		t.Errorf("body should carry the settlement state: %s", rec.Body.String())
	}
}

func TestPlaceTradeErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid params", fmt.Errorf("builder: %w", domain.ErrInvalidOrderParams), http.StatusBadRequest},
		{"insufficient balance", fmt.Errorf("guard: %w", domain.ErrInsufficientBalance), http.StatusUnprocessableEntity},
		{"rate limited", fmt.Errorf("trade_service: %w", domain.ErrRateLimited), http.StatusTooManyRequests},
		{"venue down", fmt.Errorf("venue: %w", domain.ErrVenueUnavailable), http.StatusBadGateway},
		{"user rejected", fmt.Errorf("wallet: %w", domain.ErrUserRejected), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeTradeAPI{err: tc.err}
			h := newTradeHandler(api)

			req := httptest.NewRequest(http.MethodPost, "/api/trades", strings.NewReader(`{"side":"buy","price":"0.5","amount":"10"}`))
			rec := httptest.NewRecorder()
			h.PlaceTrade(rec, req)

			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestPlaceTradeRejectsBadJSON(t *testing.T) {
	h := newTradeHandler(&fakeTradeAPI{})
	req := httptest.NewRequest(http.MethodPost, "/api/trades", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	h.PlaceTrade(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetOrder(t *testing.T) {
	api := &fakeTradeAPI{orders: map[string]domain.Order{"ord-1": testOrder()}}
	h := newTradeHandler(api)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/ord-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing order status = %d, want 404", rec.Code)
	}
}

func TestRetrySettlement(t *testing.T) {
	api := &fakeTradeAPI{}
	h := newTradeHandler(api)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/settlements/{id}/retry", h.RetrySettlement)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/settlements/set-9/retry", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if api.retried != "set-9" {
		t.Errorf("retried id = %q", api.retried)
	}
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/orders?limit=1000&offset=20", nil)
	opts := parseListOpts(req)
	if opts.Limit != 500 {
		t.Errorf("limit = %d, want clamped 500", opts.Limit)
	}
	if opts.Offset != 20 {
		t.Errorf("offset = %d, want 20", opts.Offset)
	}

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if opts.Limit != 50 || opts.Offset != 0 {
		t.Errorf("defaults = %+v", opts)
	}
}
