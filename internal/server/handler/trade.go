package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/outcomelab/tradeflow/internal/domain"
	"github.com/outcomelab/tradeflow/internal/service"
)

// TradeAPI is the slice of the trade service the HTTP layer depends on.
type TradeAPI interface {
	ExecuteTrade(ctx context.Context, req service.TradeRequest) (service.TradeResult, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
	ListSettlements(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error)
	RetrySettlement(ctx context.Context, settlementID string) (domain.Settlement, error)
}

// TradeHandler serves the order lifecycle endpoints.
type TradeHandler struct {
	trades TradeAPI
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeAPI, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger.With(slog.String("component", "trade_handler")),
	}
}

// tradeRequest is the JSON body for placing a trade.
type tradeRequest struct {
	MarketID    string `json:"market_id"`
	QuestionID  string `json:"question_id"`
	ConditionID string `json:"condition_id"`
	Side        string `json:"side"`
	Outcome     int    `json:"outcome"`
	Price       string `json:"price"`
	Amount      string `json:"amount"`
	Expiration  int64  `json:"expiration"`
}

// tradeResponse reports how far the trade got.
type tradeResponse struct {
	Order      orderView       `json:"order"`
	Outcome    string          `json:"outcome,omitempty"`
	Settlement *settlementView `json:"settlement,omitempty"`
}

// PlaceTrade builds, signs, submits, and (when matched) settles an order.
// POST /api/trades
func (h *TradeHandler) PlaceTrade(w http.ResponseWriter, r *http.Request) {
	var body tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.trades.ExecuteTrade(r.Context(), service.TradeRequest{
		MarketID:    body.MarketID,
		QuestionID:  body.QuestionID,
		ConditionID: body.ConditionID,
		Side:        domain.OrderSide(body.Side),
		Outcome:     domain.Outcome(body.Outcome),
		Price:       body.Price,
		Amount:      body.Amount,
		Expiration:  body.Expiration,
	})

	resp := tradeResponse{
		Order:   toOrderView(result.Order),
		Outcome: string(result.Submit.Outcome),
	}
	if result.Settlement != nil {
		v := toSettlementView(*result.Settlement)
		resp.Settlement = &v
	}

	if err != nil {
		// A fill waiting on the counterparty's signature is progress, not a
		// failure; report it as accepted-for-later.
		if errors.Is(err, domain.ErrAwaitingCounterparty) {
			writeJSON(w, http.StatusAccepted, resp)
			return
		}
		h.logger.WarnContext(r.Context(), "trade failed",
			slog.String("market", body.MarketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GetOrder returns one order.
// GET /api/orders/{id}
func (h *TradeHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.trades.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(order))
}

// ListOrders returns the active account's orders.
// GET /api/orders
func (h *TradeHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.trades.ListOrders(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": toOrderViews(orders)})
}

// ListSettlements returns settlements still in flight.
// GET /api/settlements
func (h *TradeHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.trades.ListSettlements(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": toSettlementViews(settlements)})
}

// RetrySettlement re-drives a non-terminal settlement.
// POST /api/settlements/{id}/retry
func (h *TradeHandler) RetrySettlement(w http.ResponseWriter, r *http.Request) {
	settlement, err := h.trades.RetrySettlement(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrAwaitingCounterparty) {
			writeJSON(w, http.StatusAccepted, toSettlementView(settlement))
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementView(settlement))
}
