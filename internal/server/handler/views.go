package handler

import (
	"time"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// orderView is the JSON representation of an order. Price and amount are
// decimal strings, matching the venue wire format.
type orderView struct {
	ID         string `json:"id"`
	MarketID   string `json:"market_id"`
	QuestionID string `json:"question_id"`
	Maker      string `json:"maker"`
	Side       string `json:"side"`
	Outcome    int    `json:"outcome"`
	Price      string `json:"price"`
	Amount     string `json:"amount"`
	Expiration int64  `json:"expiration"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

func toOrderView(o domain.Order) orderView {
	return orderView{
		ID:         o.ID,
		MarketID:   o.MarketID,
		QuestionID: o.QuestionID,
		Maker:      o.Maker,
		Side:       string(o.Side),
		Outcome:    int(o.Outcome),
		Price:      domain.FormatTicks(o.PriceTicks),
		Amount:     domain.FormatTicks(o.AmountTicks),
		Expiration: o.Expiration,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toOrderViews(orders []domain.Order) []orderView {
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderView(o))
	}
	return out
}

// settlementView is the JSON representation of a settlement attempt.
type settlementView struct {
	ID           string `json:"id"`
	TakerOrderID string `json:"taker_order_id"`
	MakerOrderID string `json:"maker_order_id"`
	FillAmount   string `json:"fill_amount"`
	State        string `json:"state"`
	TxHash       string `json:"tx_hash,omitempty"`
	RevertReason string `json:"revert_reason,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

func toSettlementView(s domain.Settlement) settlementView {
	return settlementView{
		ID:           s.ID,
		TakerOrderID: s.TakerOrderID,
		MakerOrderID: s.MakerOrderID,
		FillAmount:   domain.FormatTicks(s.FillAmountTicks),
		State:        string(s.State),
		TxHash:       s.TxHash,
		RevertReason: s.RevertReason,
		UpdatedAt:    s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toSettlementViews(settlements []domain.Settlement) []settlementView {
	out := make([]settlementView, 0, len(settlements))
	for _, s := range settlements {
		out = append(out, toSettlementView(s))
	}
	return out
}
