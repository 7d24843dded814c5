// Package service sequences the order lifecycle. TradeService is the only
// place that drives a trade end to end; every step below it (guard, builder,
// signer, venue, settlement) stays independently callable.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/outcomelab/tradeflow/internal/builder"
	"github.com/outcomelab/tradeflow/internal/domain"
)

// TradeChannel is the signal-bus channel carrying trade lifecycle events.
const TradeChannel = "trades"

// tradeRateLimit caps venue submissions per maker per window.
const (
	tradeRateLimit  = 30
	tradeRateWindow = time.Minute
)

// DualSigner produces both signature flavours over one economic intent.
type DualSigner interface {
	Session() domain.WalletSession
	SignVenueOrder(ctx context.Context, order domain.Order) (string, error)
	SignExchangeOrder(ctx context.Context, ctf domain.CTFOrder) (string, error)
}

// BalanceGuard gates signing on live chain balances.
type BalanceGuard interface {
	CheckOrder(ctx context.Context, order domain.Order, binding domain.MarketBinding) error
}

// VenueSubmitter posts signed orders to the matching venue.
type VenueSubmitter interface {
	Submit(ctx context.Context, order domain.Order) (domain.SubmitResult, error)
}

// Settler runs a matched fill through the settlement state machine.
type Settler interface {
	Settle(ctx context.Context, fill domain.MatchedFill) (domain.Settlement, error)
	Retry(ctx context.Context, settlementID string) (domain.Settlement, error)
}

// TradeRequest is one user-initiated trade. ConditionID is empty for markets
// with no on-chain binding; those orders rest off-chain only.
type TradeRequest struct {
	MarketID    string
	QuestionID  string
	ConditionID string
	Side        domain.OrderSide
	Outcome     domain.Outcome
	Price       string
	Amount      string
	Expiration  int64
}

// TradeResult reports how far a trade got.
type TradeResult struct {
	Order      domain.Order
	Submit     domain.SubmitResult
	Settlement *domain.Settlement
}

// TradeService orchestrates guard -> build -> sign -> submit -> settle.
type TradeService struct {
	builder *builder.Builder
	guard   BalanceGuard
	signer  DualSigner
	venue   VenueSubmitter
	settler Settler
	orders  domain.OrderStore
	settles domain.SettlementStore
	limiter domain.RateLimiter
	bus     domain.SignalBus
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	b *builder.Builder,
	guard BalanceGuard,
	signer DualSigner,
	venue VenueSubmitter,
	settler Settler,
	orders domain.OrderStore,
	settles domain.SettlementStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		builder: b,
		guard:   guard,
		signer:  signer,
		venue:   venue,
		settler: settler,
		orders:  orders,
		settles: settles,
		limiter: limiter,
		bus:     bus,
		audit:   audit,
		logger:  logger.With(slog.String("component", "trade_service")),
	}
}

// ExecuteTrade drives one trade attempt to its natural stopping point:
// resting in the book, settled on chain, halted awaiting the counterparty,
// or failed with a classified error. Affordability is checked once before
// building and re-checked immediately before signing, so the signature can
// never cover an order the account stopped being able to honor in between.
func (s *TradeService) ExecuteTrade(ctx context.Context, req TradeRequest) (TradeResult, error) {
	session := s.signer.Session()
	maker := session.Address

	allowed, err := s.limiter.Allow(ctx, "trade:"+maker, tradeRateLimit, tradeRateWindow)
	if err != nil {
		s.logger.WarnContext(ctx, "rate limiter unavailable, allowing request",
			slog.String("error", err.Error()))
	} else if !allowed {
		return TradeResult{}, fmt.Errorf("trade_service: %w: maker %s", domain.ErrRateLimited, maker)
	}

	binding := domain.Unbound()
	if req.ConditionID != "" {
		binding = domain.Bound(req.ConditionID)
	}

	order, err := s.builder.Build(builder.Params{
		MarketID:   req.MarketID,
		QuestionID: req.QuestionID,
		Maker:      maker,
		Side:       req.Side,
		Outcome:    req.Outcome,
		Price:      req.Price,
		Amount:     req.Amount,
		Expiration: req.Expiration,
	})
	if err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: build: %w", err)
	}

	if err := s.guard.CheckOrder(ctx, order, binding); err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: affordability check: %w", err)
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return TradeResult{}, fmt.Errorf("trade_service: persist order: %w", err)
	}
	s.publishEvent(ctx, "order_created", order.ID, map[string]any{
		"market": order.MarketID,
		"side":   string(order.Side),
		"price":  domain.FormatTicks(order.PriceTicks),
		"amount": domain.FormatTicks(order.AmountTicks),
	})

	// Balances may have moved since the first check (other trades, external
	// transfers). Re-check on the signing boundary.
	if err := s.guard.CheckOrder(ctx, order, binding); err != nil {
		s.markFailed(ctx, order.ID)
		return TradeResult{Order: order}, fmt.Errorf("trade_service: pre-sign check: %w", err)
	}

	signature, err := s.signer.SignVenueOrder(ctx, order)
	if err != nil {
		// A user rejection leaves no partial state: the order was never
		// submitted and is not retried automatically.
		s.markCancelled(ctx, order.ID)
		return TradeResult{Order: order}, fmt.Errorf("trade_service: sign: %w", err)
	}
	order.Signature = signature
	order.Status = domain.OrderStatusSigned
	if err := s.orders.UpdateSignature(ctx, order.ID, signature); err != nil {
		return TradeResult{Order: order}, fmt.Errorf("trade_service: persist signature: %w", err)
	}

	result, err := s.venue.Submit(ctx, order)
	if err != nil {
		s.markFailed(ctx, order.ID)
		return TradeResult{Order: order}, fmt.Errorf("trade_service: submit: %w", err)
	}

	out := TradeResult{Order: order, Submit: result}
	switch result.Outcome {
	case domain.SubmitAccepted:
		order.Status = domain.OrderStatusResting
		s.setStatus(ctx, order.ID, domain.OrderStatusResting)
		s.publishEvent(ctx, "order_resting", order.ID, nil)
		s.auditLog(ctx, "order_resting", map[string]any{"order_id": order.ID})
		out.Order = order
		return out, nil

	case domain.SubmitMatched:
		order.Status = domain.OrderStatusMatched
		s.setStatus(ctx, order.ID, domain.OrderStatusMatched)
		s.publishEvent(ctx, "order_matched", order.ID, map[string]any{
			"maker_order_id": result.Fill.MakerOrder.ID,
			"fill_amount":    domain.FormatTicks(result.Fill.FillAmountTicks),
		})

		settlement, settleErr := s.settler.Settle(ctx, *result.Fill)
		out.Order = order
		out.Settlement = &settlement
		if settleErr != nil {
			if errors.Is(settleErr, domain.ErrAwaitingCounterparty) {
				// A legitimate wait state, not a failure: the fill stays
				// re-attemptable once the maker signs.
				s.publishEvent(ctx, "settlement_waiting", order.ID, map[string]any{
					"settlement_id": settlement.ID,
				})
				return out, fmt.Errorf("trade_service: %w", settleErr)
			}
			s.markFailed(ctx, order.ID)
			s.auditLog(ctx, "settlement_failed", map[string]any{
				"order_id": order.ID,
				"error":    settleErr.Error(),
			})
			return out, fmt.Errorf("trade_service: settle: %w", settleErr)
		}

		order.Status = domain.OrderStatusSettled
		s.setStatus(ctx, order.ID, domain.OrderStatusSettled)
		s.publishEvent(ctx, "settlement_confirmed", order.ID, map[string]any{
			"settlement_id": settlement.ID,
			"tx_hash":       settlement.TxHash,
		})
		s.auditLog(ctx, "settlement_confirmed", map[string]any{
			"order_id": order.ID,
			"tx_hash":  settlement.TxHash,
		})
		out.Order = order
		return out, nil

	default:
		return out, fmt.Errorf("trade_service: unknown submit outcome %q", result.Outcome)
	}
}

// RetrySettlement re-runs a persisted non-terminal settlement, typically
// after the counterparty's signature arrived.
func (s *TradeService) RetrySettlement(ctx context.Context, settlementID string) (domain.Settlement, error) {
	settlement, err := s.settler.Retry(ctx, settlementID)
	if err != nil {
		return settlement, fmt.Errorf("trade_service: retry settlement: %w", err)
	}
	if settlement.State == domain.SettlementConfirmed {
		s.setStatus(ctx, settlement.TakerOrderID, domain.OrderStatusSettled)
		s.publishEvent(ctx, "settlement_confirmed", settlement.TakerOrderID, map[string]any{
			"settlement_id": settlement.ID,
			"tx_hash":       settlement.TxHash,
		})
	}
	return settlement, nil
}

// GetOrder returns one persisted order.
func (s *TradeService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("trade_service: get order %q: %w", id, err)
	}
	return order, nil
}

// ListOrders returns the active account's orders.
func (s *TradeService) ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.orders.ListByMaker(ctx, s.signer.Session().Address, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list orders: %w", err)
	}
	return orders, nil
}

// ListSettlements returns settlements still in flight: everything the
// executor has not driven to a terminal state yet.
func (s *TradeService) ListSettlements(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	settlements, err := s.settles.ListUnsettled(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list settlements: %w", err)
	}
	return settlements, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (s *TradeService) setStatus(ctx context.Context, orderID string, status domain.OrderStatus) {
	if err := s.orders.UpdateStatus(ctx, orderID, status); err != nil {
		s.logger.WarnContext(ctx, "status update failed",
			slog.String("order_id", orderID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) markFailed(ctx context.Context, orderID string) {
	s.setStatus(ctx, orderID, domain.OrderStatusFailed)
}

func (s *TradeService) markCancelled(ctx context.Context, orderID string) {
	s.setStatus(ctx, orderID, domain.OrderStatusCancelled)
}

func (s *TradeService) publishEvent(ctx context.Context, event, orderID string, extra map[string]any) {
	payload := map[string]any{
		"event":     event,
		"order_id":  orderID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, TradeChannel, raw); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
