package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// MintChannel is the signal-bus channel carrying mint lifecycle events.
const MintChannel = "mints"

// PositionMinter converts collateral into full outcome-token sets.
type PositionMinter interface {
	Mint(ctx context.Context, binding domain.MarketBinding, amountTicks int64) (domain.TxReceipt, error)
}

// MintService wraps minting with audit logging and bus events.
type MintService struct {
	minter PositionMinter
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewMintService creates a MintService with all required dependencies.
func NewMintService(minter PositionMinter, bus domain.SignalBus, audit domain.AuditStore, logger *slog.Logger) *MintService {
	return &MintService{
		minter: minter,
		bus:    bus,
		audit:  audit,
		logger: logger.With(slog.String("component", "mint_service")),
	}
}

// Mint converts amount (a decimal string) of collateral into one full set of
// both outcome tokens for the bound condition.
func (s *MintService) Mint(ctx context.Context, conditionID, amount string) (domain.TxReceipt, error) {
	amountTicks, err := domain.ParseTicks(amount)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("mint_service: %w: amount %q: %v",
			domain.ErrInvalidOrderParams, amount, err)
	}
	if conditionID == "" {
		return domain.TxReceipt{}, fmt.Errorf("mint_service: %w", domain.ErrMarketUnbound)
	}

	receipt, err := s.minter.Mint(ctx, domain.Bound(conditionID), amountTicks)
	if err != nil {
		s.auditLog(ctx, "mint_failed", map[string]any{
			"condition_id": conditionID,
			"amount":       amount,
			"error":        err.Error(),
		})
		return domain.TxReceipt{}, fmt.Errorf("mint_service: %w", err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":        "position_minted",
		"condition_id": conditionID,
		"amount":       amount,
		"tx_hash":      receipt.TxHash,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
	if pubErr := s.bus.Publish(ctx, MintChannel, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish event failed", slog.String("error", pubErr.Error()))
	}
	s.auditLog(ctx, "position_minted", map[string]any{
		"condition_id": conditionID,
		"amount":       amount,
		"tx_hash":      receipt.TxHash,
	})
	return receipt, nil
}

func (s *MintService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
