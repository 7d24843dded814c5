// Package guard performs pre-trade balance checks against live chain state.
// Balances are always re-queried at check time; nothing here is cached, so a
// passing check reflects the chain as of the call and no earlier.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/outcomelab/tradeflow/internal/chain"
	"github.com/outcomelab/tradeflow/internal/domain"
)

// BalanceReader is the subset of chain reads the guard needs.
type BalanceReader interface {
	CollateralBalance(ctx context.Context, account string) (*big.Int, error)
	PositionBalance(ctx context.Context, account string, tokenID *big.Int) (*big.Int, error)
	CollateralDecimals() int
}

// Guard checks whether an account can afford a prospective order before any
// signing or venue submission happens.
type Guard struct {
	reader BalanceReader
	logger *slog.Logger
}

func New(reader BalanceReader, logger *slog.Logger) *Guard {
	return &Guard{
		reader: reader,
		logger: logger.With(slog.String("component", "guard")),
	}
}

// CheckBuyAffordability verifies the maker holds enough collateral to cover
// price x amount for a buy. A balance exactly equal to the requirement is
// sufficient.
func (g *Guard) CheckBuyAffordability(ctx context.Context, maker string, priceTicks, amountTicks int64) (domain.AffordabilityCheck, error) {
	required := domain.MulTicks(priceTicks, amountTicks)

	raw, err := g.reader.CollateralBalance(ctx, maker)
	if err != nil {
		return domain.AffordabilityCheck{}, fmt.Errorf("guard: buy affordability: %w", err)
	}
	balance := domain.BaseUnitsToTicks(raw, g.reader.CollateralDecimals())

	check := domain.AffordabilityCheck{
		Sufficient:    balance >= required,
		RequiredTicks: required,
		BalanceTicks:  balance,
	}
	g.logger.DebugContext(ctx, "buy affordability checked",
		slog.String("maker", maker),
		slog.String("required", domain.FormatTicks(required)),
		slog.String("balance", domain.FormatTicks(balance)),
		slog.Bool("sufficient", check.Sufficient),
	)
	return check, nil
}

// CheckSellCoverage verifies the maker holds at least amount of the outcome
// token being sold. The market must already be bound to a condition, since
// the token id derives from it.
func (g *Guard) CheckSellCoverage(ctx context.Context, maker string, binding domain.MarketBinding, outcome domain.Outcome, amountTicks int64) (domain.CoverageCheck, error) {
	conditionID, ok := binding.ConditionID()
	if !ok {
		return domain.CoverageCheck{}, fmt.Errorf("guard: sell coverage: %w", domain.ErrMarketUnbound)
	}
	tokenID, err := chain.TokenID(conditionID, outcome)
	if err != nil {
		return domain.CoverageCheck{}, fmt.Errorf("guard: sell coverage: %w", err)
	}

	raw, err := g.reader.PositionBalance(ctx, maker, tokenID)
	if err != nil {
		return domain.CoverageCheck{}, fmt.Errorf("guard: sell coverage: %w", err)
	}
	held := domain.BaseUnitsToTicks(raw, g.reader.CollateralDecimals())

	check := domain.CoverageCheck{
		Sufficient: held >= amountTicks,
		HeldTicks:  held,
	}
	g.logger.DebugContext(ctx, "sell coverage checked",
		slog.String("maker", maker),
		slog.Int("outcome", int(outcome)),
		slog.String("required", domain.FormatTicks(amountTicks)),
		slog.String("held", domain.FormatTicks(held)),
		slog.Bool("sufficient", check.Sufficient),
	)
	return check, nil
}

// CheckOrder routes to the side-appropriate check and folds the result into a
// single insufficient-balance error when the account cannot cover the order.
func (g *Guard) CheckOrder(ctx context.Context, order domain.Order, binding domain.MarketBinding) error {
	switch order.Side {
	case domain.OrderSideBuy:
		check, err := g.CheckBuyAffordability(ctx, order.Maker, order.PriceTicks, order.AmountTicks)
		if err != nil {
			return err
		}
		if !check.Sufficient {
			return fmt.Errorf("guard: %w: need %s, have %s",
				domain.ErrInsufficientBalance,
				domain.FormatTicks(check.RequiredTicks),
				domain.FormatTicks(check.BalanceTicks))
		}
		return nil
	case domain.OrderSideSell:
		check, err := g.CheckSellCoverage(ctx, order.Maker, binding, order.Outcome, order.AmountTicks)
		if err != nil {
			return err
		}
		if !check.Sufficient {
			return fmt.Errorf("guard: %w: need %s, hold %s",
				domain.ErrInsufficientPosition,
				domain.FormatTicks(order.AmountTicks),
				domain.FormatTicks(check.HeldTicks))
		}
		return nil
	default:
		return fmt.Errorf("guard: %w: unknown side %q", domain.ErrInvalidOrderParams, order.Side)
	}
}
