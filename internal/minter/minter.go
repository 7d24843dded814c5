// Package minter turns collateral into complete outcome-token sets by
// splitting against the conditional-tokens contract.
package minter

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// ChainOps is the subset of chain operations minting needs. Approvals and
// splits are blocking transactions; reads hit live state.
type ChainOps interface {
	CollateralBalance(ctx context.Context, account string) (*big.Int, error)
	CollateralAllowance(ctx context.Context, owner string) (*big.Int, error)
	ConditionResolvable(ctx context.Context, conditionID string) error
	ApproveCollateral(ctx context.Context, amount *big.Int) (domain.TxReceipt, error)
	SplitPosition(ctx context.Context, conditionID string, amount *big.Int) (domain.TxReceipt, error)
	CollateralDecimals() int
}

// Minter mints outcome tokens for the configured account. Splitting N units
// of collateral always yields N units of every outcome token at once; there
// is no way to mint a single side.
type Minter struct {
	ops     ChainOps
	account string
	logger  *slog.Logger
}

func New(ops ChainOps, account string, logger *slog.Logger) *Minter {
	return &Minter{
		ops:     ops,
		account: account,
		logger:  logger.With(slog.String("component", "minter")),
	}
}

// Mint locks amountTicks of collateral and splits it into a full set of
// outcome tokens for the market's condition. The allowance is topped up with
// an approve transaction first when it does not cover the amount; that
// approval must mine before the split is sent.
func (m *Minter) Mint(ctx context.Context, binding domain.MarketBinding, amountTicks int64) (domain.TxReceipt, error) {
	if amountTicks <= 0 {
		return domain.TxReceipt{}, fmt.Errorf("minter: %w: amount must be positive", domain.ErrInvalidOrderParams)
	}
	conditionID, ok := binding.ConditionID()
	if !ok {
		return domain.TxReceipt{}, fmt.Errorf("minter: %w", domain.ErrMarketUnbound)
	}
	if err := m.ops.ConditionResolvable(ctx, conditionID); err != nil {
		return domain.TxReceipt{}, fmt.Errorf("minter: %w", err)
	}

	amount := domain.TicksToBaseUnits(amountTicks, m.ops.CollateralDecimals())

	balance, err := m.ops.CollateralBalance(ctx, m.account)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("minter: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return domain.TxReceipt{}, fmt.Errorf("minter: %w: need %s base units, have %s",
			domain.ErrInsufficientCollateral, amount, balance)
	}

	if err := m.ensureAllowance(ctx, amount); err != nil {
		return domain.TxReceipt{}, err
	}

	receipt, err := m.ops.SplitPosition(ctx, conditionID, amount)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("minter: split: %w", err)
	}
	m.logger.InfoContext(ctx, "position minted",
		slog.String("condition_id", conditionID),
		slog.String("amount", domain.FormatTicks(amountTicks)),
		slog.String("tx_hash", receipt.TxHash),
	)
	return receipt, nil
}

// ensureAllowance approves the conditional-tokens contract when the current
// allowance does not cover amount. An allowance exactly equal to amount
// needs no approval.
func (m *Minter) ensureAllowance(ctx context.Context, amount *big.Int) error {
	allowance, err := m.ops.CollateralAllowance(ctx, m.account)
	if err != nil {
		return fmt.Errorf("minter: %w", err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	m.logger.InfoContext(ctx, "allowance below amount, approving",
		slog.String("allowance", allowance.String()),
		slog.String("amount", amount.String()),
	)
	receipt, err := m.ops.ApproveCollateral(ctx, amount)
	if err != nil {
		return fmt.Errorf("minter: approve: %w", err)
	}
	if !receipt.Success {
		return fmt.Errorf("minter: approve: %w: tx %s", domain.ErrTxReverted, receipt.TxHash)
	}
	return nil
}
