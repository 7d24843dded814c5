package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// CollateralBalance returns the account's collateral ERC-20 balance in base
// units. Read failures wrap ErrBalanceQueryFailed so callers block order
// submission instead of assuming sufficiency.
func (c *Client) CollateralBalance(ctx context.Context, account string) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, fmt.Errorf("chain: pack balanceOf: %w", err)
	}
	out, err := c.call(ctx, c.collateral, data)
	if err != nil {
		return nil, fmt.Errorf("chain: %w: collateral balance for %s: %v",
			domain.ErrBalanceQueryFailed, account, err)
	}
	return new(big.Int).SetBytes(out), nil
}

// CollateralAllowance returns how much collateral the conditional-tokens
// contract may pull from the account.
func (c *Client) CollateralAllowance(ctx context.Context, owner string) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", common.HexToAddress(owner), c.ctf)
	if err != nil {
		return nil, fmt.Errorf("chain: pack allowance: %w", err)
	}
	out, err := c.call(ctx, c.collateral, data)
	if err != nil {
		return nil, fmt.Errorf("chain: %w: allowance for %s: %v",
			domain.ErrBalanceQueryFailed, owner, err)
	}
	return new(big.Int).SetBytes(out), nil
}

// PositionBalance returns the account's ERC-1155 outcome-token balance for
// the given token id, in base units. Never cached; callers re-query before
// every sell.
func (c *Client) PositionBalance(ctx context.Context, account string, tokenID *big.Int) (*big.Int, error) {
	data, err := ctfABI.Pack("balanceOf", common.HexToAddress(account), tokenID)
	if err != nil {
		return nil, fmt.Errorf("chain: pack position balanceOf: %w", err)
	}
	out, err := c.call(ctx, c.ctf, data)
	if err != nil {
		return nil, fmt.Errorf("chain: %w: position balance for %s: %v",
			domain.ErrBalanceQueryFailed, account, err)
	}
	return new(big.Int).SetBytes(out), nil
}

// ConditionResolvable checks that the condition is prepared on chain by
// reading its outcome slot count. A binary market must report exactly two
// slots; zero means the condition was never prepared.
func (c *Client) ConditionResolvable(ctx context.Context, conditionID string) error {
	cond, err := ConditionBytes(conditionID)
	if err != nil {
		return err
	}
	data, err := ctfABI.Pack("getOutcomeSlotCount", cond)
	if err != nil {
		return fmt.Errorf("chain: pack getOutcomeSlotCount: %w", err)
	}
	out, err := c.call(ctx, c.ctf, data)
	if err != nil {
		return fmt.Errorf("chain: %w: outcome slot count for %s: %v",
			domain.ErrBalanceQueryFailed, conditionID, err)
	}
	slots := new(big.Int).SetBytes(out)
	if slots.Sign() == 0 {
		return fmt.Errorf("chain: %w: condition %s has no outcome slots",
			domain.ErrConditionUnresolvable, conditionID)
	}
	if slots.Int64() != 2 {
		return fmt.Errorf("chain: %w: condition %s has %s outcome slots, want 2",
			domain.ErrConditionUnresolvable, conditionID, slots)
	}
	return nil
}

// call performs a read-only eth_call against the given contract.
func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &to,
		Data: data,
	}, nil)
}
