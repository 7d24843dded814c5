package minter

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/outcomelab/tradeflow/internal/domain"
)

const testCondition = "0x1c08c9cbc6a9d8b5a4b1f8e2d3c4b5a69788695a4b3c2d1e0f1a2b3c4d5e6f70"

type fakeOps struct {
	balance      *big.Int
	allowance    *big.Int
	resolvable   bool
	approveCalls int
	splitCalls   int
	splitAmount  *big.Int
}

func (f *fakeOps) CollateralBalance(_ context.Context, _ string) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeOps) CollateralAllowance(_ context.Context, _ string) (*big.Int, error) {
	return f.allowance, nil
}

func (f *fakeOps) ConditionResolvable(_ context.Context, _ string) error {
	if !f.resolvable {
		return domain.ErrConditionUnresolvable
	}
	return nil
}

func (f *fakeOps) ApproveCollateral(_ context.Context, _ *big.Int) (domain.TxReceipt, error) {
	f.approveCalls++
	return domain.TxReceipt{TxHash: "0xapprove", Success: true}, nil
}

func (f *fakeOps) SplitPosition(_ context.Context, _ string, amount *big.Int) (domain.TxReceipt, error) {
	f.splitCalls++
	f.splitAmount = amount
	return domain.TxReceipt{TxHash: "0xsplit", Success: true}, nil
}

func (f *fakeOps) CollateralDecimals() int { return 6 }

func newTestMinter(ops *fakeOps) *Minter {
	return New(ops, "0xabc", slog.New(slog.DiscardHandler))
}

func TestMintHappyPath(t *testing.T) {
	ops := &fakeOps{
		balance:    big.NewInt(100_000_000),
		allowance:  big.NewInt(0),
		resolvable: true,
	}
	m := newTestMinter(ops)

	receipt, err := m.Mint(context.Background(), domain.Bound(testCondition), 10_000_000)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if receipt.TxHash != "0xsplit" {
		t.Errorf("TxHash = %q, want 0xsplit", receipt.TxHash)
	}
	if ops.approveCalls != 1 {
		t.Errorf("approveCalls = %d, want 1", ops.approveCalls)
	}
	if ops.splitCalls != 1 {
		t.Errorf("splitCalls = %d, want 1", ops.splitCalls)
	}
	// 10 display units at 6 decimals.
	if want := big.NewInt(10_000_000); ops.splitAmount.Cmp(want) != 0 {
		t.Errorf("splitAmount = %s, want %s", ops.splitAmount, want)
	}
}

func TestMintSkipsApproveWhenAllowanceCovers(t *testing.T) {
	ops := &fakeOps{
		balance:    big.NewInt(100_000_000),
		allowance:  big.NewInt(10_000_000), // exactly the amount
		resolvable: true,
	}
	m := newTestMinter(ops)

	if _, err := m.Mint(context.Background(), domain.Bound(testCondition), 10_000_000); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if ops.approveCalls != 0 {
		t.Errorf("approveCalls = %d, want 0", ops.approveCalls)
	}
}

func TestMintErrors(t *testing.T) {
	tests := []struct {
		name    string
		ops     *fakeOps
		binding domain.MarketBinding
		amount  int64
		want    error
	}{
		{
			name:    "unbound market",
			ops:     &fakeOps{resolvable: true},
			binding: domain.Unbound(),
			amount:  1_000_000,
			want:    domain.ErrMarketUnbound,
		},
		{
			name:    "unresolvable condition",
			ops:     &fakeOps{balance: big.NewInt(100_000_000), allowance: big.NewInt(0)},
			binding: domain.Bound(testCondition),
			amount:  1_000_000,
			want:    domain.ErrConditionUnresolvable,
		},
		{
			name:    "insufficient collateral",
			ops:     &fakeOps{balance: big.NewInt(999_999), allowance: big.NewInt(0), resolvable: true},
			binding: domain.Bound(testCondition),
			amount:  1_000_000,
			want:    domain.ErrInsufficientCollateral,
		},
		{
			name:    "non-positive amount",
			ops:     &fakeOps{resolvable: true},
			binding: domain.Bound(testCondition),
			amount:  0,
			want:    domain.ErrInvalidOrderParams,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMinter(tt.ops)
			_, err := m.Mint(context.Background(), tt.binding, tt.amount)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if tt.ops.splitCalls != 0 {
				t.Errorf("splitCalls = %d, want 0 on failed precondition", tt.ops.splitCalls)
			}
		})
	}
}
