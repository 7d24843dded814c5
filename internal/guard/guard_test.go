package guard

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/outcomelab/tradeflow/internal/domain"
)

type fakeReader struct {
	collateral *big.Int
	position   *big.Int
	err        error
}

func (f *fakeReader) CollateralBalance(_ context.Context, _ string) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.collateral, nil
}

func (f *fakeReader) PositionBalance(_ context.Context, _ string, _ *big.Int) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.position, nil
}

func (f *fakeReader) CollateralDecimals() int { return 6 }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

const testCondition = "0x1c08c9cbc6a9d8b5a4b1f8e2d3c4b5a69788695a4b3c2d1e0f1a2b3c4d5e6f70"

func TestCheckBuyAffordability(t *testing.T) {
	tests := []struct {
		name       string
		balance    int64 // base units, 6 decimals
		price      int64
		amount     int64
		sufficient bool
	}{
		{"ample balance", 100_000_000, 500_000, 10_000_000, true},
		{"exactly equal is sufficient", 5_000_000, 500_000, 10_000_000, true},
		{"one unit short", 4_999_999, 500_000, 10_000_000, false},
		{"zero balance", 0, 500_000, 10_000_000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(&fakeReader{collateral: big.NewInt(tt.balance)}, testLogger())
			check, err := g.CheckBuyAffordability(context.Background(), "0xabc", tt.price, tt.amount)
			if err != nil {
				t.Fatalf("CheckBuyAffordability: %v", err)
			}
			if check.Sufficient != tt.sufficient {
				t.Errorf("Sufficient = %v, want %v (required %d, balance %d)",
					check.Sufficient, tt.sufficient, check.RequiredTicks, check.BalanceTicks)
			}
			want := domain.MulTicks(tt.price, tt.amount)
			if check.RequiredTicks != want {
				t.Errorf("RequiredTicks = %d, want %d", check.RequiredTicks, want)
			}
		})
	}
}

func TestCheckBuyAffordabilityReadError(t *testing.T) {
	g := New(&fakeReader{err: domain.ErrBalanceQueryFailed}, testLogger())
	_, err := g.CheckBuyAffordability(context.Background(), "0xabc", 500_000, 1_000_000)
	if !errors.Is(err, domain.ErrBalanceQueryFailed) {
		t.Fatalf("err = %v, want ErrBalanceQueryFailed", err)
	}
}

func TestCheckSellCoverage(t *testing.T) {
	binding := domain.Bound(testCondition)

	tests := []struct {
		name       string
		held       int64
		amount     int64
		sufficient bool
	}{
		{"more than enough", 20_000_000, 10_000_000, true},
		{"exactly equal is sufficient", 10_000_000, 10_000_000, true},
		{"short", 9_999_999, 10_000_000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(&fakeReader{position: big.NewInt(tt.held)}, testLogger())
			check, err := g.CheckSellCoverage(context.Background(), "0xabc", binding, domain.OutcomeYes, tt.amount)
			if err != nil {
				t.Fatalf("CheckSellCoverage: %v", err)
			}
			if check.Sufficient != tt.sufficient {
				t.Errorf("Sufficient = %v, want %v (held %d)", check.Sufficient, tt.sufficient, check.HeldTicks)
			}
		})
	}
}

func TestCheckSellCoverageUnboundMarket(t *testing.T) {
	g := New(&fakeReader{position: big.NewInt(1)}, testLogger())
	_, err := g.CheckSellCoverage(context.Background(), "0xabc", domain.Unbound(), domain.OutcomeYes, 1_000_000)
	if !errors.Is(err, domain.ErrMarketUnbound) {
		t.Fatalf("err = %v, want ErrMarketUnbound", err)
	}
}

func TestCheckOrder(t *testing.T) {
	binding := domain.Bound(testCondition)

	t.Run("buy short surfaces insufficient balance", func(t *testing.T) {
		g := New(&fakeReader{collateral: big.NewInt(0)}, testLogger())
		order := domain.Order{Maker: "0xabc", Side: domain.OrderSideBuy, PriceTicks: 500_000, AmountTicks: 1_000_000}
		if err := g.CheckOrder(context.Background(), order, binding); !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("err = %v, want ErrInsufficientBalance", err)
		}
	})

	t.Run("sell short surfaces insufficient position", func(t *testing.T) {
		g := New(&fakeReader{position: big.NewInt(0)}, testLogger())
		order := domain.Order{Maker: "0xabc", Side: domain.OrderSideSell, Outcome: domain.OutcomeNo, PriceTicks: 500_000, AmountTicks: 1_000_000}
		if err := g.CheckOrder(context.Background(), order, binding); !errors.Is(err, domain.ErrInsufficientPosition) {
			t.Fatalf("err = %v, want ErrInsufficientPosition", err)
		}
	})

	t.Run("covered buy passes", func(t *testing.T) {
		g := New(&fakeReader{collateral: big.NewInt(10_000_000)}, testLogger())
		order := domain.Order{Maker: "0xabc", Side: domain.OrderSideBuy, PriceTicks: 500_000, AmountTicks: 1_000_000}
		if err := g.CheckOrder(context.Background(), order, binding); err != nil {
			t.Fatalf("CheckOrder: %v", err)
		}
	})
}
