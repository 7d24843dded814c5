package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/outcomelab/tradeflow/internal/domain"
)

type fakeMinter struct {
	receipt domain.TxReceipt
	err     error
	calls   int
	ticks   int64
}

func (f *fakeMinter) Mint(_ context.Context, _ domain.MarketBinding, amountTicks int64) (domain.TxReceipt, error) {
	f.calls++
	f.ticks = amountTicks
	return f.receipt, f.err
}

func TestMintServiceMint(t *testing.T) {
	minter := &fakeMinter{receipt: domain.TxReceipt{TxHash: "0xsplit", Success: true}}
	svc := NewMintService(minter, nullBus{}, nullAudit{}, slog.New(slog.DiscardHandler))

	receipt, err := svc.Mint(context.Background(), testCondition, "25.5")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if receipt.TxHash != "0xsplit" {
		t.Errorf("TxHash = %q", receipt.TxHash)
	}
	if minter.ticks != 25_500_000 {
		t.Errorf("amount ticks = %d, want 25500000", minter.ticks)
	}
}

func TestMintServiceRejectsBadInput(t *testing.T) {
	minter := &fakeMinter{}
	svc := NewMintService(minter, nullBus{}, nullAudit{}, slog.New(slog.DiscardHandler))

	if _, err := svc.Mint(context.Background(), testCondition, "not-a-number"); !errors.Is(err, domain.ErrInvalidOrderParams) {
		t.Fatalf("err = %v, want ErrInvalidOrderParams", err)
	}
	if _, err := svc.Mint(context.Background(), "", "10"); !errors.Is(err, domain.ErrMarketUnbound) {
		t.Fatalf("err = %v, want ErrMarketUnbound", err)
	}
	if minter.calls != 0 {
		t.Error("minter must not run on invalid input")
	}
}

func TestMintServicePropagatesChainFailure(t *testing.T) {
	minter := &fakeMinter{err: domain.ErrInsufficientCollateral}
	svc := NewMintService(minter, nullBus{}, nullAudit{}, slog.New(slog.DiscardHandler))

	_, err := svc.Mint(context.Background(), testCondition, "10")
	if !errors.Is(err, domain.ErrInsufficientCollateral) {
		t.Fatalf("err = %v, want ErrInsufficientCollateral", err)
	}
}
