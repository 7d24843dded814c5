package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/tradeflow/internal/domain"
)

const (
	localAddr = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	makerAddr = "0x1111111111111111111111111111111111111111"
)

type fakeSigner struct {
	address   string
	signature string
	err       error
	calls     int
}

func (f *fakeSigner) Address() common.Address { return common.HexToAddress(f.address) }

func (f *fakeSigner) SignExchangeOrder(_ context.Context, _ domain.CTFOrder) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.signature, nil
}

type fakeFiller struct {
	receipt domain.TxReceipt
	err     error
	calls   int
	lastSig string
}

func (f *fakeFiller) FillOrder(_ context.Context, _ domain.CTFOrder, makerSignature string, _ *big.Int) (domain.TxReceipt, error) {
	f.calls++
	f.lastSig = makerSignature
	if f.err != nil {
		return f.receipt, f.err
	}
	return f.receipt, nil
}

func (f *fakeFiller) CollateralDecimals() int { return 6 }

type fakeVenue struct {
	calls int
	err   error
}

func (f *fakeVenue) BackfillSignature(_ context.Context, _, _ string) error {
	f.calls++
	return f.err
}

type memStore struct {
	byID map[string]domain.Settlement
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]domain.Settlement)}
}

func (s *memStore) Create(_ context.Context, rec domain.Settlement) error {
	s.byID[rec.ID] = rec
	return nil
}

func (s *memStore) UpdateState(_ context.Context, id string, state domain.SettlementState, txHash, revertReason string) error {
	rec, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.State = state
	if txHash != "" {
		rec.TxHash = txHash
	}
	rec.RevertReason = revertReason
	rec.UpdatedAt = time.Now().UTC()
	s.byID[id] = rec
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (domain.Settlement, error) {
	rec, ok := s.byID[id]
	if !ok {
		return domain.Settlement{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *memStore) GetByFill(_ context.Context, takerOrderID, makerOrderID string, fillAmountTicks int64) (domain.Settlement, error) {
	for _, rec := range s.byID {
		if rec.TakerOrderID == takerOrderID && rec.MakerOrderID == makerOrderID && rec.FillAmountTicks == fillAmountTicks {
			return rec, nil
		}
	}
	return domain.Settlement{}, domain.ErrNotFound
}

func (s *memStore) ListUnsettled(_ context.Context, _ domain.ListOpts) ([]domain.Settlement, error) {
	var out []domain.Settlement
	for _, rec := range s.byID {
		if !rec.State.Terminal() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) ListBefore(_ context.Context, cutoff time.Time, _ domain.ListOpts) ([]domain.Settlement, error) {
	var out []domain.Settlement
	for _, rec := range s.byID {
		if rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type noopLocks struct{ calls int }

func (l *noopLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	l.calls++
	return func() {}, nil
}

type heldLocks struct{}

func (heldLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func testFill(makerSignature string) domain.MatchedFill {
	return domain.MatchedFill{
		TakerOrder: domain.Order{ID: "taker-1", Maker: "0x2222222222222222222222222222222222222222"},
		MakerOrder: domain.Order{ID: "maker-1", Maker: makerAddr},
		CTFOrder: domain.CTFOrder{
			Salt:        big.NewInt(7),
			Maker:       makerAddr,
			Signer:      makerAddr,
			TokenID:     big.NewInt(42),
			MakerAmount: big.NewInt(100_000_000),
			TakerAmount: big.NewInt(60_000_000),
		},
		FillAmountTicks: 100_000_000,
		MakerSignature:  makerSignature,
	}
}

func newExecutor(signer *fakeSigner, filler *fakeFiller, venue *fakeVenue, store domain.SettlementStore, locks domain.LockManager) *Executor {
	return NewExecutor(signer, filler, venue, store, locks, slog.New(slog.DiscardHandler))
}

func TestSettlePreSignedFill(t *testing.T) {
	filler := &fakeFiller{receipt: domain.TxReceipt{TxHash: "0xfill", Success: true, BlockNumber: 10}}
	signer := &fakeSigner{address: localAddr}
	store := newMemStore()

	exec := newExecutor(signer, filler, &fakeVenue{}, store, &noopLocks{})
	rec, err := exec.Settle(context.Background(), testFill("0xpresigned"))
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if rec.State != domain.SettlementConfirmed {
		t.Errorf("State = %q, want confirmed", rec.State)
	}
	if rec.TxHash != "0xfill" {
		t.Errorf("TxHash = %q, want 0xfill", rec.TxHash)
	}
	if filler.calls != 1 {
		t.Errorf("fill calls = %d, want 1", filler.calls)
	}
	if filler.lastSig != "0xpresigned" {
		t.Errorf("signature passed to fill = %q", filler.lastSig)
	}
	if signer.calls != 0 {
		t.Error("pre-signed fill must not invoke the signer")
	}
}

func TestSettleAwaitingCounterpartyMakesNoChainCall(t *testing.T) {
	filler := &fakeFiller{}
	signer := &fakeSigner{address: localAddr} // not the maker
	store := newMemStore()

	exec := newExecutor(signer, filler, &fakeVenue{}, store, &noopLocks{})
	rec, err := exec.Settle(context.Background(), testFill(""))
	if !errors.Is(err, domain.ErrAwaitingCounterparty) {
		t.Fatalf("err = %v, want ErrAwaitingCounterparty", err)
	}
	if rec.State != domain.SettlementAwaitingCounterparty {
		t.Errorf("State = %q, want awaiting_counterparty", rec.State)
	}
	if filler.calls != 0 {
		t.Errorf("fill calls = %d, want 0 while awaiting counterparty", filler.calls)
	}
	if signer.calls != 0 {
		t.Error("signer must not run for a foreign maker")
	}
}

func TestSettleLocalMakerSignsAndBackfills(t *testing.T) {
	filler := &fakeFiller{receipt: domain.TxReceipt{TxHash: "0xfill", Success: true}}
	signer := &fakeSigner{address: makerAddr, signature: "0xfreshsig"}
	venue := &fakeVenue{}
	store := newMemStore()

	exec := newExecutor(signer, filler, venue, store, &noopLocks{})
	rec, err := exec.Settle(context.Background(), testFill(""))
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if rec.State != domain.SettlementConfirmed {
		t.Errorf("State = %q, want confirmed", rec.State)
	}
	if signer.calls != 1 {
		t.Errorf("signer calls = %d, want 1", signer.calls)
	}
	if venue.calls != 1 {
		t.Errorf("backfill calls = %d, want 1", venue.calls)
	}
	if filler.lastSig != "0xfreshsig" {
		t.Errorf("signature passed to fill = %q, want the fresh one", filler.lastSig)
	}
}

func TestSettleBackfillFailureDoesNotBlockFill(t *testing.T) {
	filler := &fakeFiller{receipt: domain.TxReceipt{TxHash: "0xfill", Success: true}}
	signer := &fakeSigner{address: makerAddr, signature: "0xfreshsig"}
	venue := &fakeVenue{err: domain.ErrVenueUnavailable}
	store := newMemStore()

	exec := newExecutor(signer, filler, venue, store, &noopLocks{})
	rec, err := exec.Settle(context.Background(), testFill(""))
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if rec.State != domain.SettlementConfirmed {
		t.Errorf("State = %q, want confirmed despite backfill failure", rec.State)
	}
}

func TestSettleRevertIsTerminalWithReason(t *testing.T) {
	filler := &fakeFiller{
		err: fmt.Errorf("chain: fillOrder: %w: OrderExpired (tx 0xdead)", domain.ErrTxReverted),
	}
	store := newMemStore()

	exec := newExecutor(&fakeSigner{address: localAddr}, filler, &fakeVenue{}, store, &noopLocks{})
	rec, err := exec.Settle(context.Background(), testFill("0xpresigned"))
	if !errors.Is(err, domain.ErrTxReverted) {
		t.Fatalf("err = %v, want ErrTxReverted", err)
	}
	if rec.State != domain.SettlementReverted {
		t.Errorf("State = %q, want reverted", rec.State)
	}
	if rec.RevertReason == "" {
		t.Error("revert reason not surfaced")
	}
}

func TestSettleTransientChainFailureStaysReattemptable(t *testing.T) {
	filler := &fakeFiller{err: errors.New("rpc: connection refused")}
	store := newMemStore()

	exec := newExecutor(&fakeSigner{address: localAddr}, filler, &fakeVenue{}, store, &noopLocks{})
	rec, err := exec.Settle(context.Background(), testFill("0xpresigned"))
	if err == nil {
		t.Fatal("expected error")
	}
	if rec.State.Terminal() {
		t.Errorf("State = %q, want non-terminal after transient failure", rec.State)
	}
}

func TestSettleIdempotentOnConfirmedFill(t *testing.T) {
	filler := &fakeFiller{receipt: domain.TxReceipt{TxHash: "0xfill", Success: true}}
	store := newMemStore()
	exec := newExecutor(&fakeSigner{address: localAddr}, filler, &fakeVenue{}, store, &noopLocks{})

	if _, err := exec.Settle(context.Background(), testFill("0xpresigned")); err != nil {
		t.Fatalf("first Settle: %v", err)
	}
	rec, err := exec.Settle(context.Background(), testFill("0xpresigned"))
	if err != nil {
		t.Fatalf("second Settle: %v", err)
	}
	if rec.State != domain.SettlementConfirmed {
		t.Errorf("State = %q, want confirmed", rec.State)
	}
	if filler.calls != 1 {
		t.Errorf("fill calls = %d, want exactly 1 across re-attempts", filler.calls)
	}
}

func TestSettleLockHeld(t *testing.T) {
	exec := newExecutor(&fakeSigner{address: localAddr}, &fakeFiller{}, &fakeVenue{}, newMemStore(), heldLocks{})
	_, err := exec.Settle(context.Background(), testFill("0xpresigned"))
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
}

func TestRetryReloadsPersistedFill(t *testing.T) {
	store := newMemStore()
	// First attempt halts awaiting the counterparty.
	exec := newExecutor(&fakeSigner{address: localAddr}, &fakeFiller{}, &fakeVenue{}, store, &noopLocks{})
	rec, err := exec.Settle(context.Background(), testFill(""))
	if !errors.Is(err, domain.ErrAwaitingCounterparty) {
		t.Fatalf("first Settle err = %v, want ErrAwaitingCounterparty", err)
	}

	// The maker's account retries the same persisted fill and can now sign.
	filler := &fakeFiller{receipt: domain.TxReceipt{TxHash: "0xfill", Success: true}}
	makerExec := newExecutor(&fakeSigner{address: makerAddr, signature: "0xsig"}, filler, &fakeVenue{}, store, &noopLocks{})
	final, err := makerExec.Retry(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if final.State != domain.SettlementConfirmed {
		t.Errorf("State = %q, want confirmed", final.State)
	}
	if filler.calls != 1 {
		t.Errorf("fill calls = %d, want 1", filler.calls)
	}
}
