// Package settlement drives matched fills through the on-chain exchange
// call. One executor instance owns the state machine for every fill it is
// handed; progress is persisted so a fill survives restarts, and a
// distributed lock keeps a single attempt in flight per fill.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// lockTTL bounds how long a crashed attempt can block re-settlement.
const lockTTL = 5 * time.Minute

// ExchangeSigner produces the maker's on-chain signature when the local
// account is the maker of a matched resting order.
type ExchangeSigner interface {
	Address() common.Address
	SignExchangeOrder(ctx context.Context, order domain.CTFOrder) (string, error)
}

// Filler submits the exchange fill transaction.
type Filler interface {
	FillOrder(ctx context.Context, order domain.CTFOrder, makerSignature string, fillAmount *big.Int) (domain.TxReceipt, error)
	CollateralDecimals() int
}

// SignatureBackfiller persists a freshly produced maker signature to the
// venue so later fills of the same resting order reuse it.
type SignatureBackfiller interface {
	BackfillSignature(ctx context.Context, orderID, signature string) error
}

// Executor is the settlement state machine.
type Executor struct {
	signer ExchangeSigner
	filler Filler
	venue  SignatureBackfiller
	store  domain.SettlementStore
	locks  domain.LockManager
	logger *slog.Logger
}

func NewExecutor(signer ExchangeSigner, filler Filler, venue SignatureBackfiller, store domain.SettlementStore, locks domain.LockManager, logger *slog.Logger) *Executor {
	return &Executor{
		signer: signer,
		filler: filler,
		venue:  venue,
		store:  store,
		locks:  locks,
		logger: logger.With(slog.String("component", "settlement")),
	}
}

// Settle runs one matched fill to a terminal state or a legitimate halt.
// Calls are idempotent per (takerOrderId, makerOrderId, fillAmount): a fill
// already confirmed returns its existing record without touching the chain,
// and a fill awaiting the counterparty's signature halts with
// ErrAwaitingCounterparty before any chain call.
func (e *Executor) Settle(ctx context.Context, fill domain.MatchedFill) (domain.Settlement, error) {
	lockKey := fmt.Sprintf("settle:%s:%s:%d", fill.TakerOrder.ID, fill.MakerOrder.ID, fill.FillAmountTicks)
	unlock, err := e.locks.Acquire(ctx, lockKey, lockTTL)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement: %w", err)
	}
	defer unlock()

	record, err := e.loadOrCreate(ctx, fill)
	if err != nil {
		return domain.Settlement{}, err
	}
	if record.State.Terminal() {
		e.logger.InfoContext(ctx, "fill already terminal",
			slog.String("settlement_id", record.ID),
			slog.String("state", string(record.State)),
		)
		return record, nil
	}

	makerSig, record, err := e.resolveMakerSignature(ctx, fill, record)
	if err != nil {
		return record, err
	}

	if err := e.transition(ctx, &record, domain.SettlementBuildingCall, "", ""); err != nil {
		return record, err
	}
	fillAmount := domain.TicksToBaseUnits(fill.FillAmountTicks, e.filler.CollateralDecimals())

	if err := e.transition(ctx, &record, domain.SettlementSubmittingTx, "", ""); err != nil {
		return record, err
	}
	receipt, fillErr := e.filler.FillOrder(ctx, fill.CTFOrder, makerSig, fillAmount)
	if fillErr != nil {
		if errors.Is(fillErr, domain.ErrTxReverted) {
			reason := revertReason(fillErr)
			if terr := e.transition(ctx, &record, domain.SettlementReverted, receipt.TxHash, reason); terr != nil {
				e.logger.ErrorContext(ctx, "persist reverted state failed", slog.String("error", terr.Error()))
			}
			return record, fmt.Errorf("settlement: fill %s: %w", record.ID, fillErr)
		}
		// RPC or submission failure before inclusion: leave the record
		// non-terminal so the fill stays re-attemptable.
		return record, fmt.Errorf("settlement: fill %s: %w", record.ID, fillErr)
	}

	if err := e.transition(ctx, &record, domain.SettlementConfirmed, receipt.TxHash, ""); err != nil {
		return record, err
	}
	e.logger.InfoContext(ctx, "settlement confirmed",
		slog.String("settlement_id", record.ID),
		slog.String("tx_hash", receipt.TxHash),
		slog.Uint64("block", receipt.BlockNumber),
	)
	return record, nil
}

// Retry reloads a persisted non-terminal settlement and runs it again from
// its stored fill payload.
func (e *Executor) Retry(ctx context.Context, settlementID string) (domain.Settlement, error) {
	record, err := e.store.GetByID(ctx, settlementID)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement: retry %s: %w", settlementID, err)
	}
	if record.State.Terminal() {
		return record, nil
	}
	var fill domain.MatchedFill
	if err := json.Unmarshal(record.FillPayload, &fill); err != nil {
		return record, fmt.Errorf("settlement: retry %s: decode fill payload: %w", settlementID, err)
	}
	return e.Settle(ctx, fill)
}

// resolveMakerSignature returns the signature the fill call needs. Three
// cases: the venue already supplied it; the local account is the maker and
// signs now (then backfills the venue); or the counterparty must sign and the
// machine halts without any chain call.
func (e *Executor) resolveMakerSignature(ctx context.Context, fill domain.MatchedFill, record domain.Settlement) (string, domain.Settlement, error) {
	if fill.MakerSignature != "" {
		return fill.MakerSignature, record, nil
	}

	maker := common.HexToAddress(fill.CTFOrder.Maker)
	if e.signer.Address() != maker {
		if err := e.transition(ctx, &record, domain.SettlementAwaitingCounterparty, "", ""); err != nil {
			return "", record, err
		}
		e.logger.InfoContext(ctx, "halting until counterparty signs",
			slog.String("settlement_id", record.ID),
			slog.String("maker", maker.Hex()),
		)
		return "", record, fmt.Errorf("settlement: fill %s: maker %s has not signed: %w",
			record.ID, maker.Hex(), domain.ErrAwaitingCounterparty)
	}

	if err := e.transition(ctx, &record, domain.SettlementResolvingMakerSig, "", ""); err != nil {
		return "", record, err
	}
	sig, err := e.signer.SignExchangeOrder(ctx, fill.CTFOrder)
	if err != nil {
		return "", record, fmt.Errorf("settlement: fill %s: maker signature: %w", record.ID, err)
	}
	if err := e.venue.BackfillSignature(ctx, fill.MakerOrder.ID, sig); err != nil {
		// The venue copy is an optimization for future fills of the same
		// resting order; this fill can still settle.
		e.logger.WarnContext(ctx, "signature backfill failed",
			slog.String("maker_order_id", fill.MakerOrder.ID),
			slog.String("error", err.Error()),
		)
	}
	return sig, record, nil
}

// loadOrCreate fetches the persisted record for this exact fill or creates a
// fresh one in the Matched state.
func (e *Executor) loadOrCreate(ctx context.Context, fill domain.MatchedFill) (domain.Settlement, error) {
	existing, err := e.store.GetByFill(ctx, fill.TakerOrder.ID, fill.MakerOrder.ID, fill.FillAmountTicks)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Settlement{}, fmt.Errorf("settlement: load fill record: %w", err)
	}

	payload, err := json.Marshal(fill)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement: encode fill payload: %w", err)
	}
	now := time.Now().UTC()
	record := domain.Settlement{
		ID:              uuid.NewString(),
		TakerOrderID:    fill.TakerOrder.ID,
		MakerOrderID:    fill.MakerOrder.ID,
		FillAmountTicks: fill.FillAmountTicks,
		State:           domain.SettlementMatched,
		FillPayload:     payload,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.Create(ctx, record); err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement: create fill record: %w", err)
	}
	return record, nil
}

// transition persists a state change and mutates the in-memory record.
func (e *Executor) transition(ctx context.Context, record *domain.Settlement, state domain.SettlementState, txHash, revertReason string) error {
	if err := e.store.UpdateState(ctx, record.ID, state, txHash, revertReason); err != nil {
		return fmt.Errorf("settlement: transition %s -> %s: %w", record.State, state, err)
	}
	record.State = state
	if txHash != "" {
		record.TxHash = txHash
	}
	record.RevertReason = revertReason
	record.UpdatedAt = time.Now().UTC()
	return nil
}

// revertReason strips the wrapping down to the revert message after the
// sentinel marker.
func revertReason(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, domain.ErrTxReverted.Error()); i >= 0 {
		reason := strings.TrimPrefix(msg[i+len(domain.ErrTxReverted.Error()):], ": ")
		if reason != "" {
			return strings.TrimSpace(reason)
		}
	}
	return msg
}
