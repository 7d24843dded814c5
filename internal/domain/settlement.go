package domain

import "time"

// SettlementState is the executor's state machine position for one matched
// fill. The happy path is Matched -> BuildingCall -> SubmittingTx ->
// Confirmed, with ResolvingMakerSig inserted when the maker signature must be
// produced locally, and AwaitingCounterparty as a halt state when it cannot.
type SettlementState string

const (
	SettlementMatched              SettlementState = "matched"
	SettlementResolvingMakerSig    SettlementState = "resolving_maker_signature"
	SettlementAwaitingCounterparty SettlementState = "awaiting_counterparty"
	SettlementBuildingCall         SettlementState = "building_call"
	SettlementSubmittingTx         SettlementState = "submitting_tx"
	SettlementConfirmed            SettlementState = "confirmed"
	SettlementReverted             SettlementState = "reverted"
)

// Terminal reports whether the state machine has finished for this fill.
// AwaitingCounterparty is not terminal: the same fill is re-attemptable once
// the maker signature arrives.
func (s SettlementState) Terminal() bool {
	return s == SettlementConfirmed || s == SettlementReverted
}

// Settlement records the lifecycle of one on-chain fill attempt. FillPayload
// holds the serialized MatchedFill so a non-terminal settlement can be
// re-attempted after a restart without re-contacting the venue.
type Settlement struct {
	ID              string
	TakerOrderID    string
	MakerOrderID    string
	FillAmountTicks int64
	State           SettlementState
	TxHash          string
	RevertReason    string
	FillPayload     []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AffordabilityCheck is the result of a buy-side collateral check.
type AffordabilityCheck struct {
	Sufficient    bool
	RequiredTicks int64 // price x amount in collateral ticks
	BalanceTicks  int64 // live collateral balance
}

// ShortfallTicks returns how much collateral is missing, zero when sufficient.
func (c AffordabilityCheck) ShortfallTicks() int64 {
	if c.Sufficient {
		return 0
	}
	return c.RequiredTicks - c.BalanceTicks
}

// CoverageCheck is the result of a sell-side position check.
type CoverageCheck struct {
	Sufficient bool
	HeldTicks  int64 // live outcome-token balance
}

// TxReceipt summarizes a mined transaction.
type TxReceipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	Success     bool
}
