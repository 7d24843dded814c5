package domain

import (
	"math/big"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Outcome selects one side of a binary market.
type Outcome int

const (
	OutcomeYes Outcome = 0
	OutcomeNo  Outcome = 1
)

// Valid reports whether the outcome index is one of the two binary sides.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// OrderStatus tracks the order lifecycle as seen by this client.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"   // built, not yet signed
	OrderStatusSigned    OrderStatus = "signed"    // both signatures attached
	OrderStatusResting   OrderStatus = "resting"   // accepted into the venue book
	OrderStatusMatched   OrderStatus = "matched"   // venue returned a fill
	OrderStatusSettled   OrderStatus = "settled"   // on-chain fill confirmed
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the off-chain trade intent submitted to the matching venue. Price
// and amount are fixed-point ticks (see TickScale); the venue wire format
// carries them as decimal strings.
type Order struct {
	ID          string
	MarketID    string
	QuestionID  string
	Maker       string // checksummed hex address
	Side        OrderSide
	Outcome     Outcome
	PriceTicks  int64 // 0 < price < 1 dollar
	AmountTicks int64 // outcome-token quantity, > 0
	Salt        string // random decimal string, part of the replay defense
	Nonce       int64  // wall-clock milliseconds at build time
	Expiration  int64  // unix seconds, strictly in the future at submission
	Signature   string // venue (off-chain) signature, hex
	Status      OrderStatus
	CreatedAt   time.Time
}

// Price returns the display price in dollars.
func (o Order) Price() float64 {
	return float64(o.PriceTicks) / float64(TickScale)
}

// Amount returns the display size in outcome tokens.
func (o Order) Amount() float64 {
	return float64(o.AmountTicks) / float64(TickScale)
}

// NotionalTicks returns price x amount in collateral ticks: what a buyer pays
// and a seller receives for the full order.
func (o Order) NotionalTicks() int64 {
	return MulTicks(o.PriceTicks, o.AmountTicks)
}

// CTFOrder is the on-chain order representation signed under the exchange
// contract's EIP-712 domain. All numeric fields are integer base units.
type CTFOrder struct {
	Salt          *big.Int
	Maker         string
	Signer        string
	Taker         string
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          int // 0 = BUY, 1 = SELL
	SignatureType int // 0 = EOA
	Signature     string
}

// MarketBinding is the optional link between a market and its on-chain
// condition. Settlement paths accept only the bound variant, so an unbound
// market cannot reach the exchange contract by construction.
type MarketBinding struct {
	conditionID string
}

// Unbound returns the binding for a market with no on-chain condition.
func Unbound() MarketBinding {
	return MarketBinding{}
}

// Bound returns a binding for the given condition id.
func Bound(conditionID string) MarketBinding {
	return MarketBinding{conditionID: conditionID}
}

// ConditionID returns the bound condition id, or false for unbound markets.
func (b MarketBinding) ConditionID() (string, bool) {
	if b.conditionID == "" {
		return "", false
	}
	return b.conditionID, true
}

// IsBound reports whether the market has an on-chain condition.
func (b MarketBinding) IsBound() bool {
	return b.conditionID != ""
}

// SubmitOutcome distinguishes the two success shapes of a venue submission.
type SubmitOutcome string

const (
	SubmitAccepted SubmitOutcome = "accepted" // resting in the book
	SubmitMatched  SubmitOutcome = "matched"  // immediately crossed, needs settlement
)

// SubmitResult is the venue's answer to an order submission.
type SubmitResult struct {
	Outcome SubmitOutcome
	OrderID string       // venue-assigned id (equals Order.ID on success)
	Fill    *MatchedFill // set only when Outcome == SubmitMatched
}

// MatchedFill is produced by the venue when an incoming order crosses a
// resting one. MakerSignature may be empty when the counterparty has not yet
// signed under the exchange domain.
type MatchedFill struct {
	TakerOrder      Order
	MakerOrder      Order
	CTFOrder        CTFOrder // the maker's on-chain order to fill against
	FillAmountTicks int64    // authoritative per call; never assume full consumption
	MakerSignature  string
}
