// Package builder assembles off-chain orders and derives their on-chain
// counterparts. Building is pure apart from id, salt, and clock reads; no
// chain or network access happens here.
package builder

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outcomelab/tradeflow/internal/chain"
	"github.com/outcomelab/tradeflow/internal/domain"
)

// defaultOrderTTL applies when the caller leaves expiration unset.
const defaultOrderTTL = 24 * time.Hour

// Params carries the user-supplied trade intent. Price and Amount are
// decimal strings so callers never pass floats across this boundary.
type Params struct {
	MarketID   string
	QuestionID string
	Maker      string
	Side       domain.OrderSide
	Outcome    domain.Outcome
	Price      string
	Amount     string
	Expiration int64 // unix seconds, 0 means now + default TTL
}

// Builder constructs orders for a fixed collateral denomination.
type Builder struct {
	collateralDecimals int
	now                func() time.Time
}

func New(collateralDecimals int) *Builder {
	return &Builder{collateralDecimals: collateralDecimals, now: time.Now}
}

// Build validates params and assembles a fresh unsigned order. Every call
// yields a new order id and salt; orders are never reused across attempts.
func (b *Builder) Build(p Params) (domain.Order, error) {
	priceTicks, err := domain.ParseTicks(p.Price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("builder: %w: price %q: %v", domain.ErrInvalidOrderParams, p.Price, err)
	}
	if priceTicks <= 0 || priceTicks >= domain.TickScale {
		return domain.Order{}, fmt.Errorf("builder: %w: price %s must be strictly between 0 and 1",
			domain.ErrInvalidOrderParams, p.Price)
	}
	amountTicks, err := domain.ParseTicks(p.Amount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("builder: %w: amount %q: %v", domain.ErrInvalidOrderParams, p.Amount, err)
	}
	if amountTicks <= 0 {
		return domain.Order{}, fmt.Errorf("builder: %w: amount must be positive", domain.ErrInvalidOrderParams)
	}
	if p.Side != domain.OrderSideBuy && p.Side != domain.OrderSideSell {
		return domain.Order{}, fmt.Errorf("builder: %w: side %q", domain.ErrInvalidOrderParams, p.Side)
	}
	if !p.Outcome.Valid() {
		return domain.Order{}, fmt.Errorf("builder: %w: outcome %d", domain.ErrInvalidOrderParams, p.Outcome)
	}
	if p.MarketID == "" || p.QuestionID == "" {
		return domain.Order{}, fmt.Errorf("builder: %w: market and question ids are required", domain.ErrInvalidOrderParams)
	}
	if !strings.HasPrefix(p.Maker, "0x") || len(p.Maker) != 42 {
		return domain.Order{}, fmt.Errorf("builder: %w: maker %q is not an address", domain.ErrInvalidOrderParams, p.Maker)
	}

	now := b.now()
	expiration := p.Expiration
	if expiration == 0 {
		expiration = now.Add(defaultOrderTTL).Unix()
	}
	if expiration <= now.Unix() {
		return domain.Order{}, fmt.Errorf("builder: %w: expiration %d is not in the future",
			domain.ErrInvalidOrderParams, expiration)
	}

	salt, err := newSalt()
	if err != nil {
		return domain.Order{}, fmt.Errorf("builder: generate salt: %w", err)
	}

	return domain.Order{
		ID:          uuid.NewString(),
		MarketID:    p.MarketID,
		QuestionID:  p.QuestionID,
		Maker:       strings.ToLower(p.Maker),
		Side:        p.Side,
		Outcome:     p.Outcome,
		PriceTicks:  priceTicks,
		AmountTicks: amountTicks,
		Salt:        salt,
		Nonce:       now.UnixMilli(),
		Expiration:  expiration,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now.UTC(),
	}, nil
}

// DeriveCTFOrder maps an order onto the exchange contract's tuple. The
// market must be bound to a condition; unbound markets have no token ids and
// stay off-chain only. Amounts come out in integer base units carrying the
// same price x amount economics as the off-chain order.
func (b *Builder) DeriveCTFOrder(order domain.Order, binding domain.MarketBinding) (domain.CTFOrder, error) {
	conditionID, ok := binding.ConditionID()
	if !ok {
		return domain.CTFOrder{}, fmt.Errorf("builder: derive: %w", domain.ErrMarketUnbound)
	}
	tokenID, err := chain.TokenID(conditionID, order.Outcome)
	if err != nil {
		return domain.CTFOrder{}, fmt.Errorf("builder: derive: %w", err)
	}
	salt, ok := new(big.Int).SetString(order.Salt, 10)
	if !ok {
		return domain.CTFOrder{}, fmt.Errorf("builder: derive: %w: salt %q", domain.ErrInvalidOrderParams, order.Salt)
	}

	notional := domain.TicksToBaseUnits(order.NotionalTicks(), b.collateralDecimals)
	size := domain.TicksToBaseUnits(order.AmountTicks, b.collateralDecimals)

	// A buyer gives collateral for outcome tokens; a seller the reverse.
	var makerAmount, takerAmount *big.Int
	var side int
	switch order.Side {
	case domain.OrderSideBuy:
		makerAmount, takerAmount, side = notional, size, 0
	case domain.OrderSideSell:
		makerAmount, takerAmount, side = size, notional, 1
	default:
		return domain.CTFOrder{}, fmt.Errorf("builder: derive: %w: side %q", domain.ErrInvalidOrderParams, order.Side)
	}

	return domain.CTFOrder{
		Salt:          salt,
		Maker:         order.Maker,
		Signer:        order.Maker,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    big.NewInt(order.Expiration),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(0),
		Side:          side,
		SignatureType: 0,
	}, nil
}

// newSalt draws a random 64-bit salt and renders it in decimal, matching the
// venue's numeric-string salt encoding.
func newSalt() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(buf).String(), nil
}
