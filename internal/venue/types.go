package venue

import (
	"fmt"
	"math/big"
	"time"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// orderPayload is the wire shape of an off-chain order. Price, amount, and
// salt travel as decimal strings; the venue never sees floats.
type orderPayload struct {
	OrderID    string `json:"orderId"`
	MarketID   string `json:"marketId"`
	QuestionID string `json:"questionId"`
	Maker      string `json:"maker"`
	Side       string `json:"side"`
	Outcome    int    `json:"outcome"`
	Price      string `json:"price"`
	Amount     string `json:"amount"`
	Salt       string `json:"salt"`
	Nonce      int64  `json:"nonce"`
	Expiration int64  `json:"expiration"`
	Signature  string `json:"signature,omitempty"`
}

// ctfOrderPayload is the wire shape of the on-chain order tuple. All uint256
// fields travel as decimal strings.
type ctfOrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature,omitempty"`
}

// onChainExecution carries everything the taker needs to settle a match.
type onChainExecution struct {
	CTFOrder       ctfOrderPayload `json:"ctfOrder"`
	MakerOrder     orderPayload    `json:"makerOrder"`
	MakerSignature string          `json:"makerSignature,omitempty"`
	FillAmount     string          `json:"fillAmount"`
}

type submitResponse struct {
	Success          bool              `json:"success"`
	Matched          bool              `json:"matched"`
	Error            string            `json:"error,omitempty"`
	Order            orderPayload      `json:"order"`
	OnChainExecution *onChainExecution `json:"onChainExecution,omitempty"`
}

type signaturePatch struct {
	Signature string `json:"signature"`
}

func toOrderPayload(o domain.Order) orderPayload {
	return orderPayload{
		OrderID:    o.ID,
		MarketID:   o.MarketID,
		QuestionID: o.QuestionID,
		Maker:      o.Maker,
		Side:       string(o.Side),
		Outcome:    int(o.Outcome),
		Price:      domain.FormatTicks(o.PriceTicks),
		Amount:     domain.FormatTicks(o.AmountTicks),
		Salt:       o.Salt,
		Nonce:      o.Nonce,
		Expiration: o.Expiration,
		Signature:  o.Signature,
	}
}

func fromOrderPayload(p orderPayload) (domain.Order, error) {
	priceTicks, err := domain.ParseTicks(p.Price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("venue: order %s: price: %w", p.OrderID, err)
	}
	amountTicks, err := domain.ParseTicks(p.Amount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("venue: order %s: amount: %w", p.OrderID, err)
	}
	return domain.Order{
		ID:          p.OrderID,
		MarketID:    p.MarketID,
		QuestionID:  p.QuestionID,
		Maker:       p.Maker,
		Side:        domain.OrderSide(p.Side),
		Outcome:     domain.Outcome(p.Outcome),
		PriceTicks:  priceTicks,
		AmountTicks: amountTicks,
		Salt:        p.Salt,
		Nonce:       p.Nonce,
		Expiration:  p.Expiration,
		Signature:   p.Signature,
		Status:      domain.OrderStatusResting,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func fromCTFPayload(p ctfOrderPayload) (domain.CTFOrder, error) {
	parse := func(field, s string) (*big.Int, error) {
		if s == "" {
			return new(big.Int), nil
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("venue: ctf order: %s %q is not a decimal integer", field, s)
		}
		return n, nil
	}

	out := domain.CTFOrder{
		Maker:         p.Maker,
		Signer:        p.Signer,
		Taker:         p.Taker,
		Side:          p.Side,
		SignatureType: p.SignatureType,
		Signature:     p.Signature,
	}
	var err error
	if out.Salt, err = parse("salt", p.Salt); err != nil {
		return domain.CTFOrder{}, err
	}
	if out.TokenID, err = parse("tokenId", p.TokenID); err != nil {
		return domain.CTFOrder{}, err
	}
	if out.MakerAmount, err = parse("makerAmount", p.MakerAmount); err != nil {
		return domain.CTFOrder{}, err
	}
	if out.TakerAmount, err = parse("takerAmount", p.TakerAmount); err != nil {
		return domain.CTFOrder{}, err
	}
	if out.Expiration, err = parse("expiration", p.Expiration); err != nil {
		return domain.CTFOrder{}, err
	}
	if out.Nonce, err = parse("nonce", p.Nonce); err != nil {
		return domain.CTFOrder{}, err
	}
	if out.FeeRateBps, err = parse("feeRateBps", p.FeeRateBps); err != nil {
		return domain.CTFOrder{}, err
	}
	return out, nil
}

// toMatchedFill assembles the domain fill from a matched response. The taker
// order is the one we just submitted; the maker side comes off the wire.
func toMatchedFill(taker domain.Order, exec *onChainExecution) (domain.MatchedFill, error) {
	makerOrder, err := fromOrderPayload(exec.MakerOrder)
	if err != nil {
		return domain.MatchedFill{}, err
	}
	ctf, err := fromCTFPayload(exec.CTFOrder)
	if err != nil {
		return domain.MatchedFill{}, err
	}
	fillTicks, err := domain.ParseTicks(exec.FillAmount)
	if err != nil {
		return domain.MatchedFill{}, fmt.Errorf("venue: fill amount: %w", err)
	}

	sig := exec.MakerSignature
	if sig == "" {
		sig = exec.CTFOrder.Signature
	}
	return domain.MatchedFill{
		TakerOrder:      taker,
		MakerOrder:      makerOrder,
		CTFOrder:        ctf,
		FillAmountTicks: fillTicks,
		MakerSignature:  sig,
	}, nil
}
