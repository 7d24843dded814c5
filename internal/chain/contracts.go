package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// Minimal ABI fragments for the three contracts. Only the entrypoints this
// client actually calls are declared.
const (
	erc20ABIJSON = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	conditionalTokensABIJSON = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getOutcomeSlotCount","type":"function","stateMutability":"view","inputs":[{"name":"conditionId","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"splitPosition","type":"function","stateMutability":"nonpayable","inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"partition","type":"uint256[]"},{"name":"amount","type":"uint256"}],"outputs":[]}
	]`

	exchangeABIJSON = `[
		{"name":"fillOrder","type":"function","stateMutability":"nonpayable","inputs":[
			{"name":"order","type":"tuple","components":[
				{"name":"salt","type":"uint256"},
				{"name":"maker","type":"address"},
				{"name":"signer","type":"address"},
				{"name":"taker","type":"address"},
				{"name":"tokenId","type":"uint256"},
				{"name":"makerAmount","type":"uint256"},
				{"name":"takerAmount","type":"uint256"},
				{"name":"expiration","type":"uint256"},
				{"name":"nonce","type":"uint256"},
				{"name":"feeRateBps","type":"uint256"},
				{"name":"side","type":"uint8"},
				{"name":"signatureType","type":"uint8"},
				{"name":"signature","type":"bytes"}
			]},
			{"name":"fillAmount","type":"uint256"}
		],"outputs":[]}
	]`
)

var (
	erc20ABI    = mustABI(erc20ABIJSON)
	ctfABI      = mustABI(conditionalTokensABIJSON)
	exchangeABI = mustABI(exchangeABIJSON)
)

// mustABI parses an embedded ABI fragment. The constants above are fixed at
// compile time, so a parse failure is a programming error.
func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("chain: parse embedded abi: %v", err))
	}
	return parsed
}

// exchangeOrder mirrors the exchange contract's Order tuple for ABI packing.
// Field order must match the components list above.
type exchangeOrder struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenId       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
	Signature     []byte
}

// toExchangeOrder converts a domain CTFOrder plus its hex signature into the
// packed tuple shape.
func toExchangeOrder(o domain.CTFOrder, signatureHex string) (exchangeOrder, error) {
	sig := common.FromHex(signatureHex)
	if len(sig) != 65 {
		return exchangeOrder{}, fmt.Errorf("chain: %w: exchange signature must be 65 bytes, got %d",
			domain.ErrInvalidOrderParams, len(sig))
	}
	return exchangeOrder{
		Salt:          orZero(o.Salt),
		Maker:         common.HexToAddress(o.Maker),
		Signer:        common.HexToAddress(o.Signer),
		Taker:         common.HexToAddress(o.Taker),
		TokenId:       orZero(o.TokenID),
		MakerAmount:   orZero(o.MakerAmount),
		TakerAmount:   orZero(o.TakerAmount),
		Expiration:    orZero(o.Expiration),
		Nonce:         orZero(o.Nonce),
		FeeRateBps:    orZero(o.FeeRateBps),
		Side:          uint8(o.Side),
		SignatureType: uint8(o.SignatureType),
		Signature:     sig,
	}, nil
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}

// TokenID derives the outcome-token id for (conditionId, outcomeIndex) as
// uint256(keccak256(conditionId || indexSet)) with indexSet = 1 << outcome.
// This must stay bit-for-bit identical to the exchange contract's registry
// derivation; a drift here makes fills target the wrong asset.
func TokenID(conditionID string, outcome domain.Outcome) (*big.Int, error) {
	cond, err := ConditionBytes(conditionID)
	if err != nil {
		return nil, err
	}
	indexSet := new(big.Int).Lsh(big.NewInt(1), uint(outcome))
	buf := make([]byte, 0, 64)
	buf = append(buf, cond[:]...)
	buf = append(buf, common.LeftPadBytes(indexSet.Bytes(), 32)...)
	return new(big.Int).SetBytes(ethcrypto.Keccak256(buf)), nil
}

// ConditionBytes parses a 0x-prefixed 32-byte condition id.
func ConditionBytes(conditionID string) ([32]byte, error) {
	var out [32]byte
	raw := common.FromHex(conditionID)
	if len(raw) != 32 {
		return out, fmt.Errorf("chain: %w: condition id must be 32 bytes, got %d",
			domain.ErrConditionUnresolvable, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// fullIndexSetPartition is the partition passed to splitPosition: both
// single-outcome index sets, so a split always yields one complete set.
func fullIndexSetPartition() []*big.Int {
	return []*big.Int{big.NewInt(1), big.NewInt(2)}
}
