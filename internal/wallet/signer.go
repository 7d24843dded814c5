package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

const (
	exchangeDomainName    = "CTF Exchange"
	exchangeDomainVersion = "1"
)

// Approver is the hook through which a human (or policy engine) confirms a
// signature request. Both signing paths block on it, so implementations must
// honour the context. Returning domain.ErrUserRejected (wrapped or not)
// cancels the signature cleanly.
type Approver interface {
	Approve(ctx context.Context, summary string) error
}

// AutoApprover approves every request. Used for unattended operation where
// the operator has accepted key custody risk up front.
type AutoApprover struct{}

// Approve implements Approver.
func (AutoApprover) Approve(ctx context.Context, summary string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("wallet: approval: %w", ctx.Err())
	default:
		return nil
	}
}

// Signer holds the secp256k1 key and produces both signature flavours: the
// venue's off-chain order signature and the EIP-712 exchange signature.
type Signer struct {
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	chainID      int64
	exchangeAddr common.Address
	domainSep    []byte // cached exchange domain separator
	approver     Approver
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key, the
// target chain ID, and the exchange contract address that anchors the EIP-712
// domain. A nil approver defaults to AutoApprover.
func NewSigner(privateKeyHex string, chainID int64, exchangeAddr string, approver Approver) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid private key: %w", err)
	}
	if approver == nil {
		approver = AutoApprover{}
	}

	s := &Signer{
		privateKey:   pk,
		address:      ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:      chainID,
		exchangeAddr: common.HexToAddress(exchangeAddr),
		approver:     approver,
	}
	s.domainSep = buildDomainSeparator(exchangeDomainName, exchangeDomainVersion, chainID, s.exchangeAddr)
	return s, nil
}

// Address returns the Ethereum address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Session returns the explicit signing context for this signer.
func (s *Signer) Session() domain.WalletSession {
	return domain.WalletSession{
		Address: s.address.Hex(),
		ChainID: s.chainID,
	}
}

// SignVenueOrder produces the off-chain signature the matching venue
// verifies: an EIP-191 personal-sign over the keccak digest of the order's
// canonical field encoding. The order's maker must equal the active signing
// address, checked before any approval prompt or signature is attempted.
func (s *Signer) SignVenueOrder(ctx context.Context, order domain.Order) (string, error) {
	if err := s.requireMaker(order.Maker); err != nil {
		return "", err
	}

	summary := fmt.Sprintf("%s %s %s @ %s", order.Side, domain.FormatTicks(order.AmountTicks),
		order.MarketID, domain.FormatTicks(order.PriceTicks))
	if err := s.approver.Approve(ctx, summary); err != nil {
		return "", fmt.Errorf("wallet: venue order %s: %w", order.ID, wrapRejection(err))
	}

	digest := VenueOrderDigest(order)
	prefixed := ethcrypto.Keccak256(
		concatBytes([]byte("\x19Ethereum Signed Message:\n32"), digest),
	)
	return s.signDigest(prefixed)
}

// SignExchangeOrder produces the EIP-712 typed-data signature over the
// exchange contract's domain for a derived on-chain order. The CTFOrder's
// signer field must equal the active signing address.
func (s *Signer) SignExchangeOrder(ctx context.Context, ctf domain.CTFOrder) (string, error) {
	if err := s.requireMaker(ctf.Signer); err != nil {
		return "", err
	}

	summary := fmt.Sprintf("exchange fill token=%s maker=%s taker=%s",
		ctf.TokenID, ctf.MakerAmount, ctf.TakerAmount)
	if err := s.approver.Approve(ctx, summary); err != nil {
		return "", fmt.Errorf("wallet: exchange order: %w", wrapRejection(err))
	}

	structHash := exchangeOrderStructHash(ctf)
	digest := eip712Hash(s.domainSep, structHash)
	return s.signDigest(digest)
}

// requireMaker fails fast with ErrSignerMismatch when the declared maker is
// not the active account, rather than producing a signature the venue or
// exchange would reject downstream.
func (s *Signer) requireMaker(maker string) error {
	if common.HexToAddress(maker) != s.address {
		return fmt.Errorf("wallet: %w: order maker %s, active account %s",
			domain.ErrSignerMismatch, maker, s.address.Hex())
	}
	return nil
}

// wrapRejection normalizes approver refusals onto domain.ErrUserRejected so
// callers can distinguish a user cancel from a signer mismatch. Context
// cancellations pass through untouched.
func wrapRejection(err error) error {
	if errors.Is(err, domain.ErrUserRejected) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUserRejected, err)
}

// VenueOrderDigest computes the keccak256 digest of an order's canonical
// field encoding. The venue recomputes the same digest server-side, so field
// order and formatting here are part of the wire contract.
func VenueOrderDigest(order domain.Order) []byte {
	canonical := strings.Join([]string{
		order.ID,
		order.MarketID,
		order.QuestionID,
		strings.ToLower(order.Maker),
		string(order.Side),
		fmt.Sprintf("%d", order.Outcome),
		domain.FormatTicks(order.PriceTicks),
		domain.FormatTicks(order.AmountTicks),
		order.Salt,
		fmt.Sprintf("%d", order.Nonce),
		fmt.Sprintf("%d", order.Expiration),
	}, "|")
	return ethcrypto.Keccak256([]byte(canonical))
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash,
// versionHash, chainId, verifyingContract)).
func buildDomainSeparator(name, version string, chainID int64, verifying common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(verifying.Bytes(), 32),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// exchangeOrderStructHash encodes and hashes a CTFOrder per EIP-712.
func exchangeOrderStructHash(o domain.CTFOrder) []byte {
	maker := common.HexToAddress(o.Maker)
	signer := common.HexToAddress(o.Signer)
	taker := common.HexToAddress(o.Taker)

	return ethcrypto.Keccak256(
		concatBytes(
			orderTypeHash,
			bigIntTo32Bytes(o.Salt),
			common.LeftPadBytes(maker.Bytes(), 32),
			common.LeftPadBytes(signer.Bytes(), 32),
			common.LeftPadBytes(taker.Bytes(), 32),
			bigIntTo32Bytes(o.TokenID),
			bigIntTo32Bytes(o.MakerAmount),
			bigIntTo32Bytes(o.TakerAmount),
			bigIntTo32Bytes(o.Expiration),
			bigIntTo32Bytes(o.Nonce),
			bigIntTo32Bytes(o.FeeRateBps),
			bigIntTo32Bytes(big.NewInt(int64(o.Side))),
			bigIntTo32Bytes(big.NewInt(int64(o.SignatureType))),
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("wallet: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; verifiers expect v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
// A nil value encodes as zero.
func bigIntTo32Bytes(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
