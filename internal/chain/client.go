// Package chain wraps the JSON-RPC connection to the settlement chain and
// exposes the four contract surfaces this system touches: the collateral
// ERC-20, the conditional-tokens ledger (ERC-1155 + split), and the exchange
// fill entrypoint. All reads go through eth_call; the only state mutations
// are the approve/split pair and the exchange fill.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Config holds chain endpoints and contract addresses.
type Config struct {
	RPCURL             string
	ChainID            int64
	CollateralToken    string // ERC-20 stablecoin backing outcome tokens
	ConditionalTokens  string // ERC-1155 ledger with splitPosition
	Exchange           string // fill entrypoint, also the EIP-712 verifier
	CollateralDecimals int    // 6 for the supported stablecoin
}

// Client is the RPC client bound to one signing account.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address

	collateral common.Address
	ctf        common.Address
	exchange   common.Address
	decimals   int

	logger *slog.Logger
}

// Dial connects to the RPC endpoint, verifies the remote chain id matches the
// configured one, and returns a Client signing with the given key. A chain id
// mismatch is fatal: balance reads against the wrong network must never gate
// an order.
func Dial(ctx context.Context, cfg Config, privateKeyHex string, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	remoteID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: query chain id: %w", err)
	}
	if remoteID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("chain: configured chain id %d but endpoint reports %s", cfg.ChainID, remoteID)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}

	decimals := cfg.CollateralDecimals
	if decimals == 0 {
		decimals = 6
	}

	return &Client{
		eth:        eth,
		chainID:    remoteID,
		key:        key,
		from:       ethcrypto.PubkeyToAddress(key.PublicKey),
		collateral: common.HexToAddress(cfg.CollateralToken),
		ctf:        common.HexToAddress(cfg.ConditionalTokens),
		exchange:   common.HexToAddress(cfg.Exchange),
		decimals:   decimals,
		logger:     logger.With(slog.String("component", "chain")),
	}, nil
}

// From returns the transaction-sending account.
func (c *Client) From() common.Address {
	return c.from
}

// ChainID returns the connected chain's id.
func (c *Client) ChainID() int64 {
	return c.chainID.Int64()
}

// CollateralDecimals returns the collateral token's decimal count.
func (c *Client) CollateralDecimals() int {
	return c.decimals
}

// ExchangeAddress returns the exchange contract address (the EIP-712
// verifying contract).
func (c *Client) ExchangeAddress() common.Address {
	return c.exchange
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
