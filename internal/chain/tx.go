package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// receiptPollInterval is how often a pending transaction is re-checked.
const receiptPollInterval = 2 * time.Second

// ApproveCollateral grants the conditional-tokens contract an allowance over
// the account's collateral. This is itself a blocking on-chain transaction
// that must be mined before a split can succeed.
func (c *Client) ApproveCollateral(ctx context.Context, amount *big.Int) (domain.TxReceipt, error) {
	data, err := erc20ABI.Pack("approve", c.ctf, amount)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: pack approve: %w", err)
	}
	return c.sendAndWait(ctx, c.collateral, data, "approve")
}

// SplitPosition converts collateral into one full set of both outcome tokens
// for the condition. The partition is always the full index set, so the split
// can never yield a single side.
func (c *Client) SplitPosition(ctx context.Context, conditionID string, amount *big.Int) (domain.TxReceipt, error) {
	cond, err := ConditionBytes(conditionID)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	var parent [32]byte // root collection
	data, err := ctfABI.Pack("splitPosition", c.collateral, parent, cond, fullIndexSetPartition(), amount)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: pack splitPosition: %w", err)
	}
	return c.sendAndWait(ctx, c.ctf, data, "splitPosition")
}

// FillOrder executes the exchange fill entrypoint against the maker's signed
// on-chain order for fillAmount base units.
func (c *Client) FillOrder(ctx context.Context, order domain.CTFOrder, makerSignature string, fillAmount *big.Int) (domain.TxReceipt, error) {
	packed, err := toExchangeOrder(order, makerSignature)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	data, err := exchangeABI.Pack("fillOrder", packed, fillAmount)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: pack fillOrder: %w", err)
	}
	return c.sendAndWait(ctx, c.exchange, data, "fillOrder")
}

// sendAndWait estimates, signs, submits, and waits for one transaction. A
// failed estimate usually carries the revert reason, so it is decoded before
// any gas is spent; a mined-but-failed receipt is re-simulated at its block
// to recover the reason.
func (c *Client) sendAndWait(ctx context.Context, to common.Address, data []byte, label string) (domain.TxReceipt, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: %s: pending nonce: %w", label, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: %s: gas price: %w", label, err)
	}

	msg := ethereum.CallMsg{From: c.from, To: &to, Data: data}
	gasLimit, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		if reason := revertReasonFromError(err); reason != "" {
			return domain.TxReceipt{}, fmt.Errorf("chain: %s: %w: %s", label, domain.ErrTxReverted, reason)
		}
		return domain.TxReceipt{}, fmt.Errorf("chain: %s: estimate gas: %w", label, err)
	}
	// Headroom for state drift between estimate and inclusion.
	gasLimit += gasLimit / 5

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: %s: sign tx: %w", label, err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: %s: send tx: %w", label, err)
	}

	c.logger.InfoContext(ctx, "transaction submitted",
		slog.String("call", label),
		slog.String("tx_hash", signed.Hash().Hex()),
	)

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: %s: wait mined: %w", label, err)
	}

	out := domain.TxReceipt{
		TxHash:      signed.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}
	if !out.Success {
		reason := c.replayForReason(ctx, msg, receipt.BlockNumber)
		if reason == "" {
			reason = "execution reverted"
		}
		return out, fmt.Errorf("chain: %s: %w: %s (tx %s)", label, domain.ErrTxReverted, reason, out.TxHash)
	}
	return out, nil
}

// waitMined polls for the transaction receipt until it is mined or the
// context is cancelled.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// replayForReason re-executes a failed transaction as an eth_call at its
// block to recover the revert string. Best effort: an empty string means the
// node would not reveal a reason.
func (c *Client) replayForReason(ctx context.Context, msg ethereum.CallMsg, block *big.Int) string {
	out, err := c.eth.CallContract(ctx, msg, block)
	if err != nil {
		return revertReasonFromError(err)
	}
	return DecodeRevertReason(out)
}

// revertSelector is the 4-byte selector of Error(string).
var revertSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

// DecodeRevertReason extracts the human-readable string from Error(string)
// revert data. Returns "" when the data is not a standard revert payload.
func DecodeRevertReason(data []byte) string {
	if len(data) < 4+32+32 || !bytes.Equal(data[:4], revertSelector) {
		return ""
	}
	body := data[4:]
	offset := new(big.Int).SetBytes(body[:32]).Uint64()
	if offset+32 > uint64(len(body)) {
		return ""
	}
	length := new(big.Int).SetBytes(body[offset : offset+32]).Uint64()
	if offset+32+length > uint64(len(body)) {
		return ""
	}
	return string(body[offset+32 : offset+32+length])
}

// revertReasonFromError digs revert data out of RPC error payloads. Geth-like
// nodes attach the ABI-encoded data via an ErrorData method; others embed the
// reason in the message after "execution reverted:".
func revertReasonFromError(err error) string {
	type dataError interface {
		ErrorData() interface{}
	}
	var de dataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if reason := DecodeRevertReason(common.FromHex(s)); reason != "" {
				return reason
			}
		}
	}
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted:"); i >= 0 {
		return strings.TrimSpace(msg[i+len("execution reverted:"):])
	}
	return ""
}
