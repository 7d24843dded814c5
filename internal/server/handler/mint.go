package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// MintAPI is the slice of the mint service the HTTP layer depends on.
type MintAPI interface {
	Mint(ctx context.Context, conditionID, amount string) (domain.TxReceipt, error)
}

// MintHandler serves the position minting endpoint.
type MintHandler struct {
	mints  MintAPI
	logger *slog.Logger
}

// NewMintHandler creates a MintHandler.
func NewMintHandler(mints MintAPI, logger *slog.Logger) *MintHandler {
	return &MintHandler{
		mints:  mints,
		logger: logger.With(slog.String("component", "mint_handler")),
	}
}

type mintRequest struct {
	ConditionID string `json:"condition_id"`
	Amount      string `json:"amount"`
}

// Mint splits collateral into a full outcome-token set.
// POST /api/mint
func (h *MintHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var body mintRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	receipt, err := h.mints.Mint(r.Context(), body.ConditionID, body.Amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "mint failed",
			slog.String("condition_id", body.ConditionID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"tx_hash":      receipt.TxHash,
		"block_number": receipt.BlockNumber,
		"gas_used":     receipt.GasUsed,
	})
}
