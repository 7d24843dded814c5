package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// BalanceReader reads live balances from the chain.
type BalanceReader interface {
	CollateralBalance(ctx context.Context, account string) (*big.Int, error)
	CollateralDecimals() int
}

// SessionProvider reports the active wallet session.
type SessionProvider interface {
	Session() domain.WalletSession
}

// BalanceHandler serves the live balance endpoint.
type BalanceHandler struct {
	reader  BalanceReader
	session SessionProvider
	logger  *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler.
func NewBalanceHandler(reader BalanceReader, session SessionProvider, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{
		reader:  reader,
		session: session,
		logger:  logger.With(slog.String("component", "balance_handler")),
	}
}

// GetBalances returns the active account's collateral balance. Balances are
// always read live, never cached.
// GET /api/balances
func (h *BalanceHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	session := h.session.Session()

	balance, err := h.reader.CollateralBalance(r.Context(), session.Address)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ticks := domain.BaseUnitsToTicks(balance, h.reader.CollateralDecimals())

	writeJSON(w, http.StatusOK, map[string]any{
		"address":    session.Address,
		"chain_id":   session.ChainID,
		"collateral": domain.FormatTicks(ticks),
	})
}
