package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Create inserts a new settlement record. The unique constraint on
// (taker_order_id, maker_order_id, fill_amount_ticks) rejects duplicate
// records for the same fill.
func (s *SettlementStore) Create(ctx context.Context, st domain.Settlement) error {
	const query = `
		INSERT INTO settlements (
			id, taker_order_id, maker_order_id, fill_amount_ticks,
			state, tx_hash, revert_reason, fill_payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err := s.pool.Exec(ctx, query,
		st.ID, st.TakerOrderID, st.MakerOrderID, st.FillAmountTicks,
		string(st.State), st.TxHash, st.RevertReason, st.FillPayload, st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create settlement %s: %w", st.ID, err)
	}
	return nil
}

// UpdateState advances the settlement state machine and records the tx hash
// and revert reason where known.
func (s *SettlementStore) UpdateState(ctx context.Context, id string, state domain.SettlementState, txHash, revertReason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE settlements
		 SET state = $1, tx_hash = $2, revert_reason = $3, updated_at = NOW()
		 WHERE id = $4`,
		string(state), txHash, revertReason, id)
	if err != nil {
		return fmt.Errorf("postgres: update settlement state %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const settlementSelectCols = `id, taker_order_id, maker_order_id, fill_amount_ticks,
	state, tx_hash, revert_reason, fill_payload, created_at, updated_at`

func scanSettlementFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Settlement, error) {
	var st domain.Settlement
	var state string

	err := scanner.Scan(
		&st.ID, &st.TakerOrderID, &st.MakerOrderID, &st.FillAmountTicks,
		&state, &st.TxHash, &st.RevertReason, &st.FillPayload,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return domain.Settlement{}, err
	}
	st.State = domain.SettlementState(state)
	return st, nil
}

func scanSettlementRows(rows pgx.Rows) ([]domain.Settlement, error) {
	var out []domain.Settlement
	for rows.Next() {
		st, err := scanSettlementFromRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetByID retrieves a settlement by ID.
func (s *SettlementStore) GetByID(ctx context.Context, id string) (domain.Settlement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+settlementSelectCols+` FROM settlements WHERE id = $1`, id)

	st, err := scanSettlementFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settlement{}, domain.ErrNotFound
		}
		return domain.Settlement{}, fmt.Errorf("postgres: get settlement %s: %w", id, err)
	}
	return st, nil
}

// GetByFill retrieves the settlement record for one specific fill, if any.
func (s *SettlementStore) GetByFill(ctx context.Context, takerOrderID, makerOrderID string, fillAmountTicks int64) (domain.Settlement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+settlementSelectCols+` FROM settlements
		 WHERE taker_order_id = $1 AND maker_order_id = $2 AND fill_amount_ticks = $3`,
		takerOrderID, makerOrderID, fillAmountTicks)

	st, err := scanSettlementFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settlement{}, domain.ErrNotFound
		}
		return domain.Settlement{}, fmt.Errorf("postgres: get settlement by fill: %w", err)
	}
	return st, nil
}

// ListUnsettled returns settlements that have not reached a terminal state,
// oldest first so stalled fills surface before fresh ones.
func (s *SettlementStore) ListUnsettled(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementSelectCols + ` FROM settlements
		WHERE state NOT IN ('confirmed', 'reverted')
		ORDER BY created_at ASC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unsettled: %w", err)
	}
	defer rows.Close()

	out, err := scanSettlementRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan unsettled: %w", err)
	}
	return out, nil
}

// ListBefore returns settlements created before the cutoff, oldest first.
// Used by the archiver to page through records eligible for cold storage.
func (s *SettlementStore) ListBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementSelectCols + ` FROM settlements
		WHERE created_at < $1
		ORDER BY created_at ASC`
	args := []any{cutoff}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	out, err := scanSettlementRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settlements before cutoff: %w", err)
	}
	return out, nil
}
