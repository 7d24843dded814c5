package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomelab/tradeflow/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, market_id, question_id, maker, side, outcome,
			price_ticks, amount_ticks, salt, nonce, expiration,
			signature, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.MarketID, o.QuestionID, o.Maker,
		string(o.Side), int16(o.Outcome),
		o.PriceTicks, o.AmountTicks, o.Salt, o.Nonce, o.Expiration,
		o.Signature, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus changes the status of an existing order.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateSignature attaches the venue signature to an existing order.
func (s *OrderStore) UpdateSignature(ctx context.Context, id string, signature string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET signature = $1, updated_at = NOW() WHERE id = $2`,
		signature, id)
	if err != nil {
		return fmt.Errorf("postgres: update order signature %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, market_id, question_id, maker, side, outcome,
	price_ticks, amount_ticks, salt, nonce, expiration,
	signature, status, created_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var side, status string
	var outcome int16

	err := scanner.Scan(
		&o.ID, &o.MarketID, &o.QuestionID, &o.Maker,
		&side, &outcome,
		&o.PriceTicks, &o.AmountTicks, &o.Salt, &o.Nonce, &o.Expiration,
		&o.Signature, &status, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.Outcome = domain.Outcome(outcome)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByMaker returns orders created by the given address, newest first.
func (s *OrderStore) ListByMaker(ctx context.Context, maker string, opts domain.ListOpts) ([]domain.Order, error) {
	query, args := listQuery(
		`SELECT `+orderSelectCols+` FROM orders WHERE maker = $1`,
		[]any{maker}, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by maker: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by maker: %w", err)
	}
	return orders, nil
}

// ListByStatus returns orders in the given status, newest first.
func (s *OrderStore) ListByStatus(ctx context.Context, status domain.OrderStatus, opts domain.ListOpts) ([]domain.Order, error) {
	query, args := listQuery(
		`SELECT `+orderSelectCols+` FROM orders WHERE status = $1`,
		[]any{string(status)}, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by status: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by status: %w", err)
	}
	return orders, nil
}

// listQuery appends time-window, order, and pagination clauses shared by the
// list endpoints. The base query must already hold len(args) placeholders.
func listQuery(base string, args []any, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1

	if opts.Since != nil {
		base += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		base += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	base += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		base += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		base += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return base, args
}
