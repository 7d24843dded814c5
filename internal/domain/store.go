package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists off-chain orders.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	UpdateSignature(ctx context.Context, id string, signature string) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByMaker(ctx context.Context, maker string, opts ListOpts) ([]Order, error)
	ListByStatus(ctx context.Context, status OrderStatus, opts ListOpts) ([]Order, error)
}

// SettlementStore persists the settlement state machine's progress so a fill
// can be re-attempted idempotently after a crash.
type SettlementStore interface {
	Create(ctx context.Context, s Settlement) error
	UpdateState(ctx context.Context, id string, state SettlementState, txHash, revertReason string) error
	GetByID(ctx context.Context, id string) (Settlement, error)
	GetByFill(ctx context.Context, takerOrderID, makerOrderID string, fillAmountTicks int64) (Settlement, error)
	ListUnsettled(ctx context.Context, opts ListOpts) ([]Settlement, error)
	ListBefore(ctx context.Context, cutoff time.Time, opts ListOpts) ([]Settlement, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time, opts ListOpts) ([]AuditEntry, error)
}
