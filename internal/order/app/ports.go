package app

import (
	"context"
	"errors"
	"time"

	"github.com/dwikikusuma/shoping-fulfillment/internal/order/domain"
)

// ErrDuplicateIdempotencyKey is returned by Create when another order of the
// same user already holds the key.
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

type OrderRepo interface {
	// Create stores the order, its REDUCE adjustments and the creation event
	// in one transaction. Adjustments come back with their ids assigned.
	Create(ctx context.Context, o domain.Order, adjs []domain.StockAdjustment, ev domain.OutboxEvent) (domain.Order, []domain.StockAdjustment, error)
	Get(ctx context.Context, id string) (domain.Order, error)
	// GetByIdempotencyKey only sees keys of userID; keys of other users are
	// reported as apperr.ErrOrderNotFound.
	GetByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
	ListByStatus(ctx context.Context, status domain.Status) ([]domain.Order, error)
	CountByUser(ctx context.Context, userID string) (int64, error)

	// UpdateStatus saves status and notes when o.Version still matches, and
	// returns apperr.ErrVersionConflict otherwise.
	UpdateStatus(ctx context.Context, o domain.Order, ev domain.OutboxEvent) (domain.Order, error)

	// Cancel saves the CANCELLED order (version checked) with its event and
	// restores in one transaction. Each id in skip is moved to SKIPPED only if
	// it is still PENDING and unclaimed; otherwise a RESTORE is enqueued for it.
	Cancel(ctx context.Context, o domain.Order, skip []int64, restores []domain.StockAdjustment, ev domain.OutboxEvent) (domain.Order, error)

	// SetInventoryState is a no-op when the order is no longer in status.
	SetInventoryState(ctx context.Context, orderID string, status domain.Status, state domain.InventoryState) error
}

type AdjustmentRepo interface {
	Adjustments(ctx context.Context, orderID string) ([]domain.StockAdjustment, error)
	// Due lists PENDING adjustments whose next attempt is due and which have
	// been attempted fewer than maxAttempts times, oldest first.
	Due(ctx context.Context, now time.Time, limit, maxAttempts int) ([]domain.StockAdjustment, error)
	// Claim bumps the attempt counter of a PENDING adjustment. It reports
	// false when the row is no longer PENDING.
	Claim(ctx context.Context, id int64, now time.Time) (bool, error)
	// SaveOutcome persists state, last error and schedule of a PENDING row.
	SaveOutcome(ctx context.Context, adj domain.StockAdjustment) error
}

type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkSent(ctx context.Context, ids []int64, at time.Time) error
}

type Store interface {
	OrderRepo
	AdjustmentRepo
	Outbox
}
