package inventory

import "context"

// StockOp is one stock mutation. OperationID is forwarded as the
// Idempotency-Key so a retried call is applied at most once.
type StockOp struct {
	OperationID string
	ProductID   string
	Quantity    int
}

// Gateway is the inventory contract used by both services.
//
// ReduceStock and RestoreStock return nil when the mutation was applied,
// an error matching apperr.ErrStockRejected when inventory refused it, and
// any other error when the outcome is unknown.
type Gateway interface {
	CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error)
	ReduceStock(ctx context.Context, op StockOp) error
	RestoreStock(ctx context.Context, op StockOp) error
}
