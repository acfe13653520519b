package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwikikusuma/shoping-fulfillment/internal/order/app"
	"github.com/dwikikusuma/shoping-fulfillment/internal/order/domain"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/postgres"
)

type OrderRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

var _ app.Store = (*OrderRepo)(nil)

func (r *OrderRepo) execTX(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func itemsInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func (r *OrderRepo) Create(ctx context.Context, o domain.Order, adjs []domain.StockAdjustment, ev domain.OutboxEvent) (domain.Order, []domain.StockAdjustment, error) {
	o.Version = 1
	rows := make([]adjustmentModel, 0, len(adjs))
	for _, a := range adjs {
		rows = append(rows, toAdjustmentModel(a))
	}

	err := r.execTX(ctx, func(tx *gorm.DB) error {
		m := toOrderModel(o)
		if err := tx.Create(&m).Error; err != nil {
			if o.IdempotencyKey != "" && postgres.IsUniqueViolation(err) {
				return app.ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("failed to create order: %w", err)
		}

		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to create stock adjustments: %w", err)
			}
		}

		evm := toEventModel(ev)
		if err := tx.Create(&evm).Error; err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, nil, err
	}

	created := make([]domain.StockAdjustment, 0, len(rows))
	for _, row := range rows {
		created = append(created, row.toDomain())
	}
	return o, created, nil
}

func (r *OrderRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	if !postgres.ValidID(id) {
		return domain.Order{}, apperr.ErrOrderNotFound.With("order not found with id: %s", id)
	}
	var m orderModel
	err := r.db.WithContext(ctx).Preload("Items", itemsInOrder).Where("id = ?", id).Take(&m).Error
	if postgres.IsNotFound(err) {
		return domain.Order{}, apperr.ErrOrderNotFound.With("order not found with id: %s", id)
	}
	if err != nil {
		return domain.Order{}, err
	}
	return m.toDomain(), nil
}

func (r *OrderRepo) GetByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error) {
	var m orderModel
	err := r.db.WithContext(ctx).Preload("Items", itemsInOrder).
		Where("user_id = ? AND idempotency_key = ?", userID, key).Take(&m).Error
	if postgres.IsNotFound(err) {
		return domain.Order{}, apperr.ErrOrderNotFound.With("no order for idempotency key %s", key)
	}
	if err != nil {
		return domain.Order{}, err
	}
	return m.toDomain(), nil
}

func (r *OrderRepo) list(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]domain.Order, error) {
	var ms []orderModel
	err := r.db.WithContext(ctx).Scopes(scope).Preload("Items", itemsInOrder).
		Order("order_date DESC").Order("id").Find(&ms).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB { return db.Where("user_id = ?", userID) })
}

func (r *OrderRepo) ListAll(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB { return db })
}

func (r *OrderRepo) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Order, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", string(status)) })
}

func (r *OrderRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&orderModel{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// bumpVersion applies updates only when the stored version still matches.
func bumpVersion(tx *gorm.DB, o domain.Order, updates map[string]any) error {
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now().UTC()

	res := tx.Model(&orderModel{}).Where("id = ? AND version = ?", o.ID, o.Version).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := tx.Model(&orderModel{}).Where("id = ?", o.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrOrderNotFound.With("order not found with id: %s", o.ID)
	}
	return apperr.ErrVersionConflict.With("order %s was modified concurrently", o.ID)
}

func (r *OrderRepo) UpdateStatus(ctx context.Context, o domain.Order, ev domain.OutboxEvent) (domain.Order, error) {
	err := r.execTX(ctx, func(tx *gorm.DB) error {
		if err := bumpVersion(tx, o, map[string]any{
			"status": string(o.Status),
			"notes":  o.Notes,
		}); err != nil {
			return err
		}
		evm := toEventModel(ev)
		return tx.Create(&evm).Error
	})
	if err != nil {
		return domain.Order{}, err
	}
	return r.Get(ctx, o.ID)
}

func (r *OrderRepo) Cancel(ctx context.Context, o domain.Order, skip []int64, restores []domain.StockAdjustment, ev domain.OutboxEvent) (domain.Order, error) {
	now := time.Now().UTC()
	err := r.execTX(ctx, func(tx *gorm.DB) error {
		if err := bumpVersion(tx, o, map[string]any{
			"status":          string(o.Status),
			"notes":           o.Notes,
			"inventory_state": string(o.InventoryState),
		}); err != nil {
			return err
		}

		rows := make([]adjustmentModel, 0, len(restores)+len(skip))
		for _, a := range restores {
			rows = append(rows, toAdjustmentModel(a))
		}

		for _, id := range skip {
			res := tx.Model(&adjustmentModel{}).
				Where("id = ? AND state = ? AND attempts = 0", id, string(domain.AdjustmentPending)).
				Updates(map[string]any{"state": string(domain.AdjustmentSkipped), "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				continue
			}

			// claimed after we looked: inventory may have applied it
			var reduce adjustmentModel
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&reduce).Error; err != nil {
				return err
			}
			st := domain.AdjustmentState(reduce.State)
			if st == domain.AdjustmentPending || st == domain.AdjustmentApplied {
				rows = append(rows, toAdjustmentModel(domain.RestoreFor(reduce.toDomain(), now)))
			}
		}

		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to create restores: %w", err)
			}
		}

		evm := toEventModel(ev)
		return tx.Create(&evm).Error
	})
	if err != nil {
		return domain.Order{}, err
	}
	return r.Get(ctx, o.ID)
}

func (r *OrderRepo) SetInventoryState(ctx context.Context, orderID string, status domain.Status, state domain.InventoryState) error {
	return r.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ? AND status = ?", orderID, string(status)).
		Updates(map[string]any{"inventory_state": string(state), "updated_at": time.Now().UTC()}).Error
}

func (r *OrderRepo) Adjustments(ctx context.Context, orderID string) ([]domain.StockAdjustment, error) {
	var ms []adjustmentModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&ms).Error; err != nil {
		return nil, err
	}
	return adjustmentsToDomain(ms), nil
}

func (r *OrderRepo) Due(ctx context.Context, now time.Time, limit, maxAttempts int) ([]domain.StockAdjustment, error) {
	var ms []adjustmentModel
	err := r.db.WithContext(ctx).
		Where("state = ? AND next_attempt_at <= ? AND attempts < ?", string(domain.AdjustmentPending), now, maxAttempts).
		Order("id").Limit(limit).Find(&ms).Error
	if err != nil {
		return nil, err
	}
	return adjustmentsToDomain(ms), nil
}

func (r *OrderRepo) Claim(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&adjustmentModel{}).
		Where("id = ? AND state = ?", id, string(domain.AdjustmentPending)).
		Updates(map[string]any{"attempts": gorm.Expr("attempts + 1"), "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *OrderRepo) SaveOutcome(ctx context.Context, adj domain.StockAdjustment) error {
	return r.db.WithContext(ctx).Model(&adjustmentModel{}).
		Where("id = ? AND state = ?", adj.ID, string(domain.AdjustmentPending)).
		Updates(map[string]any{
			"state":           string(adj.State),
			"last_error":      adj.LastError,
			"next_attempt_at": adj.NextAttemptAt,
			"updated_at":      adj.UpdatedAt,
		}).Error
}

func (r *OrderRepo) PendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	var ms []eventModel
	if err := r.db.WithContext(ctx).Where("sent_at IS NULL").Order("id").Limit(limit).Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OutboxEvent, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *OrderRepo) MarkSent(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&eventModel{}).Where("id IN ?", ids).Update("sent_at", at).Error
}

func (r *OrderRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func adjustmentsToDomain(ms []adjustmentModel) []domain.StockAdjustment {
	out := make([]domain.StockAdjustment, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toDomain())
	}
	return out
}
