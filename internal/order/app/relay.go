package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwikikusuma/shoping-fulfillment/internal/order/domain"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/logger"
)

type RelayStats struct {
	Applied  int
	Rejected int
	Unknown  int
	Skipped  int
	Deferred int
	Orders   int
}

// ProcessDueAdjustments retries every due PENDING adjustment with its stored
// operation id, then recomputes the inventory state of the orders it touched.
func (s *Service) ProcessDueAdjustments(ctx context.Context, limit, maxAttempts int) (RelayStats, error) {
	var stats RelayStats

	due, err := s.store.Due(ctx, s.now(), limit, maxAttempts)
	if err != nil {
		return stats, fmt.Errorf("load due adjustments: %w", err)
	}

	var touched []string
	seen := map[string]bool{}
	for _, adj := range due {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !seen[adj.OrderID] {
			seen[adj.OrderID] = true
			touched = append(touched, adj.OrderID)
		}
		s.retry(ctx, adj.OrderID, adj.ID, maxAttempts, &stats)
	}

	for _, id := range touched {
		if err := s.RefreshInventoryState(ctx, id); err != nil {
			logger.FromContext(ctx).Warn("refresh inventory state", slog.String("order_id", id), slog.Any("err", err))
		}
	}
	stats.Orders = len(touched)
	return stats, nil
}

func (s *Service) retry(ctx context.Context, orderID string, adjID int64, maxAttempts int, stats *RelayStats) {
	log := logger.FromContext(ctx).With(slog.String("order_id", orderID), slog.Int64("adjustment_id", adjID))

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		log.Error("load order for relay", slog.Any("err", err))
		return
	}
	adjs, err := s.store.Adjustments(ctx, orderID)
	if err != nil {
		log.Error("load adjustments for relay", slog.Any("err", err))
		return
	}

	idx := -1
	for i := range adjs {
		if adjs[i].ID == adjID {
			idx = i
			break
		}
	}
	if idx < 0 || adjs[idx].State != domain.AdjustmentPending {
		return
	}
	adj := &adjs[idx]
	now := s.now()

	switch adj.Kind {
	case domain.AdjustmentRestore:
		reduce, ok := domain.FindReduce(adjs, *adj)
		switch {
		case ok && reduce.State == domain.AdjustmentPending:
			// the reduction has to settle before it can be undone
			adj.NextAttemptAt = reduce.NextAttemptAt
			if !adj.NextAttemptAt.After(now) {
				adj.NextAttemptAt = now.Add(s.backoff.Base)
			}
			s.save(ctx, *adj)
			stats.Deferred++
			return
		case !ok || reduce.State != domain.AdjustmentApplied:
			adj.MarkSkipped(now)
			s.save(ctx, *adj)
			stats.Skipped++
			return
		}
	case domain.AdjustmentReduce:
		if o.Status == domain.StatusCancelled && !adj.Attempted() {
			adj.MarkSkipped(now)
			s.save(ctx, *adj)
			stats.Skipped++
			return
		}
	}

	switch s.apply(ctx, adj, sourceRelay) {
	case outcomeApplied:
		stats.Applied++
	case outcomeRejected:
		stats.Rejected++
		if adj.Kind == domain.AdjustmentRestore {
			log.Error("inventory refused stock restore", slog.String("product_id", adj.ProductID), slog.Int("quantity", adj.Quantity))
			return
		}
		if o.Status != domain.StatusCancelled {
			log.Warn("inventory rejected pending reduction, compensating", slog.String("product_id", adj.ProductID))
			s.compensate(ctx, orderID, "inventory rejected reservation for product "+adj.ProductID)
		}
	case outcomeUnknown:
		stats.Unknown++
		if adj.Attempts >= maxAttempts {
			log.Error("stock adjustment exhausted retries",
				slog.String("operation_id", adj.OperationID),
				slog.String("kind", string(adj.Kind)),
				slog.Int("attempts", adj.Attempts),
				slog.String("last_error", adj.LastError),
			)
		}
	}
}

func (s *Service) save(ctx context.Context, adj domain.StockAdjustment) {
	if err := s.store.SaveOutcome(ctx, adj); err != nil {
		logger.FromContext(ctx).Error("save stock adjustment", slog.Int64("adjustment_id", adj.ID), slog.Any("err", err))
	}
}

func (s *Service) RefreshInventoryState(ctx context.Context, orderID string) error {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	adjs, err := s.store.Adjustments(ctx, orderID)
	if err != nil {
		return err
	}
	if state := domain.SummarizeInventory(o.Status, adjs); state != o.InventoryState {
		return s.store.SetInventoryState(ctx, orderID, o.Status, state)
	}
	return nil
}

// PublishEvents hands pending outbox events to publish and marks the ones it
// accepted as sent. publish must be safe to call again for the same events.
func (s *Service) PublishEvents(ctx context.Context, limit int, publish func(context.Context, []domain.OutboxEvent) error) (int, error) {
	events, err := s.store.PendingEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load outbox: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := publish(ctx, events); err != nil {
		for _, ev := range events {
			s.metrics.OutboxPublished.WithLabelValues(ev.Topic, "error").Inc()
		}
		return 0, err
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
		s.metrics.OutboxPublished.WithLabelValues(ev.Topic, "sent").Inc()
	}
	if err := s.store.MarkSent(ctx, ids, s.now()); err != nil {
		return 0, fmt.Errorf("mark outbox sent: %w", err)
	}
	return len(events), nil
}
