package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwikikusuma/shoping-fulfillment/internal/inventory"
	"github.com/dwikikusuma/shoping-fulfillment/internal/order/domain"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/logger"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/metrics"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/tracing"
)

const (
	sourceSaga  = "saga"
	sourceRelay = "relay"

	maxConflictRetries = 3
)

type Service struct {
	store   Store
	inv     inventory.Gateway
	metrics *metrics.Registry
	tracer  trace.Tracer
	backoff domain.Backoff
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Registry) Option {
	return func(s *Service) { s.metrics = m }
}

func WithBackoff(b domain.Backoff) Option {
	return func(s *Service) { s.backoff = b }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, inv inventory.Gateway, opts ...Option) *Service {
	s := &Service{
		store:   store,
		inv:     inv,
		tracer:  tracing.Tracer("order-service"),
		backoff: domain.DefaultBackoff,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New("order")
	}
	return s
}

// CreateOrder validates, checks availability for every item, persists the
// order with one pending REDUCE per item and then reduces stock item by item.
//
// A reduction inventory refuses cancels the order and restores whatever was
// already reduced. A reduction with an unknown outcome is left for the relay
// and shows up as RESERVATION_PENDING on the returned order.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("items", len(req.Items)),
	))
	defer span.End()
	log := logger.FromContext(ctx)

	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err == nil {
			log.Info("order already created for idempotency key", slog.String("order_id", existing.ID))
			return s.replay(ctx, existing, req)
		}
		if !errors.Is(err, apperr.ErrOrderNotFound) {
			return domain.Order{}, err
		}
	}

	if err := s.checkAvailability(ctx, req.Items); err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	order, err := domain.NewOrder(req, now)
	if err != nil {
		return domain.Order{}, err
	}
	adjs := make([]domain.StockAdjustment, 0, len(order.Items))
	for _, it := range order.Items {
		adjs = append(adjs, domain.NewAdjustment(domain.AdjustmentReduce, order.ID, it, now))
	}

	order, adjs, err = s.store.Create(ctx, order, adjs, domain.NewOrderEvent(domain.TopicOrderCreated, order, now))
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		existing, err := s.store.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err != nil {
			return domain.Order{}, err
		}
		return s.replay(ctx, existing, req)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))
	log = log.With(slog.String("order_id", order.ID))
	log.Info("order persisted, reducing stock")

	// the order exists now; a caller hanging up must not abandon the saga
	ctx = context.WithoutCancel(ctx)

	for i := range adjs {
		if s.apply(ctx, &adjs[i], sourceSaga) != outcomeRejected {
			continue
		}

		rejected := adjs[i]
		log.Warn("inventory rejected reduction, compensating",
			slog.String("product_id", rejected.ProductID),
			slog.String("reason", rejected.LastError),
		)
		s.compensate(ctx, order.ID, "inventory rejected reservation for product "+rejected.ProductID)
		return domain.Order{}, apperr.InsufficientStock(rejected.ProductID, rejected.Quantity, 0)
	}

	order.InventoryState = s.refresh(ctx, order.ID, order.Status, adjs)
	if order.InventoryState != domain.InventoryReserved {
		log.Warn("order created with reservation pending")
	}
	return order, nil
}

// replay answers a repeated idempotency key the way the first request was
// answered: the order itself, or the stock rejection that cancelled it.
func (s *Service) replay(ctx context.Context, existing domain.Order, req domain.CreateOrderRequest) (domain.Order, error) {
	if existing.RequestHash != req.Fingerprint() {
		return domain.Order{}, apperr.ErrKeyReused.With("idempotency key %s was already used for a different order", req.IdempotencyKey)
	}
	if existing.Status != domain.StatusCancelled || existing.InventoryState != domain.InventoryRejected {
		return existing, nil
	}

	adjs, err := s.store.Adjustments(ctx, existing.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load adjustments: %w", err)
	}
	for _, a := range adjs {
		if a.Kind == domain.AdjustmentReduce && a.State == domain.AdjustmentRejected {
			return domain.Order{}, apperr.InsufficientStock(a.ProductID, a.Quantity, 0)
		}
	}
	return domain.Order{}, apperr.ErrInsufficientStock.With("order %s was rejected by inventory", existing.ID)
}

func (s *Service) checkAvailability(ctx context.Context, items []domain.OrderItemRequest) error {
	for _, it := range items {
		ok, err := s.inv.CheckAvailability(ctx, it.ProductID, it.Quantity)
		if err != nil {
			if apperr.IsKind(err, apperr.KindUpstream) {
				return err
			}
			return apperr.ErrUpstreamUnavailable.Wrap(err)
		}
		if !ok {
			return apperr.InsufficientStock(it.ProductID, it.Quantity, 0)
		}
	}
	return nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) ListAll(ctx context.Context) ([]domain.Order, error) {
	return s.store.ListAll(ctx)
}

func (s *Service) ListByStatus(ctx context.Context, status string) ([]domain.Order, error) {
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.store.ListByStatus(ctx, st)
}

func (s *Service) CountByUser(ctx context.Context, userID string) (int64, error) {
	return s.store.CountByUser(ctx, userID)
}

// UpdateStatus applies one state machine move. CANCELLED goes through the
// cancellation saga so stock is released.
func (s *Service) UpdateStatus(ctx context.Context, id, status, notes string) (domain.Order, error) {
	next, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Order{}, err
	}

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if next == domain.StatusCancelled {
		return s.cancel(ctx, o, notes)
	}

	from := o.Status
	if err := o.TransitionTo(next, notes); err != nil {
		return domain.Order{}, err
	}
	saved, err := s.store.UpdateStatus(ctx, o, domain.NewOrderEvent(domain.TopicOrderStatus, o, s.now()))
	if err != nil {
		return domain.Order{}, err
	}
	logger.FromContext(ctx).Info("order status updated",
		slog.String("order_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(next)),
	)
	return saved, nil
}

// CancelOrder moves the order to CANCELLED before any stock is restored.
// Restore failures stay on the adjustment for the relay and are never
// returned to the caller.
func (s *Service) CancelOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return s.cancel(ctx, o, "")
}

func (s *Service) cancel(ctx context.Context, o domain.Order, notes string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel", trace.WithAttributes(attribute.String("order.id", o.ID)))
	defer span.End()

	if err := o.TransitionTo(domain.StatusCancelled, notes); err != nil {
		return domain.Order{}, err
	}

	adjs, err := s.store.Adjustments(ctx, o.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load adjustments: %w", err)
	}

	now := s.now()
	var skip []int64
	var restores []domain.StockAdjustment
	projected := make([]domain.StockAdjustment, 0, len(adjs))
	for _, a := range adjs {
		if a.Kind == domain.AdjustmentReduce {
			switch {
			case a.State == domain.AdjustmentPending && !a.Attempted():
				skip = append(skip, a.ID)
				a.MarkSkipped(now)
			case a.State == domain.AdjustmentPending, a.State == domain.AdjustmentApplied:
				restores = append(restores, domain.RestoreFor(a, now))
			}
		}
		projected = append(projected, a)
	}
	o.InventoryState = domain.SummarizeInventory(o.Status, append(projected, restores...))

	saved, err := s.store.Cancel(ctx, o, skip, restores, domain.NewOrderEvent(domain.TopicOrderCancelled, o, now))
	if err != nil {
		return domain.Order{}, err
	}
	logger.FromContext(ctx).Info("order cancelled",
		slog.String("order_id", o.ID),
		slog.Int("restores", len(restores)),
		slog.Int("skipped", len(skip)),
	)

	saved.InventoryState = s.release(context.WithoutCancel(ctx), saved)
	return saved, nil
}

// release runs every pending RESTORE whose REDUCE is known to be applied.
// Restores behind a reduction with an unknown outcome wait for the relay.
func (s *Service) release(ctx context.Context, o domain.Order) domain.InventoryState {
	adjs, err := s.store.Adjustments(ctx, o.ID)
	if err != nil {
		logger.FromContext(ctx).Error("load adjustments for release", slog.String("order_id", o.ID), slog.Any("err", err))
		return o.InventoryState
	}

	for i := range adjs {
		a := &adjs[i]
		if a.Kind != domain.AdjustmentRestore || a.State != domain.AdjustmentPending {
			continue
		}
		reduce, ok := domain.FindReduce(adjs, *a)
		if !ok || reduce.State != domain.AdjustmentApplied {
			continue
		}
		if s.apply(ctx, a, sourceSaga) == outcomeRejected {
			logger.FromContext(ctx).Error("inventory refused stock restore",
				slog.String("order_id", o.ID),
				slog.String("product_id", a.ProductID),
				slog.Int("quantity", a.Quantity),
				slog.String("reason", a.LastError),
			)
		}
	}
	return s.refresh(ctx, o.ID, o.Status, adjs)
}

// compensate cancels an order whose reservation was refused, reloading on
// version conflicts.
func (s *Service) compensate(ctx context.Context, orderID, reason string) {
	log := logger.FromContext(ctx).With(slog.String("order_id", orderID))
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		o, err := s.store.Get(ctx, orderID)
		if err != nil {
			log.Error("load order for compensation", slog.Any("err", err))
			return
		}
		if o.Status == domain.StatusCancelled {
			return
		}

		log.Info("cancelling order", slog.String("reason", reason))
		_, err = s.cancel(ctx, o, "")
		if errors.Is(err, apperr.ErrVersionConflict) {
			continue
		}
		if err != nil {
			log.Error("compensation failed", slog.Any("err", err))
		}
		return
	}
	log.Error("compensation gave up after repeated version conflicts")
}

func (s *Service) refresh(ctx context.Context, orderID string, status domain.Status, adjs []domain.StockAdjustment) domain.InventoryState {
	state := domain.SummarizeInventory(status, adjs)
	if err := s.store.SetInventoryState(ctx, orderID, status, state); err != nil {
		logger.FromContext(ctx).Warn("update inventory state",
			slog.String("order_id", orderID),
			slog.String("state", string(state)),
			slog.Any("err", err),
		)
	}
	return state
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeRejected
	outcomeUnknown
	outcomeStale
)

func (o outcome) String() string {
	switch o {
	case outcomeApplied:
		return "applied"
	case outcomeRejected:
		return "rejected"
	case outcomeUnknown:
		return "unknown"
	default:
		return "stale"
	}
}

// apply claims adj, calls inventory with its operation id and records the
// outcome. adj is updated in place.
func (s *Service) apply(ctx context.Context, adj *domain.StockAdjustment, source string) outcome {
	log := logger.FromContext(ctx).With(
		slog.String("order_id", adj.OrderID),
		slog.String("operation_id", adj.OperationID),
		slog.String("kind", string(adj.Kind)),
	)

	now := s.now()
	claimed, err := s.store.Claim(ctx, adj.ID, now)
	if err != nil {
		log.Warn("claim stock adjustment", slog.Any("err", err))
		return outcomeUnknown
	}
	if !claimed {
		return outcomeStale
	}
	adj.Claim(now)

	op := inventory.StockOp{OperationID: adj.OperationID, ProductID: adj.ProductID, Quantity: adj.Quantity}
	var callErr error
	if adj.Kind == domain.AdjustmentReduce {
		callErr = s.inv.ReduceStock(ctx, op)
	} else {
		callErr = s.inv.RestoreStock(ctx, op)
	}

	now = s.now()
	res := outcomeApplied
	switch {
	case callErr == nil:
		adj.MarkApplied(now)
	case errors.Is(callErr, apperr.ErrStockRejected):
		adj.MarkRejected(callErr.Error(), now)
		res = outcomeRejected
	default:
		adj.MarkFailed(callErr.Error(), s.backoff, now)
		res = outcomeUnknown
		log.Warn("stock adjustment outcome unknown",
			slog.Int("attempts", adj.Attempts),
			slog.Time("next_attempt_at", adj.NextAttemptAt),
			slog.Any("err", callErr),
		)
	}
	s.metrics.StockAdjustments.WithLabelValues(string(adj.Kind), res.String(), source).Inc()

	if err := s.store.SaveOutcome(ctx, *adj); err != nil {
		// the row stays PENDING and is retried with the same operation id
		log.Error("record stock adjustment outcome", slog.String("outcome", res.String()), slog.Any("err", err))
	}
	return res
}
