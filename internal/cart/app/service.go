package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/domain"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/logger"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/metrics"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/tracing"
)

const (
	maxSaveAttempts = 3

	// DefaultShippingAddress is used when checkout is called without shipping
	// details. The order keeps it until support confirms the address.
	DefaultShippingAddress = "to be confirmed"
)

type Service struct {
	repo    CartRepo
	inv     InventoryChecker
	orders  OrderIntake
	ledger  CheckoutLedger
	metrics *metrics.Registry
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLedger(l CheckoutLedger) Option {
	return func(s *Service) { s.ledger = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo CartRepo, inv InventoryChecker, orders OrderIntake, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		inv:    inv,
		orders: orders,
		tracer: tracing.Tracer("cart-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New("cart")
	}
	return s
}

type AddItemRequest struct {
	UserID      string
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

type ShippingDetails struct {
	ShippingAddress string
	PaymentMethod   string
	Notes           string
}

// CreateCart returns the user's cart, creating an empty one on first use.
func (s *Service) CreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Cart{}, apperr.ErrInvalidInput.With("userId is required")
	}
	cart, err := s.repo.GetByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, apperr.ErrCartNotFound) {
		return domain.Cart{}, err
	}
	return s.repo.Create(ctx, domain.NewCart(userID))
}

func (s *Service) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// AddItem checks availability of the requested quantity and merges the item
// into the user's cart, creating the cart when needed.
func (s *Service) AddItem(ctx context.Context, req AddItemRequest) (domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddItem", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("product.id", req.ProductID),
	))
	defer span.End()

	if req.Quantity < 1 {
		return domain.Cart{}, apperr.ErrInvalidInput.With("quantity must be at least 1, got %d", req.Quantity)
	}
	if _, err := s.CreateCart(ctx, req.UserID); err != nil {
		return domain.Cart{}, err
	}

	ok, err := s.inv.CheckAvailability(ctx, req.ProductID, req.Quantity)
	if err != nil {
		return domain.Cart{}, err
	}
	if !ok {
		return domain.Cart{}, apperr.ErrNotAvailable.With("product %s not available in requested quantity %d", req.ProductID, req.Quantity)
	}

	return s.mutate(ctx, func() (domain.Cart, error) {
		return s.repo.GetByUserID(ctx, req.UserID)
	}, func(c *domain.Cart) error {
		_, err := c.AddItem(req.ProductID, req.ProductName, req.Quantity, req.Price)
		return err
	})
}

func (s *Service) UpdateItem(ctx context.Context, itemID string, quantity int) (domain.Cart, error) {
	return s.mutate(ctx, func() (domain.Cart, error) {
		return s.repo.GetByItemID(ctx, itemID)
	}, func(c *domain.Cart) error {
		return c.UpdateItem(itemID, quantity)
	})
}

func (s *Service) RemoveItem(ctx context.Context, itemID string) (domain.Cart, error) {
	return s.mutate(ctx, func() (domain.Cart, error) {
		return s.repo.GetByItemID(ctx, itemID)
	}, func(c *domain.Cart) error {
		return c.RemoveItem(itemID)
	})
}

func (s *Service) ClearCart(ctx context.Context, cartID string) error {
	_, err := s.mutate(ctx, func() (domain.Cart, error) {
		return s.repo.GetByID(ctx, cartID)
	}, func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
	return err
}

// Checkout turns the user's cart into an order and returns the order id.
//
// The cart is left untouched unless the order service accepted the order.
// The idempotency key travels with the order request, so a retried checkout
// lands on the same order; when the caller gives none, one is generated.
// The ledger only answers for an empty cart: a cart with items always goes
// to the order service, which rejects a key reused for different items.
func (s *Service) Checkout(ctx context.Context, userID, idempotencyKey string, ship ShippingDetails) (orderID string, err error) {
	ctx, span := s.tracer.Start(ctx, "cart.Checkout", trace.WithAttributes(attribute.String("user.id", userID)))
	result := "OK"
	defer func() {
		if err != nil {
			result = apperr.CodeOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.CheckoutResults.WithLabelValues(result).Inc()
		span.End()
	}()
	log := logger.FromContext(ctx).With(slog.String("user_id", userID))

	cart, err := s.repo.GetByUserID(ctx, userID)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return "", err
	}
	if err != nil || cart.IsEmpty() {
		if id, found := s.recorded(ctx, userID, idempotencyKey); found {
			log.Info("checkout already completed for key", slog.String("order_id", id))
			return id, nil
		}
		if err != nil {
			return "", err
		}
		return "", apperr.ErrEmptyCart.With("cannot checkout empty cart")
	}

	for _, it := range cart.Items {
		ok, err := s.inv.CheckAvailability(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", apperr.ErrNotAvailable.With("product %s not available in requested quantity %d", it.ProductID, it.Quantity)
		}
	}

	key := idempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	orderID, err = s.orders.PlaceOrder(ctx, toOrderRequest(cart, ship), key)
	if err != nil {
		log.Warn("order intake failed, cart kept", slog.Any("err", err))
		return "", err
	}
	span.SetAttributes(attribute.String("order.id", orderID))

	// the order exists; clearing must finish even if the caller hangs up
	ctx = context.WithoutCancel(ctx)
	if err := s.clearCheckedOut(ctx, userID, cart.Items); err != nil {
		// the order stands; a retry with the same key replays it and clears again
		result = "CART_NOT_CLEARED"
		log.Error("order placed but cart not cleared",
			slog.String("order_id", orderID),
			slog.Any("err", err),
		)
	}

	if idempotencyKey != "" && s.ledger != nil {
		if err := s.ledger.Record(ctx, userID, idempotencyKey, orderID); err != nil {
			log.Warn("checkout ledger record failed", slog.Any("err", err))
		}
	}

	log.Info("checkout completed", slog.String("order_id", orderID))
	return orderID, nil
}

func (s *Service) recorded(ctx context.Context, userID, key string) (string, bool) {
	if key == "" || s.ledger == nil {
		return "", false
	}
	id, found, err := s.ledger.Lookup(ctx, userID, key)
	if err != nil {
		logger.FromContext(ctx).Warn("checkout ledger lookup failed", slog.Any("err", err))
		return "", false
	}
	return id, found
}

// clearCheckedOut removes the ordered items. Items added after checkout
// loaded the cart are kept.
func (s *Service) clearCheckedOut(ctx context.Context, userID string, ordered []domain.CartItem) error {
	_, err := s.mutate(ctx, func() (domain.Cart, error) {
		return s.repo.GetByUserID(ctx, userID)
	}, func(c *domain.Cart) error {
		for _, it := range ordered {
			if _, ok := c.Item(it.ID); ok {
				_ = c.RemoveItem(it.ID)
			}
		}
		return nil
	})
	return err
}

// mutate runs a load-modify-save cycle, reloading on version conflicts.
func (s *Service) mutate(ctx context.Context, load func() (domain.Cart, error), fn func(*domain.Cart) error) (domain.Cart, error) {
	var err error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		var cart domain.Cart
		cart, err = load()
		if err != nil {
			return domain.Cart{}, err
		}
		if err = fn(&cart); err != nil {
			return domain.Cart{}, err
		}

		var saved domain.Cart
		saved, err = s.repo.Save(ctx, cart)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, apperr.ErrVersionConflict) {
			return domain.Cart{}, err
		}
		logger.FromContext(ctx).Debug("cart version conflict, retrying",
			slog.String("cart_id", cart.ID),
			slog.Int("attempt", attempt),
		)
	}
	return domain.Cart{}, err
}

func toOrderRequest(cart domain.Cart, ship ShippingDetails) OrderRequest {
	req := OrderRequest{
		UserID:          cart.UserID,
		ShippingAddress: ship.ShippingAddress,
		PaymentMethod:   ship.PaymentMethod,
		Notes:           ship.Notes,
		Items:           make([]OrderLine, 0, len(cart.Items)),
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		req.ShippingAddress = DefaultShippingAddress
	}
	for _, it := range cart.Items {
		req.Items = append(req.Items, OrderLine{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}
	return req
}
