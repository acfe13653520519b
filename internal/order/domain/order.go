package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
)

type Order struct {
	ID              string
	UserID          string
	OrderDate       time.Time
	Status          Status
	TotalAmount     decimal.Decimal
	ShippingAddress string
	PaymentMethod   string
	Notes           string
	IdempotencyKey  string
	RequestHash     string
	InventoryState  InventoryState
	Version         int64
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Subtotal    decimal.Decimal
}

type CreateOrderRequest struct {
	UserID          string
	ShippingAddress string
	PaymentMethod   string
	Notes           string
	IdempotencyKey  string
	Items           []OrderItemRequest
}

type OrderItemRequest struct {
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

func (r CreateOrderRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return apperr.ErrInvalidOrder.With("userId is required")
	}
	if strings.TrimSpace(r.ShippingAddress) == "" {
		return apperr.ErrInvalidOrder.With("shippingAddress is required")
	}
	if len(r.Items) == 0 {
		return apperr.ErrInvalidOrder.With("order must contain at least one item")
	}
	for i, it := range r.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return apperr.ErrInvalidOrder.With("item %d: productId is required", i)
		}
		if it.Quantity <= 0 {
			return apperr.ErrInvalidOrder.With("item %d: quantity must be positive, got %d", i, it.Quantity)
		}
		if it.Price.IsNegative() {
			return apperr.ErrInvalidOrder.With("item %d: price cannot be negative, got %s", i, it.Price)
		}
		if !it.Price.Equal(it.Price.Round(2)) {
			return apperr.ErrInvalidOrder.With("item %d: price has more than 2 decimal places, got %s", i, it.Price)
		}
	}
	return nil
}

// Fingerprint identifies what was ordered: the user and the items in request
// order. A replayed idempotency key must come with the same fingerprint.
func (r CreateOrderRequest) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", r.UserID)
	for _, it := range r.Items {
		fmt.Fprintf(h, "%s|%d|%s\n", it.ProductID, it.Quantity, it.Price.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewOrder builds a PENDING order. The total is computed here once and never
// recalculated.
func NewOrder(req CreateOrderRequest, now time.Time) (Order, error) {
	if err := req.Validate(); err != nil {
		return Order{}, err
	}

	o := Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		OrderDate:       now,
		Status:          StatusPending,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		IdempotencyKey:  req.IdempotencyKey,
		RequestHash:     req.Fingerprint(),
		InventoryState:  InventoryReservationPending,
		Items:           make([]OrderItem, 0, len(req.Items)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	total := decimal.Zero
	for _, it := range req.Items {
		sub := it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		o.Items = append(o.Items, OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    sub,
		})
		total = total.Add(sub)
	}
	o.TotalAmount = total
	return o, nil
}

// TransitionTo moves the order to next. Re-entering the current status is
// rejected, including CANCELLED -> CANCELLED.
func (o *Order) TransitionTo(next Status, notes string) error {
	if !CanTransition(o.Status, next) {
		return apperr.ErrInvalidTransition.With("cannot change order status from %s to %s", o.Status, next)
	}
	o.Status = next
	if notes != "" {
		o.Notes = notes
	}
	return nil
}

func (o Order) Item(productID string) (OrderItem, bool) {
	for _, it := range o.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return OrderItem{}, false
}
