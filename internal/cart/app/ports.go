package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/domain"
)

type CartRepo interface {
	// GetByUserID returns apperr.ErrCartNotFound when the user has no cart.
	GetByUserID(ctx context.Context, userID string) (domain.Cart, error)
	GetByID(ctx context.Context, cartID string) (domain.Cart, error)
	// GetByItemID loads the cart owning itemID, or apperr.ErrItemNotFound.
	GetByItemID(ctx context.Context, itemID string) (domain.Cart, error)
	// Create inserts an empty cart. When the user already has one, that cart
	// is returned instead.
	Create(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	// Save replaces the cart items if cart.Version still matches the stored
	// version, and returns apperr.ErrVersionConflict otherwise.
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
}

type InventoryChecker interface {
	CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error)
}

type OrderLine struct {
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

type OrderRequest struct {
	UserID          string
	ShippingAddress string
	PaymentMethod   string
	Notes           string
	Items           []OrderLine
}

// OrderIntake materializes an order on the order service. The key makes the
// call safe to repeat.
type OrderIntake interface {
	PlaceOrder(ctx context.Context, req OrderRequest, idempotencyKey string) (string, error)
}

// CheckoutLedger remembers which order a user's checkout key produced.
type CheckoutLedger interface {
	Lookup(ctx context.Context, userID, key string) (orderID string, found bool, err error)
	Record(ctx context.Context, userID, key, orderID string) error
}
