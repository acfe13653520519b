package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
)

type CartItem struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Subtotal    decimal.Decimal
}

func (i *CartItem) recompute() {
	i.Subtotal = i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is owned by exactly one user. Version is bumped by the repository on
// every successful save and guards concurrent writers.
type Cart struct {
	ID        string
	UserID    string
	Version   int64
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewCart(userID string) Cart {
	return Cart{ID: uuid.NewString(), UserID: userID}
}

// AddItem merges into an existing line for the same product or appends a new one.
func (c *Cart) AddItem(productID, productName string, quantity int, price decimal.Decimal) (CartItem, error) {
	if productID == "" {
		return CartItem{}, apperr.ErrInvalidInput.With("productId is required")
	}
	if quantity < 1 {
		return CartItem{}, apperr.ErrInvalidInput.With("quantity must be at least 1, got %d", quantity)
	}
	if price.IsNegative() {
		return CartItem{}, apperr.ErrInvalidInput.With("price cannot be negative, got %s", price)
	}
	if !price.Equal(price.Round(2)) {
		return CartItem{}, apperr.ErrInvalidInput.With("price has more than 2 decimal places, got %s", price)
	}

	for idx := range c.Items {
		if c.Items[idx].ProductID == productID {
			c.Items[idx].Quantity += quantity
			c.Items[idx].recompute()
			return c.Items[idx], nil
		}
	}

	item := CartItem{
		ID:          uuid.NewString(),
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		Price:       price,
	}
	item.recompute()
	c.Items = append(c.Items, item)
	return item, nil
}

func (c *Cart) UpdateItem(itemID string, quantity int) error {
	if quantity < 1 {
		return apperr.ErrInvalidInput.With("quantity must be at least 1, got %d", quantity)
	}
	idx := c.indexOf(itemID)
	if idx < 0 {
		return apperr.ErrItemNotFound.With("cart item not found with id: %s", itemID)
	}
	c.Items[idx].Quantity = quantity
	c.Items[idx].recompute()
	return nil
}

func (c *Cart) RemoveItem(itemID string) error {
	idx := c.indexOf(itemID)
	if idx < 0 {
		return apperr.ErrItemNotFound.With("cart item not found with id: %s", itemID)
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return nil
}

func (c *Cart) Clear() {
	c.Items = nil
}

func (c *Cart) Item(itemID string) (CartItem, bool) {
	idx := c.indexOf(itemID)
	if idx < 0 {
		return CartItem{}, false
	}
	return c.Items[idx], true
}

func (c Cart) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal)
	}
	return total
}

func (c Cart) TotalItems() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) indexOf(itemID string) int {
	for idx := range c.Items {
		if c.Items[idx].ID == itemID {
			return idx
		}
	}
	return -1
}
