package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/domain"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
)

// memRepo keeps carts by id and enforces the same version check as the
// postgres repository.
type memRepo struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
	// conflicts makes the next n saves fail with a version conflict.
	conflicts int
	// saveErr, when set, fails every save.
	saveErr error
	saves   int
}

func newMemRepo() *memRepo {
	return &memRepo{carts: map[string]domain.Cart{}}
}

func clone(c domain.Cart) domain.Cart {
	c.Items = append([]domain.CartItem(nil), c.Items...)
	return c
}

func (r *memRepo) GetByUserID(ctx context.Context, userID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.carts {
		if c.UserID == userID {
			return clone(c), nil
		}
	}
	return domain.Cart{}, apperr.ErrCartNotFound.With("cart not found for user: %s", userID)
}

func (r *memRepo) GetByID(ctx context.Context, cartID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[cartID]
	if !ok {
		return domain.Cart{}, apperr.ErrCartNotFound.With("cart not found with id: %s", cartID)
	}
	return clone(c), nil
}

func (r *memRepo) GetByItemID(ctx context.Context, itemID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.carts {
		if _, ok := c.Item(itemID); ok {
			return clone(c), nil
		}
	}
	return domain.Cart{}, apperr.ErrItemNotFound.With("cart item not found with id: %s", itemID)
}

func (r *memRepo) Create(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.carts {
		if c.UserID == cart.UserID {
			return clone(c), nil
		}
	}
	if cart.ID == "" {
		cart.ID = uuid.NewString()
	}
	cart.Version = 1
	r.carts[cart.ID] = clone(cart)
	return cart, nil
}

func (r *memRepo) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	cur, ok := r.carts[cart.ID]
	if !ok {
		return domain.Cart{}, apperr.ErrCartNotFound.With("cart not found with id: %s", cart.ID)
	}
	if r.saveErr != nil {
		return domain.Cart{}, r.saveErr
	}
	if r.conflicts > 0 {
		r.conflicts--
		cur.Version++
		r.carts[cart.ID] = cur
		return domain.Cart{}, apperr.ErrVersionConflict
	}
	if cur.Version != cart.Version {
		return domain.Cart{}, apperr.ErrVersionConflict
	}
	cart.Version++
	r.carts[cart.ID] = clone(cart)
	return clone(cart), nil
}

type invMock struct {
	mock.Mock
}

func (m *invMock) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	args := m.Called(productID, quantity)
	return args.Bool(0), args.Error(1)
}

type intakeMock struct {
	mock.Mock
}

func (m *intakeMock) PlaceOrder(ctx context.Context, req OrderRequest, key string) (string, error) {
	args := m.Called(req, key)
	return args.String(0), args.Error(1)
}

type memLedger struct {
	mu      sync.Mutex
	entries map[[2]string]string
}

func (l *memLedger) Lookup(ctx context.Context, userID, key string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.entries[[2]string{userID, key}]
	return id, ok, nil
}

func (l *memLedger) Record(ctx context.Context, userID, key, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries == nil {
		l.entries = map[[2]string]string{}
	}
	if _, ok := l.entries[[2]string{userID, key}]; !ok {
		l.entries[[2]string{userID, key}] = orderID
	}
	return nil
}
