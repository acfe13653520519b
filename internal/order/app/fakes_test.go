package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dwikikusuma/shoping-fulfillment/internal/inventory"
	"github.com/dwikikusuma/shoping-fulfillment/internal/order/domain"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	adjs   []domain.StockAdjustment
	events []domain.OutboxEvent
	seq    int64
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]domain.Order{}}
}

func (m *memStore) next() int64 {
	m.seq++
	return m.seq
}

func (m *memStore) Create(ctx context.Context, o domain.Order, adjs []domain.StockAdjustment, ev domain.OutboxEvent) (domain.Order, []domain.StockAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.IdempotencyKey != "" {
		for _, existing := range m.orders {
			if existing.UserID == o.UserID && existing.IdempotencyKey == o.IdempotencyKey {
				return domain.Order{}, nil, ErrDuplicateIdempotencyKey
			}
		}
	}
	o.Version = 1
	m.orders[o.ID] = o

	out := make([]domain.StockAdjustment, len(adjs))
	for i, a := range adjs {
		a.ID = m.next()
		m.adjs = append(m.adjs, a)
		out[i] = a
	}
	ev.ID = m.next()
	m.events = append(m.events, ev)
	return o, out, nil
}

func (m *memStore) Get(ctx context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, apperr.ErrOrderNotFound.With("order not found with id: %s", id)
	}
	return o, nil
}

func (m *memStore) GetByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return o, nil
		}
	}
	return domain.Order{}, apperr.ErrOrderNotFound
}

func (m *memStore) filter(keep func(domain.Order) bool) []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Order{}
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return m.filter(func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (m *memStore) ListAll(ctx context.Context) ([]domain.Order, error) {
	return m.filter(func(domain.Order) bool { return true }), nil
}

func (m *memStore) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Order, error) {
	return m.filter(func(o domain.Order) bool { return o.Status == status }), nil
}

func (m *memStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	return int64(len(m.filter(func(o domain.Order) bool { return o.UserID == userID }))), nil
}

func (m *memStore) UpdateStatus(ctx context.Context, o domain.Order, ev domain.OutboxEvent) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return domain.Order{}, apperr.ErrOrderNotFound
	}
	if cur.Version != o.Version {
		return domain.Order{}, apperr.ErrVersionConflict
	}
	cur.Status, cur.Notes = o.Status, o.Notes
	cur.Version++
	m.orders[o.ID] = cur
	ev.ID = m.next()
	m.events = append(m.events, ev)
	return cur, nil
}

func (m *memStore) Cancel(ctx context.Context, o domain.Order, skip []int64, restores []domain.StockAdjustment, ev domain.OutboxEvent) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return domain.Order{}, apperr.ErrOrderNotFound
	}
	if cur.Version != o.Version {
		return domain.Order{}, apperr.ErrVersionConflict
	}

	for _, id := range skip {
		for i := range m.adjs {
			a := &m.adjs[i]
			if a.ID != id || a.State != domain.AdjustmentPending {
				continue
			}
			if a.Attempts == 0 {
				a.State = domain.AdjustmentSkipped
			} else {
				restores = append(restores, domain.RestoreFor(*a, o.UpdatedAt))
			}
		}
	}
	for _, r := range restores {
		r.ID = m.next()
		m.adjs = append(m.adjs, r)
	}

	cur.Status, cur.Notes, cur.InventoryState = o.Status, o.Notes, o.InventoryState
	cur.Version++
	m.orders[o.ID] = cur
	ev.ID = m.next()
	m.events = append(m.events, ev)
	return cur, nil
}

func (m *memStore) SetInventoryState(ctx context.Context, orderID string, status domain.Status, state domain.InventoryState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[orderID]
	if ok && cur.Status == status {
		cur.InventoryState = state
		m.orders[orderID] = cur
	}
	return nil
}

func (m *memStore) Adjustments(ctx context.Context, orderID string) ([]domain.StockAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StockAdjustment
	for _, a := range m.adjs {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) Due(ctx context.Context, now time.Time, limit, maxAttempts int) ([]domain.StockAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StockAdjustment
	for _, a := range m.adjs {
		if a.State == domain.AdjustmentPending && !a.NextAttemptAt.After(now) && a.Attempts < maxAttempts {
			out = append(out, a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Claim(ctx context.Context, id int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.adjs {
		if m.adjs[i].ID == id && m.adjs[i].State == domain.AdjustmentPending {
			m.adjs[i].Attempts++
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) SaveOutcome(ctx context.Context, adj domain.StockAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.adjs {
		a := &m.adjs[i]
		if a.ID == adj.ID && a.State == domain.AdjustmentPending {
			a.State, a.LastError, a.NextAttemptAt, a.UpdatedAt = adj.State, adj.LastError, adj.NextAttemptAt, adj.UpdatedAt
		}
	}
	return nil
}

func (m *memStore) PendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboxEvent
	for _, ev := range m.events {
		if ev.SentAt == nil && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memStore) MarkSent(ctx context.Context, ids []int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		for i := range m.events {
			if m.events[i].ID == id {
				m.events[i].SentAt = &at
			}
		}
	}
	return nil
}

func (m *memStore) adjustment(orderID, productID string, kind domain.AdjustmentKind) domain.StockAdjustment {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.adjs {
		if a.OrderID == orderID && a.ProductID == productID && a.Kind == kind {
			return a
		}
	}
	return domain.StockAdjustment{}
}

func (m *memStore) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		out = append(out, ev.Topic)
	}
	return out
}

// invMock records every stock operation so tests can check operation ids.
type invMock struct {
	mock.Mock
	mu  sync.Mutex
	ops []inventory.StockOp
}

func (m *invMock) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	args := m.Called(productID, quantity)
	return args.Bool(0), args.Error(1)
}

func (m *invMock) ReduceStock(ctx context.Context, op inventory.StockOp) error {
	m.record(op)
	return m.Called(op.ProductID, op.Quantity).Error(0)
}

func (m *invMock) RestoreStock(ctx context.Context, op inventory.StockOp) error {
	m.record(op)
	return m.Called(op.ProductID, op.Quantity).Error(0)
}

func (m *invMock) record(op inventory.StockOp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
}

func (m *invMock) opsFor(productID string) []inventory.StockOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []inventory.StockOp
	for _, op := range m.ops {
		if op.ProductID == productID {
			out = append(out, op)
		}
	}
	return out
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
