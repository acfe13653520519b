package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dwikikusuma/shoping-fulfillment/internal/order/domain"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/httpx"
)

type svcMock struct {
	mock.Mock
}

func (m *svcMock) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Order), args.Error(1)
}

func (m *svcMock) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Order), args.Error(1)
}

func (m *svcMock) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *svcMock) ListAll(ctx context.Context) ([]domain.Order, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *svcMock) ListByStatus(ctx context.Context, status string) ([]domain.Order, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *svcMock) CountByUser(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *svcMock) UpdateStatus(ctx context.Context, id, status, notes string) (domain.Order, error) {
	args := m.Called(ctx, id, status, notes)
	return args.Get(0).(domain.Order), args.Error(1)
}

func (m *svcMock) CancelOrder(ctx context.Context, id string) (domain.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Order), args.Error(1)
}

func newServer(t *testing.T) (*svcMock, *chi.Mux) {
	t.Helper()
	svc := &svcMock{}
	t.Cleanup(func() { svc.AssertExpectations(t) })
	r := chi.NewRouter()
	NewHandler(svc).Routes(r)
	return svc, r
}

func sampleOrder() domain.Order {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:              "o-1",
		UserID:          "U1",
		OrderDate:       now,
		Status:          domain.StatusPending,
		TotalAmount:     decimal.RequireFromString("50.00"),
		ShippingAddress: "Jl. Merdeka 10",
		InventoryState:  domain.InventoryReserved,
		Items: []domain.OrderItem{
			{ID: "i-1", ProductID: "P1", ProductName: "Kopi", Quantity: 5, Price: decimal.RequireFromString("10.00"), Subtotal: decimal.RequireFromString("50.00")},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func do(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrder(t *testing.T) {
	t.Run("created with idempotency key", func(t *testing.T) {
		svc, r := newServer(t)
		svc.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req domain.CreateOrderRequest) bool {
			return req.UserID == "U1" && req.IdempotencyKey == "k-1" && len(req.Items) == 1 &&
				req.Items[0].Quantity == 5 && req.Items[0].Price.Equal(decimal.NewFromInt(10))
		})).Return(sampleOrder(), nil)

		rec := do(r, http.MethodPost, "/api/v1/orders",
			`{"userId":"U1","shippingAddress":"Jl. Merdeka 10","items":[{"productId":"P1","productName":"Kopi","quantity":5,"price":10}]}`,
			map[string]string{IdempotencyHeader: "k-1"})

		require.Equal(t, http.StatusCreated, rec.Code)
		env, err := httpx.ReadEnvelope(rec.Body)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, "o-1", got["id"])
		assert.Equal(t, "RESERVED", got["inventoryState"])
		assert.Equal(t, "50", got["totalAmount"])
	})

	t.Run("insufficient stock is a conflict", func(t *testing.T) {
		svc, r := newServer(t)
		svc.On("CreateOrder", mock.Anything, mock.Anything).
			Return(domain.Order{}, apperr.InsufficientStock("P1", 5, 0))

		rec := do(r, http.MethodPost, "/api/v1/orders",
			`{"userId":"U1","shippingAddress":"x","items":[{"productId":"P1","productName":"Kopi","quantity":5,"price":10}]}`, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
		_, err := httpx.ReadEnvelope(rec.Body)
		assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, r := newServer(t)
		rec := do(r, http.MethodPost, "/api/v1/orders", `{"userId":"U1","bogus":1}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetOrder(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc, r := newServer(t)
		svc.On("GetOrder", mock.Anything, "o-1").Return(sampleOrder(), nil)

		rec := do(r, http.MethodGet, "/api/v1/orders/o-1", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		svc, r := newServer(t)
		svc.On("GetOrder", mock.Anything, "nope").Return(domain.Order{}, apperr.ErrOrderNotFound.With("order not found with id: nope"))

		rec := do(r, http.MethodGet, "/api/v1/orders/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListRoutes(t *testing.T) {
	svc, r := newServer(t)
	svc.On("ListAll", mock.Anything).Return([]domain.Order{sampleOrder()}, nil)
	svc.On("ListByUser", mock.Anything, "U1").Return([]domain.Order{}, nil)
	svc.On("ListByStatus", mock.Anything, "pending").Return([]domain.Order{sampleOrder()}, nil)
	svc.On("CountByUser", mock.Anything, "U1").Return(int64(3), nil)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/orders", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/orders/user/U1", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/orders/status/pending", "", nil).Code)

	rec := do(r, http.MethodGet, "/api/v1/orders/user/U1/count", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env, err := httpx.ReadEnvelope(rec.Body)
	require.NoError(t, err)
	assert.JSONEq(t, "3", string(env.Data))
}

func TestUpdateStatus(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		svc, r := newServer(t)
		o := sampleOrder()
		o.Status = domain.StatusConfirmed
		svc.On("UpdateStatus", mock.Anything, "o-1", "CONFIRMED", "paid").Return(o, nil)

		rec := do(r, http.MethodPut, "/api/v1/orders/o-1/status", `{"status":"CONFIRMED","notes":"paid"}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("illegal transition", func(t *testing.T) {
		svc, r := newServer(t)
		svc.On("UpdateStatus", mock.Anything, "o-1", "PENDING", "").
			Return(domain.Order{}, apperr.ErrInvalidTransition.With("cannot change order status from DELIVERED to PENDING"))

		rec := do(r, http.MethodPut, "/api/v1/orders/o-1/status", `{"status":"PENDING"}`, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestCancelOrder(t *testing.T) {
	svc, r := newServer(t)
	o := sampleOrder()
	o.Status = domain.StatusCancelled
	o.InventoryState = domain.InventoryReleased
	svc.On("CancelOrder", mock.Anything, "o-1").Return(o, nil)

	rec := do(r, http.MethodDelete, "/api/v1/orders/o-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env, err := httpx.ReadEnvelope(rec.Body)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "CANCELLED", got["status"])
	assert.Equal(t, "RELEASED", got["inventoryState"])
}
