package orderclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/app"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/httpx"
)

func sampleRequest() app.OrderRequest {
	return app.OrderRequest{
		UserID:          "U1",
		ShippingAddress: "Jl. Merdeka 10",
		Items: []app.OrderLine{
			{ProductID: "P1", ProductName: "Kopi", Quantity: 5, Price: decimal.RequireFromString("10.00")},
		},
	}
}

func TestPlaceOrder(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/orders", r.URL.Path)
			assert.Equal(t, "k-1", r.Header.Get(IdempotencyHeader))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "U1", body["userId"])
			items := body["items"].([]any)
			require.Len(t, items, 1)
			assert.Equal(t, float64(5), items[0].(map[string]any)["quantity"])

			httpx.Success(w, http.StatusCreated, "Order created successfully", map[string]string{"id": "o-1"})
		}))
		defer srv.Close()

		id, err := New(srv.URL, time.Second).PlaceOrder(context.Background(), sampleRequest(), "k-1")
		require.NoError(t, err)
		assert.Equal(t, "o-1", id)
	})

	t.Run("typed failures keep their code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpx.Error(w, apperr.InsufficientStock("P1", 5, 0))
		}))
		defer srv.Close()

		_, err := New(srv.URL, time.Second).PlaceOrder(context.Background(), sampleRequest(), "k-1")
		assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
		assert.Contains(t, err.Error(), "insufficient stock for product P1")
	})

	t.Run("internal failure is upstream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("bad gateway"))
		}))
		defer srv.Close()

		_, err := New(srv.URL, time.Second).PlaceOrder(context.Background(), sampleRequest(), "k-1")
		assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	})

	t.Run("masked 500 is upstream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpx.Error(w, assert.AnError)
		}))
		defer srv.Close()

		_, err := New(srv.URL, time.Second).PlaceOrder(context.Background(), sampleRequest(), "k-1")
		assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		_, err := New(srv.URL, 20*time.Millisecond).PlaceOrder(context.Background(), sampleRequest(), "k-1")
		assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := New(url, time.Second).PlaceOrder(context.Background(), sampleRequest(), "")
		assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	})
}
