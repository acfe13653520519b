package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/app"
	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/domain"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/httpx"
)

const IdempotencyHeader = "Idempotency-Key"

type Service interface {
	CreateCart(ctx context.Context, userID string) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	AddItem(ctx context.Context, req app.AddItemRequest) (domain.Cart, error)
	UpdateItem(ctx context.Context, itemID string, quantity int) (domain.Cart, error)
	RemoveItem(ctx context.Context, itemID string) (domain.Cart, error)
	ClearCart(ctx context.Context, cartID string) error
	Checkout(ctx context.Context, userID, idempotencyKey string, ship app.ShippingDetails) (string, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/user/{userId}", h.get)
		r.Post("/items", h.addItem)
		r.Put("/items/{itemId}", h.updateItem)
		r.Delete("/items/{itemId}", h.removeItem)
		r.Post("/checkout", h.checkout)
		r.Delete("/{cartId}", h.clear)
	})
}

type addItemRequest struct {
	UserID      string          `json:"userId"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	ShippingAddress string `json:"shippingAddress"`
	PaymentMethod   string `json:"paymentMethod"`
	Notes           string `json:"notes"`
}

type itemResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type cartResponse struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Items       []itemResponse  `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	TotalItems  int             `json:"totalItems"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func toResponse(c domain.Cart) cartResponse {
	resp := cartResponse{
		ID:          c.ID,
		UserID:      c.UserID,
		Items:       make([]itemResponse, 0, len(c.Items)),
		TotalAmount: c.TotalAmount(),
		TotalItems:  c.TotalItems(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	for _, it := range c.Items {
		resp.Items = append(resp.Items, itemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Subtotal,
		})
	}
	return resp
}

func userIDParam(r *http.Request) (string, error) {
	id := r.URL.Query().Get("userId")
	if id == "" {
		return "", apperr.ErrInvalidInput.With("userId query parameter is required")
	}
	return id, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	cart, err := h.svc.CreateCart(r.Context(), userID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Success(w, http.StatusCreated, "Cart created successfully", toResponse(cart))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.GetCart(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "", toResponse(cart))
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var body addItemRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	if body.UserID == "" || body.ProductID == "" {
		httpx.Error(w, apperr.ErrInvalidInput.With("userId and productId are required"))
		return
	}

	cart, err := h.svc.AddItem(r.Context(), app.AddItemRequest(body))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Item added to cart successfully", toResponse(cart))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var body updateItemRequest
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}
	cart, err := h.svc.UpdateItem(r.Context(), chi.URLParam(r, "itemId"), body.Quantity)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Cart item updated successfully", toResponse(cart))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.RemoveItem(r.Context(), chi.URLParam(r, "itemId"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Item removed from cart successfully", toResponse(cart))
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	var body checkoutRequest
	if err := httpx.DecodeOptional(r, &body); err != nil {
		httpx.Error(w, err)
		return
	}

	orderID, err := h.svc.Checkout(r.Context(), userID, r.Header.Get(IdempotencyHeader), app.ShippingDetails(body))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Checkout completed successfully", orderID)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCart(r.Context(), chi.URLParam(r, "cartId")); err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Cart cleared successfully", nil)
}
