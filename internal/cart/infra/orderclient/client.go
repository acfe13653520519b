// Package orderclient submits checkout orders to the order service.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/app"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/httpx"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/tracing"
)

const IdempotencyHeader = "Idempotency-Key"

type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	tracer  trace.Tracer
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{},
		tracer:  tracing.Tracer("order-client"),
	}
}

var _ app.OrderIntake = (*Client)(nil)

type lineBody struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type orderBody struct {
	UserID          string     `json:"userId"`
	ShippingAddress string     `json:"shippingAddress"`
	PaymentMethod   string     `json:"paymentMethod,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Items           []lineBody `json:"items"`
}

// PlaceOrder returns the id of the created order. Failures reported by the
// order service keep their code, so an InsufficientStock there is an
// InsufficientStock here.
func (c *Client) PlaceOrder(ctx context.Context, req app.OrderRequest, idempotencyKey string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "order.PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("items", len(req.Items)),
	))
	defer span.End()

	id, err := c.place(ctx, req, idempotencyKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("order.id", id))
	return id, nil
}

func (c *Client) place(ctx context.Context, req app.OrderRequest, key string) (string, error) {
	body := orderBody{
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		Items:           make([]lineBody, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		body.Items = append(body.Items, lineBody(it))
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/orders", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if key != "" {
		httpReq.Header.Set(IdempotencyHeader, key)
	}
	tracing.Inject(ctx, httpReq.Header)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", apperr.ErrUpstreamUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	env, err := httpx.ReadEnvelope(resp.Body)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return "", err
		}
		return "", apperr.ErrUpstreamUnavailable.With("order service answered %d: %v", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperr.ErrUpstreamUnavailable.With("order service answered %d", resp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil || created.ID == "" {
		return "", apperr.ErrUpstreamUnavailable.With("order service returned no order id")
	}
	return created.ID, nil
}
