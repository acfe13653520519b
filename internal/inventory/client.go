package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

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

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{},
		tracer:  tracing.Tracer("inventory-client"),
	}
}

var _ Gateway = (*Client)(nil)

// CheckAvailability fails closed: any transport error or non-success answer
// is returned as an error, never as "available".
func (c *Client) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "inventory.CheckAvailability", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	u := fmt.Sprintf("%s/api/v1/inventory/%s/availability?quantity=%d",
		c.baseURL, url.PathEscape(productID), quantity)

	status, env, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "availability call failed")
		return false, apperr.ErrUpstreamUnavailable.Wrap(err)
	}
	if status < 200 || status > 299 {
		span.SetStatus(codes.Error, "availability non-success")
		return false, apperr.ErrUpstreamUnavailable.With("inventory availability for %s answered %d", productID, status)
	}

	var available bool
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &available); err != nil {
			return false, apperr.ErrUpstreamUnavailable.With("inventory availability for %s: malformed data", productID)
		}
	}
	return available, nil
}

func (c *Client) ReduceStock(ctx context.Context, op StockOp) error {
	return c.adjust(ctx, "reduce", op)
}

func (c *Client) RestoreStock(ctx context.Context, op StockOp) error {
	return c.adjust(ctx, "add", op)
}

func (c *Client) adjust(ctx context.Context, action string, op StockOp) error {
	ctx, span := c.tracer.Start(ctx, "inventory.stock."+action, trace.WithAttributes(
		attribute.String("product.id", op.ProductID),
		attribute.Int("quantity", op.Quantity),
		attribute.String("operation.id", op.OperationID),
	))
	defer span.End()

	body, err := json.Marshal(map[string]int{"quantity": op.Quantity})
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/api/v1/inventory/%s/stock/%s", c.baseURL, url.PathEscape(op.ProductID), action)

	status, env, err := c.do(ctx, http.MethodPost, u, body, op.OperationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "outcome unknown")
		return apperr.ErrUpstreamUnavailable.Wrap(err)
	}

	err = classify(status, env.Message)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// classify maps a stock mutation answer to the gateway outcomes. Timeouts
// and throttling are transient even though they are 4xx.
func classify(status int, message string) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return apperr.ErrUpstreamUnavailable.With("inventory answered %d", status)
	case status >= 400 && status <= 499:
		if message == "" {
			message = http.StatusText(status)
		}
		return apperr.ErrStockRejected.With("inventory rejected adjustment (%d): %s", status, message)
	default:
		return apperr.ErrUpstreamUnavailable.With("inventory answered %d", status)
	}
}

// do performs one bounded call. The envelope is best-effort: a response
// without a parseable body still yields its status code.
func (c *Client) do(ctx context.Context, method, u string, body []byte, opID string) (int, httpx.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return 0, httpx.Envelope{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opID != "" {
		req.Header.Set(IdempotencyHeader, opID)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, httpx.Envelope{}, err
	}
	defer resp.Body.Close()

	var env httpx.Envelope
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, env, fmt.Errorf("read body: %w", err)
	}
	if len(raw) > 0 {
		if jerr := json.Unmarshal(raw, &env); jerr != nil {
			env.Message = truncate(string(raw), 200)
		}
	}
	return resp.StatusCode, env, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
