package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
)

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		UserID:          "u1",
		ShippingAddress: "Jl. Merdeka 1",
		Items: []OrderItemRequest{
			{ProductID: "p1", ProductName: "Keyboard", Quantity: 2, Price: decimal.RequireFromString("10.00")},
			{ProductID: "p2", ProductName: "Mouse", Quantity: 1, Price: decimal.RequireFromString("4.50")},
		},
	}
}

func TestNewOrder(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o, err := NewOrder(validRequest(), now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, InventoryReservationPending, o.InventoryState)
	assert.True(t, decimal.RequireFromString("24.50").Equal(o.TotalAmount))
	assert.Equal(t, now, o.OrderDate)
	require.Len(t, o.Items, 2)
	assert.True(t, decimal.RequireFromString("20.00").Equal(o.Items[0].Subtotal))
	assert.Equal(t, o.ID, o.Items[1].OrderID)
}

func TestNewOrderValidation(t *testing.T) {
	cases := map[string]func(*CreateOrderRequest){
		"no items":          func(r *CreateOrderRequest) { r.Items = nil },
		"no user":           func(r *CreateOrderRequest) { r.UserID = " " },
		"no address":        func(r *CreateOrderRequest) { r.ShippingAddress = "" },
		"zero quantity":     func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 },
		"negative price":    func(r *CreateOrderRequest) { r.Items[1].Price = decimal.NewFromInt(-1) },
		"missing productId": func(r *CreateOrderRequest) { r.Items[0].ProductID = "" },
		"sub-cent price":    func(r *CreateOrderRequest) { r.Items[0].Price = decimal.RequireFromString("0.333") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := NewOrder(req, time.Now())
			assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
		})
	}
}

func TestNewOrderKeepsCentsExact(t *testing.T) {
	req := validRequest()
	req.Items[0].Price = decimal.RequireFromString("0.330")
	req.Items[0].Quantity = 3

	o, err := NewOrder(req, time.Now())
	require.NoError(t, err)
	it := o.Items[0]
	assert.True(t, it.Subtotal.Equal(it.Price.Mul(decimal.NewFromInt(3))))
	assert.True(t, it.Subtotal.Equal(it.Subtotal.Round(2)))
}

func TestFingerprint(t *testing.T) {
	base := validRequest()
	assert.Equal(t, base.Fingerprint(), validRequest().Fingerprint())

	t.Run("ignores decimal formatting and shipping", func(t *testing.T) {
		r := validRequest()
		r.Items[0].Price = decimal.NewFromInt(10)
		r.ShippingAddress = "elsewhere"
		assert.Equal(t, base.Fingerprint(), r.Fingerprint())
	})

	t.Run("changes with items", func(t *testing.T) {
		r := validRequest()
		r.Items[1].Quantity = 2
		assert.NotEqual(t, base.Fingerprint(), r.Fingerprint())

		r = validRequest()
		r.Items = append(r.Items, OrderItemRequest{ProductID: "p3", Quantity: 1, Price: decimal.NewFromInt(1)})
		assert.NotEqual(t, base.Fingerprint(), r.Fingerprint())
	})

	t.Run("changes with user", func(t *testing.T) {
		r := validRequest()
		r.UserID = "u2"
		assert.NotEqual(t, base.Fingerprint(), r.Fingerprint())
	})
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusPending, StatusConfirmed},
		{StatusConfirmed, StatusProcessing},
		{StatusProcessing, StatusShipped},
		{StatusShipped, StatusDelivered},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusCancelled},
		{StatusProcessing, StatusCancelled},
		{StatusShipped, StatusCancelled},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]Status{
		{StatusPending, StatusPending},
		{StatusPending, StatusShipped},
		{StatusShipped, StatusPending},
		{StatusDelivered, StatusCancelled},
		{StatusDelivered, StatusPending},
		{StatusCancelled, StatusCancelled},
		{StatusCancelled, StatusPending},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipped.Terminal())
}

func TestTransitionTo(t *testing.T) {
	o, err := NewOrder(validRequest(), time.Now())
	require.NoError(t, err)

	require.NoError(t, o.TransitionTo(StatusConfirmed, "paid"))
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, "paid", o.Notes)

	t.Run("delivered is terminal", func(t *testing.T) {
		d := Order{Status: StatusDelivered}
		assert.ErrorIs(t, d.TransitionTo(StatusCancelled, ""), apperr.ErrInvalidTransition)
		assert.Equal(t, StatusDelivered, d.Status)
	})

	t.Run("cancelling twice is rejected", func(t *testing.T) {
		c := Order{Status: StatusCancelled}
		assert.ErrorIs(t, c.TransitionTo(StatusCancelled, ""), apperr.ErrInvalidTransition)
	})
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" shipped ")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, st)

	_, err = ParseStatus("LOST")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(5))
	assert.Equal(t, 10*time.Second, b.Delay(200))
}

func TestAdjustmentLifecycle(t *testing.T) {
	now := time.Now()
	a := NewAdjustment(AdjustmentReduce, "o1", OrderItem{ID: "i1", ProductID: "p1", Quantity: 3}, now)
	opID := a.OperationID
	assert.False(t, a.Attempted())

	a.Claim(now)
	a.MarkFailed("timeout", Backoff{Base: time.Second, Max: time.Minute}, now)
	assert.Equal(t, AdjustmentPending, a.State)
	assert.Equal(t, 1, a.Attempts)
	assert.Equal(t, now.Add(time.Second), a.NextAttemptAt)
	assert.True(t, a.Attempted())

	a.Claim(now)
	a.MarkFailed("timeout", Backoff{Base: time.Second, Max: time.Minute}, now)
	assert.Equal(t, now.Add(2*time.Second), a.NextAttemptAt)

	a.Claim(now)
	a.MarkApplied(now)
	assert.Equal(t, AdjustmentApplied, a.State)
	assert.Equal(t, 3, a.Attempts)
	assert.Equal(t, opID, a.OperationID)
	assert.Empty(t, a.LastError)

	restore := RestoreFor(a, now)
	assert.Equal(t, AdjustmentRestore, restore.Kind)
	assert.NotEqual(t, opID, restore.OperationID)
	reduce, ok := FindReduce([]StockAdjustment{a}, restore)
	require.True(t, ok)
	assert.Equal(t, opID, reduce.OperationID)
}

func TestSummarizeInventory(t *testing.T) {
	reducePending := StockAdjustment{Kind: AdjustmentReduce, State: AdjustmentPending}
	reduced := StockAdjustment{Kind: AdjustmentReduce, State: AdjustmentApplied}
	reduceRejected := StockAdjustment{Kind: AdjustmentReduce, State: AdjustmentRejected}
	restorePending := StockAdjustment{Kind: AdjustmentRestore, State: AdjustmentPending}
	restored := StockAdjustment{Kind: AdjustmentRestore, State: AdjustmentApplied}

	cases := []struct {
		name   string
		status Status
		adjs   []StockAdjustment
		want   InventoryState
	}{
		{"all reduced", StatusPending, []StockAdjustment{reduced, reduced}, InventoryReserved},
		{"reduce outstanding", StatusConfirmed, []StockAdjustment{reduced, reducePending}, InventoryReservationPending},
		{"restore outstanding", StatusCancelled, []StockAdjustment{reduced, restorePending}, InventoryReleasePending},
		{"reduce outstanding on cancelled", StatusCancelled, []StockAdjustment{reducePending, restorePending}, InventoryReleasePending},
		{"all restored", StatusCancelled, []StockAdjustment{reduced, restored}, InventoryReleased},
		{"rejected", StatusCancelled, []StockAdjustment{reduced, restored, reduceRejected}, InventoryRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SummarizeInventory(tc.status, tc.adjs))
		})
	}
}

func TestNewOrderEvent(t *testing.T) {
	o, err := NewOrder(validRequest(), time.Now())
	require.NoError(t, err)

	ev := NewOrderEvent(TopicOrderCreated, o, time.Now())
	assert.Equal(t, o.ID, ev.Key)

	var body map[string]any
	require.NoError(t, json.Unmarshal(ev.Payload, &body))
	assert.Equal(t, o.ID, body["orderId"])
	assert.Equal(t, "24.50", body["totalAmount"])
	assert.Len(t, body["items"], 2)

	cancelled := NewOrderEvent(TopicOrderCancelled, o, time.Now())
	require.NoError(t, json.Unmarshal(cancelled.Payload, &body))
	assert.NotEqual(t, ev.EventID, cancelled.EventID)
}
