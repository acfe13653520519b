package domain

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

type AdjustmentKind string

const (
	AdjustmentReduce  AdjustmentKind = "REDUCE"
	AdjustmentRestore AdjustmentKind = "RESTORE"
)

type AdjustmentState string

const (
	AdjustmentPending  AdjustmentState = "PENDING"
	AdjustmentApplied  AdjustmentState = "APPLIED"
	AdjustmentRejected AdjustmentState = "REJECTED"
	AdjustmentSkipped  AdjustmentState = "SKIPPED"
)

// StockAdjustment is one inventory mutation the order owes. Rows double as the
// saga step log: the relay resumes anything still PENDING after a crash.
// OperationID never changes across retries.
type StockAdjustment struct {
	ID            int64
	OperationID   string
	OrderID       string
	ItemID        string
	ProductID     string
	Quantity      int
	Kind          AdjustmentKind
	State         AdjustmentState
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewAdjustment(kind AdjustmentKind, orderID string, item OrderItem, now time.Time) StockAdjustment {
	return StockAdjustment{
		OperationID:   uuid.NewString(),
		OrderID:       orderID,
		ItemID:        item.ID,
		ProductID:     item.ProductID,
		Quantity:      item.Quantity,
		Kind:          kind,
		State:         AdjustmentPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Claim records that an attempt is about to be made. Inventory may have
// seen a claimed adjustment, so it is never skipped afterwards.
func (a *StockAdjustment) Claim(now time.Time) {
	a.Attempts++
	a.UpdatedAt = now
}

func (a *StockAdjustment) MarkApplied(now time.Time) {
	a.State = AdjustmentApplied
	a.LastError = ""
	a.UpdatedAt = now
}

func (a *StockAdjustment) MarkRejected(reason string, now time.Time) {
	a.State = AdjustmentRejected
	a.LastError = reason
	a.UpdatedAt = now
}

func (a *StockAdjustment) MarkSkipped(now time.Time) {
	a.State = AdjustmentSkipped
	a.UpdatedAt = now
}

// MarkFailed records an attempt with an unknown outcome and schedules the
// next one. The row stays PENDING.
func (a *StockAdjustment) MarkFailed(reason string, b Backoff, now time.Time) {
	a.LastError = reason
	a.NextAttemptAt = now.Add(b.Delay(a.Attempts))
	a.UpdatedAt = now
}

func (a StockAdjustment) Attempted() bool {
	return a.Attempts > 0 || a.State != AdjustmentPending
}

type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

var DefaultBackoff = Backoff{Base: time.Second, Max: 5 * time.Minute}

// Delay is Base * 2^(attempt-1), capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// SummarizeInventory derives Order.InventoryState from the order's
// adjustments.
func SummarizeInventory(status Status, adjs []StockAdjustment) InventoryState {
	pending := false
	rejected := false
	for _, a := range adjs {
		if a.State == AdjustmentPending {
			if a.Kind == AdjustmentReduce || status == StatusCancelled {
				pending = true
			}
		}
		if a.Kind == AdjustmentReduce && a.State == AdjustmentRejected {
			rejected = true
		}
	}

	if status != StatusCancelled {
		if pending {
			return InventoryReservationPending
		}
		return InventoryReserved
	}
	switch {
	case pending:
		return InventoryReleasePending
	case rejected:
		return InventoryRejected
	default:
		return InventoryReleased
	}
}

// FindReduce returns the REDUCE adjustment a RESTORE compensates.
func FindReduce(adjs []StockAdjustment, restore StockAdjustment) (StockAdjustment, bool) {
	for _, a := range adjs {
		if a.Kind == AdjustmentReduce && a.OrderID == restore.OrderID && a.ItemID == restore.ItemID {
			return a, true
		}
	}
	return StockAdjustment{}, false
}

// RestoreFor builds the compensation of an attempted REDUCE.
func RestoreFor(reduce StockAdjustment, now time.Time) StockAdjustment {
	return NewAdjustment(AdjustmentRestore, reduce.OrderID, OrderItem{
		ID:        reduce.ItemID,
		ProductID: reduce.ProductID,
		Quantity:  reduce.Quantity,
	}, now)
}

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderStatus    = "order.status_changed"
)

// OutboxEvent is a domain event written in the same transaction as the state
// change it describes.
type OutboxEvent struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}

type orderEvent struct {
	EventID        string    `json:"eventId"`
	OrderID        string    `json:"orderId"`
	UserID         string    `json:"userId"`
	Status         Status    `json:"status"`
	TotalAmount    string    `json:"totalAmount"`
	InventoryState string    `json:"inventoryState"`
	Items          []evItem  `json:"items,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type evItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

func NewOrderEvent(topic string, o Order, now time.Time) OutboxEvent {
	id := uuid.NewString()
	ev := orderEvent{
		EventID:        id,
		OrderID:        o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		TotalAmount:    o.TotalAmount.StringFixed(2),
		InventoryState: string(o.InventoryState),
		OccurredAt:     now,
	}
	if topic == TopicOrderCreated {
		for _, it := range o.Items {
			ev.Items = append(ev.Items, evItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price.StringFixed(2)})
		}
	}
	payload, _ := json.Marshal(ev)
	return OutboxEvent{EventID: id, Topic: topic, Key: o.ID, Payload: payload, CreatedAt: now}
}
