package postgres

import (
	"embed"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwikikusuma/shoping-fulfillment/internal/order/domain"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const (
	MigrationsDir   = "migrations"
	MigrationsTable = "order_schema_migrations"
)

type orderModel struct {
	ID              string          `gorm:"primaryKey;type:uuid"`
	UserID          string          `gorm:"not null"`
	OrderDate       time.Time       `gorm:"not null"`
	Status          string          `gorm:"not null"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ShippingAddress string          `gorm:"not null"`
	PaymentMethod   string
	Notes           string
	IdempotencyKey  *string
	RequestHash     string           `gorm:"not null"`
	InventoryState  string           `gorm:"not null"`
	Version         int64            `gorm:"not null"`
	Items           []orderItemModel `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	OrderID     string `gorm:"type:uuid;not null"`
	Position    int
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal `gorm:"type:numeric(12,2)"`
	Subtotal    decimal.Decimal `gorm:"type:numeric(12,2)"`
}

func (orderItemModel) TableName() string { return "order_items" }

type adjustmentModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	OperationID   string `gorm:"type:uuid;not null"`
	OrderID       string `gorm:"type:uuid;not null"`
	ItemID        string `gorm:"type:uuid;not null"`
	ProductID     string
	Quantity      int
	Kind          string
	State         string
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (adjustmentModel) TableName() string { return "stock_adjustments" }

type eventModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	EventID   string `gorm:"type:uuid;not null"`
	Topic     string
	Key       string
	Payload   string `gorm:"type:jsonb"`
	CreatedAt time.Time
	SentAt    *time.Time
}

func (eventModel) TableName() string { return "outbox_events" }

func toOrderModel(o domain.Order) orderModel {
	m := orderModel{
		ID:              o.ID,
		UserID:          o.UserID,
		OrderDate:       o.OrderDate,
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		Notes:           o.Notes,
		RequestHash:     o.RequestHash,
		InventoryState:  string(o.InventoryState),
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.IdempotencyKey != "" {
		key := o.IdempotencyKey
		m.IdempotencyKey = &key
	}
	for i, it := range o.Items {
		m.Items = append(m.Items, orderItemModel{
			ID:          it.ID,
			OrderID:     o.ID,
			Position:    i,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Subtotal,
		})
	}
	return m
}

func (m orderModel) toDomain() domain.Order {
	o := domain.Order{
		ID:              m.ID,
		UserID:          m.UserID,
		OrderDate:       m.OrderDate,
		Status:          domain.Status(m.Status),
		TotalAmount:     m.TotalAmount,
		ShippingAddress: m.ShippingAddress,
		PaymentMethod:   m.PaymentMethod,
		Notes:           m.Notes,
		RequestHash:     m.RequestHash,
		InventoryState:  domain.InventoryState(m.InventoryState),
		Version:         m.Version,
		Items:           make([]domain.OrderItem, 0, len(m.Items)),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.IdempotencyKey != nil {
		o.IdempotencyKey = *m.IdempotencyKey
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ID:          it.ID,
			OrderID:     it.OrderID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Subtotal,
		})
	}
	return o
}

func toAdjustmentModel(a domain.StockAdjustment) adjustmentModel {
	return adjustmentModel{
		ID:            a.ID,
		OperationID:   a.OperationID,
		OrderID:       a.OrderID,
		ItemID:        a.ItemID,
		ProductID:     a.ProductID,
		Quantity:      a.Quantity,
		Kind:          string(a.Kind),
		State:         string(a.State),
		Attempts:      a.Attempts,
		LastError:     a.LastError,
		NextAttemptAt: a.NextAttemptAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (m adjustmentModel) toDomain() domain.StockAdjustment {
	return domain.StockAdjustment{
		ID:            m.ID,
		OperationID:   m.OperationID,
		OrderID:       m.OrderID,
		ItemID:        m.ItemID,
		ProductID:     m.ProductID,
		Quantity:      m.Quantity,
		Kind:          domain.AdjustmentKind(m.Kind),
		State:         domain.AdjustmentState(m.State),
		Attempts:      m.Attempts,
		LastError:     m.LastError,
		NextAttemptAt: m.NextAttemptAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toEventModel(ev domain.OutboxEvent) eventModel {
	return eventModel{
		EventID:   ev.EventID,
		Topic:     ev.Topic,
		Key:       ev.Key,
		Payload:   string(ev.Payload),
		CreatedAt: ev.CreatedAt,
	}
}

func (m eventModel) toDomain() domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:        m.ID,
		EventID:   m.EventID,
		Topic:     m.Topic,
		Key:       m.Key,
		Payload:   []byte(m.Payload),
		CreatedAt: m.CreatedAt,
		SentAt:    m.SentAt,
	}
}
