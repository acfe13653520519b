package postgres

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/app"
	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/domain"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/postgres"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const (
	MigrationsDir   = "migrations"
	MigrationsTable = "cart_schema_migrations"
)

type cartModel struct {
	ID        string          `gorm:"primaryKey;type:uuid"`
	UserID    string          `gorm:"not null"`
	Version   int64           `gorm:"not null"`
	Items     []cartItemModel `gorm:"foreignKey:CartID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (cartModel) TableName() string { return "carts" }

type cartItemModel struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	CartID      string `gorm:"type:uuid;not null"`
	Position    int
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal `gorm:"type:numeric(12,2)"`
	Subtotal    decimal.Decimal `gorm:"type:numeric(12,2)"`
}

func (cartItemModel) TableName() string { return "cart_items" }

func (m cartModel) toDomain() domain.Cart {
	c := domain.Cart{
		ID:        m.ID,
		UserID:    m.UserID,
		Version:   m.Version,
		Items:     make([]domain.CartItem, 0, len(m.Items)),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	for _, it := range m.Items {
		c.Items = append(c.Items, domain.CartItem{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Subtotal,
		})
	}
	return c
}

func itemModels(c domain.Cart) []cartItemModel {
	out := make([]cartItemModel, 0, len(c.Items))
	for i, it := range c.Items {
		out = append(out, cartItemModel{
			ID:          it.ID,
			CartID:      c.ID,
			Position:    i,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Subtotal,
		})
	}
	return out
}

type CartRepo struct {
	db *gorm.DB
}

func NewCartRepo(db *gorm.DB) *CartRepo {
	return &CartRepo{db: db}
}

var _ app.CartRepo = (*CartRepo)(nil)

func (r *CartRepo) execTX(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *CartRepo) find(ctx context.Context, query string, arg any) (cartModel, error) {
	var m cartModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where(query, arg).Take(&m).Error
	return m, err
}

func (r *CartRepo) GetByUserID(ctx context.Context, userID string) (domain.Cart, error) {
	m, err := r.find(ctx, "user_id = ?", userID)
	if postgres.IsNotFound(err) {
		return domain.Cart{}, apperr.ErrCartNotFound.With("cart not found for user: %s", userID)
	}
	if err != nil {
		return domain.Cart{}, err
	}
	return m.toDomain(), nil
}

func (r *CartRepo) GetByID(ctx context.Context, cartID string) (domain.Cart, error) {
	if !postgres.ValidID(cartID) {
		return domain.Cart{}, apperr.ErrCartNotFound.With("cart not found with id: %s", cartID)
	}
	m, err := r.find(ctx, "id = ?", cartID)
	if postgres.IsNotFound(err) {
		return domain.Cart{}, apperr.ErrCartNotFound.With("cart not found with id: %s", cartID)
	}
	if err != nil {
		return domain.Cart{}, err
	}
	return m.toDomain(), nil
}

func (r *CartRepo) GetByItemID(ctx context.Context, itemID string) (domain.Cart, error) {
	if !postgres.ValidID(itemID) {
		return domain.Cart{}, apperr.ErrItemNotFound.With("cart item not found with id: %s", itemID)
	}
	var item cartItemModel
	err := r.db.WithContext(ctx).Select("cart_id").Where("id = ?", itemID).Take(&item).Error
	if postgres.IsNotFound(err) {
		return domain.Cart{}, apperr.ErrItemNotFound.With("cart item not found with id: %s", itemID)
	}
	if err != nil {
		return domain.Cart{}, err
	}
	return r.GetByID(ctx, item.CartID)
}

// Create inserts an empty cart. A concurrent create for the same user loses
// on the unique index and gets the winner's cart back.
func (r *CartRepo) Create(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	now := time.Now().UTC()
	m := cartModel{ID: cart.ID, UserID: cart.UserID, Version: 1, CreatedAt: now, UpdatedAt: now}

	err := r.db.WithContext(ctx).Omit("Items").Create(&m).Error
	if postgres.IsUniqueViolation(err) {
		return r.GetByUserID(ctx, cart.UserID)
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("failed to create cart: %w", err)
	}
	return m.toDomain(), nil
}

// Save replaces the item set of the cart when its version still matches.
func (r *CartRepo) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	err := r.execTX(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&cartModel{}).
			Where("id = ? AND version = ?", cart.ID, cart.Version).
			Updates(map[string]any{"version": gorm.Expr("version + 1"), "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&cartModel{}).Where("id = ?", cart.ID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return apperr.ErrCartNotFound.With("cart not found with id: %s", cart.ID)
			}
			return apperr.ErrVersionConflict.With("cart %s was modified concurrently", cart.ID)
		}

		if err := tx.Where("cart_id = ?", cart.ID).Delete(&cartItemModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete cart items: %w", err)
		}
		items := itemModels(cart)
		if len(items) == 0 {
			return nil
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("failed to insert cart items: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return r.GetByID(ctx, cart.ID)
}

func (r *CartRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
