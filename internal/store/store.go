// Package store provides storage backends for OrderPipe.
//
// It includes the catalog and order repositories used by the conversation handlers,
// backed by PostgreSQL, SQLite or process memory.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

// ErrNotFound is returned when a requested food or order does not exist (or is unavailable).
var ErrNotFound = errors.New("not found")

// DefaultHistoryLimit is the number of orders returned by order history lookups.
const DefaultHistoryLimit = 5

// CatalogRepo reads the read-only food catalog. Only available foods are returned.
type CatalogRepo interface {
	ListCategories(ctx context.Context) ([]string, error)
	ListFoodsByCategory(ctx context.Context, category string) ([]models.Food, error)
	GetFoodByID(ctx context.Context, id int64) (models.Food, error)
	// FindFoodsByName performs a case-insensitive substring match on the food name.
	FindFoodsByName(ctx context.Context, name string) ([]models.Food, error)
	CountFoods(ctx context.Context) (int, error)
	SeedFoods(ctx context.Context, foods []models.Food) (int, error)
}

// OrderRepo manages persisted orders.
//
// Monetary values are never accepted from callers: line items reference a food id
// and every total is computed from the stored food price.
type OrderRepo interface {
	CreateOrder(ctx context.Context, userID string) (models.Order, error)
	// GetActiveOrder returns the newest order that is neither completed nor cancelled.
	GetActiveOrder(ctx context.Context, userID string) (models.Order, error)
	// AddOrderItem inserts a line or sums the quantity into the existing line for the same food.
	AddOrderItem(ctx context.Context, orderID, foodID int64, quantity int) (models.OrderItem, error)
	RemoveOrderItem(ctx context.Context, orderID, foodID int64) (bool, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItemDetail, error)
	GetOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) (models.Order, error)
	// SelectPayment records the payment method and flips the status to confirmed.
	SelectPayment(ctx context.Context, orderID int64, method models.PaymentMethod) (models.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (models.Order, error)
	GetOrderHistory(ctx context.Context, userID string, limit int) ([]models.OrderSummary, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	CatalogRepo
	OrderRepo
	DedupRepo
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that all backends implement Store.
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
