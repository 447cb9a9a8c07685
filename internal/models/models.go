// Package models defines the core data structures for OrderPipe.
//
// It includes catalog, order and cart types shared across the store, flow and api modules,
// along with the standard JSON envelope used by the HTTP API.
package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle status of a persisted order.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValidOrderStatus checks if the given status is one of the known order statuses.
func IsValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusCreated, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentMethod identifies how the customer pays for an order.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery.
	PaymentMethodCOD PaymentMethod = "COD"
	// PaymentMethodOnline is an e-wallet or bank transfer settled before preparation.
	PaymentMethodOnline PaymentMethod = "ONLINE"
)

// IsValidPaymentMethod checks if the given payment method is supported.
func IsValidPaymentMethod(m PaymentMethod) bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

// Error variables for validation failures.
var (
	ErrInvalidOrderStatus   = errors.New("invalid order status")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrEmptyUserID          = errors.New("user id cannot be empty")
)

// Food is a catalog entry. It is read-only reference data from the bot's point of view.
type Food struct {
	ID          int64           `json:"id" yaml:"id,omitempty"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	Category    string          `json:"category" yaml:"category"`
	ImageURL    string          `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Available   bool            `json:"available" yaml:"available"`
}

// Order is a persisted customer order.
type Order struct {
	ID            int64         `json:"id"`
	UserID        string        `json:"user_id"`
	Status        OrderStatus   `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// OrderItem is one food line of a persisted order.
type OrderItem struct {
	ID       int64 `json:"id"`
	OrderID  int64 `json:"order_id"`
	FoodID   int64 `json:"food_id"`
	Quantity int   `json:"quantity"`
}

// OrderItemDetail is an order line joined with its food record.
type OrderItemDetail struct {
	OrderItem
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// OrderSummary is an order history row with aggregated item count and total.
type OrderSummary struct {
	ID            int64           `json:"id"`
	Status        OrderStatus     `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ItemCount     int             `json:"item_count"`
	Total         decimal.Decimal `json:"total"`
}

// CategorySummary is a distinct catalog category.
type CategorySummary struct {
	Category string `json:"category"`
}

// APIStatus represents the status field of API responses.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
