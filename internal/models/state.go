// Package models defines conversation state structures for OrderPipe.
package models

import (
	"github.com/shopspring/decimal"
)

// StageType represents where a user is in the ordering conversation.
type StageType string

// Stage constants. The set is closed: unknown values are normalized to StageInitial.
const (
	StageInitial          StageType = "initial"
	StageViewingMenu      StageType = "viewing_menu"
	StageViewingItems     StageType = "viewing_items"
	StageSelectingItem    StageType = "selecting_item"
	StageQuickCartAction  StageType = "quick_cart_action"
	StageCartOptions      StageType = "cart_options"
	StageConfirmingOrder  StageType = "confirming_order"
	StageConfirmingCancel StageType = "confirming_cancel"
	StageSelectingPayment StageType = "selecting_payment"
	StageOrderComplete    StageType = "order_complete"
)

// AllStages lists every known stage.
var AllStages = []StageType{
	StageInitial, StageViewingMenu, StageViewingItems, StageSelectingItem, StageQuickCartAction,
	StageCartOptions, StageConfirmingOrder, StageConfirmingCancel, StageSelectingPayment, StageOrderComplete,
}

// IsValidStage checks if the stage is part of the closed stage set.
func IsValidStage(s StageType) bool {
	for _, known := range AllStages {
		if s == known {
			return true
		}
	}
	return false
}

// CartLine is a pending cart entry. Price is always the catalog price of FoodID.
type CartLine struct {
	FoodID   int64           `json:"foodId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// NewCartLine builds a cart line from an authoritative catalog record.
func NewCartLine(food Food, quantity int) CartLine {
	if quantity <= 0 {
		quantity = 1
	}
	return CartLine{FoodID: food.ID, Name: food.Name, Price: food.Price, Quantity: quantity}
}

// Subtotal returns price × quantity for the line.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered list of cart lines.
type Cart []CartLine

// Add merges quantity into an existing line for the same food, or appends a new line built from food.
func (c Cart) Add(food Food, quantity int) Cart {
	if quantity <= 0 {
		quantity = 1
	}
	for i := range c {
		if c[i].FoodID == food.ID {
			c[i].Quantity += quantity
			c[i].Price = food.Price
			c[i].Name = food.Name
			return c
		}
	}
	return append(c, NewCartLine(food, quantity))
}

// Total returns the sum of all line subtotals.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount returns the sum of all line quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, l := range c {
		n += l.Quantity
	}
	return n
}

// PendingOrder is the validated snapshot shown to the user for confirmation.
type PendingOrder struct {
	Items Cart            `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// ConversationContext is the per-user conversational state carried across messages.
type ConversationContext struct {
	Stage           StageType     `json:"stage"`
	Cart            Cart          `json:"cart"`
	CurrentCategory string        `json:"currentCategory,omitempty"`
	OrderID         string        `json:"orderId,omitempty"`
	PaymentMethod   PaymentMethod `json:"paymentMethod,omitempty"`
	LastAction      string        `json:"lastAction,omitempty"`
	LastAddedItem   string        `json:"lastAddedItem,omitempty"`
	PendingOrder    *PendingOrder `json:"pendingOrder,omitempty"`
}

// NewConversationContext returns the default context for a first contact.
func NewConversationContext() ConversationContext {
	return ConversationContext{Stage: StageInitial, Cart: Cart{}}
}

// Normalize fills in defaults for contexts loaded from storage.
func (c ConversationContext) Normalize() ConversationContext {
	if !IsValidStage(c.Stage) {
		c.Stage = StageInitial
	}
	if c.Cart == nil {
		c.Cart = Cart{}
	}
	return c
}

// Clone returns a deep copy so handlers never mutate a caller's cart slice.
func (c ConversationContext) Clone() ConversationContext {
	out := c
	out.Cart = append(Cart{}, c.Cart...)
	if c.PendingOrder != nil {
		po := PendingOrder{Items: append(Cart{}, c.PendingOrder.Items...), Total: c.PendingOrder.Total}
		out.PendingOrder = &po
	}
	return out
}
