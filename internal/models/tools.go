// Package models defines tool structures for LLM function calling.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ToolName identifies a capability the router or the classifier can invoke.
type ToolName string

const (
	ToolShowFoodMenu         ToolName = "show_food_menu"
	ToolShowCategoryItems    ToolName = "show_category_items"
	ToolShowMomoVarieties    ToolName = "show_momo_varieties"
	ToolAddToCart            ToolName = "add_to_cart"
	ToolAddItemByName        ToolName = "add_item_by_name"
	ToolShowCartOptions      ToolName = "show_cart_options"
	ToolConfirmOrder         ToolName = "confirm_order"
	ToolShowPaymentOptions   ToolName = "show_payment_options"
	ToolProcessOrderResponse ToolName = "process_order_response"
	ToolProcessPayment       ToolName = "process_payment"
	ToolShowOrderHistory     ToolName = "show_order_history"
	ToolSendTextReply        ToolName = "send_text_reply"
)

// OrderAction is the user's answer to an order confirmation prompt.
type OrderAction string

const (
	// OrderActionConfirmed persists the pending order.
	OrderActionConfirmed OrderAction = "confirmed"
	// OrderActionCancelled asks the user to confirm the cancellation.
	OrderActionCancelled OrderAction = "cancelled"
	// OrderActionCancelConfirm clears the cart after the user confirmed cancellation.
	OrderActionCancelConfirm OrderAction = "cancel_confirm"
)

// ToolParams is implemented by every typed argument struct.
type ToolParams interface {
	Validate() error
}

// ShowFoodMenuParams carries no arguments.
type ShowFoodMenuParams struct{}

// Validate always succeeds.
func (p *ShowFoodMenuParams) Validate() error { return nil }

// ShowCategoryItemsParams defines the parameters for show_category_items.
type ShowCategoryItemsParams struct {
	Category string `json:"category,omitempty"` // Defaults to momos when empty
}

// Validate normalizes the category name.
func (p *ShowCategoryItemsParams) Validate() error {
	p.Category = strings.TrimSpace(p.Category)
	if len(p.Category) > 100 {
		return fmt.Errorf("category too long: %d characters", len(p.Category))
	}
	return nil
}

// AddToCartParams defines the parameters for add_to_cart.
type AddToCartParams struct {
	FoodID   int64   `json:"foodId"`
	Quantity float64 `json:"quantity,omitempty"`
}

// Validate ensures the food id is positive and the quantity is a whole number.
func (p *AddToCartParams) Validate() error {
	if p.FoodID <= 0 {
		return fmt.Errorf("foodId must be positive, got %d", p.FoodID)
	}
	return validateQuantity(p.Quantity)
}

// Qty returns the requested quantity, defaulting to 1.
func (p *AddToCartParams) Qty() int { return quantityOrDefault(p.Quantity) }

// AddItemByNameParams defines the parameters for add_item_by_name.
type AddItemByNameParams struct {
	Name     string  `json:"name,omitempty"`
	ItemName string  `json:"itemName,omitempty"` // accepted alias for name
	Quantity float64 `json:"quantity,omitempty"`
}

// Validate checks the quantity; an empty name is handled by the handler with a prompt.
func (p *AddItemByNameParams) Validate() error {
	if p.Name == "" {
		p.Name = p.ItemName
	}
	p.Name = strings.TrimSpace(p.Name)
	return validateQuantity(p.Quantity)
}

// Qty returns the requested quantity, defaulting to 1.
func (p *AddItemByNameParams) Qty() int { return quantityOrDefault(p.Quantity) }

// OrderLineRequest is an item reference supplied to confirm_order.
// Only FoodID, Name and Quantity are read; prices are always looked up.
type OrderLineRequest struct {
	FoodID   int64  `json:"foodId,omitempty"`
	Name     string `json:"name,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

// ConfirmOrderParams defines the parameters for confirm_order.
type ConfirmOrderParams struct {
	Items []OrderLineRequest `json:"items,omitempty"` // Empty means use the current cart
}

// Validate rejects lines that carry neither an id nor a name.
func (p *ConfirmOrderParams) Validate() error {
	for i, item := range p.Items {
		if item.FoodID <= 0 && strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("items[%d]: foodId or name is required", i)
		}
		if item.Quantity < 0 {
			return fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
	}
	return nil
}

// LinesFromCart converts cart lines into confirmation requests.
func LinesFromCart(cart Cart) []OrderLineRequest {
	lines := make([]OrderLineRequest, 0, len(cart))
	for _, l := range cart {
		lines = append(lines, OrderLineRequest{FoodID: l.FoodID, Name: l.Name, Quantity: l.Quantity})
	}
	return lines
}

// ProcessOrderResponseParams defines the parameters for process_order_response.
type ProcessOrderResponseParams struct {
	Action OrderAction `json:"action"`
}

// Validate ensures the action is one of the known order actions.
func (p *ProcessOrderResponseParams) Validate() error {
	switch p.Action {
	case OrderActionConfirmed, OrderActionCancelled, OrderActionCancelConfirm:
		return nil
	default:
		return fmt.Errorf("invalid order action: %q", p.Action)
	}
}

// ProcessPaymentParams defines the parameters for process_payment.
type ProcessPaymentParams struct {
	Method PaymentMethod `json:"method"`
}

// Validate ensures the payment method is supported.
func (p *ProcessPaymentParams) Validate() error {
	if !IsValidPaymentMethod(p.Method) {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, p.Method)
	}
	return nil
}

// ShowOrderHistoryParams carries no arguments.
type ShowOrderHistoryParams struct{}

// Validate always succeeds.
func (p *ShowOrderHistoryParams) Validate() error { return nil }

// ShowCartOptionsParams carries no arguments.
type ShowCartOptionsParams struct{}

// Validate always succeeds.
func (p *ShowCartOptionsParams) Validate() error { return nil }

// ShowPaymentOptionsParams carries no arguments.
type ShowPaymentOptionsParams struct{}

// Validate always succeeds.
func (p *ShowPaymentOptionsParams) Validate() error { return nil }

// SendTextReplyParams defines the parameters for send_text_reply.
type SendTextReplyParams struct {
	Message string `json:"message,omitempty"`
}

// Validate bounds the message length.
func (p *SendTextReplyParams) Validate() error {
	if len(p.Message) > 4096 {
		return fmt.Errorf("message too long: %d characters", len(p.Message))
	}
	return nil
}

func validateQuantity(q float64) error {
	if q < 0 || q != math.Trunc(q) || q > 1000 {
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, q)
	}
	return nil
}

func quantityOrDefault(q float64) int {
	if q <= 0 {
		return 1
	}
	return int(q)
}

// ToolCall represents an LLM tool function call.
type ToolCall struct {
	ID       string       `json:"id"`       // Tool call ID from the provider
	Type     string       `json:"type"`     // Always "function"
	Function FunctionCall `json:"function"` // Function details
}

// FunctionCall represents the function details within a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`      // Function name (e.g., "show_food_menu")
	Arguments json.RawMessage `json:"arguments"` // JSON arguments as raw message
}

// DecodeParams unmarshals the arguments into dst and validates them.
// Empty arguments decode as an empty object.
func (fc *FunctionCall) DecodeParams(dst ToolParams) error {
	raw := bytes.TrimSpace(fc.Arguments)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to parse %s parameters: %w", fc.Name, err)
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("invalid %s parameters: %w", fc.Name, err)
	}
	return nil
}
