package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func food(id int64, name, price string) Food {
	return Food{ID: id, Name: name, Price: decimal.RequireFromString(price), Category: "momos", Available: true}
}

func TestCartAddMergesQuantityAndUsesCatalogPrice(t *testing.T) {
	steamed := food(1, "Steamed Veg Momo", "180")
	cart := Cart{}
	cart = cart.Add(steamed, 2)
	cart = cart.Add(steamed, 3)

	if len(cart) != 1 {
		t.Fatalf("expected 1 cart line, got %d", len(cart))
	}
	if cart[0].Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", cart[0].Quantity)
	}
	if !cart[0].Price.Equal(steamed.Price) {
		t.Errorf("expected catalog price %s, got %s", steamed.Price, cart[0].Price)
	}
	if got := cart.Total().String(); got != "900" {
		t.Errorf("expected total 900, got %s", got)
	}
	if cart.ItemCount() != 5 {
		t.Errorf("expected item count 5, got %d", cart.ItemCount())
	}
}

func TestCartAddRepricesExistingLine(t *testing.T) {
	cart := Cart{{FoodID: 7, Name: "Coffee", Price: decimal.NewFromInt(1), Quantity: 1}}
	cart = cart.Add(food(7, "Coffee", "60"), 1)
	if got := cart[0].Price.String(); got != "60" {
		t.Errorf("expected price refreshed to 60, got %s", got)
	}
}

func TestNewCartLineDefaultsQuantity(t *testing.T) {
	line := NewCartLine(food(3, "Jhol Momo", "250"), 0)
	if line.Quantity != 1 {
		t.Errorf("expected default quantity 1, got %d", line.Quantity)
	}
	if line.Subtotal().String() != "250" {
		t.Errorf("unexpected subtotal %s", line.Subtotal())
	}
}

func TestConversationContextNormalize(t *testing.T) {
	cc := ConversationContext{Stage: "bogus"}.Normalize()
	if cc.Stage != StageInitial {
		t.Errorf("expected stage initial, got %s", cc.Stage)
	}
	if cc.Cart == nil {
		t.Error("expected non-nil cart")
	}
}

func TestConversationContextCloneIsDeep(t *testing.T) {
	orig := NewConversationContext()
	orig.Cart = orig.Cart.Add(food(1, "Tandoori Momo", "260"), 1)
	orig.PendingOrder = &PendingOrder{Items: append(Cart{}, orig.Cart...), Total: orig.Cart.Total()}

	clone := orig.Clone()
	clone.Cart[0].Quantity = 99
	clone.PendingOrder.Items[0].Quantity = 99

	if orig.Cart[0].Quantity != 1 || orig.PendingOrder.Items[0].Quantity != 1 {
		t.Error("clone shares memory with original")
	}
}

func TestConversationContextJSONShape(t *testing.T) {
	cc := NewConversationContext()
	cc.Cart = cc.Cart.Add(food(2, "Steamed Chicken Momo", "220"), 1)
	cc.CurrentCategory = "momos"

	data, err := json.Marshal(cc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"stage", "cart", "currentCategory"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("expected key %q in %s", key, data)
		}
	}
	if _, ok := raw["orderId"]; ok {
		t.Errorf("expected orderId omitted when empty: %s", data)
	}
}

func TestDecodeParamsValidation(t *testing.T) {
	tests := []struct {
		name    string
		call    FunctionCall
		params  ToolParams
		wantErr bool
	}{
		{"empty args", FunctionCall{Name: "show_food_menu"}, &ShowFoodMenuParams{}, false},
		{"add by name", FunctionCall{Name: "add_item_by_name", Arguments: json.RawMessage(`{"name":"momo","quantity":2}`)}, &AddItemByNameParams{}, false},
		{"fractional quantity", FunctionCall{Name: "add_item_by_name", Arguments: json.RawMessage(`{"name":"momo","quantity":1.5}`)}, &AddItemByNameParams{}, true},
		{"bad action", FunctionCall{Name: "process_order_response", Arguments: json.RawMessage(`{"action":"maybe"}`)}, &ProcessOrderResponseParams{}, true},
		{"good action", FunctionCall{Name: "process_order_response", Arguments: json.RawMessage(`{"action":"confirmed"}`)}, &ProcessOrderResponseParams{}, false},
		{"bad payment", FunctionCall{Name: "process_payment", Arguments: json.RawMessage(`{"method":"CARD"}`)}, &ProcessPaymentParams{}, true},
		{"malformed json", FunctionCall{Name: "send_text_reply", Arguments: json.RawMessage(`{"message":`)}, &SendTextReplyParams{}, true},
		{"item without id or name", FunctionCall{Name: "confirm_order", Arguments: json.RawMessage(`{"items":[{"quantity":1}]}`)}, &ConfirmOrderParams{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call.DecodeParams(tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddItemByNameAlias(t *testing.T) {
	p := &AddItemByNameParams{}
	fc := FunctionCall{Name: "add_item_by_name", Arguments: json.RawMessage(`{"itemName":" Jhol "}`)}
	if err := fc.DecodeParams(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "Jhol" {
		t.Errorf("expected alias to populate name, got %q", p.Name)
	}
	if p.Qty() != 1 {
		t.Errorf("expected default quantity 1, got %d", p.Qty())
	}
}

func TestProcessPaymentSentinel(t *testing.T) {
	p := &ProcessPaymentParams{Method: "BITCOIN"}
	if err := p.Validate(); !errors.Is(err, ErrInvalidPaymentMethod) {
		t.Errorf("expected ErrInvalidPaymentMethod, got %v", err)
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	if r := Success(map[string]string{"k": "v"}); r.Status != "ok" || r.Result == nil {
		t.Errorf("unexpected success response: %+v", r)
	}
	if r := Error("boom"); r.Status != "error" || r.Message != "boom" {
		t.Errorf("unexpected error response: %+v", r)
	}
	if r := SuccessWithMessage("done", nil); r.Status != "ok" || r.Message != "done" {
		t.Errorf("unexpected success-with-message response: %+v", r)
	}
}
