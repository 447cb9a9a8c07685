package flow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/OrderPipe/internal/messaging"
	"github.com/BTreeMap/OrderPipe/internal/models"
	"github.com/BTreeMap/OrderPipe/internal/store"
	"github.com/BTreeMap/OrderPipe/internal/testutil"
)

func TestAddToCartMergesLinesAtCatalogPrice(t *testing.T) {
	f := newTestFixture(t)
	f.tap(t, "add_1")
	f.tap(t, "add_1")
	f.tap(t, "add_5")

	cc := f.context(t)
	if len(cc.Cart) != 2 {
		t.Fatalf("expected 2 cart lines, got %d: %+v", len(cc.Cart), cc.Cart)
	}
	if cc.Cart[0].FoodID != 1 || cc.Cart[0].Quantity != 2 {
		t.Errorf("expected food 1 x2, got %+v", cc.Cart[0])
	}
	if !cc.Cart[0].Price.Equal(f.food(t, 1).Price) {
		t.Errorf("cart price %s does not match catalog price %s", cc.Cart[0].Price, f.food(t, 1).Price)
	}
	if cc.Stage != models.StageQuickCartAction || cc.LastAddedItem != "Tandoori Momo" {
		t.Errorf("unexpected context after add: stage=%s lastAdded=%s", cc.Stage, cc.LastAddedItem)
	}

	last := f.sender.Last()
	if last.Kind != messaging.KindButtons || last.Buttons == nil {
		t.Fatalf("expected quick action buttons, got %+v", last)
	}
	want := "*Tandoori Momo* x1 - Rs.260\n\n🛒 Cart: 3 item(s) | Total: Rs.620\n\nWhat would you like to do?"
	if last.Text != want {
		t.Errorf("body = %q, want %q", last.Text, want)
	}
	if got := last.Buttons.Buttons[0].Reply.ID; got != "more_momos" {
		t.Errorf("first quick action = %q, want more_momos", got)
	}
}

func TestAddToCartUnavailableFood(t *testing.T) {
	f := newTestFixture(t)
	f.tap(t, "add_999")

	if got := f.sender.Last().Text; got != "Sorry, that item is not available." {
		t.Errorf("unexpected reply %q", got)
	}
	if cc := f.context(t); len(cc.Cart) != 0 || cc.Stage != models.StageInitial {
		t.Errorf("context should be unchanged, got %+v", cc)
	}
}

func TestConfirmOrderDropsUnresolvedLines(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	cc := models.NewConversationContext()

	d, err := f.handlers.ConfirmOrder(ctx, &models.ConfirmOrderParams{Items: []models.OrderLineRequest{
		{FoodID: 999, Name: "Ghost Momo", Quantity: 1},
		{Name: "tandoori", Quantity: 2},
		{Name: "Pizza"},
	}}, testUser, cc)
	if err != nil {
		t.Fatalf("ConfirmOrder: %v", err)
	}

	if len(d.Context.Cart) != 1 || d.Context.Cart[0].Name != "Tandoori Momo" || d.Context.Cart[0].Quantity != 2 {
		t.Fatalf("unexpected validated cart: %+v", d.Context.Cart)
	}
	if !d.Context.Cart[0].Price.Equal(decimal.RequireFromString("260")) {
		t.Errorf("line repriced to %s, want 260", d.Context.Cart[0].Price)
	}
	if d.Context.Stage != models.StageConfirmingOrder || d.Context.PendingOrder == nil {
		t.Fatalf("expected confirming_order with pending order, got %+v", d.Context)
	}
	if !d.Context.PendingOrder.Total.Equal(decimal.RequireFromString("520")) {
		t.Errorf("pending total = %s, want 520", d.Context.PendingOrder.Total)
	}

	msgs := f.sender.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected notice + confirmation, got %d messages", len(msgs))
	}
	if msgs[0].Text != "⚠️ Note: These items are not available and were removed:\n• Ghost Momo\n• Pizza" {
		t.Errorf("unexpected notice %q", msgs[0].Text)
	}
	if msgs[1].Buttons == nil || msgs[1].Buttons.Buttons[0].Reply.ID != messaging.ConfirmOrderButtonID {
		t.Fatalf("expected confirmation buttons, got %+v", msgs[1])
	}
	if !strings.Contains(msgs[1].Text, "• Tandoori Momo x2 - Rs.520\n━━━━━━━━━━━━━━━\nTotal: Rs.520") {
		t.Errorf("unexpected confirmation body %q", msgs[1].Text)
	}
}

func TestConfirmOrderWithNoValidLinesCreatesNoOrder(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	d, err := f.handlers.ConfirmOrder(ctx, &models.ConfirmOrderParams{Items: []models.OrderLineRequest{{Name: "Burger"}}}, testUser, models.NewConversationContext())
	if err != nil {
		t.Fatalf("ConfirmOrder: %v", err)
	}
	if d.Context.Stage != models.StageViewingMenu {
		t.Errorf("expected redirect to menu, got stage %s", d.Context.Stage)
	}
	msgs := f.sender.Messages()
	if len(msgs) != 2 || msgs[1].Kind != messaging.KindList {
		t.Fatalf("expected apology then category list, got %+v", msgs)
	}
	if !strings.HasPrefix(msgs[0].Text, "❌ Sorry, none of the items are available:\n• Burger") {
		t.Errorf("unexpected apology %q", msgs[0].Text)
	}
	history, err := f.store.GetOrderHistory(ctx, testUser, 5)
	if err != nil {
		t.Fatalf("GetOrderHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("no order should be created, got %d", len(history))
	}
}

func TestShowCategoryItemsPaginatesRows(t *testing.T) {
	st := store.NewInMemoryStore()
	var foods []models.Food
	for i := 1; i <= 23; i++ {
		foods = append(foods, models.Food{
			Name:        fmt.Sprintf("Dumpling %02d", i),
			Description: strings.Repeat("d", 80),
			Price:       decimal.NewFromInt(int64(100 + i)),
			Category:    "momos",
			Available:   true,
		})
	}
	if _, err := st.SeedFoods(context.Background(), foods); err != nil {
		t.Fatalf("SeedFoods: %v", err)
	}
	f := newFixture(t, st, st)

	d, err := f.handlers.ShowCategoryItems(context.Background(), &models.ShowCategoryItemsParams{Category: "momos"}, testUser, models.NewConversationContext())
	if err != nil {
		t.Fatalf("ShowCategoryItems: %v", err)
	}
	if d.Context.Stage != models.StageViewingItems || d.Context.CurrentCategory != "momos" {
		t.Errorf("unexpected context %+v", d.Context)
	}

	list := f.sender.Last().List
	if list == nil {
		t.Fatal("expected a list message")
	}
	if list.Header != "🍽️ MOMOS Menu" {
		t.Errorf("header = %q", list.Header)
	}
	sizes := []int{10, 10, 3}
	titles := []string{"Momos", "More momos", "More momos"}
	if len(list.Sections) != len(sizes) {
		t.Fatalf("expected %d sections, got %d", len(sizes), len(list.Sections))
	}
	n := 0
	for i, sec := range list.Sections {
		if len(sec.Rows) != sizes[i] || sec.Title != titles[i] {
			t.Errorf("section %d: %d rows titled %q", i, len(sec.Rows), sec.Title)
		}
		for _, row := range sec.Rows {
			n++
			if want := fmt.Sprintf("add_%d", n); row.ID != want {
				t.Errorf("row %d id = %q, want %q", n, row.ID, want)
			}
			if got := len([]rune(row.Description)); got != len("Rs.101 - ")+50 {
				t.Errorf("row %d description has %d runes", n, got)
			}
		}
	}
}

func TestShowCartOptionsEmptyCartRedirectsToMenu(t *testing.T) {
	f := newTestFixture(t)
	d, err := f.handlers.ShowCartOptions(context.Background(), testUser, models.NewConversationContext())
	if err != nil {
		t.Fatalf("ShowCartOptions: %v", err)
	}
	msgs := f.sender.Messages()
	if len(msgs) != 2 || msgs[0].Text != "Your cart is empty! Let me show you our menu." {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if d.Context.Stage != models.StageViewingMenu {
		t.Errorf("stage = %s, want viewing_menu", d.Context.Stage)
	}
	rows := msgs[1].List.Sections[0].Rows
	if len(rows) != 4 || rows[0].ID != "cat_beverages" || rows[0].Title != "Beverages ☕" {
		t.Errorf("unexpected category rows %+v", rows)
	}
}

func TestOrderCreationFailureConfirmsWithReference(t *testing.T) {
	st := testutil.SeededStore(t)
	f := newFixture(t, failingOrders{st}, st)
	cc := models.NewConversationContext()
	cc.Cart = cc.Cart.Add(f.food(t, 1), 2)
	cc.Stage = models.StageConfirmingOrder
	f.setContext(t, cc)

	f.tap(t, "confirm_order")

	text := f.sender.Last().Text
	if !strings.Contains(text, "Order ID: #MH123456") {
		t.Errorf("expected synthetic reference in %q", text)
	}
	if !regexp.MustCompile(`#MH\d{6}\b`).MatchString(text) {
		t.Errorf("reference does not match MH + 6 digits: %q", text)
	}
	if !strings.Contains(text, "delivered in 30-40 minutes") {
		t.Errorf("expected delivery estimate in %q", text)
	}
	got := f.context(t)
	if got.Stage != models.StageOrderComplete || len(got.Cart) != 0 || got.LastAction != "order_confirmed" {
		t.Errorf("unexpected context %+v", got)
	}
}

// soldOut hides one food from the catalog, as if it sold out after the summary was shown.
type soldOut struct {
	*store.InMemoryStore
	foodID int64
}

func (s soldOut) GetFoodByID(ctx context.Context, id int64) (models.Food, error) {
	if id == s.foodID {
		return models.Food{}, fmt.Errorf("food %d: %w", id, store.ErrNotFound)
	}
	return s.InMemoryStore.GetFoodByID(ctx, id)
}

func (s soldOut) AddOrderItem(ctx context.Context, orderID, foodID int64, quantity int) (models.OrderItem, error) {
	if foodID == s.foodID {
		return models.OrderItem{}, fmt.Errorf("food %d: %w", foodID, store.ErrNotFound)
	}
	return s.InMemoryStore.AddOrderItem(ctx, orderID, foodID, quantity)
}

func TestSoldOutItemAtConfirmationRevalidatesInsteadOfConfirming(t *testing.T) {
	st := testutil.SeededStore(t)
	f := newFixture(t, soldOut{InMemoryStore: st, foodID: 5}, st)
	kept, gone := f.food(t, 1), f.food(t, 5)
	cc := models.NewConversationContext()
	cc.Cart = cc.Cart.Add(kept, 2).Add(gone, 1)
	cc.Stage = models.StageConfirmingOrder
	f.setContext(t, cc)

	f.tap(t, "confirm_order")

	msgs := f.sender.Messages()
	if containsText(msgs, "Order Confirmed") {
		t.Fatalf("order must not be confirmed when an item sold out: %+v", msgs)
	}
	if !containsText(msgs, "not available and were removed") || !containsText(msgs, gone.Name) {
		t.Errorf("expected removal notice naming %q, got %+v", gone.Name, msgs)
	}
	got := f.context(t)
	if got.Stage != models.StageConfirmingOrder || got.OrderID != "" {
		t.Errorf("expected a fresh confirmation step, got stage=%s orderID=%q", got.Stage, got.OrderID)
	}
	if len(got.Cart) != 1 || got.Cart[0].FoodID != kept.ID || got.Cart[0].Quantity != 2 {
		t.Errorf("unexpected cart %+v", got.Cart)
	}
	if got.PendingOrder == nil || !got.PendingOrder.Total.Equal(kept.Price.Mul(decimal.NewFromInt(2))) {
		t.Errorf("unexpected pending order %+v", got.PendingOrder)
	}
	if _, err := st.GetActiveOrder(context.Background(), testUser); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("half-written order should be cancelled, GetActiveOrder err = %v", err)
	}
}

func TestSoldOutCartAtConfirmationReturnsToMenu(t *testing.T) {
	st := testutil.SeededStore(t)
	f := newFixture(t, soldOut{InMemoryStore: st, foodID: 1}, st)
	cc := models.NewConversationContext()
	cc.Cart = cc.Cart.Add(f.food(t, 1), 1)
	cc.Stage = models.StageConfirmingOrder
	f.setContext(t, cc)

	f.tap(t, "confirm_order")

	if containsText(f.sender.Messages(), "Order Confirmed") {
		t.Fatal("order must not be confirmed when every item sold out")
	}
	if last := f.sender.Last(); last.Kind != messaging.KindList {
		t.Errorf("expected the category menu last, got %+v", last)
	}
	if got := f.context(t).Stage; got != models.StageViewingMenu {
		t.Errorf("stage = %s, want viewing_menu", got)
	}
}

func TestCancelFlowClearsCart(t *testing.T) {
	f := newTestFixture(t)
	cc := models.NewConversationContext()
	cc.Cart = cc.Cart.Add(f.food(t, 2), 2)
	cc.Stage = models.StageConfirmingOrder
	f.setContext(t, cc)

	f.tap(t, "cancel_order")
	ask := f.sender.Last()
	if ask.Buttons == nil || ask.Buttons.Header != "⚠️ Cancel Order?" {
		t.Fatalf("expected cancel confirmation, got %+v", ask)
	}
	if !strings.Contains(ask.Text, "🛒 Cart: 2 item(s)\n💰 Total: Rs.440") {
		t.Errorf("unexpected body %q", ask.Text)
	}
	if got := f.context(t).Stage; got != models.StageConfirmingCancel {
		t.Fatalf("stage = %s, want confirming_cancel", got)
	}

	f.tap(t, "confirm_cancel")
	if !strings.Contains(f.sender.Last().Text, "2 item(s) removed from cart.") {
		t.Errorf("unexpected cancellation text %q", f.sender.Last().Text)
	}
	got := f.context(t)
	if got.Stage != models.StageInitial || len(got.Cart) != 0 || got.LastAction != "order_cancelled" {
		t.Errorf("unexpected context %+v", got)
	}
}

func TestOnlinePaymentDetails(t *testing.T) {
	f := newTestFixture(t)
	cc := models.NewConversationContext()
	cc.Cart = cc.Cart.Add(f.food(t, 1), 2)
	cc.Stage = models.StageSelectingPayment

	d, err := f.handlers.ProcessPayment(context.Background(), &models.ProcessPaymentParams{Method: models.PaymentMethodOnline}, testUser, cc)
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	msgs := f.sender.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected details + placed notice, got %d", len(msgs))
	}
	for _, want := range []string{
		"📱 *eSewa*\n   ID: 9800000001\n   Name: Momo House Pvt Ltd\n\n",
		"🏦 *Bank Transfer*\n   Bank: Nepal Bank Ltd\n   A/C: 0123456789012\n",
		"💰 *Amount to Pay: Rs.360*",
		"Order ID: #MH123456",
	} {
		if !strings.Contains(msgs[0].Text, want) {
			t.Errorf("payment details missing %q:\n%s", want, msgs[0].Text)
		}
	}
	if !strings.HasPrefix(msgs[1].Text, "✅ Order Placed!") {
		t.Errorf("unexpected second message %q", msgs[1].Text)
	}
	if d.Context.Stage != models.StageOrderComplete || d.Context.PaymentMethod != models.PaymentMethodOnline || len(d.Context.Cart) != 0 {
		t.Errorf("unexpected context %+v", d.Context)
	}
}

func TestShowOrderHistoryFormatsOrders(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	order, err := f.store.CreateOrder(ctx, testUser)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := f.store.AddOrderItem(ctx, order.ID, 1, 2); err != nil {
		t.Fatalf("AddOrderItem: %v", err)
	}

	if _, err := f.handlers.ShowOrderHistory(ctx, testUser, models.NewConversationContext()); err != nil {
		t.Fatalf("ShowOrderHistory: %v", err)
	}
	text := f.sender.Last().Text
	for _, want := range []string{"📋 *Your Order History*", "🆕 *Order #1*", "🛒 1 item(s) | Rs.360", "💳 Pending", "Status: CREATED"} {
		if !strings.Contains(text, want) {
			t.Errorf("history missing %q:\n%s", want, text)
		}
	}
}

func TestShowOrderHistoryEmpty(t *testing.T) {
	f := newTestFixture(t)
	cc := models.NewConversationContext()
	d, err := f.handlers.ShowOrderHistory(context.Background(), testUser, cc)
	if err != nil {
		t.Fatalf("ShowOrderHistory: %v", err)
	}
	if !strings.Contains(f.sender.Last().Text, "You haven't placed any orders yet!") {
		t.Errorf("unexpected text %q", f.sender.Last().Text)
	}
	if d.Context.LastAction != "" {
		t.Errorf("empty history should leave context unchanged, got %+v", d.Context)
	}
}

func TestAddItemByNameDisambiguates(t *testing.T) {
	f := newTestFixture(t)
	d, err := f.handlers.AddItemByName(context.Background(), &models.AddItemByNameParams{Name: "chicken"}, testUser, models.NewConversationContext())
	if err != nil {
		t.Fatalf("AddItemByName: %v", err)
	}
	if d.Context.Stage != models.StageSelectingItem {
		t.Errorf("stage = %s, want selecting_item", d.Context.Stage)
	}
	list := f.sender.Last().List
	if list == nil || len(list.Sections) != 1 || len(list.Sections[0].Rows) != 6 {
		t.Fatalf("expected one section of 6 chicken items, got %+v", list)
	}
	if !strings.HasPrefix(list.Body, `Found 6 item(s) matching "chicken".`) {
		t.Errorf("unexpected body %q", list.Body)
	}
}

func TestAddItemByNameSingleMatchAdds(t *testing.T) {
	f := newTestFixture(t)
	d, err := f.handlers.AddItemByName(context.Background(), &models.AddItemByNameParams{Name: "lassi", Quantity: 2}, testUser, models.NewConversationContext())
	if err != nil {
		t.Fatalf("AddItemByName: %v", err)
	}
	if len(d.Context.Cart) != 1 || d.Context.Cart[0].Name != "Mango Lassi" || d.Context.Cart[0].Quantity != 2 {
		t.Fatalf("unexpected cart %+v", d.Context.Cart)
	}
	if got := f.sender.Last().Buttons.Buttons[0].Reply.ID; got != "more_beverages" {
		t.Errorf("add more should point at the item's category, got %q", got)
	}
}
