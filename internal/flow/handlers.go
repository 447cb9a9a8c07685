// Package flow implements the conversational ordering flow: routing inbound messages to tool
// handlers, guarding stage transitions, and persisting per-user conversation context.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/OrderPipe/internal/messaging"
	"github.com/BTreeMap/OrderPipe/internal/models"
	"github.com/BTreeMap/OrderPipe/internal/store"
	"github.com/BTreeMap/OrderPipe/internal/util"
	"github.com/BTreeMap/OrderPipe/internal/whatsapp"
)

// DefaultGreeting is sent when nothing more specific applies.
const DefaultGreeting = "Hello! Welcome to our restaurant 🍽️ Type 'menu' to see our delicious options!"

// DefaultCategory is shown when a category is requested without a name.
const DefaultCategory = "momos"

// Decision is the outcome of one handler invocation. Reply, when set, is sent as plain text
// after the context has been stored.
type Decision struct {
	Reply   *string
	Context models.ConversationContext
}

// Repository is the persistence surface the handlers use.
type Repository interface {
	store.CatalogRepo
	store.OrderRepo
}

// Handlers implements every tool the router and the classifier can invoke.
// Each handler sends its own outbound messages and returns the next context.
type Handlers struct {
	repo    Repository
	senders map[models.Platform]messaging.Service
	profile *Profile
	now     func() time.Time
}

// HandlersOption configures Handlers.
type HandlersOption func(*Handlers)

// WithSender routes replies for platform p through s.
func WithSender(p models.Platform, s messaging.Service) HandlersOption {
	return func(h *Handlers) {
		h.senders[p] = s
	}
}

// WithClock overrides the time source used for order references and history dates.
func WithClock(now func() time.Time) HandlersOption {
	return func(h *Handlers) {
		h.now = now
	}
}

// NewHandlers creates handlers that reply through sender unless a platform-specific sender is set.
func NewHandlers(repo Repository, sender messaging.Service, profile *Profile, opts ...HandlersOption) *Handlers {
	if profile == nil {
		profile = DefaultProfile()
	}
	h := &Handlers{
		repo:    repo,
		senders: map[models.Platform]messaging.Service{models.PlatformWhatsApp: sender},
		profile: profile,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handlers) sender(ctx context.Context) messaging.Service {
	if s, ok := h.senders[PlatformFromContext(ctx)]; ok && s != nil {
		return s
	}
	return h.senders[models.PlatformWhatsApp]
}

func (h *Handlers) sendText(ctx context.Context, userID, body string) {
	if err := h.sender(ctx).SendText(ctx, userID, body); err != nil {
		slog.Error("Handlers.sendText: send failed", "userID", userID, "error", err)
	}
}

func (h *Handlers) sendButtons(ctx context.Context, userID string, msg messaging.ButtonMessage) {
	if err := h.sender(ctx).SendButtons(ctx, userID, msg); err != nil {
		slog.Error("Handlers.sendButtons: send failed", "userID", userID, "error", err)
	}
}

func (h *Handlers) sendList(ctx context.Context, userID string, msg messaging.ListMessage) {
	if err := h.sender(ctx).SendList(ctx, userID, msg); err != nil {
		slog.Error("Handlers.sendList: send failed", "userID", userID, "error", err)
	}
}

// ShowFoodMenu lists the catalog categories.
func (h *Handlers) ShowFoodMenu(ctx context.Context, userID string, cc models.ConversationContext) (Decision, error) {
	categories, err := h.repo.ListCategories(ctx)
	if err != nil {
		slog.Error("Handlers.ShowFoodMenu: failed to list categories", "userID", userID, "error", err)
		h.sendText(ctx, userID, "Sorry, I couldn't load the menu. Please try again.")
		return Decision{Context: cc}, nil
	}

	rows := make([]whatsapp.Row, 0, len(categories))
	for _, cat := range categories {
		rows = append(rows, whatsapp.Row{
			ID:          "cat_" + cat,
			Title:       whatsapp.Truncate(capitalize(cat)+" "+categoryEmoji(cat), whatsapp.MaxRowTitle),
			Description: fmt.Sprintf("Browse our %s options", cat),
		})
	}
	if len(rows) == 0 {
		rows = []whatsapp.Row{{ID: "cat_momos", Title: "Momos 🥟", Description: "Steamed, fried, tandoori varieties"}}
	}

	h.sendList(ctx, userID, messaging.ListMessage{
		Header:     "🍽️ Restaurant Menu",
		Body:       "Welcome! What would you like to order today? Browse our delicious categories below.",
		Footer:     "Tap to view options",
		ButtonText: "View Categories",
		Sections:   []whatsapp.Section{{Title: "Food Categories", Rows: rows}},
	})

	next := cc.Clone()
	next.Stage = models.StageViewingMenu
	next.LastAction = string(models.ToolShowFoodMenu)
	return Decision{Context: next}, nil
}

// foodRow renders a catalog entry as a selectable "add_<id>" list row.
func foodRow(f models.Food) whatsapp.Row {
	return whatsapp.Row{
		ID:          "add_" + strconv.FormatInt(f.ID, 10),
		Title:       whatsapp.Truncate(f.Name, whatsapp.MaxRowTitle),
		Description: rs(f.Price) + " - " + whatsapp.Truncate(f.Description, 50),
	}
}

// ShowCategoryItems lists the available foods of one category, paginated into sections of ten.
func (h *Handlers) ShowCategoryItems(ctx context.Context, p *models.ShowCategoryItemsParams, userID string, cc models.ConversationContext) (Decision, error) {
	category := DefaultCategory
	if p != nil && p.Category != "" {
		category = p.Category
	}

	foods, err := h.repo.ListFoodsByCategory(ctx, category)
	if err != nil {
		slog.Error("Handlers.ShowCategoryItems: failed to list foods", "userID", userID, "category", category, "error", err)
		h.sendText(ctx, userID, "Sorry, I couldn't load the items. Please try again.")
		return Decision{Context: cc}, nil
	}
	if len(foods) == 0 {
		h.sendText(ctx, userID, fmt.Sprintf("No items found in %s. Try another category!", category))
		return h.ShowFoodMenu(ctx, userID, cc)
	}

	rows := make([]whatsapp.Row, len(foods))
	for i, f := range foods {
		rows[i] = foodRow(f)
	}

	body := "Select items to add to your cart.\nTap an item to add it."
	if len(cc.Cart) > 0 {
		body = fmt.Sprintf("🛒 Cart: %d item(s) - %s\n\nSelect more items to add:", len(cc.Cart), rs(cc.Cart.Total()))
	}

	h.sendList(ctx, userID, messaging.ListMessage{
		Header:     fmt.Sprintf("🍽️ %s Menu", strings.ToUpper(category)),
		Body:       body,
		Footer:     "Tap item to add to cart",
		ButtonText: "View Items",
		Sections:   whatsapp.PaginateRows(rows, capitalize(category), "More "+category),
	})

	next := cc.Clone()
	next.Stage = models.StageViewingItems
	next.CurrentCategory = category
	next.LastAction = string(models.ToolShowCategoryItems)
	return Decision{Context: next}, nil
}

// ShowMomoVarieties is show_category_items fixed to the momos category.
func (h *Handlers) ShowMomoVarieties(ctx context.Context, userID string, cc models.ConversationContext) (Decision, error) {
	return h.ShowCategoryItems(ctx, &models.ShowCategoryItemsParams{Category: DefaultCategory}, userID, cc)
}

// AddToCart adds a catalog food by id.
func (h *Handlers) AddToCart(ctx context.Context, p *models.AddToCartParams, userID string, cc models.ConversationContext) (Decision, error) {
	food, err := h.repo.GetFoodByID(ctx, p.FoodID)
	if errors.Is(err, store.ErrNotFound) {
		h.sendText(ctx, userID, "Sorry, that item is not available.")
		return Decision{Context: cc}, nil
	}
	if err != nil {
		slog.Error("Handlers.AddToCart: failed to load food", "userID", userID, "foodID", p.FoodID, "error", err)
		h.sendText(ctx, userID, "Sorry, couldn't add that item. Please try again.")
		return Decision{Context: cc}, nil
	}

	more := cc.CurrentCategory
	if more == "" {
		more = DefaultCategory
	}
	return h.addAndPrompt(ctx, userID, cc, food, p.Qty(), more, models.ToolAddToCart), nil
}

// AddItemByName resolves a typed item name against the catalog. A single match is added,
// several matches are offered as a list.
func (h *Handlers) AddItemByName(ctx context.Context, p *models.AddItemByNameParams, userID string, cc models.ConversationContext) (Decision, error) {
	if p.Name == "" {
		h.sendText(ctx, userID, "Please specify which item you want to add.")
		return Decision{Context: cc}, nil
	}

	matches, err := h.repo.FindFoodsByName(ctx, p.Name)
	if err != nil {
		slog.Error("Handlers.AddItemByName: lookup failed", "userID", userID, "name", p.Name, "error", err)
		h.sendText(ctx, userID, "Sorry, couldn't find that item. Try browsing our menu!")
		return Decision{Context: cc}, nil
	}
	if len(matches) == 0 {
		h.sendText(ctx, userID, fmt.Sprintf("❌ Sorry, \"%s\" is not available on our menu.\n\nType \"menu\" to see what we have! 🍽️", p.Name))
		return Decision{Context: cc}, nil
	}

	if food, ok := singleMatch(matches, p.Name); ok {
		more := food.Category
		if more == "" {
			more = DefaultCategory
		}
		return h.addAndPrompt(ctx, userID, cc, food, p.Qty(), more, models.ToolAddItemByName), nil
	}

	limit := len(matches)
	if limit > whatsapp.MaxRowsPerSection {
		limit = whatsapp.MaxRowsPerSection
	}
	rows := make([]whatsapp.Row, limit)
	for i := range rows {
		rows[i] = foodRow(matches[i])
	}
	h.sendList(ctx, userID, messaging.ListMessage{
		Header:     "🔍 Multiple Matches Found",
		Body:       fmt.Sprintf("Found %d item(s) matching \"%s\".\nSelect the one you want:", len(matches), p.Name),
		Footer:     "Tap to add to cart",
		ButtonText: "Select Item",
		Sections:   []whatsapp.Section{{Title: "Matching Items", Rows: rows}},
	})

	next := cc.Clone()
	next.Stage = models.StageSelectingItem
	next.LastAction = string(models.ToolAddItemByName)
	return Decision{Context: next}, nil
}

// singleMatch returns the only match, or the one whose name equals the query exactly.
func singleMatch(matches []models.Food, name string) (models.Food, bool) {
	if len(matches) == 1 {
		return matches[0], true
	}
	if f, ok := exactMatch(matches, name); ok {
		return f, true
	}
	return models.Food{}, false
}

func exactMatch(matches []models.Food, name string) (models.Food, bool) {
	for _, f := range matches {
		if strings.EqualFold(f.Name, strings.TrimSpace(name)) {
			return f, true
		}
	}
	return models.Food{}, false
}

func (h *Handlers) addAndPrompt(ctx context.Context, userID string, cc models.ConversationContext, food models.Food, qty int, moreCategory string, tool models.ToolName) Decision {
	next := cc.Clone()
	next.Cart = next.Cart.Add(food, qty)

	lineTotal := food.Price.Mul(decimal.NewFromInt(int64(qty)))
	h.sendButtons(ctx, userID, messaging.ButtonMessage{
		Header: "✅ Added to Cart!",
		Body: fmt.Sprintf("*%s* x%d - %s\n\n🛒 Cart: %d item(s) | Total: %s\n\nWhat would you like to do?",
			food.Name, qty, rs(lineTotal), next.Cart.ItemCount(), rs(next.Cart.Total())),
		Footer: "Keep adding or checkout!",
		Buttons: []whatsapp.Button{
			whatsapp.NewReplyButton("more_"+moreCategory, "Add More ➕"),
			whatsapp.NewReplyButton("view_all_categories", "Other Categories 📋"),
			whatsapp.NewReplyButton("proceed_checkout", "Checkout 🛒"),
		},
	})

	slog.Debug("Handlers.addAndPrompt: item added", "userID", userID, "foodID", food.ID, "quantity", qty, "cartLines", len(next.Cart))
	next.Stage = models.StageQuickCartAction
	next.LastAddedItem = food.Name
	next.LastAction = string(tool)
	return Decision{Context: next}
}

// ShowCartOptions shows the cart with add-more and checkout buttons.
func (h *Handlers) ShowCartOptions(ctx context.Context, userID string, cc models.ConversationContext) (Decision, error) {
	if len(cc.Cart) == 0 {
		h.sendText(ctx, userID, "Your cart is empty! Let me show you our menu.")
		return h.ShowFoodMenu(ctx, userID, cc)
	}

	h.sendButtons(ctx, userID, messaging.ButtonMessage{
		Header: "🛒 Your Cart",
		Body: fmt.Sprintf("%s\n%s\nSubtotal: %s\n\nWould you like to add more items or proceed to checkout?",
			cartLines(cc.Cart), separator, rs(cc.Cart.Total())),
		Footer: "You can add more items anytime!",
		Buttons: []whatsapp.Button{
			whatsapp.NewReplyButton("add_more_items", "Add More Items ➕"),
			whatsapp.NewReplyButton("proceed_checkout", "Checkout 🛒"),
		},
	})

	next := cc.Clone()
	next.Stage = models.StageCartOptions
	next.LastAction = string(models.ToolShowCartOptions)
	return Decision{Context: next}, nil
}

// ConfirmOrder revalidates the requested lines against the catalog, drops the ones that no
// longer resolve and asks the user to confirm the repriced order.
func (h *Handlers) ConfirmOrder(ctx context.Context, p *models.ConfirmOrderParams, userID string, cc models.ConversationContext) (Decision, error) {
	var items []models.OrderLineRequest
	if p != nil {
		items = p.Items
	}
	if len(items) == 0 {
		items = models.LinesFromCart(cc.Cart)
	}
	if len(items) == 0 {
		h.sendText(ctx, userID, "Your cart is empty! Let me show you our menu.")
		return h.ShowFoodMenu(ctx, userID, cc)
	}

	validated := models.Cart{}
	var invalid []string
	for _, item := range items {
		food, found, err := h.resolveLine(ctx, item)
		if err != nil {
			slog.Error("Handlers.ConfirmOrder: failed to validate line", "userID", userID, "foodID", item.FoodID, "name", item.Name, "error", err)
			h.sendText(ctx, userID, "Sorry, I couldn't verify your order right now. Please try again.")
			return Decision{Context: cc}, nil
		}
		if !found {
			invalid = append(invalid, lineLabel(item))
			continue
		}
		validated = validated.Add(food, item.Quantity)
	}

	if len(validated) == 0 {
		h.sendText(ctx, userID, fmt.Sprintf("❌ Sorry, none of the items are available:\n%s\n\nType \"menu\" to see what we have! 🍽️", bulletList(invalid)))
		return h.ShowFoodMenu(ctx, userID, cc)
	}
	if len(invalid) > 0 {
		h.sendText(ctx, userID, "⚠️ Note: These items are not available and were removed:\n"+bulletList(invalid))
	}

	total := validated.Total()
	details := fmt.Sprintf("%s\n%s\nTotal: %s", cartLines(validated), separator, rs(total))
	if err := h.sender(ctx).SendOrderConfirmation(ctx, userID, details); err != nil {
		slog.Error("Handlers.ConfirmOrder: send failed", "userID", userID, "error", err)
	}

	next := cc.Clone()
	next.Cart = validated
	next.Stage = models.StageConfirmingOrder
	next.LastAction = string(models.ToolConfirmOrder)
	next.PendingOrder = &models.PendingOrder{Items: append(models.Cart{}, validated...), Total: total}
	return Decision{Context: next}, nil
}

// resolveLine looks a requested line up by id, or by name when no id is given.
// found is false when the food does not exist or is unavailable.
func (h *Handlers) resolveLine(ctx context.Context, item models.OrderLineRequest) (food models.Food, found bool, err error) {
	if item.FoodID > 0 {
		food, err = h.repo.GetFoodByID(ctx, item.FoodID)
		if errors.Is(err, store.ErrNotFound) {
			return models.Food{}, false, nil
		}
		return food, err == nil, err
	}
	matches, err := h.repo.FindFoodsByName(ctx, item.Name)
	if err != nil || len(matches) == 0 {
		return models.Food{}, false, err
	}
	if f, ok := exactMatch(matches, item.Name); ok {
		return f, true, nil
	}
	return matches[0], true, nil
}

func lineLabel(item models.OrderLineRequest) string {
	if item.Name != "" {
		return item.Name
	}
	return fmt.Sprintf("Item #%d", item.FoodID)
}

// ShowPaymentOptions asks for the payment method.
func (h *Handlers) ShowPaymentOptions(ctx context.Context, userID string, cc models.ConversationContext) (Decision, error) {
	h.sendButtons(ctx, userID, messaging.ButtonMessage{
		Header: "💳 Payment Method",
		Body:   "Choose your preferred payment method:",
		Footer: "Select to continue",
		Buttons: []whatsapp.Button{
			whatsapp.NewReplyButton("pay_cod", "Cash on Delivery"),
			whatsapp.NewReplyButton("pay_online", "Online Payment"),
		},
	})

	next := cc.Clone()
	next.Stage = models.StageSelectingPayment
	next.LastAction = string(models.ToolShowPaymentOptions)
	return Decision{Context: next}, nil
}

// ProcessOrderResponse handles the answer to the confirmation prompt.
func (h *Handlers) ProcessOrderResponse(ctx context.Context, p *models.ProcessOrderResponseParams, userID string, cc models.ConversationContext) (Decision, error) {
	switch p.Action {
	case models.OrderActionConfirmed:
		return h.placeOrder(ctx, userID, cc)
	case models.OrderActionCancelConfirm:
		return h.cancelOrder(ctx, userID, cc), nil
	default:
		return h.askCancelConfirmation(ctx, userID, cc), nil
	}
}

func (h *Handlers) placeOrder(ctx context.Context, userID string, cc models.ConversationContext) (Decision, error) {
	if len(cc.Cart) == 0 {
		return h.ShowCartOptions(ctx, userID, cc)
	}

	order, err := h.persistOrder(ctx, userID, cc.Cart)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("Handlers.placeOrder: cart no longer matches the catalog, revalidating", "userID", userID, "error", err)
		next := cc.Clone()
		next.PendingOrder = nil
		return h.ConfirmOrder(ctx, nil, userID, next)
	}
	if err != nil {
		slog.Error("Handlers.placeOrder: failed to persist order, confirming without storage", "userID", userID, "error", err)
		ref := util.OrderReference(h.profile.OrderIDPrefix, h.now())
		h.sendText(ctx, userID, fmt.Sprintf(
			"✅ Order Confirmed!\n\nThank you for your order! Your delicious food is being prepared and will be delivered in %s.\n\nOrder ID: #%s\n\nEnjoy your meal! 🥟",
			h.profile.DeliveryTime, ref))
		return Decision{Context: models.ConversationContext{
			Stage:      models.StageOrderComplete,
			LastAction: "order_confirmed",
			Cart:       models.Cart{},
		}}, nil
	}

	slog.Info("Handlers.placeOrder: order created", "userID", userID, "orderID", order.ID, "lines", len(cc.Cart))
	next := cc.Clone()
	next.OrderID = strconv.FormatInt(order.ID, 10)
	next.Stage = models.StageSelectingPayment
	return h.ShowPaymentOptions(ctx, userID, next)
}

// persistOrder creates the order row and its lines. A half-written order is cancelled.
func (h *Handlers) persistOrder(ctx context.Context, userID string, cart models.Cart) (models.Order, error) {
	order, err := h.repo.CreateOrder(ctx, userID)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to create order: %w", err)
	}
	for _, line := range cart {
		if _, err := h.repo.AddOrderItem(ctx, order.ID, line.FoodID, line.Quantity); err != nil {
			if _, cerr := h.repo.CancelOrder(ctx, order.ID); cerr != nil {
				slog.Warn("Handlers.persistOrder: failed to cancel partial order", "orderID", order.ID, "error", cerr)
			}
			return models.Order{}, fmt.Errorf("failed to add food %d to order %d: %w", line.FoodID, order.ID, err)
		}
	}
	return order, nil
}

func (h *Handlers) cancelOrder(ctx context.Context, userID string, cc models.ConversationContext) Decision {
	if id, err := strconv.ParseInt(cc.OrderID, 10, 64); err == nil {
		if _, err := h.repo.CancelOrder(ctx, id); err != nil {
			slog.Warn("Handlers.cancelOrder: failed to cancel stored order", "userID", userID, "orderID", id, "error", err)
		}
	}

	h.sendText(ctx, userID, fmt.Sprintf(
		"❌ Order Cancelled\n\n%d item(s) removed from cart.\n\nNo worries! Feel free to browse our menu again whenever you're ready.\n\nType \"menu\" to start a new order! 🍽️",
		cc.Cart.ItemCount()))
	return Decision{Context: models.ConversationContext{
		Stage:      models.StageInitial,
		LastAction: "order_cancelled",
		Cart:       models.Cart{},
	}}
}

func (h *Handlers) askCancelConfirmation(ctx context.Context, userID string, cc models.ConversationContext) Decision {
	h.sendButtons(ctx, userID, messaging.ButtonMessage{
		Header: "⚠️ Cancel Order?",
		Body: fmt.Sprintf("Are you sure you want to cancel?\n\n🛒 Cart: %d item(s)\n💰 Total: %s\n\nThis will remove all items from your cart.",
			cc.Cart.ItemCount(), rs(cc.Cart.Total())),
		Footer: "Please confirm",
		Buttons: []whatsapp.Button{
			whatsapp.NewReplyButton("confirm_cancel", "Yes, Cancel ❌"),
			whatsapp.NewReplyButton("back_to_cart", "No, Go Back 🔙"),
		},
	})

	next := cc.Clone()
	next.Stage = models.StageConfirmingCancel
	next.LastAction = "ask_cancel_confirmation"
	return Decision{Context: next}
}

// ProcessPayment records the payment method on the stored order and sends the closing messages.
func (h *Handlers) ProcessPayment(ctx context.Context, p *models.ProcessPaymentParams, userID string, cc models.ConversationContext) (Decision, error) {
	total := cc.Cart.Total()

	if cc.OrderID != "" {
		id, err := strconv.ParseInt(cc.OrderID, 10, 64)
		if err == nil {
			_, err = h.repo.SelectPayment(ctx, id, p.Method)
		}
		if err != nil {
			slog.Error("Handlers.ProcessPayment: failed to record payment", "userID", userID, "orderID", cc.OrderID, "method", p.Method, "error", err)
			h.sendText(ctx, userID, "Order confirmed! We'll contact you for payment details.")
			return Decision{Context: models.ConversationContext{Stage: models.StageOrderComplete, Cart: models.Cart{}}}, nil
		}
	}

	ref := cc.OrderID
	if ref == "" {
		ref = util.OrderReference(h.profile.OrderIDPrefix, h.now())
	}

	if p.Method == models.PaymentMethodOnline {
		h.sendText(ctx, userID, h.onlinePaymentDetails(total, ref))
		h.sendText(ctx, userID, fmt.Sprintf(
			"✅ Order Placed!\n\nYour order will be prepared once payment is confirmed.\n\nDelivery: %s after confirmation.\n\nThank you for ordering! 🥟",
			h.profile.DeliveryTime))
	} else {
		h.sendText(ctx, userID, fmt.Sprintf(
			"✅ Order Confirmed!\n\n💳 Payment: Cash on Delivery\n💰 Amount: %s\n\nYour delicious food is being prepared and will be delivered in %s.\n\nOrder ID: #%s\n\nPlease keep %s ready!\n\nEnjoy your meal! 🥟",
			rs(total), h.profile.DeliveryTime, ref, rs(total)))
	}

	return Decision{Context: models.ConversationContext{
		Stage:         models.StageOrderComplete,
		LastAction:    "order_confirmed",
		PaymentMethod: p.Method,
		Cart:          models.Cart{},
	}}, nil
}

func (h *Handlers) onlinePaymentDetails(total decimal.Decimal, ref string) string {
	var sb strings.Builder
	sb.WriteString("💳 *Online Payment Details*\n\n")
	sb.WriteString(longSeparator + "\n")
	for _, w := range h.profile.Payment.Wallets {
		fmt.Fprintf(&sb, "📱 *%s*\n   ID: %s\n   Name: %s\n\n", w.Name, w.ID, w.AccountName)
	}
	if b := h.profile.Payment.Bank; b != nil {
		fmt.Fprintf(&sb, "🏦 *Bank Transfer*\n   Bank: %s\n   A/C: %s\n   Name: %s\n", b.Bank, b.Account, b.AccountName)
	}
	sb.WriteString(longSeparator + "\n\n")
	fmt.Fprintf(&sb, "💰 *Amount to Pay: %s*\n\n📝 Please send payment screenshot to confirm.\nOrder ID: #%s", rs(total), ref)
	return sb.String()
}

// ShowOrderHistory lists the user's most recent orders.
func (h *Handlers) ShowOrderHistory(ctx context.Context, userID string, cc models.ConversationContext) (Decision, error) {
	orders, err := h.repo.GetOrderHistory(ctx, userID, store.DefaultHistoryLimit)
	if err != nil {
		slog.Error("Handlers.ShowOrderHistory: failed to load history", "userID", userID, "error", err)
		h.sendText(ctx, userID, "Sorry, couldn't load your order history. Please try again.")
		return Decision{Context: cc}, nil
	}
	if len(orders) == 0 {
		h.sendText(ctx, userID, "📋 *Order History*\n\nYou haven't placed any orders yet!\n\nType \"menu\" to start your first order! 🍽️")
		return Decision{Context: cc}, nil
	}

	var sb strings.Builder
	sb.WriteString("📋 *Your Order History*\n\n")
	for _, o := range orders {
		payment := string(o.PaymentMethod)
		if payment == "" {
			payment = "Pending"
		}
		fmt.Fprintf(&sb, "%s *Order #%d*\n", statusEmoji(o.Status), o.ID)
		fmt.Fprintf(&sb, "   📅 %s\n", o.CreatedAt.In(h.profile.Location()).Format(historyTimeLayout))
		fmt.Fprintf(&sb, "   🛒 %d item(s) | Rs.%s\n", o.ItemCount, o.Total.StringFixed(0))
		fmt.Fprintf(&sb, "   💳 %s\n", payment)
		fmt.Fprintf(&sb, "   Status: %s\n\n", strings.ToUpper(string(o.Status)))
	}
	sb.WriteString("\nType \"menu\" to place a new order! 🍽️")
	h.sendText(ctx, userID, sb.String())

	next := cc.Clone()
	next.LastAction = string(models.ToolShowOrderHistory)
	return Decision{Context: next}, nil
}

// SendTextReply sends a plain message, or the greeting when the message is empty.
func (h *Handlers) SendTextReply(ctx context.Context, p *models.SendTextReplyParams, userID string, cc models.ConversationContext) (Decision, error) {
	message := DefaultGreeting
	if p != nil && strings.TrimSpace(p.Message) != "" {
		message = p.Message
	}
	h.sendText(ctx, userID, message)
	return Decision{Context: cc}, nil
}
