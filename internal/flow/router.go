package flow

import (
	"strconv"
	"strings"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

// Route sources, used as the metrics label of a routed intent.
const (
	SourceInteractive = "interactive"
	SourceKeyword     = "keyword"
	SourceClassifier  = "classifier"
	SourceFallback    = "fallback"
)

// Route is a resolved tool invocation.
type Route struct {
	Tool   models.ToolName
	Params models.ToolParams
	Source string
}

// literalRoutes are exact button and row ids. They are matched before the prefixes below
// so that e.g. "add_more_items" never reaches the add_<foodId> rule.
var literalRoutes = map[string]func() Route{
	"add_more_items":      func() Route { return Route{Tool: models.ToolShowFoodMenu} },
	"view_all_categories": func() Route { return Route{Tool: models.ToolShowFoodMenu} },
	"proceed_checkout":    func() Route { return Route{Tool: models.ToolConfirmOrder, Params: &models.ConfirmOrderParams{}} },
	"confirm_order":       func() Route { return orderResponse(models.OrderActionConfirmed) },
	"cancel_order":        func() Route { return orderResponse(models.OrderActionCancelled) },
	"confirm_cancel":      func() Route { return orderResponse(models.OrderActionCancelConfirm) },
	"back_to_cart":        func() Route { return Route{Tool: models.ToolShowCartOptions} },
	"pay_cod":             func() Route { return payment(models.PaymentMethodCOD) },
	"pay_online":          func() Route { return payment(models.PaymentMethodOnline) },
}

func orderResponse(action models.OrderAction) Route {
	return Route{Tool: models.ToolProcessOrderResponse, Params: &models.ProcessOrderResponseParams{Action: action}}
}

func payment(method models.PaymentMethod) Route {
	return Route{Tool: models.ToolProcessPayment, Params: &models.ProcessPaymentParams{Method: method}}
}

// RouteInteractive maps a button or list reply id to a tool. It reports false when no rule matches.
func RouteInteractive(id string) (Route, bool) {
	route, ok := matchInteractive(id)
	route.Source = SourceInteractive
	return route, ok
}

func matchInteractive(id string) (Route, bool) {
	if build, found := literalRoutes[id]; found {
		return build(), true
	}
	if category, found := strings.CutPrefix(id, "cat_"); found {
		return Route{Tool: models.ToolShowCategoryItems, Params: &models.ShowCategoryItemsParams{Category: category}}, true
	}
	if rest, found := strings.CutPrefix(id, "add_"); found {
		if foodID, err := strconv.ParseInt(rest, 10, 64); err == nil && foodID > 0 {
			return Route{Tool: models.ToolAddToCart, Params: &models.AddToCartParams{FoodID: foodID}}, true
		}
	}
	if category, found := strings.CutPrefix(id, "more_"); found {
		return Route{Tool: models.ToolShowCategoryItems, Params: &models.ShowCategoryItemsParams{Category: category}}, true
	}
	return Route{}, false
}

var historyKeywords = []string{"order history", "my orders", "past orders", "previous orders"}

// IsHistoryRequest reports whether text asks for past orders.
func IsHistoryRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range historyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
