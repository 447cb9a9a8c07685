package flow

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

const (
	separator     = "━━━━━━━━━━━━━━━"
	longSeparator = "━━━━━━━━━━━━━━━━━━━━━"
	// historyTimeLayout renders e.g. "Jan 2, 03:04 PM".
	historyTimeLayout = "Jan 2, 03:04 PM"
)

var categoryEmojis = map[string]string{
	"momos":     "🥟",
	"noodles":   "🍜",
	"rice":      "🍚",
	"beverages": "☕",
}

var statusEmojis = map[models.OrderStatus]string{
	models.OrderStatusCreated:   "🆕",
	models.OrderStatusConfirmed: "✅",
	models.OrderStatusPreparing: "👨‍🍳",
	models.OrderStatusDelivered: "📦",
	models.OrderStatusCompleted: "✔️",
	models.OrderStatusCancelled: "❌",
}

func categoryEmoji(category string) string {
	if e, ok := categoryEmojis[category]; ok {
		return e
	}
	return "🍽️"
}

func statusEmoji(status models.OrderStatus) string {
	if e, ok := statusEmojis[status]; ok {
		return e
	}
	return "📝"
}

// rs formats an amount the way menus print it: "Rs.180", "Rs.92.5".
func rs(amount decimal.Decimal) string {
	return "Rs." + amount.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func bulletList(names []string) string {
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = "• " + n
	}
	return strings.Join(lines, "\n")
}

// cartLines renders "• name xN - Rs.subtotal" per line.
func cartLines(cart models.Cart) string {
	lines := make([]string, len(cart))
	for i, l := range cart {
		lines[i] = fmt.Sprintf("• %s x%d - %s", l.Name, l.Quantity, rs(l.Subtotal()))
	}
	return strings.Join(lines, "\n")
}
