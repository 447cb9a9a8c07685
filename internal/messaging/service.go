// Package messaging delivers outbound replies through the configured chat platform.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/BTreeMap/OrderPipe/internal/whatsapp"
)

// Message kinds used for logging and metrics.
const (
	KindText    = "text"
	KindImage   = "image"
	KindButtons = "buttons"
	KindList    = "list"
)

// Button identifiers of the order confirmation prompt.
const (
	ConfirmOrderButtonID = "confirm_order"
	CancelOrderButtonID  = "cancel_order"
)

// ErrServiceStopped is returned by sends after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// ButtonMessage is an interactive message with up to three reply buttons.
type ButtonMessage struct {
	Header  string
	Body    string
	Footer  string
	Buttons []whatsapp.Button
}

// ListMessage is an interactive message with a list of selectable rows.
type ListMessage struct {
	Header     string
	Body       string
	Footer     string
	ButtonText string
	Sections   []whatsapp.Section
}

// Service defines a pluggable message delivery abstraction.
//
// Provider failures (missing credentials, transport errors, non-2xx responses) are logged and
// swallowed so a failed send never aborts a conversation turn. Only malformed requests
// (bad recipient, too many buttons) are returned as errors.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, link, caption string) error
	SendButtons(ctx context.Context, to string, msg ButtonMessage) error
	SendList(ctx context.Context, to string, msg ListMessage) error
	// SendOrderConfirmation sends the order summary with the confirm/cancel button pair.
	SendOrderConfirmation(ctx context.Context, to, orderDetails string) error
}

// OrderConfirmationMessage builds the fixed confirm/cancel prompt around orderDetails.
func OrderConfirmationMessage(restaurantName, orderDetails string) ButtonMessage {
	return ButtonMessage{
		Header: "🛒 Confirm Your Order",
		Body:   fmt.Sprintf("📋 Order Summary:\n%s\n\nPlease confirm your order or cancel if you'd like to make changes.", orderDetails),
		Footer: fmt.Sprintf("Thank you for ordering with %s!", restaurantName),
		Buttons: []whatsapp.Button{
			whatsapp.NewReplyButton(ConfirmOrderButtonID, "Confirm Order ✅"),
			whatsapp.NewReplyButton(CancelOrderButtonID, "Cancel Order ❌"),
		},
	}
}

// canonicalizePhone strips everything but digits and requires at least 6 of them.
func canonicalizePhone(service, recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug(service+" canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

func validateButtons(msg ButtonMessage) error {
	if len(msg.Buttons) == 0 || len(msg.Buttons) > whatsapp.MaxButtons {
		return fmt.Errorf("button messages need 1 to %d buttons, got %d", whatsapp.MaxButtons, len(msg.Buttons))
	}
	return nil
}
