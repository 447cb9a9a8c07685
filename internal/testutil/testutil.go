// Package testutil provides shared fixtures and assertions for OrderPipe tests:
// a seeded in-memory store, webhook delivery builders and HTTP helpers.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/OrderPipe/internal/store"
	"github.com/BTreeMap/OrderPipe/internal/whatsapp"
)

// SeededStore returns an in-memory store holding the default 20-item menu.
func SeededStore(t testing.TB) *store.InMemoryStore {
	t.Helper()
	st := store.NewInMemoryStore()
	if _, err := st.SeedFoods(context.Background(), store.DefaultMenu()); err != nil {
		t.Fatalf("failed to seed menu: %v", err)
	}
	return st
}

// TextMessage builds an inbound Cloud API text message.
func TextMessage(id, from, body string) whatsapp.InboundMessage {
	return whatsapp.InboundMessage{ID: id, From: from, Type: "text", Text: &whatsapp.InboundText{Body: body}}
}

// ListReply builds an inbound list row selection.
func ListReply(id, from, rowID, title string) whatsapp.InboundMessage {
	return whatsapp.InboundMessage{
		ID:   id,
		From: from,
		Type: "interactive",
		Interactive: &whatsapp.InboundInteractive{
			Type:      "list_reply",
			ListReply: &whatsapp.ListReply{ID: rowID, Title: title},
		},
	}
}

// ButtonReply builds an inbound reply button tap.
func ButtonReply(id, from, buttonID, title string) whatsapp.InboundMessage {
	return whatsapp.InboundMessage{
		ID:   id,
		From: from,
		Type: "interactive",
		Interactive: &whatsapp.InboundInteractive{
			Type:        "button_reply",
			ButtonReply: &whatsapp.ReplyButton{ID: buttonID, Title: title},
		},
	}
}

// WhatsAppDelivery wraps messages in a single-entry, single-change webhook payload.
func WhatsAppDelivery(msgs ...whatsapp.InboundMessage) whatsapp.WebhookPayload {
	var value whatsapp.ChangeValue
	value.MessagingProduct = "whatsapp"
	value.Messages = msgs
	return whatsapp.WebhookPayload{
		Object: whatsapp.ObjectWhatsApp,
		Entry: []whatsapp.Entry{{
			ID:      "test-waba",
			Changes: []whatsapp.Change{{Field: "messages", Value: value}},
		}},
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONStatus decodes a JSON response and validates its status field.
func AssertJSONStatus(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}
	return response
}

// CreateJSONRequest creates a request whose body is body marshaled to JSON.
func CreateJSONRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(MustMarshalJSON(t, body)))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}
