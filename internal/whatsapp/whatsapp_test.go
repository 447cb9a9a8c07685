package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

type capturedRequest struct {
	path   string
	auth   string
	body   map[string]interface{}
	rawLen int
}

func newTestServer(t *testing.T, status int, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		captured.rawLen = len(data)
		_ = json.Unmarshal(data, &captured.body)
		w.WriteHeader(status)
		if status == http.StatusOK {
			fmt.Fprint(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.OUT"}]}`)
		} else {
			fmt.Fprint(w, `{"error":{"message":"Invalid parameter"}}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendTextPostsToMessagesEndpoint(t *testing.T) {
	var got capturedRequest
	srv := newTestServer(t, http.StatusOK, &got)
	c := NewClient(WithPhoneNumberID("12345"), WithAccessToken("tok"), WithGraphURL(srv.URL+"/"))

	resp, err := c.SendText(context.Background(), "9779800000000", "hello")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if resp.MessageID() != "wamid.OUT" {
		t.Errorf("expected message id wamid.OUT, got %q", resp.MessageID())
	}
	if got.path != "/12345/messages" {
		t.Errorf("unexpected path %s", got.path)
	}
	if got.auth != "Bearer tok" {
		t.Errorf("unexpected auth header %q", got.auth)
	}
	if got.body["messaging_product"] != "whatsapp" || got.body["type"] != "text" {
		t.Errorf("unexpected body %v", got.body)
	}
	if _, ok := got.body["recipient_type"]; ok {
		t.Error("text messages should not carry recipient_type")
	}
	text := got.body["text"].(map[string]interface{})
	if text["body"] != "hello" {
		t.Errorf("unexpected text body %v", text)
	}
}

func TestSendButtonsPayloadShape(t *testing.T) {
	var got capturedRequest
	srv := newTestServer(t, http.StatusOK, &got)
	c := NewClient(WithPhoneNumberID("1"), WithAccessToken("t"), WithGraphURL(srv.URL))

	buttons := []Button{NewReplyButton("confirm_order", "Confirm Order ✅"), NewReplyButton("cancel_order", "Cancel Order ❌")}
	if _, err := c.SendButtons(context.Background(), "977", "Header", "Body", "Footer", buttons); err != nil {
		t.Fatalf("SendButtons failed: %v", err)
	}
	if got.body["recipient_type"] != "individual" {
		t.Errorf("expected recipient_type individual, got %v", got.body["recipient_type"])
	}
	interactive := got.body["interactive"].(map[string]interface{})
	if interactive["type"] != "button" {
		t.Errorf("expected button interactive, got %v", interactive["type"])
	}
	header := interactive["header"].(map[string]interface{})
	if header["type"] != "text" || header["text"] != "Header" {
		t.Errorf("unexpected header %v", header)
	}
	action := interactive["action"].(map[string]interface{})
	btns := action["buttons"].([]interface{})
	if len(btns) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(btns))
	}
	first := btns[0].(map[string]interface{})
	reply := first["reply"].(map[string]interface{})
	if first["type"] != "reply" || reply["id"] != "confirm_order" {
		t.Errorf("unexpected first button %v", first)
	}
}

func TestSendButtonsRejectsTooMany(t *testing.T) {
	c := NewClient(WithPhoneNumberID("1"), WithAccessToken("t"), WithGraphURL("http://127.0.0.1:0"))
	buttons := []Button{NewReplyButton("a", "A"), NewReplyButton("b", "B"), NewReplyButton("c", "C"), NewReplyButton("d", "D")}
	if _, err := c.SendButtons(context.Background(), "977", "", "body", "", buttons); err == nil {
		t.Error("expected error for four buttons")
	}
}

func TestSendWithoutCredentials(t *testing.T) {
	c := NewClient()
	if c.Configured() {
		t.Fatal("client without credentials reported configured")
	}
	if _, err := c.SendText(context.Background(), "977", "hi"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestSendNon2xxReturnsAPIError(t *testing.T) {
	var got capturedRequest
	srv := newTestServer(t, http.StatusBadRequest, &got)
	c := NewClient(WithPhoneNumberID("1"), WithAccessToken("t"), WithGraphURL(srv.URL))

	_, err := c.SendText(context.Background(), "977", "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Body == "" {
		t.Error("expected provider body to be kept")
	}
}

func makeRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{ID: fmt.Sprintf("add_%d", i+1), Title: fmt.Sprintf("Item %d", i+1)}
	}
	return rows
}

func TestPaginateRows(t *testing.T) {
	sections := PaginateRows(makeRows(23), "Momos", "More momos")
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(sections))
	}
	sizes := []int{10, 10, 3}
	for i, s := range sections {
		if len(s.Rows) != sizes[i] {
			t.Errorf("section %d: expected %d rows, got %d", i, sizes[i], len(s.Rows))
		}
	}
	if sections[0].Title != "Momos" || sections[1].Title != "More momos" || sections[2].Title != "More momos" {
		t.Errorf("unexpected titles: %q %q %q", sections[0].Title, sections[1].Title, sections[2].Title)
	}
	if sections[1].Rows[0].ID != "add_11" || sections[2].Rows[2].ID != "add_23" {
		t.Error("rows are not in original order")
	}
	if PaginateRows(nil, "a", "b") != nil {
		t.Error("expected no sections for no rows")
	}
}

func TestSendListSplitsOversizedSections(t *testing.T) {
	var got capturedRequest
	srv := newTestServer(t, http.StatusOK, &got)
	c := NewClient(WithPhoneNumberID("1"), WithAccessToken("t"), WithGraphURL(srv.URL))

	sections := []Section{{Title: "Everything", Rows: makeRows(12)}}
	if _, err := c.SendList(context.Background(), "977", "Menu", "Pick", "", "View", sections); err != nil {
		t.Fatalf("SendList failed: %v", err)
	}
	interactive := got.body["interactive"].(map[string]interface{})
	if _, ok := interactive["footer"]; ok {
		t.Error("empty footer should be omitted")
	}
	action := interactive["action"].(map[string]interface{})
	if action["button"] != "View" {
		t.Errorf("unexpected button text %v", action["button"])
	}
	if n := len(action["sections"].([]interface{})); n != 2 {
		t.Errorf("expected 2 sections after split, got %d", n)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("Chicken Steam Momo Deluxe Edition", 24); got != "Chicken Steam Momo Delux" {
		t.Errorf("unexpected truncation %q", got)
	}
	if got := Truncate("🥟🥟🥟", 2); got != "🥟🥟" {
		t.Errorf("truncation should count runes, got %q", got)
	}
	if got := Truncate("short", 24); got != "short" {
		t.Errorf("short strings should be unchanged, got %q", got)
	}
}

const deliveryJSON = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "contacts": [{"wa_id": "977", "profile": {"name": "Asha"}}],
        "messages": [
          {"id": "wamid.1", "from": "977", "type": "text", "text": {"body": "  menu "}},
          {"id": "wamid.2", "from": "977", "type": "interactive", "interactive": {"type": "button_reply", "button_reply": {"id": "proceed_checkout", "title": "Checkout 🛒"}}},
          {"id": "wamid.3", "from": "977", "type": "interactive", "interactive": {"type": "list_reply", "list_reply": {"id": "add_7", "title": "Jhol Momo"}}},
          {"id": "wamid.4", "from": "977", "type": "image"}
        ]
      }
    }]
  }]
}`

func TestNormalize(t *testing.T) {
	var payload WebhookPayload
	if err := json.Unmarshal([]byte(deliveryJSON), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	msgs := Normalize(payload)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 processable messages, got %d", len(msgs))
	}
	if msgs[0].Text != "menu" || msgs[0].UserName != "Asha" || msgs[0].Platform != models.PlatformWhatsApp {
		t.Errorf("unexpected text message %+v", msgs[0])
	}
	if msgs[1].Interactive == nil || msgs[1].Interactive.Kind != models.InteractiveButton || msgs[1].Interactive.ID != "proceed_checkout" {
		t.Errorf("unexpected button reply %+v", msgs[1])
	}
	if msgs[1].Text != "Checkout 🛒" {
		t.Errorf("expected title as text, got %q", msgs[1].Text)
	}
	if msgs[2].Interactive == nil || msgs[2].Interactive.Kind != models.InteractiveList || msgs[2].MessageID != "wamid.3" {
		t.Errorf("unexpected list reply %+v", msgs[2])
	}

	if got := Normalize(WebhookPayload{Object: ObjectMessenger}); got != nil {
		t.Errorf("expected nil for non-WhatsApp object, got %v", got)
	}
}
