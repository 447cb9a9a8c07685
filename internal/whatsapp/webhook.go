package whatsapp

import (
	"strings"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

// Webhook object types.
const (
	ObjectWhatsApp  = "whatsapp_business_account"
	ObjectMessenger = "page"
)

// WebhookPayload is the body of a Cloud API webhook delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one business account entry of a delivery.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one field change carrying the message batch.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue holds the messages and sender contacts.
type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []Contact        `json:"contacts"`
	Messages         []InboundMessage `json:"messages"`
}

// Contact carries the sender profile.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// InboundMessage is a raw inbound message.
type InboundMessage struct {
	ID          string              `json:"id"`
	From        string              `json:"from"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *InboundText        `json:"text,omitempty"`
	Interactive *InboundInteractive `json:"interactive,omitempty"`
}

// InboundText is the text part of an inbound message.
type InboundText struct {
	Body string `json:"body"`
}

// InboundInteractive is a button or list reply.
type InboundInteractive struct {
	Type        string       `json:"type"`
	ButtonReply *ReplyButton `json:"button_reply,omitempty"`
	ListReply   *ListReply   `json:"list_reply,omitempty"`
}

// ListReply is the selected list row.
type ListReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Normalize flattens a delivery into platform-neutral messages in array order.
// Messages that carry neither text nor an interactive selection are skipped.
func Normalize(p WebhookPayload) []models.InboundMessage {
	if p.Object != ObjectWhatsApp {
		return nil
	}
	var out []models.InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			userName := ""
			if len(change.Value.Contacts) > 0 {
				userName = change.Value.Contacts[0].Profile.Name
			}
			for _, raw := range change.Value.Messages {
				msg := models.InboundMessage{
					MessageID: raw.ID,
					UserID:    raw.From,
					UserName:  userName,
					Platform:  models.PlatformWhatsApp,
					Type:      raw.Type,
				}
				switch raw.Type {
				case "text":
					if raw.Text != nil {
						msg.Text = strings.TrimSpace(raw.Text.Body)
					}
				case "interactive":
					msg.Interactive = interactiveReply(raw.Interactive)
					if msg.Interactive != nil {
						msg.Text = msg.Interactive.Title
					}
				}
				if msg.UserID == "" || !msg.Processable() {
					continue
				}
				out = append(out, msg)
			}
		}
	}
	return out
}

func interactiveReply(in *InboundInteractive) *models.InteractiveReply {
	if in == nil {
		return nil
	}
	switch {
	case in.ButtonReply != nil:
		return &models.InteractiveReply{Kind: models.InteractiveButton, ID: in.ButtonReply.ID, Title: in.ButtonReply.Title}
	case in.ListReply != nil:
		return &models.InteractiveReply{Kind: models.InteractiveList, ID: in.ListReply.ID, Title: in.ListReply.Title}
	}
	return nil
}
