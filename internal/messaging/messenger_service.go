package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/OrderPipe/internal/metrics"
	"github.com/BTreeMap/OrderPipe/internal/models"
)

// MessengerService is a log-only stand-in for the Messenger Send API.
type MessengerService struct {
	metrics        metrics.Recorder
	restaurantName string
}

// NewMessengerService creates the Messenger stub.
func NewMessengerService(opts ...ServiceOption) *MessengerService {
	cfg := applyServiceOpts(opts)
	return &MessengerService{metrics: cfg.metrics, restaurantName: cfg.restaurantName}
}

// ValidateAndCanonicalizeRecipient accepts any non-empty page-scoped id.
func (s *MessengerService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	return recipient, nil
}

func (s *MessengerService) log(kind, to, body string) error {
	to, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	s.metrics.IncSend("messenger", kind, true)
	slog.Info("MessengerService reply", "kind", kind, "to", to, "body", body)
	return nil
}

func (s *MessengerService) SendText(ctx context.Context, to, body string) error {
	return s.log(KindText, to, body)
}

func (s *MessengerService) SendImage(ctx context.Context, to, link, caption string) error {
	return s.log(KindImage, to, caption+" "+link)
}

func (s *MessengerService) SendButtons(ctx context.Context, to string, msg ButtonMessage) error {
	if err := validateButtons(msg); err != nil {
		return err
	}
	return s.log(KindButtons, to, msg.Body)
}

func (s *MessengerService) SendList(ctx context.Context, to string, msg ListMessage) error {
	return s.log(KindList, to, msg.Body)
}

func (s *MessengerService) SendOrderConfirmation(ctx context.Context, to, orderDetails string) error {
	return s.SendButtons(ctx, to, OrderConfirmationMessage(s.restaurantName, orderDetails))
}

// MessengerPayload is the body of a Messenger `page` webhook delivery.
type MessengerPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message *struct {
				MID        string `json:"mid"`
				Text       string `json:"text"`
				QuickReply *struct {
					Payload string `json:"payload"`
				} `json:"quick_reply,omitempty"`
			} `json:"message,omitempty"`
			Postback *struct {
				MID     string `json:"mid"`
				Title   string `json:"title"`
				Payload string `json:"payload"`
			} `json:"postback,omitempty"`
		} `json:"messaging"`
	} `json:"entry"`
}

// NormalizeMessenger flattens a Messenger delivery into inbound messages.
// Postbacks and quick replies become button replies carrying their payload as the id.
func NormalizeMessenger(p MessengerPayload) []models.InboundMessage {
	var out []models.InboundMessage
	for _, entry := range p.Entry {
		for _, ev := range entry.Messaging {
			msg := models.InboundMessage{UserID: ev.Sender.ID, Platform: models.PlatformMessenger}
			switch {
			case ev.Postback != nil:
				msg.MessageID = ev.Postback.MID
				msg.Type = "interactive"
				msg.Text = ev.Postback.Title
				msg.Interactive = &models.InteractiveReply{Kind: models.InteractiveButton, ID: ev.Postback.Payload, Title: ev.Postback.Title}
			case ev.Message != nil:
				msg.MessageID = ev.Message.MID
				msg.Type = "text"
				msg.Text = strings.TrimSpace(ev.Message.Text)
				if ev.Message.QuickReply != nil {
					msg.Type = "interactive"
					msg.Interactive = &models.InteractiveReply{Kind: models.InteractiveButton, ID: ev.Message.QuickReply.Payload, Title: msg.Text}
				}
			}
			if msg.UserID == "" || !msg.Processable() {
				continue
			}
			out = append(out, msg)
		}
	}
	return out
}
