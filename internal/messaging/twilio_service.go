package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/OrderPipe/internal/metrics"
	"github.com/BTreeMap/OrderPipe/internal/models"
	"github.com/BTreeMap/OrderPipe/internal/twiliowhatsapp"
)

// DefaultOfferTTL is how long a rendered option list can be answered by number.
const DefaultOfferTTL = 24 * time.Hour

// numberedOption is one choice rendered as "N. Title".
type numberedOption struct {
	kind  models.InteractiveKind
	id    string
	title string
}

type offer struct {
	options []numberedOption
	at      time.Time
}

// TwilioService implements Service over Twilio, which only carries text.
// Buttons and lists are rendered as numbered options; the options last offered to each user are
// remembered so a numeric reply can be resolved back to its button or row id.
type TwilioService struct {
	client         twiliowhatsapp.Sender
	metrics        metrics.Recorder
	restaurantName string
	offerTTL       time.Duration
	now            func() time.Time

	mu      sync.RWMutex
	offered map[string]offer
	stopped bool
}

// NewTwilioService creates a new TwilioService.
func NewTwilioService(client twiliowhatsapp.Sender, opts ...ServiceOption) *TwilioService {
	cfg := applyServiceOpts(opts)
	return &TwilioService{
		client:         client,
		metrics:        cfg.metrics,
		restaurantName: cfg.restaurantName,
		offerTTL:       cfg.offerTTL,
		now:            time.Now,
		offered:        make(map[string]offer),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// Twilio's "whatsapp:" channel prefix is accepted.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone("TwilioService", strings.TrimPrefix(recipient, "whatsapp:"))
}

// Stop rejects further sends.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *TwilioService) send(ctx context.Context, kind, to, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	err := s.client.SendMessage(ctx, to, body)
	s.metrics.IncSend("twilio", kind, err == nil)
	if err != nil {
		slog.Error("TwilioService send error", "kind", kind, "to", to, "error", err)
	}
	return nil
}

// SendText sends a plain text message.
func (s *TwilioService) SendText(ctx context.Context, to, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.send(ctx, KindText, canonicalTo, body)
}

// SendImage sends the caption followed by the image link.
func (s *TwilioService) SendImage(ctx context.Context, to, link, caption string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	body := link
	if caption != "" {
		body = caption + "\n" + link
	}
	return s.send(ctx, KindImage, canonicalTo, body)
}

// SendButtons renders the buttons as a numbered list.
func (s *TwilioService) SendButtons(ctx context.Context, to string, msg ButtonMessage) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := validateButtons(msg); err != nil {
		return err
	}
	options := make([]numberedOption, 0, len(msg.Buttons))
	var sb strings.Builder
	writeHeaderBody(&sb, msg.Header, msg.Body)
	for i, b := range msg.Buttons {
		options = append(options, numberedOption{kind: models.InteractiveButton, id: b.Reply.ID, title: b.Reply.Title})
		fmt.Fprintf(&sb, "%d. %s\n", i+1, b.Reply.Title)
	}
	writeFooter(&sb, msg.Footer)
	s.remember(canonicalTo, options)
	return s.send(ctx, KindButtons, canonicalTo, strings.TrimRight(sb.String(), "\n"))
}

// SendList renders every section's rows as one continuously numbered list.
func (s *TwilioService) SendList(ctx context.Context, to string, msg ListMessage) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	var options []numberedOption
	var sb strings.Builder
	writeHeaderBody(&sb, msg.Header, msg.Body)
	for _, section := range msg.Sections {
		if section.Title != "" {
			fmt.Fprintf(&sb, "*%s*\n", section.Title)
		}
		for _, row := range section.Rows {
			options = append(options, numberedOption{kind: models.InteractiveList, id: row.ID, title: row.Title})
			fmt.Fprintf(&sb, "%d. %s\n", len(options), row.Title)
			if row.Description != "" {
				fmt.Fprintf(&sb, "   %s\n", row.Description)
			}
		}
		sb.WriteString("\n")
	}
	writeFooter(&sb, msg.Footer)
	s.remember(canonicalTo, options)
	return s.send(ctx, KindList, canonicalTo, strings.TrimRight(sb.String(), "\n"))
}

// SendOrderConfirmation sends the confirm/cancel prompt.
func (s *TwilioService) SendOrderConfirmation(ctx context.Context, to, orderDetails string) error {
	return s.SendButtons(ctx, to, OrderConfirmationMessage(s.restaurantName, orderDetails))
}

func writeHeaderBody(sb *strings.Builder, header, body string) {
	if header != "" {
		fmt.Fprintf(sb, "*%s*\n\n", header)
	}
	if body != "" {
		sb.WriteString(body)
		sb.WriteString("\n\n")
	}
}

func writeFooter(sb *strings.Builder, footer string) {
	if footer != "" {
		fmt.Fprintf(sb, "_%s_\n", footer)
	}
	sb.WriteString("Reply with a number to choose.")
}

func (s *TwilioService) remember(user string, options []numberedOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offered[user] = offer{options: options, at: s.now()}
}

// SweepOffers forgets option lists older than the offer TTL and returns how many were removed.
func (s *TwilioService) SweepOffers() int {
	cutoff := s.now().Add(-s.offerTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for user, o := range s.offered {
		if o.at.Before(cutoff) {
			delete(s.offered, user)
			removed++
		}
	}
	return removed
}

// PendingOffers returns the number of users with an answerable option list.
func (s *TwilioService) PendingOffers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.offered)
}

// ResolveInbound converts a Twilio webhook message into an InboundMessage. A reply that is
// exactly the number of an option last offered to the sender becomes an interactive reply.
func (s *TwilioService) ResolveInbound(messageID, from, body string) (models.InboundMessage, error) {
	userID, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		return models.InboundMessage{}, err
	}
	msg := models.InboundMessage{
		MessageID: messageID,
		UserID:    userID,
		Platform:  models.PlatformWhatsApp,
		Type:      "text",
		Text:      strings.TrimSpace(body),
	}
	n, err := strconv.Atoi(msg.Text)
	if err != nil {
		return msg, nil
	}
	s.mu.RLock()
	o, ok := s.offered[userID]
	s.mu.RUnlock()
	if !ok || s.now().Sub(o.at) > s.offerTTL || n < 1 || n > len(o.options) {
		return msg, nil
	}
	opt := o.options[n-1]
	msg.Type = "interactive"
	msg.Text = opt.title
	msg.Interactive = &models.InteractiveReply{Kind: opt.kind, ID: opt.id, Title: opt.title}
	return msg, nil
}
