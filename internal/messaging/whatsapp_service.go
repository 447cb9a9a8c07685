package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BTreeMap/OrderPipe/internal/metrics"
	"github.com/BTreeMap/OrderPipe/internal/whatsapp"
)

// DefaultRestaurantName is used in the confirmation footer when none is configured.
const DefaultRestaurantName = "Momo House"

// WhatsAppService implements Service using the WhatsApp Cloud API client.
type WhatsAppService struct {
	client         whatsapp.WhatsAppSender
	metrics        metrics.Recorder
	restaurantName string
}

// ServiceOption configures a messaging service.
type ServiceOption func(*serviceOpts)

type serviceOpts struct {
	metrics        metrics.Recorder
	restaurantName string
	offerTTL       time.Duration
}

// WithMetrics records every send attempt.
func WithMetrics(r metrics.Recorder) ServiceOption {
	return func(o *serviceOpts) { o.metrics = r }
}

// WithRestaurantName sets the name shown in the order confirmation footer.
func WithRestaurantName(name string) ServiceOption {
	return func(o *serviceOpts) { o.restaurantName = name }
}

// WithOfferTTL sets how long numbered options stay answerable on text-only providers.
func WithOfferTTL(d time.Duration) ServiceOption {
	return func(o *serviceOpts) { o.offerTTL = d }
}

func applyServiceOpts(opts []ServiceOption) serviceOpts {
	cfg := serviceOpts{restaurantName: DefaultRestaurantName, offerTTL: DefaultOfferTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.metrics = metrics.OrNop(cfg.metrics)
	if cfg.offerTTL <= 0 {
		cfg.offerTTL = DefaultOfferTTL
	}
	if cfg.restaurantName == "" {
		cfg.restaurantName = DefaultRestaurantName
	}
	return cfg
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.WhatsAppSender, opts ...ServiceOption) *WhatsAppService {
	cfg := applyServiceOpts(opts)
	return &WhatsAppService{client: client, metrics: cfg.metrics, restaurantName: cfg.restaurantName}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone("WhatsAppService", recipient)
}

// record logs a provider failure and swallows it.
func (s *WhatsAppService) record(kind, to string, resp *whatsapp.SendResponse, err error) {
	s.metrics.IncSend("whatsapp", kind, err == nil)
	if err == nil {
		slog.Debug("WhatsAppService message sent", "kind", kind, "to", to, "messageID", resp.MessageID())
		return
	}
	if errors.Is(err, whatsapp.ErrMissingCredentials) {
		slog.Warn("WhatsAppService credentials missing, message dropped", "kind", kind, "to", to)
		return
	}
	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		slog.Error("WhatsAppService provider rejected message", "kind", kind, "to", to, "status", apiErr.StatusCode, "body", apiErr.Body)
		return
	}
	slog.Error("WhatsAppService send error", "kind", kind, "to", to, "error", err)
}

// SendText sends a plain text message.
func (s *WhatsAppService) SendText(ctx context.Context, to, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	resp, err := s.client.SendText(ctx, canonicalTo, body)
	s.record(KindText, canonicalTo, resp, err)
	return nil
}

// SendImage sends an image with a caption.
func (s *WhatsAppService) SendImage(ctx context.Context, to, link, caption string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	resp, err := s.client.SendImage(ctx, canonicalTo, link, caption)
	s.record(KindImage, canonicalTo, resp, err)
	return nil
}

// SendButtons sends an interactive reply-button message.
func (s *WhatsAppService) SendButtons(ctx context.Context, to string, msg ButtonMessage) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := validateButtons(msg); err != nil {
		return err
	}
	resp, err := s.client.SendButtons(ctx, canonicalTo, msg.Header, msg.Body, msg.Footer, msg.Buttons)
	s.record(KindButtons, canonicalTo, resp, err)
	return nil
}

// SendList sends an interactive list message.
func (s *WhatsAppService) SendList(ctx context.Context, to string, msg ListMessage) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	resp, err := s.client.SendList(ctx, canonicalTo, msg.Header, msg.Body, msg.Footer, msg.ButtonText, msg.Sections)
	s.record(KindList, canonicalTo, resp, err)
	return nil
}

// SendOrderConfirmation sends the confirm/cancel prompt.
func (s *WhatsAppService) SendOrderConfirmation(ctx context.Context, to, orderDetails string) error {
	return s.SendButtons(ctx, to, OrderConfirmationMessage(s.restaurantName, orderDetails))
}
