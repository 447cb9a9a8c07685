// Package whatsapp is a client for the WhatsApp Business Cloud API.
//
// It builds message payloads, posts them to the Graph messages endpoint and
// parses inbound webhook deliveries.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Constants for WhatsApp client configuration
const (
	// DefaultGraphURL is the Graph API base including the version segment.
	DefaultGraphURL = "https://graph.facebook.com/v20.0"
	// DefaultTimeout bounds each outbound request.
	DefaultTimeout = 15 * time.Second
	// maxErrorBody caps how much of a provider error body is kept.
	maxErrorBody = 4096
)

// ErrMissingCredentials is returned when the phone number id or access token is not configured.
var ErrMissingCredentials = errors.New("missing WhatsApp credentials (WHATSAPP_PHONE_NUMBER_ID, WHATSAPP_ACCESS_TOKEN)")

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("WhatsApp API error: status %d: %s", e.StatusCode, e.Body)
}

// SendResponse is the provider acknowledgement of a sent message.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Messages         []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the id of the first acknowledged message, if any.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// WhatsAppSender is implemented by Client.
type WhatsAppSender interface {
	Configured() bool
	SendText(ctx context.Context, to, body string) (*SendResponse, error)
	SendImage(ctx context.Context, to, link, caption string) (*SendResponse, error)
	SendButtons(ctx context.Context, to, header, body, footer string, buttons []Button) (*SendResponse, error)
	SendList(ctx context.Context, to, header, body, footer, buttonText string, sections []Section) (*SendResponse, error)
}

var _ WhatsAppSender = (*Client)(nil)

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	PhoneNumberID string
	AccessToken   string
	GraphURL      string
	HTTPClient    *http.Client
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithPhoneNumberID sets the business phone number id messages are sent from.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithAccessToken sets the bearer token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithGraphURL overrides the Graph API base URL (used by tests).
func WithGraphURL(url string) Option {
	return func(o *Opts) { o.GraphURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client posts messages to the WhatsApp Cloud API.
type Client struct {
	phoneNumberID string
	accessToken   string
	graphURL      string
	httpClient    *http.Client
}

// NewClient creates a Cloud API client. Missing credentials are not an error here;
// sends will fail with ErrMissingCredentials instead.
func NewClient(opts ...Option) *Client {
	cfg := Opts{GraphURL: DefaultGraphURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.PhoneNumberID == "" || cfg.AccessToken == "" {
		slog.Warn("WhatsApp.NewClient: credentials not configured; outbound messages will be dropped")
	}
	return &Client{
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		graphURL:      cfg.GraphURL,
		httpClient:    cfg.HTTPClient,
	}
}

// Configured reports whether both credentials are present.
func (c *Client) Configured() bool {
	return c.phoneNumberID != "" && c.accessToken != ""
}

// Send posts a prepared message.
func (c *Client) Send(ctx context.Context, msg Message) (*SendResponse, error) {
	if !c.Configured() {
		return nil, ErrMissingCredentials
	}
	if msg.To == "" {
		return nil, fmt.Errorf("recipient cannot be empty")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", msg.Type, err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s message to %s: %w", msg.Type, msg.To, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	var out SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		slog.Warn("WhatsApp.Send: could not decode acknowledgement", "error", err)
		return &out, nil
	}
	slog.Debug("WhatsApp.Send: message sent", "type", msg.Type, "to", msg.To, "messageID", out.MessageID())
	return &out, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	if body == "" {
		return nil, fmt.Errorf("message body cannot be empty")
	}
	return c.Send(ctx, NewTextMessage(to, body))
}

// SendImage sends an image with a caption.
func (c *Client) SendImage(ctx context.Context, to, link, caption string) (*SendResponse, error) {
	return c.Send(ctx, NewImageMessage(to, link, caption))
}

// SendButtons sends up to MaxButtons reply buttons.
func (c *Client) SendButtons(ctx context.Context, to, header, body, footer string, buttons []Button) (*SendResponse, error) {
	if len(buttons) == 0 || len(buttons) > MaxButtons {
		return nil, fmt.Errorf("button messages need 1 to %d buttons, got %d", MaxButtons, len(buttons))
	}
	return c.Send(ctx, NewButtonMessage(to, header, body, footer, buttons))
}

// SendList sends a list message; oversized sections are split automatically.
func (c *Client) SendList(ctx context.Context, to, header, body, footer, buttonText string, sections []Section) (*SendResponse, error) {
	return c.Send(ctx, NewListMessage(to, header, body, footer, buttonText, NormalizeSections(sections)))
}
