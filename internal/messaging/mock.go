package messaging

import (
	"context"
	"sync"
)

// SentMessage is one message captured by MockService.
type SentMessage struct {
	Kind    string
	To      string
	Text    string
	Link    string
	Buttons *ButtonMessage
	List    *ListMessage
}

// MockService records every send. It is safe for concurrent use.
type MockService struct {
	mu   sync.Mutex
	Sent []SentMessage
}

// NewMockService returns an empty MockService.
func NewMockService() *MockService {
	return &MockService{}
}

func (m *MockService) add(msg SentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockService) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Sent...)
}

// Last returns the most recent message, or the zero value.
func (m *MockService) Last() SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return SentMessage{}
	}
	return m.Sent[len(m.Sent)-1]
}

// Reset forgets every recorded message.
func (m *MockService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (m *MockService) SendText(ctx context.Context, to, body string) error {
	return m.add(SentMessage{Kind: KindText, To: to, Text: body})
}

func (m *MockService) SendImage(ctx context.Context, to, link, caption string) error {
	return m.add(SentMessage{Kind: KindImage, To: to, Text: caption, Link: link})
}

func (m *MockService) SendButtons(ctx context.Context, to string, msg ButtonMessage) error {
	if err := validateButtons(msg); err != nil {
		return err
	}
	return m.add(SentMessage{Kind: KindButtons, To: to, Text: msg.Body, Buttons: &msg})
}

func (m *MockService) SendList(ctx context.Context, to string, msg ListMessage) error {
	return m.add(SentMessage{Kind: KindList, To: to, Text: msg.Body, List: &msg})
}

func (m *MockService) SendOrderConfirmation(ctx context.Context, to, orderDetails string) error {
	return m.SendButtons(ctx, to, OrderConfirmationMessage(DefaultRestaurantName, orderDetails))
}

var (
	_ Service = (*WhatsAppService)(nil)
	_ Service = (*TwilioService)(nil)
	_ Service = (*MessengerService)(nil)
	_ Service = (*MockService)(nil)
)
