package models

// Platform identifies the channel a message arrived on.
type Platform string

const (
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformMessenger Platform = "messenger"
)

// InteractiveKind distinguishes button taps from list selections.
type InteractiveKind string

const (
	InteractiveButton InteractiveKind = "button"
	InteractiveList   InteractiveKind = "list"
)

// InteractiveReply is a structured button or list selection.
type InteractiveReply struct {
	Kind  InteractiveKind `json:"type"`
	ID    string          `json:"id"`
	Title string          `json:"title"`
}

// InboundMessage is the platform-neutral shape of one user message.
type InboundMessage struct {
	MessageID   string            `json:"message_id,omitempty"`
	UserID      string            `json:"user_id"`
	UserName    string            `json:"user_name,omitempty"`
	Platform    Platform          `json:"platform"`
	Type        string            `json:"type"`
	Text        string            `json:"text,omitempty"`
	Interactive *InteractiveReply `json:"interactive,omitempty"`
}

// Processable reports whether the message carries text or an interactive selection.
func (m InboundMessage) Processable() bool {
	return m.Text != "" || m.Interactive != nil
}
