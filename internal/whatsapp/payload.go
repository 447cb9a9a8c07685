package whatsapp

// Platform limits for interactive messages.
const (
	MaxButtons        = 3
	MaxRowsPerSection = 10
	MaxRowTitle       = 24
	MaxRowDescription = 72
)

// Message is the request body of POST /{phone-number-id}/messages.
type Message struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *Text        `json:"text,omitempty"`
	Image            *Image       `json:"image,omitempty"`
	Interactive      *Interactive `json:"interactive,omitempty"`
}

// Text is a plain text body.
type Text struct {
	Body string `json:"body"`
}

// Image is an image referenced by public link.
type Image struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

// Interactive is a button or list message.
type Interactive struct {
	Type   string  `json:"type"`
	Header *Header `json:"header,omitempty"`
	Body   Body    `json:"body"`
	Footer *Footer `json:"footer,omitempty"`
	Action Action  `json:"action"`
}

// Header is the text header of an interactive message.
type Header struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Body is the main text of an interactive message.
type Body struct {
	Text string `json:"text"`
}

// Footer is the small print under an interactive message.
type Footer struct {
	Text string `json:"text"`
}

// Action carries either reply buttons or a list button with sections.
type Action struct {
	Button   string    `json:"button,omitempty"`
	Buttons  []Button  `json:"buttons,omitempty"`
	Sections []Section `json:"sections,omitempty"`
}

// Button is a quick reply button.
type Button struct {
	Type  string      `json:"type"`
	Reply ReplyButton `json:"reply"`
}

// ReplyButton holds the opaque id echoed back on tap.
type ReplyButton struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// NewReplyButton builds a reply button.
func NewReplyButton(id, title string) Button {
	return Button{Type: "reply", Reply: ReplyButton{ID: id, Title: title}}
}

// Section groups list rows under a title.
type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// Row is a selectable list entry.
type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// NewTextMessage builds a plain text message.
func NewTextMessage(to, body string) Message {
	return Message{MessagingProduct: "whatsapp", To: to, Type: "text", Text: &Text{Body: body}}
}

// NewImageMessage builds an image message with an optional caption.
func NewImageMessage(to, link, caption string) Message {
	return Message{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "image",
		Image:            &Image{Link: link, Caption: caption},
	}
}

// NewButtonMessage builds an interactive reply-button message.
func NewButtonMessage(to, header, body, footer string, buttons []Button) Message {
	return Message{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &Interactive{
			Type:   "button",
			Header: textHeader(header),
			Body:   Body{Text: body},
			Footer: textFooter(footer),
			Action: Action{Buttons: buttons},
		},
	}
}

// NewListMessage builds an interactive list message.
func NewListMessage(to, header, body, footer, buttonText string, sections []Section) Message {
	return Message{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &Interactive{
			Type:   "list",
			Header: textHeader(header),
			Body:   Body{Text: body},
			Footer: textFooter(footer),
			Action: Action{Button: buttonText, Sections: sections},
		},
	}
}

func textHeader(s string) *Header {
	if s == "" {
		return nil
	}
	return &Header{Type: "text", Text: s}
}

func textFooter(s string) *Footer {
	if s == "" {
		return nil
	}
	return &Footer{Text: s}
}

// PaginateRows splits rows into sections of at most MaxRowsPerSection, preserving order.
// The first section is titled firstTitle and the rest restTitle.
func PaginateRows(rows []Row, firstTitle, restTitle string) []Section {
	var sections []Section
	for i := 0; i < len(rows); i += MaxRowsPerSection {
		end := i + MaxRowsPerSection
		if end > len(rows) {
			end = len(rows)
		}
		title := restTitle
		if i == 0 {
			title = firstTitle
		}
		sections = append(sections, Section{Title: title, Rows: rows[i:end]})
	}
	return sections
}

// NormalizeSections splits any oversized section into consecutive sections with the same title.
func NormalizeSections(sections []Section) []Section {
	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		if len(s.Rows) <= MaxRowsPerSection {
			out = append(out, s)
			continue
		}
		out = append(out, PaginateRows(s.Rows, s.Title, s.Title)...)
	}
	return out
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
