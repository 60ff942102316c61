package domain

import (
	"crypto/md5"
	"encoding/hex"
)

// Attachment is a single media item carried by a message (image, video,
// audio clip or file). Drivers set attachments once when they recognize a
// media type in the inbound payload.
type Attachment struct {
	URL     string         `json:"url,omitempty"`
	Title   string         `json:"title,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Location is a shared geo position.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Contact is a shared contact card.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name,omitempty"`
	UserID      string `json:"user_id,omitempty"`
}

// Attachment getter names usable in conversation attachment prompts.
const (
	GetterImages   = "images"
	GetterVideos   = "videos"
	GetterAudio    = "audio"
	GetterFiles    = "files"
	GetterLocation = "location"
	GetterContact  = "contact"
)

// IncomingMessage is one normalized inbound chat message, produced by a
// driver from the provider wire payload. Sender and recipient identify the
// conversation; Extras may be mutated by middleware during dispatch.
type IncomingMessage struct {
	Text      string         `json:"text"`
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	Payload   map[string]any `json:"payload,omitempty"` // raw provider payload, opaque to the engine
	Extras    map[string]any `json:"extras,omitempty"`
	Images    []Attachment   `json:"images,omitempty"`
	Videos    []Attachment   `json:"videos,omitempty"`
	Audio     []Attachment   `json:"audio,omitempty"`
	Files     []Attachment   `json:"files,omitempty"`
	Location  *Location      `json:"location,omitempty"`
	Contact   *Contact       `json:"contact,omitempty"`
	FromBot   bool           `json:"from_bot,omitempty"`
}

func NewIncomingMessage(text, sender, recipient string, payload map[string]any) *IncomingMessage {
	return &IncomingMessage{
		Text:      text,
		Sender:    sender,
		Recipient: recipient,
		Payload:   payload,
		Extras:    make(map[string]any),
	}
}

// AddExtra attaches middleware-produced data to the message.
func (m *IncomingMessage) AddExtra(key string, value any) {
	if m.Extras == nil {
		m.Extras = make(map[string]any)
	}
	m.Extras[key] = value
}

// Extra returns middleware-produced data previously stored with AddExtra.
func (m *IncomingMessage) Extra(key string) (any, bool) {
	v, ok := m.Extras[key]
	return v, ok
}

// ConversationIdentifier keys the pending conversation state for this
// sender/recipient pair in the shared session store.
func (m *IncomingMessage) ConversationIdentifier() string {
	return hashPart(m.Sender) + hashPart(m.Recipient)
}

// OriginatedConversationIdentifier keys conversations the bot itself
// started (e.g. a broadcast), where no concrete sender exists yet.
func (m *IncomingMessage) OriginatedConversationIdentifier() string {
	return hashPart("") + hashPart(m.Recipient)
}

// AttachmentValue returns the attachment data behind a getter name. Used
// when resuming attachment-expecting conversation steps.
func (m *IncomingMessage) AttachmentValue(getter string) any {
	switch getter {
	case GetterImages:
		return m.Images
	case GetterVideos:
		return m.Videos
	case GetterAudio:
		return m.Audio
	case GetterFiles:
		return m.Files
	case GetterLocation:
		return m.Location
	case GetterContact:
		return m.Contact
	}
	return nil
}

// HasAttachment reports whether the message carries data for a getter name.
func (m *IncomingMessage) HasAttachment(getter string) bool {
	switch getter {
	case GetterImages:
		return len(m.Images) > 0
	case GetterVideos:
		return len(m.Videos) > 0
	case GetterAudio:
		return len(m.Audio) > 0
	case GetterFiles:
		return len(m.Files) > 0
	case GetterLocation:
		return m.Location != nil
	case GetterContact:
		return m.Contact != nil
	}
	return false
}

func hashPart(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
