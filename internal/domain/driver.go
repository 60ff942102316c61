package domain

import (
	"errors"
	"net/http"
	"net/url"
)

// ErrDriverCapability is returned when a driver is asked for a low-level
// operation it does not support. There is no meaningful fallback, so this
// surfaces as a hard fault instead of degrading silently.
var ErrDriverCapability = errors.New("driver does not support this operation")

// Request carries the transport-level inbound request a driver inspects.
// Long-lived socket drivers synthesize one per received event.
type Request struct {
	Body    []byte
	Headers http.Header
	Query   url.Values
}

func NewRequest(body []byte) *Request {
	return &Request{Body: body, Headers: make(http.Header), Query: make(url.Values)}
}

// DriverEvent is a provider-level, non-message event (delivery receipt,
// member join, URL verification and the like).
type DriverEvent struct {
	Name    string
	Payload map[string]any
}

// User describes the sender of a message as known to the provider.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Username  string
}

// Payload is a provider-specific outbound payload built by a driver and
// handed back to it for delivery after the sending middleware ran.
type Payload map[string]any

// OutgoingMessage is the provider-independent reply value object.
type OutgoingMessage struct {
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Location   *Location   `json:"location,omitempty"`
	Contact    *Contact    `json:"contact,omitempty"`
}

// Driver adapts one messaging provider to the engine. Implementations are
// request-scoped: constructed around a Request, they report whether the
// request belongs to them and translate it into normalized messages.
type Driver interface {
	Name() string

	// MatchesRequest reports whether the inbound request originates from
	// this driver's provider.
	MatchesRequest() bool

	// Event returns a provider-level non-message event, if the request
	// carries one.
	Event() (*DriverEvent, bool)

	// Messages returns the normalized messages found in the request.
	Messages() []*IncomingMessage

	// IsBot reports whether the request was authored by a bot.
	IsBot() bool

	// IsConfigured reports whether the driver has the credentials it
	// needs to operate.
	IsConfigured() bool

	// User resolves provider-side user details for a message sender.
	User(msg *IncomingMessage) (*User, error)

	// ConversationAnswer derives the semantic answer value from a
	// message (e.g. a button payload instead of display text).
	ConversationAnswer(msg *IncomingMessage) *Answer

	// BuildServicePayload turns an outgoing message into the provider
	// wire payload, addressed according to the matching inbound message.
	BuildServicePayload(out *OutgoingMessage, matching *IncomingMessage, extras map[string]any) (Payload, error)

	// SendPayload delivers a built payload to the provider.
	SendPayload(p Payload) error

	// Types sends a typing indicator, where the provider supports one.
	Types(msg *IncomingMessage) error

	// SerializesCallbacks reports whether conversation callbacks must
	// survive process boundaries. Long-lived socket drivers return
	// false and keep pending callbacks in-process.
	SerializesCallbacks() bool
}
