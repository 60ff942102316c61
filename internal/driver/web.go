package driver

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"botkit/internal/domain"
	"botkit/internal/matcher"
)

// Web handles synchronous HTTP chat clients: the inbound request carries
// the user message as JSON (or query parameters), replies are buffered
// and rendered back on the same response.
type Web struct {
	req     *domain.Request
	payload webPayload
	matched bool

	mu      sync.Mutex
	replies []domain.Payload
}

type webPayload struct {
	Driver      string              `json:"driver"`
	UserID      string              `json:"userId"`
	ChatID      string              `json:"chatId"`
	Message     string              `json:"message"`
	Value       string              `json:"value"`
	Interactive bool                `json:"interactive"`
	Attachments []domain.Attachment `json:"attachments"`
	Kind        string              `json:"attachmentKind"`
}

func NewWeb(req *domain.Request) *Web {
	d := &Web{req: req}
	if req == nil || len(req.Body) == 0 {
		d.fromQuery()
		return d
	}
	if err := json.Unmarshal(req.Body, &d.payload); err != nil {
		d.fromQuery()
		return d
	}
	d.matched = d.payload.Driver == "web"
	return d
}

func (d *Web) fromQuery() {
	if d.req == nil {
		return
	}
	q := d.req.Query
	d.payload = webPayload{
		Driver:  q.Get("driver"),
		UserID:  q.Get("userId"),
		ChatID:  q.Get("chatId"),
		Message: q.Get("message"),
		Value:   q.Get("value"),
	}
	d.matched = d.payload.Driver == "web"
}

func (d *Web) Name() string         { return "web" }
func (d *Web) MatchesRequest() bool { return d.matched }
func (d *Web) IsBot() bool          { return false }
func (d *Web) IsConfigured() bool   { return true }

// SerializesCallbacks is true: every web request is a fresh process-
// independent roundtrip, so pending callbacks must survive serialization.
func (d *Web) SerializesCallbacks() bool { return true }

func (d *Web) Event() (*domain.DriverEvent, bool) { return nil, false }

func (d *Web) Messages() []*domain.IncomingMessage {
	if !d.matched {
		return nil
	}
	chatID := d.payload.ChatID
	if chatID == "" {
		chatID = d.payload.UserID
	}
	msg := domain.NewIncomingMessage(d.payload.Message, d.payload.UserID, chatID, rawPayload(d.req))
	switch d.payload.Kind {
	case domain.GetterImages:
		msg.Images = d.payload.Attachments
		msg.Text = matcher.ImagePattern
	case domain.GetterVideos:
		msg.Videos = d.payload.Attachments
		msg.Text = matcher.VideoPattern
	case domain.GetterAudio:
		msg.Audio = d.payload.Attachments
		msg.Text = matcher.AudioPattern
	case domain.GetterFiles:
		msg.Files = d.payload.Attachments
		msg.Text = matcher.FilePattern
	}
	return []*domain.IncomingMessage{msg}
}

func (d *Web) User(msg *domain.IncomingMessage) (*domain.User, error) {
	return &domain.User{ID: msg.Sender}, nil
}

func (d *Web) ConversationAnswer(msg *domain.IncomingMessage) *domain.Answer {
	answer := domain.NewAnswer(msg)
	if d.payload.Interactive {
		answer.FromCallback = true
		answer.Value = d.payload.Value
	}
	return answer
}

func (d *Web) BuildServicePayload(out *domain.OutgoingMessage, matching *domain.IncomingMessage, extras map[string]any) (domain.Payload, error) {
	payload := domain.Payload{
		"id":   uuid.NewString(),
		"type": "text",
		"text": out.Text,
	}
	if matching != nil {
		payload["recipient"] = matching.Sender
	}
	if out.Attachment != nil {
		payload["attachment"] = out.Attachment
	}
	if out.Location != nil {
		payload["location"] = out.Location
	}
	for k, v := range extras {
		payload[k] = v
	}
	return payload, nil
}

// SendPayload buffers the reply for the transport layer to render.
func (d *Web) SendPayload(p domain.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies = append(d.replies, p)
	return nil
}

// Replies returns the payloads buffered during this request.
func (d *Web) Replies() []domain.Payload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Payload(nil), d.replies...)
}

func (d *Web) Types(*domain.IncomingMessage) error { return nil }

func rawPayload(req *domain.Request) map[string]any {
	if req == nil || len(req.Body) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Body, &m); err != nil {
		return nil
	}
	return m
}
