package domain

import "fmt"

// Answer is the semantic value a driver derives from an inbound message for
// conversation purposes. For plain text messages Value equals Text; for
// interactive replies (buttons, quick replies) Value carries the selected
// payload and FromCallback is true. When an attachment-expecting
// conversation step resumes, Value holds the attachment data instead.
type Answer struct {
	Text         string           `json:"text"`
	Value        any              `json:"value,omitempty"`
	FromCallback bool             `json:"from_callback,omitempty"`
	Message      *IncomingMessage `json:"message,omitempty"`
}

// NewAnswer builds a plain text answer for a message.
func NewAnswer(msg *IncomingMessage) *Answer {
	return &Answer{
		Text:    msg.Text,
		Value:   msg.Text,
		Message: msg,
	}
}

// ValueText renders the answer value as a string, falling back to the raw
// text. Pattern matching runs against this form.
func (a *Answer) ValueText() string {
	if a == nil {
		return ""
	}
	switch v := a.Value.(type) {
	case nil:
		return a.Text
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
