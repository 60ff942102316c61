package domain

import "testing"

func TestConversationIdentifierIsDeterministic(t *testing.T) {
	a := NewIncomingMessage("hi", "u1", "chat-1", nil)
	b := NewIncomingMessage("completely different text", "u1", "chat-1", nil)
	if a.ConversationIdentifier() != b.ConversationIdentifier() {
		t.Fatal("identifier must depend only on sender and recipient")
	}

	c := NewIncomingMessage("hi", "u2", "chat-1", nil)
	if a.ConversationIdentifier() == c.ConversationIdentifier() {
		t.Fatal("different senders must key different conversations")
	}

	d := NewIncomingMessage("hi", "u1", "chat-2", nil)
	if a.ConversationIdentifier() == d.ConversationIdentifier() {
		t.Fatal("different recipients must key different conversations")
	}
}

func TestOriginatedIdentifierIgnoresSender(t *testing.T) {
	a := NewIncomingMessage("", "u1", "chat-1", nil)
	b := NewIncomingMessage("", "u2", "chat-1", nil)
	if a.OriginatedConversationIdentifier() != b.OriginatedConversationIdentifier() {
		t.Fatal("originated identifier must not depend on the sender")
	}
	empty := NewIncomingMessage("", "", "chat-1", nil)
	if empty.ConversationIdentifier() != a.OriginatedConversationIdentifier() {
		t.Fatal("originated identifier must equal the empty-sender identifier")
	}
}

func TestAttachmentAccessors(t *testing.T) {
	m := NewIncomingMessage("", "u1", "chat-1", nil)
	if m.HasAttachment(GetterImages) || m.HasAttachment(GetterLocation) {
		t.Fatal("empty message must carry no attachments")
	}

	m.Images = []Attachment{{URL: "https://example.test/a.jpg"}}
	m.Location = &Location{Latitude: 52.5, Longitude: 13.4}

	if !m.HasAttachment(GetterImages) || !m.HasAttachment(GetterLocation) {
		t.Fatal("attachments not visible through getters")
	}
	imgs, ok := m.AttachmentValue(GetterImages).([]Attachment)
	if !ok || len(imgs) != 1 {
		t.Fatalf("AttachmentValue(images) = %#v", m.AttachmentValue(GetterImages))
	}
	if m.HasAttachment("unknown") || m.AttachmentValue("unknown") != nil {
		t.Fatal("unknown getter must be empty")
	}
}

func TestAnswerValueText(t *testing.T) {
	msg := NewIncomingMessage("hello", "u1", "chat-1", nil)
	a := NewAnswer(msg)
	if a.ValueText() != "hello" {
		t.Fatalf("ValueText = %q", a.ValueText())
	}

	a.Value = "payload-7"
	if a.ValueText() != "payload-7" {
		t.Fatalf("ValueText = %q", a.ValueText())
	}

	a.Value = nil
	if a.ValueText() != "hello" {
		t.Fatalf("ValueText fallback = %q", a.ValueText())
	}

	var nilAnswer *Answer
	if nilAnswer.ValueText() != "" {
		t.Fatal("nil answer must render empty")
	}
}
