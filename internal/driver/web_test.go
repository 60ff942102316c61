package driver

import (
	"testing"

	"botkit/internal/domain"
	"botkit/internal/matcher"
)

func webRequest(body string) *domain.Request {
	return domain.NewRequest([]byte(body))
}

func TestWebMatchesOnlyItsOwnPayloads(t *testing.T) {
	d := NewWeb(webRequest(`{"driver":"web","userId":"u1","message":"hi"}`))
	if !d.MatchesRequest() {
		t.Fatal("web payload not claimed")
	}

	d = NewWeb(webRequest(`{"driver":"telegram"}`))
	if d.MatchesRequest() {
		t.Fatal("foreign payload claimed")
	}

	d = NewWeb(webRequest(`not json`))
	if d.MatchesRequest() {
		t.Fatal("garbage claimed")
	}
}

func TestWebMatchesQueryParameters(t *testing.T) {
	req := domain.NewRequest(nil)
	req.Query.Set("driver", "web")
	req.Query.Set("userId", "u1")
	req.Query.Set("message", "hi")

	d := NewWeb(req)
	if !d.MatchesRequest() {
		t.Fatal("query payload not claimed")
	}
	msgs := d.Messages()
	if len(msgs) != 1 || msgs[0].Text != "hi" || msgs[0].Sender != "u1" {
		t.Fatalf("Messages = %+v", msgs)
	}
}

func TestWebNormalizesMessage(t *testing.T) {
	d := NewWeb(webRequest(`{"driver":"web","userId":"u1","chatId":"room-7","message":"hello"}`))
	msgs := d.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Messages = %d, want 1", len(msgs))
	}
	if msgs[0].Sender != "u1" || msgs[0].Recipient != "room-7" || msgs[0].Text != "hello" {
		t.Fatalf("message = %+v", msgs[0])
	}
}

func TestWebChatIDDefaultsToUser(t *testing.T) {
	d := NewWeb(webRequest(`{"driver":"web","userId":"u1","message":"hello"}`))
	if got := d.Messages()[0].Recipient; got != "u1" {
		t.Fatalf("Recipient = %q, want the user id", got)
	}
}

func TestWebAttachmentKindSetsSentinel(t *testing.T) {
	d := NewWeb(webRequest(`{"driver":"web","userId":"u1","attachmentKind":"images","attachments":[{"url":"https://example.test/a.jpg"}]}`))
	msg := d.Messages()[0]
	if msg.Text != matcher.ImagePattern {
		t.Fatalf("Text = %q, want image sentinel", msg.Text)
	}
	if len(msg.Images) != 1 || msg.Images[0].URL != "https://example.test/a.jpg" {
		t.Fatalf("Images = %+v", msg.Images)
	}
}

func TestWebInteractiveAnswer(t *testing.T) {
	d := NewWeb(webRequest(`{"driver":"web","userId":"u1","message":"Pick one","value":"opt-2","interactive":true}`))
	answer := d.ConversationAnswer(d.Messages()[0])
	if !answer.FromCallback {
		t.Fatal("interactive answer must be flagged as callback")
	}
	if answer.Value != "opt-2" {
		t.Fatalf("Value = %v", answer.Value)
	}
}

func TestWebBuffersReplies(t *testing.T) {
	d := NewWeb(webRequest(`{"driver":"web","userId":"u1","message":"hi"}`))
	msg := d.Messages()[0]

	payload, err := d.BuildServicePayload(&domain.OutgoingMessage{Text: "hello back"}, msg, nil)
	if err != nil {
		t.Fatalf("BuildServicePayload: %v", err)
	}
	if payload["text"] != "hello back" || payload["recipient"] != "u1" {
		t.Fatalf("payload = %v", payload)
	}
	if payload["id"] == "" {
		t.Fatal("payload id missing")
	}

	if err := d.SendPayload(payload); err != nil {
		t.Fatalf("SendPayload: %v", err)
	}
	replies := d.Replies()
	if len(replies) != 1 || replies[0]["text"] != "hello back" {
		t.Fatalf("Replies = %v", replies)
	}
}

func TestRegistryFirstClaimWins(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("null-ish", func(req *domain.Request) domain.Driver { return NewNullDriver() })
	reg.Register("web", func(req *domain.Request) domain.Driver { return NewWeb(req) })

	d := reg.Matching(webRequest(`{"driver":"web","userId":"u1","message":"hi"}`))
	if d.Name() != "web" {
		t.Fatalf("Matching picked %q", d.Name())
	}
}

func TestRegistryFallsBackToNullDriver(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("web", func(req *domain.Request) domain.Driver { return NewWeb(req) })

	d := reg.Matching(webRequest(`{"driver":"nothing"}`))
	if _, ok := d.(*NullDriver); !ok {
		t.Fatalf("Matching = %T, want NullDriver", d)
	}
	if err := d.SendPayload(domain.Payload{}); err == nil {
		t.Fatal("null driver must refuse to send")
	}
}

func TestRegistryForName(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("web", func(req *domain.Request) domain.Driver { return NewWeb(req) })

	if _, err := reg.ForName("web"); err != nil {
		t.Fatalf("ForName: %v", err)
	}
	if _, err := reg.ForName("telegram"); err == nil {
		t.Fatal("unknown driver name must fail")
	}
}
