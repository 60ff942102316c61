package driver

import (
	"testing"

	"botkit/internal/domain"
	"botkit/internal/matcher"
)

func slackEventRequest(body string) *domain.Request {
	return domain.NewRequest([]byte(body))
}

func TestSlackNormalizesMessageEvent(t *testing.T) {
	d := NewSlack(SlackConfig{Token: "tok"}, slackEventRequest(`{
		"token": "t", "team_id": "T1", "type": "event_callback",
		"event": {"type": "message", "user": "U1", "channel": "C1", "text": "hello", "ts": "1700000000.000100"}
	}`))
	if !d.MatchesRequest() {
		t.Fatal("event callback not claimed")
	}
	msgs := d.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Messages = %d, want 1", len(msgs))
	}
	if msgs[0].Text != "hello" || msgs[0].Sender != "U1" || msgs[0].Recipient != "C1" {
		t.Fatalf("message = %+v", msgs[0])
	}
}

// File shares ride on the normalized inner message, not on the event
// struct itself.
func TestSlackFileSharesBecomeAttachments(t *testing.T) {
	d := NewSlack(SlackConfig{Token: "tok"}, slackEventRequest(`{
		"token": "t", "team_id": "T1", "type": "event_callback",
		"event": {"type": "message", "user": "U1", "channel": "C1", "text": "", "ts": "1700000000.000100",
			"files": [{"name": "cat.jpg", "mimetype": "image/jpeg", "url_private": "https://files.slack.test/cat.jpg"}]}
	}`))
	msgs := d.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Messages = %d, want 1", len(msgs))
	}
	msg := msgs[0]
	if len(msg.Images) != 1 || msg.Images[0].URL != "https://files.slack.test/cat.jpg" {
		t.Fatalf("Images = %+v", msg.Images)
	}
	if msg.Images[0].Title != "cat.jpg" {
		t.Fatalf("Title = %q", msg.Images[0].Title)
	}
	if msg.Text != matcher.ImagePattern {
		t.Fatalf("Text = %q, want image sentinel", msg.Text)
	}
}

func TestSlackURLVerificationChallenge(t *testing.T) {
	d := NewSlack(SlackConfig{}, slackEventRequest(`{"token": "t", "type": "url_verification", "challenge": "abc123"}`))
	if !d.MatchesRequest() {
		t.Fatal("url_verification not claimed")
	}
	if d.Challenge() != "abc123" {
		t.Fatalf("Challenge = %q", d.Challenge())
	}
}

func TestSlackInteractionAnswer(t *testing.T) {
	d := NewSlack(SlackConfig{Token: "tok"}, slackEventRequest(
		`payload=%7B%22type%22%3A%22block_actions%22%2C%22user%22%3A%7B%22id%22%3A%22U1%22%7D%2C%22channel%22%3A%7B%22id%22%3A%22C1%22%7D%2C%22actions%22%3A%5B%7B%22value%22%3A%22opt-2%22%7D%5D%7D`))
	if !d.MatchesRequest() {
		t.Fatal("interaction payload not claimed")
	}
	msgs := d.Messages()
	if len(msgs) != 1 || msgs[0].Sender != "U1" || msgs[0].Recipient != "C1" {
		t.Fatalf("Messages = %+v", msgs)
	}
	answer := d.ConversationAnswer(msgs[0])
	if !answer.FromCallback || answer.Value != "opt-2" {
		t.Fatalf("answer = %+v", answer)
	}
}
