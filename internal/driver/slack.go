package driver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"botkit/internal/domain"
	"botkit/internal/matcher"
)

const slackMaxMsgLen = 4000

// Slack adapts Slack Events API callbacks delivered over HTTP. Interactive
// component submissions arrive as a form-encoded "payload" field and are
// surfaced as callback answers.
type Slack struct {
	token  string
	logger *slog.Logger

	event       slackevents.EventsAPIEvent
	interaction *slack.InteractionCallback
	challenge   string
	matched     bool

	mu     sync.Mutex
	client *slack.Client
}

type SlackConfig struct {
	Token  string
	Logger *slog.Logger
}

func NewSlack(cfg SlackConfig, req *domain.Request) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &Slack{token: cfg.Token, logger: cfg.Logger}
	if req == nil || len(req.Body) == 0 {
		return d
	}

	body := req.Body
	if cb, ok := slackInteractionBody(body); ok {
		d.interaction = cb
		d.matched = true
		return d
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return d
	}
	d.event = event
	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err == nil {
			d.challenge = challenge.Challenge
		}
		d.matched = true
	case slackevents.CallbackEvent:
		d.matched = true
	}
	return d
}

// slackInteractionBody decodes an interactive component submission, which
// Slack posts as application/x-www-form-urlencoded with a payload field.
func slackInteractionBody(body []byte) (*slack.InteractionCallback, bool) {
	raw := string(body)
	if !strings.HasPrefix(raw, "payload=") {
		return nil, false
	}
	decoded, err := url.QueryUnescape(strings.TrimPrefix(raw, "payload="))
	if err != nil {
		return nil, false
	}
	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(decoded), &cb); err != nil {
		return nil, false
	}
	return &cb, true
}

func (d *Slack) Name() string         { return "slack" }
func (d *Slack) MatchesRequest() bool { return d.matched }
func (d *Slack) IsConfigured() bool   { return d.token != "" }

// SerializesCallbacks is true: each Events API callback is an
// independent HTTP delivery.
func (d *Slack) SerializesCallbacks() bool { return true }

// Challenge returns the url_verification challenge string the transport
// must echo back, or "" for ordinary events.
func (d *Slack) Challenge() string { return d.challenge }

func (d *Slack) IsBot() bool {
	if msg := d.messageEvent(); msg != nil {
		return msg.BotID != "" || msg.SubType == "bot_message"
	}
	return false
}

func (d *Slack) messageEvent() *slackevents.MessageEvent {
	if d.event.Type != slackevents.CallbackEvent {
		return nil
	}
	msg, _ := d.event.InnerEvent.Data.(*slackevents.MessageEvent)
	return msg
}

func (d *Slack) Event() (*domain.DriverEvent, bool) {
	if d.event.Type != slackevents.CallbackEvent {
		return nil, false
	}
	switch inner := d.event.InnerEvent.Data.(type) {
	case *slackevents.MemberJoinedChannelEvent:
		return &domain.DriverEvent{Name: "member_joined_channel", Payload: map[string]any{
			"user": inner.User, "channel": inner.Channel,
		}}, true
	case *slackevents.ReactionAddedEvent:
		return &domain.DriverEvent{Name: "reaction_added", Payload: map[string]any{
			"user": inner.User, "reaction": inner.Reaction,
		}}, true
	}
	return nil, false
}

func (d *Slack) Messages() []*domain.IncomingMessage {
	if d.interaction != nil {
		msg := domain.NewIncomingMessage(
			d.interactionValue(),
			d.interaction.User.ID,
			d.interaction.Channel.ID,
			nil,
		)
		return []*domain.IncomingMessage{msg}
	}

	ev := d.messageEvent()
	if ev == nil {
		if mention, ok := d.event.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
			msg := domain.NewIncomingMessage(mention.Text, mention.User, mention.Channel, nil)
			return []*domain.IncomingMessage{msg}
		}
		return nil
	}

	msg := domain.NewIncomingMessage(ev.Text, ev.User, ev.Channel, nil)
	for _, f := range slackEventFiles(ev) {
		att := domain.Attachment{
			URL:   f.URLPrivate,
			Title: f.Name,
		}
		switch {
		case strings.HasPrefix(f.Mimetype, "image/"):
			msg.Images = append(msg.Images, att)
		case strings.HasPrefix(f.Mimetype, "video/"):
			msg.Videos = append(msg.Videos, att)
		case strings.HasPrefix(f.Mimetype, "audio/"):
			msg.Audio = append(msg.Audio, att)
		default:
			msg.Files = append(msg.Files, att)
		}
	}
	if msg.Text == "" {
		switch {
		case len(msg.Images) > 0:
			msg.Text = matcher.ImagePattern
		case len(msg.Videos) > 0:
			msg.Text = matcher.VideoPattern
		case len(msg.Audio) > 0:
			msg.Text = matcher.AudioPattern
		case len(msg.Files) > 0:
			msg.Text = matcher.FilePattern
		}
	}
	return []*domain.IncomingMessage{msg}
}

// slackEventFiles returns the file shares carried by a message event.
// Plain messages carry them on the event itself; message_changed events
// carry them on the nested Message.
func slackEventFiles(ev *slackevents.MessageEvent) []slackevents.File {
	if ev.Message != nil {
		return ev.Message.Files
	}
	return ev.Files
}

func (d *Slack) interactionValue() string {
	if len(d.interaction.ActionCallback.BlockActions) > 0 {
		action := d.interaction.ActionCallback.BlockActions[0]
		if action.Value != "" {
			return action.Value
		}
		return action.SelectedOption.Value
	}
	if len(d.interaction.ActionCallback.AttachmentActions) > 0 {
		return d.interaction.ActionCallback.AttachmentActions[0].Value
	}
	return ""
}

func (d *Slack) User(msg *domain.IncomingMessage) (*domain.User, error) {
	client, err := d.api()
	if err != nil {
		return &domain.User{ID: msg.Sender}, nil
	}
	info, err := client.GetUserInfo(msg.Sender)
	if err != nil {
		return &domain.User{ID: msg.Sender}, nil
	}
	return &domain.User{
		ID:        info.ID,
		FirstName: info.Profile.FirstName,
		LastName:  info.Profile.LastName,
		Username:  info.Name,
	}, nil
}

func (d *Slack) ConversationAnswer(msg *domain.IncomingMessage) *domain.Answer {
	answer := domain.NewAnswer(msg)
	if d.interaction != nil {
		answer.FromCallback = true
		answer.Value = d.interactionValue()
	}
	return answer
}

func (d *Slack) BuildServicePayload(out *domain.OutgoingMessage, matching *domain.IncomingMessage, extras map[string]any) (domain.Payload, error) {
	text := out.Text
	if len(text) > slackMaxMsgLen {
		text = text[:slackMaxMsgLen]
	}
	payload := domain.Payload{"text": text}
	if matching != nil {
		payload["channel"] = matching.Recipient
	}
	for k, v := range extras {
		payload[k] = v
	}
	return payload, nil
}

func (d *Slack) SendPayload(p domain.Payload) error {
	client, err := d.api()
	if err != nil {
		return err
	}
	channel, _ := p["channel"].(string)
	if channel == "" {
		return fmt.Errorf("payload carries no channel")
	}
	text, _ := p["text"].(string)
	if _, _, err := client.PostMessage(channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// Types is a no-op: the Web API offers no typing indicator outside RTM.
func (d *Slack) Types(*domain.IncomingMessage) error { return nil }

func (d *Slack) api() (*slack.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return d.client, nil
	}
	if d.token == "" {
		return nil, fmt.Errorf("slack: %w", domain.ErrDriverCapability)
	}
	d.client = slack.New(d.token)
	return d.client, nil
}
