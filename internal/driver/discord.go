package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"botkit/internal/domain"
	"botkit/internal/matcher"
)

const discordMaxMsgLen = 2000

// Discord keeps a long-lived gateway session. Each MESSAGE_CREATE is
// normalized into a tagged Request and published to the serve loop; the
// per-request view constructed by the registry shares the session for
// the send path.
type Discord struct {
	token   string
	guildID string
	logger  *slog.Logger

	session *discordgo.Session

	inbound discordInbound
	matched bool
}

type DiscordConfig struct {
	Token   string
	GuildID string
	Logger  *slog.Logger
}

type discordInbound struct {
	ChannelID   string              `json:"channelId"`
	UserID      string              `json:"userId"`
	Username    string              `json:"username"`
	Content     string              `json:"content"`
	Bot         bool                `json:"bot"`
	Attachments []discordAttachment `json:"attachments,omitempty"`
	Interactive bool                `json:"interactive,omitempty"`
	Value       string              `json:"value,omitempty"`
}

type discordAttachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		logger:  cfg.Logger,
	}
}

// Start connects the gateway and publishes every received message as a
// synthesized request. Blocks until ctx is done.
func (d *Discord) Start(ctx context.Context, publish func(*domain.Request)) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	d.session = session

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.ID == s.State.User.ID {
			return
		}
		if d.guildID != "" && m.GuildID != d.guildID {
			return
		}
		inbound := discordInbound{
			ChannelID: m.ChannelID,
			UserID:    m.Author.ID,
			Username:  m.Author.Username,
			Content:   m.Content,
			Bot:       m.Author.Bot,
		}
		for _, a := range m.Attachments {
			inbound.Attachments = append(inbound.Attachments, discordAttachment{
				URL:         a.URL,
				Filename:    a.Filename,
				ContentType: a.ContentType,
			})
		}
		publish(d.synthesize(inbound))
	})

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionMessageComponent {
			return
		}
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		})
		user := i.User
		if user == nil && i.Member != nil {
			user = i.Member.User
		}
		if user == nil {
			return
		}
		data := i.MessageComponentData()
		publish(d.synthesize(discordInbound{
			ChannelID:   i.ChannelID,
			UserID:      user.ID,
			Username:    user.Username,
			Content:     data.CustomID,
			Interactive: true,
			Value:       data.CustomID,
		}))
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord gateway connected")

	<-ctx.Done()
	return session.Close()
}

func (d *Discord) synthesize(inbound discordInbound) *domain.Request {
	body, _ := json.Marshal(inbound)
	req := domain.NewRequest(body)
	req.Headers.Set(requestDriverHeader, "discord")
	return req
}

// Driver is the registry factory: a request-scoped view over the shared
// gateway session.
func (d *Discord) Driver(req *domain.Request) domain.Driver {
	view := &Discord{
		token:   d.token,
		guildID: d.guildID,
		logger:  d.logger,
		session: d.session,
	}
	if req == nil || req.Headers.Get(requestDriverHeader) != "discord" {
		return view
	}
	if err := json.Unmarshal(req.Body, &view.inbound); err != nil {
		return view
	}
	view.matched = true
	return view
}

func (d *Discord) Name() string         { return "discord" }
func (d *Discord) MatchesRequest() bool { return d.matched }
func (d *Discord) IsBot() bool          { return d.inbound.Bot }
func (d *Discord) IsConfigured() bool   { return d.token != "" }

// SerializesCallbacks is false: the gateway session lives in this
// process, so pending conversation callbacks can stay live closures.
func (d *Discord) SerializesCallbacks() bool { return false }

func (d *Discord) Event() (*domain.DriverEvent, bool) { return nil, false }

func (d *Discord) Messages() []*domain.IncomingMessage {
	if !d.matched {
		return nil
	}
	msg := domain.NewIncomingMessage(d.inbound.Content, d.inbound.UserID, d.inbound.ChannelID, nil)
	for _, a := range d.inbound.Attachments {
		att := domain.Attachment{URL: a.URL, Title: a.Filename}
		switch {
		case strings.HasPrefix(a.ContentType, "image/"):
			msg.Images = append(msg.Images, att)
		case strings.HasPrefix(a.ContentType, "video/"):
			msg.Videos = append(msg.Videos, att)
		case strings.HasPrefix(a.ContentType, "audio/"):
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

func (d *Discord) User(msg *domain.IncomingMessage) (*domain.User, error) {
	return &domain.User{ID: d.inbound.UserID, Username: d.inbound.Username}, nil
}

func (d *Discord) ConversationAnswer(msg *domain.IncomingMessage) *domain.Answer {
	answer := domain.NewAnswer(msg)
	if d.inbound.Interactive {
		answer.FromCallback = true
		answer.Value = d.inbound.Value
	}
	return answer
}

func (d *Discord) BuildServicePayload(out *domain.OutgoingMessage, matching *domain.IncomingMessage, extras map[string]any) (domain.Payload, error) {
	text := out.Text
	if len(text) > discordMaxMsgLen {
		text = text[:discordMaxMsgLen]
	}
	payload := domain.Payload{"content": text}
	if matching != nil {
		payload["channel_id"] = matching.Recipient
	}
	for k, v := range extras {
		payload[k] = v
	}
	return payload, nil
}

func (d *Discord) SendPayload(p domain.Payload) error {
	if d.session == nil {
		return fmt.Errorf("discord: %w", domain.ErrDriverCapability)
	}
	channelID, _ := p["channel_id"].(string)
	if channelID == "" {
		return fmt.Errorf("payload carries no channel ID")
	}
	content, _ := p["content"].(string)
	if _, err := d.session.ChannelMessageSend(channelID, content); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

func (d *Discord) Types(msg *domain.IncomingMessage) error {
	if d.session == nil || msg == nil {
		return nil
	}
	return d.session.ChannelTyping(msg.Recipient)
}
