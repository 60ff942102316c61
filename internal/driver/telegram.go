package driver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"botkit/internal/domain"
	"botkit/internal/matcher"
)

// Telegram adapts Telegram Bot API webhook updates.
type Telegram struct {
	token     string
	parseMode string
	logger    *slog.Logger

	update  tgbotapi.Update
	matched bool

	api *tgbotapi.BotAPI
}

type TelegramConfig struct {
	Token     string
	ParseMode string
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig, req *domain.Request) *Telegram {
	if cfg.ParseMode == "" {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &Telegram{
		token:     cfg.Token,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
	}
	if req == nil || len(req.Body) == 0 {
		return d
	}
	if err := json.Unmarshal(req.Body, &d.update); err != nil {
		return d
	}
	d.matched = d.update.UpdateID != 0 &&
		(d.update.Message != nil || d.update.CallbackQuery != nil || d.update.EditedMessage != nil)
	return d
}

func (d *Telegram) Name() string         { return "telegram" }
func (d *Telegram) MatchesRequest() bool { return d.matched }
func (d *Telegram) IsConfigured() bool   { return d.token != "" }

// SerializesCallbacks is true: webhook updates arrive as independent
// requests, so pending callbacks must survive the process boundary.
func (d *Telegram) SerializesCallbacks() bool { return true }

func (d *Telegram) IsBot() bool {
	if d.update.Message != nil && d.update.Message.From != nil {
		return d.update.Message.From.IsBot
	}
	return false
}

func (d *Telegram) Event() (*domain.DriverEvent, bool) {
	switch {
	case d.update.EditedMessage != nil:
		return &domain.DriverEvent{Name: "edited_message", Payload: rawTelegramPayload(d.update.EditedMessage)}, true
	case d.update.Message != nil && len(d.update.Message.NewChatMembers) > 0:
		return &domain.DriverEvent{Name: "new_chat_members", Payload: rawTelegramPayload(d.update.Message)}, true
	case d.update.Message != nil && d.update.Message.LeftChatMember != nil:
		return &domain.DriverEvent{Name: "left_chat_member", Payload: rawTelegramPayload(d.update.Message)}, true
	}
	return nil, false
}

func (d *Telegram) Messages() []*domain.IncomingMessage {
	var tm *tgbotapi.Message
	switch {
	case d.update.CallbackQuery != nil && d.update.CallbackQuery.Message != nil:
		tm = d.update.CallbackQuery.Message
	case d.update.Message != nil:
		tm = d.update.Message
	default:
		return nil
	}

	sender := ""
	if d.update.CallbackQuery != nil && d.update.CallbackQuery.From != nil {
		sender = strconv.FormatInt(d.update.CallbackQuery.From.ID, 10)
	} else if tm.From != nil {
		sender = strconv.FormatInt(tm.From.ID, 10)
	}
	recipient := strconv.FormatInt(tm.Chat.ID, 10)

	msg := domain.NewIncomingMessage(tm.Text, sender, recipient, rawTelegramPayload(tm))
	d.attachMedia(msg, tm)
	return []*domain.IncomingMessage{msg}
}

// attachMedia maps Telegram media onto the normalized attachment slots.
// File IDs ride in the attachment payload; resolving download URLs needs
// a separate Bot API call and is left to the application.
func (d *Telegram) attachMedia(msg *domain.IncomingMessage, tm *tgbotapi.Message) {
	switch {
	case len(tm.Photo) > 0:
		for _, p := range tm.Photo {
			msg.Images = append(msg.Images, domain.Attachment{
				Payload: map[string]any{"file_id": p.FileID, "width": p.Width, "height": p.Height},
			})
		}
	case tm.Video != nil:
		msg.Videos = append(msg.Videos, domain.Attachment{
			Payload: map[string]any{"file_id": tm.Video.FileID},
		})
	case tm.Voice != nil:
		msg.Audio = append(msg.Audio, domain.Attachment{
			Payload: map[string]any{"file_id": tm.Voice.FileID},
		})
	case tm.Audio != nil:
		msg.Audio = append(msg.Audio, domain.Attachment{
			Payload: map[string]any{"file_id": tm.Audio.FileID},
		})
	case tm.Document != nil:
		msg.Files = append(msg.Files, domain.Attachment{
			Title:   tm.Document.FileName,
			Payload: map[string]any{"file_id": tm.Document.FileID},
		})
	case tm.Location != nil:
		msg.Location = &domain.Location{Latitude: tm.Location.Latitude, Longitude: tm.Location.Longitude}
	case tm.Contact != nil:
		msg.Contact = &domain.Contact{
			PhoneNumber: tm.Contact.PhoneNumber,
			FirstName:   tm.Contact.FirstName,
			LastName:    tm.Contact.LastName,
			UserID:      strconv.FormatInt(tm.Contact.UserID, 10),
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
		case msg.Location != nil:
			msg.Text = matcher.LocationPattern
		case msg.Contact != nil:
			msg.Text = matcher.ContactPattern
		}
	}
}

func (d *Telegram) User(msg *domain.IncomingMessage) (*domain.User, error) {
	var from *tgbotapi.User
	switch {
	case d.update.CallbackQuery != nil:
		from = d.update.CallbackQuery.From
	case d.update.Message != nil:
		from = d.update.Message.From
	}
	if from == nil {
		return &domain.User{ID: msg.Sender}, nil
	}
	return &domain.User{
		ID:        strconv.FormatInt(from.ID, 10),
		FirstName: from.FirstName,
		LastName:  from.LastName,
		Username:  from.UserName,
	}, nil
}

func (d *Telegram) ConversationAnswer(msg *domain.IncomingMessage) *domain.Answer {
	answer := domain.NewAnswer(msg)
	if d.update.CallbackQuery != nil {
		answer.FromCallback = true
		answer.Value = d.update.CallbackQuery.Data
		answer.Text = d.update.CallbackQuery.Data
	}
	return answer
}

func (d *Telegram) BuildServicePayload(out *domain.OutgoingMessage, matching *domain.IncomingMessage, extras map[string]any) (domain.Payload, error) {
	payload := domain.Payload{
		"text":       out.Text,
		"parse_mode": d.parseMode,
	}
	if matching != nil {
		payload["chat_id"] = matching.Recipient
	}
	for k, v := range extras {
		payload[k] = v
	}
	return payload, nil
}

func (d *Telegram) SendPayload(p domain.Payload) error {
	api, err := d.client()
	if err != nil {
		return err
	}
	chatID, err := payloadChatID(p)
	if err != nil {
		return err
	}
	text, _ := p["text"].(string)
	msg := tgbotapi.NewMessage(chatID, text)
	if mode, ok := p["parse_mode"].(string); ok {
		msg.ParseMode = mode
	}
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (d *Telegram) Types(msg *domain.IncomingMessage) error {
	api, err := d.client()
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	chatID, err := strconv.ParseInt(msg.Recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	_, err = api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (d *Telegram) client() (*tgbotapi.BotAPI, error) {
	if d.api != nil {
		return d.api, nil
	}
	if d.token == "" {
		return nil, fmt.Errorf("telegram: %w", domain.ErrDriverCapability)
	}
	api, err := tgbotapi.NewBotAPI(d.token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	d.api = api
	return api, nil
}

func payloadChatID(p domain.Payload) (int64, error) {
	switch v := p["chat_id"].(type) {
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid chat ID: %w", err)
		}
		return id, nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("payload carries no chat ID")
}

func rawTelegramPayload(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
