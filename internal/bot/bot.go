// Package bot wires the matcher, middleware pipeline, command registry
// and session store into the dispatch engine.
package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"botkit/internal/command"
	"botkit/internal/domain"
	"botkit/internal/driver"
	"botkit/internal/matcher"
	"botkit/internal/metrics"
	"botkit/internal/middleware"
	"botkit/internal/session"
)

// EventHandler reacts to a provider-level driver event.
type EventHandler func(ev *domain.DriverEvent, b domain.Bot)

// ErrorHandler handles an error raised by a command or conversation
// callback during dispatch.
type ErrorHandler func(err error, b domain.Bot)

type errorEntry struct {
	match func(error) bool
	fn    ErrorHandler
}

// Bot is the dispatch engine. One Listen pass runs synchronously to
// completion; in stateless deployments a Bot is built per request.
type Bot struct {
	registry *command.Registry
	mw       *middleware.Stack
	match    *matcher.Matcher
	sessions *session.Store
	drivers  *driver.Registry
	logger   *slog.Logger

	// per-dispatch state
	driver             domain.Driver
	message            *domain.IncomingMessage
	answer             *domain.Answer
	matches            map[string]string
	stored             *domain.Pending
	loadedConversation bool

	fallback      command.Callback
	events        map[string][]EventHandler
	errorHandlers []errorEntry
}

// Config holds the collaborators of a Bot. Zero-value fields fall back to
// fresh defaults.
type Config struct {
	Registry   *command.Registry
	Middleware *middleware.Stack
	Storage    domain.Storage
	Drivers    *driver.Registry
	CacheTime  int // pending-state TTL in minutes; 0 = default

	// Sessions, when set, is shared across bots and takes precedence
	// over Storage/CacheTime. Per-request deployments must share one
	// store: live (non-serialized) pending state lives inside it and
	// would die with a per-bot store.
	Sessions *session.Store

	Logger *slog.Logger
}

func New(cfg Config) *Bot {
	if cfg.Registry == nil {
		cfg.Registry = command.NewRegistry()
	}
	if cfg.Middleware == nil {
		cfg.Middleware = middleware.NewStack()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Drivers == nil {
		cfg.Drivers = driver.NewRegistry(cfg.Logger)
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = session.NewStore(cfg.Storage, cfg.CacheTime, cfg.Logger)
	}
	return &Bot{
		registry: cfg.Registry,
		mw:       cfg.Middleware,
		match:    matcher.New(),
		sessions: sessions,
		drivers:  cfg.Drivers,
		logger:   cfg.Logger,
		events:   make(map[string][]EventHandler),
	}
}

// Hears registers a route on the underlying command registry.
func (b *Bot) Hears(pattern string, cb command.Callback) *command.Command {
	return b.registry.Hears(pattern, cb)
}

// HearsHandler registers a route whose callback is a named handler.
func (b *Bot) HearsHandler(pattern, handler string) (*command.Command, error) {
	return b.registry.HearsHandler(pattern, handler)
}

// Group applies shared attributes to routes registered inside fn.
func (b *Bot) Group(attrs command.GroupAttributes, fn func(*command.Registry)) {
	b.registry.Group(attrs, fn)
}

// Fallback registers the handler invoked when nothing matched and no
// conversation resumed.
func (b *Bot) Fallback(cb command.Callback) {
	b.fallback = cb
}

// On registers a handler for a named driver event; "*" receives all.
func (b *Bot) On(event string, fn EventHandler) {
	b.events[event] = append(b.events[event], fn)
}

// Middleware exposes the middleware stack for registration.
func (b *Bot) Middleware() *middleware.Stack {
	return b.mw
}

// Catch registers an error handler with a custom match predicate.
// Handlers are tried in registration order; the first match wins and the
// error is considered handled. Unhandled errors propagate out of Listen.
func (b *Bot) Catch(match func(error) bool, fn ErrorHandler) {
	b.errorHandlers = append(b.errorHandlers, errorEntry{match: match, fn: fn})
}

// CatchIs registers an error handler for errors matching a sentinel via
// errors.Is.
func CatchIs(b *Bot, target error, fn ErrorHandler) {
	b.Catch(func(err error) bool { return errors.Is(err, target) }, fn)
}

// CatchAs registers an error handler for a concrete error type via
// errors.As. Wrapped chains stand in for type ancestry: the closest
// registered match in registration order wins.
func CatchAs[T error](b *Bot, fn func(err T, bot domain.Bot)) {
	b.Catch(func(err error) bool {
		var t T
		return errors.As(err, &t)
	}, func(err error, bot domain.Bot) {
		var t T
		errors.As(err, &t)
		fn(t, bot)
	})
}

func (b *Bot) handleError(err error) error {
	if err == nil {
		return nil
	}
	for _, entry := range b.errorHandlers {
		if entry.match(err) {
			entry.fn(err, b)
			return nil
		}
	}
	return err
}

// Message returns the inbound message currently being processed.
func (b *Bot) Message() *domain.IncomingMessage {
	return b.message
}

// Answer returns the conversation answer of the current message.
func (b *Bot) Answer() *domain.Answer {
	return b.answer
}

// Driver returns the driver handling the current request.
func (b *Bot) Driver() domain.Driver {
	return b.driver
}

// Matches returns the named captures of the matched pattern.
func (b *Bot) Matches() map[string]string {
	return b.matches
}

// StoredConversation returns the pending state loaded for this dispatch.
func (b *Bot) StoredConversation() *domain.Pending {
	return b.stored
}

// Reply sends a message back to the sender of the current message,
// through the sending middleware chain.
func (b *Bot) Reply(message any, extras ...map[string]any) error {
	if b.driver == nil {
		return fmt.Errorf("reply: %w", domain.ErrDriverCapability)
	}
	out, err := toOutgoing(message)
	if err != nil {
		return err
	}
	payload, err := b.driver.BuildServicePayload(out, b.message, firstExtra(extras))
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}
	return b.sendPayload(b.driver, payload)
}

// Say sends a message to an arbitrary recipient, optionally through a
// named driver. Conversations started from here key on the originated
// conversation identifier, since no concrete sender exists yet.
func (b *Bot) Say(message any, recipient string, driverName string, extras ...map[string]any) error {
	d := b.driver
	if driverName != "" {
		var err error
		if d, err = b.drivers.ForName(driverName); err != nil {
			return err
		}
	}
	if d == nil {
		return fmt.Errorf("say: %w", domain.ErrDriverCapability)
	}
	matching := domain.NewIncomingMessage("", "", recipient, nil)
	if b.message == nil {
		b.message = matching
		b.driver = d
	}
	out, err := toOutgoing(message)
	if err != nil {
		return err
	}
	payload, err := d.BuildServicePayload(out, matching, firstExtra(extras))
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}
	return b.sendPayload(d, payload)
}

// Types sends a typing indicator for the current message.
func (b *Bot) Types() error {
	if b.driver == nil {
		return fmt.Errorf("types: %w", domain.ErrDriverCapability)
	}
	return b.driver.Types(b.message)
}

// StartConversation binds and runs a conversation in the context of the
// current message.
func (b *Bot) StartConversation(conv domain.Conversation) error {
	if b.driver == nil {
		return fmt.Errorf("start conversation: %w", domain.ErrDriverCapability)
	}
	conv.Bind(b, conv)
	mConversationsStarted.Inc()
	conv.Run(b)
	return nil
}

// StoreConversation persists the pending step under the current
// conversation identifier. A later call for the same identifier
// overwrites the earlier step.
func (b *Bot) StoreConversation(conv domain.Conversation, next domain.Next, question any, additional map[string]any) error {
	if b.message == nil {
		return errors.New("store conversation: no message context")
	}
	serialize := b.driver == nil || b.driver.SerializesCallbacks()
	return b.sessions.Save(b.message.ConversationIdentifier(), &domain.Pending{
		Conversation: conv,
		Question:     question,
		Next:         next,
		Additional:   additional,
	}, serialize)
}

// Sessions exposes the session store, mainly for tests and admin tooling.
func (b *Bot) Sessions() *session.Store {
	return b.sessions
}

func (b *Bot) sendPayload(d domain.Driver, payload domain.Payload) error {
	var sendErr error
	b.mw.ApplySending(payload, nil, b, func(p domain.Payload) domain.Payload {
		sendErr = d.SendPayload(p)
		return p
	})
	if sendErr != nil {
		metrics.SendErrors.Inc()
		return fmt.Errorf("send payload: %w", sendErr)
	}
	mPayloadsSent.Inc()
	return nil
}

func toOutgoing(message any) (*domain.OutgoingMessage, error) {
	switch v := message.(type) {
	case *domain.OutgoingMessage:
		return v, nil
	case domain.OutgoingMessage:
		return &v, nil
	case string:
		return &domain.OutgoingMessage{Text: v}, nil
	case map[string]any:
		// A question reloaded from the session store arrives as a map.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var out domain.OutgoingMessage
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("unsupported outgoing message type %T", message)
	}
}

func firstExtra(extras []map[string]any) map[string]any {
	if len(extras) > 0 && extras[0] != nil {
		return extras[0]
	}
	return map[string]any{}
}
