// Package conversation provides the user-facing primitive for multi-turn
// dialogues. Application types embed Base and implement Run; every Ask
// persists the pending step so the dialogue survives across requests.
//
// Because pending state may cross process boundaries, continuations are
// referenced by handler tokens registered at startup rather than by raw
// function values. Direct functions are accepted too, but only drivers
// that keep callbacks in-process (SerializesCallbacks() == false) can
// resume them.
package conversation

import (
	"errors"
	"reflect"
	"sync"

	"botkit/internal/domain"
	"botkit/internal/matcher"
)

// Hidden additional-parameter keys used by attachment-expecting steps.
const (
	PatternKey = "__pattern"
	GetterKey  = "__getter"
	RepeatKey  = "__repeat"
)

// ErrNotBound is returned when a conversation operation runs before the
// conversation was bound to a bot.
var ErrNotBound = errors.New("conversation is not bound to a bot")

// Base supplies the conversation operations. Embed it in application
// conversation types; exported fields of the embedding type are what gets
// serialized between requests.
type Base struct {
	host domain.Bot
	self domain.Conversation
}

// Bind attaches the dispatching bot and the outer conversation value.
func (b *Base) Bind(host domain.Bot, self domain.Conversation) {
	b.host = host
	b.self = self
}

// Bot returns the bound bot.
func (b *Base) Bot() domain.Bot {
	return b.host
}

// SkipsConversation is the default no-skip predicate; shadow it on the
// embedding type to let certain messages bypass the conversation.
func (b *Base) SkipsConversation(*domain.IncomingMessage) bool { return false }

// StopsConversation is the default no-stop predicate; shadow it on the
// embedding type to let certain messages cancel the conversation.
func (b *Base) StopsConversation(*domain.IncomingMessage) bool { return false }

// CacheTime keeps the engine-wide pending-state TTL. Shadow it to give a
// conversation type its own TTL in minutes.
func (b *Base) CacheTime() int { return 0 }

// Say sends a fire-and-forget reply within the conversation.
func (b *Base) Say(message any, extras ...map[string]any) error {
	if b.host == nil {
		return ErrNotBound
	}
	return b.host.Reply(message, extras...)
}

// Ask replies with a question and persists next as the pending step. A
// later Ask on the same conversation overwrites the earlier pending step.
func (b *Base) Ask(question any, next domain.Next, extras ...map[string]any) error {
	if b.host == nil {
		return ErrNotBound
	}
	if err := b.host.Reply(question, extras...); err != nil {
		return err
	}
	additional := map[string]any{}
	if len(extras) > 0 && extras[0] != nil {
		additional = extras[0]
	}
	return b.host.StoreConversation(b.self, next, question, additional)
}

// AskForImages asks a question whose answer must carry image attachments.
// The resolved handler receives the attachments as the answer value.
func (b *Base) AskForImages(question any, next domain.Next, opts ...AskOption) error {
	return b.askForAttachment(question, next, matcher.ImagePattern, domain.GetterImages, opts)
}

// AskForVideos asks a question whose answer must carry video attachments.
func (b *Base) AskForVideos(question any, next domain.Next, opts ...AskOption) error {
	return b.askForAttachment(question, next, matcher.VideoPattern, domain.GetterVideos, opts)
}

// AskForAudio asks a question whose answer must carry audio attachments.
func (b *Base) AskForAudio(question any, next domain.Next, opts ...AskOption) error {
	return b.askForAttachment(question, next, matcher.AudioPattern, domain.GetterAudio, opts)
}

// AskForLocation asks a question whose answer must carry a location.
func (b *Base) AskForLocation(question any, next domain.Next, opts ...AskOption) error {
	return b.askForAttachment(question, next, matcher.LocationPattern, domain.GetterLocation, opts)
}

// AskForContact asks a question whose answer must carry a contact card.
func (b *Base) AskForContact(question any, next domain.Next, opts ...AskOption) error {
	return b.askForAttachment(question, next, matcher.ContactPattern, domain.GetterContact, opts)
}

func (b *Base) askForAttachment(question any, next domain.Next, pattern, getter string, opts []AskOption) error {
	o := askOptions{additional: map[string]any{}}
	for _, opt := range opts {
		opt(&o)
	}
	o.additional[PatternKey] = pattern
	o.additional[GetterKey] = getter
	if o.repeat != "" {
		o.additional[RepeatKey] = o.repeat
	}
	return b.Ask(question, next, o.additional)
}

// Repeat re-issues the stored question (or the override) with the stored
// continuation and parameters.
func (b *Base) Repeat(question ...any) error {
	if b.host == nil {
		return ErrNotBound
	}
	stored := b.host.StoredConversation()
	if stored == nil {
		return errors.New("no stored conversation to repeat")
	}
	q := stored.Question
	if len(question) > 0 && question[0] != nil {
		q = question[0]
	}
	return b.Ask(q, stored.Next, stored.Additional)
}

type askOptions struct {
	repeat     string
	additional map[string]any
}

// AskOption tunes an attachment-expecting Ask.
type AskOption func(*askOptions)

// WithRepeat names the handler that re-prompts when the answer carries no
// matching attachment, instead of the generic Repeat.
func WithRepeat(handler string) AskOption {
	return func(o *askOptions) { o.repeat = handler }
}

// WithAdditional merges extra parameters into the stored pending state.
func WithAdditional(params map[string]any) AskOption {
	return func(o *askOptions) {
		for k, v := range params {
			o.additional[k] = v
		}
	}
}

// NextHandler continues with a named handler.
func NextHandler(token string) domain.Next {
	return domain.Next{Handler: token}
}

// NextFunc continues with a direct function. Only resumable while the
// process lives; use NextHandler with drivers that serialize callbacks.
func NextFunc(fn domain.ReplyFunc) domain.Next {
	return domain.Next{Fn: fn}
}

// NextSteps continues with an ordered branch table; the first step whose
// pattern matches the next message wins.
func NextSteps(steps ...domain.NextStep) domain.Next {
	return domain.Next{Steps: steps}
}

var (
	regMu     sync.RWMutex
	handlers  = make(map[string]domain.ReplyFunc)
	factories = make(map[string]func() domain.Conversation)
	typeNames = make(map[reflect.Type]string)
)

// RegisterHandler names a continuation so pending state can reference it
// across requests. Call at startup, like gob.Register.
func RegisterHandler(token string, fn domain.ReplyFunc) {
	regMu.Lock()
	defer regMu.Unlock()
	handlers[token] = fn
}

// Handler resolves a registered continuation token.
func Handler(token string) (domain.ReplyFunc, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	fn, ok := handlers[token]
	return fn, ok
}

// Register names a conversation type and its factory so stored state can
// be reconstructed on resume.
func Register(name string, factory func() domain.Conversation) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[name] = factory
	typeNames[reflect.TypeOf(factory())] = name
}

// New builds a fresh instance of a registered conversation type.
func New(name string) (domain.Conversation, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	factory, ok := factories[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// NameOf returns the registered name of a conversation instance.
func NameOf(conv domain.Conversation) (string, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	name, ok := typeNames[reflect.TypeOf(conv)]
	return name, ok
}
