package domain

// ReplyFunc handles the answer to a conversation question. The captured
// pattern parameters, if any, follow positionally.
type ReplyFunc func(answer *Answer, conv Conversation, args ...string)

// NextStep is one candidate continuation of a paused conversation: if the
// next inbound message matches Pattern, its handler runs. Handler is a
// token into the conversation handler registry; Fn is a direct function,
// only usable with drivers that keep callbacks in-process.
type NextStep struct {
	Pattern string    `json:"pattern"`
	Handler string    `json:"handler,omitempty"`
	Fn      ReplyFunc `json:"-"`
}

// Next describes what runs when the next message arrives for a paused
// conversation: a single handler (token or direct func) or an ordered
// branch table of pattern/handler candidates.
type Next struct {
	Handler string     `json:"handler,omitempty"`
	Fn      ReplyFunc  `json:"-"`
	Steps   []NextStep `json:"steps,omitempty"`
}

// IsZero reports whether no continuation was supplied.
func (n Next) IsZero() bool {
	return n.Handler == "" && n.Fn == nil && len(n.Steps) == 0
}

// Pending is the tuple persisted between requests for one conversation
// identifier. Time guards deletion against a conversation that re-armed
// itself during the same dispatch.
type Pending struct {
	Conversation Conversation
	Question     any
	Next         Next
	Additional   map[string]any
	Time         int64
}

// Conversation is a resumable multi-step dialogue. Application types embed
// conversation.Base, which supplies everything except Run.
type Conversation interface {
	// Run is the entry point, invoked once when the conversation starts.
	Run(b Bot)

	// Bind attaches the dispatching bot and the outer conversation
	// value; called on start and again on every resume.
	Bind(b Bot, self Conversation)

	// Bot returns the bound bot.
	Bot() Bot

	// SkipsConversation lets a message bypass this conversation and
	// fall through to fresh route matching. Default false.
	SkipsConversation(msg *IncomingMessage) bool

	// StopsConversation cancels this conversation when the message
	// matches. Default false.
	StopsConversation(msg *IncomingMessage) bool

	// Repeat re-issues the stored question, or the override if given.
	Repeat(question ...any) error

	// CacheTime overrides the pending-state TTL in minutes; 0 keeps the
	// engine default.
	CacheTime() int
}

// Bot is the dispatch surface handed to command callbacks, conversations
// and middleware.
type Bot interface {
	// Message is the inbound message currently being processed.
	Message() *IncomingMessage

	// Answer is the conversation answer derived from the current message.
	Answer() *Answer

	// Driver is the driver that produced the current request.
	Driver() Driver

	// Matches exposes the named captures of the matched pattern.
	Matches() map[string]string

	// Reply sends a message back to the sender of the current message.
	// message is a string or an *OutgoingMessage.
	Reply(message any, extras ...map[string]any) error

	// Say sends a message to an arbitrary recipient, optionally through
	// a named driver. A conversation started from here is keyed by the
	// originated conversation identifier.
	Say(message any, recipient string, driverName string, extras ...map[string]any) error

	// Types sends a typing indicator to the current recipient.
	Types() error

	// StartConversation binds and runs a conversation.
	StartConversation(conv Conversation) error

	// StoreConversation persists the pending step of a conversation
	// under the current conversation identifier.
	StoreConversation(conv Conversation, next Next, question any, additional map[string]any) error

	// StoredConversation returns the pending state loaded for the
	// current dispatch, if a conversation is being resumed.
	StoredConversation() *Pending
}
