package conversation

import (
	"errors"
	"testing"

	"botkit/internal/domain"
)

// recordingBot captures Reply and StoreConversation calls.
type recordingBot struct {
	replies []any
	stored  []storedCall
	pending *domain.Pending
}

type storedCall struct {
	conv       domain.Conversation
	next       domain.Next
	question   any
	additional map[string]any
}

func (b *recordingBot) Message() *domain.IncomingMessage { return nil }
func (b *recordingBot) Answer() *domain.Answer           { return nil }
func (b *recordingBot) Driver() domain.Driver            { return nil }
func (b *recordingBot) Matches() map[string]string       { return nil }
func (b *recordingBot) Types() error                     { return nil }

func (b *recordingBot) Reply(message any, extras ...map[string]any) error {
	b.replies = append(b.replies, message)
	return nil
}

func (b *recordingBot) Say(message any, recipient, driverName string, extras ...map[string]any) error {
	b.replies = append(b.replies, message)
	return nil
}

func (b *recordingBot) StartConversation(conv domain.Conversation) error {
	conv.Bind(b, conv)
	conv.Run(b)
	return nil
}

func (b *recordingBot) StoreConversation(conv domain.Conversation, next domain.Next, question any, additional map[string]any) error {
	b.stored = append(b.stored, storedCall{conv, next, question, additional})
	return nil
}

func (b *recordingBot) StoredConversation() *domain.Pending { return b.pending }

type quizConversation struct {
	Base
	Asked int `json:"asked"`
}

func (c *quizConversation) Run(b domain.Bot) {
	c.Asked++
	_ = c.Ask("First question?", NextHandler("quiz.first"))
}

func TestUnboundOperationsFail(t *testing.T) {
	c := &quizConversation{}
	if err := c.Say("hi"); !errors.Is(err, ErrNotBound) {
		t.Fatalf("Say = %v, want ErrNotBound", err)
	}
	if err := c.Ask("q", NextHandler("x")); !errors.Is(err, ErrNotBound) {
		t.Fatalf("Ask = %v, want ErrNotBound", err)
	}
	if err := c.Repeat(); !errors.Is(err, ErrNotBound) {
		t.Fatalf("Repeat = %v, want ErrNotBound", err)
	}
}

func TestAskRepliesAndStoresPendingStep(t *testing.T) {
	bot := &recordingBot{}
	c := &quizConversation{}
	c.Bind(bot, c)

	if err := c.Ask("Favorite color?", NextHandler("quiz.color")); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if len(bot.replies) != 1 || bot.replies[0] != "Favorite color?" {
		t.Fatalf("replies = %v", bot.replies)
	}
	if len(bot.stored) != 1 {
		t.Fatalf("stored = %d calls, want 1", len(bot.stored))
	}
	call := bot.stored[0]
	if call.conv != domain.Conversation(c) {
		t.Fatal("stored conversation is not the bound self")
	}
	if call.next.Handler != "quiz.color" {
		t.Fatalf("Next.Handler = %q", call.next.Handler)
	}
	if call.question != "Favorite color?" {
		t.Fatalf("question = %v", call.question)
	}
}

func TestAskForImagesStoresSentinelParams(t *testing.T) {
	bot := &recordingBot{}
	c := &quizConversation{}
	c.Bind(bot, c)

	err := c.AskForImages("Send a photo", NextHandler("quiz.photo"),
		WithRepeat("quiz.photo.again"),
		WithAdditional(map[string]any{"round": 2}),
	)
	if err != nil {
		t.Fatalf("AskForImages: %v", err)
	}

	add := bot.stored[0].additional
	if add[PatternKey] != "%%%_IMAGE_%%%" {
		t.Fatalf("%s = %v", PatternKey, add[PatternKey])
	}
	if add[GetterKey] != domain.GetterImages {
		t.Fatalf("%s = %v", GetterKey, add[GetterKey])
	}
	if add[RepeatKey] != "quiz.photo.again" {
		t.Fatalf("%s = %v", RepeatKey, add[RepeatKey])
	}
	if add["round"] != 2 {
		t.Fatalf("additional params not merged: %v", add)
	}
}

func TestRepeatReissuesStoredQuestion(t *testing.T) {
	bot := &recordingBot{
		pending: &domain.Pending{
			Question:   "Favorite color?",
			Next:       domain.Next{Handler: "quiz.color"},
			Additional: map[string]any{"round": 3},
		},
	}
	c := &quizConversation{}
	c.Bind(bot, c)

	if err := c.Repeat(); err != nil {
		t.Fatalf("Repeat: %v", err)
	}
	if len(bot.replies) != 1 || bot.replies[0] != "Favorite color?" {
		t.Fatalf("replies = %v", bot.replies)
	}
	if bot.stored[0].next.Handler != "quiz.color" {
		t.Fatal("stored continuation not re-armed")
	}

	// An override question replaces the stored one.
	if err := c.Repeat("Again: favorite color?"); err != nil {
		t.Fatalf("Repeat: %v", err)
	}
	if bot.replies[1] != "Again: favorite color?" {
		t.Fatalf("override question not used: %v", bot.replies[1])
	}
}

func TestTypeRegistry(t *testing.T) {
	Register("quiz-test", func() domain.Conversation { return &quizConversation{} })

	fresh, ok := New("quiz-test")
	if !ok {
		t.Fatal("New did not find the registered type")
	}
	if _, ok := fresh.(*quizConversation); !ok {
		t.Fatalf("New built %T", fresh)
	}

	name, ok := NameOf(&quizConversation{})
	if !ok || name != "quiz-test" {
		t.Fatalf("NameOf = %q, %v", name, ok)
	}

	if _, ok := New("never-registered"); ok {
		t.Fatal("New must fail for unknown names")
	}
}

func TestHandlerRegistry(t *testing.T) {
	ran := false
	RegisterHandler("quiz-test.handler", func(answer *domain.Answer, conv domain.Conversation, args ...string) {
		ran = true
	})

	fn, ok := Handler("quiz-test.handler")
	if !ok {
		t.Fatal("Handler did not find the registered token")
	}
	fn(nil, nil)
	if !ran {
		t.Fatal("resolved handler is not the registered one")
	}

	if _, ok := Handler("quiz-test.unknown"); ok {
		t.Fatal("Handler must fail for unknown tokens")
	}
}
