package main

import (
	"fmt"
	"log/slog"
	"strings"

	"botkit/internal/bot"
	"botkit/internal/command"
	"botkit/internal/conversation"
	"botkit/internal/domain"
)

const helpText = `Try:
  hello <your name>
  start onboarding   (multi-step conversation, say "stop" to cancel)
  ping`

// OnboardingConversation is the built-in demo conversation: it collects a
// display name, then an opt-in choice, across separate requests.
type OnboardingConversation struct {
	conversation.Base
	Name string `json:"name"`
}

func (c *OnboardingConversation) StopsConversation(msg *domain.IncomingMessage) bool {
	return strings.EqualFold(strings.TrimSpace(msg.Text), "stop")
}

func (c *OnboardingConversation) Run(b domain.Bot) {
	_ = c.Ask("What should I call you?", conversation.NextHandler("onboarding.name"))
}

func init() {
	conversation.Register("onboarding", func() domain.Conversation {
		return &OnboardingConversation{}
	})

	conversation.RegisterHandler("onboarding.name", func(answer *domain.Answer, conv domain.Conversation, args ...string) {
		c := conv.(*OnboardingConversation)
		c.Name = strings.TrimSpace(answer.ValueText())
		_ = c.Say(fmt.Sprintf("Nice to meet you, %s!", c.Name))
		_ = c.Ask("Would you like product updates? (yes/no)", conversation.NextSteps(
			domain.NextStep{Pattern: "yes", Handler: "onboarding.optin"},
			domain.NextStep{Pattern: "no", Handler: "onboarding.optout"},
		))
	})

	conversation.RegisterHandler("onboarding.optin", func(answer *domain.Answer, conv domain.Conversation, args ...string) {
		c := conv.(*OnboardingConversation)
		_ = c.Say(fmt.Sprintf("Great, you're signed up, %s.", c.Name))
	})

	conversation.RegisterHandler("onboarding.optout", func(answer *domain.Answer, conv domain.Conversation, args ...string) {
		c := conv.(*OnboardingConversation)
		_ = c.Say(fmt.Sprintf("No problem, %s. You can change your mind anytime.", c.Name))
	})
}

// registerRoutes installs the built-in demo routes. Applications embedding
// the engine register their own instead.
func registerRoutes(r *command.Registry) {
	r.Hears("hello {name}", func(b domain.Bot, args ...string) error {
		return b.Reply(fmt.Sprintf("Hello %s!", b.Matches()["name"]))
	})

	r.Hears("start onboarding", func(b domain.Bot, args ...string) error {
		return b.StartConversation(&OnboardingConversation{})
	})

	r.Hears("help", func(b domain.Bot, args ...string) error {
		return b.Reply(helpText)
	})

	// stop is also a route so it works with no conversation pending.
	r.Hears("stop", func(b domain.Bot, args ...string) error {
		return b.Reply("Nothing to stop.")
	}).StopsConversation()

	r.Group(command.GroupAttributes{Drivers: []string{"cli", "web", "websocket"}}, func(g *command.Registry) {
		g.Hears("ping", func(b domain.Bot, args ...string) error {
			return b.Reply("pong")
		})
	})
}

// setupBot installs the per-dispatch handlers every bot instance gets.
func setupBot(b *bot.Bot, logger *slog.Logger) {
	b.Fallback(func(bb domain.Bot, args ...string) error {
		return bb.Reply("Sorry, I didn't get that. Say \"help\" for what I understand.")
	})

	b.On("*", func(ev *domain.DriverEvent, bb domain.Bot) {
		logger.Debug("driver event", "name", ev.Name)
	})

	bot.CatchIs(b, domain.ErrDriverCapability, func(err error, bb domain.Bot) {
		logger.Warn("driver capability fault", "err", err)
	})
}
