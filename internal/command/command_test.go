package command

import (
	"testing"

	"botkit/internal/domain"
	"botkit/internal/middleware"
)

func noop(b domain.Bot, args ...string) error { return nil }

func TestHearsPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Hears("order {item}", noop)
	r.Hears("order pizza", noop)

	cmds := r.Commands()
	if len(cmds) != 2 {
		t.Fatalf("len(Commands) = %d, want 2", len(cmds))
	}
	if cmds[0].Pattern() != "order {item}" || cmds[1].Pattern() != "order pizza" {
		t.Fatalf("order = [%q, %q], want registration order kept", cmds[0].Pattern(), cmds[1].Pattern())
	}
}

func TestFluentConstraints(t *testing.T) {
	r := NewRegistry()
	c := r.Hears("secret", noop).
		Driver("slack", "telegram").
		Recipient("chat-42").
		StopsConversation().
		SkipsConversation()

	if got := c.Drivers(); len(got) != 2 || got[0] != "slack" || got[1] != "telegram" {
		t.Fatalf("Drivers = %v", got)
	}
	if c.RecipientConstraint() != "chat-42" {
		t.Fatalf("RecipientConstraint = %q", c.RecipientConstraint())
	}
	if !c.ShouldStopConversation() || !c.ShouldSkipConversation() {
		t.Fatal("fluent conversation flags not set")
	}
}

func TestGroupAppliesAttributes(t *testing.T) {
	r := NewRegistry()
	r.Group(GroupAttributes{Drivers: []string{"slack"}, Recipient: "chat-1"}, func(g *Registry) {
		g.Hears("inside", noop)
	})
	r.Hears("outside", noop)

	inside, outside := r.Commands()[0], r.Commands()[1]
	if got := inside.Drivers(); len(got) != 1 || got[0] != "slack" {
		t.Fatalf("grouped Drivers = %v, want [slack]", got)
	}
	if inside.RecipientConstraint() != "chat-1" {
		t.Fatalf("grouped RecipientConstraint = %q", inside.RecipientConstraint())
	}
	if len(outside.Drivers()) != 0 || outside.RecipientConstraint() != "" {
		t.Fatal("attributes leaked outside the group closure")
	}
}

func TestGroupsNest(t *testing.T) {
	r := NewRegistry()
	r.Group(GroupAttributes{Drivers: []string{"slack"}}, func(g *Registry) {
		g.Group(GroupAttributes{Drivers: []string{"telegram"}, StopsConversation: true}, func(gg *Registry) {
			gg.Hears("deep", noop)
		})
		g.Hears("shallow", noop)
	})

	deep, shallow := r.Commands()[0], r.Commands()[1]
	if got := deep.Drivers(); len(got) != 2 {
		t.Fatalf("nested Drivers = %v, want both levels", got)
	}
	if !deep.ShouldStopConversation() {
		t.Fatal("inner group flag not applied")
	}
	if got := shallow.Drivers(); len(got) != 1 || got[0] != "slack" {
		t.Fatalf("outer-only Drivers = %v, want [slack]", got)
	}
}

type matchOnly struct{}

func (matchOnly) Matching(msg *domain.IncomingMessage, pattern string, regexMatched bool) bool {
	return regexMatched
}

type heardOnly struct{}

func (heardOnly) Heard(msg *domain.IncomingMessage, next middleware.NextMessage, b domain.Bot) *domain.IncomingMessage {
	return next(msg)
}

func TestCommandMiddlewareSplitsByCapability(t *testing.T) {
	r := NewRegistry()
	c := r.Hears("x", noop).Middleware(matchOnly{}, heardOnly{})

	if got := c.MatchingMiddleware(); len(got) != 1 {
		t.Fatalf("MatchingMiddleware = %d entries, want 1", len(got))
	}
	if got := c.HeardMiddleware(); len(got) != 1 {
		t.Fatalf("HeardMiddleware = %d entries, want 1", len(got))
	}
}

func TestHearsHandlerResolvesAtRegistration(t *testing.T) {
	RegisterHandler("test.echo", noop)

	r := NewRegistry()
	c, err := r.HearsHandler("echo {text}", "test.echo")
	if err != nil {
		t.Fatalf("HearsHandler: %v", err)
	}
	if c.Callback() == nil {
		t.Fatal("callback not resolved")
	}

	if _, err := r.HearsHandler("nope", "test.missing"); err == nil {
		t.Fatal("unknown handler token must fail at registration time")
	}
}
