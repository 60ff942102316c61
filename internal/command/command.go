// Package command holds the registered routes of a bot: pattern, callback
// and dispatch constraints.
package command

import (
	"fmt"
	"sync"

	"botkit/internal/domain"
	"botkit/internal/middleware"
)

// Callback handles a matched command. Captured pattern parameters follow
// positionally; named access goes through b.Matches().
type Callback func(b domain.Bot, args ...string) error

// Command is one registered route. Constraints are set fluently right
// after Hears and are read-only during dispatch.
type Command struct {
	pattern           string
	callback          Callback
	drivers           []string
	recipient         string
	middleware        []any
	stopsConversation bool
	skipsConversation bool
}

func newCommand(pattern string, cb Callback) *Command {
	return &Command{pattern: pattern, callback: cb}
}

// Driver restricts the command to the named drivers.
func (c *Command) Driver(names ...string) *Command {
	c.drivers = append(c.drivers, names...)
	return c
}

// Recipient restricts the command to one channel.
func (c *Command) Recipient(recipient string) *Command {
	c.recipient = recipient
	return c
}

// Middleware attaches per-command middleware; matching-capable entries
// join the matching gate, heard-capable entries join the heard chain.
func (c *Command) Middleware(mws ...any) *Command {
	c.middleware = append(c.middleware, mws...)
	return c
}

// StopsConversation makes this command cancel a pending conversation for
// the same identifier before firing.
func (c *Command) StopsConversation() *Command {
	c.stopsConversation = true
	return c
}

// SkipsConversation makes this command defer a pending conversation for
// the same identifier instead of resuming it.
func (c *Command) SkipsConversation() *Command {
	c.skipsConversation = true
	return c
}

func (c *Command) Pattern() string            { return c.pattern }
func (c *Command) Callback() Callback         { return c.callback }
func (c *Command) Drivers() []string          { return c.drivers }
func (c *Command) RecipientConstraint() string { return c.recipient }

func (c *Command) ShouldStopConversation() bool { return c.stopsConversation }
func (c *Command) ShouldSkipConversation() bool { return c.skipsConversation }

// MatchingMiddleware returns the matching-capable per-command middleware.
func (c *Command) MatchingMiddleware() []middleware.Matching {
	var out []middleware.Matching
	for _, mw := range c.middleware {
		if m, ok := mw.(middleware.Matching); ok {
			out = append(out, m)
		}
	}
	return out
}

// HeardMiddleware returns the heard-capable per-command middleware.
func (c *Command) HeardMiddleware() []middleware.Heard {
	var out []middleware.Heard
	for _, mw := range c.middleware {
		if m, ok := mw.(middleware.Heard); ok {
			out = append(out, m)
		}
	}
	return out
}

// GroupAttributes are shared constraints applied to every Hears call made
// inside a Group closure.
type GroupAttributes struct {
	Drivers           []string
	Recipient         string
	Middleware        []any
	StopsConversation bool
	SkipsConversation bool
}

// Registry holds the registered commands of one bot in registration
// order. Dispatch scans them in order; the first full match fires, so
// overlapping patterns are deliberately order-sensitive.
type Registry struct {
	commands []*Command
	groups   []GroupAttributes
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Hears registers a route. The returned command accepts further fluent
// constraints.
func (r *Registry) Hears(pattern string, cb Callback) *Command {
	c := newCommand(pattern, cb)
	for _, g := range r.groups {
		c.drivers = append(c.drivers, g.Drivers...)
		if g.Recipient != "" {
			c.recipient = g.Recipient
		}
		c.middleware = append(c.middleware, g.Middleware...)
		c.stopsConversation = c.stopsConversation || g.StopsConversation
		c.skipsConversation = c.skipsConversation || g.SkipsConversation
	}
	r.commands = append(r.commands, c)
	return c
}

// HearsHandler registers a route whose callback is a named handler
// registered via RegisterHandler. Resolution happens here, at setup time.
func (r *Registry) HearsHandler(pattern, handler string) (*Command, error) {
	cb, ok := LookupHandler(handler)
	if !ok {
		return nil, fmt.Errorf("command handler %q is not registered", handler)
	}
	return r.Hears(pattern, cb), nil
}

// Group applies shared attributes to every Hears call made inside fn.
// Groups nest; attributes are cleared when fn returns. Not safe for
// concurrent use on the same registry.
func (r *Registry) Group(attrs GroupAttributes, fn func(*Registry)) {
	r.groups = append(r.groups, attrs)
	fn(r)
	r.groups = r.groups[:len(r.groups)-1]
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []*Command {
	return r.commands
}

var (
	handlersMu sync.RWMutex
	handlers   = make(map[string]Callback)
)

// RegisterHandler names a command callback so routes and stored state can
// reference it by string. Call at startup, before routes are registered.
func RegisterHandler(name string, cb Callback) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[name] = cb
}

// LookupHandler resolves a named command callback.
func LookupHandler(name string) (Callback, bool) {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	cb, ok := handlers[name]
	return cb, ok
}
