// Package middleware implements the named-stage pipeline messages and
// outbound payloads pass through during dispatch.
//
// Four stages (received, heard, captured, sending) run as an onion chain:
// every middleware gets the payload plus a next continuation and must call
// next to keep the chain going, or return early to short-circuit. The
// matching stage is different: it is a boolean gate where every registered
// middleware must accept the route.
package middleware

import "botkit/internal/domain"

// NextMessage continues a message-stage chain.
type NextMessage func(*domain.IncomingMessage) *domain.IncomingMessage

// NextPayload continues the sending chain.
type NextPayload func(domain.Payload) domain.Payload

// Received runs for every inbound message before matching is attempted.
type Received interface {
	Received(msg *domain.IncomingMessage, next NextMessage, b domain.Bot) *domain.IncomingMessage
}

// Heard runs after a command matched, before its callback fires.
type Heard interface {
	Heard(msg *domain.IncomingMessage, next NextMessage, b domain.Bot) *domain.IncomingMessage
}

// Captured runs when a message is considered as a conversation answer.
type Captured interface {
	Captured(msg *domain.IncomingMessage, next NextMessage, b domain.Bot) *domain.IncomingMessage
}

// Matching votes on whether a route matches a message. regexMatched is the
// pattern matcher's own verdict, so middleware can veto or override it
// from side-channel state.
type Matching interface {
	Matching(msg *domain.IncomingMessage, pattern string, regexMatched bool) bool
}

// Sending wraps outbound payloads; the terminal of its chain performs the
// actual driver delivery.
type Sending interface {
	Sending(payload domain.Payload, next NextPayload, b domain.Bot) domain.Payload
}

// Stack holds the per-stage middleware lists of one bot instance.
// Registration is append-only at setup time; dispatch only reads.
type Stack struct {
	received []Received
	heard    []Heard
	captured []Captured
	matching []Matching
	sending  []Sending
}

func NewStack() *Stack {
	return &Stack{}
}

// Add registers a middleware for every stage it implements.
func (s *Stack) Add(mws ...any) *Stack {
	for _, mw := range mws {
		if m, ok := mw.(Received); ok {
			s.received = append(s.received, m)
		}
		if m, ok := mw.(Heard); ok {
			s.heard = append(s.heard, m)
		}
		if m, ok := mw.(Captured); ok {
			s.captured = append(s.captured, m)
		}
		if m, ok := mw.(Matching); ok {
			s.matching = append(s.matching, m)
		}
		if m, ok := mw.(Sending); ok {
			s.sending = append(s.sending, m)
		}
	}
	return s
}

func (s *Stack) Received(mws ...Received) *Stack {
	s.received = append(s.received, mws...)
	return s
}

func (s *Stack) Heard(mws ...Heard) *Stack {
	s.heard = append(s.heard, mws...)
	return s
}

func (s *Stack) Captured(mws ...Captured) *Stack {
	s.captured = append(s.captured, mws...)
	return s
}

func (s *Stack) Matching(mws ...Matching) *Stack {
	s.matching = append(s.matching, mws...)
	return s
}

func (s *Stack) Sending(mws ...Sending) *Stack {
	s.sending = append(s.sending, mws...)
	return s
}

// ApplyReceived runs the received chain in registration order, extra
// middleware appended after the registered ones.
func (s *Stack) ApplyReceived(msg *domain.IncomingMessage, extra []Received, b domain.Bot, terminal NextMessage) *domain.IncomingMessage {
	mws := concat(s.received, extra)
	steps := make([]func(*domain.IncomingMessage, NextMessage) *domain.IncomingMessage, len(mws))
	for i, mw := range mws {
		mw := mw
		steps[i] = func(m *domain.IncomingMessage, next NextMessage) *domain.IncomingMessage {
			return mw.Received(m, next, b)
		}
	}
	return runMessageChain(msg, steps, terminal)
}

// ApplyHeard runs the heard chain.
func (s *Stack) ApplyHeard(msg *domain.IncomingMessage, extra []Heard, b domain.Bot, terminal NextMessage) *domain.IncomingMessage {
	mws := concat(s.heard, extra)
	steps := make([]func(*domain.IncomingMessage, NextMessage) *domain.IncomingMessage, len(mws))
	for i, mw := range mws {
		mw := mw
		steps[i] = func(m *domain.IncomingMessage, next NextMessage) *domain.IncomingMessage {
			return mw.Heard(m, next, b)
		}
	}
	return runMessageChain(msg, steps, terminal)
}

// ApplyCaptured runs the captured chain.
func (s *Stack) ApplyCaptured(msg *domain.IncomingMessage, extra []Captured, b domain.Bot, terminal NextMessage) *domain.IncomingMessage {
	mws := concat(s.captured, extra)
	steps := make([]func(*domain.IncomingMessage, NextMessage) *domain.IncomingMessage, len(mws))
	for i, mw := range mws {
		mw := mw
		steps[i] = func(m *domain.IncomingMessage, next NextMessage) *domain.IncomingMessage {
			return mw.Captured(m, next, b)
		}
	}
	return runMessageChain(msg, steps, terminal)
}

// ApplyMatching combines the regex verdict with every matching middleware.
// All must accept; order is irrelevant.
func (s *Stack) ApplyMatching(msg *domain.IncomingMessage, pattern string, regexMatched bool, extra []Matching) bool {
	matched := regexMatched
	for _, mw := range concat(s.matching, extra) {
		if !mw.Matching(msg, pattern, regexMatched) {
			return false
		}
		matched = true
	}
	return matched
}

// ApplySending runs the sending chain; the terminal performs the actual
// delivery to the driver.
func (s *Stack) ApplySending(payload domain.Payload, extra []Sending, b domain.Bot, terminal NextPayload) domain.Payload {
	mws := concat(s.sending, extra)
	if terminal == nil {
		terminal = func(p domain.Payload) domain.Payload { return p }
	}
	var run func(int, domain.Payload) domain.Payload
	run = func(i int, p domain.Payload) domain.Payload {
		if i >= len(mws) {
			return terminal(p)
		}
		return mws[i].Sending(p, func(next domain.Payload) domain.Payload {
			return run(i+1, next)
		}, b)
	}
	return run(0, payload)
}

func runMessageChain(msg *domain.IncomingMessage, steps []func(*domain.IncomingMessage, NextMessage) *domain.IncomingMessage, terminal NextMessage) *domain.IncomingMessage {
	if terminal == nil {
		terminal = func(m *domain.IncomingMessage) *domain.IncomingMessage { return m }
	}
	var run func(int, *domain.IncomingMessage) *domain.IncomingMessage
	run = func(i int, m *domain.IncomingMessage) *domain.IncomingMessage {
		if i >= len(steps) {
			return terminal(m)
		}
		return steps[i](m, func(next *domain.IncomingMessage) *domain.IncomingMessage {
			return run(i+1, next)
		})
	}
	return run(0, msg)
}

func concat[T any](a, b []T) []T {
	if len(b) == 0 {
		return a
	}
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
