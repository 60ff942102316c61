package middleware

import (
	"strings"
	"testing"

	"botkit/internal/domain"
)

type tagReceived struct {
	tag string
	log *[]string
}

func (m *tagReceived) Received(msg *domain.IncomingMessage, next NextMessage, b domain.Bot) *domain.IncomingMessage {
	*m.log = append(*m.log, "in:"+m.tag)
	out := next(msg)
	*m.log = append(*m.log, "out:"+m.tag)
	return out
}

type shortCircuitReceived struct{}

func (shortCircuitReceived) Received(msg *domain.IncomingMessage, next NextMessage, b domain.Bot) *domain.IncomingMessage {
	return msg // never calls next
}

type upcaseHeard struct{}

func (upcaseHeard) Heard(msg *domain.IncomingMessage, next NextMessage, b domain.Bot) *domain.IncomingMessage {
	msg.Text = strings.ToUpper(msg.Text)
	return next(msg)
}

type vetoMatching struct{}

func (vetoMatching) Matching(msg *domain.IncomingMessage, pattern string, regexMatched bool) bool {
	return false
}

type overrideMatching struct{}

func (overrideMatching) Matching(msg *domain.IncomingMessage, pattern string, regexMatched bool) bool {
	intent, _ := msg.Extra("intent")
	return intent == pattern
}

type stampSending struct{ key, value string }

func (m stampSending) Sending(payload domain.Payload, next NextPayload, b domain.Bot) domain.Payload {
	payload[m.key] = m.value
	return next(payload)
}

// allStages implements every stage; Add must register it for each.
type allStages struct{}

func (allStages) Received(m *domain.IncomingMessage, next NextMessage, b domain.Bot) *domain.IncomingMessage {
	return next(m)
}
func (allStages) Heard(m *domain.IncomingMessage, next NextMessage, b domain.Bot) *domain.IncomingMessage {
	return next(m)
}
func (allStages) Captured(m *domain.IncomingMessage, next NextMessage, b domain.Bot) *domain.IncomingMessage {
	return next(m)
}
func (allStages) Matching(m *domain.IncomingMessage, pattern string, regexMatched bool) bool {
	return regexMatched
}
func (allStages) Sending(p domain.Payload, next NextPayload, b domain.Bot) domain.Payload {
	return next(p)
}

func inbound(text string) *domain.IncomingMessage {
	return domain.NewIncomingMessage(text, "user-1", "chat-1", nil)
}

func TestReceivedChainOrder(t *testing.T) {
	var log []string
	s := NewStack().Received(
		&tagReceived{tag: "a", log: &log},
		&tagReceived{tag: "b", log: &log},
	)

	terminalRan := false
	s.ApplyReceived(inbound("hi"), nil, nil, func(m *domain.IncomingMessage) *domain.IncomingMessage {
		terminalRan = true
		return m
	})

	if !terminalRan {
		t.Fatal("terminal did not run")
	}
	want := []string{"in:a", "in:b", "out:b", "out:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestReceivedShortCircuitSkipsRest(t *testing.T) {
	var log []string
	s := NewStack().Received(
		shortCircuitReceived{},
		&tagReceived{tag: "never", log: &log},
	)

	terminalRan := false
	s.ApplyReceived(inbound("hi"), nil, nil, func(m *domain.IncomingMessage) *domain.IncomingMessage {
		terminalRan = true
		return m
	})

	if terminalRan {
		t.Fatal("terminal must not run when the chain short-circuits")
	}
	if len(log) != 0 {
		t.Fatalf("later middleware ran: %v", log)
	}
}

func TestHeardChainMutatesMessage(t *testing.T) {
	s := NewStack().Heard(upcaseHeard{})
	out := s.ApplyHeard(inbound("hi"), nil, nil, nil)
	if out.Text != "HI" {
		t.Fatalf("Text = %q, want %q", out.Text, "HI")
	}
}

func TestExtraMiddlewareRunsAfterRegistered(t *testing.T) {
	var log []string
	s := NewStack().Received(&tagReceived{tag: "stack", log: &log})
	s.ApplyReceived(inbound("hi"), []Received{&tagReceived{tag: "route", log: &log}}, nil, nil)
	if len(log) != 4 || log[0] != "in:stack" || log[1] != "in:route" {
		t.Fatalf("log = %v, want stack middleware before route middleware", log)
	}
}

func TestMatchingGate(t *testing.T) {
	msg := inbound("whatever")
	msg.AddExtra("intent", "greet")

	t.Run("regex verdict passes through with no middleware", func(t *testing.T) {
		s := NewStack()
		if !s.ApplyMatching(msg, "greet", true, nil) {
			t.Fatal("true verdict must survive an empty gate")
		}
		if s.ApplyMatching(msg, "greet", false, nil) {
			t.Fatal("false verdict must survive an empty gate")
		}
	})

	t.Run("any veto rejects", func(t *testing.T) {
		s := NewStack().Matching(overrideMatching{}, vetoMatching{})
		if s.ApplyMatching(msg, "greet", true, nil) {
			t.Fatal("a vetoing middleware must reject the route")
		}
	})

	t.Run("middleware can override a failed regex", func(t *testing.T) {
		s := NewStack().Matching(overrideMatching{})
		if !s.ApplyMatching(msg, "greet", false, nil) {
			t.Fatal("accepting middleware must override the regex verdict")
		}
		if s.ApplyMatching(msg, "other", false, nil) {
			t.Fatal("rejecting middleware must not match")
		}
	})
}

func TestSendingChainWrapsTerminal(t *testing.T) {
	s := NewStack().Sending(stampSending{"stage", "one"}, stampSending{"later", "two"})

	var delivered domain.Payload
	s.ApplySending(domain.Payload{"text": "hi"}, nil, nil, func(p domain.Payload) domain.Payload {
		delivered = p
		return p
	})

	if delivered == nil {
		t.Fatal("terminal did not run")
	}
	if delivered["stage"] != "one" || delivered["later"] != "two" {
		t.Fatalf("payload = %v, want both stamps applied", delivered)
	}
}

func TestAddRegistersEveryImplementedStage(t *testing.T) {
	s := NewStack().Add(allStages{})
	if len(s.received) != 1 || len(s.heard) != 1 || len(s.captured) != 1 || len(s.matching) != 1 || len(s.sending) != 1 {
		t.Fatalf("Add registered received=%d heard=%d captured=%d matching=%d sending=%d, want 1 each",
			len(s.received), len(s.heard), len(s.captured), len(s.matching), len(s.sending))
	}
}
