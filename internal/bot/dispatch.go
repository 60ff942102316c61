package bot

import (
	"botkit/internal/command"
	"botkit/internal/domain"
	"botkit/internal/matcher"
)

// Listen processes one inbound request to completion: driver events
// first, then conversation resumption, then fresh route matching, then
// the fallback handler.
func (b *Bot) Listen(req *domain.Request) error {
	b.reset()
	b.driver = b.drivers.Matching(req)

	if ev, ok := b.driver.Event(); ok {
		b.fireEvent(ev)
	}

	msgs := b.driver.Messages()
	mMessagesReceived.Add(int64(len(msgs)))

	if !b.driver.IsBot() {
		for _, msg := range msgs {
			if err := b.handleError(b.loadActiveConversation(msg)); err != nil {
				return err
			}
		}
	}

	matchedAny := b.loadedConversation
	consumed := make([]bool, len(msgs))
	for _, cmd := range b.registry.Commands() {
		for i, msg := range msgs {
			if b.loadedConversation || consumed[i] {
				continue
			}
			// Received middleware runs per command/message pair, so a
			// mutated message is what validity is tested against. The
			// dispatch context follows along so middleware consulting
			// the bot sees the message under test.
			b.message = msg
			current := b.mw.ApplyReceived(msg, nil, b, nil)
			answer := b.driver.ConversationAnswer(current)
			b.message = current
			b.answer = answer
			if !b.commandMatches(cmd, current, answer) {
				continue
			}
			consumed[i] = true
			matchedAny = true
			if err := b.handleError(b.fireCommand(cmd, current, answer)); err != nil {
				return err
			}
		}
	}

	if !matchedAny && len(msgs) > 0 && b.fallback != nil {
		b.message = msgs[0]
		b.answer = b.driver.ConversationAnswer(msgs[0])
		mFallbacks.Inc()
		if err := b.handleError(b.fallback(b, msgs[0].Text)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) reset() {
	b.driver = nil
	b.message = nil
	b.answer = nil
	b.matches = nil
	b.stored = nil
	b.loadedConversation = false
}

func (b *Bot) fireEvent(ev *domain.DriverEvent) {
	mDriverEvents.Inc()
	for _, fn := range b.events[ev.Name] {
		fn(ev, b)
	}
	for _, fn := range b.events["*"] {
		fn(ev, b)
	}
}

// commandMatches runs the full route validity check: driver and channel
// constraints, the pattern matcher, and the matching middleware gate.
// Captures stay on the matcher for the caller.
func (b *Bot) commandMatches(cmd *command.Command, msg *domain.IncomingMessage, answer *domain.Answer) bool {
	if !matcher.IsDriverValid(b.driver.Name(), cmd.Drivers()) {
		return false
	}
	if !matcher.IsChannelValid(msg.Recipient, cmd.RecipientConstraint()) {
		return false
	}
	regexMatched := b.match.IsPatternValid(msg, answer, cmd.Pattern())
	return b.mw.ApplyMatching(msg, cmd.Pattern(), regexMatched, cmd.MatchingMiddleware())
}

func (b *Bot) fireCommand(cmd *command.Command, msg *domain.IncomingMessage, answer *domain.Answer) error {
	msg = b.mw.ApplyHeard(msg, cmd.HeardMiddleware(), b, nil)
	b.message = msg
	b.answer = answer

	named, positional := b.match.Parameters(cmd.Pattern())
	b.matches = named
	if named == nil && len(positional) > 0 && len(matcher.ParamNames(cmd.Pattern())) > 0 {
		b.logger.Debug("pattern capture count mismatch, binding positionally",
			"pattern", cmd.Pattern(),
			"captures", len(positional),
		)
	}

	// Attachment sentinel routes carry their data on the message, not in
	// text captures.
	if getter, ok := matcher.SentinelGetter(cmd.Pattern()); ok {
		answer.Value = msg.AttachmentValue(getter)
		positional = nil
	}

	mCommandsMatched.Inc()
	return cmd.Callback()(b, positional...)
}
