package bot

import (
	"botkit/internal/conversation"
	"botkit/internal/domain"
)

// loadActiveConversation attempts to resume a paused conversation with
// the inbound message. When it consumes the message it marks the dispatch
// as conversation-loaded, which suppresses fresh route matching; when it
// returns without consuming, the message falls through.
func (b *Bot) loadActiveConversation(msg *domain.IncomingMessage) error {
	if msg.FromBot {
		return nil
	}
	id := msg.ConversationIdentifier()
	originated := msg.OriginatedConversationIdentifier()
	if !b.sessions.Has(id, originated) {
		return nil
	}

	msg = b.mw.ApplyReceived(msg, nil, b, nil)
	msg = b.mw.ApplyCaptured(msg, nil, b, nil)

	pending, ok := b.sessions.Load(id, originated)
	if !ok {
		return nil
	}
	conv := pending.Conversation

	if conv.SkipsConversation(msg) {
		return nil
	}
	if conv.StopsConversation(msg) {
		b.sessions.Delete(id, originated)
		mConversationsStopped.Inc()
		return nil
	}

	answer := b.driver.ConversationAnswer(msg)

	// A freshly registered command with a stop/skip flag preempts the
	// paused conversation.
	for _, cmd := range b.registry.Commands() {
		if !cmd.ShouldStopConversation() && !cmd.ShouldSkipConversation() {
			continue
		}
		if !b.commandMatches(cmd, msg, answer) {
			continue
		}
		if cmd.ShouldStopConversation() {
			b.sessions.Delete(id, originated)
			mConversationsStopped.Inc()
		}
		return nil
	}

	fn, args, toRepeat := b.resolveContinuation(pending, msg, answer)

	b.message = msg
	b.answer = answer
	b.stored = pending
	conv.Bind(b, conv)

	// Attachment-expecting steps re-validate the sentinel before the real
	// callback runs; a non-matching answer re-prompts instead.
	if sentinel, ok := pending.Additional[conversation.PatternKey].(string); ok && fn != nil {
		getter, _ := pending.Additional[conversation.GetterKey].(string)
		if !b.attachmentMatches(msg, answer, sentinel, getter) {
			b.loadedConversation = true
			mConversationsRepeated.Inc()
			if token, ok := pending.Additional[conversation.RepeatKey].(string); ok {
				if repeatFn, found := conversation.Handler(token); found {
					repeatFn(answer, conv)
					return nil
				}
			}
			return conv.Repeat()
		}
		if getter != "" {
			answer.Value = msg.AttachmentValue(getter)
		}
	}

	if fn != nil {
		b.loadedConversation = true
		mConversationsResumed.Inc()
		fn(answer, conv, args...)
		// Delete only if the callback did not re-arm the conversation
		// with a fresh Ask in the meantime.
		b.sessions.DeleteIfUnchanged(id, originated, pending.Time)
		return nil
	}

	if toRepeat {
		b.loadedConversation = true
		mConversationsRepeated.Inc()
		return conv.Repeat()
	}
	return nil
}

// resolveContinuation picks the callback for the stored next step: a
// branch table is matched in order with full capture semantics, a single
// handler needs no pattern test.
func (b *Bot) resolveContinuation(pending *domain.Pending, msg *domain.IncomingMessage, answer *domain.Answer) (domain.ReplyFunc, []string, bool) {
	next := pending.Next
	switch {
	case len(next.Steps) > 0:
		for _, step := range next.Steps {
			if !b.match.IsPatternValid(msg, answer, step.Pattern) {
				continue
			}
			fn := step.Fn
			if fn == nil {
				fn, _ = conversation.Handler(step.Handler)
			}
			if fn == nil {
				b.logger.Warn("stored conversation step has no resolvable handler",
					"pattern", step.Pattern,
					"handler", step.Handler,
				)
				continue
			}
			named, positional := b.match.Parameters(step.Pattern)
			b.matches = named
			return fn, positional, false
		}
		return nil, nil, true
	case next.Fn != nil:
		return next.Fn, nil, false
	case next.Handler != "":
		fn, found := conversation.Handler(next.Handler)
		if !found {
			b.logger.Warn("stored conversation handler is not registered", "handler", next.Handler)
			return nil, nil, true
		}
		return fn, nil, false
	}
	return nil, nil, true
}

func (b *Bot) attachmentMatches(msg *domain.IncomingMessage, answer *domain.Answer, sentinel, getter string) bool {
	if getter != "" && msg.HasAttachment(getter) {
		return true
	}
	if sentinel == "" {
		return true
	}
	return b.match.IsPatternValid(msg, answer, sentinel)
}
