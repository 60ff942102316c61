package bot

import "botkit/internal/metrics"

var (
	mMessagesReceived      = metrics.Collector.Counter("botkit_messages_received_total", "Inbound messages processed", "")
	mDriverEvents          = metrics.Collector.Counter("botkit_driver_events_total", "Provider-level driver events fired", "")
	mCommandsMatched       = metrics.Collector.Counter("botkit_commands_matched_total", "Commands matched and fired", "")
	mConversationsStarted  = metrics.Collector.Counter("botkit_conversations_started_total", "Conversations started", "")
	mConversationsResumed  = metrics.Collector.Counter("botkit_conversations_resumed_total", "Conversation steps resumed", "")
	mConversationsRepeated = metrics.Collector.Counter("botkit_conversations_repeated_total", "Conversation questions re-asked", "")
	mConversationsStopped  = metrics.Collector.Counter("botkit_conversations_stopped_total", "Conversations stopped or preempted", "")
	mFallbacks             = metrics.Collector.Counter("botkit_fallbacks_total", "Messages handled by the fallback", "")
	mPayloadsSent          = metrics.Collector.Counter("botkit_payloads_sent_total", "Outbound payloads delivered", "")
)
