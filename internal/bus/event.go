package bus

import (
	"time"

	"github.com/relaydesk/relay/internal/chat"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by namespace prefix, e.g. "timeline." or
// "push.".
const (
	// KindTimelineUpdated fires after any mutation of a conversation's
	// timeline (merge, status patch, reconciliation). Payload: TimelineRef.
	KindTimelineUpdated = "timeline.updated"
	// KindTimelineAppended fires when a genuinely new message lands at the
	// end of a timeline. Payload: Appended.
	KindTimelineAppended = "timeline.appended"
	// KindRosterUpdated fires when the conversation list changes order,
	// membership, unread state or summaries. No payload.
	KindRosterUpdated = "roster.updated"
	// KindSendAcked fires when an optimistic send reconciles. Payload: SendAck.
	KindSendAcked = "send.acked"
	// KindSendFailed fires when a send fails or times out. Payload: SendFailure.
	KindSendFailed = "send.failed"
	// KindFetchFailed fires when an initial or older-page load fails.
	// Payload: FetchFailure.
	KindFetchFailed = "fetch.failed"
	// KindLinkChanged fires on push-link state transitions. Payload: link.StateChange.
	KindLinkChanged = "link.state_changed"

	// Push channel frames, re-published onto the bus by the push client.
	KindPushMessageCreated = "push.message.created" // Payload: chat.Message
	KindPushMessageUpdated = "push.message.updated" // Payload: chat.StatusEvent
	KindPushSnapshot       = "push.snapshot"        // Payload: []chat.Conversation
)

// TimelineRef identifies the conversation whose timeline changed.
type TimelineRef struct {
	ConversationID string
}

// Appended identifies a newly appended message.
type Appended struct {
	ConversationID string
	ID             chat.MessageID
}

// SendAck reports a reconciled optimistic send.
type SendAck struct {
	ConversationID string
	Provisional    chat.MessageID
	Confirmed      chat.MessageID
}

// SendFailure reports a failed or timed-out send. The provisional entry
// stays in the timeline with status failed.
type SendFailure struct {
	ConversationID string
	ID             chat.MessageID
	Reason         string
}

// FetchFailure reports a failed page load. Cursor state is untouched; the
// user retries by re-triggering the same action.
type FetchFailure struct {
	ConversationID string
	Op             string // "initial" or "older"
	Reason         string
}
