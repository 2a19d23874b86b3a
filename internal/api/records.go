package api

import "github.com/relaydesk/relay/internal/chat"

// Wire representations shared by the REST client and the push channel.
// Domain types carry a tagged MessageID and are not marshaled directly.

// MessageRecord is the wire form of a message.
type MessageRecord struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Direction      string `json:"direction"`
	Type           string `json:"type"`
	Body           string `json:"body"`
	TimestampMs    int64  `json:"timestamp_ms"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// Message converts the record to its domain form with a confirmed id.
func (r MessageRecord) Message() chat.Message {
	return chat.Message{
		ID:             chat.ConfirmedID(r.ID),
		ConversationID: r.ConversationID,
		Direction:      chat.Direction(r.Direction),
		Kind:           chat.Kind(r.Type),
		Body:           r.Body,
		Timestamp:      r.TimestampMs,
		Status:         chat.Status(r.Status),
		Error:          r.Error,
	}
}

// ConversationRecord is the wire form of a conversation list entry.
type ConversationRecord struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Address        string   `json:"address"`
	LastPreview    string   `json:"last_preview"`
	LastActivityMs int64    `json:"last_activity_ms"`
	Unread         bool     `json:"unread"`
	Tags           []string `json:"tags,omitempty"`
}

// Conversation converts the record to its domain form.
func (r ConversationRecord) Conversation() chat.Conversation {
	return chat.Conversation{
		ID:           r.ID,
		Title:        r.Title,
		Address:      r.Address,
		LastPreview:  r.LastPreview,
		LastActivity: r.LastActivityMs,
		Unread:       r.Unread,
		Tags:         r.Tags,
	}
}

// StatusRecord is the wire form of a message status transition.
type StatusRecord struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// Event converts the record to its domain form.
func (r StatusRecord) Event() chat.StatusEvent {
	return chat.StatusEvent{
		ConversationID: r.ConversationID,
		ID:             chat.ConfirmedID(r.MessageID),
		Status:         chat.Status(r.Status),
		Error:          r.Error,
	}
}
