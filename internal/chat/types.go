package chat

// Direction distinguishes inbound counterpart messages from outbound ones.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Kind is the message content type.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
	KindSticker  Kind = "sticker"
)

// Status is the delivery status of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Message is one entry in a conversation timeline.
type Message struct {
	ID             MessageID
	ConversationID string
	Direction      Direction
	Kind           Kind
	Body           string
	Timestamp      int64 // unix milliseconds, server-monotonic once confirmed
	Status         Status
	Error          string
	// PreviewRef points at a locally-held media preview for a message whose
	// bytes have not been uploaded yet. Empty once confirmed.
	PreviewRef string
}

// Conversation is one entry in the inbox list.
type Conversation struct {
	ID           string
	Title        string
	Address      string
	LastPreview  string
	LastActivity int64 // unix milliseconds
	Unread       bool
	Tags         []string
}

// StatusEvent is a message-level status transition delivered by the push
// channel (delivered/read receipts, error annotations).
type StatusEvent struct {
	ConversationID string
	ID             MessageID
	Status         Status
	Error          string
}
