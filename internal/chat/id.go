package chat

import "encoding/json"

// MessageID identifies a message as either a locally-generated provisional id
// (assigned before the server has confirmed the message) or a durable
// server-confirmed id. Keeping the two in one tagged value avoids prefix or
// sign conventions on a shared string field: a provisional id can never be
// equal to a confirmed id, even if the raw values collide.
type MessageID struct {
	value       string
	provisional bool
}

// ProvisionalID wraps a locally-generated identifier.
func ProvisionalID(local string) MessageID {
	return MessageID{value: local, provisional: true}
}

// ConfirmedID wraps a server-assigned identifier.
func ConfirmedID(server string) MessageID {
	return MessageID{value: server, provisional: false}
}

// Provisional reports whether the id is locally generated.
func (id MessageID) Provisional() bool { return id.provisional }

// Value returns the raw identifier.
func (id MessageID) Value() string { return id.value }

// IsZero reports whether the id is unset.
func (id MessageID) IsZero() bool { return id.value == "" }

func (id MessageID) String() string {
	if id.provisional {
		return "local:" + id.value
	}
	return id.value
}

// MarshalJSON renders the id in its String form for diagnostic output.
func (id MessageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}
