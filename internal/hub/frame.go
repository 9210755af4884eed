package hub

import (
	"encoding/json"
	"time"

	"github.com/gfranca/leadflow/internal/store"
)

// Frame types pushed to dashboard subscribers.
const (
	FrameNewMessage        = "new_message"
	FrameContactsChanged   = "contacts_changed"
	FrameConnectionChanged = "connection_changed"
)

// Frame is the envelope for every outbound websocket message.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessagePayload carries an accepted message and its (possibly just
// merged) lead. New reflects the receiving subscriber's own replay gate, so
// the same append can be fresh for one subscriber and stale for another.
type NewMessagePayload struct {
	ContactID string        `json:"contactId"`
	Message   store.Message `json:"message"`
	Contact   store.Lead    `json:"contact"`
	New       bool          `json:"new"`
}

// ConnectionChangedPayload reports transport connectivity to the dashboard.
type ConnectionChangedPayload struct {
	Connected bool      `json:"connected"`
	At        time.Time `json:"at"`
}

// FreshAt reports whether a message that occurred at occurredAt (unix
// milliseconds) should be treated as new by a subscriber that attached at
// subscribedAt. The grace buffer tolerates clock skew between the producer
// and the subscriber: a message appended just before the handshake still
// counts as fresh.
func FreshAt(occurredAt int64, subscribedAt time.Time, grace time.Duration) bool {
	return occurredAt >= subscribedAt.Add(-grace).UnixMilli()
}

func marshalFrame(typ string, payload any) []byte {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	data, _ := json.Marshal(Frame{Type: typ, Payload: raw})
	return data
}
