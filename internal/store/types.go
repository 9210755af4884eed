package store

// Lead status values.
const (
	StatusPending   = "pending"
	StatusReplied   = "replied"
	StatusCompleted = "completed"
)

// Message directions. Inbound means the contact sent it, outbound means the
// operator (or an automation acting for the operator) did.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Lead is a tracked contact, keyed by canonical phone.
type Lead struct {
	ID          string `json:"id"`
	Phone       string `json:"phone"`
	Address     string `json:"address,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarRef   string `json:"avatarRef,omitempty"`
	ReplyCount  int    `json:"replyCount"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// Message is one entry in a lead's append-only message log. Seq is assigned at
// append time and breaks ties between messages with equal OccurredAt.
type Message struct {
	Seq            int64  `json:"seq"`
	ID             string `json:"id"`
	LeadID         string `json:"-"`
	Direction      string `json:"direction"`
	Body           string `json:"body"`
	DeliveryStatus string `json:"deliveryStatus"`
	OccurredAt     int64  `json:"occurredAt"`
}

// LeadUpsert carries the incoming identity fields for a find-or-create.
// Phone is required and must already be canonical; the rest are optional.
type LeadUpsert struct {
	Phone       string
	Address     string
	DisplayName string
	AvatarRef   string
}

// OutboxEntry represents a pending outgoing reply.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	LeadID       string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
}
