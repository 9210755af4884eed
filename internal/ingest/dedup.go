package ingest

import (
	"sync"
	"time"
)

// maxRecentPerLead bounds the in-memory history window per lead.
const maxRecentPerLead = 64

type recentMessage struct {
	body       string
	direction  string
	occurredAt int64
}

// Dedup suppresses transport redeliveries: the same logical message can reach
// the pipeline through both a live push and a later backlog sync. A candidate
// is a duplicate if a prior accepted message for the same lead has identical
// body and direction within the window. Missed duplicates are acceptable;
// dropping a genuinely new message is not, which is why the window is short.
type Dedup struct {
	mu     sync.Mutex
	window time.Duration
	recent map[string][]recentMessage
}

// NewDedup creates a duplicate detector with the given time window.
func NewDedup(window time.Duration) *Dedup {
	return &Dedup{
		window: window,
		recent: make(map[string][]recentMessage),
	}
}

// Observe reports whether the candidate duplicates a previously observed
// message for the lead, and records it if it does not. Events may arrive out
// of origin order, so the comparison uses the absolute timestamp distance.
func (d *Dedup) Observe(leadID, body, direction string, occurredAt int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	windowMs := d.window.Milliseconds()
	entries := d.recent[leadID]

	kept := entries[:0]
	for _, e := range entries {
		if e.occurredAt < occurredAt-windowMs {
			continue
		}
		kept = append(kept, e)
	}

	for _, e := range kept {
		if e.body == body && e.direction == direction && abs(e.occurredAt-occurredAt) <= windowMs {
			d.recent[leadID] = kept
			return true
		}
	}

	kept = append(kept, recentMessage{body: body, direction: direction, occurredAt: occurredAt})
	if len(kept) > maxRecentPerLead {
		kept = kept[len(kept)-maxRecentPerLead:]
	}
	d.recent[leadID] = kept
	return false
}

// Forget drops the recent window for a lead, e.g. after it is merged away.
func (d *Dedup) Forget(leadID string) {
	d.mu.Lock()
	delete(d.recent, leadID)
	d.mu.Unlock()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
