// Package ingest implements the real-time ingestion pipeline: classification
// of raw wire events, identity resolution against the lead store, duplicate
// suppression, and fan-out of accepted messages.
package ingest

import (
	"time"

	"github.com/gfranca/leadflow/internal/status"
)

// DropReason classifies why an event was rejected before persistence.
type DropReason string

const (
	DropNotReady         DropReason = "not_ready"
	DropGroupOrBroadcast DropReason = "group_or_broadcast"
	DropProtocolControl  DropReason = "protocol_control"
	DropTooOld           DropReason = "too_old"
	DropMalformed        DropReason = "malformed"
	DropBadAddress       DropReason = "bad_address"
	DropDuplicate        DropReason = "duplicate"
)

// Filter decides accept/reject for raw wire events. The producer-side age
// gate is what keeps historical backlog floods out of the log entirely;
// subscribers apply their own redundant gate on delivery.
type Filter struct {
	session *status.Session
	maxAge  time.Duration
}

// NewFilter creates a filter gated on the given ingestion session. maxAge
// bounds how old a backlog-replayed event may be.
func NewFilter(session *status.Session, maxAge time.Duration) *Filter {
	return &Filter{session: session, maxAge: maxAge}
}

// Check classifies one raw event. An empty reason means accept. Only events
// replayed from the transport's backlog (kind "append") are age-gated; live
// pushes are never rejected on age.
func (f *Filter) Check(ev WireMessage, now time.Time) DropReason {
	if f.session.ConnectedAt().IsZero() {
		return DropNotReady
	}
	if ev.GroupOrBroadcast {
		return DropGroupOrBroadcast
	}
	if ev.ProtocolControl {
		return DropProtocolControl
	}
	if ev.Address == "" || ev.OccurredAt <= 0 {
		return DropMalformed
	}
	if ev.Kind == KindAppend && ev.OccurredAt < now.Add(-f.maxAge).UnixMilli() {
		return DropTooOld
	}
	return ""
}
