package ingest

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gfranca/leadflow/internal/bus"
	"github.com/gfranca/leadflow/internal/config"
	"github.com/gfranca/leadflow/internal/ident"
	"github.com/gfranca/leadflow/internal/status"
	"github.com/gfranca/leadflow/internal/store"
	"go.uber.org/zap"
)

// Engine drives the ingestion pipeline. The transport hands it raw wire
// events by direct call; the engine filters them, resolves contact identity,
// suppresses duplicates, appends to the message log, and publishes accepted
// events on the bus. Intake is synchronous so every wire event is seen:
// only the outbound bus fan-out is allowed to shed load.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	filter *Filter
	dedup  *Dedup
	locks  *KeyedLock
	logger *zap.Logger

	mu    sync.Mutex
	drops map[DropReason]uint64
}

// NewEngine creates an ingestion engine with the given policy windows.
func NewEngine(db *store.DB, b *bus.Bus, session *status.Session, p config.Pipeline, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		bus:    b,
		filter: NewFilter(session, p.HistoryMaxAge.Duration),
		dedup:  NewDedup(p.DedupWindow.Duration),
		locks:  NewKeyedLock(),
		logger: logger,
		drops:  make(map[DropReason]uint64),
	}
}

// Start restores the persisted drop counters.
func (e *Engine) Start() {
	e.loadCounters()
}

// Stop persists the drop counters.
func (e *Engine) Stop() {
	e.saveCounters()
}

// Ingest runs one raw wire event through the full pipeline. Rejections are
// not errors: malformed or out-of-scope events are dropped, logged, and
// counted, never thrown back at the transport. A returned error means
// persistence failed after a retry.
func (e *Engine) Ingest(ev WireMessage, now time.Time) error {
	if reason := e.filter.Check(ev, now); reason != "" {
		e.drop(reason, ev)
		return nil
	}

	address := ident.NormalizeAddress(ev.Address)
	if address == "" {
		e.drop(DropBadAddress, ev)
		return nil
	}
	phone := ident.PhonePart(address)

	// Serialize everything for this contact: find-or-create, merge, append.
	unlock := e.locks.Lock(lockKey(phone))
	defer unlock()

	u := store.LeadUpsert{Phone: phone, Address: address}
	if !ev.FromSelf {
		// The push name on a self-sent echo is the operator's own name.
		u.DisplayName = ev.PushName
	}

	lead, merged, err := e.resolveWithRetry(u)
	if err != nil {
		e.fail("resolve", err, ev)
		return fmt.Errorf("resolve lead: %w", err)
	}
	// Leads absorbed by a merge no longer exist; their dedup windows go too.
	for _, id := range merged {
		e.dedup.Forget(id)
	}

	direction := store.DirectionInbound
	delivery := "received"
	if ev.FromSelf {
		direction = store.DirectionOutbound
		delivery = "sent"
	}

	if e.dedup.Observe(lead.ID, ev.Body, direction, ev.OccurredAt) {
		e.drop(DropDuplicate, ev)
		return nil
	}

	msg, err := e.appendWithRetry(lead.ID, direction, ev.Body, delivery, ev.OccurredAt)
	if err != nil {
		e.fail("append", err, ev)
		return fmt.Errorf("append message: %w", err)
	}

	// Re-read so subscribers see the post-append lead (updated_at, counters).
	if fresh, gerr := e.db.GetLead(lead.ID); gerr == nil && fresh != nil {
		lead = fresh
	}

	e.bus.Publish(bus.NewMessage{Lead: *lead, Message: *msg})
	e.bus.Publish(bus.ContactsChanged{})
	return nil
}

// RecordReply appends an operator reply to a lead's log and announces it.
// Used by the outbox sender once the transport accepts the send; the dedup
// record also suppresses the transport's own echo of the message.
func (e *Engine) RecordReply(leadID, body string, at time.Time) (*store.Message, error) {
	lead, err := e.db.GetLead(leadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, fmt.Errorf("lead %q not found", leadID)
	}

	unlock := e.locks.Lock(lockKey(lead.Phone))
	defer unlock()

	occurredAt := at.UnixMilli()
	e.dedup.Observe(lead.ID, body, store.DirectionOutbound, occurredAt)

	msg, err := e.appendWithRetry(lead.ID, store.DirectionOutbound, body, "sent", occurredAt)
	if err != nil {
		return nil, fmt.Errorf("append reply: %w", err)
	}

	if fresh, gerr := e.db.GetLead(lead.ID); gerr == nil && fresh != nil {
		lead = fresh
	}
	e.bus.Publish(bus.NewMessage{Lead: *lead, Message: *msg})
	e.bus.Publish(bus.ContactsChanged{})
	return msg, nil
}

// Drops returns a snapshot of the drop counters by reason.
func (e *Engine) Drops() map[string]uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]uint64, len(e.drops))
	for k, v := range e.drops {
		out[string(k)] = v
	}
	return out
}

// Store write failures are retried once immediately; storage hiccups under
// WAL contention usually clear on the second attempt.
func (e *Engine) resolveWithRetry(u store.LeadUpsert) (*store.Lead, []string, error) {
	lead, merged, err := e.db.ResolveLead(u)
	if err != nil {
		lead, merged, err = e.db.ResolveLead(u)
	}
	return lead, merged, err
}

func (e *Engine) appendWithRetry(leadID, direction, body, delivery string, occurredAt int64) (*store.Message, error) {
	msg, err := e.db.AppendMessage(leadID, direction, body, delivery, occurredAt)
	if err != nil {
		msg, err = e.db.AppendMessage(leadID, direction, body, delivery, occurredAt)
	}
	return msg, err
}

func (e *Engine) drop(reason DropReason, ev WireMessage) {
	e.mu.Lock()
	e.drops[reason]++
	e.mu.Unlock()

	e.logger.Debug("event dropped",
		zap.String("reason", string(reason)),
		zap.String("kind", ev.Kind),
		zap.String("address", ev.Address),
		zap.String("body", truncate(ev.Body, 64)),
	)
}

func (e *Engine) fail(stage string, err error, ev WireMessage) {
	e.logger.Error("pipeline persistence failure",
		zap.String("stage", stage),
		zap.Error(err),
		zap.String("address", ev.Address),
	)
	e.bus.Publish(bus.PipelineError{Stage: stage, Err: err})
}

func (e *Engine) loadCounters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range []DropReason{DropNotReady, DropGroupOrBroadcast, DropProtocolControl, DropTooOld, DropMalformed, DropBadAddress, DropDuplicate} {
		v, err := e.db.GetPipelineState("drops." + string(r))
		if err != nil || v == "" {
			continue
		}
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			e.drops[r] = n
		}
	}
}

func (e *Engine) saveCounters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for r, n := range e.drops {
		_ = e.db.SetPipelineState("drops."+string(r), strconv.FormatUint(n, 10))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
