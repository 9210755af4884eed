package wa

import (
	"context"
	"time"

	"github.com/gfranca/leadflow/internal/ingest"
	"github.com/gfranca/leadflow/internal/status"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// LIDResolver maps a LID (hidden-user) JID to its phone number JID.
type LIDResolver interface {
	ResolveLID(ctx context.Context, jid types.JID) types.JID
}

// Ingester consumes raw wire events. Intake is a synchronous call so the
// transport's delivery guarantees carry through to the pipeline: nothing is
// queued, nothing is shed.
type Ingester interface {
	Ingest(ev ingest.WireMessage, now time.Time) error
}

// EventHandler translates whatsmeow events into the pipeline's wire events
// and maintains the ingestion session's connection facts. Wire events are
// handed to the ingester inline, one call per message, including each message
// of a history sync batch.
type EventHandler struct {
	session  *status.Session
	resolver LIDResolver
	ingester Ingester
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler. resolver may be nil.
func NewEventHandler(session *status.Session, resolver LIDResolver, ing Ingester, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{
		session:  session,
		resolver: resolver,
		ingester: ing,
		logger:   logger,
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Connected:
		h.logger.Info("transport connected")
		h.session.MarkConnected(time.Now())
	case *events.Disconnected:
		h.logger.Warn("transport disconnected",
			zap.Int("reconnect_attempts", h.session.ReconnectAttempts()+1))
		h.session.MarkDisconnected(time.Now())
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.LoggedOut:
		h.logger.Warn("transport logged out", zap.String("reason", evt.Reason.String()))
		_ = h.session.Transition(status.AuthRequired)
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	wm := ParseLiveMessage(evt)
	wm.Address = h.resolveAddress(evt.Info.Chat)
	h.ingest(wm)
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	count := 0
	for _, conv := range data.GetConversations() {
		chatJID := conv.GetID()
		if jid, err := types.ParseJID(chatJID); err == nil {
			chatJID = h.resolveAddress(jid)
		}
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			h.ingest(historyWireMessage(chatJID, wmsg.GetMessage(), wmsg.GetKey().GetFromMe(), wmsg.GetMessageTimestamp()))
			count++
		}
	}
	if count > 0 {
		h.logger.Info("history batch ingested", zap.Int("messages", count))
	}
}

func (h *EventHandler) ingest(wm ingest.WireMessage) {
	if err := h.ingester.Ingest(wm, time.Now()); err != nil {
		h.logger.Error("ingest failed", zap.Error(err), zap.String("address", wm.Address))
	}
}

// resolveAddress maps LID chat identifiers back to phone number JIDs. An
// unresolvable LID yields an empty address; the filter drops it instead of
// the store keying a lead on an opaque identifier.
func (h *EventHandler) resolveAddress(jid types.JID) string {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid.String()
	}
	if h.resolver == nil {
		return ""
	}
	pn := h.resolver.ResolveLID(context.Background(), jid)
	if pn.Server == types.HiddenUserServer || pn.Server == types.HostedLIDServer || pn.IsEmpty() {
		return ""
	}
	return pn.String()
}
