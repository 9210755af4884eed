package wa

import (
	"github.com/gfranca/leadflow/internal/ingest"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ParseLiveMessage translates a live whatsmeow push into the pipeline's wire
// event shape. Live events carry kind "notify" and are never age-gated.
func ParseLiveMessage(evt *events.Message) ingest.WireMessage {
	return ingest.WireMessage{
		Kind:             ingest.KindNotify,
		Address:          evt.Info.Chat.String(),
		Body:             extractTextBody(evt.Message),
		OccurredAt:       evt.Info.Timestamp.UnixMilli(),
		FromSelf:         evt.Info.IsFromMe,
		GroupOrBroadcast: evt.Info.IsGroup || isGroupOrBroadcast(evt.Info.Chat),
		ProtocolControl:  isProtocolControl(evt.Message),
		PushName:         evt.Info.PushName,
	}
}

// historyWireMessage builds a wire event for one message replayed from the
// transport's backlog. Replayed events carry kind "append" so the ingestion
// filter can age-gate them.
func historyWireMessage(chatJID string, msg *waE2E.Message, fromMe bool, tsSec uint64) ingest.WireMessage {
	group := false
	if jid, err := types.ParseJID(chatJID); err == nil {
		group = isGroupOrBroadcast(jid)
	}
	return ingest.WireMessage{
		Kind:             ingest.KindAppend,
		Address:          chatJID,
		Body:             extractTextBody(msg),
		OccurredAt:       int64(tsSec) * 1000,
		FromSelf:         fromMe,
		GroupOrBroadcast: group,
		ProtocolControl:  isProtocolControl(msg),
	}
}

func isGroupOrBroadcast(jid types.JID) bool {
	switch jid.Server {
	case types.GroupServer, types.BroadcastServer, types.NewsletterServer:
		return true
	}
	return false
}

// isProtocolControl reports whether a message is protocol bookkeeping rather
// than conversation content: key distribution, retractions, reactions,
// receipts-as-messages and the like.
func isProtocolControl(msg *waE2E.Message) bool {
	if msg == nil {
		return true
	}
	switch {
	case msg.GetProtocolMessage() != nil,
		msg.GetReactionMessage() != nil,
		msg.GetSenderKeyDistributionMessage() != nil,
		msg.GetPollUpdateMessage() != nil:
		return true
	}
	return false
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}
