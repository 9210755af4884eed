package wa

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/gfranca/leadflow/internal/bus"
	"github.com/gfranca/leadflow/internal/ingest"
	"github.com/gfranca/leadflow/internal/status"
)

// fixedResolver maps every LID JID to a single phone number JID.
type fixedResolver struct {
	pn types.JID
}

func (r fixedResolver) ResolveLID(_ context.Context, _ types.JID) types.JID {
	return r.pn
}

// recordingIngester captures every wire event handed to it.
type recordingIngester struct {
	got []ingest.WireMessage
}

func (r *recordingIngester) Ingest(ev ingest.WireMessage, _ time.Time) error {
	r.got = append(r.got, ev)
	return nil
}

func recvEvent(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for bus event")
		return nil
	}
}

func TestHandleConnected(t *testing.T) {
	b := bus.New()
	s := status.NewSession(b)
	h := NewEventHandler(s, nil, &recordingIngester{}, zap.NewNop())

	ch, unsub := b.Subscribe(10)
	defer unsub()

	h.Handle(&events.Connected{})

	if s.Current() != status.Ready {
		t.Errorf("state = %s, want READY", s.Current())
	}
	if s.ConnectedAt().IsZero() {
		t.Error("ConnectedAt not stamped")
	}

	evt := recvEvent(t, ch)
	cc, ok := evt.(bus.ConnectionChanged)
	if !ok {
		t.Fatalf("event = %T, want ConnectionChanged", evt)
	}
	if !cc.Connected {
		t.Error("Connected = false, want true")
	}
}

func TestHandleDisconnected(t *testing.T) {
	b := bus.New()
	s := status.NewSession(b)
	h := NewEventHandler(s, nil, &recordingIngester{}, zap.NewNop())

	h.Handle(&events.Connected{})

	ch, unsub := b.Subscribe(10)
	defer unsub()

	h.Handle(&events.Disconnected{})

	if s.Current() != status.Reconnecting {
		t.Errorf("state = %s, want RECONNECTING", s.Current())
	}
	if s.ReconnectAttempts() != 1 {
		t.Errorf("reconnect attempts = %d, want 1", s.ReconnectAttempts())
	}

	evt := recvEvent(t, ch)
	cc, ok := evt.(bus.ConnectionChanged)
	if !ok {
		t.Fatalf("event = %T, want ConnectionChanged", evt)
	}
	if cc.Connected {
		t.Error("Connected = true, want false")
	}
}

func TestHandleMessageIngestsWire(t *testing.T) {
	s := status.NewSession(bus.New())
	ing := &recordingIngester{}
	h := NewEventHandler(s, nil, ing, zap.NewNop())

	h.Handle(&events.Message{
		Info: types.MessageInfo{
			ID:        "m1",
			Timestamp: time.Now(),
			PushName:  "Alice",
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "555123456", Server: types.DefaultUserServer},
				Sender: types.JID{User: "555123456", Server: types.DefaultUserServer},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	})

	if len(ing.got) != 1 {
		t.Fatalf("ingested %d events, want 1", len(ing.got))
	}
	wm := ing.got[0]
	if wm.Kind != ingest.KindNotify {
		t.Errorf("Kind = %q, want %q", wm.Kind, ingest.KindNotify)
	}
	if wm.Address != "555123456@s.whatsapp.net" {
		t.Errorf("Address = %q", wm.Address)
	}
	if wm.Body != "hello" {
		t.Errorf("Body = %q, want hello", wm.Body)
	}
}

func TestHandleLoggedOut(t *testing.T) {
	s := status.NewSession(bus.New())
	h := NewEventHandler(s, nil, &recordingIngester{}, zap.NewNop())

	h.Handle(&events.Connected{})
	h.Handle(&events.LoggedOut{})

	if s.Current() != status.AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", s.Current())
	}
}

func historySyncMsg(id, body string, ts uint64) *waHistorySync.HistorySyncMsg {
	return &waHistorySync.HistorySyncMsg{
		Message: &waWeb.WebMessageInfo{
			Key: &waCommon.MessageKey{
				ID:        proto.String(id),
				FromMe:    proto.Bool(false),
				RemoteJID: proto.String("555123456@s.whatsapp.net"),
			},
			MessageTimestamp: &ts,
			Message:          &waE2E.Message{Conversation: proto.String(body)},
		},
	}
}

func TestHandleHistorySync(t *testing.T) {
	s := status.NewSession(bus.New())
	ing := &recordingIngester{}
	h := NewEventHandler(s, nil, ing, zap.NewNop())

	msgTS := uint64(time.Now().Unix())
	h.Handle(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				{
					ID:       proto.String("555123456@s.whatsapp.net"),
					Messages: []*waHistorySync.HistorySyncMsg{historySyncMsg("hm1", "backlog msg", msgTS)},
				},
			},
		},
	})

	if len(ing.got) != 1 {
		t.Fatalf("ingested %d events, want 1", len(ing.got))
	}
	wm := ing.got[0]
	if wm.Kind != ingest.KindAppend {
		t.Errorf("Kind = %q, want %q (backlog replay)", wm.Kind, ingest.KindAppend)
	}
	if wm.OccurredAt != int64(msgTS)*1000 {
		t.Errorf("OccurredAt = %d, want %d", wm.OccurredAt, int64(msgTS)*1000)
	}
	if wm.Body != "backlog msg" {
		t.Errorf("Body = %q", wm.Body)
	}
}

// A large history batch must reach the ingester in full: intake is a direct
// call per message, so no queue depth can silently cap how many survive.
func TestHandleHistorySyncDeliversEveryMessage(t *testing.T) {
	s := status.NewSession(bus.New())
	ing := &recordingIngester{}
	h := NewEventHandler(s, nil, ing, zap.NewNop())

	const total = 2000
	ts := uint64(time.Now().Unix())
	msgs := make([]*waHistorySync.HistorySyncMsg, total)
	for i := range msgs {
		msgs[i] = historySyncMsg(fmt.Sprintf("hm%d", i), fmt.Sprintf("backlog %d", i), ts)
	}
	h.Handle(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				{ID: proto.String("555123456@s.whatsapp.net"), Messages: msgs},
			},
		},
	})

	if len(ing.got) != total {
		t.Fatalf("ingested %d events, want %d", len(ing.got), total)
	}
}

func TestHandleHistorySyncNilData(t *testing.T) {
	s := status.NewSession(bus.New())
	ing := &recordingIngester{}
	h := NewEventHandler(s, nil, ing, zap.NewNop())

	// Should not panic on nil data.
	h.Handle(&events.HistorySync{Data: nil})

	if len(ing.got) != 0 {
		t.Errorf("ingested %d events, want 0", len(ing.got))
	}
}

func TestResolveAddressPassthrough(t *testing.T) {
	s := status.NewSession(bus.New())
	h := NewEventHandler(s, nil, &recordingIngester{}, zap.NewNop())

	jid := types.JID{User: "555123456", Server: types.DefaultUserServer}
	if got := h.resolveAddress(jid); got != "555123456@s.whatsapp.net" {
		t.Errorf("resolveAddress = %q, want passthrough", got)
	}
}

// An unresolvable LID chat must produce an empty address so the ingestion
// filter drops the event instead of keying a lead on an opaque identifier.
func TestResolveAddressUnresolvableLID(t *testing.T) {
	s := status.NewSession(bus.New())
	h := NewEventHandler(s, nil, &recordingIngester{}, zap.NewNop())

	lid := types.JID{User: "3917077286968", Server: types.HiddenUserServer}
	if got := h.resolveAddress(lid); got != "" {
		t.Errorf("resolveAddress(lid, no resolver) = %q, want empty", got)
	}
}

func TestResolveAddressResolvedLID(t *testing.T) {
	s := status.NewSession(bus.New())
	pn := types.JID{User: "555123456", Server: types.DefaultUserServer}
	h := NewEventHandler(s, fixedResolver{pn: pn}, &recordingIngester{}, zap.NewNop())

	lid := types.JID{User: "3917077286968", Server: types.HiddenUserServer}
	if got := h.resolveAddress(lid); got != "555123456@s.whatsapp.net" {
		t.Errorf("resolveAddress(lid) = %q, want resolved phone JID", got)
	}
}

func TestResolveLIDNonLIDPassthrough(t *testing.T) {
	a := &Adapter{}
	regular := types.JID{User: "555123456", Server: types.DefaultUserServer}
	got := a.ResolveLID(context.Background(), regular)
	if got != regular {
		t.Errorf("ResolveLID(regular) = %v, want passthrough", got)
	}

	group := types.JID{User: "120363123456", Server: types.GroupServer}
	got = a.ResolveLID(context.Background(), group)
	if got != group {
		t.Errorf("ResolveLID(group) = %v, want passthrough", got)
	}
}
