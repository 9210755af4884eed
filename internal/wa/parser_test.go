package wa

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/gfranca/leadflow/internal/ingest"
)

func TestExtractTextBody(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello"},
		{"extended text", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")}}, "extended"},
		{"image (no text)", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, ""},
		{"empty conversation", &waE2E.Message{Conversation: proto.String("")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTextBody(tt.msg)
			if got != tt.want {
				t.Errorf("extractTextBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsProtocolControl(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want bool
	}{
		{"nil", nil, true},
		{"protocol message", &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{}}, true},
		{"reaction", &waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{}}, true},
		{"sender key distribution", &waE2E.Message{SenderKeyDistributionMessage: &waE2E.SenderKeyDistributionMessage{}}, true},
		{"poll update", &waE2E.Message{PollUpdateMessage: &waE2E.PollUpdateMessage{}}, true},
		{"plain text", &waE2E.Message{Conversation: proto.String("hi")}, false},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isProtocolControl(tt.msg)
			if got != tt.want {
				t.Errorf("isProtocolControl() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsGroupOrBroadcast(t *testing.T) {
	tests := []struct {
		name string
		jid  types.JID
		want bool
	}{
		{"user", types.JID{User: "555123456", Server: types.DefaultUserServer}, false},
		{"group", types.JID{User: "120363123456", Server: types.GroupServer}, true},
		{"broadcast", types.JID{User: "status", Server: types.BroadcastServer}, true},
		{"newsletter", types.JID{User: "120363", Server: types.NewsletterServer}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isGroupOrBroadcast(tt.jid); got != tt.want {
				t.Errorf("isGroupOrBroadcast(%s) = %v, want %v", tt.jid, got, tt.want)
			}
		})
	}
}

func TestParseLiveMessage(t *testing.T) {
	ts := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	evt := &events.Message{
		Info: types.MessageInfo{
			PushName:  "Alice",
			Timestamp: ts,
			MessageSource: types.MessageSource{
				Chat:     types.JID{User: "555123456", Server: types.DefaultUserServer},
				Sender:   types.JID{User: "555123456", Server: types.DefaultUserServer},
				IsFromMe: true,
			},
			ID: "MSG123",
		},
		Message: &waE2E.Message{Conversation: proto.String("hello world")},
	}

	parsed := ParseLiveMessage(evt)

	if parsed.Kind != ingest.KindNotify {
		t.Errorf("Kind = %q, want %q", parsed.Kind, ingest.KindNotify)
	}
	if parsed.Address != "555123456@s.whatsapp.net" {
		t.Errorf("Address = %q, want 555123456@s.whatsapp.net", parsed.Address)
	}
	if parsed.Body != "hello world" {
		t.Errorf("Body = %q, want hello world", parsed.Body)
	}
	if parsed.PushName != "Alice" {
		t.Errorf("PushName = %q, want Alice", parsed.PushName)
	}
	if !parsed.FromSelf {
		t.Error("FromSelf = false, want true")
	}
	if parsed.GroupOrBroadcast {
		t.Error("GroupOrBroadcast = true for direct chat")
	}
	if parsed.ProtocolControl {
		t.Error("ProtocolControl = true for plain text")
	}
	if parsed.OccurredAt != ts.UnixMilli() {
		t.Errorf("OccurredAt = %d, want %d", parsed.OccurredAt, ts.UnixMilli())
	}
}

func TestParseLiveMessageGroupChat(t *testing.T) {
	evt := &events.Message{
		Info: types.MessageInfo{
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "120363123456", Server: types.GroupServer},
				Sender: types.JID{User: "555123456", Server: types.DefaultUserServer},
			},
			ID: "G1",
		},
		Message: &waE2E.Message{Conversation: proto.String("group chatter")},
	}

	parsed := ParseLiveMessage(evt)
	if !parsed.GroupOrBroadcast {
		t.Error("GroupOrBroadcast = false for group chat")
	}
}

func TestHistoryWireMessage(t *testing.T) {
	msg := &waE2E.Message{Conversation: proto.String("from the backlog")}

	wm := historyWireMessage("555123456@s.whatsapp.net", msg, false, 1736942400)

	if wm.Kind != ingest.KindAppend {
		t.Errorf("Kind = %q, want %q", wm.Kind, ingest.KindAppend)
	}
	if wm.OccurredAt != 1736942400000 {
		t.Errorf("OccurredAt = %d, want seconds scaled to millis", wm.OccurredAt)
	}
	if wm.Body != "from the backlog" {
		t.Errorf("Body = %q", wm.Body)
	}
	if wm.FromSelf {
		t.Error("FromSelf = true, want false")
	}
}

func TestHistoryWireMessageGroup(t *testing.T) {
	msg := &waE2E.Message{Conversation: proto.String("x")}

	wm := historyWireMessage("120363123456@g.us", msg, false, 1736942400)
	if !wm.GroupOrBroadcast {
		t.Error("GroupOrBroadcast = false for group backlog entry")
	}
}
