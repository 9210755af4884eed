package ingest

// Wire event kinds as tagged by the transport: live pushes vs. backlog replay.
const (
	KindNotify = "notify"
	KindAppend = "append"
)

// WireMessage is one raw inbound event from the transport, before any
// filtering or identity resolution. Raw events reach the engine by direct
// call rather than over the broadcast bus: broadcast delivery may shed load
// per subscriber, while the intake path must see every event.
type WireMessage struct {
	Kind             string // notify (live) or append (historical backlog)
	Address          string
	Body             string
	OccurredAt       int64 // origin timestamp, epoch-ms
	FromSelf         bool
	GroupOrBroadcast bool
	ProtocolControl  bool
	PushName         string
}
