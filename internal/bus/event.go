package bus

import (
	"time"

	"github.com/gfranca/leadflow/internal/store"
)

// Event is implemented by every payload published on the bus. The closed set
// of concrete types makes subscriber contracts checkable at compile time; a
// subscriber type-switches instead of matching string event names.
type Event interface {
	event()
}

// NewMessage announces an accepted, persisted message along with the updated
// lead it belongs to.
type NewMessage struct {
	Lead    store.Lead
	Message store.Message
}

// ContactsChanged prompts subscribers to re-fetch the lead list. No payload.
type ContactsChanged struct{}

// ConnectionChanged reports a transport connect or disconnect.
type ConnectionChanged struct {
	Connected bool
	At        time.Time
}

// PipelineError surfaces a persistent ingestion failure without crashing the
// pipeline.
type PipelineError struct {
	Stage string
	Err   error
}

func (NewMessage) event()        {}
func (ContactsChanged) event()   {}
func (ConnectionChanged) event() {}
func (PipelineError) event()     {}
