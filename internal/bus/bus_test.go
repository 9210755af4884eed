package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(10)
	defer unsub()

	b.Publish(ContactsChanged{})

	select {
	case evt := <-ch:
		if _, ok := evt.(ContactsChanged); !ok {
			t.Errorf("got %T, want ContactsChanged", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(10)
	unsub()

	b.Publish(ContactsChanged{})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOldestOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Fill buffer, then overflow: the first event must be evicted.
	b.Publish(PipelineError{Stage: "one"})
	b.Publish(PipelineError{Stage: "two"})

	evt := <-ch
	pe, ok := evt.(PipelineError)
	if !ok {
		t.Fatalf("got %T, want PipelineError", evt)
	}
	if pe.Stage != "two" {
		t.Errorf("stage = %q, want two (oldest dropped)", pe.Stage)
	}
}

func TestTypedFanout(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(10)
	defer unsub()

	b.Publish(ConnectionChanged{Connected: true, At: time.Now()})
	b.Publish(ContactsChanged{})

	var gotConn, gotContacts bool
	for i := 0; i < 2; i++ {
		select {
		case evt := <-ch:
			switch evt.(type) {
			case ConnectionChanged:
				gotConn = true
			case ContactsChanged:
				gotContacts = true
			}
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
	if !gotConn || !gotContacts {
		t.Errorf("missing events: conn=%v contacts=%v", gotConn, gotContacts)
	}
}
