package ingest

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	k := NewKeyedLock()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("555123456")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50 (lost update)", counter)
	}
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	k := NewKeyedLock()

	unlockA := k.Lock("111234567")
	defer unlockA()

	// A different contact must not be blocked.
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("999888777")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated key blocked by held lock")
	}
}

func TestKeyedLockArenaDrains(t *testing.T) {
	k := NewKeyedLock()
	unlock := k.Lock("555123456")
	unlock()

	k.mu.Lock()
	n := len(k.held)
	k.mu.Unlock()
	if n != 0 {
		t.Errorf("arena holds %d entries after release, want 0", n)
	}
}

func TestLockKeyCollapsesPrefixVariants(t *testing.T) {
	// Country-code and trunk-prefix variants of one number must serialize on
	// the same key.
	if lockKey("0555123456") != lockKey("555123456") {
		t.Error("trunk-prefixed variant got a different lock key")
	}
	if lockKey("490555123456") != lockKey("0555123456") {
		t.Error("country-coded variant got a different lock key")
	}
	if lockKey("1234567") != "1234567" {
		t.Error("short phone should be its own key")
	}
}
