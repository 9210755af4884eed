package ingest

import "sync"

// KeyedLock is an arena of per-key mutexes: operations for one contact are
// serialized while unrelated contacts proceed concurrently. Entries are
// reference-counted and removed when released, so the arena stays bounded by
// the number of in-flight events.
type KeyedLock struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLock creates an empty lock arena.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{held: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key, blocking if another goroutine holds it.
// The returned function releases it.
func (k *KeyedLock) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.held[key]
	if !ok {
		e = &lockEntry{}
		k.held[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.held, key)
		}
		k.mu.Unlock()
	}
}

// lockKey derives the serialization key for a canonical phone. Two phones that
// differ only by country code or trunk prefix must serialize on the same key,
// since the lenient candidate matching can resolve them to the same lead; the
// trailing digits are the stable part.
func lockKey(phone string) string {
	const tail = 7
	if len(phone) <= tail {
		return phone
	}
	return phone[len(phone)-tail:]
}
