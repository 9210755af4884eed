// Package status tracks the daemon's runtime state and the ingestion
// session's connection facts. The session value is passed explicitly into the
// ingestion filter so readiness gating never reads ambient global state. It is
// not persisted; a restart begins with a zero connected-at.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gfranca/leadflow/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Error},
	Connecting:   {Ready, AuthRequired, Reconnecting, Error},
	Ready:        {Reconnecting, AuthRequired, Error},
	Reconnecting: {Connecting, Ready, Error},
	Error:        {Booting},
}

// Session holds the ingestion session: the daemon state, the timestamp of the
// last successful transport handshake, and the reconnect counter.
type Session struct {
	mu                sync.RWMutex
	current           State
	connectedAt       time.Time
	reconnectAttempts int
	bus               *bus.Bus
}

// NewSession creates a session starting in the Booting state with no
// connection established.
func NewSession(b *bus.Bus) *Session {
	return &Session{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current daemon state.
func (s *Session) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// ConnectedAt returns the timestamp of the last successful handshake, or the
// zero time if the transport has never connected this process lifetime.
func (s *Session) ConnectedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectedAt
}

// ReconnectAttempts returns how many times the transport has dropped and
// re-dialed since process start.
func (s *Session) ReconnectAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnectAttempts
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed := validTransitions[s.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", s.current, to)
	}
	s.current = to
	return nil
}

// MarkConnected records a successful transport handshake: the state becomes
// Ready and connectedAt is stamped. Every (re)connect refreshes the stamp.
func (s *Session) MarkConnected(at time.Time) {
	s.mu.Lock()
	s.current = Ready
	s.connectedAt = at
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(bus.ConnectionChanged{Connected: true, At: at})
	}
}

// MarkDisconnected records a dropped transport connection and counts the
// reconnect attempt that follows.
func (s *Session) MarkDisconnected(at time.Time) {
	s.mu.Lock()
	s.current = Reconnecting
	s.reconnectAttempts++
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(bus.ConnectionChanged{Connected: false, At: at})
	}
}
