package hub

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/feedrelay/feedrelay/internal/event"
)

// SessionState is the lifecycle state of a subscriber session.
type SessionState int32

const (
	// StateConnecting: created, handshake not yet complete. Events are
	// not delivered.
	StateConnecting SessionState = iota

	// StateActive: receiving events.
	StateActive

	// StateDraining: queue overflowed. No new events are accepted; the
	// transport still flushes what is queued.
	StateDraining

	// StateClosed: unsubscribed. Resources released once the queue is
	// drained.
	StateClosed
)

// String returns the lowercase state name used in logs and the status API.
func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is one subscriber connection registered with the Hub.
// Sessions are created by Hub.Subscribe and destroyed by Hub.Unsubscribe.
type Session struct {
	id      uuid.UUID
	queue   chan event.Event
	state   atomic.Int32
	dropped atomic.Uint64
}

func newSession(capacity int) *Session {
	return &Session{
		id:    uuid.New(),
		queue: make(chan event.Event, capacity),
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Events is the session's outbound queue. It is closed by
// Hub.Unsubscribe; the transport should drain it until closed.
func (s *Session) Events() <-chan event.Event { return s.queue }

// Activate marks the handshake complete. Only Connecting sessions
// transition; calling Activate on a Draining or Closed session is a no-op.
func (s *Session) Activate() {
	s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Dropped returns how many events were dropped for this session because
// its queue was full.
func (s *Session) Dropped() uint64 { return s.dropped.Load() }

// QueueDepth returns the number of events currently queued.
func (s *Session) QueueDepth() int { return len(s.queue) }
