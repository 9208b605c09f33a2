package hub

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/feedrelay/feedrelay/internal/event"
)

// DefaultQueueCapacity is the per-session outbound queue depth used when
// the config does not override it.
const DefaultQueueCapacity = 256

// ErrNotAccepting is returned by Subscribe once the hub has stopped
// taking new subscribers (relay failed or shutting down). Existing
// sessions are unaffected.
var ErrNotAccepting = errors.New("hub: not accepting new subscribers")

// SessionStat is a read-only snapshot of one session, for the status API.
type SessionStat struct {
	ID         uuid.UUID    `json:"id"`
	State      SessionState `json:"-"`
	StateName  string       `json:"state"`
	QueueDepth int          `json:"queue_depth"`
	Dropped    uint64       `json:"dropped"`
}

// Hub manages the set of subscriber sessions and fans published events out
// to all of them. Safe for concurrent use; Publish may race with
// Subscribe, Unsubscribe and Shutdown.
type Hub struct {
	capacity int

	mu        sync.RWMutex
	sessions  map[uuid.UUID]*Session
	accepting bool

	published    atomic.Uint64
	totalDropped atomic.Uint64
}

// New creates a Hub with the given per-session queue capacity.
// capacity <= 0 selects DefaultQueueCapacity.
func New(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Hub{
		capacity:  capacity,
		sessions:  make(map[uuid.UUID]*Session),
		accepting: true,
	}
}

// Subscribe registers a new session in the Connecting state. The caller
// must Activate it once its handshake completes and must eventually call
// Unsubscribe.
func (h *Hub) Subscribe() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.accepting {
		return nil, ErrNotAccepting
	}

	s := newSession(h.capacity)
	h.sessions[s.id] = s
	return s, nil
}

// Unsubscribe removes the session and closes its queue so the transport
// drains what remains and stops. Idempotent: unsubscribing an unknown or
// already removed session is a no-op.
func (h *Hub) Unsubscribe(s *Session) {
	if s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(s)
}

// remove must be called with h.mu held for writing.
func (h *Hub) remove(s *Session) {
	if _, ok := h.sessions[s.id]; !ok {
		return
	}
	delete(h.sessions, s.id)
	s.state.Store(int32(StateClosed))
	// Publish holds the read lock while enqueuing, so no send can race
	// with this close.
	close(s.queue)
}

// Publish enqueues ev on every Active session. A full queue moves that
// session to Draining and drops the event for it alone; Publish itself
// never blocks.
func (h *Hub) Publish(ev event.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.published.Add(1)

	for _, s := range h.sessions {
		if s.State() != StateActive {
			continue
		}
		select {
		case s.queue <- ev:
		default:
			s.state.CompareAndSwap(int32(StateActive), int32(StateDraining))
			s.dropped.Add(1)
			h.totalDropped.Add(1)
			slog.Warn("hub: session queue full — draining",
				"session", s.id,
				"dropped", s.Dropped(),
			)
		}
	}
}

// SetAccepting controls whether Subscribe admits new sessions. Existing
// sessions are never touched.
func (h *Hub) SetAccepting(ok bool) {
	h.mu.Lock()
	h.accepting = ok
	h.mu.Unlock()
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Published returns the total number of events published to the hub.
func (h *Hub) Published() uint64 { return h.published.Load() }

// TotalDropped returns the total number of events dropped across all
// sessions since the hub was created, including closed ones.
func (h *Hub) TotalDropped() uint64 { return h.totalDropped.Load() }

// Stats returns a snapshot of every registered session.
func (h *Hub) Stats() []SessionStat {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]SessionStat, 0, len(h.sessions))
	for _, s := range h.sessions {
		st := s.State()
		out = append(out, SessionStat{
			ID:         s.id,
			State:      st,
			StateName:  st.String(),
			QueueDepth: s.QueueDepth(),
			Dropped:    s.Dropped(),
		})
	}
	return out
}

// Shutdown stops accepting subscribers and unsubscribes every session.
// Queues are closed, so transports flush what is buffered and exit.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.accepting = false
	for _, s := range h.sessions {
		h.remove(s)
	}
}
