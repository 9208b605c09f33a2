package hub

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/feedrelay/feedrelay/internal/event"
)

func ev(id string) event.Event {
	return event.Event{ID: id, Kind: event.KindInsert, Payload: map[string]any{"message": "hello"}}
}

// drain reads up to n events from s with a short deadline.
func drain(t *testing.T, s *Session, n int) []event.Event {
	t.Helper()
	out := make([]event.Event, 0, n)
	for len(out) < n {
		select {
		case e, ok := <-s.Events():
			if !ok {
				t.Fatalf("queue closed after %d events, want %d", len(out), n)
			}
			out = append(out, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events, want %d", len(out), n)
		}
	}
	return out
}

func TestSubscribe_StartsConnecting(t *testing.T) {
	h := New(4)
	s, err := h.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if s.State() != StateConnecting {
		t.Errorf("State: got %v, want connecting", s.State())
	}
	if h.Count() != 1 {
		t.Errorf("Count: got %d, want 1", h.Count())
	}
}

func TestPublish_SkipsConnectingSessions(t *testing.T) {
	h := New(4)
	s, _ := h.Subscribe()

	h.Publish(ev("1"))

	if s.QueueDepth() != 0 {
		t.Errorf("QueueDepth: got %d, want 0 before Activate", s.QueueDepth())
	}
	if s.Dropped() != 0 {
		t.Errorf("Dropped: got %d, want 0", s.Dropped())
	}
}

func TestPublish_TwoActiveSessionsBothReceive(t *testing.T) {
	h := New(4)
	s1, _ := h.Subscribe()
	s2, _ := h.Subscribe()
	s1.Activate()
	s2.Activate()

	h.Publish(ev("1"))

	for i, s := range []*Session{s1, s2} {
		got := drain(t, s, 1)
		if got[0].Payload["message"] != "hello" {
			t.Errorf("session %d: payload %v, want hello", i+1, got[0].Payload)
		}
	}
}

func TestPublish_PerSessionOrderPreserved(t *testing.T) {
	h := New(128)
	s, _ := h.Subscribe()
	s.Activate()

	const n = 100
	for i := 0; i < n; i++ {
		h.Publish(ev(fmt.Sprintf("%03d", i)))
	}

	got := drain(t, s, n)
	for i, e := range got {
		if e.ID != fmt.Sprintf("%03d", i) {
			t.Fatalf("event %d: got ID %s, out of order", i, e.ID)
		}
	}
}

func TestPublish_FullQueueDrainsSessionOnly(t *testing.T) {
	h := New(2)
	slow, _ := h.Subscribe()
	fast, _ := h.Subscribe()
	slow.Activate()
	fast.Activate()

	// Nobody reads slow; its queue (cap 2) overflows on the third event.
	go func() {
		for range fast.Events() { //nolint:revive // drain
		}
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish(ev(fmt.Sprintf("%d", i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow session")
	}

	if slow.State() != StateDraining {
		t.Errorf("slow state: got %v, want draining", slow.State())
	}
	if slow.Dropped() == 0 {
		t.Error("slow Dropped: got 0, want > 0")
	}
	if fast.State() != StateActive {
		t.Errorf("fast state: got %v, want active", fast.State())
	}
	if fast.Dropped() != 0 {
		t.Errorf("fast Dropped: got %d, want 0", fast.Dropped())
	}
}

func TestDraining_NoNewEventsButQueueFlushable(t *testing.T) {
	h := New(1)
	s, _ := h.Subscribe()
	s.Activate()

	h.Publish(ev("kept"))
	h.Publish(ev("dropped")) // overflows, session drains

	if s.State() != StateDraining {
		t.Fatalf("state: got %v, want draining", s.State())
	}

	// The queued event is still deliverable.
	got := drain(t, s, 1)
	if got[0].ID != "kept" {
		t.Errorf("flushed event: got %s, want kept", got[0].ID)
	}

	// New publishes are not accepted while draining.
	h.Publish(ev("late"))
	if s.QueueDepth() != 0 {
		t.Errorf("QueueDepth: got %d, want 0 — draining session accepted an event", s.QueueDepth())
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	h := New(4)
	s, _ := h.Subscribe()
	s.Activate()

	h.Unsubscribe(s)
	h.Unsubscribe(s) // second call must be a no-op
	h.Unsubscribe(nil)

	if h.Count() != 0 {
		t.Errorf("Count: got %d, want 0", h.Count())
	}
	if s.State() != StateClosed {
		t.Errorf("State: got %v, want closed", s.State())
	}
}

func TestUnsubscribe_ClosesQueueAfterBufferedEvents(t *testing.T) {
	h := New(4)
	s, _ := h.Subscribe()
	s.Activate()

	h.Publish(ev("1"))
	h.Publish(ev("2"))
	h.Unsubscribe(s)

	// Buffered events drain first, then the channel reports closed.
	got := drain(t, s, 2)
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("drained: got %s,%s, want 1,2", got[0].ID, got[1].ID)
	}
	if _, ok := <-s.Events(); ok {
		t.Error("queue still open after Unsubscribe and drain")
	}
}

func TestSetAccepting_False_RejectsNewKeepsExisting(t *testing.T) {
	h := New(4)
	s, _ := h.Subscribe()
	s.Activate()

	h.SetAccepting(false)

	if _, err := h.Subscribe(); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("Subscribe: got %v, want ErrNotAccepting", err)
	}

	// Existing session still receives events.
	h.Publish(ev("1"))
	got := drain(t, s, 1)
	if got[0].ID != "1" {
		t.Errorf("existing session: got %s, want 1", got[0].ID)
	}
}

func TestShutdown_ClosesAllSessions(t *testing.T) {
	h := New(4)
	s1, _ := h.Subscribe()
	s2, _ := h.Subscribe()
	s1.Activate()
	s2.Activate()

	h.Shutdown()

	if h.Count() != 0 {
		t.Errorf("Count: got %d, want 0", h.Count())
	}
	for i, s := range []*Session{s1, s2} {
		if _, ok := <-s.Events(); ok {
			t.Errorf("session %d: queue still open after Shutdown", i+1)
		}
	}
	if _, err := h.Subscribe(); !errors.Is(err, ErrNotAccepting) {
		t.Errorf("Subscribe after Shutdown: got %v, want ErrNotAccepting", err)
	}
}

func TestStats_ReportsDropsAndDepth(t *testing.T) {
	h := New(1)
	s, _ := h.Subscribe()
	s.Activate()

	h.Publish(ev("1"))
	h.Publish(ev("2")) // dropped

	stats := h.Stats()
	if len(stats) != 1 {
		t.Fatalf("Stats: got %d entries, want 1", len(stats))
	}
	st := stats[0]
	if st.ID != s.ID() {
		t.Errorf("ID mismatch")
	}
	if st.Dropped != 1 {
		t.Errorf("Dropped: got %d, want 1", st.Dropped)
	}
	if st.QueueDepth != 1 {
		t.Errorf("QueueDepth: got %d, want 1", st.QueueDepth)
	}
	if st.StateName != "draining" {
		t.Errorf("StateName: got %q, want draining", st.StateName)
	}
	if h.TotalDropped() != 1 {
		t.Errorf("TotalDropped: got %d, want 1", h.TotalDropped())
	}
	if h.Published() != 2 {
		t.Errorf("Published: got %d, want 2", h.Published())
	}
}
