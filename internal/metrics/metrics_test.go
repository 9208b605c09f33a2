package metrics

import (
	"testing"

	"github.com/feedrelay/feedrelay/internal/event"
	"github.com/feedrelay/feedrelay/internal/hub"
	"github.com/feedrelay/feedrelay/internal/relay"
)

type fakeRelay struct {
	state   relay.State
	retries uint64
}

func (f *fakeRelay) State() relay.State { return f.state }
func (f *fakeRelay) Retries() uint64    { return f.retries }

func gatherValue(t *testing.T, r *Registry, name string) float64 {
	t.Helper()
	families, err := r.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		if g := m.GetGauge(); g != nil {
			return g.GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCollectors_ReadLiveValues(t *testing.T) {
	h := hub.New(1)
	rs := &fakeRelay{state: relay.StateRunning, retries: 3}

	r, err := New(h, rs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s, _ := h.Subscribe()
	s.Activate()
	h.Publish(event.Event{ID: "1", Kind: event.KindInsert})
	h.Publish(event.Event{ID: "2", Kind: event.KindInsert}) // dropped, queue cap 1

	cases := []struct {
		name string
		want float64
	}{
		{"feedrelay_events_published_total", 2},
		{"feedrelay_events_dropped_total", 1},
		{"feedrelay_reader_retries_total", 3},
		{"feedrelay_sessions", 1},
		{"feedrelay_controller_state", float64(relay.StateRunning)},
	}
	for _, tc := range cases {
		if got := gatherValue(t, r, tc.name); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
