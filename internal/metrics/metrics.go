package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/feedrelay/feedrelay/internal/hub"
	"github.com/feedrelay/feedrelay/internal/relay"
)

const namespace = "feedrelay"

// RelayStatus is the controller-side view the collectors read.
// Satisfied by *relay.Controller.
type RelayStatus interface {
	State() relay.State
	Retries() uint64
}

// Registry owns the Prometheus registry with all relay collectors.
type Registry struct {
	reg *prometheus.Registry
}

// New builds a Registry whose collectors read from h and rs.
func New(h *hub.Hub, rs RelayStatus) (*Registry, error) {
	reg := prometheus.NewRegistry()

	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Normalized change events published to the hub.",
		}, func() float64 { return float64(h.Published()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped across all sessions due to full queues.",
		}, func() float64 { return float64(h.TotalDropped()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reader_retries_total",
			Help:      "Transient upstream failures retried by the reader.",
		}, func() float64 { return float64(rs.Retries()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Currently registered subscriber sessions.",
		}, func() float64 { return float64(h.Count()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_state",
			Help:      "Relay controller state (0 stopped, 1 starting, 2 running, 3 restarting, 4 failed).",
		}, func() float64 { return float64(rs.State()) }),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register collector: %w", err)
		}
	}

	return &Registry{reg: reg}, nil
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
