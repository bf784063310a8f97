package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics records sync protocol outcomes for the /metrics endpoint.
type Metrics struct {
	syncOutcomes *prometheus.CounterVec
}

// NewMetrics registers the sync counters on the provided registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		syncOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskpad",
			Subsystem: "sync",
			Name:      "requests_total",
			Help:      "Sync requests by outcome (synced, conflict, error).",
		}, []string{"outcome"}),
	}
	if registerer != nil {
		registerer.MustRegister(metrics.syncOutcomes)
	}
	return metrics
}

// ObserveSync counts one sync request outcome. Safe on a nil receiver so the
// router can run without metrics wired.
func (m *Metrics) ObserveSync(outcome string) {
	if m == nil {
		return
	}
	m.syncOutcomes.WithLabelValues(outcome).Inc()
}
