package turnstyle

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks the traffic through one or more turnstyles.
type Metrics struct {
	Joined     prometheus.Counter
	Admitted   prometheus.Counter
	EmptyTurns prometheus.Counter
	Released   prometheus.Counter
	Pending    prometheus.Gauge
}

// NewMetrics creates the collectors. The name is used as a constant "gate" label
// so that several turnstyles can be registered side by side.
func NewMetrics(name string) *Metrics {
	labels := prometheus.Labels{"gate": name}
	return &Metrics{
		Joined: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "turnstyle_joined_total",
			Help:        "Number of participants that joined the queue",
			ConstLabels: labels,
		}),
		Admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "turnstyle_admitted_total",
			Help:        "Number of participants admitted by a turn",
			ConstLabels: labels,
		}),
		EmptyTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "turnstyle_empty_turns_total",
			Help:        "Number of turns that found the queue empty",
			ConstLabels: labels,
		}),
		Released: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "turnstyle_released_total",
			Help:        "Number of participants released by teardown",
			ConstLabels: labels,
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "turnstyle_pending",
			Help:        "Number of participants waiting for their turn",
			ConstLabels: labels,
		}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Joined, m.Admitted, m.EmptyTurns, m.Released, m.Pending} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
