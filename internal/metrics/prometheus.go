package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callmarket"

// Metrics records clearing outcomes.
type Metrics struct {
	rounds       *prometheus.CounterVec
	passes       prometheus.Histogram
	forcedOrders prometheus.Counter
	volume       prometheus.Counter
}

// New creates the clearing instruments and registers them on reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_cleared_total",
			Help:      "Rounds cleared, by loop outcome and price discovery principle",
		}, []string{"outcome", "principle"}),
		passes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clearing_passes",
			Help:      "Clearing passes needed per round",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		forcedOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_orders_total",
			Help:      "Buy-in and sell-off orders committed",
		}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_total",
			Help:      "Shares exchanged",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.rounds, m.passes, m.forcedOrders, m.volume} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRound records a committed round.
func (m *Metrics) ObserveRound(outcome, principle string, passes, forced int, volume int64) {
	m.rounds.WithLabelValues(outcome, principle).Inc()
	m.passes.Observe(float64(passes))
	m.forcedOrders.Add(float64(forced))
	m.volume.Add(float64(volume))
}
