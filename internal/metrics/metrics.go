// Package metrics exposes vote outcome counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "artvote"

// Metrics holds the collectors for the vote service.
type Metrics struct {
	votes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Vote submissions by policy and outcome",
		}, []string{"policy", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_duration_seconds",
			Help:      "Time spent handling a vote submission",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.votes, m.duration)
	return m
}

// ObserveVote records one finished submission. Safe on a nil receiver.
func (m *Metrics) ObserveVote(policy, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(policy, outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
