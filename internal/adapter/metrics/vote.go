package metrics

import "github.com/prometheus/client_golang/prometheus"

// VoteMetrics holds Prometheus metrics for the vote toggle.
type VoteMetrics struct {
	VotesApplied *prometheus.CounterVec
	VoteFailures *prometheus.CounterVec
}

// NewVoteMetrics creates and registers vote metrics on the given registry.
func NewVoteMetrics(reg prometheus.Registerer) *VoteMetrics {
	m := &VoteMetrics{
		VotesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_applied_total",
			Help:      "Total number of applied vote toggles, by direction (cast, retract).",
		}, []string{"direction"}),
		VoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_failures_total",
			Help:      "Total number of rejected vote toggles, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.VotesApplied, m.VoteFailures)
	return m
}

// ListingMetrics counts listing mutations.
type ListingMetrics struct {
	Mutations *prometheus.CounterVec
}

func NewListingMetrics(reg prometheus.Registerer) *ListingMetrics {
	m := &ListingMetrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listings",
			Name:      "mutations_total",
			Help:      "Total number of listing mutations, by operation and result.",
		}, []string{"operation", "result"}),
	}

	reg.MustRegister(m.Mutations)
	return m
}
