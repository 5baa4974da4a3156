package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach_context",
		Subsystem: "cache",
		Name:      "state_transitions_total",
		Help:      "Number of cache state transitions grouped by target state.",
	}, []string{"state"})

	coalescedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_context",
		Subsystem: "cache",
		Name:      "coalesced_requests_total",
		Help:      "Number of load or refresh requests that attached to an in-flight aggregation.",
	})

	staleCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_context",
		Subsystem: "cache",
		Name:      "stale_results_discarded_total",
		Help:      "Number of aggregation results dropped because their session or flight was superseded.",
	})

	evictedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_context",
		Subsystem: "cache",
		Name:      "idle_clients_evicted_total",
		Help:      "Number of client caches dropped by the registry after sitting idle.",
	})

	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coach_context",
		Subsystem: "cache",
		Name:      "sessions_active",
		Help:      "Number of session slots currently open.",
	})
)

func init() {
	prometheus.MustRegister(transitionCounter, coalescedCounter, staleCounter, evictedCounter, sessionsActive)
}

func recordTransition(status Status) {
	transitionCounter.WithLabelValues(string(status)).Inc()
}
