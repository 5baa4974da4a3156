package aggregate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/coachcontext/internal/domain"
)

var (
	aggregationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coach_context",
		Subsystem: "aggregate",
		Name:      "duration_seconds",
		Help:      "Time spent fanning out to every source and merging the snapshot.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	aggregationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach_context",
		Subsystem: "aggregate",
		Name:      "aggregations_total",
		Help:      "Number of aggregations grouped by outcome (complete, partial, failed).",
	}, []string{"outcome"})

	adapterFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach_context",
		Subsystem: "aggregate",
		Name:      "adapter_failures_total",
		Help:      "Number of adapter calls that failed or timed out, labeled by source.",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(aggregationDuration, aggregationsCounter, adapterFailureCounter)
}

func recordAdapterFailure(source domain.Source) {
	adapterFailureCounter.WithLabelValues(string(source)).Inc()
}

func observeAggregation(elapsed time.Duration, snapshot *domain.Snapshot, err error) {
	aggregationDuration.Observe(elapsed.Seconds())
	aggregationsCounter.WithLabelValues(outcomeLabel(snapshot, err)).Inc()
}

func outcomeLabel(snapshot *domain.Snapshot, err error) string {
	switch {
	case err != nil:
		return "failed"
	case !snapshot.Complete():
		return "partial"
	default:
		return "complete"
	}
}
