package notify

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach_context",
		Subsystem: "notify",
		Name:      "events_published_total",
		Help:      "Number of context events written to Kafka.",
	}, []string{"topic"})

	publishErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach_context",
		Subsystem: "notify",
		Name:      "publish_errors_total",
		Help:      "Number of context events that could not be framed or written.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(publishedCounter, publishErrorCounter)
}

func recordPublished(topic string) {
	publishedCounter.WithLabelValues(topic).Inc()
}

func recordPublishError(topic string) {
	publishErrorCounter.WithLabelValues(topic).Inc()
}
