package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	snapshotReadyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coach_context",
		Subsystem: "snapshot",
		Name:      "last_snapshot_assembled_timestamp_seconds",
		Help:      "Unix timestamp of the most recent snapshot accepted into a session cache.",
	})

	sessionStartedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coach_context",
		Subsystem: "session",
		Name:      "last_session_started_timestamp_seconds",
		Help:      "Unix timestamp of the most recent session start.",
	})
)

func init() {
	prometheus.MustRegister(snapshotReadyGauge, sessionStartedGauge)
}

// RecordSnapshotReady updates the snapshot watermark.
func RecordSnapshotReady(ts time.Time) {
	if ts.IsZero() {
		return
	}
	snapshotReadyGauge.Set(float64(ts.Unix()))
}

// RecordSessionStarted updates the session watermark.
func RecordSessionStarted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	sessionStartedGauge.Set(float64(ts.Unix()))
}
