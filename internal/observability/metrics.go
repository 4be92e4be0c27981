package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncRecordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "sync",
		Name:      "records_total",
		Help:      "Workouts received by the sync endpoint, labeled by outcome (stored, replayed, failed).",
	}, []string{"outcome"})

	syncBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fittrack",
		Subsystem: "sync",
		Name:      "batch_size",
		Help:      "Number of workouts per accepted sync request.",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 40, 50},
	})

	syncRequestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "sync",
		Name:      "requests_total",
		Help:      "Sync requests, labeled by HTTP status class.",
	}, []string{"code"})

	workoutPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "persistence",
		Name:      "last_workout_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout persisted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(syncRecordsCounter, syncBatchSize, syncRequestsCounter, workoutPersistGauge)
}

// RecordSyncBatch counts the per-record outcome of an accepted batch.
func RecordSyncBatch(size, stored, replayed, failed int) {
	syncBatchSize.Observe(float64(size))
	syncRecordsCounter.WithLabelValues("stored").Add(float64(stored))
	syncRecordsCounter.WithLabelValues("replayed").Add(float64(replayed))
	syncRecordsCounter.WithLabelValues("failed").Add(float64(failed))
}

// RecordSyncRequest counts a sync request by response status.
func RecordSyncRequest(status int) {
	syncRequestsCounter.WithLabelValues(statusLabel(status)).Inc()
}

// RecordWorkoutPersisted updates the persistence watermark gauge.
func RecordWorkoutPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	workoutPersistGauge.Set(float64(ts.Unix()))
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
