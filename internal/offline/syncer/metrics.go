package syncer

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	passes       *prometheus.CounterVec
	records      *prometheus.CounterVec
	passDuration prometheus.Histogram
	pending      prometheus.Gauge
	swept        prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fittrack",
			Subsystem: "agent_sync",
			Name:      "passes_total",
			Help:      "Sync triggers, labeled by outcome (completed or the skip reason).",
		}, []string{"outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fittrack",
			Subsystem: "agent_sync",
			Name:      "records_total",
			Help:      "Records sent to the reconciliation endpoint, labeled by result.",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fittrack",
			Subsystem: "agent_sync",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of completed sync passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fittrack",
			Subsystem: "agent_sync",
			Name:      "pending_records",
			Help:      "Records in the local queue after the last pass.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fittrack",
			Subsystem: "agent_sync",
			Name:      "records_expired_total",
			Help:      "Records removed by the retention sweep.",
		}),
	}
}

func (m *metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(m.passes, m.records, m.passDuration, m.pending, m.swept)
}

func (m *metrics) observe(res Result) {
	if !res.Ran() {
		m.passes.WithLabelValues(string(res.Skipped)).Inc()
		return
	}
	m.passes.WithLabelValues("completed").Inc()
	m.passDuration.Observe(res.Duration.Seconds())
	m.records.WithLabelValues("synced").Add(float64(res.SyncedCount))
	for _, e := range res.Errors {
		m.records.WithLabelValues(string(e.Kind)).Inc()
	}
}
