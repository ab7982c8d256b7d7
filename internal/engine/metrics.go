// Package engine — metrics.go registers the Prometheus metrics shared by
// all tenant engines. A single Metrics instance is created by the Registry
// and handed to every engine it constructs, partitioned by business id.
package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Question outcome label values.
const (
	outcomeOK       = "ok"
	outcomeCacheHit = "cache_hit"
	outcomeDegraded = "degraded"
)

// Metrics holds all Prometheus metrics owned by the engine layer.
// promauto.With(reg) is used so that each call registers into the provided
// registry rather than the global default — this keeps unit tests hermetic.
type Metrics struct {
	// questionsTotal counts completed Ask calls, partitioned by tenant and
	// outcome: "ok", "cache_hit", or "degraded".
	questionsTotal *prometheus.CounterVec

	// questionDurationSeconds records the wall-clock duration of each Ask
	// call from receipt to completion, including the failure path.
	questionDurationSeconds *prometheus.HistogramVec

	// ingestsTotal counts ingestion attempts, partitioned by tenant and
	// result: "ok", "empty", or "error".
	ingestsTotal *prometheus.CounterVec

	// ingestUnitsTotal counts units written to the vector store.
	ingestUnitsTotal *prometheus.CounterVec

	// ingestDurationSeconds records the wall-clock duration of each
	// ingestion, including chunking, embedding, and the index rebuild.
	ingestDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers all engine metrics against reg and returns the
// populated Metrics. Pass a fresh prometheus.Registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		questionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docmind",
			Subsystem: "chat",
			Name:      "questions_total",
			Help:      "Total number of Ask calls completed, partitioned by tenant and outcome.",
		}, []string{"business_id", "outcome"}),

		questionDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docmind",
			Subsystem: "chat",
			Name:      "question_duration_seconds",
			Help:      "Wall-clock duration of Ask calls from receipt to completion.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"business_id"}),

		ingestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docmind",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of ingestion attempts, partitioned by tenant and result.",
		}, []string{"business_id", "result"}),

		ingestUnitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docmind",
			Subsystem: "ingest",
			Name:      "units_total",
			Help:      "Total number of units written to the vector store.",
		}, []string{"business_id"}),

		ingestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docmind",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of document ingestion, including the index rebuild.",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 180, 600},
		}, []string{"business_id"}),
	}
}

// observeQuestion records one completed Ask call. m may be nil when
// metrics are disabled (tests constructing an Engine directly).
func (m *Metrics) observeQuestion(businessID, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.questionsTotal.WithLabelValues(businessID, outcome).Inc()
	m.questionDurationSeconds.WithLabelValues(businessID).Observe(seconds)
}

// observeIngest records one ingestion attempt.
func (m *Metrics) observeIngest(businessID, result string, units int, seconds float64) {
	if m == nil {
		return
	}
	m.ingestsTotal.WithLabelValues(businessID, result).Inc()
	if units > 0 {
		m.ingestUnitsTotal.WithLabelValues(businessID).Add(float64(units))
	}
	m.ingestDurationSeconds.WithLabelValues(businessID).Observe(seconds)
}
