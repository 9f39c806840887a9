package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage label values.
const (
	stageClassify    = "classify"
	stageDenseEmbed  = "dense_embed"
	stageSparseEmbed = "sparse_embed"
	stageFetch       = "fetch"
	stageRerank      = "rerank"
	stageGenerate    = "generate"
)

// Metrics holds the pipeline's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// stageDuration records the latency of each stage, partitioned by stage
	// and outcome ("ok" or "error").
	stageDuration *prometheus.HistogramVec

	// requestsTotal counts completed Chat calls by intent
	// ("recommendation", "conversation", "greeting", "unknown") and outcome.
	requestsTotal *prometheus.CounterVec

	// candidates records how many candidates the index returned per
	// recommendation request, before reranking.
	candidates prometheus.Histogram
}

// NewMetrics registers the pipeline metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cinerag",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each pipeline stage.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage", "outcome"}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinerag",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Completed chat requests, partitioned by intent and outcome.",
		}, []string{"intent", "outcome"}),

		candidates: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cinerag",
			Subsystem: "pipeline",
			Name:      "candidates_retrieved",
			Help:      "Number of candidates returned by the index per recommendation request.",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 300},
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) observeStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome(err)).Observe(d.Seconds())
}

func (m *Metrics) observeRequest(intent string, err error) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(intent, outcome(err)).Inc()
}

func (m *Metrics) observeCandidates(n int) {
	if m == nil {
		return
	}
	m.candidates.Observe(float64(n))
}
