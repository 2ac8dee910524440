package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bioexplorer"

// Query outcomes.
const (
	OutcomeOK              = "ok"
	OutcomeInvalid         = "invalid"
	OutcomeGenerationError = "generation_error"
	OutcomeError           = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	Queries           *prometheus.CounterVec
	QueryDuration     *prometheus.HistogramVec
	RetrievedChunks   prometheus.Histogram
	RetrievalDegraded *prometheus.CounterVec
	GenerationErrors  prometheus.Counter
	IngestedDocuments prometheus.Counter
	IngestedChunks    prometheus.Counter
	SkippedDocuments  prometheus.Counter
}

// New registers all collectors on a fresh registry, so several instances
// can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Answered questions by role and outcome.",
		}, []string{"role", "outcome"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_stage_seconds",
			Help:      "Latency of each query stage.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		RetrievedChunks: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_chunks",
			Help:      "Number of chunks retrieved per question.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		RetrievalDegraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_degraded_total",
			Help:      "Questions answered with an empty context because retrieval failed.",
		}, []string{"stage"}),
		GenerationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_errors_total",
			Help:      "Failed language model calls.",
		}),
		IngestedDocuments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_documents_total",
			Help:      "Documents parsed during ingestion.",
		}),
		IngestedChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Chunks embedded and indexed during ingestion.",
		}),
		SkippedDocuments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_documents_total",
			Help:      "Documents skipped during ingestion because they could not be parsed.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry in the text exposition format, for batch
// runs picked up by the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
