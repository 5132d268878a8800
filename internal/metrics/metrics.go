// Package metrics exposes Prometheus counters for summarization, indexing and jobs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sha1n/relic-digest/internal/domain"
	"github.com/sha1n/relic-digest/internal/walker"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is a valid no-op.
//
// Metrics:
//   - relic_digest_files_summarized_total{result} - files by outcome
//   - relic_digest_summary_fallbacks_total - requests retried on the fallback model
//   - relic_digest_index_batches_total{result} - index batches by ok/error
//   - relic_digest_index_documents_total - documents in successful batches
//   - relic_digest_jobs_total{status} - jobs by terminal status
type Metrics struct {
	FilesSummarized *prometheus.CounterVec
	Fallbacks       prometheus.Counter
	IndexBatches    *prometheus.CounterVec
	IndexDocuments  prometheus.Counter
	Jobs            *prometheus.CounterVec
}

// New creates and registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FilesSummarized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relic_digest_files_summarized_total",
				Help: "Total number of files processed, by outcome",
			},
			[]string{"result"},
		),
		Fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "relic_digest_summary_fallbacks_total",
			Help: "Total number of summarization requests retried on the fallback model",
		}),
		IndexBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relic_digest_index_batches_total",
				Help: "Total number of index batches submitted, by result",
			},
			[]string{"result"}, // "ok" or "error"
		),
		IndexDocuments: factory.NewCounter(prometheus.CounterOpts{
			Name: "relic_digest_index_documents_total",
			Help: "Total number of documents indexed",
		}),
		Jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relic_digest_jobs_total",
				Help: "Total number of finished jobs, by status",
			},
			[]string{"status"},
		),
	}
}

// FileSummarized implements walker.Observer.
func (m *Metrics) FileSummarized(outcome walker.FileOutcome) {
	if m == nil {
		return
	}
	m.FilesSummarized.WithLabelValues(string(outcome)).Inc()
}

// IndexBatch implements index.Observer.
func (m *Metrics) IndexBatch(size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.IndexBatches.WithLabelValues("error").Inc()
		return
	}
	m.IndexBatches.WithLabelValues("ok").Inc()
	m.IndexDocuments.Add(float64(size))
}

// SummaryFallback implements summarize.Observer.
func (m *Metrics) SummaryFallback() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}

// JobFinished implements jobs.Observer.
func (m *Metrics) JobFinished(status domain.JobStatus) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(string(status)).Inc()
}
