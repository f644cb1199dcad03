// Package metrics exposes prometheus metrics for scoring and indexing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-document scoring outcomes.
const (
	OutcomeScored        = "scored"
	OutcomeAbsent        = "absent"
	OutcomeDecodeFailure = "decode_failure"
	OutcomeAccessorError = "accessor_error"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	documentsScored  *prometheus.CounterVec
	documentsIndexed prometheus.Counter
	searchDuration   prometheus.Histogram
	configErrors     prometheus.Counter
}

// New registers the collectors with reg. Returns nil when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	return &Metrics{
		documentsScored: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "vectorscore",
			Name:      "documents_scored_total",
			Help:      "Candidate documents scored, by outcome",
		}, []string{"outcome"}),
		documentsIndexed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "vectorscore",
			Name:      "documents_indexed_total",
			Help:      "Documents written to storage and the keyword index",
		}),
		searchDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "vectorscore",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency",
			Buckets:   prometheus.DefBuckets,
		}),
		configErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "vectorscore",
			Name:      "script_compile_errors_total",
			Help:      "Search requests rejected at script compilation",
		}),
	}
}

// ObserveOutcomes adds per-outcome document counts from one search.
func (m *Metrics) ObserveOutcomes(counts map[string]int) {
	if m == nil {
		return
	}
	for outcome, n := range counts {
		m.documentsScored.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveSearch records one search latency.
func (m *Metrics) ObserveSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.Observe(d.Seconds())
}

// IncIndexed counts one indexed document.
func (m *Metrics) IncIndexed() {
	if m == nil {
		return
	}
	m.documentsIndexed.Inc()
}

// IncConfigErrors counts one rejected script.
func (m *Metrics) IncConfigErrors() {
	if m == nil {
		return
	}
	m.configErrors.Inc()
}
