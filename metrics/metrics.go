package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ListingsProcessedTotal counts evaluated listings by envelope category.
	ListingsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lotfinder",
		Subsystem: "pipeline",
		Name:      "listings_processed_total",
		Help:      "Total number of listings evaluated by the valuation engine, labeled by envelope category.",
	}, []string{"category"})

	// ListingsRelevantTotal counts envelopes that cleared the margin threshold.
	ListingsRelevantTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lotfinder",
		Subsystem: "pipeline",
		Name:      "listings_relevant_total",
		Help:      "Total number of listings the engine marked relevant.",
	})

	// SyntheticListingsTotal counts fallback listings injected when the source was unreachable.
	SyntheticListingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lotfinder",
		Subsystem: "pipeline",
		Name:      "synthetic_listings_total",
		Help:      "Total number of synthesized fallback listings fed through the pipeline.",
	})

	// FetchErrorsTotal counts failed per-term listing fetches.
	FetchErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lotfinder",
		Subsystem: "pipeline",
		Name:      "fetch_errors_total",
		Help:      "Total number of per-term listing source fetch failures.",
	})

	// FeedbackVotesTotal counts ingested feedback votes by direction.
	FeedbackVotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lotfinder",
		Subsystem: "pipeline",
		Name:      "feedback_votes_total",
		Help:      "Total number of feedback votes recorded, labeled by direction.",
	}, []string{"direction"})

	// PublishErrorsTotal counts failed envelope publishes.
	PublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lotfinder",
		Subsystem: "pipeline",
		Name:      "publish_errors_total",
		Help:      "Total number of failed decision envelope publishes.",
	})

	// EvaluateDurationSeconds is the time to evaluate one listing end to end.
	EvaluateDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lotfinder",
		Subsystem: "pipeline",
		Name:      "evaluate_duration_seconds",
		Help:      "End-to-end time to classify and score a single listing.",
		// Coarse buckets; the classifier back-off dominates the tail.
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	})
)

// Register registers pipeline metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ListingsProcessedTotal,
			ListingsRelevantTotal,
			SyntheticListingsTotal,
			FetchErrorsTotal,
			FeedbackVotesTotal,
			PublishErrorsTotal,
			EvaluateDurationSeconds,
		)
	})
}
