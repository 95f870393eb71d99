package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracer resolves the global provider on every call so a provider installed
// after package init is honored.
func tracer() trace.Tracer {
	return otel.Tracer("category-tree/service")
}

// registry holds every collector of this package. It is separate from the
// default registry so a pushed snapshot carries only tree metrics.
var registry = prometheus.NewRegistry()

// Metrics returns the gatherer for the tree metrics.
func Metrics() prometheus.Gatherer {
	return registry
}

var (
	factory = promauto.With(registry)

	reparentOperations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "category_tree_reparent_operations_total",
		Help: "Re-parent operations by outcome",
	}, []string{"outcome"})

	reparentDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "category_tree_reparent_duration_seconds",
		Help:    "Time to validate and apply one re-parent operation",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	}, []string{"outcome"})

	reparentDescendants = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "category_tree_reparent_descendants",
		Help:    "Descendants rewritten by one committed re-parent",
		Buckets: []float64{0, 1, 10, 100, 1000, 10000},
	})

	reparentRejections = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "category_tree_reparent_rejections_total",
		Help: "Re-parent requests refused by validation, by first issue code",
	}, []string{"code"})

	statisticsRefreshes = factory.NewCounter(prometheus.CounterOpts{
		Name: "category_tree_statistics_refreshes_total",
		Help: "Node statistics recomputations written",
	})

	batchRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "category_tree_batch_requests_total",
		Help: "Batch re-parent requests by outcome",
	}, []string{"outcome"})
)

const (
	outcomeCommitted = "committed"
	outcomeDryRun    = "dry_run"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
)
