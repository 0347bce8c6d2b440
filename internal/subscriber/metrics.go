package subscriber

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// subscriberMetrics holds Prometheus metrics for the collection watchers.
type subscriberMetrics struct {
	appliedPushes   *prometheus.CounterVec
	discardedPushes *prometheus.CounterVec
	sourceErrors    *prometheus.CounterVec
}

// Singleton pattern for metrics (avoid double registration in tests).
var (
	metricsInstance *subscriberMetrics
	metricsOnce     sync.Once
	defaultRegistry = prometheus.DefaultRegisterer
)

func newSubscriberMetrics() *subscriberMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &subscriberMetrics{
			appliedPushes: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "collection_pushes_applied_total",
				Help: "Total number of full-replace pushes applied, by collection",
			}, []string{"collection"}),
			discardedPushes: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "collection_pushes_discarded_total",
				Help: "Total number of stale pushes discarded after a scope switch, by collection",
			}, []string{"collection"}),
			sourceErrors: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "collection_source_errors_total",
				Help: "Total number of subscription-level source errors, by collection",
			}, []string{"collection"}),
		}
	})
	return metricsInstance
}

// resetMetricsForTesting resets the metrics singleton for test isolation.
func resetMetricsForTesting() {
	reg := prometheus.NewRegistry()
	defaultRegistry = reg
	metricsInstance = nil
	metricsOnce = sync.Once{}
}
