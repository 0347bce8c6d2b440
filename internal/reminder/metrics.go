package reminder

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// schedulerMetrics holds Prometheus metrics for the reminder scheduler.
type schedulerMetrics struct {
	checks        prometheus.Counter
	fired         prometheus.Counter
	skipped       *prometheus.CounterVec
	activeWatches prometheus.Gauge
}

// Singleton pattern for metrics (avoid double registration in tests).
var (
	metricsInstance *schedulerMetrics
	metricsOnce     sync.Once
	defaultRegistry = prometheus.DefaultRegisterer
)

func newSchedulerMetrics() *schedulerMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &schedulerMetrics{
			checks: promauto.With(defaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "reminder_checks_total",
				Help: "Total number of reminder poll checks",
			}),
			fired: promauto.With(defaultRegistry).NewCounter(prometheus.CounterOpts{
				Name: "reminders_fired_total",
				Help: "Total number of reminder notifications fired",
			}),
			skipped: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "reminders_skipped_total",
				Help: "Total number of due reminders skipped, by reason",
			}, []string{"reason"}),
			activeWatches: promauto.With(defaultRegistry).NewGauge(prometheus.GaugeOpts{
				Name: "reminder_active_watches",
				Help: "Current number of running per-trip reminder polls",
			}),
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
