// Package telemetry provides Prometheus metrics for the channel lifecycle
// and its background task runner.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TasksEnqueued     prometheus.Counter
	TasksSucceeded    prometheus.Counter
	TasksFailed       prometheus.Counter
	TaskRetries       prometheus.Counter
	Transitions       *prometheus.CounterVec
	GuardFailures     prometheus.Counter
	Reconciliations   prometheus.Counter
	ReconcileFailures prometheus.Counter
	ChannelsDiscarded prometheus.Counter // zero-duration channels deleted by reconciliation

	// Histograms (seconds)
	ReconcileDuration prometheus.Observer

	// Gauges
	QueueDepthGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{Name: "techshow_tasks_enqueued_total", Help: "Background tasks enqueued"})
		TasksSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "techshow_tasks_succeeded_total", Help: "Background tasks that reported success"})
		TasksFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "techshow_tasks_failed_total", Help: "Background tasks that terminated with a failure"})
		TaskRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "techshow_task_retries_total", Help: "Background task retry reschedules"})
		Transitions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "techshow_channel_transitions_total", Help: "Committed channel lifecycle transitions"}, []string{"transition"})
		GuardFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "techshow_guard_failures_total", Help: "Transitions rejected by a status guard"})
		Reconciliations = promauto.NewCounter(prometheus.CounterOpts{Name: "techshow_reconciliations_total", Help: "Completed duration reconciliations"})
		ReconcileFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "techshow_reconcile_failures_total", Help: "Reconciliation attempts that left the channel in calculating"})
		ChannelsDiscarded = promauto.NewCounter(prometheus.CounterOpts{Name: "techshow_channels_discarded_total", Help: "Channels deleted because reconciliation measured zero duration"})
		ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "techshow_reconcile_duration_seconds", Help: "Duration reconciliation wall time", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "techshow_task_queue_depth", Help: "Tasks waiting for a worker"})
	})
}

// RecordTransition counts a committed lifecycle transition.
func RecordTransition(name string) {
	if Transitions != nil {
		Transitions.WithLabelValues(name).Inc()
	}
}

// SetQueueDepth records the number of tasks waiting for a worker.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// inc guards against use before Init in tests.
func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// CountEnqueued increments the enqueued-task counter.
func CountEnqueued() { inc(TasksEnqueued) }

// CountSucceeded increments the succeeded-task counter.
func CountSucceeded() { inc(TasksSucceeded) }

// CountFailed increments the failed-task counter.
func CountFailed() { inc(TasksFailed) }

// CountRetry increments the task-retry counter.
func CountRetry() { inc(TaskRetries) }

// CountGuardFailure increments the guard-failure counter.
func CountGuardFailure() { inc(GuardFailures) }

// CountReconciliation increments the reconciliation counter.
func CountReconciliation() { inc(Reconciliations) }

// CountReconcileFailure increments the reconcile-failure counter.
func CountReconcileFailure() { inc(ReconcileFailures) }

// CountDiscarded increments the discarded-channel counter.
func CountDiscarded() { inc(ChannelsDiscarded) }
