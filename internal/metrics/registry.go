// Package metrics wraps the Monolith runtime's fixed set of Prometheus
// metrics behind a small typed Registry. Names and semantics are part
// of the external exposition contract and must not drift.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the eight process-wide metrics the scheduler updates
// as tasks move through their lifecycle.
type Registry struct {
	reg *prometheus.Registry

	TasksSubmitted           prometheus.Counter
	TasksCompleted           prometheus.Counter
	TasksFailed              prometheus.Counter
	TasksCancelled           prometheus.Counter
	SchedulerQuantumOverruns prometheus.Counter

	MemoryUsedBytes   prometheus.Gauge
	MemoryRegionCount prometheus.Gauge
	WorkerQueueDepth  prometheus.Gauge
}

// New builds a Registry with every metric registered under a fresh,
// process-local prometheus.Registry (never the global DefaultRegisterer,
// so tests can construct as many independent registries as they like).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monolith_tasks_submitted_total",
			Help: "Total tasks submitted to this process.",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monolith_tasks_completed_total",
			Help: "Total tasks that reached the DONE state.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monolith_tasks_failed_total",
			Help: "Total tasks that reached the FAILED state.",
		}),
		TasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monolith_tasks_cancelled_total",
			Help: "Total tasks that reached the CANCELLED state.",
		}),
		SchedulerQuantumOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monolith_scheduler_quantum_overruns_total",
			Help: "Total scheduler steps whose wall time exceeded quantum_ms.",
		}),
		MemoryUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monolith_memory_used_bytes",
			Help: "Bytes currently allocated in the worker's logical memory pool.",
		}),
		MemoryRegionCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monolith_memory_region_count",
			Help: "Live region count in the worker's logical memory pool.",
		}),
		WorkerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monolith_worker_queue_depth",
			Help: "Number of tasks currently held by the scheduler's task list.",
		}),
	}

	reg.MustRegister(
		r.TasksSubmitted,
		r.TasksCompleted,
		r.TasksFailed,
		r.TasksCancelled,
		r.SchedulerQuantumOverruns,
		r.MemoryUsedBytes,
		r.MemoryRegionCount,
		r.WorkerQueueDepth,
	)
	return r
}

// Handler returns the /metrics HTTP handler serving this registry's
// families in Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
