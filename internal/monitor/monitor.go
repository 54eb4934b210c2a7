package monitor

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Log phases written around each task.
const (
	PhaseStart = "RESOURCE_START"
	PhaseEnd   = "RESOURCE_END"
)

// DefaultMemoryLimitMB is the nominal memory budget used for percentages.
const DefaultMemoryLimitMB = 512

// Config configures a Monitor.
type Config struct {
	// Namespace prefixes every metric name.
	Namespace string
	// MemoryLimitMB is the budget heap usage is reported against.
	MemoryLimitMB int
	// StoreSize, when set, is exported as the store_entries gauge.
	StoreSize func() int
}

// Snapshot is a point-in-time view of process resources and task counters.
type Snapshot struct {
	HeapAllocMB    float64 `json:"heapAllocMB"`
	MemoryLimitMB  float64 `json:"memoryLimitMB"`
	MemoryPercent  float64 `json:"memoryPercent"`
	Goroutines     int     `json:"goroutines"`
	ActiveTasks    int64   `json:"activeTasks"`
	TotalProcessed int64   `json:"totalProcessed"`
}

// Monitor is safe for concurrent use.
type Monitor struct {
	memoryLimitMB float64

	active    atomic.Int64
	processed atomic.Int64

	registry         *prometheus.Registry
	activeTasks      prometheus.Gauge
	tasksTotal       *prometheus.CounterVec
	taskDuration     prometheus.Histogram
	attemptsTotal    *prometheus.CounterVec
	attemptDurations *prometheus.HistogramVec
}

// New creates a Monitor with its own Prometheus registry, including the Go
// runtime and process collectors.
func New(cfg Config) *Monitor {
	if cfg.Namespace == "" {
		cfg.Namespace = "imagerelay"
	}
	if cfg.MemoryLimitMB <= 0 {
		cfg.MemoryLimitMB = DefaultMemoryLimitMB
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Monitor{
		memoryLimitMB: float64(cfg.MemoryLimitMB),
		registry:      reg,
	}

	m.activeTasks = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "active_tasks",
		Help:      "Number of tasks currently executing",
	})

	m.tasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "tasks_total",
			Help:      "Total number of finished tasks",
		},
		[]string{"result"},
	)

	m.taskDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Name:      "task_duration_seconds",
		Help:      "Task wall-clock duration in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 240, 480, 900},
	})

	m.attemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "provider_attempts_total",
			Help:      "Total number of provider call attempts",
		},
		[]string{"outcome"},
	)

	m.attemptDurations = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Provider call attempt duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 240},
		},
		[]string{"outcome"},
	)

	if cfg.StoreSize != nil {
		size := cfg.StoreSize
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "store_entries",
			Help:      "Number of task records held in the task store",
		}, func() float64 { return float64(size()) })
	}

	return m
}

// TaskStarted marks a task as running.
func (m *Monitor) TaskStarted() {
	m.active.Add(1)
	m.activeTasks.Inc()
}

// TaskFinished marks a task as done with the given result label
// ("completed" or "failed").
func (m *Monitor) TaskFinished(result string, d time.Duration) {
	m.active.Add(-1)
	m.processed.Add(1)
	m.activeTasks.Dec()
	m.tasksTotal.WithLabelValues(result).Inc()
	m.taskDuration.Observe(d.Seconds())
}

// ObserveAttempt records one provider call attempt.
func (m *Monitor) ObserveAttempt(outcome string, elapsed time.Duration) {
	m.attemptsTotal.WithLabelValues(outcome).Inc()
	m.attemptDurations.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Snapshot reads current memory and goroutine figures.
func (m *Monitor) Snapshot() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	heapMB := float64(ms.Alloc) / 1024 / 1024
	return Snapshot{
		HeapAllocMB:    heapMB,
		MemoryLimitMB:  m.memoryLimitMB,
		MemoryPercent:  heapMB / m.memoryLimitMB * 100,
		Goroutines:     runtime.NumGoroutine(),
		ActiveTasks:    m.active.Load(),
		TotalProcessed: m.processed.Load(),
	}
}

// LogSnapshot writes one structured resource line for taskID.
// Extra key/value pairs in attrs are appended to the record.
func (m *Monitor) LogSnapshot(ctx context.Context, logger *slog.Logger, phase, taskID string, attrs ...any) {
	s := m.Snapshot()
	args := append([]any{
		"phase", phase,
		"task_id", taskID,
		"active_tasks", s.ActiveTasks,
		"total_processed", s.TotalProcessed,
		"heap_alloc_mb", s.HeapAllocMB,
		"memory_limit_mb", s.MemoryLimitMB,
		"memory_percent", s.MemoryPercent,
		"goroutines", s.Goroutines,
	}, attrs...)
	logger.InfoContext(ctx, phase, args...)
}

// Registry exposes the private registry, e.g. for tests.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
