package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for opsail.
type Metrics struct {
	config MetricsConfig

	// Play metrics
	playsStarted   *prometheus.CounterVec
	playsCompleted *prometheus.CounterVec

	// Task metrics
	tasksExecuted *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec

	// Handler metrics
	handlersFired *prometheus.CounterVec

	// Connection metrics
	connectionAttempts *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
// When disabled, all record methods are no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		playsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plays_started_total",
				Help:      "Total number of plays started",
			},
			[]string{"playbook"},
		),
		playsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plays_completed_total",
				Help:      "Total number of plays completed",
			},
			[]string{"playbook", "status"},
		),
		tasksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_executed_total",
				Help:      "Total number of task executions by result status",
			},
			[]string{"module", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Task execution duration in seconds",
				Buckets:   buckets,
			},
			[]string{"module"},
		),
		handlersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handlers_fired_total",
				Help:      "Total number of handlers fired",
			},
			[]string{"status"},
		),
		connectionAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_attempts_total",
				Help:      "Total number of transport connection attempts",
			},
			[]string{"transport", "status"},
		),
	}

	collectors := []prometheus.Collector{
		m.playsStarted,
		m.playsCompleted,
		m.tasksExecuted,
		m.taskDuration,
		m.handlersFired,
		m.connectionAttempts,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// Serve exposes the metrics endpoint on the configured listen address.
// It blocks until the server stops.
func (m *Metrics) Serve() error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m.server.ListenAndServe()
}

// RecordPlayStarted increments the started-plays counter.
func (m *Metrics) RecordPlayStarted(playbook string) {
	if m.playsStarted == nil {
		return
	}
	m.playsStarted.WithLabelValues(playbook).Inc()
}

// RecordPlayCompleted increments the completed-plays counter.
func (m *Metrics) RecordPlayCompleted(playbook, status string) {
	if m.playsCompleted == nil {
		return
	}
	m.playsCompleted.WithLabelValues(playbook, status).Inc()
}

// RecordTask increments the task counter and observes the duration.
func (m *Metrics) RecordTask(module, status string, duration time.Duration) {
	if m.tasksExecuted == nil {
		return
	}
	m.tasksExecuted.WithLabelValues(module, status).Inc()
	m.taskDuration.WithLabelValues(module).Observe(duration.Seconds())
}

// RecordHandler increments the handler counter.
func (m *Metrics) RecordHandler(status string) {
	if m.handlersFired == nil {
		return
	}
	m.handlersFired.WithLabelValues(status).Inc()
}

// RecordConnection increments the connection-attempt counter.
func (m *Metrics) RecordConnection(transport, status string) {
	if m.connectionAttempts == nil {
		return
	}
	m.connectionAttempts.WithLabelValues(transport, status).Inc()
}
