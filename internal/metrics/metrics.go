// Package metrics records fetch attempts, bytes and run durations on a private
// Prometheus registry that can be flushed to a node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the action's collectors.
type Metrics struct {
	registry      *prometheus.Registry
	attemptsTotal *prometheus.CounterVec
	bytesWritten  prometheus.Counter
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apifetch_attempts_total",
			Help: "HTTP fetch attempts by outcome (success, retryable, fatal).",
		},
		[]string{"outcome"},
	)
	m.bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "apifetch_bytes_written_total",
		Help: "Bytes written to destination sinks.",
	})
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apifetch_runs_total",
			Help: "Completed action runs by status.",
		},
		[]string{"status"},
	)
	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "apifetch_run_duration_seconds",
		Help:    "Wall time of a whole action run, retries included.",
		Buckets: prometheus.DefBuckets,
	})
	m.registry.MustRegister(m.attemptsTotal, m.bytesWritten, m.runsTotal, m.runDuration)
	return m
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordAttempt counts one attempt. A nil receiver is a no-op.
func (m *Metrics) RecordAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(outcome).Inc()
}

// AddBytes counts bytes written to a sink.
func (m *Metrics) AddBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesWritten.Add(float64(n))
}

// RecordRun counts a finished run and observes its duration.
func (m *Metrics) RecordRun(failed bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if failed {
		status = "failed"
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

// WriteTextfile writes the registry in text exposition format, atomically replacing path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
