package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vaultsync"

// Metrics collects sync counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runsCompleted    *prometheus.CounterVec
	runDuration      prometheus.Histogram
	entriesExecuted  *prometheus.CounterVec
	bytesTransferred *prometheus.CounterVec
	levelFailures    *prometheus.CounterVec
	lastRunTimestamp prometheus.Gauge

	registry *prometheus.Registry
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Sync runs by outcome",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of a sync run",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
		),
		entriesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entries_executed_total",
				Help:      "Plan entries executed by decision and outcome",
			},
			[]string{"decision", "status"},
		),
		bytesTransferred: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_transferred_total",
				Help:      "At-rest bytes moved between the vault and the remote",
			},
			[]string{"direction"},
		),
		levelFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "level_failures_total",
				Help:      "Execution levels that ended with errors",
			},
			[]string{"phase"},
		),
		lastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last finished sync run",
			},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.entriesExecuted,
		m.bytesTransferred,
		m.levelFailures,
		m.lastRunTimestamp,
	)
	return m
}

func (m *Metrics) RecordRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.lastRunTimestamp.SetToCurrentTime()
}

func (m *Metrics) RecordEntry(decision string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.entriesExecuted.WithLabelValues(decision, status).Inc()
}

// RecordBytes counts transferred bytes, direction is "upload" or "download".
func (m *Metrics) RecordBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) RecordLevelFailure(phase string) {
	if m == nil {
		return
	}
	m.levelFailures.WithLabelValues(phase).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
