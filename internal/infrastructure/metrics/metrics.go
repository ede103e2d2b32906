// Package metrics holds the Prometheus collectors of the bot and adapts them
// to the small recorder interfaces of the application packages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "care_bot"

// Metrics holds Prometheus collectors for the registration flow and the
// attendance monitor.
type Metrics struct {
	registry *prometheus.Registry

	RegistrationsStarted   *prometheus.CounterVec
	RegistrationsCompleted *prometheus.CounterVec
	RegistrationsAbandoned *prometheus.CounterVec

	MonitorCycles        *prometheus.CounterVec
	MonitorCycleDuration prometheus.Histogram
	StudentsChecked      prometheus.Counter
	FetchFailures        prometheus.Counter
	AlertsSent           *prometheus.CounterVec
	DeliveryFailures     prometheus.Counter
	SnapshotWriteErrors  prometheus.Counter
	LastCycleTimestamp   prometheus.Gauge

	UpdatesHandled *prometheus.CounterVec
	UpdateDuration *prometheus.HistogramVec
}

// New creates a registry with Go and process collectors and registers all
// bot collectors in it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers all collectors in reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		RegistrationsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_started_total",
			Help:      "Registration flows started, labeled by kind (register, update)",
		}, []string{"kind"}),
		RegistrationsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_completed_total",
			Help:      "Registration flows committed, labeled by kind (register, update)",
		}, []string{"kind"}),
		RegistrationsAbandoned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_abandoned_total",
			Help:      "Registration flows abandoned, labeled by reason",
		}, []string{"reason"}),

		MonitorCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_cycles_total",
			Help:      "Monitor cycles, labeled by outcome (ok, persist_failed, skipped_locked, failed)",
		}, []string{"outcome"}),
		MonitorCycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitor_cycle_duration_seconds",
			Help:      "Wall time of one monitor cycle",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		StudentsChecked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_students_checked_total",
			Help:      "Students whose attendance was fetched successfully",
		}),
		FetchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_fetch_failures_total",
			Help:      "Attendance fetches that failed or returned no data",
		}),
		AlertsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_alerts_sent_total",
			Help:      "Alerts delivered, labeled by severity",
		}, []string{"severity"}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_delivery_failures_total",
			Help:      "Alerts that could not be delivered",
		}),
		SnapshotWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_snapshot_write_errors_total",
			Help:      "Cycles whose snapshot could not be persisted",
		}),
		LastCycleTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_last_cycle_timestamp_seconds",
			Help:      "Unix time of the last finished monitor cycle",
		}),

		UpdatesHandled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_updates_handled_total",
			Help:      "Telegram updates handled, labeled by route and outcome",
		}, []string{"route", "outcome"}),

		UpdateDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "telegram_update_duration_seconds",
			Help:      "Time spent handling one Telegram update",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route"}),
	}
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ══════════════════════════════════════════════════════════════════════════════
// registration.Recorder
// ══════════════════════════════════════════════════════════════════════════════

func (m *Metrics) RegistrationStarted(kind string) {
	m.RegistrationsStarted.WithLabelValues(kind).Inc()
}

func (m *Metrics) RegistrationCompleted(kind string) {
	m.RegistrationsCompleted.WithLabelValues(kind).Inc()
}

func (m *Metrics) RegistrationAbandoned(reason string) {
	m.RegistrationsAbandoned.WithLabelValues(reason).Inc()
}

// ══════════════════════════════════════════════════════════════════════════════
// monitor.Recorder
// ══════════════════════════════════════════════════════════════════════════════

func (m *Metrics) CycleFinished(outcome string, took time.Duration) {
	m.MonitorCycles.WithLabelValues(outcome).Inc()
	m.MonitorCycleDuration.Observe(took.Seconds())
	m.LastCycleTimestamp.SetToCurrentTime()
}

func (m *Metrics) StudentChecked() {
	m.StudentsChecked.Inc()
}

func (m *Metrics) FetchFailed() {
	m.FetchFailures.Inc()
}

func (m *Metrics) AlertSent(severity string) {
	m.AlertsSent.WithLabelValues(severity).Inc()
}

func (m *Metrics) AlertDeliveryFailed() {
	m.DeliveryFailures.Inc()
}

func (m *Metrics) SnapshotWriteFailed() {
	m.SnapshotWriteErrors.Inc()
}

// UpdateHandled counts one dispatched Telegram update.
func (m *Metrics) UpdateHandled(route, outcome string, took time.Duration) {
	m.UpdatesHandled.WithLabelValues(route, outcome).Inc()
	m.UpdateDuration.WithLabelValues(route).Observe(took.Seconds())
}
