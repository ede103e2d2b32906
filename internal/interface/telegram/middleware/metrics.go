package middleware

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS MIDDLEWARE
// Times every update and forwards the outcome to a Recorder (Prometheus in
// production). Keeps in-process counters for the health endpoint.
// ══════════════════════════════════════════════════════════════════════════════

// Update outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomePanic       = "panic"
	OutcomeRateLimited = "rate_limited"
)

// Recorder receives per-update measurements. metrics.Metrics satisfies it.
type Recorder interface {
	UpdateHandled(route, outcome string, took time.Duration)
}

// MetricsConfig holds configuration for the metrics middleware.
type MetricsConfig struct {
	// Recorder is optional.
	Recorder Recorder

	// SlowRequestThreshold logs updates slower than this. Zero disables it.
	SlowRequestThreshold time.Duration

	Logger *slog.Logger
}

// DefaultMetricsConfig returns a two second slow threshold.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{SlowRequestThreshold: 2 * time.Second}
}

// MetricsMiddleware collects update metrics.
type MetricsMiddleware struct {
	config MetricsConfig
	logger *slog.Logger

	totalRequests  atomic.Int64
	totalErrors    atomic.Int64
	activeRequests atomic.Int64
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware(config MetricsConfig) *MetricsMiddleware {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &MetricsMiddleware{config: config, logger: config.Logger}
}

// RequestContext tracks one update in flight.
type RequestContext struct {
	Route     string
	StartTime time.Time

	middleware *MetricsMiddleware
}

// Start begins tracking an update.
func (m *MetricsMiddleware) Start(route string) *RequestContext {
	m.totalRequests.Add(1)
	m.activeRequests.Add(1)
	return &RequestContext{Route: route, StartTime: time.Now(), middleware: m}
}

// Finish records the outcome of the update.
func (rc *RequestContext) Finish(outcome string) {
	m := rc.middleware
	took := time.Since(rc.StartTime)
	m.activeRequests.Add(-1)
	if outcome == OutcomeError || outcome == OutcomePanic {
		m.totalErrors.Add(1)
	}
	if m.config.Recorder != nil {
		m.config.Recorder.UpdateHandled(rc.Route, outcome, took)
	}
	if m.config.SlowRequestThreshold > 0 && took > m.config.SlowRequestThreshold {
		m.logger.Warn("slow telegram update", "route", rc.Route, "duration", took)
	}
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TotalRequests  int64
	TotalErrors    int64
	ActiveRequests int64
}

// Snapshot returns the current counters.
func (m *MetricsMiddleware) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:  m.totalRequests.Load(),
		TotalErrors:    m.totalErrors.Load(),
		ActiveRequests: m.activeRequests.Load(),
	}
}
