// Package jobs contains the scheduled jobs of the attendance bot.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/care-attendance/attendance-bot/internal/application/monitor"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE MONITOR JOB
// ══════════════════════════════════════════════════════════════════════════════

// JobNameAttendanceMonitor is the name the monitor job is registered under.
const JobNameAttendanceMonitor = "attendance_monitor"

// Cycle runs one monitor cycle. *monitor.Monitor satisfies it.
type Cycle interface {
	RunOnce(ctx context.Context) (monitor.CycleReport, error)
}

// AttendanceMonitorConfig contains configuration for the monitor job.
type AttendanceMonitorConfig struct {
	// Timeout bounds a single cycle. Zero means no limit.
	Timeout time.Duration
}

// DefaultAttendanceMonitorConfig returns a five minute cycle timeout.
func DefaultAttendanceMonitorConfig() AttendanceMonitorConfig {
	return AttendanceMonitorConfig{Timeout: 5 * time.Minute}
}

// AttendanceMonitorJob runs the attendance monitor from the scheduler.
type AttendanceMonitorJob struct {
	cycle  Cycle
	logger *slog.Logger
	config AttendanceMonitorConfig

	lastReport atomic.Pointer[monitor.CycleReport]
}

// NewAttendanceMonitorJob creates the job.
func NewAttendanceMonitorJob(cycle Cycle, logger *slog.Logger, config AttendanceMonitorConfig) *AttendanceMonitorJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceMonitorJob{cycle: cycle, logger: logger, config: config}
}

// Name returns the job name.
func (j *AttendanceMonitorJob) Name() string {
	return JobNameAttendanceMonitor
}

// Description returns a human-readable description.
func (j *AttendanceMonitorJob) Description() string {
	return "Fetches attendance for every registered student and sends alerts"
}

// Run executes one monitor cycle.
func (j *AttendanceMonitorJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	report, err := j.cycle.RunOnce(ctx)
	j.lastReport.Store(&report)
	if err != nil {
		return fmt.Errorf("attendance monitor cycle %s: %w", report.CycleID, err)
	}

	if report.Locked {
		j.logger.Debug("attendance monitor cycle held by another process")
	}
	return nil
}

// LastReport returns the report of the most recent cycle, if any.
func (j *AttendanceMonitorJob) LastReport() (monitor.CycleReport, bool) {
	r := j.lastReport.Load()
	if r == nil {
		return monitor.CycleReport{}, false
	}
	return *r, true
}
