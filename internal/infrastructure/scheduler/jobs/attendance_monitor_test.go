package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/care-attendance/attendance-bot/internal/application/monitor"
)

type cycleFunc func(ctx context.Context) (monitor.CycleReport, error)

func (f cycleFunc) RunOnce(ctx context.Context) (monitor.CycleReport, error) { return f(ctx) }

func TestAttendanceMonitorJob_Run(t *testing.T) {
	job := NewAttendanceMonitorJob(cycleFunc(func(context.Context) (monitor.CycleReport, error) {
		return monitor.CycleReport{CycleID: "c1", Alerts: 2, Persisted: true}, nil
	}), nil, AttendanceMonitorConfig{})

	_, ok := job.LastReport()
	assert.False(t, ok)

	require.NoError(t, job.Run(context.Background()))
	report, ok := job.LastReport()
	require.True(t, ok)
	assert.Equal(t, 2, report.Alerts)
	assert.Equal(t, JobNameAttendanceMonitor, job.Name())
}

func TestAttendanceMonitorJob_RunError(t *testing.T) {
	cause := errors.New("snapshot persist failed")
	job := NewAttendanceMonitorJob(cycleFunc(func(context.Context) (monitor.CycleReport, error) {
		return monitor.CycleReport{CycleID: "c2", Alerts: 1}, cause
	}), nil, DefaultAttendanceMonitorConfig())

	err := job.Run(context.Background())
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "c2")

	report, ok := job.LastReport()
	require.True(t, ok)
	assert.Equal(t, 1, report.Alerts)
}

func TestAttendanceMonitorJob_AppliesTimeout(t *testing.T) {
	job := NewAttendanceMonitorJob(cycleFunc(func(ctx context.Context) (monitor.CycleReport, error) {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return monitor.CycleReport{}, nil
	}), nil, AttendanceMonitorConfig{Timeout: time.Minute})

	require.NoError(t, job.Run(context.Background()))
}
