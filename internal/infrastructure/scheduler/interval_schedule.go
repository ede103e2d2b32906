package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration

	// Immediate makes the first run due right after registration.
	Immediate bool
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration, immediate bool) *IntervalSchedule {
	return &IntervalSchedule{
		Interval:  interval,
		Immediate: immediate,
	}
}

// First returns the first run time for a job registered at t.
func (s *IntervalSchedule) First(t time.Time) time.Time {
	if s.Immediate {
		return t
	}
	return s.Next(t)
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	if s.Immediate {
		return fmt.Sprintf("@every %s (immediate)", s.Interval)
	}
	return fmt.Sprintf("@every %s", s.Interval)
}
