// Package timeutil provides the clock abstraction and India Standard Time
// helpers used by the bot. The CARE institution and all students are in IST.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// IST is India Standard Time (UTC+5:30, no DST).
var IST = time.FixedZone("Asia/Kolkata", 5*60*60+30*60)

// Clock returns the current time. Components take a Clock so expiry can be
// tested without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock frozen at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the frozen time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// OrSystem returns c, or SystemClock when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}

// ToIST converts a time to India Standard Time.
func ToIST(t time.Time) time.Time {
	return t.In(IST)
}

// FormatIST formats t in IST as "15 Oct 2026 14:05".
func FormatIST(t time.Time) string {
	return ToIST(t).Format("02 Jan 2006 15:04")
}

// FormatWindow renders a validity window for user messages: "5 mins", "90 secs".
func FormatWindow(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		mins := int(d / time.Minute)
		if mins == 1 {
			return "1 min"
		}
		return fmt.Sprintf("%d mins", mins)
	default:
		return fmt.Sprintf("%d secs", int(d.Round(time.Second)/time.Second))
	}
}
