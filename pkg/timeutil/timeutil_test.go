package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(5 * time.Minute)
	assert.Equal(t, start.Add(5*time.Minute), c.Now())
}

func TestFormatWindow(t *testing.T) {
	assert.Equal(t, "5 mins", FormatWindow(5*time.Minute))
	assert.Equal(t, "1 min", FormatWindow(time.Minute))
	assert.Equal(t, "90 secs", FormatWindow(90*time.Second))
}

func TestFormatIST(t *testing.T) {
	utc := time.Date(2026, 10, 15, 8, 35, 0, 0, time.UTC)
	assert.Equal(t, "15 Oct 2026 14:05", FormatIST(utc))
	assert.IsType(t, SystemClock{}, OrSystem(nil))
}
