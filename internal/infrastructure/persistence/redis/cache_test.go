package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "otp:42", OtpKey("42"))
	assert.Equal(t, "lock:attendance_monitor", LockKey("attendance_monitor"))
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())

	cfg.Host = "redis"
	cfg.Port = 6380
	assert.Equal(t, "redis:6380", cfg.Addr())
}

func TestNewOtpStore_TTLOutlivesWindow(t *testing.T) {
	s := NewOtpStore(nil, 5*time.Minute)
	assert.Equal(t, 6*time.Minute, s.ttl)

	l := NewLocker(nil, 0)
	assert.Equal(t, TTLMonitorLock, l.ttl)
}
