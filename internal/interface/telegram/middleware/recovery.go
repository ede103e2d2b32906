package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY MIDDLEWARE
// Catches panics in handlers and turns them into a generic reply. The bot
// must stay responsive even if one handler crashes.
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	// EnableStackTrace attaches the stack to the log record.
	EnableStackTrace bool

	// UserErrorMessage is sent to the session after a panic.
	UserErrorMessage string

	// MaxPanicsPerMinute limits how many panics are logged per minute.
	MaxPanicsPerMinute int

	// OnPanic is called for every recovered panic.
	OnPanic func(info *PanicInfo)

	Logger *slog.Logger
}

// DefaultRecoveryConfig returns defaults for the recovery middleware.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		EnableStackTrace:   true,
		UserErrorMessage:   "😔 Something went wrong. Please try again later.",
		MaxPanicsPerMinute: 100,
	}
}

// PanicInfo contains information about a recovered panic.
type PanicInfo struct {
	Error      error
	PanicValue any
	StackTrace string
	SessionID  student.SessionID
	Route      string
	Timestamp  time.Time
}

// RecoveryResult represents the outcome of a guarded handler call.
type RecoveryResult struct {
	Recovered   bool
	PanicInfo   *PanicInfo
	UserMessage string
	Err         error
}

// RecoveryMiddleware recovers from panics in update handlers.
type RecoveryMiddleware struct {
	config  RecoveryConfig
	logger  *slog.Logger
	limiter *panicRateLimiter
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(config RecoveryConfig) *RecoveryMiddleware {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.UserErrorMessage == "" {
		config.UserErrorMessage = DefaultRecoveryConfig().UserErrorMessage
	}
	return &RecoveryMiddleware{
		config:  config,
		logger:  config.Logger,
		limiter: newPanicRateLimiter(config.MaxPanicsPerMinute),
	}
}

// Guard runs handler and recovers from any panic.
func (m *RecoveryMiddleware) Guard(sessionID student.SessionID, route string, handler func() error) (result RecoveryResult) {
	defer func() {
		if r := recover(); r != nil {
			result = m.handlePanic(r, sessionID, route)
		}
	}()
	return RecoveryResult{Err: handler()}
}

func (m *RecoveryMiddleware) handlePanic(value any, sessionID student.SessionID, route string) RecoveryResult {
	info := &PanicInfo{
		Error:      toError(value),
		PanicValue: value,
		SessionID:  sessionID,
		Route:      route,
		Timestamp:  time.Now(),
	}
	if m.config.EnableStackTrace {
		info.StackTrace = string(debug.Stack())
	}

	if m.limiter.allow() {
		attrs := []any{"session_id", sessionID, "route", route, "panic", info.Error}
		if info.StackTrace != "" {
			attrs = append(attrs, "stack", info.StackTrace)
		}
		m.logger.Error("panic recovered in update handler", attrs...)
	}
	if m.config.OnPanic != nil {
		m.config.OnPanic(info)
	}

	return RecoveryResult{
		Recovered:   true,
		PanicInfo:   info,
		UserMessage: m.config.UserErrorMessage,
		Err:         info.Error,
	}
}

func toError(value any) error {
	switch v := value.(type) {
	case error:
		return v
	case string:
		return fmt.Errorf("%s", v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PANIC RATE LIMITER
// Keeps a panic storm from flooding the logs.
// ══════════════════════════════════════════════════════════════════════════════

type panicRateLimiter struct {
	mu        sync.Mutex
	count     int
	maxPerMin int
	window    time.Time
}

func newPanicRateLimiter(maxPerMin int) *panicRateLimiter {
	return &panicRateLimiter{maxPerMin: maxPerMin, window: time.Now()}
}

func (l *panicRateLimiter) allow() bool {
	if l.maxPerMin <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.window) > time.Minute {
		l.window = time.Now()
		l.count = 0
	}
	l.count++
	return l.count <= l.maxPerMin
}
