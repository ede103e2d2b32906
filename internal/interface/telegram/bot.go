// Package telegram is the chat-facing side of the bot: it receives updates,
// routes them to handlers, and delivers monitor alerts.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/external/telegram"
	"github.com/care-attendance/attendance-bot/internal/interface/telegram/handler"
	"github.com/care-attendance/attendance-bot/internal/interface/telegram/middleware"
	"github.com/care-attendance/attendance-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Transport is the subset of the Bot API client the dispatcher uses.
// *telegram.Client satisfies it.
type Transport interface {
	SendToSession(ctx context.Context, sessionID student.SessionID, text string, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error
	GetMe(ctx context.Context) (*telegram.User, error)
	StartPolling(ctx context.Context, handler telegram.UpdateHandler) error
}

// BotConfig contains configuration for the dispatcher.
type BotConfig struct {
	RateLimit middleware.RateLimitConfig
	Recovery  middleware.RecoveryConfig
	Metrics   middleware.MetricsConfig

	// DefaultName is used when the sender has no name.
	DefaultName string

	Logger *slog.Logger
}

// DefaultBotConfig returns defaults for every middleware.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		RateLimit:   middleware.DefaultRateLimitConfig(),
		Recovery:    middleware.DefaultRecoveryConfig(),
		Metrics:     middleware.DefaultMetricsConfig(),
		DefaultName: "Student",
	}
}

// BotDependencies contains the application-side collaborators.
type BotDependencies struct {
	Registration handler.RegistrationFlow
	Attendance   handler.AttendanceQuery
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot dispatches Telegram updates. Updates of one polling batch are handled
// sequentially.
type Bot struct {
	config    BotConfig
	transport Transport
	router    *Router
	logger    *slog.Logger

	registration *handler.RegistrationHandler
	attendance   *handler.AttendanceHandler
	help         *handler.HelpHandler

	rateLimiter *middleware.RateLimiter
	recovery    *middleware.RecoveryMiddleware
	metrics     *middleware.MetricsMiddleware
}

// NewBot creates a dispatcher over transport.
func NewBot(transport Transport, deps BotDependencies, config BotConfig) (*Bot, error) {
	if transport == nil {
		return nil, errors.New("telegram transport is required")
	}
	if deps.Registration == nil || deps.Attendance == nil {
		return nil, errors.New("registration flow and attendance query are required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.DefaultName == "" {
		config.DefaultName = DefaultBotConfig().DefaultName
	}
	if config.Recovery.Logger == nil {
		config.Recovery.Logger = config.Logger
	}
	if config.Metrics.Logger == nil {
		config.Metrics.Logger = config.Logger
	}

	keyboards := presenter.NewKeyboardBuilder()
	return &Bot{
		config:       config,
		transport:    transport,
		router:       NewRouter(),
		logger:       config.Logger,
		registration: handler.NewRegistrationHandler(deps.Registration, keyboards),
		attendance:   handler.NewAttendanceHandler(deps.Attendance, presenter.NewAttendancePresenter()),
		help:         handler.NewHelpHandler(),
		rateLimiter:  middleware.NewRateLimiter(config.RateLimit),
		recovery:     middleware.NewRecoveryMiddleware(config.Recovery),
		metrics:      middleware.NewMetricsMiddleware(config.Metrics),
	}, nil
}

// Run verifies the token and long-polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.transport.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	b.logger.Info("bot verified", "id", me.ID, "username", me.Username)

	return b.transport.StartPolling(ctx, b.HandleUpdate)
}

// Router returns the router for additional registrations.
func (b *Bot) Router() *Router {
	return b.router
}

// Stats returns the dispatcher counters.
func (b *Bot) Stats() middleware.Snapshot {
	return b.metrics.Snapshot()
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes a single update. Errors are for logging only; the
// user has already been answered.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	if update == nil {
		return nil
	}
	logger := b.logger.With("update_id", update.UpdateID, "trace_id", uuid.NewString())

	switch {
	case update.CallbackQuery != nil:
		return b.handleCallbackQuery(ctx, logger, update.CallbackQuery)
	case update.Message != nil:
		return b.handleMessage(ctx, logger, update.Message)
	default:
		return nil
	}
}

func (b *Bot) handleMessage(ctx context.Context, logger *slog.Logger, msg *telegram.Message) error {
	if msg.Chat == nil {
		return nil
	}
	route := b.router.RouteMessage(msg)
	if route == RouteIgnore {
		return nil
	}

	sessionID := telegram.SessionFromChat(msg.Chat.ID)
	name := b.config.DefaultName
	if msg.From != nil {
		if n := msg.From.FullName(); n != "" {
			name = n
		}
	}

	return b.dispatch(ctx, logger, sessionID, route, func() (*handler.Response, error) {
		switch route {
		case RouteRegistration:
			return b.registration.Handle(ctx, handler.RegistrationRequest{
				SessionID:   sessionID,
				Text:        msg.Text,
				DisplayName: name,
			})
		case RouteAttendance:
			return b.attendance.Handle(ctx, handler.AttendanceRequest{
				SessionID: sessionID,
				Progress: func(ctx context.Context, text string) {
					b.send(ctx, logger, sessionID, handler.Message{Text: text})
				},
			})
		case RouteHelp:
			return b.help.Handle(), nil
		default:
			return b.help.Unknown(), nil
		}
	})
}

func (b *Bot) handleCallbackQuery(ctx context.Context, logger *slog.Logger, cq *telegram.CallbackQuery) error {
	defer func() {
		if err := b.transport.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
			logger.Debug("failed to answer callback query", "error", err)
		}
	}()

	if cq.Message == nil || cq.Message.Chat == nil {
		return nil
	}
	route := b.router.RouteCallback(cq.Data)
	if route != RouteRegistration {
		return nil
	}

	sessionID := telegram.SessionFromChat(cq.Message.Chat.ID)
	name := b.config.DefaultName
	if cq.From != nil {
		if n := cq.From.FullName(); n != "" {
			name = n
		}
	}

	return b.dispatch(ctx, logger, sessionID, route, func() (*handler.Response, error) {
		return b.registration.Handle(ctx, handler.RegistrationRequest{
			SessionID:   sessionID,
			Text:        cq.Data,
			DisplayName: name,
		})
	})
}

// dispatch wraps a handler call with rate limiting, panic recovery and
// metrics, then sends the response.
func (b *Bot) dispatch(
	ctx context.Context,
	logger *slog.Logger,
	sessionID student.SessionID,
	route Route,
	call func() (*handler.Response, error),
) error {
	rc := b.metrics.Start(string(route))

	if limit := b.rateLimiter.Check(sessionID); !limit.Allowed {
		rc.Finish(middleware.OutcomeRateLimited)
		logger.Warn("session rate limited", "session_id", sessionID, "banned", limit.IsBanned)
		b.send(ctx, logger, sessionID, handler.Message{Text: limit.Message()})
		return nil
	}

	var resp *handler.Response
	result := b.recovery.Guard(sessionID, string(route), func() error {
		var err error
		resp, err = call()
		return err
	})

	if result.Recovered {
		rc.Finish(middleware.OutcomePanic)
		b.send(ctx, logger, sessionID, handler.Message{Text: result.UserMessage})
		return result.Err
	}

	if resp != nil {
		for _, m := range resp.Messages {
			b.send(ctx, logger, sessionID, m)
		}
	}

	if result.Err != nil {
		rc.Finish(middleware.OutcomeError)
		logger.Error("update handler failed", "session_id", sessionID, "route", route, "error", result.Err)
		return result.Err
	}
	rc.Finish(middleware.OutcomeOK)
	return nil
}

func (b *Bot) send(ctx context.Context, logger *slog.Logger, sessionID student.SessionID, m handler.Message) {
	if m.Text == "" {
		return
	}
	if err := b.transport.SendToSession(ctx, sessionID, m.Text, m.Keyboard.ToMarkup()); err != nil {
		if telegram.IsUserBlocked(err) {
			logger.Info("session blocked the bot", "session_id", sessionID)
			return
		}
		logger.Warn("failed to send message", "session_id", sessionID, "error", err)
	}
}
