package telegram

import (
	"context"

	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/external/telegram"
	"github.com/care-attendance/attendance-bot/internal/interface/telegram/presenter"
)

// SessionSender sends plain text to a session. *telegram.Client satisfies it.
type SessionSender interface {
	SendToSession(ctx context.Context, sessionID student.SessionID, text string, keyboard *telegram.InlineKeyboardMarkup) error
}

// AlertNotifier delivers monitor alerts as chat messages.
type AlertNotifier struct {
	sender    SessionSender
	presenter *presenter.AttendancePresenter
}

// NewAlertNotifier creates an AlertNotifier.
func NewAlertNotifier(sender SessionSender) *AlertNotifier {
	return &AlertNotifier{sender: sender, presenter: presenter.NewAttendancePresenter()}
}

// NotifyAlert sends one formatted alert.
func (n *AlertNotifier) NotifyAlert(ctx context.Context, sessionID student.SessionID, alert attendance.Alert) error {
	return n.sender.SendToSession(ctx, sessionID, n.presenter.FormatAlert(alert), nil)
}
