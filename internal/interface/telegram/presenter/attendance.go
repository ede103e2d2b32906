package presenter

import (
	"fmt"
	"strings"

	"github.com/care-attendance/attendance-bot/internal/application/query"
	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE PRESENTER
// Форматирует уведомления монитора и ответ на /attendance. Текст без
// разметки: имена студентов не экранируются.
// ══════════════════════════════════════════════════════════════════════════════

// Ответы на /attendance, когда данных нет.
const (
	MsgNotRegistered = "⚠️ Not registered. Use /start."
	MsgNoSubjects    = "⚠️ No subjects mapped. Contact admin."
	MsgFetching      = "⏳ Fetching attendance..."
	MsgFetchFailed   = "⚠️ Could not fetch attendance."
)

// AttendancePresenter форматирует данные посещаемости для Telegram.
type AttendancePresenter struct{}

// NewAttendancePresenter создаёт новый презентер.
func NewAttendancePresenter() *AttendancePresenter {
	return &AttendancePresenter{}
}

// FormatAlert собирает одно сообщение для студента: приветствие, уровень,
// список падений и разбивку по предметам.
func (p *AttendancePresenter) FormatAlert(alert attendance.Alert) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dear %s,", alert.DisplayName)

	switch alert.Severity {
	case attendance.SeverityCritical:
		fmt.Fprintf(&sb, "\n🚨 Overall below 75%% (%s)", percent(alert.Overall))
	case attendance.SeverityWarning:
		fmt.Fprintf(&sb, "\n⚠️ Overall near limit (%s)", percent(alert.Overall))
	}

	if len(alert.Drops) > 0 {
		sb.WriteString("\n📉 Drop detected:")
		for _, d := range alert.Drops {
			sb.WriteString("\n• ")
			sb.WriteString(d.String())
		}
	}

	sb.WriteString("\n\n📊 Subjects:")
	for _, line := range alert.Breakdown {
		fmt.Fprintf(&sb, "\n• %s: %s", line.Subject, percent(line.Percent))
	}
	return sb.String()
}

// FormatAttendance форматирует ответ на /attendance. Предметы каталога без
// данных выводятся как N/A.
func (p *AttendancePresenter) FormatAttendance(res *query.GetAttendanceResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Attendance for %s (%s %s):", res.DisplayName, res.Department, res.Year)
	for _, s := range res.Subjects {
		value := "N/A"
		if s.Present {
			value = percent(s.Percent)
		}
		fmt.Fprintf(&sb, "\n• %s: %s", s.Subject, value)
	}
	if res.HasOverall {
		fmt.Fprintf(&sb, "\n\nOVERALL: %s", percent(res.Overall))
	}
	return sb.String()
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}
