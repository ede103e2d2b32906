package presenter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/care-attendance/attendance-bot/internal/application/query"
	"github.com/care-attendance/attendance-bot/internal/application/registration"
	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

func TestFormatAlert(t *testing.T) {
	p := NewAttendancePresenter()

	tests := []struct {
		name  string
		alert attendance.Alert
		want  string
	}{
		{
			name: "critical with drop",
			alert: attendance.Alert{
				DisplayName: "Asha",
				Evaluation: attendance.Evaluation{
					Overall:    74.9,
					HasOverall: true,
					Severity:   attendance.SeverityCritical,
					Drops:      []attendance.Drop{{Subject: "A", Old: 80, New: 70}},
					Breakdown:  []attendance.Line{{Subject: "A", Percent: 70}, {Subject: "B", Percent: 79.8}},
				},
			},
			want: "Dear Asha,\n" +
				"🚨 Overall below 75% (74.90%)\n" +
				"📉 Drop detected:\n" +
				"• A: 80.00% -> 70.00%\n" +
				"\n📊 Subjects:\n" +
				"• A: 70.00%\n" +
				"• B: 79.80%",
		},
		{
			name: "warning",
			alert: attendance.Alert{
				DisplayName: "Student",
				Evaluation: attendance.Evaluation{
					Overall:    79.9,
					HasOverall: true,
					Severity:   attendance.SeverityWarning,
					Breakdown:  []attendance.Line{{Subject: "A", Percent: 79.9}},
				},
			},
			want: "Dear Student,\n⚠️ Overall near limit (79.90%)\n\n📊 Subjects:\n• A: 79.90%",
		},
		{
			name: "drop only",
			alert: attendance.Alert{
				DisplayName: "Ravi",
				Evaluation: attendance.Evaluation{
					Overall:    89,
					HasOverall: true,
					Severity:   attendance.SeverityDropOnly,
					Drops:      []attendance.Drop{{Subject: "A", Old: 90, New: 88}},
					Breakdown:  []attendance.Line{{Subject: "A", Percent: 88}, {Subject: "B", Percent: 90}},
				},
			},
			want: "Dear Ravi,\n📉 Drop detected:\n• A: 90.00% -> 88.00%\n\n📊 Subjects:\n• A: 88.00%\n• B: 90.00%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.FormatAlert(tt.alert))
		})
	}
}

func TestFormatAttendance(t *testing.T) {
	p := NewAttendancePresenter()
	got := p.FormatAttendance(&query.GetAttendanceResult{
		DisplayName: "Asha",
		Department:  student.DepartmentCSE,
		Year:        student.YearIII,
		Subjects: []query.SubjectLine{
			{Subject: "CS3351", Percent: 87.5, Present: true},
			{Subject: "CS3352"},
		},
		Overall:    87.5,
		HasOverall: true,
	})

	assert.Equal(t, "📊 Attendance for Asha (CSE III):\n"+
		"• CS3351: 87.50%\n"+
		"• CS3352: N/A\n"+
		"\nOVERALL: 87.50%", got)
}

func TestKeyboard_FromButtons(t *testing.T) {
	kb := NewKeyboardBuilder().FromButtons([]registration.Button{
		{Label: "Agree", Data: registration.CallbackConsentAgree},
		{Label: "Decline", Data: registration.CallbackConsentDecline},
	})

	markup := kb.ToMarkup()
	if assert.NotNil(t, markup) && assert.Len(t, markup.InlineKeyboard, 1) {
		row := markup.InlineKeyboard[0]
		assert.Len(t, row, 2)
		assert.Equal(t, registration.CallbackConsentAgree, row[0].CallbackData)
	}

	assert.Nil(t, NewKeyboardBuilder().FromButtons(nil).ToMarkup())
}
