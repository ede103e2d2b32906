package query_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/care-attendance/attendance-bot/internal/application/monitor/mocks"
	"github.com/care-attendance/attendance-bot/internal/application/query"
	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

type oneStudent struct {
	rec *student.Record
	err error
}

func (r oneStudent) GetBySession(_ context.Context, id student.SessionID) (*student.Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.rec == nil || r.rec.SessionID != id {
		return nil, shared.ErrStudentNotFound
	}
	return r.rec.Clone(), nil
}

func (r oneStudent) GetByRegistration(context.Context, student.RegistrationNumber) (*student.Record, error) {
	return nil, shared.ErrStudentNotFound
}

func (r oneStudent) Upsert(context.Context, *student.Record) error { return nil }

func (r oneStudent) ListAll(context.Context) ([]*student.Record, error) { return nil, nil }

var catalog = attendance.SubjectCatalog{
	{Department: student.DepartmentCSE, Year: student.YearIII}: {"A", "B", "C"},
}

func registered(dept student.Department) *student.Record {
	return &student.Record{
		SessionID:          "42",
		RegistrationNumber: "810700000001",
		DisplayName:        "Asha",
		Contact:            "9876543210",
		Department:         dept,
		Year:               student.YearIII,
	}
}

func TestGetAttendance_ReturnsBreakdownWithMissingSubjects(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Fetch(gomock.Any(), student.RegistrationNumber("810700000001")).
		Return(attendance.Reading{"A": 90, "C": 70, "Z": 10}, nil)

	h := query.NewGetAttendanceHandler(oneStudent{rec: registered(student.DepartmentCSE)}, client, catalog, "")
	fetching := 0
	res, err := h.Handle(context.Background(), query.GetAttendanceQuery{
		SessionID:  "42",
		OnFetching: func(context.Context) { fetching++ },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fetching)

	assert.Equal(t, "Asha", res.DisplayName)
	assert.Equal(t, []query.SubjectLine{
		{Subject: "A", Percent: 90, Present: true},
		{Subject: "B"},
		{Subject: "C", Percent: 70, Present: true},
	}, res.Subjects)
	assert.True(t, res.HasOverall)
	assert.Equal(t, 80.0, res.Overall)
}

func TestGetAttendance_Errors(t *testing.T) {
	tests := []struct {
		name    string
		repo    oneStudent
		reading attendance.Reading
		fetch   error
		want    error
		isKind  func(error) bool
	}{
		{
			name: "not registered",
			repo: oneStudent{},
			want: query.ErrNotRegistered,
		},
		{
			name: "no subjects mapped",
			repo: oneStudent{rec: registered(student.DepartmentMECH)},
			want: query.ErrNoSubjects,
		},
		{
			name:   "fetch failed",
			repo:   oneStudent{rec: registered(student.DepartmentCSE)},
			fetch:  errors.New("timeout"),
			isKind: shared.IsDataProvider,
		},
		{
			name:    "empty reading",
			repo:    oneStudent{rec: registered(student.DepartmentCSE)},
			reading: attendance.Reading{},
			isKind:  shared.IsDataProvider,
		},
		{
			name:   "storage failure is passed through",
			repo:   oneStudent{err: shared.WrapError("student", "GetBySession", shared.ErrStorage, "read", errors.New("eof"))},
			isKind: shared.IsStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			client := mocks.NewMockClient(ctrl)
			client.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(tt.reading, tt.fetch).AnyTimes()

			h := query.NewGetAttendanceHandler(tt.repo, client, catalog, "Student")
			_, err := h.Handle(context.Background(), query.GetAttendanceQuery{SessionID: "42"})
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			if tt.isKind != nil {
				assert.True(t, tt.isKind(err), err.Error())
			}
		})
	}
}

func TestGetAttendance_InvalidSession(t *testing.T) {
	h := query.NewGetAttendanceHandler(oneStudent{}, nil, catalog, "")
	_, err := h.Handle(context.Background(), query.GetAttendanceQuery{})
	assert.True(t, shared.IsValidation(err))
}
