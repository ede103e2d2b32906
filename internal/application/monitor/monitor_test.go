package monitor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/care-attendance/attendance-bot/internal/application/monitor"
	"github.com/care-attendance/attendance-bot/internal/application/monitor/mocks"
	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/pkg/timeutil"
)

var now = time.Date(2024, 11, 4, 9, 30, 0, 0, time.UTC)

type deps struct {
	students  *mocks.MockStudents
	snapshots *mocks.MockSnapshotRepository
	client    *mocks.MockClient
	notifier  *mocks.MockNotifier
	locker    *mocks.MockLocker
}

func newDeps(t *testing.T) deps {
	ctrl := gomock.NewController(t)
	return deps{
		students:  mocks.NewMockStudents(ctrl),
		snapshots: mocks.NewMockSnapshotRepository(ctrl),
		client:    mocks.NewMockClient(ctrl),
		notifier:  mocks.NewMockNotifier(ctrl),
		locker:    mocks.NewMockLocker(ctrl),
	}
}

func (d deps) monitor(withLock bool) *monitor.Monitor {
	cfg := monitor.DefaultConfig()
	cfg.Catalog = attendance.SubjectCatalog{
		{Department: student.DepartmentCSE, Year: student.YearIII}: {"A", "B"},
	}
	cfg.Clock = timeutil.NewManualClock(now)
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if withLock {
		cfg.Locker = d.locker
	}
	return monitor.New(d.students, d.snapshots, d.client, d.notifier, cfg)
}

func rec(session, reg string) *student.Record {
	return &student.Record{
		SessionID:          student.SessionID(session),
		RegistrationNumber: student.RegistrationNumber(reg),
		DisplayName:        "Student " + session,
		Contact:            "9876543210",
		Department:         student.DepartmentCSE,
		Year:               student.YearIII,
	}
}

func ptr(v float64) *float64 { return &v }

// captureSetAll expects exactly one SetAll and stores its argument.
func captureSetAll(d deps, into *attendance.Snapshots, err error) {
	d.snapshots.EXPECT().SetAll(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s attendance.Snapshots) error {
			*into = s
			return err
		}).Times(1)
}

func captureAlert(d deps, session string, into *attendance.Alert, err error) {
	d.notifier.EXPECT().NotifyAlert(gomock.Any(), student.SessionID(session), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ student.SessionID, a attendance.Alert) error {
			*into = a
			return err
		}).Times(1)
}

func TestRunOnce_ColdStartLowOverallAlerts(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{rec("1", "810700000001")}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(attendance.Snapshots{}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), student.RegistrationNumber("810700000001")).
		Return(attendance.Reading{"A": 70, "B": 79.9, "C": 99}, nil)

	var alert attendance.Alert
	captureAlert(d, "1", &alert, nil)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	report, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, attendance.SeverityCritical, alert.Severity)
	assert.InDelta(t, 74.95, alert.Overall, 1e-9)
	assert.Empty(t, alert.Drops, "no drops on cold start")
	assert.Equal(t, "Student 1", alert.DisplayName)

	snap := saved["810700000001"]
	assert.Equal(t, attendance.Reading{"A": 70, "B": 79.9, "C": 99}, snap.Subjects)
	require.NotNil(t, snap.Overall)
	assert.InDelta(t, 74.95, *snap.Overall, 1e-9)
	assert.Equal(t, now, snap.ObservedAt)

	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Alerts)
	assert.True(t, report.Persisted)
	assert.NotEmpty(t, report.CycleID)
}

func TestRunOnce_DropOnlyAlert(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{rec("1", "810700000001")}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(attendance.Snapshots{
		"810700000001": {Subjects: attendance.Reading{"A": 90, "B": 90}, Overall: ptr(90)},
	}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(attendance.Reading{"A": 88, "B": 90}, nil)

	var alert attendance.Alert
	captureAlert(d, "1", &alert, nil)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	_, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, attendance.SeverityDropOnly, alert.Severity)
	require.Len(t, alert.Drops, 1)
	assert.Equal(t, "A: 90.00% -> 88.00%", alert.Drops[0].String())
	assert.Equal(t, 88.0, saved["810700000001"].Subjects["A"])
}

func TestRunOnce_SmallDipIsNotADrop(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{rec("1", "810700000001")}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(attendance.Snapshots{
		"810700000001": {Subjects: attendance.Reading{"A": 90, "B": 90}},
	}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(attendance.Reading{"A": 89.9, "B": 90}, nil)
	d.notifier.EXPECT().NotifyAlert(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	report, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Alerts)
	assert.Equal(t, 89.9, saved["810700000001"].Subjects["A"])
}

func TestRunOnce_FailedFetchIsIsolated(t *testing.T) {
	d := newDeps(t)
	prev := attendance.Snapshots{
		"810700000001": {Subjects: attendance.Reading{"A": 95, "B": 95}, Overall: ptr(95)},
	}
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{
		rec("1", "810700000001"),
		rec("2", "810700000002"),
	}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(prev, nil)
	d.client.EXPECT().Fetch(gomock.Any(), student.RegistrationNumber("810700000001")).
		Return(nil, shared.WrapError("attendance", "Fetch", shared.ErrDataProvider, "boom", errors.New("502")))
	d.client.EXPECT().Fetch(gomock.Any(), student.RegistrationNumber("810700000002")).
		Return(attendance.Reading{"A": 60, "B": 70}, nil)

	var alert attendance.Alert
	captureAlert(d, "2", &alert, nil)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	report, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, attendance.SeverityCritical, alert.Severity)
	assert.Equal(t, prev["810700000001"], saved["810700000001"], "failed fetch keeps the previous snapshot")
	assert.Equal(t, attendance.Reading{"A": 60, "B": 70}, saved["810700000002"].Subjects)
	assert.Equal(t, 1, report.FetchFailed)
	assert.Equal(t, 1, report.Checked)
}

func TestRunOnce_EmptyReadingIsTreatedAsFailure(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{rec("1", "810700000001")}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(nil, nil)
	d.client.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(attendance.Reading{}, nil)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	report, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, saved)
	assert.Equal(t, 1, report.FetchFailed)
}

func TestRunOnce_SendFailureStillUpdatesSnapshot(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{rec("1", "810700000001")}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(attendance.Snapshots{}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(attendance.Reading{"A": 78, "B": 78}, nil)

	var alert attendance.Alert
	captureAlert(d, "1", &alert, errors.New("bot was blocked by the user"))
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	report, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, attendance.SeverityWarning, alert.Severity)
	assert.Contains(t, saved, student.RegistrationNumber("810700000001"))
	assert.Equal(t, 1, report.DeliveryFailed)
	assert.Zero(t, report.Alerts)
}

func TestRunOnce_PersistFailureIsReported(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{rec("1", "810700000001")}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(attendance.Snapshots{}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(attendance.Reading{"A": 50, "B": 50}, nil)
	var alert attendance.Alert
	captureAlert(d, "1", &alert, nil)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, errors.New("disk full"))

	report, err := d.monitor(false).RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsStorage(err))
	assert.Equal(t, 1, report.Alerts, "alerts are sent before persisting")
	assert.False(t, report.Persisted)
}

func TestRunOnce_UndefinedOverallUpdatesSnapshotWithoutAlert(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{rec("1", "810700000001")}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(attendance.Snapshots{}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(attendance.Reading{"Z": 10}, nil)
	d.notifier.EXPECT().NotifyAlert(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	_, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)

	snap := saved["810700000001"]
	assert.Equal(t, attendance.Reading{"Z": 10}, snap.Subjects)
	assert.Nil(t, snap.Overall)
}

func TestRunOnce_SkipsUnmappedAndIncompleteRecords(t *testing.T) {
	d := newDeps(t)
	unmapped := rec("1", "810700000001")
	unmapped.Department = student.DepartmentMECH
	noSession := rec("", "810700000002")

	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{unmapped, noSession}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(attendance.Snapshots{}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), gomock.Any()).Times(0)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	report, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
}

func TestRunOnce_PanicIsContainedToOneStudent(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{
		rec("1", "810700000001"),
		rec("2", "810700000002"),
	}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(attendance.Snapshots{}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), student.RegistrationNumber("810700000001")).
		DoAndReturn(func(context.Context, student.RegistrationNumber) (attendance.Reading, error) {
			panic("decoder exploded")
		})
	d.client.EXPECT().Fetch(gomock.Any(), student.RegistrationNumber("810700000002")).
		Return(attendance.Reading{"A": 95, "B": 95}, nil)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	report, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Panicked)
	assert.Contains(t, saved, student.RegistrationNumber("810700000002"))
	assert.NotContains(t, saved, student.RegistrationNumber("810700000001"))
}

func TestRunOnce_PrunesSnapshotsOfRemovedStudents(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return(nil, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(attendance.Snapshots{
		"810799999999": {Subjects: attendance.Reading{"A": 90}},
	}, nil)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	_, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestRunOnce_LockHeldElsewhereSkipsCycle(t *testing.T) {
	d := newDeps(t)
	d.locker.EXPECT().TryLock(gomock.Any(), monitor.LockResource).Return(nil, false, nil)
	d.students.EXPECT().ListAll(gomock.Any()).Times(0)

	report, err := d.monitor(true).RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Locked)
}

func TestRunOnce_LockReleasedAfterCycle(t *testing.T) {
	d := newDeps(t)
	released := false
	d.locker.EXPECT().TryLock(gomock.Any(), monitor.LockResource).
		Return(func(context.Context) error { released = true; return nil }, true, nil)
	d.students.EXPECT().ListAll(gomock.Any()).Return(nil, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(nil, nil)
	d.snapshots.EXPECT().SetAll(gomock.Any(), gomock.Any()).Return(nil)

	_, err := d.monitor(true).RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, released)
}

func TestRunOnce_LoadFailureAbortsBeforeFetching(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{rec("1", "810700000001")}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(nil, errors.New("connection refused"))
	d.client.EXPECT().Fetch(gomock.Any(), gomock.Any()).Times(0)
	d.snapshots.EXPECT().SetAll(gomock.Any(), gomock.Any()).Times(0)

	_, err := d.monitor(false).RunOnce(context.Background())
	require.Error(t, err)
}

func TestRunOnce_NonFiniteValuesDoNotBlockPersistence(t *testing.T) {
	d := newDeps(t)
	d.students.EXPECT().ListAll(gomock.Any()).Return([]*student.Record{
		rec("1", "810700000001"),
		rec("2", "810700000002"),
		rec("3", "810700000003"),
	}, nil)
	d.snapshots.EXPECT().LoadAll(gomock.Any()).Return(attendance.Snapshots{}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), student.RegistrationNumber("810700000001")).
		Return(attendance.Reading{"A": math.NaN(), "B": 90}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), student.RegistrationNumber("810700000002")).
		Return(attendance.Reading{"A": 95, "B": 85}, nil)
	d.client.EXPECT().Fetch(gomock.Any(), student.RegistrationNumber("810700000003")).
		Return(attendance.Reading{"A": math.Inf(1)}, nil)
	var saved attendance.Snapshots
	captureSetAll(d, &saved, nil)

	report, err := d.monitor(false).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, attendance.Reading{"B": 90}, saved["810700000001"].Subjects)
	assert.Equal(t, attendance.Reading{"A": 95, "B": 85}, saved["810700000002"].Subjects)
	assert.NotContains(t, saved, student.RegistrationNumber("810700000003"))
	assert.Equal(t, 1, report.FetchFailed)

	_, err = json.Marshal(saved)
	assert.NoError(t, err)
}
