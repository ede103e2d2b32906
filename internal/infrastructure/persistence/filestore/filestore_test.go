package filestore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord(session, reg string) *student.Record {
	return &student.Record{
		SessionID:          student.SessionID(session),
		RegistrationNumber: student.RegistrationNumber(reg),
		DisplayName:        "Asha",
		Contact:            "9876543210",
		Department:         student.DepartmentCSE,
		Year:               student.YearIV,
	}
}

func TestStudentStore_UpsertByRegistrationNumber(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "students.json")

	s, err := OpenStudentStore(path, discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, testRecord("100", "810721104001")))

	again := testRecord("200", "810721104001")
	again.Contact = "9000000000"
	require.NoError(t, s.Upsert(ctx, again))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, student.SessionID("200"), all[0].SessionID)
	assert.Equal(t, student.Contact("9000000000"), all[0].Contact)
	assert.False(t, all[0].CreatedAt.IsZero())

	_, err = s.GetBySession(ctx, "100")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	got, err := s.GetByRegistration(ctx, "810721104001")
	require.NoError(t, err)
	assert.Equal(t, student.SessionID("200"), got.SessionID)
}

func TestStudentStore_OneRecordPerSession(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStudentStore(filepath.Join(t.TempDir(), "students.json"), discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, testRecord("100", "810721104001")))
	require.NoError(t, s.Upsert(ctx, testRecord("100", "810721104002")))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, student.RegistrationNumber("810721104002"), all[0].RegistrationNumber)
}

func TestStudentStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "students.json")

	s, err := OpenStudentStore(path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, testRecord("100", "810721104001")))

	reopened, err := OpenStudentStore(path, discardLogger())
	require.NoError(t, err)
	got, err := reopened.GetBySession(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, student.YearIV, got.Year)
}

func TestStudentStore_RejectsInvalidRecord(t *testing.T) {
	s, err := OpenStudentStore(filepath.Join(t.TempDir(), "students.json"), discardLogger())
	require.NoError(t, err)

	bad := testRecord("100", "810721104001")
	bad.Year = "V"
	assert.True(t, shared.IsValidation(s.Upsert(context.Background(), bad)))
}

func TestStudentStore_FlushFailureKeepsIndex(t *testing.T) {
	ctx := context.Background()
	sub := filepath.Join(t.TempDir(), "data")

	s, err := OpenStudentStore(filepath.Join(sub, "students.json"), discardLogger())
	require.NoError(t, err)

	// a regular file where the data directory should be
	require.NoError(t, os.WriteFile(sub, []byte("x"), 0o644))

	err = s.Upsert(ctx, testRecord("100", "810721104001"))
	assert.True(t, shared.IsStorage(err))

	_, err = s.ListAll(ctx)
	assert.True(t, shared.IsStorage(err))

	require.NoError(t, os.Remove(sub))
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStudentStore_ConcurrentUpsertAndList(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStudentStore(filepath.Join(t.TempDir(), "students.json"), discardLogger())
	require.NoError(t, err)

	regs := []string{"810721104001", "810721104002", "810721104003", "810721104004"}
	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(2)
		go func(i int, reg string) {
			defer wg.Done()
			assert.NoError(t, s.Upsert(ctx, testRecord(string(rune('a'+i)), reg)))
		}(i, reg)
		go func() {
			defer wg.Done()
			_, err := s.ListAll(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(regs))
}

func TestSnapshotStore_SetAllAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "attendance.json")

	s, err := OpenSnapshotStore(path, discardLogger())
	require.NoError(t, err)

	_, err = s.Get(ctx, "810721104001")
	assert.ErrorIs(t, err, shared.ErrSnapshotNotFound)

	overall := 82.5
	snaps := attendance.Snapshots{
		"810721104001": {
			Subjects:   attendance.Reading{"CS3351": 80, "CS3352": 85},
			Overall:    &overall,
			ObservedAt: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, s.SetAll(ctx, snaps))

	reopened, err := OpenSnapshotStore(path, discardLogger())
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "810721104001")
	require.NoError(t, err)
	assert.Equal(t, 85.0, got.Subjects["CS3352"])
	require.NotNil(t, got.Overall)
	assert.Equal(t, 82.5, *got.Overall)

	all, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSnapshotStore_SeesWritesFromAnotherProcess(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "attendance.json")

	bot, err := OpenSnapshotStore(path, discardLogger())
	require.NoError(t, err)
	worker, err := OpenSnapshotStore(path, discardLogger())
	require.NoError(t, err)

	require.NoError(t, bot.SetAll(ctx, attendance.Snapshots{
		"810721104001": {Subjects: attendance.Reading{"CS3351": 90}},
	}))

	all, err := worker.LoadAll(ctx)
	require.NoError(t, err)
	require.Contains(t, all, student.RegistrationNumber("810721104001"))
	assert.Equal(t, 90.0, all["810721104001"].Subjects["CS3351"])

	require.NoError(t, worker.SetAll(ctx, attendance.Snapshots{
		"810721104001": {Subjects: attendance.Reading{"CS3351": 88}},
	}))
	got, err := bot.Get(ctx, "810721104001")
	require.NoError(t, err)
	assert.Equal(t, 88.0, got.Subjects["CS3351"])
}

func TestStudentStore_SeesWritesFromAnotherProcess(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "students.json")

	bot, err := OpenStudentStore(path, discardLogger())
	require.NoError(t, err)
	worker, err := OpenStudentStore(path, discardLogger())
	require.NoError(t, err)

	require.NoError(t, bot.Upsert(ctx, testRecord("100", "810721104001")))

	all, err := worker.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, student.SessionID("100"), all[0].SessionID)

	// an upsert from the other process keeps records it has not seen yet
	require.NoError(t, bot.Upsert(ctx, testRecord("200", "810721104002")))
	require.NoError(t, worker.Upsert(ctx, testRecord("300", "810721104003")))

	all, err = bot.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	rec, err := bot.GetBySession(ctx, "300")
	require.NoError(t, err)
	assert.Equal(t, student.RegistrationNumber("810721104003"), rec.RegistrationNumber)
}
