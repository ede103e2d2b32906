package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/care-attendance/attendance-bot/config"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

func TestOpen_FileDriverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	stores, err := Open(ctx, config.StorageConfig{Driver: config.StorageFile, DataDir: dir}, nil)
	require.NoError(t, err)
	defer stores.Close()
	assert.Nil(t, stores.Ping)

	rec := &student.Record{
		SessionID:          "42",
		RegistrationNumber: "810700000001",
		DisplayName:        "Asha",
		Contact:            "9876543210",
		Department:         student.DepartmentCSE,
		Year:               student.YearIII,
	}
	require.NoError(t, stores.Students.Upsert(ctx, rec))

	_, err = os.Stat(filepath.Join(dir, StudentsFile))
	require.NoError(t, err)

	reopened, err := Open(ctx, config.StorageConfig{Driver: config.StorageFile, DataDir: dir}, nil)
	require.NoError(t, err)
	got, err := reopened.Students.GetBySession(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.DisplayName)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Driver: "mongo"}, nil)
	assert.ErrorContains(t, err, `unknown storage driver "mongo"`)
}
