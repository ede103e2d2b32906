// Package persistence opens the configured record stores.
package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/care-attendance/attendance-bot/config"
	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/persistence/filestore"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/persistence/postgres"
	"github.com/care-attendance/attendance-bot/pkg/retry"
)

// File names used by the file driver inside DATA_DIR.
const (
	StudentsFile  = "students.json"
	SnapshotsFile = "snapshots.json"
)

// Stores holds the repositories of one storage driver.
type Stores struct {
	Students  student.Repository
	Snapshots attendance.SnapshotRepository

	// Ping reports backend health. Nil for the file driver.
	Ping func(ctx context.Context) error

	close func()
}

// Close releases the backend.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open opens the stores selected by cfg.Driver. The postgres driver applies
// pending migrations before returning.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case config.StoragePostgres:
		opts := postgres.DefaultPoolOptions()
		if cfg.MaxConns > 0 {
			opts.MaxConns = cfg.MaxConns
		}
		conn, err := retry.DoWithData(ctx, StartupRetrier(logger, "postgres"), func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.NewConnectionFromURL(ctx, cfg.DatabaseURL, opts)
		})
		if err != nil {
			return nil, err
		}
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("postgres: migrate: %w", err)
		}
		logger.Info("postgres storage ready")
		return &Stores{
			Students:  postgres.NewStudentRepository(conn),
			Snapshots: postgres.NewSnapshotRepository(conn),
			Ping:      conn.Ping,
			close:     conn.Close,
		}, nil

	case config.StorageFile, "":
		students, err := filestore.OpenStudentStore(filepath.Join(cfg.DataDir, StudentsFile), logger)
		if err != nil {
			return nil, err
		}
		snapshots, err := filestore.OpenSnapshotStore(filepath.Join(cfg.DataDir, SnapshotsFile), logger)
		if err != nil {
			return nil, err
		}
		logger.Info("file storage ready", "dir", cfg.DataDir)
		return &Stores{Students: students, Snapshots: snapshots}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// StartupRetrier retries a backend connection at boot and logs each failure.
func StartupRetrier(logger *slog.Logger, backend string) *retry.Retrier {
	return retry.StartupRetrier(retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Warn("backend not reachable yet", "backend", backend, "attempt", attempt, "retry_in", delay.String(), "error", err)
	}))
}
