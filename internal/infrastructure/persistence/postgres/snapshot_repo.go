package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements attendance.SnapshotRepository for PostgreSQL.
type SnapshotRepository struct {
	conn *Connection
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(conn *Connection) *SnapshotRepository {
	return &SnapshotRepository{conn: conn}
}

// Get returns the snapshot for reg.
func (r *SnapshotRepository) Get(ctx context.Context, reg student.RegistrationNumber) (attendance.Snapshot, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT registration_number, subjects, overall, observed_at
		 FROM attendance_snapshots WHERE registration_number = $1`,
		string(reg),
	)
	_, snap, err := scanSnapshot(row)
	if err != nil {
		if IsNoRows(err) {
			return attendance.Snapshot{}, shared.ErrSnapshotNotFound
		}
		return attendance.Snapshot{}, shared.WrapError("attendance", "Get", shared.ErrStorage, "failed to load snapshot", err)
	}
	return snap, nil
}

// LoadAll reads every snapshot in one query.
func (r *SnapshotRepository) LoadAll(ctx context.Context) (attendance.Snapshots, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT registration_number, subjects, overall, observed_at FROM attendance_snapshots`,
	)
	if err != nil {
		return nil, shared.WrapError("attendance", "LoadAll", shared.ErrStorage, "failed to query snapshots", err)
	}
	defer rows.Close()

	out := make(attendance.Snapshots)
	for rows.Next() {
		reg, snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, shared.WrapError("attendance", "LoadAll", shared.ErrStorage, "failed to scan snapshot", err)
		}
		out[reg] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("attendance", "LoadAll", shared.ErrStorage, "failed to read snapshots", err)
	}
	return out, nil
}

// SetAll upserts every snapshot in a single transaction using one batch.
func (r *SnapshotRepository) SetAll(ctx context.Context, snapshots attendance.Snapshots) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for reg, snap := range snapshots {
		subjects, err := json.Marshal(snap.Subjects)
		if err != nil {
			return shared.WrapError("attendance", "SetAll", shared.ErrStorage, "failed to encode snapshot", err)
		}
		observed := snap.ObservedAt
		if observed.IsZero() {
			observed = time.Now().UTC()
		}
		batch.Queue(`
			INSERT INTO attendance_snapshots (registration_number, subjects, overall, observed_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (registration_number) DO UPDATE SET
				subjects = EXCLUDED.subjects,
				overall = EXCLUDED.overall,
				observed_at = EXCLUDED.observed_at
		`, string(reg), subjects, snap.Overall, observed)
	}

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return shared.WrapError("attendance", "SetAll", shared.ErrStorage, "failed to persist snapshots", err)
	}
	return nil
}

func scanSnapshot(row pgx.Row) (student.RegistrationNumber, attendance.Snapshot, error) {
	var (
		reg      string
		subjects []byte
		snap     attendance.Snapshot
	)
	if err := row.Scan(&reg, &subjects, &snap.Overall, &snap.ObservedAt); err != nil {
		return "", attendance.Snapshot{}, err
	}
	if err := json.Unmarshal(subjects, &snap.Subjects); err != nil {
		return "", attendance.Snapshot{}, fmt.Errorf("decode subjects: %w", err)
	}
	return student.RegistrationNumber(reg), snap, nil
}
