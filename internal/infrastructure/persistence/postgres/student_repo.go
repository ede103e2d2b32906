package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `registration_number, session_id, display_name, contact,
	department, year, created_at, updated_at`

// GetBySession returns the record delivered to sessionID.
func (r *StudentRepository) GetBySession(ctx context.Context, sessionID student.SessionID) (*student.Record, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE session_id = $1`,
		string(sessionID),
	)
	return r.scanOne(row, "GetBySession")
}

// GetByRegistration returns the record with the given registration number.
func (r *StudentRepository) GetByRegistration(ctx context.Context, reg student.RegistrationNumber) (*student.Record, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE registration_number = $1`,
		string(reg),
	)
	return r.scanOne(row, "GetByRegistration")
}

// Upsert inserts or replaces the record keyed by registration number.
// A different record still bound to the same session is removed in the same
// transaction, keeping one record per session.
func (r *StudentRepository) Upsert(ctx context.Context, rec *student.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM students WHERE session_id = $1 AND registration_number <> $2`,
			string(rec.SessionID), string(rec.RegistrationNumber),
		)
		if err != nil {
			return fmt.Errorf("release session: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO students (`+studentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (registration_number) DO UPDATE SET
				session_id = EXCLUDED.session_id,
				display_name = EXCLUDED.display_name,
				contact = EXCLUDED.contact,
				department = EXCLUDED.department,
				year = EXCLUDED.year,
				updated_at = EXCLUDED.updated_at
		`,
			string(rec.RegistrationNumber),
			string(rec.SessionID),
			rec.DisplayName,
			string(rec.Contact),
			string(rec.Department),
			string(rec.Year),
			now,
		)
		if err != nil {
			return fmt.Errorf("upsert student: %w", err)
		}
		return nil
	})
	if err != nil {
		return upsertError(err)
	}
	return nil
}

// upsertError maps a failed upsert. A unique violation here means a
// concurrent upsert bound the same session to another registration number.
func upsertError(err error) error {
	if IsUniqueViolation(err) {
		return shared.WrapError("student", "Upsert", shared.ErrStorage, "session is bound to another registration number", err)
	}
	return shared.WrapError("student", "Upsert", shared.ErrStorage, "failed to upsert student", err)
}

// ListAll returns every record ordered by registration number.
func (r *StudentRepository) ListAll(ctx context.Context) ([]*student.Record, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+studentColumns+` FROM students ORDER BY registration_number`,
	)
	if err != nil {
		return nil, shared.WrapError("student", "ListAll", shared.ErrStorage, "failed to list students", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*student.Record, error) {
		return scanStudent(row)
	})
	if err != nil {
		return nil, shared.WrapError("student", "ListAll", shared.ErrStorage, "failed to scan students", err)
	}
	return records, nil
}

func (r *StudentRepository) scanOne(row pgx.Row, op string) (*student.Record, error) {
	rec, err := scanStudent(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, shared.WrapError("student", op, shared.ErrStorage, "failed to load student", err)
	}
	return rec, nil
}

func scanStudent(row pgx.Row) (*student.Record, error) {
	var (
		rec                                            student.Record
		reg, session, contact, dept, year, displayName string
	)
	err := row.Scan(&reg, &session, &displayName, &contact, &dept, &year, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.RegistrationNumber = student.RegistrationNumber(reg)
	rec.SessionID = student.SessionID(session)
	rec.DisplayName = displayName
	rec.Contact = student.Contact(contact)
	rec.Department = student.Department(dept)
	rec.Year = student.Year(year)
	return &rec, nil
}
