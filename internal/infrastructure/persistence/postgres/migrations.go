package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_students",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_attendance_snapshots",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    registration_number VARCHAR(32) PRIMARY KEY,
    session_id VARCHAR(64) NOT NULL,
    display_name VARCHAR(128) NOT NULL DEFAULT '',
    contact VARCHAR(254) NOT NULL,
    department VARCHAR(8) NOT NULL,
    year VARCHAR(4) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_department CHECK (department IN ('CSE', 'MECH', 'ECE', 'AIDS')),
    CONSTRAINT valid_year CHECK (year IN ('I', 'II', 'III', 'IV'))
);

-- one record per session
CREATE UNIQUE INDEX IF NOT EXISTS idx_students_session_id ON students(session_id);
`

const migration001Down = `
DROP TABLE IF EXISTS students;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS attendance_snapshots (
    registration_number VARCHAR(32) PRIMARY KEY,
    subjects JSONB NOT NULL DEFAULT '{}'::jsonb,
    overall DOUBLE PRECISION,
    observed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration002Down = `
DROP TABLE IF EXISTS attendance_snapshots;
`
