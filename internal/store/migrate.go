package store

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id            UUID PRIMARY KEY,
		first_name    TEXT NOT NULL,
		last_name     TEXT NOT NULL,
		email         TEXT NOT NULL,
		date_of_birth DATE NOT NULL,
		course_id     TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS students_created_at_idx ON students (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS students_date_of_birth_idx ON students (date_of_birth)`,
	`CREATE INDEX IF NOT EXISTS students_course_id_idx ON students (course_id)`,
}

// Migrate creates the students table and its indexes if they are missing.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
