package student

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

const selectColumns = `id, first_name, last_name, email, date_of_birth, course_id, created_at, updated_at`

// Repository persists students in Postgres.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create inserts a new student row.
func (r *Repository) Create(ctx context.Context, in Input) (Record, error) {
	rec := Record{
		ID:          uuid.NewString(),
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		DateOfBirth: truncateDay(in.DateOfBirth),
		CourseID:    in.CourseID,
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, first_name, last_name, email, date_of_birth, course_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, rec.ID, rec.FirstName, rec.LastName, rec.Email, rec.DateOfBirth, rec.CourseID)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, fmt.Errorf("insert student: %w", err)
	}
	return rec, nil
}

// ListPage returns one page ordered by creation time, newest first.
func (r *Repository) ListPage(ctx context.Context, page, limit int) ([]Record, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM students
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, Offset(page, limit))
	if err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// ListByAgeRange returns students whose birth date falls in the window
// derived from the age bounds.
func (r *Repository) ListByAgeRange(ctx context.Context, minAge, maxAge int) ([]Record, error) {
	from, to := BirthDateWindow(minAge, maxAge, r.now())
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM students
		WHERE date_of_birth BETWEEN $1 AND $2
		ORDER BY created_at DESC, id DESC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("filter students by age: %w", err)
	}
	return scanRecords(rows)
}

// ListByCourse returns the students enrolled in courseID.
func (r *Repository) ListByCourse(ctx context.Context, courseID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM students
		WHERE course_id = $1
		ORDER BY created_at DESC, id DESC
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list students for course: %w", err)
	}
	return scanRecords(rows)
}

// Get returns a single student by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, apperrors.NotFound("record cannot be found by id " + id)
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM students WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperrors.NotFound("record cannot be found by id " + id)
	}
	return rec, err
}

// Update overwrites every mutable column and refreshes updated_at.
func (r *Repository) Update(ctx context.Context, id string, in Input) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, apperrors.NotFound("record cannot be found by id " + id)
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE students
		SET first_name = $2, last_name = $3, email = $4, date_of_birth = $5, course_id = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+selectColumns,
		id, in.FirstName, in.LastName, in.Email, truncateDay(in.DateOfBirth), in.CourseID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperrors.NotFound("record cannot be found by id " + id)
	}
	return rec, err
}

// Delete removes a student and returns the deleted row.
func (r *Repository) Delete(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, apperrors.NotFound("record cannot be found by id " + id)
	}
	row := r.db.QueryRowContext(ctx, `DELETE FROM students WHERE id = $1 RETURNING `+selectColumns, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperrors.NotFound("record cannot be found by id " + id)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.FirstName, &rec.LastName, &rec.Email, &rec.DateOfBirth, &rec.CourseID, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
