// Package student persists student records and exposes the queries the
// import and filter jobs depend on.
package student

import (
	"context"
	"time"
)

// DateLayout is the calendar date format used on the wire and in exports.
const DateLayout = "2006-01-02"

// Record is a persisted student.
type Record struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Email       string    `json:"email"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	CourseID    string    `json:"courseId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AgeOn returns the record's derived age at now.
func (r Record) AgeOn(now time.Time) int {
	return Age(r.DateOfBirth, now)
}

// Input carries the mutable fields of a record, for create and update.
type Input struct {
	FirstName   string    `json:"firstName" validate:"required"`
	LastName    string    `json:"lastName" validate:"required"`
	Email       string    `json:"email" validate:"required,email"`
	DateOfBirth time.Time `json:"dateOfBirth" validate:"required,notfuture"`
	CourseID    string    `json:"courseId" validate:"required"`
}

// Store is the persistence contract of the pipeline. Implementations do not
// validate input; Service does that at the boundary.
type Store interface {
	Create(ctx context.Context, in Input) (Record, error)
	ListPage(ctx context.Context, page, limit int) ([]Record, int, error)
	ListByAgeRange(ctx context.Context, minAge, maxAge int) ([]Record, error)
	ListByCourse(ctx context.Context, courseID string) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, id string, in Input) (Record, error)
	Delete(ctx context.Context, id string) (Record, error)
}

// Age is the number of whole years between dob and now. A birthday not yet
// reached in now's year does not count.
func Age(dob, now time.Time) int {
	now = now.In(dob.Location())
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// BirthDateWindow translates inclusive age bounds into the inclusive range of
// birth dates [from, to] evaluated at today:
//
//	from = today - (maxAge+1) years + 1 day
//	to   = today - minAge years
//
// Birthdays on Feb 29 can land one day off.
func BirthDateWindow(minAge, maxAge int, today time.Time) (from, to time.Time) {
	day := truncateDay(today)
	from = day.AddDate(-(maxAge + 1), 0, 1)
	to = day.AddDate(-minAge, 0, 0)
	return from, to
}

// Offset converts a 1-based page into a row offset, clamping page to 1.
func Offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
