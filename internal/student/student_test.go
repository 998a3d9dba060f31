package student

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAge(t *testing.T) {
	tests := []struct {
		dob, now time.Time
		want     int
	}{
		{date(2000, 6, 15), date(2024, 6, 14), 23},
		{date(2000, 6, 15), date(2024, 6, 15), 24},
		{date(2000, 6, 15), date(2024, 7, 1), 24},
		{date(2000, 6, 15), date(2024, 5, 30), 23},
		{date(2000, 12, 31), date(2001, 1, 1), 0},
		{date(2010, 1, 1), date(2010, 1, 1), 0},
	}
	for _, tt := range tests {
		if got := Age(tt.dob, tt.now); got != tt.want {
			t.Errorf("Age(%s, %s) = %d, want %d", tt.dob.Format(DateLayout), tt.now.Format(DateLayout), got, tt.want)
		}
	}
}

func TestBirthDateWindowMatchesAge(t *testing.T) {
	today := date(2024, 6, 15)
	from, to := BirthDateWindow(18, 25, today)
	if want := date(1998, 6, 16); !from.Equal(want) {
		t.Errorf("from = %s, want %s", from.Format(DateLayout), want.Format(DateLayout))
	}
	if want := date(2006, 6, 15); !to.Equal(want) {
		t.Errorf("to = %s, want %s", to.Format(DateLayout), want.Format(DateLayout))
	}

	for d := date(1995, 1, 1); d.Before(date(2009, 1, 1)); d = d.AddDate(0, 0, 1) {
		if d.Month() == time.February && d.Day() == 29 {
			continue
		}
		age := Age(d, today)
		inAge := age >= 18 && age <= 25
		inWindow := !d.Before(from) && !d.After(to)
		if inAge != inWindow {
			t.Fatalf("dob %s: age %d inAge=%v inWindow=%v", d.Format(DateLayout), age, inAge, inWindow)
		}
	}
}

func newTestService(now time.Time) (*Service, *MemoryStore) {
	clock := func() time.Time { return now }
	store := NewMemoryStore(clock)
	return NewServiceWithClock(store, zerolog.New(io.Discard), clock), store
}

func validInput(i int) Input {
	return Input{
		FirstName:   fmt.Sprintf("First%d", i),
		LastName:    fmt.Sprintf("Last%d", i),
		Email:       fmt.Sprintf("student%d@example.com", i),
		DateOfBirth: date(2000, 1, 1).AddDate(0, 0, i),
		CourseID:    "course-1",
	}
}

func TestCreateThenGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(date(2024, 6, 15))

	in := validInput(1)
	rec, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() || !rec.CreatedAt.Equal(rec.UpdatedAt) {
		t.Fatalf("id/timestamps not assigned: %+v", rec)
	}

	got, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != rec {
		t.Errorf("Get = %+v, want %+v", got, rec)
	}
	if got.FirstName != in.FirstName || got.LastName != in.LastName || got.Email != in.Email ||
		!got.DateOfBirth.Equal(in.DateOfBirth) || got.CourseID != in.CourseID {
		t.Errorf("stored fields differ from input: %+v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(date(2024, 6, 15))

	tests := []struct {
		name   string
		mutate func(*Input)
		field  string
	}{
		{"missing first name", func(in *Input) { in.FirstName = "  " }, "FirstName"},
		{"missing last name", func(in *Input) { in.LastName = "" }, "LastName"},
		{"bad email", func(in *Input) { in.Email = "not-an-email" }, "Email"},
		{"missing email", func(in *Input) { in.Email = "" }, "Email"},
		{"future birth date", func(in *Input) { in.DateOfBirth = date(2024, 6, 16) }, "DateOfBirth"},
		{"missing birth date", func(in *Input) { in.DateOfBirth = time.Time{} }, "DateOfBirth"},
		{"missing course", func(in *Input) { in.CourseID = "" }, "CourseID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput(1)
			tt.mutate(&in)
			_, err := svc.Create(ctx, in)
			if !errors.Is(err, apperrors.ErrValidationFailed) {
				t.Fatalf("err = %v, want ValidationFailed", err)
			}
			if _, ok := apperrors.DetailsOf(err)[tt.field]; !ok {
				t.Errorf("details %v missing %s", apperrors.DetailsOf(err), tt.field)
			}
		})
	}
	if store.Len() != 0 {
		t.Errorf("invalid input was persisted: %d records", store.Len())
	}
}

func TestBirthdayTodayIsNotFuture(t *testing.T) {
	svc, _ := newTestService(time.Date(2024, 6, 15, 23, 0, 0, 0, time.UTC))
	in := validInput(1)
	in.DateOfBirth = date(2024, 6, 15)
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	now := date(2024, 6, 15)
	store := NewMemoryStore(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	svc := NewService(store, zerolog.New(io.Discard))

	var created []Record
	for i := 0; i < 23; i++ {
		rec, err := store.Create(ctx, validInput(i))
		if err != nil {
			t.Fatal(err)
		}
		created = append(created, rec)
	}

	var all []Record
	for page := 1; ; page++ {
		p, err := svc.List(ctx, page, 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(p.Students) > 5 {
			t.Fatalf("page %d has %d items", page, len(p.Students))
		}
		if p.TotalRecords != 23 || p.TotalPages != 5 {
			t.Fatalf("totals = %d/%d", p.TotalRecords, p.TotalPages)
		}
		if len(p.Students) == 0 {
			break
		}
		all = append(all, p.Students...)
	}
	if len(all) != len(created) {
		t.Fatalf("got %d records, want %d", len(all), len(created))
	}
	for i, rec := range all {
		if want := created[len(created)-1-i]; rec.ID != want.ID {
			t.Fatalf("position %d = %s, want %s", i, rec.ID, want.ID)
		}
	}
}

func TestListClampsPageAndLimit(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(date(2024, 6, 15))
	for i := 0; i < 60; i++ {
		if _, err := store.Create(ctx, validInput(i)); err != nil {
			t.Fatal(err)
		}
	}

	p, err := svc.List(ctx, 0, 500)
	if err != nil {
		t.Fatal(err)
	}
	if p.Page != 1 || p.Limit != MaxLimit || len(p.Students) != MaxLimit {
		t.Errorf("page=%d limit=%d items=%d", p.Page, p.Limit, len(p.Students))
	}

	p, err = svc.List(ctx, -3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Page != 1 || p.Limit != DefaultLimit || p.TotalRecords != 60 {
		t.Errorf("page=%d limit=%d total=%d", p.Page, p.Limit, p.TotalRecords)
	}
}

func TestFilterByAge(t *testing.T) {
	ctx := context.Background()
	today := date(2024, 6, 15)
	svc, store := newTestService(today)

	dobs := []time.Time{
		date(2006, 6, 15), // 18 today
		date(2006, 6, 16), // 17
		date(1998, 6, 16), // 25
		date(1998, 6, 15), // 26 today
		date(2001, 3, 3),  // 23
		date(1980, 1, 1),  // 44
	}
	want := map[string]bool{}
	for i, dob := range dobs {
		in := validInput(i)
		in.DateOfBirth = dob
		rec, err := store.Create(ctx, in)
		if err != nil {
			t.Fatal(err)
		}
		if age := Age(dob, today); age >= 18 && age <= 25 {
			want[rec.ID] = true
		}
	}

	got, err := svc.FilterByAge(ctx, 18, 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for _, rec := range got {
		if !want[rec.ID] {
			t.Errorf("unexpected record born %s", rec.DateOfBirth.Format(DateLayout))
		}
	}

	if _, err := svc.FilterByAge(ctx, 30, 20); !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Errorf("inverted range err = %v", err)
	}
}

func TestUpdateDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	now := date(2024, 6, 15)
	clock := func() time.Time { return now }
	store := NewMemoryStore(clock)
	svc := NewServiceWithClock(store, zerolog.New(io.Discard), clock)

	rec, err := svc.Create(ctx, validInput(1))
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Hour)
	in := validInput(2)
	updated, err := svc.Update(ctx, rec.ID, in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ID != rec.ID || updated.Email != in.Email || !updated.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("unexpected update result %+v", updated)
	}
	if !updated.UpdatedAt.After(rec.UpdatedAt) {
		t.Errorf("updatedAt not refreshed")
	}

	deleted, err := svc.Delete(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted != updated {
		t.Errorf("Delete returned %+v, want %+v", deleted, updated)
	}

	for name, fn := range map[string]func() error{
		"get":    func() error { _, err := svc.Get(ctx, rec.ID); return err },
		"update": func() error { _, err := svc.Update(ctx, rec.ID, in); return err },
		"delete": func() error { _, err := svc.Delete(ctx, rec.ID); return err },
	} {
		if err := fn(); !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("%s after delete: err = %v, want NotFound", name, err)
		}
	}
}

func TestForCourse(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(date(2024, 6, 15))
	for i := 0; i < 4; i++ {
		in := validInput(i)
		if i%2 == 0 {
			in.CourseID = "course-2"
		}
		if _, err := store.Create(ctx, in); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := svc.ForCourse(ctx, "course-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("got %d records for course-2", len(recs))
	}
	if _, err := svc.ForCourse(ctx, ""); !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Errorf("empty course err = %v", err)
	}
}
