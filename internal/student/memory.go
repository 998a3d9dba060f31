package student

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

// MemoryStore is a Store kept in process memory. It backs STORE_BACKEND=memory
// and the tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRow
	seq     int64
	now     func() time.Time
}

type memoryRow struct {
	Record
	seq int64
}

// NewMemoryStore creates an empty store. now may be nil for time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{records: make(map[string]memoryRow), now: now}
}

// Create stores a new record.
func (s *MemoryStore) Create(_ context.Context, in Input) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	s.seq++
	rec := Record{
		ID:          uuid.NewString(),
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		DateOfBirth: truncateDay(in.DateOfBirth),
		CourseID:    in.CourseID,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	s.records[rec.ID] = memoryRow{Record: rec, seq: s.seq}
	return rec, nil
}

// ListPage returns the records of one page, newest first, and the total count.
func (s *MemoryStore) ListPage(_ context.Context, page, limit int) ([]Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.sorted()
	total := len(rows)
	start := Offset(page, limit)
	if start >= total || limit <= 0 {
		return []Record{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]Record, 0, end-start)
	for _, row := range rows[start:end] {
		out = append(out, row.Record)
	}
	return out, total, nil
}

// ListByAgeRange returns records born inside BirthDateWindow(minAge, maxAge).
func (s *MemoryStore) ListByAgeRange(_ context.Context, minAge, maxAge int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := BirthDateWindow(minAge, maxAge, s.now())
	out := []Record{}
	for _, row := range s.sorted() {
		dob := truncateDay(row.DateOfBirth)
		if !dob.Before(from) && !dob.After(to) {
			out = append(out, row.Record)
		}
	}
	return out, nil
}

// ListByCourse returns every record referencing courseID.
func (s *MemoryStore) ListByCourse(_ context.Context, courseID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Record{}
	for _, row := range s.sorted() {
		if row.CourseID == courseID {
			out = append(out, row.Record)
		}
	}
	return out, nil
}

// Get returns the record with id.
func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.records[id]
	if !ok {
		return Record{}, apperrors.NotFound("record cannot be found by id " + id)
	}
	return row.Record, nil
}

// Update overwrites the mutable fields of the record with id.
func (s *MemoryStore) Update(_ context.Context, id string, in Input) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.records[id]
	if !ok {
		return Record{}, apperrors.NotFound("record cannot be found by id " + id)
	}
	row.FirstName = in.FirstName
	row.LastName = in.LastName
	row.Email = in.Email
	row.DateOfBirth = truncateDay(in.DateOfBirth)
	row.CourseID = in.CourseID
	row.UpdatedAt = s.now().UTC()
	s.records[id] = row
	return row.Record, nil
}

// Delete removes the record with id and returns what was removed.
func (s *MemoryStore) Delete(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.records[id]
	if !ok {
		return Record{}, apperrors.NotFound("record cannot be found by id " + id)
	}
	delete(s.records, id)
	return row.Record, nil
}

// Len reports how many records are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// sorted orders rows newest first; insertion order breaks timestamp ties.
// Callers hold the lock.
func (s *MemoryStore) sorted() []memoryRow {
	rows := make([]memoryRow, 0, len(s.records))
	for _, row := range s.records {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	return rows
}
