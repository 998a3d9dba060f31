package student

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

// Pagination limits enforced at the caller-facing boundary.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Page is one page of records plus counts.
type Page struct {
	Students     []Record `json:"students"`
	TotalRecords int      `json:"totalRecords"`
	TotalPages   int      `json:"totalPages"`
	Page         int      `json:"page"`
	Limit        int      `json:"limit"`
}

// Service validates input and maps store failures onto the apperrors kinds.
type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a service backed by a store.
func NewService(store Store, log zerolog.Logger) *Service {
	return NewServiceWithClock(store, log, time.Now)
}

// NewServiceWithClock is NewService with an explicit clock for the
// date-of-birth check.
func NewServiceWithClock(store Store, log zerolog.Logger, now func() time.Time) *Service {
	s := &Service{store: store, validate: validator.New(), now: now, log: log}
	_ = s.validate.RegisterValidation("notfuture", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		return ok && !truncateDay(t).After(truncateDay(s.now()))
	})
	return s
}

// Validate checks in and returns a ValidationFailed error describing every
// failing field.
func (s *Service) Validate(in Input) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Validation(err.Error())
	}
	fields := make(map[string]any, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fieldMessage(fe)
		fields[fe.Field()] = msg
		msgs = append(msgs, msg)
	}
	return apperrors.Validation(strings.Join(msgs, "; ")).WithDetails(fields)
}

// Create validates and persists a new record.
func (s *Service) Create(ctx context.Context, in Input) (Record, error) {
	in = normalize(in)
	if err := s.Validate(in); err != nil {
		return Record{}, err
	}
	rec, err := s.store.Create(ctx, in)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create student")
		return Record{}, fmt.Errorf("%w: failed to create student", apperrors.ErrStoreWrite)
	}
	return rec, nil
}

// List returns a page of records. page <= 0 is treated as 1; limit defaults
// to DefaultLimit and is capped at MaxLimit.
func (s *Service) List(ctx context.Context, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	recs, total, err := s.store.ListPage(ctx, page, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch students")
		return Page{}, errors.New("failed to fetch students")
	}
	return Page{
		Students:     recs,
		TotalRecords: total,
		TotalPages:   (total + limit - 1) / limit,
		Page:         page,
		Limit:        limit,
	}, nil
}

// FilterByAge returns the records whose derived age is within [minAge, maxAge].
func (s *Service) FilterByAge(ctx context.Context, minAge, maxAge int) ([]Record, error) {
	if err := ValidateAgeRange(minAge, maxAge); err != nil {
		return nil, err
	}
	recs, err := s.store.ListByAgeRange(ctx, minAge, maxAge)
	if err != nil {
		s.log.Error().Err(err).Int("minAge", minAge).Int("maxAge", maxAge).Msg("failed to filter students by age")
		return nil, errors.New("failed to filter students by age")
	}
	return recs, nil
}

// ForCourse returns the students of a course.
func (s *Service) ForCourse(ctx context.Context, courseID string) ([]Record, error) {
	if strings.TrimSpace(courseID) == "" {
		return nil, apperrors.Validation("course id is required")
	}
	recs, err := s.store.ListByCourse(ctx, courseID)
	if err != nil {
		s.log.Error().Err(err).Str("courseId", courseID).Msg("failed to fetch students for course")
		return nil, errors.New("failed to fetch students for course")
	}
	return recs, nil
}

// Get returns one record or a NotFound error.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	rec, err := s.store.Get(ctx, id)
	return rec, s.mapErr(err, "fetch", id)
}

// Update validates in and overwrites the record with id.
func (s *Service) Update(ctx context.Context, id string, in Input) (Record, error) {
	in = normalize(in)
	if err := s.Validate(in); err != nil {
		return Record{}, err
	}
	rec, err := s.store.Update(ctx, id, in)
	return rec, s.mapErr(err, "update", id)
}

// Delete removes the record with id and returns its last state.
func (s *Service) Delete(ctx context.Context, id string) (Record, error) {
	rec, err := s.store.Delete(ctx, id)
	return rec, s.mapErr(err, "delete", id)
}

func (s *Service) mapErr(err error, op, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		s.log.Warn().Str("id", id).Msg("student not found")
		return err
	}
	s.log.Error().Err(err).Str("id", id).Msgf("failed to %s student", op)
	return fmt.Errorf("failed to %s student", op)
}

// ValidateAgeRange rejects negative or inverted bounds.
func ValidateAgeRange(minAge, maxAge int) error {
	if minAge < 0 || maxAge < 0 {
		return apperrors.Validation("ages must not be negative")
	}
	if minAge > maxAge {
		return apperrors.Validation("minAge must not exceed maxAge")
	}
	return nil
}

func normalize(in Input) Input {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.CourseID = strings.TrimSpace(in.CourseID)
	return in
}

func fieldMessage(fe validator.FieldError) string {
	name := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email"
	case "notfuture":
		return name + " cannot be in the future"
	default:
		return name + " is invalid"
	}
}

func jsonName(field string) string {
	switch field {
	case "FirstName":
		return "firstName"
	case "LastName":
		return "lastName"
	case "Email":
		return "email"
	case "DateOfBirth":
		return "dateOfBirth"
	case "CourseID":
		return "courseId"
	}
	return field
}
