package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
	"github.com/sachinfortude/RAMP-UP/internal/notify"
	"github.com/sachinfortude/RAMP-UP/internal/queue"
	"github.com/sachinfortude/RAMP-UP/internal/sheet"
	"github.com/sachinfortude/RAMP-UP/internal/student"
)

// ExportSheet is the sheet name of filter exports.
const ExportSheet = "Students"

var exportHeader = []string{"id", "firstName", "lastName", "email", "dateOfBirth", "age", "courseId", "createdAt", "updatedAt"}

// FilterWorker exports the records of an age band to a workbook under dir.
type FilterWorker struct {
	students StudentFilter
	pub      notify.Publisher
	dir      string
	now      func() time.Time
	log      zerolog.Logger
}

// NewFilterWorker creates the worker writing into dir.
func NewFilterWorker(students StudentFilter, pub notify.Publisher, dir string, log zerolog.Logger) *FilterWorker {
	return &FilterWorker{
		students: students,
		pub:      pub,
		dir:      dir,
		now:      utcNow,
		log:      log.With().Str("worker", JobFilter).Logger(),
	}
}

// WithClock replaces the clock used for ages and file names.
func (w *FilterWorker) WithClock(now func() time.Time) *FilterWorker {
	w.now = now
	return w
}

// Process runs one attempt of a filter job.
func (w *FilterWorker) Process(ctx context.Context, job *queue.Job) error {
	var p FilterPayload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(apperrors.Validation("filter job payload is malformed"))
	}
	if err := student.ValidateAgeRange(p.MinAge, p.MaxAge); err != nil {
		return queue.Permanent(err)
	}
	log := w.log.With().Str("jobId", job.ID).Int("minAge", p.MinAge).Int("maxAge", p.MaxAge).Logger()
	log.Info().Msg("filtering students")

	recs, err := w.students.FilterByAge(ctx, p.MinAge, p.MaxAge)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	now := w.now()
	path := filepath.Join(w.dir, fmt.Sprintf("filtered-students-%d.xlsx", now.UnixNano()))

	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []any{
			r.ID, r.FirstName, r.LastName, r.Email,
			r.DateOfBirth.Format(student.DateLayout), r.AgeOn(now), r.CourseID,
			r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := sheet.WriteFile(path, ExportSheet, exportHeader, rows); err != nil {
		return err
	}

	log.Info().Int("records", len(recs)).Str("file", path).Msg("filtered students saved")
	notify.Notify(ctx, w.pub, notify.Event{Kind: notify.KindFilterFileReady, JobID: job.ID, FilePath: path}, log)
	return nil
}

// Failed emits the filterFailed event of a job.
func (w *FilterWorker) Failed(ctx context.Context, job *queue.Job, err error) {
	notify.Notify(ctx, w.pub, notify.Event{
		Kind:    notify.KindFilterFailed,
		JobID:   job.ID,
		Message: "Student filter failed: " + err.Error(),
	}, w.log)
}
