package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
	"github.com/sachinfortude/RAMP-UP/internal/notify"
	"github.com/sachinfortude/RAMP-UP/internal/queue"
	"github.com/sachinfortude/RAMP-UP/internal/sheet"
	"github.com/sachinfortude/RAMP-UP/internal/student"
)

// Spreadsheet columns an import needs, matched case-insensitively.
var importColumns = []string{"firstname", "lastname", "email", "dateofbirth", "courseid"}

// ImportWorker writes the rows of an uploaded workbook into the record
// store. Rows are created one by one and earlier rows stay committed when a
// later one fails, so a retried job can create duplicates.
type ImportWorker struct {
	students StudentWriter
	pub      notify.Publisher
	obs      ImportObserver
	log      zerolog.Logger
}

// NewImportWorker creates the worker. obs may be nil.
func NewImportWorker(students StudentWriter, pub notify.Publisher, obs ImportObserver, log zerolog.Logger) *ImportWorker {
	if obs == nil {
		obs = nopImportObserver{}
	}
	return &ImportWorker{
		students: students,
		pub:      pub,
		obs:      obs,
		log:      log.With().Str("worker", JobImport).Logger(),
	}
}

// Process runs one attempt of an import job.
func (w *ImportWorker) Process(ctx context.Context, job *queue.Job) error {
	var p ImportPayload
	if err := job.Decode(&p); err != nil || strings.TrimSpace(p.FilePath) == "" {
		return queue.Permanent(apperrors.Validation("import job needs a filePath"))
	}
	log := w.log.With().Str("jobId", job.ID).Str("file", p.FilePath).Int("attempt", job.Attempts).Logger()

	tbl, err := sheet.ReadFile(p.FilePath)
	if err != nil {
		if !errors.Is(err, apperrors.ErrFileNotFound) {
			err = apperrors.New(apperrors.ErrFileNotFound, "file is not a readable workbook: "+err.Error())
		}
		return queue.Permanent(err)
	}

	cols := tbl.Columns()
	var missing []string
	for _, name := range importColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperrors.New(apperrors.ErrRowValidation, "missing columns: "+strings.Join(missing, ", "))
	}

	log.Info().Int("rows", len(tbl.Rows)).Msg("importing students")
	created := 0
	defer func() { w.obs.StudentsImported(created) }()

	for i, row := range tbl.Rows {
		line := i + 2 // header is line 1
		in, err := rowInput(row, cols)
		if err != nil {
			return apperrors.New(apperrors.ErrRowValidation, fmt.Sprintf("row %d: %v", line, err))
		}
		if _, err := w.students.Create(ctx, in); err != nil {
			if errors.Is(err, apperrors.ErrValidationFailed) {
				return apperrors.New(apperrors.ErrRowValidation, fmt.Sprintf("row %d: %v", line, err)).
					WithDetails(apperrors.DetailsOf(err))
			}
			if errors.Is(err, apperrors.ErrStoreWrite) {
				return fmt.Errorf("row %d: %w", line, err)
			}
			return apperrors.New(apperrors.ErrStoreWrite, fmt.Sprintf("row %d: %v", line, err))
		}
		created++
	}

	msg := fmt.Sprintf("Imported %d students", created)
	log.Info().Int("created", created).Msg("import finished")
	notify.Notify(ctx, w.pub, notify.Event{Kind: notify.KindImportCompleted, JobID: job.ID, Message: msg}, log)
	return nil
}

// Failed emits the single importFailed event of a job.
func (w *ImportWorker) Failed(ctx context.Context, job *queue.Job, err error) {
	notify.Notify(ctx, w.pub, notify.Event{
		Kind:    notify.KindImportFailed,
		JobID:   job.ID,
		Message: "Student import failed: " + err.Error(),
	}, w.log)
}

func rowInput(row []string, cols map[string]int) (student.Input, error) {
	in := student.Input{
		FirstName: sheet.Cell(row, cols["firstname"]),
		LastName:  sheet.Cell(row, cols["lastname"]),
		Email:     sheet.Cell(row, cols["email"]),
		CourseID:  sheet.Cell(row, cols["courseid"]),
	}
	raw := sheet.Cell(row, cols["dateofbirth"])
	if raw == "" {
		return in, errors.New("dateOfBirth is required")
	}
	dob, err := sheet.ParseDate(raw)
	if err != nil {
		return in, fmt.Errorf("dateOfBirth: %w", err)
	}
	in.DateOfBirth = dob
	return in, nil
}
