// Package pipeline holds the import and filter workers and the intake
// helpers that enqueue their jobs.
package pipeline

import (
	"context"
	"time"

	"github.com/sachinfortude/RAMP-UP/internal/queue"
	"github.com/sachinfortude/RAMP-UP/internal/student"
)

// Job types.
const (
	JobImport = "import"
	JobFilter = "filter"
)

// DefaultAttempts is the attempt budget of import and filter jobs.
const DefaultAttempts = 3

// ImportPayload is the body of an import job.
type ImportPayload struct {
	FilePath string `json:"filePath"`
}

// FilterPayload is the body of a filter job. Both bounds are inclusive.
type FilterPayload struct {
	MinAge int `json:"minAge"`
	MaxAge int `json:"maxAge"`
}

// Enqueuer is the part of the queue the intake needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts queue.Options) (queue.Handle, error)
}

// StudentWriter creates one record per imported row. student.Service
// implements it.
type StudentWriter interface {
	Create(ctx context.Context, in student.Input) (student.Record, error)
}

// StudentFilter lists records in an age band. student.Service implements it.
type StudentFilter interface {
	FilterByAge(ctx context.Context, minAge, maxAge int) ([]student.Record, error)
}

// ImportObserver counts imported rows. metrics.Collectors implements it.
type ImportObserver interface {
	StudentsImported(n int)
}

type nopImportObserver struct{}

func (nopImportObserver) StudentsImported(int) {}

// Register installs both workers on q.
func Register(q *queue.Queue, imp *ImportWorker, flt *FilterWorker) error {
	if err := q.Register(JobImport, imp); err != nil {
		return err
	}
	return q.Register(JobFilter, flt)
}

func utcNow() time.Time { return time.Now().UTC() }
