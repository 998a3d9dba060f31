package queue

import (
	"context"
	"time"
)

// Backend stores jobs between Enqueue and ack. A job handed out by Pop stays
// owned by the backend until Ack or Retry, so a crash mid-attempt leaves it
// recoverable.
type Backend interface {
	// Push makes job available immediately.
	Push(ctx context.Context, job *Job) error
	// Pop waits up to wait for a job. It returns nil, nil on timeout.
	Pop(ctx context.Context, wait time.Duration) (*Job, error)
	// Ack drops a popped job.
	Ack(ctx context.Context, job *Job) error
	// Retry drops the popped job and makes its updated copy available at at.
	Retry(ctx context.Context, job *Job, at time.Time) error
	// Recover returns jobs popped but never acked to the pending set.
	Recover(ctx context.Context) (int, error)

	SaveStatus(ctx context.Context, st Status) error
	// LoadStatus returns an apperrors NotFound error for unknown ids.
	LoadStatus(ctx context.Context, id string) (Status, error)
}
