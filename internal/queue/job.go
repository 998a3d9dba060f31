// Package queue is a durable job queue with per-type handlers, attempt
// budgets and exponential backoff between attempts.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Job is one unit of work as stored by a Backend.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Backoff     time.Duration   `json:"backoff"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`

	// raw is the encoding the backend handed out, used to ack it.
	raw string
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Options are the per-enqueue retry settings.
type Options struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the delay before the second attempt; it doubles after that.
	Backoff time.Duration
}

// Handle identifies an enqueued job.
type Handle struct {
	ID string `json:"jobId"`
}

// State is the lifecycle position of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further attempt will be made.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Status is the observable state of a job.
type Status struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	State       State     `json:"state"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	LastError   string    `json:"lastError,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Handler processes jobs of one type. A nil return acks the job.
type Handler interface {
	Process(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

// Process calls f.
func (f HandlerFunc) Process(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// FailureHandler is implemented by handlers that want to know when a job
// has failed for good. Failed is called once per job.
type FailureHandler interface {
	Failed(ctx context.Context, job *Job, err error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

const maxBackoff = time.Minute

// RetryDelay is the wait after the given failed attempt (1-based):
// backoff * 2^(attempt-1), capped at one minute.
func RetryDelay(backoff time.Duration, attempt int) time.Duration {
	if backoff <= 0 {
		return 0
	}
	d := backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
