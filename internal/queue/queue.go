package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

// Observer receives job lifecycle counts. metrics.Collectors implements it.
type Observer interface {
	JobEnqueued(jobType string)
	JobAttempt(jobType, outcome string, took time.Duration)
	JobTerminal(jobType string, state State)
}

type nopObserver struct{}

func (nopObserver) JobEnqueued(string)                       {}
func (nopObserver) JobAttempt(string, string, time.Duration) {}
func (nopObserver) JobTerminal(string, State)                {}

// Attempt outcomes reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailure = "failure"
)

// Queue dispatches jobs from a Backend to registered handlers.
type Queue struct {
	backend  Backend
	log      zerolog.Logger
	obs      Observer
	timeout  time.Duration
	pollWait time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// Option configures a Queue.
type Option func(*Queue)

// WithObserver reports lifecycle events to o.
func WithObserver(o Observer) Option {
	return func(q *Queue) {
		if o != nil {
			q.obs = o
		}
	}
}

// WithJobTimeout bounds each attempt. Zero means no bound.
func WithJobTimeout(d time.Duration) Option {
	return func(q *Queue) { q.timeout = d }
}

// WithPollWait sets how long a worker blocks waiting for a job before it
// checks for delayed retries again.
func WithPollWait(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollWait = d
		}
	}
}

// New creates a queue on top of backend.
func New(backend Backend, log zerolog.Logger, opts ...Option) *Queue {
	q := &Queue{
		backend:  backend,
		log:      log.With().Str("component", "queue").Logger(),
		obs:      nopObserver{},
		pollWait: time.Second,
		now:      time.Now,
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Register installs the handler for jobType. Each type has one handler.
func (q *Queue) Register(jobType string, h Handler) error {
	if jobType == "" || h == nil {
		return apperrors.Validation("job type and handler are required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.handlers[jobType]; ok {
		return fmt.Errorf("handler for %q already registered", jobType)
	}
	q.handlers[jobType] = h
	return nil
}

// Enqueue stores a job and returns its id. The job runs at least once if
// the backend is durable.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any, opts Options) (Handle, error) {
	if jobType == "" {
		return Handle{}, apperrors.Validation("job type is required")
	}
	if opts.Attempts < 1 {
		return Handle{}, apperrors.Validation("attempts must be at least 1")
	}
	if opts.Backoff < 0 {
		return Handle{}, apperrors.Validation("backoff must not be negative")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Handle{}, apperrors.Validation("payload is not serialisable: " + err.Error())
	}

	now := q.now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     body,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		EnqueuedAt:  now,
	}
	// Status goes first so a fast worker cannot be overwritten by "queued".
	q.saveStatus(ctx, job, StateQueued, "")
	if err := q.backend.Push(ctx, job); err != nil {
		q.saveStatus(ctx, job, StateFailed, err.Error())
		return Handle{}, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	q.obs.JobEnqueued(jobType)
	q.log.Info().Str("jobId", job.ID).Str("type", jobType).Int("attempts", opts.Attempts).Msg("job enqueued")
	return Handle{ID: job.ID}, nil
}

// Status returns the last recorded state of a job.
func (q *Queue) Status(ctx context.Context, id string) (Status, error) {
	return q.backend.LoadStatus(ctx, id)
}

// Run recovers abandoned jobs and processes jobs with the given number of
// workers until ctx is cancelled.
func (q *Queue) Run(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	n, err := q.backend.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	if n > 0 {
		q.log.Warn().Int("count", n).Msg("requeued jobs left in processing")
	}

	q.log.Info().Int("workers", workers).Msg("queue workers started")
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			q.work(gctx)
			return nil
		})
	}
	err = g.Wait()
	q.log.Info().Msg("queue workers stopped")
	return err
}

func (q *Queue) work(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := q.backend.Pop(ctx, q.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Error().Err(err).Msg("pop job failed")
			select {
			case <-time.After(q.pollWait):
			case <-ctx.Done():
				return
			}
			continue
		}
		if job == nil {
			continue
		}
		q.dispatch(ctx, job)
	}
}

func (q *Queue) dispatch(ctx context.Context, job *Job) {
	log := q.log.With().Str("jobId", job.ID).Str("type", job.Type).Logger()

	q.mu.RLock()
	h, ok := q.handlers[job.Type]
	q.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("no handler registered for job type %q", job.Type)
		log.Error().Err(err).Msg("dropping job")
		if ackErr := q.backend.Ack(ctx, job); ackErr != nil {
			log.Error().Err(ackErr).Msg("ack failed")
		}
		q.saveStatus(ctx, job, StateFailed, err.Error())
		q.obs.JobTerminal(job.Type, StateFailed)
		return
	}

	job.Attempts++
	q.saveStatus(ctx, job, StateRunning, "")
	start := time.Now()
	err := q.process(ctx, h, job)
	took := time.Since(start)

	if err == nil {
		if ackErr := q.backend.Ack(ctx, job); ackErr != nil {
			log.Error().Err(ackErr).Msg("ack failed")
		}
		q.saveStatus(ctx, job, StateSucceeded, "")
		q.obs.JobAttempt(job.Type, OutcomeSuccess, took)
		q.obs.JobTerminal(job.Type, StateSucceeded)
		log.Info().Int("attempt", job.Attempts).Dur("took", took).Msg("job succeeded")
		return
	}

	// Shutdown mid-attempt: leave the job unacked so Recover hands it out again.
	if ctx.Err() != nil {
		log.Warn().Err(err).Int("attempt", job.Attempts).Msg("job interrupted by shutdown")
		return
	}

	if !IsPermanent(err) && job.Attempts < job.MaxAttempts {
		delay := RetryDelay(job.Backoff, job.Attempts)
		q.saveStatus(ctx, job, StateRetrying, err.Error())
		if retryErr := q.backend.Retry(ctx, job, q.now().Add(delay)); retryErr != nil {
			log.Error().Err(retryErr).Msg("reschedule failed")
		}
		q.obs.JobAttempt(job.Type, OutcomeRetry, took)
		log.Warn().Err(err).Int("attempt", job.Attempts).Int("maxAttempts", job.MaxAttempts).Dur("retryIn", delay).Msg("job attempt failed")
		return
	}

	final := err
	if !IsPermanent(err) {
		final = fmt.Errorf("%w after %d attempts: %w", apperrors.ErrRetryExhausted, job.Attempts, err)
	}
	if ackErr := q.backend.Ack(ctx, job); ackErr != nil {
		log.Error().Err(ackErr).Msg("ack failed")
	}
	q.saveStatus(ctx, job, StateFailed, final.Error())
	q.obs.JobAttempt(job.Type, OutcomeFailure, took)
	q.obs.JobTerminal(job.Type, StateFailed)
	log.Error().Err(final).Int("attempt", job.Attempts).Msg("job failed")

	if fh, ok := h.(FailureHandler); ok {
		fh.Failed(ctx, job, final)
	}
}

func (q *Queue) process(ctx context.Context, h Handler, job *Job) (err error) {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	err = h.Process(ctx, job)
	if errors.Is(err, context.DeadlineExceeded) && q.timeout > 0 && ctx.Err() != nil {
		err = fmt.Errorf("attempt timed out after %s: %w", q.timeout, err)
	}
	return err
}

func (q *Queue) saveStatus(ctx context.Context, job *Job, state State, lastErr string) {
	now := q.now().UTC()
	st := Status{
		ID:          job.ID,
		Type:        job.Type,
		State:       state,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		LastError:   lastErr,
		CreatedAt:   job.EnqueuedAt,
		UpdatedAt:   now,
	}
	if err := q.backend.SaveStatus(ctx, st); err != nil {
		q.log.Error().Err(err).Str("jobId", job.ID).Msg("save job status failed")
	}
}
