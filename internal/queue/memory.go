package queue

import (
	"context"
	"sync"
	"time"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

// MemoryBackend is a channel-backed Backend for dev and tests. Nothing
// survives a restart.
type MemoryBackend struct {
	ch   chan *Job
	done chan struct{}
	once sync.Once

	mu     sync.RWMutex
	status map[string]Status
}

// NewMemoryBackend creates a backend holding up to size ready jobs.
func NewMemoryBackend(size int) *MemoryBackend {
	if size <= 0 {
		size = 64
	}
	return &MemoryBackend{
		ch:     make(chan *Job, size),
		done:   make(chan struct{}),
		status: make(map[string]Status),
	}
}

// Push enqueues a copy of job, blocking while the buffer is full.
func (b *MemoryBackend) Push(ctx context.Context, job *Job) error {
	cp := *job
	select {
	case b.ch <- &cp:
		return nil
	case <-b.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop waits for a job.
func (b *MemoryBackend) Pop(ctx context.Context, wait time.Duration) (*Job, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case job := <-b.ch:
		return job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack is a no-op; popped jobs are already gone.
func (b *MemoryBackend) Ack(context.Context, *Job) error { return nil }

// Retry re-pushes job once at has passed.
func (b *MemoryBackend) Retry(_ context.Context, job *Job, at time.Time) error {
	cp := *job
	time.AfterFunc(time.Until(at), func() {
		select {
		case b.ch <- &cp:
		case <-b.done:
		}
	})
	return nil
}

// Recover has nothing to recover.
func (b *MemoryBackend) Recover(context.Context) (int, error) { return 0, nil }

// SaveStatus stores st.
func (b *MemoryBackend) SaveStatus(_ context.Context, st Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status[st.ID] = st
	return nil
}

// LoadStatus returns the stored status.
func (b *MemoryBackend) LoadStatus(_ context.Context, id string) (Status, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.status[id]
	if !ok {
		return Status{}, apperrors.NotFound("job cannot be found by id " + id)
	}
	return st, nil
}

// Close stops pending retries from being delivered.
func (b *MemoryBackend) Close() {
	b.once.Do(func() { close(b.done) })
}
