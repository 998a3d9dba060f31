package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

var errBoom = errors.New("boom")

type recordingHandler struct {
	mu       sync.Mutex
	calls    int
	failAt   func(attempt int) error
	done     chan struct{}
	failed   []error
	failedCh chan struct{}
}

func newRecordingHandler(failAt func(int) error) *recordingHandler {
	return &recordingHandler{
		failAt:   failAt,
		done:     make(chan struct{}, 8),
		failedCh: make(chan struct{}, 8),
	}
}

func (h *recordingHandler) Process(_ context.Context, job *Job) error {
	h.mu.Lock()
	h.calls++
	n := h.calls
	h.mu.Unlock()
	if err := h.failAt(n); err != nil {
		return err
	}
	h.done <- struct{}{}
	return nil
}

func (h *recordingHandler) Failed(_ context.Context, _ *Job, err error) {
	h.mu.Lock()
	h.failed = append(h.failed, err)
	h.mu.Unlock()
	h.failedCh <- struct{}{}
}

func (h *recordingHandler) snapshot() (int, []error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls, append([]error(nil), h.failed...)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func startQueue(t *testing.T, q *Queue, workers int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- q.Run(ctx, workers) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Error("queue did not stop")
		}
	})
}

func newMemoryQueue(t *testing.T) (*Queue, *MemoryBackend) {
	t.Helper()
	b := NewMemoryBackend(16)
	t.Cleanup(b.Close)
	return New(b, zerolog.New(io.Discard), WithPollWait(10*time.Millisecond)), b
}

func TestRetryUntilSuccess(t *testing.T) {
	q, _ := newMemoryQueue(t)
	h := newRecordingHandler(func(n int) error {
		if n <= 2 {
			return errBoom
		}
		return nil
	})
	if err := q.Register("import", h); err != nil {
		t.Fatal(err)
	}
	startQueue(t, q, 2)

	handle, err := q.Enqueue(context.Background(), "import", map[string]string{"filePath": "x.xlsx"}, Options{Attempts: 3, Backoff: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.done, "success")

	time.Sleep(20 * time.Millisecond)
	calls, failed := h.snapshot()
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(failed) != 0 {
		t.Errorf("Failed called %d times", len(failed))
	}
	st, err := q.Status(context.Background(), handle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateSucceeded || st.Attempts != 3 || st.MaxAttempts != 3 {
		t.Errorf("status = %+v", st)
	}
}

func TestStateTerminal(t *testing.T) {
	for state, want := range map[State]bool{
		StateQueued:    false,
		StateRunning:   false,
		StateRetrying:  false,
		StateSucceeded: true,
		StateFailed:    true,
	} {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v", state, got)
		}
	}
}

func TestExhaustedFailsOnce(t *testing.T) {
	q, _ := newMemoryQueue(t)
	h := newRecordingHandler(func(int) error { return errBoom })
	if err := q.Register("import", h); err != nil {
		t.Fatal(err)
	}
	startQueue(t, q, 3)

	handle, err := q.Enqueue(context.Background(), "import", struct{}{}, Options{Attempts: 3, Backoff: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.failedCh, "terminal failure")
	time.Sleep(50 * time.Millisecond)

	calls, failed := h.snapshot()
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(failed) != 1 {
		t.Fatalf("Failed called %d times, want 1", len(failed))
	}
	if !errors.Is(failed[0], apperrors.ErrRetryExhausted) || !errors.Is(failed[0], errBoom) {
		t.Errorf("failure error = %v", failed[0])
	}
	st, _ := q.Status(context.Background(), handle.ID)
	if st.State != StateFailed || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	q, _ := newMemoryQueue(t)
	h := newRecordingHandler(func(int) error { return Permanent(apperrors.ErrFileNotFound) })
	if err := q.Register("import", h); err != nil {
		t.Fatal(err)
	}
	startQueue(t, q, 1)

	if _, err := q.Enqueue(context.Background(), "import", struct{}{}, Options{Attempts: 3, Backoff: time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.failedCh, "terminal failure")
	time.Sleep(30 * time.Millisecond)

	calls, failed := h.snapshot()
	if calls != 1 || len(failed) != 1 {
		t.Fatalf("calls = %d, failed = %d", calls, len(failed))
	}
	if !errors.Is(failed[0], apperrors.ErrFileNotFound) || errors.Is(failed[0], apperrors.ErrRetryExhausted) {
		t.Errorf("failure error = %v", failed[0])
	}
}

func TestPanicCountsAsFailedAttempt(t *testing.T) {
	q, _ := newMemoryQueue(t)
	h := newRecordingHandler(func(n int) error {
		if n == 1 {
			panic("bad row")
		}
		return nil
	})
	if err := q.Register("filter", h); err != nil {
		t.Fatal(err)
	}
	startQueue(t, q, 1)
	if _, err := q.Enqueue(context.Background(), "filter", struct{}{}, Options{Attempts: 2}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.done, "success after panic")
}

func TestRegisterTwice(t *testing.T) {
	q, _ := newMemoryQueue(t)
	h := HandlerFunc(func(context.Context, *Job) error { return nil })
	if err := q.Register("import", h); err != nil {
		t.Fatal(err)
	}
	if err := q.Register("import", h); err == nil {
		t.Fatal("second registration succeeded")
	}
}

func TestEnqueueValidation(t *testing.T) {
	q, _ := newMemoryQueue(t)
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, "import", struct{}{}, Options{Attempts: 0}); !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Errorf("attempts 0: err = %v", err)
	}
	if _, err := q.Enqueue(ctx, "", struct{}{}, Options{Attempts: 1}); !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Errorf("empty type: err = %v", err)
	}
	if _, err := q.Enqueue(ctx, "import", make(chan int), Options{Attempts: 1}); !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Errorf("bad payload: err = %v", err)
	}
	if _, err := q.Status(ctx, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown status: err = %v", err)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		backoff time.Duration
		attempt int
		want    time.Duration
	}{
		{time.Second, 1, time.Second},
		{time.Second, 2, 2 * time.Second},
		{time.Second, 3, 4 * time.Second},
		{time.Second, 10, time.Minute},
		{0, 5, 0},
		{2 * time.Minute, 1, time.Minute},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.backoff, tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(%s, %d) = %s, want %s", tt.backoff, tt.attempt, got, tt.want)
		}
	}
}

type countingObserver struct {
	enqueued, terminal atomic.Int32
}

func (o *countingObserver) JobEnqueued(string)                       { o.enqueued.Add(1) }
func (o *countingObserver) JobAttempt(string, string, time.Duration) {}
func (o *countingObserver) JobTerminal(string, State)                { o.terminal.Add(1) }

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBackend(client, "test:jobs"), mr
}

func TestRedisBackendRetryAndStatus(t *testing.T) {
	b, _ := newRedisBackend(t)
	obs := &countingObserver{}
	q := New(b, zerolog.New(io.Discard), WithObserver(obs), WithPollWait(time.Second))

	h := newRecordingHandler(func(n int) error {
		if n == 1 {
			return errBoom
		}
		return nil
	})
	if err := q.Register("import", h); err != nil {
		t.Fatal(err)
	}
	startQueue(t, q, 1)

	handle, err := q.Enqueue(context.Background(), "import", map[string]string{"filePath": "a.xlsx"}, Options{Attempts: 3, Backoff: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.done, "success")
	time.Sleep(20 * time.Millisecond)

	st, err := q.Status(context.Background(), handle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateSucceeded || st.Attempts != 2 || st.Type != "import" || st.CreatedAt.IsZero() {
		t.Errorf("status = %+v", st)
	}
	if obs.enqueued.Load() != 1 || obs.terminal.Load() != 1 {
		t.Errorf("observer enqueued=%d terminal=%d", obs.enqueued.Load(), obs.terminal.Load())
	}
}

func TestRedisBackendRecover(t *testing.T) {
	ctx := context.Background()
	b, mr := newRedisBackend(t)

	job := &Job{ID: "job-1", Type: "import", Payload: []byte(`{"filePath":"a.xlsx"}`), MaxAttempts: 3}
	if err := b.Push(ctx, job); err != nil {
		t.Fatal(err)
	}
	popped, err := b.Pop(ctx, time.Second)
	if err != nil || popped == nil {
		t.Fatalf("pop: %v %v", popped, err)
	}
	if inFlight, _ := mr.List("test:jobs:processing"); len(inFlight) != 1 {
		t.Fatalf("processing list = %v", inFlight)
	}

	n, err := b.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	again, err := b.Pop(ctx, time.Second)
	if err != nil || again == nil || again.ID != "job-1" {
		t.Fatalf("pop after recover: %v %v", again, err)
	}
	var payload struct {
		FilePath string `json:"filePath"`
	}
	if err := again.Decode(&payload); err != nil || payload.FilePath != "a.xlsx" {
		t.Fatalf("decode: %v %+v", err, payload)
	}
	if err := b.Ack(ctx, again); err != nil {
		t.Fatal(err)
	}
	if left, _ := mr.List("test:jobs:processing"); len(left) != 0 {
		t.Errorf("processing list after ack = %v", left)
	}
}

func TestRedisBackendPopTimeout(t *testing.T) {
	b, _ := newRedisBackend(t)
	job, err := b.Pop(context.Background(), time.Second)
	if err != nil || job != nil {
		t.Fatalf("Pop on empty queue = %v, %v", job, err)
	}
	if _, err := b.LoadStatus(context.Background(), "nope"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("LoadStatus err = %v", err)
	}
}
