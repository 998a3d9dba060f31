package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

// StatusTTL is how long job status survives in Redis.
const StatusTTL = 24 * time.Hour

// promoteDue moves due jobs from the delayed set onto the pending list.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', '0', '100')
for _, v in ipairs(due) do
	redis.call('ZREM', KEYS[1], v)
	redis.call('LPUSH', KEYS[2], v)
end
return #due
`)

// RedisBackend keeps jobs in Redis lists:
//
//	<prefix>:pending     LPUSH in, popped from the right
//	<prefix>:processing  jobs handed to a worker and not yet acked
//	<prefix>:delayed     ZSET of retries scored by due time (unix ms)
//	<prefix>:status:<id> hash with the job status
type RedisBackend struct {
	client     *redis.Client
	pending    string
	processing string
	delayed    string
	prefix     string
	now        func() time.Time
}

// NewRedisBackend builds a backend under key prefix.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "students:jobs"
	}
	return &RedisBackend{
		client:     client,
		pending:    prefix + ":pending",
		processing: prefix + ":processing",
		delayed:    prefix + ":delayed",
		prefix:     prefix,
		now:        time.Now,
	}
}

// Push enqueues a job.
func (b *RedisBackend) Push(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return b.client.LPush(ctx, b.pending, raw).Err()
}

// Pop promotes due retries, then blocks on the pending list. The popped job
// is moved to the processing list in the same command.
func (b *RedisBackend) Pop(ctx context.Context, wait time.Duration) (*Job, error) {
	now := strconv.FormatInt(b.now().UnixMilli(), 10)
	if err := promoteDue.Run(ctx, b.client, []string{b.delayed, b.pending}, now).Err(); err != nil {
		return nil, fmt.Errorf("promote delayed jobs: %w", err)
	}

	raw, err := b.client.BRPopLPush(ctx, b.pending, b.processing, wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		_ = b.client.LRem(ctx, b.processing, 1, raw).Err()
		return nil, fmt.Errorf("decode job: %w", err)
	}
	job.raw = raw
	return &job, nil
}

// Ack removes the job from the processing list.
func (b *RedisBackend) Ack(ctx context.Context, job *Job) error {
	return b.client.LRem(ctx, b.processing, 1, job.raw).Err()
}

// Retry swaps the processing entry for a delayed copy in one transaction.
func (b *RedisBackend) Retry(ctx context.Context, job *Job, at time.Time) error {
	next, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, b.processing, 1, job.raw)
		pipe.ZAdd(ctx, b.delayed, redis.Z{Score: float64(at.UnixMilli()), Member: string(next)})
		return nil
	})
	return err
}

// Recover moves everything left in processing back to pending. Call it once
// before workers start; jobs in flight in another process would be redelivered.
func (b *RedisBackend) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := b.client.RPopLPush(ctx, b.processing, b.pending).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// SaveStatus writes the status hash and refreshes its TTL.
func (b *RedisBackend) SaveStatus(ctx context.Context, st Status) error {
	key := b.statusKey(st.ID)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"id":          st.ID,
			"type":        st.Type,
			"state":       string(st.State),
			"attempts":    st.Attempts,
			"maxAttempts": st.MaxAttempts,
			"lastError":   st.LastError,
			"createdAt":   st.CreatedAt.UTC().Format(time.RFC3339Nano),
			"updatedAt":   st.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		pipe.Expire(ctx, key, StatusTTL)
		return nil
	})
	return err
}

// LoadStatus reads a status hash.
func (b *RedisBackend) LoadStatus(ctx context.Context, id string) (Status, error) {
	fields, err := b.client.HGetAll(ctx, b.statusKey(id)).Result()
	if err != nil {
		return Status{}, err
	}
	if len(fields) == 0 {
		return Status{}, apperrors.NotFound("job cannot be found by id " + id)
	}
	st := Status{
		ID:        fields["id"],
		Type:      fields["type"],
		State:     State(fields["state"]),
		LastError: fields["lastError"],
	}
	st.Attempts, _ = strconv.Atoi(fields["attempts"])
	st.MaxAttempts, _ = strconv.Atoi(fields["maxAttempts"])
	st.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["createdAt"])
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updatedAt"])
	return st, nil
}

func (b *RedisBackend) statusKey(id string) string {
	return b.prefix + ":status:" + id
}
