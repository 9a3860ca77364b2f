package delayq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// promoteScript atomically moves due jobs from the delayed ZSET into the
// ready LIST. Running remove+insert as one server-side script closes the
// window where a concurrent pop could observe a job in neither tier, and
// makes job loss on partial failure impossible.
//
// KEYS[1] delayed zset, KEYS[2] ready list
// ARGV[1] now (epoch ms), ARGV[2] batch limit, ARGV[3] push side (L|R)
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
  if ARGV[3] == 'R' then
    redis.call('RPUSH', KEYS[2], id)
  else
    redis.call('LPUSH', KEYS[2], id)
  end
end
return #due
`)

// addReadyScript stores the job body and pushes its ID as one atomic step,
// so a partial write can never strand a body without a queue entry. When
// the body already exists the job is normally queued in one of the tiers
// and the call is a no-op; if the ID is in neither tier the body is an
// orphan from an earlier failure and gets re-pushed instead of becoming
// permanently unpoppable.
//
// KEYS[1] jobs hash, KEYS[2] ready list, KEYS[3] delayed zset
// ARGV[1] job id, ARGV[2] job body
var addReadyScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 1 then
  redis.call('LPUSH', KEYS[2], ARGV[1])
  return 1
end
if redis.call('ZSCORE', KEYS[3], ARGV[1]) then
  return 0
end
local ids = redis.call('LRANGE', KEYS[2], 0, -1)
for _, id in ipairs(ids) do
  if id == ARGV[1] then
    return 0
  end
end
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// RedisQueue implements Queue on top of Redis. Per logical queue it keeps
// three keys: a LIST for the ready tier (LPUSH at the newest end, RPOP at
// the oldest), a ZSET for the delayed tier scored by ready-at epoch ms,
// and a HASH of job bodies keyed by job ID. Keeping bodies in the hash
// makes re-adding the same job ID an idempotent upsert rather than a
// duplicate queue entry.
type RedisQueue struct {
	rdb          redis.UniversalClient
	prefix       string
	order        PromoteOrder
	promoteBatch int64
	maxAttempts  int
	now          func() time.Time
}

// RedisOption configures a RedisQueue.
type RedisOption func(*RedisQueue)

// WithKeyPrefix namespaces all queue keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.prefix = prefix
		}
	}
}

// WithPromoteOrder sets the promotion ordering policy.
func WithPromoteOrder(order PromoteOrder) RedisOption {
	return func(q *RedisQueue) { q.order = order }
}

// WithPromoteBatch limits how many due jobs a single promotion pass moves.
func WithPromoteBatch(n int64) RedisOption {
	return func(q *RedisQueue) {
		if n > 0 {
			q.promoteBatch = n
		}
	}
}

// WithDefaultMaxAttempts sets the retry budget stamped on new jobs.
func WithDefaultMaxAttempts(n int) RedisOption {
	return func(q *RedisQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithClock injects a clock, used by tests to control promotion timing.
func WithClock(now func() time.Time) RedisOption {
	return func(q *RedisQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// NewRedisQueue creates a Redis-backed delay queue.
func NewRedisQueue(rdb redis.UniversalClient, opts ...RedisOption) (*RedisQueue, error) {
	if rdb == nil {
		return nil, ErrQueueNil
	}

	q := &RedisQueue{
		rdb:          rdb,
		prefix:       "dripkit",
		order:        PromoteOldestFirst,
		promoteBatch: 100,
		maxAttempts:  3,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if !q.order.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPromoteOrder, q.order)
	}
	return q, nil
}

func (q *RedisQueue) readyKey(queue string) string   { return q.prefix + ":ready:" + queue }
func (q *RedisQueue) delayedKey(queue string) string { return q.prefix + ":delayed:" + queue }
func (q *RedisQueue) jobsKey(queue string) string    { return q.prefix + ":jobs:" + queue }

// Add enqueues a job. Delayed jobs go to the ZSET; immediate jobs to the
// newest end of the LIST. The call costs one store round-trip and never
// blocks beyond it. Payload contents are not validated here.
func (q *RedisQueue) Add(ctx context.Context, queue string, payload any, opts ...AddOption) (Job, error) {
	job, err := buildJob(queue, payload, q.now(), q.maxAttempts, opts)
	if err != nil {
		return Job{}, err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("%w: %w", ErrPayloadMarshal, err)
	}

	if job.Delayed() {
		// HSet + ZAdd are both upserts keyed by job ID, so re-adding the
		// same ID reschedules instead of duplicating.
		pipe := q.rdb.TxPipeline()
		pipe.HSet(ctx, q.jobsKey(queue), job.ID, body)
		pipe.ZAdd(ctx, q.delayedKey(queue), redis.Z{Score: float64(job.ReadyAt), Member: job.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return Job{}, fmt.Errorf("delayq: add delayed job to %q: %w", queue, err)
		}
		return job, nil
	}

	// Ready tier: body store and list push run as one script, so the same
	// job ID cannot occupy two list slots and a job whose body exists is
	// guaranteed to be reachable from a tier.
	err = addReadyScript.Run(ctx, q.rdb,
		[]string{q.jobsKey(queue), q.readyKey(queue), q.delayedKey(queue)},
		job.ID, body,
	).Err()
	if err != nil {
		return Job{}, fmt.Errorf("delayq: add job to %q: %w", queue, err)
	}
	return job, nil
}

// Pop promotes due delayed jobs, then removes and returns the oldest
// ready job. Returns (nil, nil) when nothing is ready.
func (q *RedisQueue) Pop(ctx context.Context, queue string) (*Job, error) {
	if queue == "" {
		return nil, ErrQueueNameEmpty
	}

	if err := q.promote(ctx, queue); err != nil {
		return nil, err
	}

	id, err := q.rdb.RPop(ctx, q.readyKey(queue)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delayq: pop from %q: %w", queue, err)
	}

	pipe := q.rdb.TxPipeline()
	get := pipe.HGet(ctx, q.jobsKey(queue), id)
	pipe.HDel(ctx, q.jobsKey(queue), id)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("delayq: read job body %s from %q: %w", id, queue, err)
	}

	body, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: job %s in queue %q", ErrJobBodyMissing, id, queue)
	}
	if err != nil {
		return nil, fmt.Errorf("delayq: read job body %s from %q: %w", id, queue, err)
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("delayq: decode job %s from %q: %w", id, queue, err)
	}
	return &job, nil
}

// promote moves due jobs from the delayed tier into the ready tier in a
// single atomic script execution.
func (q *RedisQueue) promote(ctx context.Context, queue string) error {
	side := "R"
	if q.order == PromoteNewestFirst {
		side = "L"
	}

	err := promoteScript.Run(ctx, q.rdb,
		[]string{q.delayedKey(queue), q.readyKey(queue)},
		strconv.FormatInt(q.now().UnixMilli(), 10),
		strconv.FormatInt(q.promoteBatch, 10),
		side,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delayq: promote due jobs in %q: %w", queue, err)
	}
	return nil
}

// Count returns the ready-tier depth only. Delayed-but-not-due jobs are
// reported by DelayedCount.
func (q *RedisQueue) Count(ctx context.Context, queue string) (int64, error) {
	if queue == "" {
		return 0, ErrQueueNameEmpty
	}
	n, err := q.rdb.LLen(ctx, q.readyKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("delayq: count %q: %w", queue, err)
	}
	return n, nil
}

// DelayedCount returns the delayed-tier depth.
func (q *RedisQueue) DelayedCount(ctx context.Context, queue string) (int64, error) {
	if queue == "" {
		return 0, ErrQueueNameEmpty
	}
	n, err := q.rdb.ZCard(ctx, q.delayedKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("delayq: delayed count %q: %w", queue, err)
	}
	return n, nil
}
