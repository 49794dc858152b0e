package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"tunehub/internal/domain"
)

const (
	defaultRedisQueuePrefix = "tunehub:ingest:"
	claimPollInterval       = time.Second
	finishedJobRetention    = 7 * 24 * time.Hour
)

// RedisQueue stores job state under <prefix>job:<id> and moves ids between a
// pending list, an active list and a delayed sorted set. BLMOVE makes a claim
// atomic, so an id is owned by one worker at a time.
//
// Recover treats every active id as orphaned and is meant to run once at
// startup of the only consumer process.
type RedisQueue struct {
	client redis.UniversalClient
	prefix string
	closed atomic.Bool
}

func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisQueuePrefix
	}
	return &RedisQueue{client: client, prefix: prefix}
}

func (q *RedisQueue) jobKey(id string) string { return q.prefix + "job:" + id }
func (q *RedisQueue) pendingKey() string      { return q.prefix + "pending" }
func (q *RedisQueue) activeKey() string       { return q.prefix + "active" }
func (q *RedisQueue) delayedKey() string      { return q.prefix + "delayed" }

func (q *RedisQueue) Enqueue(ctx context.Context, job domain.IngestJob) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.jobKey(job.ID), payload, 0)
		pipe.LPush(ctx, q.pendingKey(), job.ID)
		return nil
	})
	return err
}

func (q *RedisQueue) Claim(ctx context.Context) (domain.IngestJob, error) {
	for {
		if q.closed.Load() {
			return domain.IngestJob{}, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return domain.IngestJob{}, err
		}
		if err := q.promoteDue(ctx, time.Now()); err != nil {
			return domain.IngestJob{}, err
		}

		id, err := q.client.BLMove(ctx, q.pendingKey(), q.activeKey(), "RIGHT", "LEFT", claimPollInterval).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.IngestJob{}, ctxErr
			}
			return domain.IngestJob{}, fmt.Errorf("claim job: %w", err)
		}

		job, err := q.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			q.client.LRem(ctx, q.activeKey(), 1, id)
			continue
		}
		if err != nil {
			return domain.IngestJob{}, err
		}
		return job, nil
	}
}

// promoteDue moves delayed ids whose time has come to the pending list. ZREM
// decides which caller wins when several consumers promote the same id.
func (q *RedisQueue) promoteDue(ctx context.Context, now time.Time) error {
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("read delayed jobs: %w", err)
	}
	for _, id := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), id).Result()
		if err != nil {
			return fmt.Errorf("promote delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.pendingKey(), id).Err(); err != nil {
			return fmt.Errorf("promote delayed job: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) Save(ctx context.Context, job domain.IngestJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	var ttl time.Duration
	if job.State.Terminal() {
		ttl = finishedJobRetention
	}
	return q.client.Set(ctx, q.jobKey(job.ID), payload, ttl).Err()
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	return q.client.LRem(ctx, q.activeKey(), 1, id).Err()
}

func (q *RedisQueue) Retry(ctx context.Context, id string, delay time.Duration) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.activeKey(), 1, id)
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: id,
		})
		return nil
	})
	return err
}

func (q *RedisQueue) Get(ctx context.Context, id string) (domain.IngestJob, error) {
	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.IngestJob{}, ErrJobNotFound
		}
		return domain.IngestJob{}, err
	}
	var job domain.IngestJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.IngestJob{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	recovered := 0
	for {
		_, err := q.client.LMove(ctx, q.activeKey(), q.pendingKey(), "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return recovered, nil
		}
		if err != nil {
			return recovered, fmt.Errorf("recover active jobs: %w", err)
		}
		recovered++
	}
}

// Close stops new claims. The Redis client belongs to the caller.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
