package matchmaker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const queueKey = "mm:search_queue"

type redisRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisRepo returns a queue backed by a redis sorted set scored by
// enqueue time, so the queue survives a process restart and can be
// shared across instances. ttl bounds how long a stale queue outlives
// the last enqueue.
func NewRedisRepo(rdb *redis.Client, ttl time.Duration) Repo {
	return &redisRepo{rdb: rdb, ttl: ttl}
}

func (r *redisRepo) Enqueue(ctx context.Context, userID string, at time.Time) error {
	p := r.rdb.Pipeline()
	// NX keeps the original score on duplicate enqueue.
	p.ZAddNX(ctx, queueKey, redis.Z{Score: float64(at.UnixMilli()), Member: userID})
	p.Expire(ctx, queueKey, r.ttl)
	if _, err := p.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", userID, err)
	}
	return nil
}

func (r *redisRepo) Remove(ctx context.Context, userID string) error {
	if err := r.rdb.ZRem(ctx, queueKey, userID).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from queue: %w", userID, err)
	}
	return nil
}

func (r *redisRepo) Contains(ctx context.Context, userID string) (bool, error) {
	err := r.rdb.ZScore(ctx, queueKey, userID).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check queue membership: %w", err)
	}
	return true, nil
}

func (r *redisRepo) Snapshot(ctx context.Context) ([]Entry, error) {
	zs, err := r.rdb.ZRangeWithScores(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot queue: %w", err)
	}

	entries := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			UserID:     id,
			EnqueuedAt: time.UnixMilli(int64(z.Score)),
		})
	}
	return entries, nil
}
