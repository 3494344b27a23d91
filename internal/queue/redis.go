package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// listKey is the Redis list holding pending thumbnail jobs.
const listKey = "thumbnail_jobs"

// blockTimeout bounds each BLPOP so Dequeue notices context cancellation.
const blockTimeout = 5 * time.Second

// Redis is a Redis-list-backed job queue.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing Redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Enqueue pushes a job onto the tail of the list.
func (q *Redis) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, listKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue pops the next job from the head of the list, blocking until one
// is available or ctx is cancelled.
func (q *Redis) Dequeue(ctx context.Context) (Job, error) {
	for {
		res, err := q.client.BLPop(ctx, blockTimeout, listKey).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			return Job{}, fmt.Errorf("dequeue job: %w", err)
		}

		// BLPOP returns [key, value]
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("decode job payload: %w", err)
		}
		return job, nil
	}
}
