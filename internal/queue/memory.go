package queue

import (
	"context"
	"fmt"
)

// Memory is a channel-backed job queue for tests and single-binary setups.
// It is not durable.
type Memory struct {
	jobs chan Job
}

// NewMemory creates an in-memory queue with the given capacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{jobs: make(chan Job, capacity)}
}

// Enqueue adds a job, failing when the queue is full.
func (q *Memory) Enqueue(_ context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue full")
	}
}

// Dequeue returns the next job, blocking until one is available or ctx is
// cancelled.
func (q *Memory) Dequeue(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case job := <-q.jobs:
		return job, nil
	}
}

// Len returns the number of pending jobs.
func (q *Memory) Len() int { return len(q.jobs) }
