// Package queue provides the durable thumbnail job queue decoupling upload
// completion from thumbnail generation. The Redis implementation gives
// at-least-once delivery; jobs survive the enqueueing process. Derivative
// writes are idempotent, so redelivery is safe.
package queue

import "context"

// Job is a thumbnail generation job. FileID is the metadata record id of the
// uploaded image; no other fields are consumed.
type Job struct {
	FileID string `json:"fileId"`
}

// Enqueuer enqueues thumbnail jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Consumer dequeues thumbnail jobs. Dequeue blocks until a job is available
// or the context is cancelled.
type Consumer interface {
	Dequeue(ctx context.Context) (Job, error)
}
