package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/filevault/filevault/internal/logging"
	"github.com/filevault/filevault/internal/metadata"
	"github.com/filevault/filevault/internal/metrics"
	"github.com/filevault/filevault/internal/queue"
	"github.com/filevault/filevault/internal/storage"
)

// Worker consumes thumbnail jobs and writes resized derivatives back to
// blob storage.
type Worker struct {
	metadata metadata.Store
	blobs    storage.Backend
	jobs     queue.Consumer
	workers  int
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewWorker creates a thumbnail worker pool.
func NewWorker(meta metadata.Store, blobs storage.Backend, jobs queue.Consumer, workers int) *Worker {
	if workers <= 0 {
		workers = 2
	}
	return &Worker{
		metadata: meta,
		blobs:    blobs,
		jobs:     jobs,
		workers:  workers,
	}
}

// Start launches the worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
	logging.Info("thumbnail worker started", zap.Int("workers", w.workers))
}

// Stop signals workers to stop and waits for them to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	logging.Info("thumbnail worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		job, err := w.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warn("thumbnail job dequeue failed", zap.Error(err))
			continue
		}

		start := time.Now()
		if err := w.Process(ctx, job); err != nil {
			metrics.RecordThumbnailJob(time.Since(start), false)
			logging.Error("thumbnail job failed",
				zap.String("file_id", job.FileID), zap.Error(err))
			continue
		}
		metrics.RecordThumbnailJob(time.Since(start), true)
	}
}

// Process handles one job. A missing fileId or an unknown record fails the
// job before any blob access; everything after that is best-effort, so the
// job succeeds once all widths have been attempted regardless of individual
// resize failures.
func (w *Worker) Process(ctx context.Context, job queue.Job) error {
	if job.FileID == "" {
		return fmt.Errorf("missing fileId")
	}
	oid, err := primitive.ObjectIDFromHex(job.FileID)
	if err != nil {
		return fmt.Errorf("invalid fileId %q: %w", job.FileID, err)
	}
	rec, err := w.metadata.GetByID(ctx, oid)
	if err != nil {
		return fmt.Errorf("load record %s: %w", job.FileID, err)
	}

	content, err := w.readOriginal(ctx, rec.LocalPath)
	if err != nil {
		// Thumbnails are a derived convenience; an unreadable original is
		// logged per width and the job still completes.
		logging.Warn("thumbnail source unreadable",
			zap.String("file_id", job.FileID),
			zap.String("key", rec.LocalPath),
			zap.Error(err))
		for _, width := range Widths {
			metrics.RecordThumbnailResize(width, false)
		}
		return nil
	}

	var wg sync.WaitGroup
	for _, width := range Widths {
		wg.Add(1)
		go func(width int) {
			defer wg.Done()
			if err := w.generate(ctx, rec.LocalPath, content, width); err != nil {
				metrics.RecordThumbnailResize(width, false)
				logging.Warn("thumbnail generation failed",
					zap.String("file_id", job.FileID),
					zap.Int("width", width),
					zap.Error(err))
				return
			}
			metrics.RecordThumbnailResize(width, true)
		}(width)
	}
	wg.Wait()

	logging.Debug("thumbnail job processed", zap.String("file_id", job.FileID))
	return nil
}

func (w *Worker) readOriginal(ctx context.Context, key string) ([]byte, error) {
	reader, _, err := w.blobs.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (w *Worker) generate(ctx context.Context, key string, content []byte, width int) error {
	thumb, err := Resize(bytes.NewReader(content), width)
	if err != nil {
		return err
	}
	return w.blobs.PutObject(ctx, DerivativeKey(key, width), bytes.NewReader(thumb))
}
