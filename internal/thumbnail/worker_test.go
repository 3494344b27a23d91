package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/filevault/filevault/internal/metadata"
	"github.com/filevault/filevault/internal/metadata/memory"
	"github.com/filevault/filevault/internal/queue"
	"github.com/filevault/filevault/internal/storage/local"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// seedImage stores an image record and its blob, returning the record.
func seedImage(t *testing.T, store *memory.Store, blobs *local.Backend, key string, content []byte) *metadata.FileRecord {
	t.Helper()
	ctx := context.Background()
	if err := blobs.PutObject(ctx, key, bytes.NewReader(content)); err != nil {
		t.Fatalf("put blob: %v", err)
	}
	rec := &metadata.FileRecord{
		UserID:    primitive.NewObjectID(),
		Name:      key + ".png",
		Type:      metadata.TypeImage,
		ParentID:  metadata.RootParent,
		LocalPath: key,
	}
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("insert record: %v", err)
	}
	return rec
}

func TestDerivativeKey(t *testing.T) {
	if got := DerivativeKey("abc", 500); got != "abc_500" {
		t.Errorf("DerivativeKey = %q, want abc_500", got)
	}
}

func TestResizePreservesAspectRatio(t *testing.T) {
	src := pngBytes(t, 800, 600)

	out, err := Resize(bytes.NewReader(src), 500)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode resized: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 500 || bounds.Dy() != 375 {
		t.Errorf("resized to %dx%d, want 500x375", bounds.Dx(), bounds.Dy())
	}
}

func TestResizeRejectsGarbage(t *testing.T) {
	if _, err := Resize(bytes.NewReader([]byte("not an image")), 500); err == nil {
		t.Error("expected decode error")
	}
}

func TestProcessGeneratesAllWidths(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	blobs, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	rec := seedImage(t, store, blobs, "orig", pngBytes(t, 800, 600))

	w := NewWorker(store, blobs, queue.NewMemory(1), 1)
	if err := w.Process(ctx, queue.Job{FileID: rec.ID.Hex()}); err != nil {
		t.Fatalf("process: %v", err)
	}

	for _, width := range Widths {
		key := DerivativeKey("orig", width)
		reader, _, err := blobs.GetObject(ctx, key)
		if err != nil {
			t.Errorf("derivative %s missing: %v", key, err)
			continue
		}
		img, _, err := image.Decode(reader)
		reader.Close()
		if err != nil {
			t.Errorf("derivative %s not decodable: %v", key, err)
			continue
		}
		if img.Bounds().Dx() != width {
			t.Errorf("derivative %s is %d wide, want %d", key, img.Bounds().Dx(), width)
		}
	}
}

func TestProcessRejectsEmptyFileID(t *testing.T) {
	store := memory.New()
	blobs, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	w := NewWorker(store, blobs, queue.NewMemory(1), 1)

	if err := w.Process(context.Background(), queue.Job{}); err == nil {
		t.Error("expected error for job without fileId")
	}
}

func TestProcessRejectsUnknownRecord(t *testing.T) {
	store := memory.New()
	blobs, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	w := NewWorker(store, blobs, queue.NewMemory(1), 1)

	if err := w.Process(context.Background(), queue.Job{FileID: primitive.NewObjectID().Hex()}); err == nil {
		t.Error("expected error for unknown record")
	}
	if err := w.Process(context.Background(), queue.Job{FileID: "zz-not-hex"}); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestProcessToleratesCorruptBlob(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	blobs, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	rec := seedImage(t, store, blobs, "broken", []byte("jpeg my foot"))

	w := NewWorker(store, blobs, queue.NewMemory(1), 1)
	// A blob that fails to decode is not a job failure; the job completes
	// with no derivatives written.
	if err := w.Process(ctx, queue.Job{FileID: rec.ID.Hex()}); err != nil {
		t.Fatalf("process: %v", err)
	}
	for _, width := range Widths {
		exists, err := blobs.ObjectExists(ctx, DerivativeKey("broken", width))
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if exists {
			t.Errorf("derivative written for undecodable blob at width %d", width)
		}
	}
}

func TestWorkerConsumesQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.New()
	blobs, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	rec := seedImage(t, store, blobs, "queued", pngBytes(t, 400, 400))

	jobs := queue.NewMemory(10)
	if err := jobs.Enqueue(ctx, queue.Job{FileID: rec.ID.Hex()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := NewWorker(store, blobs, jobs, 2)
	w.Start(ctx)
	defer w.Stop()

	key := DerivativeKey("queued", 100)
	deadline := time.Now().Add(5 * time.Second)
	for {
		exists, err := blobs.ObjectExists(ctx, key)
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if exists {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("worker did not produce derivative in time")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
