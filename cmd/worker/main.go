// filevault worker
//
// Consumes thumbnail jobs from the queue and writes resized derivatives
// (widths 500, 250, 100) next to the original blobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/filevault/filevault/internal/config"
	"github.com/filevault/filevault/internal/logging"
	"github.com/filevault/filevault/internal/metadata/mongo"
	"github.com/filevault/filevault/internal/queue"
	"github.com/filevault/filevault/internal/session"
	"github.com/filevault/filevault/internal/storage"
	"github.com/filevault/filevault/internal/thumbnail"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("filevault worker starting...",
		zap.Int("workers", cfg.ThumbnailWorkers))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logging.Info("connecting to MongoDB...")
	metaStore, err := mongo.New(ctx, cfg.MongoURL, cfg.MongoDatabase)
	if err != nil {
		logging.Fatal("mongodb connection failed", zap.Error(err))
	}
	defer metaStore.Close(context.Background())

	logging.Info("connecting to Redis...")
	redisClient, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logging.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()

	blobs, err := storage.NewBackendFromConfig(ctx, cfg)
	if err != nil {
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	defer blobs.Close()
	logging.Info("storage backend initialized", zap.String("type", blobs.Type()))

	worker := thumbnail.NewWorker(metaStore, blobs, queue.NewRedis(redisClient), cfg.ThumbnailWorkers)
	worker.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logging.Info("shutting down...")
	cancel()
	worker.Stop()
}
