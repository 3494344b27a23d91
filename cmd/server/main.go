// filevault server
//
// Authenticated file-storage API: clients upload files and folders, browse
// and list them, toggle public visibility, and download content. Image
// uploads enqueue thumbnail jobs consumed by the worker process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/filevault/filevault/internal/api"
	"github.com/filevault/filevault/internal/config"
	"github.com/filevault/filevault/internal/files"
	"github.com/filevault/filevault/internal/logging"
	"github.com/filevault/filevault/internal/metadata/mongo"
	"github.com/filevault/filevault/internal/metrics"
	"github.com/filevault/filevault/internal/queue"
	"github.com/filevault/filevault/internal/session"
	"github.com/filevault/filevault/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("filevault server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

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

	sessions := session.NewRedisStore(redisClient)
	jobs := queue.NewRedis(redisClient)

	blobs, err := storage.NewBackendFromConfig(ctx, cfg)
	if err != nil {
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	defer blobs.Close()
	logging.Info("storage backend initialized", zap.String("type", blobs.Type()))

	filesSvc := files.NewService(metaStore, blobs, jobs)
	server := api.NewServer(filesSvc, sessions, cfg.MaxUploadSize)

	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metrics.Serve(cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server failed", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	go func() {
		logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logging.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("shutdown error", zap.Error(err))
	}
}
