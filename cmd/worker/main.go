// Package main runs the background worker: result exports to S3 and the opin expiry sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/opin-voting/backend/config"
	"github.com/opin-voting/backend/internal/opins"
	"github.com/opin-voting/backend/internal/realtime"
	"github.com/opin-voting/backend/internal/votes"
	"github.com/opin-voting/backend/internal/worker"
	"github.com/opin-voting/backend/pkg/database"
	"github.com/opin-voting/backend/pkg/queue"
	"github.com/opin-voting/backend/pkg/redis"
	"github.com/opin-voting/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Opins.Store != "postgres" {
		logger.Fatal("worker requires STORE=postgres")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		ExportsBucket:        cfg.AWS.ExportsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	// Status changes made by the sweep reach connected viewers through Redis.
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, pubsub, nil)

	opinService := opins.NewService(opins.NewRepository(pool), cfg.Server.PublicOrigin, logger)
	opinService.SetBroadcaster(hub)
	voteService := votes.NewService(votes.NewRepository(pool), opinService, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewExportProcessor(opinService, voteService, s3Client, jobQueue, cfg.Opins.ChartScale, logger)
	sweeper := worker.NewSweeper(opinService, cfg.Opins.SweepInterval, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go sweeper.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
