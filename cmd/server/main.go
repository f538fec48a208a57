// Package main runs the Opin HTTP server with live results over WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/opin-voting/backend/config"
	"github.com/opin-voting/backend/internal/auth"
	"github.com/opin-voting/backend/internal/exports"
	"github.com/opin-voting/backend/internal/memstore"
	"github.com/opin-voting/backend/internal/middleware"
	"github.com/opin-voting/backend/internal/opins"
	"github.com/opin-voting/backend/internal/realtime"
	"github.com/opin-voting/backend/internal/results"
	"github.com/opin-voting/backend/internal/votes"
	"github.com/opin-voting/backend/internal/worker"
	"github.com/opin-voting/backend/pkg/database"
	"github.com/opin-voting/backend/pkg/queue"
	"github.com/opin-voting/backend/pkg/redis"
	"github.com/opin-voting/backend/pkg/response"
	"github.com/opin-voting/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	var (
		opinStore   opins.Store
		voteStore   votes.Store
		userStore   auth.UserStore
		revoker     auth.Revoker
		redisPub    realtime.RedisPublisher
		redisSub    realtime.RedisSubscriber
		enqueuer    exports.Enqueuer
		locator     exports.Locator
		exportQueue *queue.Queue
		s3Client    *storage.S3
	)

	if cfg.Opins.Store == "memory" {
		mem := memstore.New()
		opinStore, voteStore = mem, mem
		userStore = auth.NewMemoryUserStore()
		revoker = auth.NewMemoryRevoker()
		logger.Warn("using in-memory store; data is lost on restart")
	} else {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
			MaxConns:        int32(cfg.Database.MaxConns),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
		}, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}

		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()

		opinStore = opins.NewRepository(pool)
		voteStore = votes.NewRepository(pool)
		userStore = auth.NewRepository(pool)
		revoker = auth.NewRedisRevoker(rdb.Client)

		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		redisPub, redisSub = pubsub, pubsub

		exportQueue = queue.NewQueue(rdb.Client, logger)
		enqueuer = exportQueue

		if cfg.AWS.Region != "" {
			s3Client, err = storage.NewS3(ctx, storage.S3Config{
				Region:               cfg.AWS.Region,
				AccessKeyID:          cfg.AWS.AccessKeyID,
				SecretAccessKey:      cfg.AWS.SecretAccessKey,
				ExportsBucket:        cfg.AWS.ExportsBucket,
				PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
			}, logger)
			if err != nil {
				logger.Warn("s3 disabled", zap.Error(err))
				s3Client = nil
			} else {
				locator = s3Client
			}
		}
	}

	hub := realtime.NewHub(logger, redisPub, redisSub)
	hub.SetViewerChangeHandler(func(opinID uuid.UUID, count int) {
		logger.Debug("viewers changed", zap.String("opin_id", opinID.String()), zap.Int("count", count))
	})

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret)
	authService := auth.NewService(userStore, jwtService, revoker,
		time.Duration(cfg.JWT.ExpireHours)*time.Hour,
		time.Duration(cfg.JWT.SessionExpireHours)*time.Hour,
		logger)
	authService.OnChange(func(ev auth.ChangeEvent) {
		logger.Info("auth state changed", zap.String("event", string(ev.Type)), zap.String("user_id", ev.User.UserID.String()))
	})
	authHandler := auth.NewHandler(authService, cfg.Server.SecureCookies, logger)

	// Opins
	opinService := opins.NewService(opinStore, cfg.Server.PublicOrigin, logger)
	opinService.SetBroadcaster(hub)
	opinService.SetLinkIDAttempts(cfg.Opins.LinkIDAttempts)
	opinHandler := opins.NewHandler(opinService, logger)

	// Votes
	voteService := votes.NewService(voteStore, opinService, logger)
	voteService.SetBroadcaster(hub)
	voteHandler := votes.NewHandler(voteService, opinService, logger)

	// Results and exports
	resultsHandler := results.NewHandler(opinService, voteService, cfg.Opins.ChartScale, cfg.Opins.SheetsImportURL, logger)
	exportsHandler := exports.NewHandler(opinService, enqueuer, locator, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Protected API (token or session cookie required)
	api := router.Group("")
	api.Use(middleware.JWT(authService))
	{
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/auth/me", authHandler.Me)

		// Opins
		api.POST("/opins", opinHandler.Create)
		api.GET("/opins", opinHandler.List)
		api.GET("/opins/:id", opinHandler.Get)
		api.GET("/opins/:id/share", opinHandler.Share)
		api.POST("/opins/:id/pause", opinHandler.Pause)
		api.POST("/opins/:id/reactivate", opinHandler.Reactivate)
		api.POST("/opins/:id/end", opinHandler.End)
		api.POST("/opins/:id/exports", exportsHandler.Request)
		api.GET("/opins/:id/exports/:format", exportsHandler.Download)

		// Voting
		api.GET("/vote/:linkId", voteHandler.Get)
		api.POST("/vote/:linkId", voteHandler.Submit)

		// Results
		api.GET("/graph/:linkId", resultsHandler.Get)
		api.GET("/graph/:linkId/roster", resultsHandler.Roster)
		api.GET("/graph/:linkId/chart.png", resultsHandler.ChartPNG)
		api.GET("/graph/:linkId/chart.jpg", resultsHandler.ChartJPEG)
		api.GET("/graph/:linkId/results.xlsx", resultsHandler.Spreadsheet)
		api.GET("/graph/:linkId/results.csv", resultsHandler.CSV)
	}

	// WebSocket (token in query; no Authorization header required)
	upgrader := realtime.NewUpgrader(splitOrigins(cfg.Server.CORSAllowedOrigins))
	router.GET("/ws", realtime.ServeWs(hub, upgrader, authService, opinService, voteService, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background work: expiry sweeper, plus the export worker when S3 is configured
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go worker.NewSweeper(opinService, cfg.Opins.SweepInterval, logger).Run(workerCtx)
	if s3Client != nil && exportQueue != nil {
		processor := worker.NewExportProcessor(opinService, voteService, s3Client, exportQueue, cfg.Opins.ChartScale, logger)
		go processor.Run(workerCtx)
		logger.Info("export worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Opins.Store))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
