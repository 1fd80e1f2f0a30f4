// Package main runs the swing-analysis backend: WebSocket streaming, the
// session control plane and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/swingsense/backend/config"
	"github.com/swingsense/backend/internal/biomech"
	"github.com/swingsense/backend/internal/coaching"
	"github.com/swingsense/backend/internal/middleware"
	"github.com/swingsense/backend/internal/realtime"
	"github.com/swingsense/backend/internal/streaming"
	"github.com/swingsense/backend/pkg/cache"
	"github.com/swingsense/backend/pkg/redis"
	"github.com/swingsense/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Redis is optional: without it room broadcast is instance-local and the
	// result cache lives in memory.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
			rdb = nil
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var resultCache cache.Cache
	if rdb != nil {
		resultCache = cache.NewRedisCache(rdb.Client, cfg.Cache.TTL, logger)
	} else {
		resultCache = cache.NewMemoryCache(cfg.Cache.MaxEntries, cfg.Cache.TTL, logger)
	}
	defer resultCache.Close()

	extractor := biomech.NewExtractor()
	faultClassifier := biomech.NewFaultClassifier()
	feedbackGen := biomech.NewFeedbackGenerator()

	streams := streaming.NewManager(extractor, faultClassifier, resultCache, logger)
	rooms := coaching.NewRegistry(logger)

	var pubsub realtime.PubSub
	if rdb != nil {
		pubsub = realtime.NewRedisPubSub(rdb.Client, logger)
	}

	manager := realtime.NewManager(realtime.Config{
		PingInterval:       cfg.Realtime.PingInterval,
		PongWait:           cfg.Realtime.PongWait,
		WriteTimeout:       10 * time.Second,
		ReadLimit:          cfg.Realtime.ReadLimitBytes,
		SendBuffer:         cfg.Realtime.SendBuffer,
		HeartbeatTimeout:   cfg.Realtime.HeartbeatTimeout,
		LivenessInterval:   cfg.Realtime.LivenessInterval,
		MonitoringInterval: cfg.Realtime.MonitoringInterval,
	}, rooms, pubsub, logger)

	realtime.NewDispatcher(manager, streams, feedbackGen, logger)

	// A user's streaming session ends with their last connection.
	manager.SetUserGoneHandler(func(userID string) {
		streams.EndUserSession(userID)
	})
	manager.SetStats(func() map[string]interface{} {
		return map[string]interface{}{
			"active_connections":     manager.ActiveConnections(),
			"active_sessions":        streams.ActiveSessions(),
			"active_rooms":           rooms.ActiveRooms(),
			"total_frames_processed": streams.TotalFramesProcessed(),
		}
	})

	sessionHandler := streaming.NewHandler(streams, manager, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// WebSocket (user_id in query)
	router.GET("/ws", realtime.ServeWS(manager, logger))

	api := router.Group("/api/v1")
	{
		api.POST("/sessions", sessionHandler.Create)
		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.DELETE("/sessions/:id", sessionHandler.Delete)
		api.GET("/sessions/:id/metrics", sessionHandler.GetMetrics)
		api.GET("/sessions/:id/result", sessionHandler.GetLatestResult)
		api.GET("/stats", sessionHandler.GetSystemStats)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background loops: liveness sweep and monitoring push.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go manager.Run(bgCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
