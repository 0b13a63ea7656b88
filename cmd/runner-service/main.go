package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/cache"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/db"
	commonmw "github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/http/middleware"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/mq"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/storage"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend/interp"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend/remote"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/controller"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/queue"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/repository"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/submission"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/logger"
)

const defaultConfigPath = "configs/runner_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()
	dbProvider := db.NewStaticProvider(mysqlDB)

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	backendSet, err := buildBackendSet(appCfg)
	if err != nil {
		logger.Error(context.Background(), "init execution backends failed", zap.Error(err))
		return
	}
	sessionMgr, err := queue.NewSessionManager(appCfg.Queue, backendSet)
	if err != nil {
		logger.Error(context.Background(), "init session manager failed", zap.Error(err))
		return
	}
	evictCtx, stopEviction := context.WithCancel(context.Background())
	defer stopEviction()
	go sessionMgr.RunEviction(evictCtx)

	submissionRepo, err := repository.NewSubmissionRepository(dbProvider, redisCache)
	if err != nil {
		logger.Error(context.Background(), "init submission repository failed", zap.Error(err))
		return
	}
	statusRepo, err := repository.NewStatusRepository(redisCache)
	if err != nil {
		logger.Error(context.Background(), "init status repository failed", zap.Error(err))
		return
	}
	eventPublisher, err := repository.NewEventPublisher(mqClient, appCfg.Events)
	if err != nil {
		logger.Error(context.Background(), "init event publisher failed", zap.Error(err))
		return
	}
	archiveRepo, err := repository.NewArchiveRepository(objStorage, appCfg.Archive.Bucket)
	if err != nil {
		logger.Error(context.Background(), "init archive repository failed", zap.Error(err))
		return
	}

	orchestrator, err := submission.New(
		submission.Config{
			DefaultTimeout:   appCfg.Submission.DefaultTimeout,
			AggregateTimeout: appCfg.Submission.AggregateTimeout,
		},
		sessionMgr,
		submission.WithRecorder(submissionRepo),
		submission.WithStatusReporter(statusRepo),
		submission.WithProgressNotifier(eventPublisher),
		submission.WithCompletionPublisher(eventPublisher),
		submission.WithArchiver(archiveRepo),
	)
	if err != nil {
		logger.Error(context.Background(), "init orchestrator failed", zap.Error(err))
		return
	}

	runnerController := controller.NewRunnerController(orchestrator, submissionRepo, statusRepo)
	httpServer := buildHTTPServer(appCfg, redisCache, runnerController)

	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "runner http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

// buildBackendSet wires the executors. The remote executor is stateless
// per request and shared; the interpreter owns a runtime with internal
// mutual exclusion, so every session gets its own instance.
func buildBackendSet(appCfg *AppConfig) (queue.BackendSet, error) {
	var remoteExec backend.Backend
	if appCfg.Sandbox.BaseURL != "" {
		client, err := remote.NewClient(appCfg.Sandbox.toClientConfig())
		if err != nil {
			return nil, err
		}
		exec, err := remote.NewExecutor(client, appCfg.Sandbox.SandboxTTL)
		if err != nil {
			return nil, err
		}
		remoteExec = exec
	}

	return func() (map[backend.Kind]backend.Backend, error) {
		interpExec, err := interp.New(appCfg.Interp)
		if err != nil {
			return nil, err
		}
		backends := map[backend.Kind]backend.Backend{backend.KindInterp: interpExec}
		if remoteExec != nil {
			backends[backend.KindRemote] = remoteExec
		}
		return backends, nil
	}, nil
}

func buildHTTPServer(appCfg *AppConfig, cacheClient cache.Cache, h *controller.RunnerController) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	api := router.Group("/api/v1/runner")
	api.Use(commonmw.AuthMiddleware(appCfg.Auth))
	api.POST("/submissions",
		commonmw.RateLimitMiddleware(cacheClient, "submit", appCfg.RateLimit.Submit), h.Submit)
	api.GET("/submissions",
		commonmw.RateLimitMiddleware(cacheClient, "query", appCfg.RateLimit.Query), h.History)
	api.GET("/submissions/:id",
		commonmw.RateLimitMiddleware(cacheClient, "query", appCfg.RateLimit.Query), h.Get)
	api.POST("/submissions/:id/cancel",
		commonmw.RateLimitMiddleware(cacheClient, "query", appCfg.RateLimit.Query), h.Cancel)
	api.GET("/submissions/:id/stream", h.Stream)

	return &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
