package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/edupilot/edupilot-api/internal/handler"
	"github.com/edupilot/edupilot-api/internal/middleware"
	"github.com/edupilot/edupilot-api/internal/repository"
	"github.com/edupilot/edupilot-api/internal/service"
	"github.com/edupilot/edupilot-api/pkg/ai"
	"github.com/edupilot/edupilot-api/pkg/cache"
	"github.com/edupilot/edupilot-api/pkg/config"
	"github.com/edupilot/edupilot-api/pkg/database"
	"github.com/edupilot/edupilot-api/pkg/export"
	"github.com/edupilot/edupilot-api/pkg/jobs"
	"github.com/edupilot/edupilot-api/pkg/logger"
	corsmiddleware "github.com/edupilot/edupilot-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edupilot/edupilot-api/pkg/middleware/requestid"
	"github.com/edupilot/edupilot-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, listings will not be cached", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare upload storage", "error", err)
	}

	engine, err := ai.NewGeminiEngine(rootCtx, cfg.Analysis.APIKey, cfg.Analysis.Model)
	if err != nil {
		logr.Sugar().Fatalw("failed to init analysis engine", "error", err)
	}
	defer engine.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	broadcastSvc := service.NewBroadcastService(logr)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	artifactRepo := repository.NewArtifactRepository(db)
	interactionRepo := repository.NewInteractionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	worker := service.NewContentWorker(artifactRepo, store, engine, broadcastSvc, cacheRepo, metricsSvc, cfg.Analysis.Timeout, logr)
	queue := jobs.NewQueue("content-analysis", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Uploads.WorkerCount,
		BufferSize: cfg.Uploads.QueueBuffer,
		Logger:     logr,
	})
	queue.Start(rootCtx)
	defer queue.Stop()

	contentSvc := service.NewContentService(
		artifactRepo,
		cacheRepo,
		store,
		queue,
		broadcastSvc,
		export.NewPDFExporter(),
		metricsSvc,
		service.ContentUploadLimits{
			MaxFileSizeBytes: cfg.Uploads.MaxFileSizeBytes,
			AllowedMIMEs:     cfg.Uploads.AllowedMIMEs,
			MaxFilesPerBatch: cfg.Uploads.MaxFilesPerBatch,
		},
		cfg.Content.CacheTTL,
		logr,
	)
	interactionSvc := service.NewInteractionService(
		interactionRepo,
		engine,
		broadcastSvc,
		metricsSvc,
		validator.New(),
		cfg.Analysis.Timeout,
		logr,
	)

	contentHandler := handler.NewContentHandler(contentSvc)
	interactionHandler := handler.NewInteractionHandler(interactionSvc)
	realtimeHandler := handler.NewRealtimeHandler(broadcastSvc, metricsSvc, cfg.Realtime.WriteTimeout, cfg.Realtime.PingInterval, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	authed := api.Group("", middleware.JWT(tokenSvc))
	{
		teacher := authed.Group("/teacher")
		teacher.POST("/uploads", contentHandler.Upload)
		teacher.GET("/files", contentHandler.List)
		teacher.GET("/files/:id", contentHandler.Get)
		teacher.PATCH("/files/:id/section", contentHandler.UpdateSection)
		teacher.GET("/files/:id/quiz.pdf", contentHandler.QuizPDF)

		teacher.POST("/generate-response", interactionHandler.Ask)
		teacher.GET("/interactions", interactionHandler.List)
		teacher.GET("/interactions/:id", interactionHandler.Get)
		teacher.POST("/interactions/:id/approve", interactionHandler.Approve)

		authed.GET("/realtime", realtimeHandler.Connect)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
