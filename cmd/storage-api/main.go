package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/vidkeep/storage-api/api/swagger"
	"github.com/vidkeep/storage-api/internal/billing"
	"github.com/vidkeep/storage-api/internal/handler"
	"github.com/vidkeep/storage-api/internal/middleware"
	"github.com/vidkeep/storage-api/internal/repository"
	"github.com/vidkeep/storage-api/internal/service"
	"github.com/vidkeep/storage-api/pkg/blob"
	"github.com/vidkeep/storage-api/pkg/cache"
	"github.com/vidkeep/storage-api/pkg/config"
	"github.com/vidkeep/storage-api/pkg/database"
	"github.com/vidkeep/storage-api/pkg/logger"
	corsmiddleware "github.com/vidkeep/storage-api/pkg/middleware/cors"
	reqidmiddleware "github.com/vidkeep/storage-api/pkg/middleware/requestid"
)

// @title VidKeep Storage API
// @version 1.0.0
// @description Storage quota lifecycle, chunked uploads and archival eviction for hosted video assets
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, usage cache disabled", "error", err)
		redisClient = nil
	}

	blobStore, err := blob.NewLocalStore(cfg.Blob.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init blob storage", "error", err)
	}
	signer := blob.NewSignedURLSigner(cfg.Blob.SignedURLSecret, cfg.Blob.SignedURLTTL)

	accountRepo := repository.NewAccountRepository(db)
	assetRepo := repository.NewAssetRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifierSvc := service.NewNotificationService(cfg.Notifier, logr)
	notifierSvc.Start(ctx)
	defer notifierSvc.Stop()

	metricsSvc := service.NewMetricsService()
	accountSvc := service.NewAccountService(accountRepo, cacheRepo, notifierSvc, metricsSvc, cfg.Quota, logr)
	billingClient := billing.NewClient(cfg.Billing)
	subscriptionSvc := service.NewSubscriptionService(billingClient, accountSvc, assetRepo, notifierSvc, cfg.Quota, logr)
	uploadSvc := service.NewUploadService(uploadRepo, assetRepo, blobStore, accountSvc, cfg.Uploads, logr)
	assetSvc := service.NewAssetService(assetRepo, blobStore, signer, accountSvc, cfg.APIPrefix, logr)
	maintenanceSvc := service.NewMaintenanceService(accountSvc, subscriptionSvc, assetRepo, blobStore, uploadSvc, notifierSvc, metricsSvc, cfg.Quota, cfg.Maintenance, logr)
	if cfg.Maintenance.Enabled {
		maintenanceSvc.Start(ctx)
	}

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
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	accountHandler := handler.NewAccountHandler(accountSvc, subscriptionSvc)
	uploadHandler := handler.NewUploadHandler(uploadSvc, metricsSvc)
	assetHandler := handler.NewAssetHandler(assetSvc)
	maintenanceHandler := handler.NewMaintenanceHandler(maintenanceSvc, metricsSvc)

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/accounts/:ownerId", accountHandler.Get)
		api.GET("/accounts/:ownerId/usage", accountHandler.Usage)
		api.POST("/accounts/:ownerId/sync", accountHandler.Sync)

		api.POST("/uploads", uploadHandler.Begin)
		api.GET("/uploads/:id", uploadHandler.Get)
		api.PUT("/uploads/:id/chunks/:number", uploadHandler.Chunk)

		api.GET("/assets", assetHandler.List)
		api.GET("/assets/:id", assetHandler.Get)
		api.POST("/assets/:id/download-url", assetHandler.DownloadURL)
		api.GET("/assets/:id/download", assetHandler.Download)
		api.DELETE("/assets/:id", assetHandler.Delete)

		api.POST("/maintenance/sweep", maintenanceHandler.Sweep)
		api.GET("/maintenance/stats", maintenanceHandler.Stats)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Sugar().Errorw("server shutdown failed", "error", err)
		}
	}()

	logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
