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
	"go.uber.org/zap"

	_ "github.com/noah-isme/swo-voucher-api/api/swagger"
	"github.com/noah-isme/swo-voucher-api/internal/handler"
	"github.com/noah-isme/swo-voucher-api/internal/middleware"
	"github.com/noah-isme/swo-voucher-api/internal/models"
	"github.com/noah-isme/swo-voucher-api/internal/repository"
	"github.com/noah-isme/swo-voucher-api/internal/service"
	"github.com/noah-isme/swo-voucher-api/pkg/cache"
	"github.com/noah-isme/swo-voucher-api/pkg/config"
	"github.com/noah-isme/swo-voucher-api/pkg/database"
	"github.com/noah-isme/swo-voucher-api/pkg/jobs"
	"github.com/noah-isme/swo-voucher-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/swo-voucher-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/swo-voucher-api/pkg/middleware/requestid"
	"github.com/noah-isme/swo-voucher-api/pkg/storage"
)

// @title SWO Voucher API
// @version 1.0.0
// @description Club event voucher approval workflow for the student welfare office
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}

	artifactStore, err := storage.NewLocalStorage(cfg.Artifacts.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare artifact storage", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "swo-voucher-api",
		Audience:           []string{"swo-voucher-api"},
	})

	signer := storage.NewSignedURLSigner(cfg.Artifacts.SignedURLSecret, cfg.Artifacts.SignedURLTTL)
	artifactSvc := service.NewArtifactService(voucherRepo, userRepo, artifactStore, signer, userRepo, logr)

	renderQueue := jobs.NewQueue("artifact-render", artifactSvc.HandleRenderJob, jobs.QueueConfig{
		Workers:    cfg.Artifacts.WorkerConcurrency,
		MaxRetries: cfg.Artifacts.WorkerRetries,
		Logger:     logr,
	})
	artifactSvc.AttachQueue(renderQueue)

	voucherSvc := service.NewVoucherService(voucherRepo, userRepo, logr,
		service.WithVoucherCache(cacheRepo, cfg.Vouchers.CacheTTL),
		service.WithVoucherMetrics(metricsSvc),
		service.WithArtifactPrerender(artifactSvc.EnqueuePrerender),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderQueue.Start(ctx)
	defer renderQueue.Stop()

	go func() {
		ticker := time.NewTicker(cfg.Artifacts.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				artifactSvc.CleanupExpired(cfg.Artifacts.CleanupInterval)
			}
		}
	}()

	authHandler := handler.NewAuthHandler(authSvc)
	voucherHandler := handler.NewVoucherHandler(voucherSvc)
	artifactHandler := handler.NewArtifactHandler(artifactSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "reason": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	vouchers := api.Group("/vouchers", middleware.JWT(authSvc))
	{
		vouchers.POST("",
			middleware.RequireRoles(models.RoleStudentHead),
			voucherHandler.Create)
		vouchers.GET("", voucherHandler.List)
		vouchers.GET("/export",
			middleware.RequireRoles(models.RoleDeanSWO, models.RoleDeanSW),
			middleware.Audit(userRepo, models.AuditActionVoucherExport, "voucher"),
			voucherHandler.Export)
		vouchers.GET("/:id", voucherHandler.Get)
		vouchers.POST("/:id/submit",
			middleware.RequireRoles(models.RoleStudentHead),
			voucherHandler.Submit)
		vouchers.POST("/:id/approve",
			middleware.RequireRoles(models.RoleFaculty, models.RoleDeanSWO, models.RoleDeanSW),
			voucherHandler.Approve)
		vouchers.POST("/:id/reject",
			middleware.RequireRoles(models.RoleFaculty, models.RoleDeanSWO, models.RoleDeanSW),
			voucherHandler.Reject)
		vouchers.GET("/:id/pdf", artifactHandler.Link)
	}

	// Download links carry their own HMAC authorization.
	api.GET("/artifacts/:token", artifactHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
