package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campuslib/catalog-api/api/swagger"
	"github.com/campuslib/catalog-api/internal/handler"
	"github.com/campuslib/catalog-api/internal/middleware"
	"github.com/campuslib/catalog-api/internal/models"
	"github.com/campuslib/catalog-api/internal/repository"
	"github.com/campuslib/catalog-api/internal/service"
	"github.com/campuslib/catalog-api/pkg/cache"
	"github.com/campuslib/catalog-api/pkg/config"
	"github.com/campuslib/catalog-api/pkg/database"
	"github.com/campuslib/catalog-api/pkg/logger"
	corsmiddleware "github.com/campuslib/catalog-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuslib/catalog-api/pkg/middleware/requestid"
	"github.com/campuslib/catalog-api/pkg/storage"
)

// @title College Library Catalog API
// @version 1.0.0
// @description Resource catalog service for the college library
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
	defer db.Close()

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, true)
		defer cacheRepo.Close()
	}

	questionPapers := repository.NewQuestionPaperRepository(db)
	researchPapers := repository.NewResearchPaperRepository(db)
	counters := repository.NewAccessionCounterRepository(db)
	users := repository.NewUserRepository(db)

	accessionSvc := service.NewAccessionService(map[models.ResourceType]service.AccessionReader{
		models.ResourceTypeQuestionPapers: questionPapers,
		models.ResourceTypeResearchPapers: researchPapers,
	}, counters, logr)
	resourceSvc := service.NewResourceService(questionPapers, researchPapers, users, cacheSvc, validate, logr)
	authSvc := service.NewAuthService(users, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "catalog-api",
	}, validate, logr)

	accessionHandler := handler.NewAccessionHandler(accessionSvc)
	resourceHandler := handler.NewResourceHandler(resourceSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportJobs := repository.NewExportJobRepository(db)
		exportSvc = service.NewExportService(exportJobs, questionPapers, researchPapers, store, signer, service.ExportQueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
		}, logr)
		exportSvc.Start(ctx)
		defer exportSvc.Stop()

		go func() {
			ticker := time.NewTicker(cfg.Exports.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					exportSvc.Cleanup(ctx, cfg.Exports.SignedURLTTL)
				}
			}
		}()
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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
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
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	resources := api.Group("/resources")
	resources.GET("/:type", middleware.OptionalJWT(authSvc), resourceHandler.List)
	resources.GET("/:type/next-accession", middleware.OptionalJWT(authSvc), accessionHandler.PeekNext)
	resources.GET("/:type/:id", middleware.OptionalJWT(authSvc), resourceHandler.Get)
	resources.PUT("/:id",
		middleware.JWT(authSvc),
		middleware.RequireRoles(models.RoleAdmin, models.RoleClerk),
		resourceHandler.Update)
	resources.DELETE("/:id",
		middleware.JWT(authSvc),
		middleware.RequireRoles(models.RoleAdmin, models.RoleClerk),
		resourceHandler.Delete)

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleClerk))
	admin.POST("/resources/:type", resourceHandler.Create)
	admin.POST("/resources/:type/accessions", accessionHandler.Reserve)

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		admin.POST("/exports", exportHandler.Create)
		admin.GET("/exports/:id", exportHandler.Get)
		api.GET("/exports/download", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
