package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/quarter-scheduler/api/swagger"
	"github.com/noah-isme/quarter-scheduler/internal/handler"
	internalmiddleware "github.com/noah-isme/quarter-scheduler/internal/middleware"
	"github.com/noah-isme/quarter-scheduler/internal/models"
	"github.com/noah-isme/quarter-scheduler/internal/repository"
	"github.com/noah-isme/quarter-scheduler/internal/scheduler"
	"github.com/noah-isme/quarter-scheduler/internal/service"
	"github.com/noah-isme/quarter-scheduler/pkg/cache"
	"github.com/noah-isme/quarter-scheduler/pkg/config"
	"github.com/noah-isme/quarter-scheduler/pkg/database"
	"github.com/noah-isme/quarter-scheduler/pkg/jobs"
	"github.com/noah-isme/quarter-scheduler/pkg/logger"
	corsmiddleware "github.com/noah-isme/quarter-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/quarter-scheduler/pkg/middleware/requestid"
	"github.com/noah-isme/quarter-scheduler/pkg/storage"
)

// @title Quarter Scheduler API
// @version 1.0.0
// @description Allocates recurring training courses onto fiscal-quarter calendars.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()

	var db *sqlx.DB
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			logr.Fatal("failed to apply schema", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, plan cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}

	engine, err := buildEngine(cfg.Scheduler, logr)
	if err != nil {
		logr.Fatal("invalid scheduler configuration", zap.Error(err))
	}

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Scheduler.CacheTTL, logr, cacheRepo != nil)

	generatorCfg := service.ScheduleGeneratorConfig{
		ProposalTTL: cfg.Scheduler.ProposalTTL,
		CacheTTL:    cfg.Scheduler.CacheTTL,
		MaxCourses:  cfg.Scheduler.MaxCourses,
		Fingerprint: engineFingerprint(cfg.Scheduler),
	}
	var generator *service.ScheduleGeneratorService
	if db != nil {
		runs := repository.NewScheduleRunRepository(db, metricsSvc)
		generator = service.NewScheduleGeneratorService(engine, runs, db, cacheSvc, metricsSvc, nil, logr, generatorCfg)
	} else {
		generator = service.NewScheduleGeneratorService(engine, nil, nil, cacheSvc, metricsSvc, nil, logr, generatorCfg)
	}
	if cacheSvc.Enabled() {
		if err := generator.ResetPlanCache(ctx); err != nil {
			logr.Warn("failed to reset plan cache", zap.Error(err))
		}
	}
	normalizer := service.NewCourseNormalizer(nil, cfg.Scheduler.MaxCourses)

	exportSvc, exportQueue := buildExports(ctx, cfg, generator, metricsSvc, logr)
	if exportQueue != nil {
		defer exportQueue.Stop()
	}

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
		Leeway:            30 * time.Second,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/system/metrics", metricsHandler.Summary)

	if cfg.Scheduler.Enabled {
		scheduleHandler := handler.NewScheduleGeneratorHandler(generator, normalizer)
		exportHandler := handler.NewExportHandler(exportSvc)

		authed := api.Group("")
		authed.Use(internalmiddleware.JWT(authSvc))
		writers := internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleScheduler)

		authed.POST("/schedules/import", scheduleHandler.ImportCourses)
		authed.POST("/schedules/generator", scheduleHandler.Generate)
		authed.POST("/schedules/generator/year", scheduleHandler.GenerateYear)
		authed.GET("/schedules/proposals/:id", scheduleHandler.Proposal)
		authed.POST("/schedules/proposals/:id/export", exportHandler.Request)
		authed.POST("/schedules/save", writers, scheduleHandler.Save)

		authed.GET("/schedule-runs", scheduleHandler.List)
		authed.GET("/schedule-runs/:id/sessions", scheduleHandler.Sessions)
		authed.DELETE("/schedule-runs/:id", writers, scheduleHandler.Delete)
		authed.PATCH("/schedule-runs/:id/sessions/instructor", writers, scheduleHandler.AssignInstructor)

		authed.GET("/exports/:id", exportHandler.Status)
		// The signed token is the credential for downloads.
		api.GET("/exports/download", exportHandler.Download)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.Bool("database", db != nil),
			zap.Bool("cache", cacheSvc.Enabled()),
			zap.Bool("exports", exportQueue != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}

func buildEngine(cfg config.SchedulerConfig, logr *zap.Logger) (*scheduler.Engine, error) {
	table, err := scheduler.QuarterTableFor(cfg.FiscalStart)
	if err != nil {
		return nil, err
	}
	quarters, err := scheduler.NewQuarterCalculator(table)
	if err != nil {
		return nil, err
	}
	rules := make([]scheduler.SpecialRule, 0, len(cfg.SpecialKeywords))
	for _, keyword := range cfg.SpecialKeywords {
		rules = append(rules, scheduler.SpecialRulesFor(keyword))
	}
	return scheduler.NewEngine(scheduler.DefaultCalendarRules(), quarters, scheduler.Options{
		SpecialRules:  rules,
		MinSeparation: cfg.MinSeparation,
		Logger:        logr.Named("engine"),
	}), nil
}

func engineFingerprint(cfg config.SchedulerConfig) string {
	return strings.Join([]string{
		strings.ToLower(cfg.FiscalStart),
		strings.ToLower(strings.Join(cfg.SpecialKeywords, ",")),
		cfg.MinSeparation.String(),
	}, "|")
}

func buildExports(ctx context.Context, cfg *config.Config, proposals *service.ScheduleGeneratorService, metrics *service.MetricsService, logr *zap.Logger) (*service.ExportService, *jobs.Queue) {
	exportCfg := service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	}
	if !cfg.Exports.Enabled {
		return service.NewExportService(proposals, nil, nil, metrics, logr, exportCfg), nil
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Warn("export storage unavailable, exports disabled", zap.Error(err))
		return service.NewExportService(proposals, nil, nil, metrics, logr, exportCfg), nil
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(proposals, files, signer, metrics, logr, exportCfg)

	queue := jobs.NewQueue("schedule-exports", exportSvc.Process, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		OnGiveUp:   exportSvc.MarkFailed,
		Logger:     logr,
	})
	queue.Start(ctx)
	exportSvc.AttachQueue(queue)
	exportSvc.StartCleanup(ctx)
	return exportSvc, queue
}
