package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-course-api/api/swagger"
	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/internal/handler"
	"github.com/noah-isme/campus-course-api/internal/middleware"
	"github.com/noah-isme/campus-course-api/internal/remote"
	"github.com/noah-isme/campus-course-api/internal/repository"
	"github.com/noah-isme/campus-course-api/internal/service"
	"github.com/noah-isme/campus-course-api/pkg/cache"
	"github.com/noah-isme/campus-course-api/pkg/config"
	"github.com/noah-isme/campus-course-api/pkg/database"
	"github.com/noah-isme/campus-course-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-course-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-course-api/pkg/middleware/requestid"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the campus HTTP node",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	local := campus.Campus(cfg.Campus.Current())

	directoryDB, err := database.NewPostgres(cfg.Directory)
	if err != nil {
		return fmt.Errorf("connect directory store: %w", err)
	}
	defer directoryDB.Close()

	shardDB, err := database.NewPostgres(cfg.Shard)
	if err != nil {
		return fmt.Errorf("connect shard store: %w", err)
	}
	defer shardDB.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService(string(local))
	peers := remote.NewClient(cfg.Campus, cfg.PrivateAPIPrefix, metrics, logr)

	directory := repository.NewDirectoryRepository(directoryDB)
	courses := repository.NewCourseRepository(shardDB)

	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		PrivateSecret:     cfg.Campus.APISecret,
	})
	selection := service.NewSelectionService(service.SelectionServiceConfig{
		Settings: directory,
		Cache:    cacheRepo,
		Begin:    cfg.Selection.Begin,
		End:      cfg.Selection.End,
		CacheTTL: cfg.Selection.CacheTTL,
		Logger:   logr,
	})
	queries := service.NewCourseQueryService(service.CourseQueryServiceConfig{
		Local:     local,
		ShardDB:   shardDB,
		Courses:   courses,
		Directory: directory,
		Cache:     cacheRepo,
		Remote:    peers,
		Metrics:   metrics,
		CacheTTL:  cfg.Redis.TeacherCacheTTL,
		Logger:    logr,
	})
	courseSvc := service.NewCourseService(service.CourseServiceConfig{
		Local:     local,
		ShardDB:   shardDB,
		Store:     courses,
		Directory: directory,
		IDs:       service.NewCourseIDAllocator(courses),
		Remote:    peers,
		Logger:    logr,
	})
	enrollments := service.NewEnrollmentService(service.EnrollmentServiceConfig{
		Local:     local,
		ShardDB:   shardDB,
		Store:     courses,
		Students:  directory,
		Window:    selection,
		Remote:    peers,
		Metrics:   metrics,
		MaxPasses: cfg.Cascade.MaxPasses,
		Logger:    logr,
	})

	var peerCampuses []campus.Campus
	for name := range cfg.Campus.URLs() {
		peerCampuses = append(peerCampuses, campus.Campus(name))
	}
	purge := service.NewUserPurgeService(service.UserPurgeServiceConfig{
		Deleter: enrollments,
		Peers:   peerCampuses,
		Remote:  peers,
		Workers: cfg.Purge.Workers,
		Retries: cfg.Purge.Retries,
		Logger:  logr,
	})
	purge.Start(ctx)
	defer purge.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, cfg.PrivateAPIPrefix))
	r.Use(middleware.Metrics(metrics))
	peerURLs := make([]string, 0, 2)
	for _, base := range cfg.Campus.URLs() {
		peerURLs = append(peerURLs, base)
	}
	r.Use(corsmiddleware.New(corsmiddleware.Options{AllowedOrigins: cfg.CORS.AllowedOrigins, PeerURLs: peerURLs}))

	handler.Router{
		Auth:        auth,
		Courses:     handler.NewCourseHandler(queries, courseSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollments),
		Selection:   handler.NewSelectionHandler(selection),
		Users:       handler.NewUserHandler(purge),
		Private:     handler.NewPrivateHandler(queries, courseSvc, enrollments),
		Metrics: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"directory": directoryDB,
			"shard":     shardDB,
		}),
	}.Register(r, cfg.APIPrefix, cfg.PrivateAPIPrefix)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("campus", string(local)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
