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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/online-course-api/api/swagger"
	"github.com/noah-isme/online-course-api/internal/handler"
	"github.com/noah-isme/online-course-api/internal/middleware"
	"github.com/noah-isme/online-course-api/internal/models"
	"github.com/noah-isme/online-course-api/internal/repository"
	"github.com/noah-isme/online-course-api/internal/service"
	"github.com/noah-isme/online-course-api/pkg/cache"
	"github.com/noah-isme/online-course-api/pkg/config"
	"github.com/noah-isme/online-course-api/pkg/database"
	"github.com/noah-isme/online-course-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/online-course-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/online-course-api/pkg/middleware/requestid"
)

// @title Online Course API
// @version 1.0.0
// @description Course catalog, publication workflow and enrollments
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Courses.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, course cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	router := newRouter(cfg, db, redisClient, cacheRepo, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Warn("failed to close redis", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, cacheRepo *repository.CacheRepository, logr *zap.Logger) *gin.Engine {
	validate := validator.New()
	metrics := service.NewMetricsService()

	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	userRepo := repository.NewUserRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Courses.CacheTTL, logr, cfg.Courses.CacheEnabled && redisClient != nil)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	courseSvc := service.NewCourseService(courseRepo, enrollmentRepo, userRepo, cacheSvc, metrics, validate, logr, service.CourseConfig{
		DefaultCurrency: cfg.Courses.DefaultCurrency,
		CacheTTL:        cfg.Courses.CacheTTL,
	})
	profileSvc := service.NewTeacherProfileService(userRepo, courseRepo, courseSvc, cacheSvc, logr)
	rosterSvc := service.NewRosterService(courseSvc, nil, nil, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, rosterSvc)
	teacherHandler := handler.NewTeacherHandler(profileSvc)

	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(gin.Recovery())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		swagger.SetBasePath(cfg.APIPrefix)
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	secured.GET("/auth/me", authHandler.Me)

	courses := secured.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.POST("", middleware.RequireTeacher(userRepo), courseHandler.Create)
	courses.GET("/:id", courseHandler.Get)
	courses.PUT("/:id", courseHandler.Update)
	courses.DELETE("/:id", courseHandler.Delete)
	courses.POST("/:id/publish", courseHandler.Publish)
	courses.POST("/:id/archive", courseHandler.Archive)
	courses.POST("/:id/reset-to-draft", courseHandler.ResetToDraft)
	courses.POST("/:id/enroll", courseHandler.Enroll)
	courses.POST("/:id/unenroll", courseHandler.Unenroll)
	courses.GET("/:id/enrollments", courseHandler.ListEnrollments)
	courses.GET("/:id/roster", courseHandler.ExportRoster)

	secured.PATCH("/enrollments/:id/status", courseHandler.SetEnrollmentStatus)
	secured.GET("/teachers/me/courses", middleware.RequireTeacher(userRepo), teacherHandler.MyCourses)
	secured.GET("/users/:id/profile", middleware.RBAC(string(models.RoleAdmin), middleware.SelfAccess), teacherHandler.Profile)
	secured.PUT("/users/:id/teacher", middleware.RequireRoles(models.RoleAdmin), teacherHandler.SetTeacherFlag)

	return r
}
