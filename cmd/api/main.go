package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/univkit/registrar-api/api/swagger"
	"github.com/univkit/registrar-api/internal/handler"
	"github.com/univkit/registrar-api/internal/middleware"
	"github.com/univkit/registrar-api/internal/repository"
	"github.com/univkit/registrar-api/internal/service"
	"github.com/univkit/registrar-api/pkg/cache"
	"github.com/univkit/registrar-api/pkg/config"
	"github.com/univkit/registrar-api/pkg/database"
	"github.com/univkit/registrar-api/pkg/export"
	"github.com/univkit/registrar-api/pkg/jobs"
	"github.com/univkit/registrar-api/pkg/logger"
	corsmiddleware "github.com/univkit/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/univkit/registrar-api/pkg/middleware/requestid"
	"github.com/univkit/registrar-api/pkg/storage"
)

// @title Registrar API
// @version 1.0.0
// @description Enrollment, grading, approval and graduation clearance workflows
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
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without cache", zap.Error(err))
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Transcripts.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare transcript storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Transcripts.SignedURLSecret, cfg.Transcripts.SignedURLTTL)

	validate := validator.New()
	metrics := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	termRepo := repository.NewTermRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeChangeRepo := repository.NewGradeChangeRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	graduationRepo := repository.NewGraduationRepository(db)
	holdRepo := repository.NewHoldRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Grades.DistributionCacheTTL, logr, redisClient != nil)

	// Services.
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	termSvc := service.NewTermService(termRepo, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, termRepo, validate, logr)

	// The queue handler and the enrollment service reference each other, so
	// the service variable is declared first and the handler closes over it.
	var enrollmentSvc *service.EnrollmentService
	promotionQueue := jobs.NewQueue("waitlist", func(ctx context.Context, job jobs.Job) error {
		sectionID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("waitlist job %s carries no section id", job.ID)
		}
		_, err := enrollmentSvc.PromoteFromWaitlist(ctx, sectionID)
		return err
	}, jobs.QueueConfig{
		Workers:    cfg.Waitlist.Workers,
		BufferSize: cfg.Waitlist.BufferSize,
		MaxRetries: cfg.Waitlist.MaxRetries,
		RetryDelay: cfg.Waitlist.RetryDelay,
		Logger:     logr,
	})
	enrollmentSvc = service.NewEnrollmentService(enrollmentRepo, studentRepo, sectionRepo, termRepo, promotionQueue, validate, logr).
		WithMetrics(metrics)
	gradeSvc := service.NewGradeService(service.GradeServiceParams{
		Enrollments: enrollmentRepo,
		Changes:     gradeChangeRepo,
		Sections:    sectionRepo,
		Terms:       termRepo,
		Users:       userRepo,
		Cache:       cacheSvc,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
		Config:      service.GradeServiceConfig{DistributionCacheTTL: cfg.Grades.DistributionCacheTTL},
	})
	approvalSvc := service.NewApprovalService(approvalRepo, sectionRepo, validate, logr)
	graduationSvc := service.NewGraduationClearanceService(graduationRepo, holdRepo, validate, logr)
	transcriptSvc := service.NewTranscriptService(service.TranscriptServiceParams{
		Enrollments: enrollmentRepo,
		Students:    studentRepo,
		Holds:       holdRepo,
		PDF:         export.NewPDFExporter(),
		Store:       store,
		Signer:      signer,
		Logger:      logr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	promotionQueue.Start(ctx)
	defer promotionQueue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Students:    handler.NewStudentHandler(studentSvc),
		Terms:       handler.NewTermHandler(termSvc),
		Sections:    handler.NewSectionHandler(sectionSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Grades:      handler.NewGradeHandler(gradeSvc),
		Approvals:   handler.NewApprovalHandler(approvalSvc),
		Graduation:  handler.NewGraduationHandler(graduationSvc),
		Transcripts: handler.NewTranscriptHandler(transcriptSvc, store, signer),
		Metrics:     metricsHandler,
		AuthService: authSvc,
		AuditWriter: userRepo,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
