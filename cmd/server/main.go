package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/config"
	"github.com/stemsi/schoolcbt/internal/database"
	"github.com/stemsi/schoolcbt/internal/handler"
	"github.com/stemsi/schoolcbt/internal/logger"
	"github.com/stemsi/schoolcbt/internal/repository"
	"github.com/stemsi/schoolcbt/internal/router"
	"github.com/stemsi/schoolcbt/internal/service"
	"github.com/stemsi/schoolcbt/internal/validator"
	"github.com/stemsi/schoolcbt/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting SchoolCBT Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	notificationService := service.NewNotificationService(rdb, notificationRepo, cfg.NotificationTTL, log)
	feedService := service.NewExamFeedService(rdb, examRepo, log)
	authService := service.NewAuthService(cfg, rdb, userRepo, log)
	examService := service.NewExamService(examRepo, submissionRepo, feedService, notificationService, cfg.ExamCodeLength, log)
	sessionService := service.NewExamSessionService(examRepo, submissionRepo, notificationService, nil, log)
	submissionService := service.NewSubmissionService(submissionRepo, examRepo, notificationService, cfg.ReportMaxRows, log)
	dashboardService := service.NewDashboardService(examService, submissionService, examRepo, userRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, log),
		Exam:          handler.NewExamHandler(examService, log),
		StudentPortal: handler.NewStudentPortalHandler(sessionService, examService, submissionService, log),
		Submission:    handler.NewSubmissionHandler(submissionService, log),
		Dashboard:     handler.NewDashboardHandler(dashboardService, log),
		Monitor:       handler.NewMonitorHandler(feedService, log),
		Notification:  handler.NewNotificationHandler(notificationService, log),
		WS:            handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:        handler.NewSystemHandler(pool, rdb, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	notificationWorker := worker.NewNotificationWorker(notificationRepo, rdb, log)
	go func() {
		defer close(workerDone)
		notificationWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r, stopLimiters := router.SetupRouter(authService, handlers, cfg)
	defer stopLimiters()

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Abandon open attempts; they are not resumed after a restart.
	sessionService.Shutdown()

	// 3. Stop the notification worker and wait for its final flush.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Notification worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
