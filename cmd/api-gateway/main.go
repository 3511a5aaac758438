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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-perpus-api/api/swagger"
	"github.com/noah-isme/sma-perpus-api/internal/handler"
	"github.com/noah-isme/sma-perpus-api/internal/middleware"
	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/repository"
	"github.com/noah-isme/sma-perpus-api/internal/service"
	"github.com/noah-isme/sma-perpus-api/pkg/cache"
	"github.com/noah-isme/sma-perpus-api/pkg/config"
	"github.com/noah-isme/sma-perpus-api/pkg/database"
	"github.com/noah-isme/sma-perpus-api/pkg/logger"
	"github.com/noah-isme/sma-perpus-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/sma-perpus-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-perpus-api/pkg/middleware/requestid"
)

// @title SMA Perpus API
// @version 0.1.0
// @description Library circulation and notification service
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
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	bookRepo := repository.NewBookRepository(db)
	borrowRepo := repository.NewBorrowRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(cfg.JWT, logr)
	mail := mailer.NewSMTP(cfg.SMTP)
	policy := service.NewNotificationPolicy(cfg.Notifications)
	notificationSvc := service.NewNotificationService(
		notificationRepo, userRepo, auditRepo, cacheRepo,
		policy, mail, metricsSvc, cfg.Notifications, mail.Redact, logr)
	circulationSvc := service.NewCirculationService(
		borrowRepo, bookRepo, userRepo, auditRepo, notificationSvc,
		cfg.Notifications, validate, logr)
	scanSvc := service.NewScanService(borrowRepo, bookRepo, userRepo, notificationSvc, cfg.Notifications, logr)
	reportSvc := service.NewReportService(borrowRepo, nil, nil, logr)

	circulationHandler := handler.NewCirculationHandler(circulationSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc, scanSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	admin := string(models.RoleAdmin)
	librarian := string(models.RoleLibrarian)
	student := string(models.RoleStudent)

	// Mutating circulation routes are audited inside the service layer,
	// where the resource id and payload are known.
	requests := api.Group("/borrow-requests")
	{
		requests.POST("", middleware.RBAC(student), circulationHandler.CreateRequest)
		requests.GET("", circulationHandler.ListRequests)
		requests.GET("/:id", circulationHandler.GetRequest)
		requests.POST("/:id/approve", middleware.RBAC(admin, librarian), circulationHandler.ApproveRequest)
		requests.POST("/:id/reject", middleware.RBAC(admin, librarian), circulationHandler.RejectRequest)
	}

	loans := api.Group("/loans")
	{
		loans.POST("", middleware.RBAC(admin, librarian), circulationHandler.CreateLoan)
		loans.GET("", circulationHandler.ListLoans)
		loans.GET("/:id", circulationHandler.GetLoan)
		loans.POST("/:id/return", middleware.RBAC(admin, librarian), circulationHandler.ReturnLoan)
		loans.POST("/:id/extend", middleware.RBAC(admin, librarian), circulationHandler.ExtendLoan)
		loans.DELETE("/:id", middleware.RBAC(admin, librarian), circulationHandler.DeleteLoan)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
		notifications.POST("/process-queue", middleware.RBAC(admin), notificationHandler.ProcessQueue)
		notifications.POST("/scan-due", middleware.RBAC(admin), notificationHandler.ScanDue)
	}

	api.GET("/reports/overdue-loans", middleware.RBAC(admin, librarian), reportHandler.OverdueLoans)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runDispatcher(ctx, notificationSvc, cfg.Notifications, logr)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// runDispatcher drains the delivery queue on a fixed interval until the
// context is cancelled. A final drain on shutdown flushes what it can.
func runDispatcher(ctx context.Context, notifications *service.NotificationService, cfg config.NotificationsConfig, logr *zap.Logger) {
	interval := cfg.DrainInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := notifications.Drain(flushCtx, 0); err != nil {
				logr.Sugar().Warnw("final drain failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			result, err := notifications.Drain(ctx, 0)
			if err != nil {
				logr.Sugar().Warnw("drain failed", "error", err)
				continue
			}
			if result.Processed > 0 {
				logr.Sugar().Infow("drained deliveries",
					"processed", result.Processed, "sent", result.Sent, "failed", result.Failed)
			}
		}
	}
}
