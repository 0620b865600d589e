package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/khaitqy99/otp-sender/internal/background"
	"github.com/khaitqy99/otp-sender/internal/config"
	"github.com/khaitqy99/otp-sender/internal/database"
	"github.com/khaitqy99/otp-sender/internal/handlers"
	middlewareCustom "github.com/khaitqy99/otp-sender/internal/middleware"
	"github.com/khaitqy99/otp-sender/internal/repositories"
	"github.com/khaitqy99/otp-sender/internal/routes"
	"github.com/khaitqy99/otp-sender/internal/services"
	pkglogger "github.com/khaitqy99/otp-sender/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	recordRepo := repositories.NewOtpRecordRepository(db)
	attemptRepo := repositories.NewFailedAttemptRepository(db)
	verificationRepo := repositories.NewVerificationRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// AWS SES email transport
	emailSender, err := services.NewAWSSESEmailSender(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email sender", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	otpService := services.NewOtpService(recordRepo, attemptRepo, verificationRepo, emailSender, logger, auditLogger, cfg.Otp)
	verificationService := services.NewVerificationService(recordRepo, attemptRepo, verificationRepo, logger, auditLogger, cfg.Otp)
	webhookService := services.NewWebhookService(recordRepo, logger, cfg.Otp)

	// Reconciliation sweep for time-based transitions
	reconciler := background.NewReconciler(verificationService, logger, cfg.Otp.SweepInterval)

	// Initialize handlers
	otpHandler := handlers.NewOtpHandler(otpService)
	verificationHandler := handlers.NewVerificationHandler(verificationService)
	webhookHandler := handlers.NewWebhookHandler(webhookService, logger)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, otpHandler, verificationHandler, webhookHandler)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start reconciliation sweep
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go reconciler.Start(sweepCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	reconciler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
