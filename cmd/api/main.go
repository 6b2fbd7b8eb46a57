package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campushub/config"
	"campushub/internal/adapters/auth"
	"campushub/internal/adapters/email"
	"campushub/internal/adapters/qr"
	deliveryhttp "campushub/internal/delivery/http"
	"campushub/internal/delivery/http/controllers"
	"campushub/internal/delivery/http/middleware"
	"campushub/internal/domain"
	"campushub/internal/repository/lock"
	"campushub/internal/repository/mongodb"
	"campushub/internal/repository/postgres"
	"campushub/internal/services"
	"campushub/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// @title CampusHub Events API
// @version 1.0
// @description Campus event registration, QR check-in and attendance tracking.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the identity provider token.
func main() {
	logger := config.NewLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "campushub", cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to set up tracing", "err", err)
		os.Exit(1)
	}

	eventRepo, closeStorage, err := openEventRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.StorageBackend, "err", err)
		os.Exit(1)
	}

	sweepLock, closeLock := openSweepLock(ctx, cfg, logger)

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.EmailFromAddress,
		FromName:    cfg.EmailFromName,
		SES: email.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretKey,
		},
	}, logger)
	if err != nil {
		logger.Error("failed to create mailer", "err", err)
		os.Exit(1)
	}
	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		logger.Error("failed to load email templates", "err", err)
		os.Exit(1)
	}

	codec := qr.NewCodec(cfg.CheckInSigningSecret)
	emailService := services.NewEmailService(mailer, renderer, logger)
	eventService := services.NewEventService(eventRepo, cfg.RequestTimeout)
	registrationService := services.NewRegistrationService(eventRepo, codec, emailService, logger, cfg.RequestTimeout)
	attendanceService := services.NewAttendanceService(eventRepo, codec, cfg.RequestTimeout)
	lifecycleService := services.NewLifecycleService(eventRepo, sweepLock, cfg.SweepInterval, logger)

	router := deliveryhttp.NewRouter(deliveryhttp.RouterDeps{
		Logger:             logger,
		Verifier:           auth.NewJWTVerifier(cfg.JWTSecret),
		ScanLimiter:        middleware.NewRateLimiter(cfg.ScanRatePerMinute, logger),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Events:             controllers.NewEventController(logger, eventService),
		Registrations:      controllers.NewRegistrationController(logger, registrationService),
		Attendance:         controllers.NewAttendanceController(logger, attendanceService),
	})

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		lifecycleService.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.Environment, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		logger.Error("server error", "err", err)
		exitCode = 1
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	<-sweepDone
	closeLock()
	closeStorage(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", "err", err)
	}
	logger.Info("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// openEventRepository connects the configured storage backend and prepares its schema.
func openEventRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.EventRepository, func(context.Context), error) {
	switch cfg.StorageBackend {
	case config.StorageMongo:
		client, db, err := config.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		logger.Info("connected to mongodb", "database", cfg.MongoDB)
		return mongodb.NewEventRepository(db), func(ctx context.Context) {
			if err := client.Disconnect(ctx); err != nil {
				logger.Warn("mongodb disconnect failed", "err", err)
			}
		}, nil
	default:
		db, err := config.OpenPostgres(ctx, cfg.DBUrl)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("connected to postgres")
		return postgres.NewEventRepository(db), func(context.Context) {
			if err := db.Close(); err != nil {
				logger.Warn("postgres close failed", "err", err)
			}
		}, nil
	}
}

// openSweepLock uses Redis when REDIS_URL is set so only one replica sweeps per interval.
// An unreachable Redis falls back to a process-local lock.
func openSweepLock(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.SweepLock, func()) {
	if cfg.RedisURL == "" {
		logger.Info("using in-memory sweep lock")
		return lock.NewMemoryLock(), func() {}
	}
	client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory sweep lock", "err", err)
		return lock.NewMemoryLock(), func() {}
	}
	logger.Info("using redis sweep lock")
	return lock.NewRedisLock(client), func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close failed", "err", err)
		}
	}
}
