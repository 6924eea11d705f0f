package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/redis/go-redis/v9"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/scrapsail/scrapsail-backend/internal/config"
	"github.com/scrapsail/scrapsail-backend/internal/database"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/events"
	"github.com/scrapsail/scrapsail-backend/internal/handlers"
	"github.com/scrapsail/scrapsail-backend/internal/logging"
	"github.com/scrapsail/scrapsail-backend/internal/middleware"
	"github.com/scrapsail/scrapsail-backend/internal/notify"
	"github.com/scrapsail/scrapsail-backend/internal/otpstore"
	"github.com/scrapsail/scrapsail-backend/internal/payout"
	"github.com/scrapsail/scrapsail-backend/internal/routes"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"github.com/scrapsail/scrapsail-backend/internal/validator"
	"github.com/scrapsail/scrapsail-backend/internal/workers"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.AppEnv)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Database
	db, err := database.Open(context.Background(), cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(db)
	logging.Setup(cfg.AppEnv, pgLogHandler)

	// Redis (optional): OTP store and OTP send limits
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable at startup", "error", err)
		}
		cancel()
	}

	var otpStore otpstore.Store = otpstore.NewGormStore(db)
	if cfg.OTPStore == "redis" {
		if rdb == nil {
			slog.Error("OTP_STORE=redis requires REDIS_URL")
			os.Exit(1)
		}
		otpStore = otpstore.NewRedisStore(rdb)
	}

	var notifier notify.Notifier = notify.Unconfigured{}
	if cfg.SMTPHost != "" {
		notifier = notify.NewSMTPNotifier(cfg)
	} else {
		slog.Warn("SMTP not configured, OTP emails will not be delivered", "debug_mode", cfg.OTPDebugMode)
	}

	var gateway payout.Gateway
	switch cfg.PayoutProvider {
	case "stripe":
		if cfg.StripeSecretKey == "" {
			slog.Error("PAYOUT_PROVIDER=stripe requires STRIPE_SECRET_KEY")
			os.Exit(1)
		}
		gateway = payout.NewStripe(cfg.StripeSecretKey, cfg.PayoutCountry)
	default:
		if cfg.IsProduction() {
			slog.Warn("sandbox payout gateway in production, withdrawals will not move money")
		}
		gateway = payout.NewSandbox()
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			slog.Error("amqp unavailable, pickup events disabled", "error", err)
		} else {
			publisher = p
		}
	}

	// Services
	validate := validator.New()
	settingsService := services.NewSettingsService(db, cfg)
	ledgerService := services.NewLedgerService(db, settingsService, gateway, cfg)
	pickupService := services.NewPickupService(db, ledgerService, settingsService, publisher, cfg.ExternalCallTimeout)
	whitelistService := services.NewWhitelistService(db)
	authService := services.NewAuthService(db, cfg, whitelistService)
	otpService := services.NewOTPService(otpStore, notifier,
		services.NewRateLimiter(rdb, "otp-send", cfg.OTPSendLimit, cfg.OTPSendWindow), cfg)
	userService := services.NewUserService(db, settingsService)

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var runner workers.Runner
	runner.Every(workerCtx, "assignment-retry", cfg.AssignmentRetryInterval, workers.AssignDeferred(pickupService))
	runner.Every(workerCtx, "otp-sweep", cfg.OTPSweepInterval, workers.SweepOTPs(otpService))
	runner.Every(workerCtx, "payout-poll", cfg.PayoutPollInterval, workers.PollPayouts(ledgerService, cfg.PayoutPollInterval))
	runner.Every(workerCtx, "retention", 24*time.Hour, logging.Retention(db, cfg.LogRetentionDays))

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	routes.Setup(app, cfg, db, routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, validate),
		Health:   handlers.NewHealthHandler(db, rdb),
		Pickup:   handlers.NewPickupHandler(pickupService, validate),
		Wallet:   handlers.NewWalletHandler(ledgerService, validate),
		OTP:      handlers.NewOTPHandler(otpService, validate),
		Admin:    handlers.NewAdminHandler(userService, whitelistService, ledgerService, validate),
		Settings: handlers.NewSettingsHandler(settingsService, validate),
		Webhook:  handlers.NewWebhookHandler(ledgerService, cfg.StripeWebhookSecret),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	stopWorkers()
	runner.Wait()

	if err := publisher.Close(); err != nil {
		slog.Error("event publisher close error", "error", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}

	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{
		Success: false,
		Message: message,
	})
}
