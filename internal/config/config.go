package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/scrapsail/scrapsail-backend/internal/lifecycle"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBMaxConns int

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Server
	Port        string
	CORSOrigins string

	SentryDSN string

	// Redis (OTP store and send rate limiting); empty disables both
	RedisURL string

	// OTP
	OTPStore      string // db, redis
	OTPTTL        time.Duration
	OTPDebugMode  bool
	OTPSendLimit  int
	OTPSendWindow time.Duration
	// OTPRequired makes pickup creation and withdrawals demand a verified code
	OTPRequired   bool

	// SMTP notifier
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	// Payouts
	PayoutProvider      string // stripe, sandbox
	StripeSecretKey     string
	StripeWebhookSecret string
	PayoutCurrency      string
	PayoutCountry       string

	// Pickup events
	AMQPURL      string
	AMQPExchange string

	// Economics (defaults, overridable through the settings table)
	CreditRates    lifecycle.RateTable
	RedemptionRate decimal.Decimal
	MinWithdrawal  decimal.Decimal

	ExternalCallTimeout     time.Duration
	AssignmentRetryInterval time.Duration
	OTPSweepInterval        time.Duration
	PayoutPollInterval      time.Duration
	LogRetentionDays        int
}

// Load reads configuration from the environment, after applying a .env file
// when one is present in the working directory.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	return &Config{
		AppEnv: getEnv("APP_ENV", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "scrapsail"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBMaxConns: parseInt(getEnv("DB_MAX_CONNS", "50"), 50),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		OTPStore:      getEnv("OTP_STORE", "db"),
		OTPTTL:        parseDuration(getEnv("OTP_TTL", "10m"), 10*time.Minute),
		OTPDebugMode:  parseBool(getEnv("OTP_DEBUG_MODE", "false")),
		OTPSendLimit:  parseInt(getEnv("OTP_SEND_LIMIT", "5"), 5),
		OTPSendWindow: parseDuration(getEnv("OTP_SEND_WINDOW", "15m"), 15*time.Minute),
		OTPRequired:   parseBool(getEnv("OTP_REQUIRED", "false")),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     parseInt(getEnv("SMTP_PORT", "587"), 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "ScrapSail <no-reply@scrapsail.app>"),

		PayoutProvider:      getEnv("PAYOUT_PROVIDER", "sandbox"),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		PayoutCurrency:      getEnv("PAYOUT_CURRENCY", "inr"),
		PayoutCountry:       getEnv("PAYOUT_COUNTRY", "IN"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "scrapsail.pickups"),

		CreditRates:    parseRates(getEnv("CREDIT_RATES", "")),
		RedemptionRate: parseDecimal(getEnv("REDEMPTION_RATE", "1"), decimal.NewFromInt(1)),
		MinWithdrawal:  parseDecimal(getEnv("MIN_WITHDRAWAL", "100"), decimal.NewFromInt(100)),

		ExternalCallTimeout:     parseDuration(getEnv("EXTERNAL_CALL_TIMEOUT", "10s"), 10*time.Second),
		AssignmentRetryInterval: parseDuration(getEnv("ASSIGNMENT_RETRY_INTERVAL", "1m"), time.Minute),
		OTPSweepInterval:        parseDuration(getEnv("OTP_SWEEP_INTERVAL", "5m"), 5*time.Minute),
		PayoutPollInterval:      parseDuration(getEnv("PAYOUT_POLL_INTERVAL", "10m"), 10*time.Minute),
		LogRetentionDays:        parseInt(getEnv("LOG_RETENTION_DAYS", "30"), 30),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func parseDecimal(s string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		slog.Warn("invalid decimal config value, using default", "value", s, "default", fallback.String())
		return fallback
	}
	return d
}

// parseRates layers CREDIT_RATES over the default table.
func parseRates(s string) lifecycle.RateTable {
	defaults := lifecycle.DefaultRates()
	if s == "" {
		return defaults
	}
	override, err := lifecycle.ParseRates(s)
	if err != nil {
		slog.Warn("invalid CREDIT_RATES, using defaults", "error", err)
		return defaults
	}
	return defaults.Merge(override)
}
