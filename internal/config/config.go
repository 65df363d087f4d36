package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode      string // Set via flag, not env
	MockServices bool
	LogEmails    string

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret        string
	JwtTTL           time.Duration
	PriorityTokenTTL time.Duration
	CookieSecure     bool

	// Server
	ApiPort        string
	ServiceApiPort string
	CorsOrigin     string

	// Email
	EmailTransport  string // smtp, ses or log
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// AWS (SES transport and report archive)
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ReportURLTTL       time.Duration

	// WhatsApp Cloud API
	WhatsAppAPIURL      string
	WhatsAppToken       string
	WhatsAppPhoneID     string
	WhatsAppTemplate    string
	WhatsAppLanguage    string
	WhatsAppCountryCode string
	WhatsAppTimeout     time.Duration

	// Audit
	AuditStore  string // mongo or postgres
	PostgresURL string

	// Dispatch
	DispatchMode           string // sync, async or queue
	DispatchBatchSize      int
	DispatchMaxBatches     int
	DispatchConcurrency    int
	EmailAttempts          int
	EmailRetryBaseDelay    time.Duration
	WhatsAppAttempts       int
	WhatsAppRetryBaseDelay time.Duration
	DefaultSubject         string

	// Priority codes
	PriorityCodeTTL         time.Duration
	PriorityCodeMaxAttempts int

	// App Defaults
	AppName string

	// Logging
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Rate Limiting Defaults
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getSeconds := func(key, defaultValue string) (time.Duration, error) {
		seconds, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	getMillis := func(key, defaultValue string) (time.Duration, error) {
		ms, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "segirec")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.MockServices = getEnv("MOCK_SERVICES", "") == "true"
	cfg.LogEmails = getEnv("LOG_EMAILS", "")
	cfg.CookieSecure = getEnv("COOKIE_SECURE", "true") == "true"
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.CorsOrigin = getEnv("CORS_ORIGIN", "http://localhost:5173")
	cfg.EmailTransport = getEnv("EMAIL_TRANSPORT", "smtp")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "notificaciones@bagaces.go.cr")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "us-east-1")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.WhatsAppAPIURL = getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v22.0")
	cfg.WhatsAppToken = getEnv("WHATSAPP_TOKEN", "")
	cfg.WhatsAppPhoneID = getEnv("WHATSAPP_PHONE_ID", "")
	cfg.WhatsAppTemplate = getEnv("WHATSAPP_TEMPLATE", "")
	cfg.WhatsAppLanguage = getEnv("WHATSAPP_LANGUAGE", "en_US")
	cfg.WhatsAppCountryCode = getEnv("WHATSAPP_COUNTRY_CODE", "506")
	cfg.AuditStore = getEnv("AUDIT_STORE", "mongo")
	cfg.PostgresURL = getEnv("POSTGRES_URL", "")
	cfg.DispatchMode = getEnv("DISPATCH_MODE", "async")
	cfg.DefaultSubject = getEnv("DEFAULT_SUBJECT", "Notificación Sistema")
	cfg.AppName = getEnv("APP_NAME", "SEGIREC")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "text")
	cfg.LogFile = getEnv("LOG_FILE", "")

	if cfg.AuditStore == "postgres" && cfg.PostgresURL == "" {
		return nil, fmt.Errorf("missing required environment variable: POSTGRES_URL (AUDIT_STORE=postgres)")
	}

	// Numeric and duration values
	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.JwtTTL, err = getSeconds("JWT_TTL_SECONDS", "3600"); err != nil {
		return nil, err
	}
	if cfg.PriorityTokenTTL, err = getSeconds("PRIORITY_TOKEN_TTL_SECONDS", "60"); err != nil {
		return nil, err
	}
	if cfg.SmtpPort, err = getInt("SMTP_PORT", "587"); err != nil {
		return nil, err
	}
	if cfg.ReportURLTTL, err = getSeconds("REPORT_URL_TTL_SECONDS", "604800"); err != nil {
		return nil, err
	}
	if cfg.WhatsAppTimeout, err = getSeconds("WHATSAPP_TIMEOUT_SECONDS", "15"); err != nil {
		return nil, err
	}

	// Dispatch policy
	if cfg.DispatchBatchSize, err = getInt("DISPATCH_BATCH_SIZE", "50"); err != nil {
		return nil, err
	}
	if cfg.DispatchMaxBatches, err = getInt("DISPATCH_MAX_BATCHES", "4"); err != nil {
		return nil, err
	}
	if cfg.DispatchConcurrency, err = getInt("DISPATCH_CONCURRENCY", "5"); err != nil {
		return nil, err
	}
	if cfg.EmailAttempts, err = getInt("EMAIL_ATTEMPTS", "3"); err != nil {
		return nil, err
	}
	if cfg.EmailRetryBaseDelay, err = getMillis("EMAIL_RETRY_BASE_MS", "2000"); err != nil {
		return nil, err
	}
	if cfg.WhatsAppAttempts, err = getInt("WHATSAPP_ATTEMPTS", "2"); err != nil {
		return nil, err
	}
	if cfg.WhatsAppRetryBaseDelay, err = getMillis("WHATSAPP_RETRY_BASE_MS", "3000"); err != nil {
		return nil, err
	}
	if cfg.DispatchBatchSize <= 0 || cfg.DispatchConcurrency <= 0 {
		return nil, fmt.Errorf("invalid dispatch settings: batch size and concurrency must be positive")
	}

	switch cfg.DispatchMode {
	case "sync", "async", "queue":
	default:
		return nil, fmt.Errorf("invalid DISPATCH_MODE: %q", cfg.DispatchMode)
	}

	// Priority codes
	if cfg.PriorityCodeTTL, err = getSeconds("PRIORITY_CODE_TTL_SECONDS", "300"); err != nil {
		return nil, err
	}
	if cfg.PriorityCodeMaxAttempts, err = getInt("PRIORITY_CODE_MAX_ATTEMPTS", "3"); err != nil {
		return nil, err
	}

	// Logging rotation
	if cfg.LogMaxSizeMB, err = getInt("LOG_MAX_SIZE_MB", "50"); err != nil {
		return nil, err
	}
	if cfg.LogMaxBackups, err = getInt("LOG_MAX_BACKUPS", "5"); err != nil {
		return nil, err
	}
	if cfg.LogMaxAgeDays, err = getInt("LOG_MAX_AGE_DAYS", "30"); err != nil {
		return nil, err
	}

	// Rate Limiting
	if cfg.RateLimitBucketSize, err = getInt("RATE_LIMIT_BUCKET_SIZE", "8"); err != nil {
		return nil, err
	}
	if cfg.RateLimitRefillRate, err = getInt("RATE_LIMIT_REFILL_RATE", "4"); err != nil {
		return nil, err
	}

	return cfg, nil
}
