package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

// Notifier providers.
const (
	NotifierLog      = "log"
	NotifierTelegram = "telegram"
	NotifierSNS      = "sns"
	NotifierKafka    = "kafka"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	LogLevel    string
	Environment string
	HTTPAddr    string

	StoreBackend   string
	DatabaseURL    string // postgres
	SQLitePath     string // sqlite
	DynamoTable    string // dynamodb
	AWSRegion      string // dynamodb, sns
	DynamoEndpoint string // optional, e.g. DynamoDB Local

	NotifierProvider string
	NotifierTimeout  time.Duration
	KafkaBrokers     []string
	KafkaTopic       string

	TelegramToken   string // Enables the bot when set
	AdminTelegramID int64

	PollInterval           time.Duration
	CycleTimeout           time.Duration
	DispatchRatePerSecond  float64 // 0 disables pacing
	StaleClaimAfter        time.Duration
	DefaultAppointmentType string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":5000")

	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", StoreMemory))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.SQLitePath = getEnv("SQLITE_PATH", "reminders.db")
	cfg.DynamoTable = getEnv("DYNAMO_TABLE", "appointments")
	cfg.AWSRegion = getEnv("AWS_REGION", "us-east-1")
	cfg.DynamoEndpoint = os.Getenv("DYNAMO_ENDPOINT")

	switch cfg.StoreBackend {
	case StoreMemory, StoreSQLite, StoreDynamoDB:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set (required by STORE_BACKEND=postgres)")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	cfg.NotifierProvider = strings.ToLower(getEnv("NOTIFIER_PROVIDER", NotifierLog))
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", "appointment-reminders")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	switch cfg.NotifierProvider {
	case NotifierLog, NotifierSNS:
	case NotifierTelegram:
		if cfg.TelegramToken == "" {
			return nil, fmt.Errorf("TELEGRAM_TOKEN is not set (required by NOTIFIER_PROVIDER=telegram)")
		}
	case NotifierKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BROKERS is not set (required by NOTIFIER_PROVIDER=kafka)")
		}
	default:
		return nil, fmt.Errorf("unknown NOTIFIER_PROVIDER %q", cfg.NotifierProvider)
	}

	if cfg.NotifierTimeout, err = getDuration("NOTIFIER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("SCHEDULER_POLL_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.CycleTimeout, err = getDuration("SCHEDULER_CYCLE_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if cfg.StaleClaimAfter, err = getDuration("STALE_CLAIM_AFTER", 10*time.Minute); err != nil {
		return nil, err
	}

	cfg.DispatchRatePerSecond = 5
	if rateStr := os.Getenv("DISPATCH_RATE_PER_SECOND"); rateStr != "" {
		cfg.DispatchRatePerSecond, err = strconv.ParseFloat(rateStr, 64)
		if err != nil || cfg.DispatchRatePerSecond < 0 {
			return nil, fmt.Errorf("invalid DISPATCH_RATE_PER_SECOND %q", rateStr)
		}
	}

	cfg.DefaultAppointmentType = getEnv("DEFAULT_APPOINTMENT_TYPE", "general")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration like 15s", key, v)
	}
	return d, nil
}
