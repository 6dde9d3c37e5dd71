// Package config reads process settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
)

type AppConfig struct {
	HTTPAddr    string
	DatabaseURL string

	AccountServiceURL      string
	NotificationServiceURL string
	DirectoryURL           string

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr    string
	RedisPass    string
	RedisChannel string

	FanoutBuffer int
	FanoutPolicy string
	StepTimeout  time.Duration

	NotifyQueueSize int
	NotifyWorkers   int
	LogLevel        string

	OpeningBalanceParent decimal.Decimal
	OpeningBalanceChild  decimal.Decimal
}

// Load reads an optional .env file, then the environment. Unset variables
// take their defaults; a set variable that does not parse is an error.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		AccountServiceURL:      getEnv("ACCOUNT_SERVICE_URL", ""),
		NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", ""),
		DirectoryURL:           getEnv("DIRECTORY_URL", ""),

		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "household_funds"),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisPass:    getEnv("REDIS_PASS", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "household_funds_events"),

		FanoutPolicy: getEnv("FANOUT_POLICY", "drop-oldest"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.FanoutBuffer, err = getEnvInt("FANOUT_BUFFER", 64); err != nil {
		return AppConfig{}, err
	}
	if cfg.StepTimeout, err = getEnvDuration("STEP_TIMEOUT", 5*time.Second); err != nil {
		return AppConfig{}, err
	}
	if cfg.NotifyQueueSize, err = getEnvInt("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return AppConfig{}, err
	}
	if cfg.NotifyWorkers, err = getEnvInt("NOTIFY_WORKERS", 4); err != nil {
		return AppConfig{}, err
	}
	if cfg.OpeningBalanceParent, err = getEnvDecimal("OPENING_BALANCE_PARENT", decimal.NewFromInt(15_000_000)); err != nil {
		return AppConfig{}, err
	}
	if cfg.OpeningBalanceChild, err = getEnvDecimal("OPENING_BALANCE_CHILD", decimal.NewFromInt(3_000_000)); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: want a positive integer, got %q", key, v)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: want a positive duration, got %q", key, v)
	}
	return d, nil
}

func getEnvDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() || !models.FitsScale(d) {
		return decimal.Zero, fmt.Errorf("%s: want a non-negative amount with at most 2 decimals, got %q", key, v)
	}
	return d, nil
}
