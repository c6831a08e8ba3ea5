package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// maxPostingDelayDays is the longest observed gap between a posting's
// first pending appearance and its booked copy. The dedup overlap must
// cover it, otherwise a late-booked posting can slip past deduplication.
const maxPostingDelayDays = 7

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	GoCardless GoCardlessConfig
	YNAB       YNABConfig
	SMTP       SMTPConfig
	Scheduler  SchedulerConfig
	Telemetry  TelemetryConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type GoCardlessConfig struct {
	SecretID             string
	Secret               string
	BankID               string
	CallbackURL          string
	DaysInPastToRetrieve int
	DedupOverlapDays     int
}

type YNABConfig struct {
	Token       string
	BudgetID    string
	AccountName string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Email    string
	Password string
	SendTo   string
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	RunOnStartup  bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	daysInPast, err := strconv.Atoi(getEnv("GOCARDLESS_DAYS_IN_PAST", "7"))
	if err != nil {
		return nil, fmt.Errorf("invalid GOCARDLESS_DAYS_IN_PAST: %w", err)
	}
	overlapDays, err := strconv.Atoi(getEnv("DEDUP_OVERLAP_DAYS", "7"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEDUP_OVERLAP_DAYS: %w", err)
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	schedulerEnabled := getBoolEnv("SCHEDULER_ENABLED", true)
	schedulerTimes := splitAndTrim(getEnv("SCHEDULER_TIMES", "06:00,12:00,18:00"))
	schedulerRunOnStartup := getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false)

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "banksync"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "banksync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		GoCardless: GoCardlessConfig{
			SecretID:             getEnv("GOCARDLESS_SECRET_ID", ""),
			Secret:               getEnv("GOCARDLESS_SECRET", ""),
			BankID:               getEnv("GOCARDLESS_BANK_ID", ""),
			CallbackURL:          getEnv("GOCARDLESS_CALLBACK_URL", ""),
			DaysInPastToRetrieve: daysInPast,
			DedupOverlapDays:     overlapDays,
		},
		YNAB: YNABConfig{
			Token:       getEnv("YNAB_TOKEN", ""),
			BudgetID:    getEnv("YNAB_BUDGET_ID", ""),
			AccountName: getEnv("YNAB_ACCOUNT_NAME", ""),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     smtpPort,
			Email:    getEnv("SMTP_EMAIL", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			SendTo:   getEnv("SMTP_SEND_TO", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:       schedulerEnabled,
			ScheduleTimes: schedulerTimes,
			RunOnStartup:  schedulerRunOnStartup,
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "banksync"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		},
	}

	// Validate required fields
	if cfg.GoCardless.SecretID == "" || cfg.GoCardless.Secret == "" {
		return nil, fmt.Errorf("GOCARDLESS_SECRET_ID and GOCARDLESS_SECRET are required")
	}
	if cfg.GoCardless.BankID == "" {
		return nil, fmt.Errorf("GOCARDLESS_BANK_ID is required")
	}
	if cfg.GoCardless.CallbackURL == "" {
		return nil, fmt.Errorf("GOCARDLESS_CALLBACK_URL is required")
	}
	if cfg.YNAB.Token == "" {
		return nil, fmt.Errorf("YNAB_TOKEN is required")
	}
	if cfg.YNAB.BudgetID == "" {
		return nil, fmt.Errorf("YNAB_BUDGET_ID is required")
	}
	if cfg.YNAB.AccountName == "" {
		return nil, fmt.Errorf("YNAB_ACCOUNT_NAME is required")
	}
	if cfg.SMTP.Host == "" || cfg.SMTP.Email == "" || cfg.SMTP.SendTo == "" {
		return nil, fmt.Errorf("SMTP_HOST, SMTP_EMAIL and SMTP_SEND_TO are required")
	}

	if cfg.GoCardless.DaysInPastToRetrieve < 1 {
		return nil, fmt.Errorf("GOCARDLESS_DAYS_IN_PAST must be at least 1")
	}
	if cfg.GoCardless.DedupOverlapDays < maxPostingDelayDays {
		return nil, fmt.Errorf("DEDUP_OVERLAP_DAYS must be at least %d to cover late-arriving postings", maxPostingDelayDays)
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
