package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port      string
	LogLevel  string
	LogFormat string

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Extractor
	ExtractorProvider string
	ExtractorTimeout  time.Duration
	DeepSeekAPIKey    string
	DeepSeekAPIURL    string
	DeepSeekModel     string
	GeminiAPIKey      string
	GeminiModel       string

	// WhatsApp webhook
	TwilioAuthToken  string
	PublicWebhookURL string
	WebhookRateLimit int

	// Dashboard
	LeaderboardSize int

	// Google Sheets export (worker)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Recurring worker
	RecurringInterval time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:      getEnv("PORT", "3000"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/el-matador.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "matador"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_events"),

		ExtractorProvider: getEnv("EXTRACTOR_PROVIDER", "deepseek"),
		ExtractorTimeout:  getEnvDuration("EXTRACTOR_TIMEOUT", 15*time.Second),
		DeepSeekAPIKey:    getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekAPIURL:    getEnv("DEEPSEEK_API_URL", ""),
		DeepSeekModel:     getEnv("DEEPSEEK_MODEL", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", ""),

		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		PublicWebhookURL: getEnv("PUBLIC_WEBHOOK_URL", ""),
		WebhookRateLimit: getEnvInt("WEBHOOK_RATE_LIMIT", 60),

		LeaderboardSize: getEnvInt("LEADERBOARD_SIZE", 10),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transacciones"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),

		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),
	}

	return cfg
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if _, err := c.SlogLevel(); err != nil {
		errors = append(errors, err.Error())
	}
	if f := strings.ToLower(c.LogFormat); f != "" && f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	validBackends := []string{"memory", "sqlite"}
	if !contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	validProviders := []string{"deepseek", "gemini"}
	if !contains(validProviders, c.ExtractorProvider) {
		errors = append(errors, fmt.Sprintf("invalid extractor provider '%s': must be one of %v", c.ExtractorProvider, validProviders))
	}
	if c.ExtractorTimeout < time.Second || c.ExtractorTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid extractor timeout %v: must be between 1s and 2m", c.ExtractorTimeout))
	}

	if c.TwilioAuthToken != "" && c.PublicWebhookURL == "" {
		errors = append(errors, "PUBLIC_WEBHOOK_URL is required when TWILIO_AUTH_TOKEN is set")
	}
	if c.PublicWebhookURL != "" {
		if u, err := url.Parse(c.PublicWebhookURL); err != nil || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid public webhook URL '%s'", c.PublicWebhookURL))
		}
	}
	if c.WebhookRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid webhook rate limit %d: must be at least 1", c.WebhookRateLimit))
	}

	if c.LeaderboardSize < 1 || c.LeaderboardSize > 100 {
		errors = append(errors, fmt.Sprintf("invalid leaderboard size %d: must be between 1 and 100", c.LeaderboardSize))
	}

	if c.RecurringInterval < time.Minute || c.RecurringInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be between 1m and 24h", c.RecurringInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateExtractor reports a missing API key for the selected provider.
// Only the bot process needs one.
func (c *Config) ValidateExtractor() error {
	switch c.ExtractorProvider {
	case "deepseek":
		if c.DeepSeekAPIKey == "" {
			return fmt.Errorf("DEEPSEEK_API_KEY is required when EXTRACTOR_PROVIDER=deepseek")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when EXTRACTOR_PROVIDER=gemini")
		}
	}
	return nil
}

// ValidateSheets reports missing export settings. Only the sync worker
// needs them.
func (c *Config) ValidateSheets() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required by the sync worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required by the sync worker")
	}
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided")
	} else if c.GoogleServiceAccountJSON == "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if len(errors) > 0 {
		return fmt.Errorf("sheets configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
