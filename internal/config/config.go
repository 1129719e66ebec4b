// Package config loads process settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Defaults for optional settings.
const (
	DefaultDatabaseURL          = "sqlite://meetmate.db"
	DefaultTimeZone             = "America/Bogota"
	DefaultCalendarID           = "primary"
	DefaultOpenAIModel          = "gpt-4o-mini"
	DefaultHistoryLimit         = 15
	DefaultReminderInterval     = 5 * time.Minute
	DefaultSignalPollInterval   = 5 * time.Second
	DefaultInboundRatePerMinute = 20
	DefaultMetricsAddr          = ":9090"
	DefaultHealthAddr           = ":8080"
)

// Config is the process configuration.
type Config struct {
	DatabaseURL string
	TimeZone    string
	CalendarID  string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	HistoryLimit     int
	ReminderInterval time.Duration

	SignalAccount        string
	SignalPollInterval   time.Duration
	InboundRatePerMinute int

	// AllowedSenders limits who may talk to the assistant. Empty allows
	// everyone.
	AllowedSenders []string

	// TokenEncryptionKey is the base64 AES-256 key for tokens at rest.
	TokenEncryptionKey string

	// ValkeyURL enables the distributed per-user lock when set.
	ValkeyURL string

	MetricsAddr string
	HealthAddr  string
}

// Load reads files (default ".env") into the environment without
// overriding variables that are already set, then builds a Config.
// Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", DefaultDatabaseURL),
		TimeZone:           getEnvOrDefault("TIMEZONE", DefaultTimeZone),
		CalendarID:         getEnvOrDefault("CALENDAR_ID", DefaultCalendarID),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnvOrDefault("OPENAI_MODEL", DefaultOpenAIModel),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		SignalAccount:      os.Getenv("SIGNAL_ACCOUNT"),
		AllowedSenders:     ParseCommaSeparatedList(os.Getenv("ALLOWED_SENDERS")),
		TokenEncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),
		ValkeyURL:          os.Getenv("VALKEY_URL"),
		MetricsAddr:        getEnvOrDefault("METRICS_ADDR", DefaultMetricsAddr),
		HealthAddr:         getEnvOrDefault("HEALTH_ADDR", DefaultHealthAddr),
	}

	var err error
	if cfg.HistoryLimit, err = getEnvInt("HISTORY_LIMIT", DefaultHistoryLimit); err != nil {
		errs = append(errs, err)
	}
	if cfg.InboundRatePerMinute, err = getEnvInt("INBOUND_RATE_PER_MINUTE", DefaultInboundRatePerMinute); err != nil {
		errs = append(errs, err)
	}
	if cfg.ReminderInterval, err = getEnvDuration("REMINDER_INTERVAL", DefaultReminderInterval); err != nil {
		errs = append(errs, err)
	}
	if cfg.SignalPollInterval, err = getEnvDuration("SIGNAL_POLL_INTERVAL", DefaultSignalPollInterval); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that every command depends on. Settings needed
// only by some commands are checked with the Require* methods.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.TimeZone, err)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("HISTORY_LIMIT must be at least 1, got %d", c.HistoryLimit)
	}
	if c.ReminderInterval < time.Second {
		return fmt.Errorf("REMINDER_INTERVAL must be at least 1s, got %s", c.ReminderInterval)
	}
	if c.SignalPollInterval < time.Second {
		return fmt.Errorf("SIGNAL_POLL_INTERVAL must be at least 1s, got %s", c.SignalPollInterval)
	}
	if c.InboundRatePerMinute < 0 {
		return fmt.Errorf("INBOUND_RATE_PER_MINUTE must not be negative, got %d", c.InboundRatePerMinute)
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RequireGoogle checks the OAuth client settings.
func (c *Config) RequireGoogle() error {
	return require(map[string]string{
		"GOOGLE_CLIENT_ID":     c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET": c.GoogleClientSecret,
		"GOOGLE_REDIRECT_URL":  c.GoogleRedirectURL,
	})
}

// RequireAgent checks the language model settings.
func (c *Config) RequireAgent() error {
	return require(map[string]string{"OPENAI_API_KEY": c.OpenAIAPIKey})
}

// RequireSignal checks the messaging channel settings.
func (c *Config) RequireSignal() error {
	if err := require(map[string]string{"SIGNAL_ACCOUNT": c.SignalAccount}); err != nil {
		return err
	}
	if !strings.HasPrefix(c.SignalAccount, "+") {
		return fmt.Errorf("SIGNAL_ACCOUNT must be a phone number starting with +")
	}
	return nil
}

func require(values map[string]string) error {
	var missing []string
	for key, v := range values {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
}

// ParseCommaSeparatedList splits s on commas, trimming whitespace and
// dropping empty entries. It returns nil when nothing remains.
func ParseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", key, value)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
