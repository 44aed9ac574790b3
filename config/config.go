package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Security SecurityConfig `json:"security"`
	Monitor  MonitorConfig  `json:"monitor"`
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Timezone string         `json:"timezone"` // IANA name or "Local"
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	APIKey     string `json:"api_key"`     // X-Focusguard-Key for /v1
	AgentToken string `json:"agent_token"` // Bearer token for /v1/agent
}

// MonitorConfig contains the monitoring and reconcile timings
type MonitorConfig struct {
	PollIntervalSeconds         int      `json:"poll_interval_seconds"`
	MaxTickGapSeconds           int      `json:"max_tick_gap_seconds"`
	StaleAfterSeconds           int      `json:"stale_after_seconds"`
	ReconcileIntervalMinutes    int      `json:"reconcile_interval_minutes"`
	NotificationIntervalMinutes int      `json:"notification_interval_minutes"`
	SinkTimeoutSeconds          int      `json:"sink_timeout_seconds"`
	SelfPackage                 string   `json:"self_package"`
	SystemWhitelist             []string `json:"system_whitelist"`
}

// TelegramConfig contains Telegram sink settings. The sink is disabled
// when BotToken is empty.
type TelegramConfig struct {
	BotToken string  `json:"bot_token"`
	ChatIDs  []int64 `json:"chat_ids"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Format string `json:"format"` // "json" or "text"
	Level  string `json:"level"`
}

// Default returns a config with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "./focusguard.db",
		},
		Monitor: MonitorConfig{
			PollIntervalSeconds:         1,
			MaxTickGapSeconds:           5,
			StaleAfterSeconds:           10,
			ReconcileIntervalMinutes:    15,
			NotificationIntervalMinutes: 30,
			SinkTimeoutSeconds:          10,
			SelfPackage:                 "com.focusguard",
		},
		Logging: LoggingConfig{
			Format: "json",
			Level:  "info",
		},
		Timezone: "Local",
	}
}

// PollInterval returns the monitor tick interval
func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSeconds) * time.Second
}

// MaxTickGap returns the largest delta credited for one tick
func (m MonitorConfig) MaxTickGap() time.Duration {
	return time.Duration(m.MaxTickGapSeconds) * time.Second
}

// StaleAfter returns how long an agent foreground report stays valid
func (m MonitorConfig) StaleAfter() time.Duration {
	return time.Duration(m.StaleAfterSeconds) * time.Second
}

// ReconcileInterval returns the scheduler interval
func (m MonitorConfig) ReconcileInterval() time.Duration {
	return time.Duration(m.ReconcileIntervalMinutes) * time.Minute
}

// NotificationInterval returns the default nudge interval
func (m MonitorConfig) NotificationInterval() time.Duration {
	return time.Duration(m.NotificationIntervalMinutes) * time.Minute
}

// SinkTimeout returns the per-delivery timeout of notification sinks
func (m MonitorConfig) SinkTimeout() time.Duration {
	return time.Duration(m.SinkTimeoutSeconds) * time.Second
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	tz := c.Timezone
	if tz == "" {
		tz = "Local"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", tz, err)
	}
	return loc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if c.Security.APIKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	if c.Security.AgentToken == "" {
		return fmt.Errorf("%w: agent token is required", ErrInvalidConfig)
	}

	if c.Security.AgentToken == c.Security.APIKey {
		return fmt.Errorf("%w: agent token must differ from the API key", ErrInvalidConfig)
	}

	m := c.Monitor
	if m.PollIntervalSeconds <= 0 || m.MaxTickGapSeconds <= 0 || m.StaleAfterSeconds <= 0 ||
		m.ReconcileIntervalMinutes <= 0 || m.NotificationIntervalMinutes <= 0 || m.SinkTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: monitor intervals must be positive", ErrInvalidConfig)
	}

	if m.MaxTickGapSeconds < m.PollIntervalSeconds {
		return fmt.Errorf("%w: max tick gap must not be shorter than the poll interval", ErrInvalidConfig)
	}

	if m.SelfPackage == "" {
		return fmt.Errorf("%w: monitor self package is required", ErrInvalidConfig)
	}

	if c.Telegram.BotToken != "" && len(c.Telegram.ChatIDs) == 0 {
		return fmt.Errorf("%w: telegram.chat_ids cannot be empty when a bot token is set", ErrInvalidConfig)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("%w: logging format must be json or text", ErrInvalidConfig)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}

// Load loads configuration from a JSON file. Missing fields keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromEnv loads configuration from FOCUSGUARD_* environment variables.
// A .env file in the working directory is loaded first when present.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	d := Default()
	config := &Config{
		Server: ServerConfig{
			Host: getEnv("FOCUSGUARD_HOST", d.Server.Host),
			Port: getEnvInt("FOCUSGUARD_PORT", d.Server.Port),
		},
		Database: DatabaseConfig{
			Path: getEnv("FOCUSGUARD_DB_PATH", d.Database.Path),
		},
		Security: SecurityConfig{
			APIKey:     getEnv("FOCUSGUARD_API_KEY", ""),
			AgentToken: getEnv("FOCUSGUARD_AGENT_TOKEN", ""),
		},
		Monitor: MonitorConfig{
			PollIntervalSeconds:         getEnvInt("FOCUSGUARD_POLL_INTERVAL_SECONDS", d.Monitor.PollIntervalSeconds),
			MaxTickGapSeconds:           getEnvInt("FOCUSGUARD_MAX_TICK_GAP_SECONDS", d.Monitor.MaxTickGapSeconds),
			StaleAfterSeconds:           getEnvInt("FOCUSGUARD_STALE_AFTER_SECONDS", d.Monitor.StaleAfterSeconds),
			ReconcileIntervalMinutes:    getEnvInt("FOCUSGUARD_RECONCILE_INTERVAL_MINUTES", d.Monitor.ReconcileIntervalMinutes),
			NotificationIntervalMinutes: getEnvInt("FOCUSGUARD_NOTIFICATION_INTERVAL_MINUTES", d.Monitor.NotificationIntervalMinutes),
			SinkTimeoutSeconds:          getEnvInt("FOCUSGUARD_SINK_TIMEOUT_SECONDS", d.Monitor.SinkTimeoutSeconds),
			SelfPackage:                 getEnv("FOCUSGUARD_SELF_PACKAGE", d.Monitor.SelfPackage),
			SystemWhitelist:             getEnvList("FOCUSGUARD_SYSTEM_WHITELIST"),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("FOCUSGUARD_TELEGRAM_BOT_TOKEN", ""),
		},
		Logging: LoggingConfig{
			Format: getEnv("FOCUSGUARD_LOG_FORMAT", d.Logging.Format),
			Level:  getEnv("FOCUSGUARD_LOG_LEVEL", d.Logging.Level),
		},
		Timezone: getEnv("FOCUSGUARD_TIMEZONE", d.Timezone),
	}

	chatIDs, err := getEnvInt64List("FOCUSGUARD_TELEGRAM_CHAT_IDS")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	config.Telegram.ChatIDs = chatIDs

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt64List(key string) ([]int64, error) {
	var out []int64
	for _, item := range getEnvList(key) {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid id %q", key, item)
		}
		out = append(out, id)
	}
	return out, nil
}
