package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := Default()
	c.Security = SecurityConfig{APIKey: "test-key", AgentToken: "agent-token"}
	c.Timezone = "UTC"
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"invalid port - zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"invalid port - too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"missing API key", func(c *Config) { c.Security.APIKey = "" }, true},
		{"missing agent token", func(c *Config) { c.Security.AgentToken = "" }, true},
		{"agent token equals API key", func(c *Config) { c.Security.AgentToken = "test-key" }, true},
		{"zero poll interval", func(c *Config) { c.Monitor.PollIntervalSeconds = 0 }, true},
		{"zero reconcile interval", func(c *Config) { c.Monitor.ReconcileIntervalMinutes = 0 }, true},
		{"tick gap shorter than poll", func(c *Config) { c.Monitor.PollIntervalSeconds = 10 }, true},
		{"missing self package", func(c *Config) { c.Monitor.SelfPackage = "" }, true},
		{"telegram token without chats", func(c *Config) { c.Telegram.BotToken = "bot" }, true},
		{"telegram with chats", func(c *Config) {
			c.Telegram = TelegramConfig{BotToken: "bot", ChatIDs: []int64{42}}
		}, false},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, true},
		{"empty timezone is local", func(c *Config) { c.Timezone = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMonitorConfig_Durations(t *testing.T) {
	m := Default().Monitor

	assert.Equal(t, time.Second, m.PollInterval())
	assert.Equal(t, 5*time.Second, m.MaxTickGap())
	assert.Equal(t, 10*time.Second, m.StaleAfter())
	assert.Equal(t, 15*time.Minute, m.ReconcileInterval())
	assert.Equal(t, 30*time.Minute, m.NotificationInterval())
	assert.Equal(t, 10*time.Second, m.SinkTimeout())
}

func TestConfig_Location(t *testing.T) {
	c := validConfig()
	c.Timezone = "Europe/Berlin"
	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	c.Timezone = ""
	loc, err = c.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	valid := `{
		"server": {
			"host": "0.0.0.0",
			"port": 9090
		},
		"database": {
			"path": "/path/to/db"
		},
		"security": {
			"api_key": "test-key",
			"agent_token": "agent-token"
		},
		"monitor": {
			"poll_interval_seconds": 2,
			"max_tick_gap_seconds": 10,
			"system_whitelist": ["com.android.camera"]
		},
		"telegram": {
			"bot_token": "test-token",
			"chat_ids": [100, 200]
		},
		"timezone": "UTC"
	}`

	err := os.WriteFile(configPath, []byte(valid), 0644)
	require.NoError(t, err)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "/path/to/db", config.Database.Path)
	assert.Equal(t, "agent-token", config.Security.AgentToken)
	assert.Equal(t, 2*time.Second, config.Monitor.PollInterval())
	assert.Equal(t, []string{"com.android.camera"}, config.Monitor.SystemWhitelist)
	assert.Equal(t, []int64{100, 200}, config.Telegram.ChatIDs)

	// Unset fields keep their defaults
	assert.Equal(t, 15, config.Monitor.ReconcileIntervalMinutes)
	assert.Equal(t, "com.focusguard", config.Monitor.SelfPackage)
	assert.Equal(t, "json", config.Logging.Format)

	_, err = Load("/nonexistent/config.json")
	assert.ErrorIs(t, err, ErrConfigFileNotFound)

	invalidPath := filepath.Join(tmpDir, "invalid.json")
	require.NoError(t, os.WriteFile(invalidPath, []byte("invalid json"), 0644))
	_, err = Load(invalidPath)
	assert.Error(t, err)

	incompletePath := filepath.Join(tmpDir, "incomplete.json")
	require.NoError(t, os.WriteFile(incompletePath, []byte(`{"timezone": "UTC"}`), 0644))
	_, err = Load(incompletePath)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FOCUSGUARD_HOST", "0.0.0.0")
	t.Setenv("FOCUSGUARD_PORT", "9090")
	t.Setenv("FOCUSGUARD_DB_PATH", "/custom/db/path")
	t.Setenv("FOCUSGUARD_API_KEY", "env-api-key")
	t.Setenv("FOCUSGUARD_AGENT_TOKEN", "env-agent-token")
	t.Setenv("FOCUSGUARD_POLL_INTERVAL_SECONDS", "2")
	t.Setenv("FOCUSGUARD_SYSTEM_WHITELIST", "com.android.camera, com.android.settings")
	t.Setenv("FOCUSGUARD_TELEGRAM_BOT_TOKEN", "env-bot-token")
	t.Setenv("FOCUSGUARD_TELEGRAM_CHAT_IDS", "100,200")
	t.Setenv("FOCUSGUARD_TIMEZONE", "UTC")

	config, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "/custom/db/path", config.Database.Path)
	assert.Equal(t, "env-api-key", config.Security.APIKey)
	assert.Equal(t, "env-agent-token", config.Security.AgentToken)
	assert.Equal(t, 2, config.Monitor.PollIntervalSeconds)
	assert.Equal(t, []string{"com.android.camera", "com.android.settings"}, config.Monitor.SystemWhitelist)
	assert.Equal(t, "env-bot-token", config.Telegram.BotToken)
	assert.Equal(t, []int64{100, 200}, config.Telegram.ChatIDs)
	assert.Equal(t, "UTC", config.Timezone)
}

func TestLoadFromEnv_InvalidChatID(t *testing.T) {
	t.Setenv("FOCUSGUARD_API_KEY", "env-api-key")
	t.Setenv("FOCUSGUARD_AGENT_TOKEN", "env-agent-token")
	t.Setenv("FOCUSGUARD_TELEGRAM_CHAT_IDS", "100,abc")

	_, err := LoadFromEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
