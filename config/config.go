package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod" yaml:"is_prod"`

	// Bot backend REST API
	API APIConfig `json:"api" yaml:"api"`

	// Push event feed
	Socket SocketConfig `json:"socket" yaml:"socket"`

	// Realtime-store snapshot feed
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`

	// Periodic full-state polling
	Poll PollConfig `json:"poll" yaml:"poll"`

	// Browser-facing state server
	StateServer StateServerConfig `json:"state_server" yaml:"state_server"`

	// Operator alert forwarding
	Discord  DiscordConfig  `json:"discord" yaml:"discord"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`

	// Persisted client-local preferences
	Prefs PrefsConfig `json:"prefs" yaml:"prefs"`
}

// APIConfig holds the bot backend REST endpoint configuration.
type APIConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// SocketConfig holds the push event feed configuration.
type SocketConfig struct {
	URL          string        `json:"url" yaml:"url"`
	RetryDelay   time.Duration `json:"retry_delay" yaml:"retry_delay"`
	RetryPolicy  string        `json:"retry_policy" yaml:"retry_policy"` // "fixed" or "backoff"
	PingInterval time.Duration `json:"ping_interval" yaml:"ping_interval"`
}

// SnapshotConfig holds the realtime-store subscription configuration.
type SnapshotConfig struct {
	URL     string   `json:"url" yaml:"url"`
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Paths   []string `json:"paths" yaml:"paths"`
}

// PollConfig holds the periodic refresh configuration.
type PollConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// StateServerConfig holds the browser-facing server configuration.
type StateServerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// DiscordConfig holds Discord alert forwarding configuration.
type DiscordConfig struct {
	BotToken  string `json:"-" yaml:"-"` // Excluded - env var only
	ChannelID string `json:"channel_id" yaml:"channel_id"`
}

// TelegramConfig holds Telegram alert forwarding configuration.
type TelegramConfig struct {
	BotToken string `json:"-" yaml:"-"` // Excluded - env var only
	ChatID   string `json:"chat_id" yaml:"chat_id"`
}

// PrefsConfig holds the local preference store configuration.
type PrefsConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// Clone creates a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Snapshot.Paths != nil {
		clone.Snapshot.Paths = make([]string, len(c.Snapshot.Paths))
		copy(clone.Snapshot.Paths, c.Snapshot.Paths)
	}
	return &clone
}

// ToJSON serializes the config to JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ConfigFromJSON deserializes JSON into a config, merging with base.
func ConfigFromJSON(data []byte, base *Config) (*Config, error) {
	if base == nil {
		base = Defaults()
	}
	cfg := base.Clone()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd: false,
		API: APIConfig{
			BaseURL: "http://localhost:8000/api",
			Timeout: 30 * time.Second,
		},
		Socket: SocketConfig{
			URL:          "ws://localhost:8000/ws",
			RetryDelay:   3 * time.Second,
			RetryPolicy:  "fixed",
			PingInterval: 15 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Enabled: false,
			Paths:   []string{"status", "account", "stats", "trades", "settings"},
		},
		Poll: PollConfig{
			Interval: 30 * time.Second,
		},
		StateServer: StateServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Prefs: PrefsConfig{
			DBPath: "botdash.db",
		},
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		API: APIConfig{
			BaseURL: envString("BOT_API_URL", "http://localhost:8000/api"),
			Timeout: envDuration("BOT_API_TIMEOUT", 30*time.Second),
		},

		Socket: SocketConfig{
			URL:          envString("BOT_SOCKET_URL", "ws://localhost:8000/ws"),
			RetryDelay:   envDuration("SOCKET_RETRY_DELAY", 3*time.Second),
			RetryPolicy:  envString("SOCKET_RETRY_POLICY", "fixed"),
			PingInterval: envDuration("SOCKET_PING_INTERVAL", 15*time.Second),
		},

		Snapshot: SnapshotConfig{
			URL:     envString("SNAPSHOT_URL", ""),
			Enabled: envBoolDefault("SNAPSHOT_ENABLED", false),
			Paths:   envStringSliceDefault("SNAPSHOT_PATHS", []string{"status", "account", "stats", "trades", "settings"}),
		},

		Poll: PollConfig{
			Interval: envDuration("POLL_INTERVAL", 30*time.Second),
		},

		StateServer: StateServerConfig{
			Enabled: envBoolDefault("STATE_SERVER_ENABLED", true),
			Port:    envInt("STATE_SERVER_PORT", 8080),
		},

		Discord: DiscordConfig{
			BotToken:  envString("DISCORD_BOT_TOKEN", ""),
			ChannelID: envString("DISCORD_CHANNEL_ID", ""),
		},

		Telegram: TelegramConfig{
			BotToken: envString("TELEGRAM_BOT_KEY", ""),
			ChatID:   envString("TELEGRAM_CHAT_ID", ""),
		},

		Prefs: PrefsConfig{
			DBPath: envString("PREFS_DB_PATH", "botdash.db"),
		},
	}
}

// fileConfig is the YAML shape of an on-disk config overlay. Durations are
// strings ("15s") and every field is a pointer so unset keys leave the base
// value alone. Secrets (bot tokens) are never read from the file.
type fileConfig struct {
	API *struct {
		BaseURL *string `yaml:"base_url"`
		Timeout *string `yaml:"timeout"`
	} `yaml:"api"`
	Socket *struct {
		URL          *string `yaml:"url"`
		RetryDelay   *string `yaml:"retry_delay"`
		RetryPolicy  *string `yaml:"retry_policy"`
		PingInterval *string `yaml:"ping_interval"`
	} `yaml:"socket"`
	Snapshot *struct {
		URL     *string  `yaml:"url"`
		Enabled *bool    `yaml:"enabled"`
		Paths   []string `yaml:"paths"`
	} `yaml:"snapshot"`
	Poll *struct {
		Interval *string `yaml:"interval"`
	} `yaml:"poll"`
	StateServer *struct {
		Enabled *bool `yaml:"enabled"`
		Port    *int  `yaml:"port"`
	} `yaml:"state_server"`
	Prefs *struct {
		DBPath *string `yaml:"db_path"`
	} `yaml:"prefs"`
}

// LoadFile overlays a YAML config file onto base.
func LoadFile(path string, base *Config) (*Config, error) {
	if base == nil {
		base = Defaults()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := base.Clone()
	if file.API != nil {
		applyString(&cfg.API.BaseURL, file.API.BaseURL)
		if err := applyDuration(&cfg.API.Timeout, file.API.Timeout); err != nil {
			return nil, fmt.Errorf("api.timeout: %w", err)
		}
	}
	if file.Socket != nil {
		applyString(&cfg.Socket.URL, file.Socket.URL)
		applyString(&cfg.Socket.RetryPolicy, file.Socket.RetryPolicy)
		if err := applyDuration(&cfg.Socket.RetryDelay, file.Socket.RetryDelay); err != nil {
			return nil, fmt.Errorf("socket.retry_delay: %w", err)
		}
		if err := applyDuration(&cfg.Socket.PingInterval, file.Socket.PingInterval); err != nil {
			return nil, fmt.Errorf("socket.ping_interval: %w", err)
		}
	}
	if file.Snapshot != nil {
		applyString(&cfg.Snapshot.URL, file.Snapshot.URL)
		if file.Snapshot.Enabled != nil {
			cfg.Snapshot.Enabled = *file.Snapshot.Enabled
		}
		if file.Snapshot.Paths != nil {
			cfg.Snapshot.Paths = append([]string(nil), file.Snapshot.Paths...)
		}
	}
	if file.Poll != nil {
		if err := applyDuration(&cfg.Poll.Interval, file.Poll.Interval); err != nil {
			return nil, fmt.Errorf("poll.interval: %w", err)
		}
	}
	if file.StateServer != nil {
		if file.StateServer.Enabled != nil {
			cfg.StateServer.Enabled = *file.StateServer.Enabled
		}
		if file.StateServer.Port != nil {
			cfg.StateServer.Port = *file.StateServer.Port
		}
	}
	if file.Prefs != nil {
		applyString(&cfg.Prefs.DBPath, file.Prefs.DBPath)
	}
	return cfg, nil
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyDuration(dst *time.Duration, src *string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}

func envStringSliceDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
