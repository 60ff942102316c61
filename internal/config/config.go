package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for botkit.
type Config struct {
	General      GeneralConfig      `json:"general" yaml:"general"`
	Conversation ConversationConfig `json:"conversation" yaml:"conversation"`
	Storage      StorageConfig      `json:"storage" yaml:"storage"`
	Drivers      DriversConfig      `json:"drivers" yaml:"drivers"`
	Server       ServerConfig       `json:"server" yaml:"server"`
}

type GeneralConfig struct {
	Name     string `json:"name" yaml:"name"`
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

// ConversationConfig controls pending conversation state.
type ConversationConfig struct {
	// CacheMinutes is the TTL of a stored pending conversation.
	CacheMinutes int `json:"cacheMinutes" yaml:"cacheMinutes"`
}

// StorageConfig selects the key-value backend for conversation state.
type StorageConfig struct {
	Backend string `json:"backend" yaml:"backend"` // "memory" | "file" | "sqlite"
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

type DriversConfig struct {
	Web       WebDriverConfig       `json:"web" yaml:"web"`
	Telegram  TelegramDriverConfig  `json:"telegram" yaml:"telegram"`
	Slack     SlackDriverConfig     `json:"slack" yaml:"slack"`
	Discord   DiscordDriverConfig   `json:"discord" yaml:"discord"`
	WebSocket WebSocketDriverConfig `json:"websocket" yaml:"websocket"`
	CLI       CLIDriverConfig       `json:"cli" yaml:"cli"`
}

type WebDriverConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type TelegramDriverConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Token     string `json:"token" yaml:"token"`
	ParseMode string `json:"parseMode,omitempty" yaml:"parseMode,omitempty"`
}

type SlackDriverConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token" yaml:"token"`
}

type DiscordDriverConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token" yaml:"token"`
	GuildID string `json:"guildId,omitempty" yaml:"guildId,omitempty"`
}

type WebSocketDriverConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

type CLIDriverConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type ServerConfig struct {
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	WebhookPath     string `json:"webhookPath" yaml:"webhookPath"`
	MetricsEnabled  bool   `json:"metricsEnabled" yaml:"metricsEnabled"`
	MetricsEndpoint string `json:"metricsEndpoint" yaml:"metricsEndpoint"`
}

// DefaultConfigDir returns the default config directory (~/.botkit).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".botkit"
	}
	return filepath.Join(home, ".botkit")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Defaults returns a config with sane development defaults.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Name:     "botkit",
			LogLevel: "info",
		},
		Conversation: ConversationConfig{
			CacheMinutes: 30,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Path:    filepath.Join(DefaultConfigDir(), "state"),
		},
		Drivers: DriversConfig{
			Web: WebDriverConfig{Enabled: true},
			WebSocket: WebSocketDriverConfig{
				Port: 8081,
				Path: "/ws",
			},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			WebhookPath:     "/botkit",
			MetricsEnabled:  true,
			MetricsEndpoint: "/metrics",
		},
	}
}

// Load reads a config file. The format follows the extension: .yaml/.yml
// parse as YAML, anything else as JSON. ${VAR} and ${VAR:-default}
// references are expanded from the environment first.
func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg.Storage.Path = expandPath(cfg.Storage.Path)
	cfg.General.LogFile = expandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Save writes the config back, pretty-printed, in the format implied by
// the path extension.
func Save(cfg *Config, path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations the process cannot run with.
func Validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend != "memory" && cfg.Storage.Path == "" {
		return fmt.Errorf("storage backend %q needs a path", cfg.Storage.Backend)
	}
	if cfg.Conversation.CacheMinutes < 0 {
		return fmt.Errorf("conversation cacheMinutes cannot be negative")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Drivers.Telegram.Enabled && cfg.Drivers.Telegram.Token == "" {
		return fmt.Errorf("telegram driver enabled without a token")
	}
	if cfg.Drivers.Slack.Enabled && cfg.Drivers.Slack.Token == "" {
		return fmt.Errorf("slack driver enabled without a token")
	}
	if cfg.Drivers.Discord.Enabled && cfg.Drivers.Discord.Token == "" {
		return fmt.Errorf("discord driver enabled without a token")
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		if val := os.Getenv(groups[1]); val != "" {
			return val
		}
		if len(groups) >= 3 {
			return groups[2]
		}
		return ""
	})
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
