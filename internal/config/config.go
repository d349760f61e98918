package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for the bridge.
type Config struct {
	General GeneralConfig `json:"general"`
	Server  ServerConfig  `json:"server"`
	Session SessionConfig `json:"session"`
	Webhook WebhookConfig `json:"webhook"`
	Media   MediaConfig   `json:"media"`
	Bulk    BulkConfig    `json:"bulk"`
	Metrics MetricsConfig `json:"metrics"`
}

type GeneralConfig struct {
	DataDir  string `json:"dataDir"`
	LogLevel string `json:"logLevel"`
}

// ServerConfig configures the outbound HTTP API listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SessionConfig configures the chat session client.
type SessionConfig struct {
	StorePath             string `json:"storePath"`             // sqlite credential store
	ReconnectDelaySeconds int    `json:"reconnectDelaySeconds"` // fixed delay before reinit after disconnect
	SendRatePerMinute     int    `json:"sendRatePerMinute"`
	PrintQR               bool   `json:"printQr"` // render pairing code to the terminal too
}

// WebhookConfig configures the inbound-event forwarder.
type WebhookConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// MediaConfig configures temp storage for outbound media.
type MediaConfig struct {
	Dir                 string `json:"dir"`
	MaxBytes            int64  `json:"maxBytes"`
	CleanupDelaySeconds int    `json:"cleanupDelaySeconds"`
}

// BulkConfig configures batch-send throttling.
type BulkConfig struct {
	DelayMs  int `json:"delayMs"`
	JitterMs int `json:"jitterMs"` // random extra delay on top of DelayMs
}

// MetricsConfig configures the Prometheus-format metrics endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.wabridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wabridge"
	}
	return filepath.Join(home, ".wabridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.Session.StorePath = ExpandPath(cfg.Session.StorePath)
	cfg.Media.Dir = ExpandPath(cfg.Media.Dir)

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverrides applies the two process-level overrides the bridge has
// always honored: PORT and WEBHOOK_URL.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Webhook.URL != "" {
		if u, err := url.Parse(cfg.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, "webhook.url must be an http(s) URL")
		}
	}
	if cfg.Webhook.TimeoutSeconds < 1 {
		errs = append(errs, "webhook.timeoutSeconds must be >= 1")
	}
	if cfg.Session.ReconnectDelaySeconds < 1 {
		errs = append(errs, "session.reconnectDelaySeconds must be >= 1")
	}
	if cfg.Session.SendRatePerMinute < 1 {
		errs = append(errs, "session.sendRatePerMinute must be >= 1")
	}
	if cfg.Media.MaxBytes < 1 {
		errs = append(errs, "media.maxBytes must be >= 1")
	}
	if cfg.Media.CleanupDelaySeconds < 0 {
		errs = append(errs, "media.cleanupDelaySeconds must be >= 0")
	}
	if cfg.Bulk.DelayMs < 0 {
		errs = append(errs, "bulk.delayMs must be >= 0")
	}
	if cfg.Bulk.JitterMs < 0 {
		errs = append(errs, "bulk.jitterMs must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
