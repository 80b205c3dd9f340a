package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/codefionn/livecast/internal/consts"
	"github.com/codefionn/livecast/internal/logger"
	"github.com/codefionn/livecast/internal/securemem"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAPIKey   = "GOOGLE_API_KEY"
	EnvModel    = "MODEL_DEV_API"
	EnvVoice    = "VOICE_DEV_API"
	EnvLogLevel = "LOG_LEVEL"
	EnvLogPath  = "LIVECAST_LOG_PATH"
	EnvAddr     = "LIVECAST_ADDR"
)

// ConfigurationError reports a configuration problem that prevents an
// upstream session from being created. It is fatal for the connection.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Config represents the relay configuration
type Config struct {
	Addr                   string            `json:"addr" yaml:"addr"`
	APIKey                 *securemem.String `json:"api_key,omitempty" yaml:"api_key"`
	APIVersion             string            `json:"api_version" yaml:"api_version"`
	Model                  string            `json:"model" yaml:"model"`
	Voice                  string            `json:"voice" yaml:"voice"`
	ResponseModalities     []string          `json:"response_modalities" yaml:"response_modalities"`
	SystemInstructionsPath string            `json:"system_instructions_path" yaml:"system_instructions_path"`
	WatchInstructions      bool              `json:"watch_instructions" yaml:"watch_instructions"`
	PingIntervalSeconds    int               `json:"ping_interval_seconds" yaml:"ping_interval_seconds"`
	PingTimeoutSeconds     int               `json:"ping_timeout_seconds" yaml:"ping_timeout_seconds"`
	IdleTimeoutSeconds     int               `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds"` // 0 disables the idle timeout
	MaxMessageBytes        int64             `json:"max_message_bytes" yaml:"max_message_bytes"`
	ToolQueueWarnDepth     int               `json:"tool_queue_warn_depth" yaml:"tool_queue_warn_depth"`
	LogLevel               string            `json:"log_level" yaml:"log_level"` // debug, info, warn, error, none
	LogPath                string            `json:"log_path" yaml:"log_path"`   // empty logs to stderr
	PprofAddr              string            `json:"pprof_addr,omitempty" yaml:"pprof_addr"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:                   "0.0.0.0:8081",
		APIKey:                 securemem.NewString(""),
		APIVersion:             "v1beta",
		Model:                  "models/gemini-2.0-flash-exp",
		Voice:                  "Kore",
		ResponseModalities:     []string{"AUDIO"},
		SystemInstructionsPath: filepath.Join("config", "system-instructions.txt"),
		WatchInstructions:      true,
		PingIntervalSeconds:    30,
		PingTimeoutSeconds:     10,
		IdleTimeoutSeconds:     15 * 60,
		MaxMessageBytes:        consts.BufferSize4MB,
		ToolQueueWarnDepth:     8,
		LogLevel:               "info",
	}
}

// Load reads configuration from path on top of the defaults. A missing file
// yields the defaults. Files ending in .yaml or .yml are parsed as YAML with
// ${VAR} expansion; everything else is JSON.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ApplyEnv overrides fields from environment variables. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvAPIKey)); v != "" {
		c.APIKey.Destroy()
		c.APIKey = securemem.NewString(v)
	}
	if v := strings.TrimSpace(getenv(EnvModel)); v != "" {
		c.Model = v
	}
	if v := strings.TrimSpace(getenv(EnvVoice)); v != "" {
		c.Voice = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(getenv(EnvLogPath)); v != "" {
		c.LogPath = v
	}
	if v := strings.TrimSpace(getenv(EnvAddr)); v != "" {
		c.Addr = v
	}
}

// Validate checks the fields needed to serve connections.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return &ConfigurationError{Field: "addr", Reason: "listen address is required"}
	}
	if c.Model == "" {
		return &ConfigurationError{Field: "model", Reason: "model name is required"}
	}
	if c.PingIntervalSeconds < 0 || c.PingTimeoutSeconds < 0 || c.IdleTimeoutSeconds < 0 {
		return &ConfigurationError{Field: "timeouts", Reason: "must not be negative"}
	}
	if c.MaxMessageBytes <= 0 {
		return &ConfigurationError{Field: "max_message_bytes", Reason: "must be positive"}
	}
	return nil
}

// RequireAPIKey fails when no API key is available. It is checked per upstream
// session rather than at startup so the server can come up before credentials do.
func (c *Config) RequireAPIKey() error {
	if c.APIKey.IsEmpty() {
		return &ConfigurationError{Field: "api_key", Reason: "no API key available from config or " + EnvAPIKey}
	}
	return nil
}

// PingInterval is the keepalive ping period. Zero disables pings.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// PingTimeout is how long a ping may stay unanswered.
func (c *Config) PingTimeout() time.Duration {
	return time.Duration(c.PingTimeoutSeconds) * time.Second
}

// IdleTimeout is how long a client may stay silent. Zero disables it.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// ReadSystemInstructions loads the system instructions file. A missing or
// unreadable file is logged and yields an empty instruction.
func (c *Config) ReadSystemInstructions() string {
	if c.SystemInstructionsPath == "" {
		return ""
	}
	data, err := os.ReadFile(c.SystemInstructionsPath)
	if err != nil {
		logger.Error("Failed to load system instructions: %v", err)
		return ""
	}
	return string(data)
}
