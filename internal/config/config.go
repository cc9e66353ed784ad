package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/codefionn/chatline/internal/logger"
	"github.com/codefionn/chatline/internal/socketclient"
)

const appName = "chatline"

// Environment variables that override file values.
const (
	EnvHost     = "CHATLINE_HOST"
	EnvPort     = "CHATLINE_PORT"
	EnvLogLevel = "CHATLINE_LOG_LEVEL"
	EnvLogPath  = "CHATLINE_LOG_PATH"
)

// DefaultRequestTimeout is the default wait for the responses to one
// interactive command.
const DefaultRequestTimeout = 10 * time.Second

// Config represents application configuration
type Config struct {
	Host                string `json:"host" yaml:"host" toml:"host"`
	Port                int    `json:"port" yaml:"port" toml:"port"`
	Name                string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"` // prefilled username
	ReconnectTimeoutMS  int    `json:"reconnect_timeout_ms" yaml:"reconnect_timeout_ms" toml:"reconnect_timeout_ms"`
	HeartbeatIntervalMS int    `json:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms" toml:"heartbeat_interval_ms"`
	RequestTimeoutMS    int    `json:"request_timeout_ms" yaml:"request_timeout_ms" toml:"request_timeout_ms"`
	LogLevel            string `json:"log_level" yaml:"log_level" toml:"log_level"` // debug, info, warn, error, none
	LogPath             string `json:"log_path" yaml:"log_path" toml:"log_path"`   // "-" for stderr
	MetricsAddr         string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty" toml:"metrics_addr,omitempty"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appName)
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:                "localhost",
		Port:                9432,
		ReconnectTimeoutMS:  int(socketclient.DefaultReconnectTimeout / time.Millisecond),
		HeartbeatIntervalMS: int(socketclient.DefaultHeartbeatInterval / time.Millisecond),
		RequestTimeoutMS:    int(DefaultRequestTimeout / time.Millisecond),
		LogLevel:            "info",
		LogPath:             filepath.Join(defaultStateDir(), appName+".log"),
	}
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

// Load loads configuration from file and applies environment overrides.
// The format follows the extension: .json, .yaml/.yml or .toml. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	defaults := DefaultConfig()
	if config.Host == "" {
		config.Host = defaults.Host
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.ReconnectTimeoutMS == 0 {
		config.ReconnectTimeoutMS = defaults.ReconnectTimeoutMS
	}
	if config.HeartbeatIntervalMS == 0 {
		config.HeartbeatIntervalMS = defaults.HeartbeatIntervalMS
	}
	if config.RequestTimeoutMS == 0 {
		config.RequestTimeoutMS = defaults.RequestTimeoutMS
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.LogPath == "" {
		config.LogPath = defaults.LogPath
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".toml":
		_, err := toml.Decode(string(data), config)
		return err
	case ".json", "":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvHost)); v != "" {
		c.Host = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Port = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogPath)); v != "" {
		c.LogPath = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ReconnectTimeoutMS <= 0 {
		return fmt.Errorf("reconnect_timeout_ms must be positive")
	}
	if c.HeartbeatIntervalMS <= 0 {
		return fmt.Errorf("heartbeat_interval_ms must be positive")
	}
	if c.RequestTimeoutMS <= 0 {
		return fmt.Errorf("request_timeout_ms must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "none":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// RequestTimeout bounds how long one interactive command waits for its
// responses.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// Level returns the parsed log level.
func (c *Config) Level() logger.Level {
	return logger.ParseLevel(strings.ToLower(c.LogLevel))
}

// ClientConfig converts the file settings into a socket client config.
func (c *Config) ClientConfig() socketclient.Config {
	return socketclient.Config{
		Host:              c.Host,
		Port:              c.Port,
		ReconnectTimeout:  time.Duration(c.ReconnectTimeoutMS) * time.Millisecond,
		HeartbeatInterval: time.Duration(c.HeartbeatIntervalMS) * time.Millisecond,
	}
}

// Save saves configuration to file in the format its extension names.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
