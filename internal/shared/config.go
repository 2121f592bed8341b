package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	State    StateConfig    `toml:"state"`
	Database DatabaseConfig `toml:"database"`
}

// ServerConfig contains connection settings for the hermes download API.
type ServerConfig struct {
	BaseURL        string  `toml:"base_url" validate:"required,url"`
	TimeoutSeconds int     `toml:"timeout_seconds" validate:"gte=1"`
	RateLimit      float64 `toml:"rate_limit" validate:"gt=0"`
}

// StateConfig contains paths for durable local state shared across processes.
type StateConfig struct {
	Dir       string `toml:"dir" validate:"required"`
	HistoryDB string `toml:"history_db" validate:"required"`
}

// DatabaseConfig contains connection pool settings for the history database.
type DatabaseConfig struct {
	MaxOpenConns int `toml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int `toml:"max_idle_conns" validate:"gte=0"`
}

var validate = validator.New()

// LoadConfig reads, parses, and validates a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	config.applyEnv()

	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnv()
	return &config
}

// applyEnv overrides loaded values with HERMES_* environment variables.
// A .env file loaded at startup feeds through here as well.
func (c *Config) applyEnv() {
	if v := os.Getenv("HERMES_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("HERMES_STATE_DIR"); v != "" {
		c.State.Dir = v
	}
	if v := os.Getenv("HERMES_HISTORY_DB"); v != "" {
		c.State.HistoryDB = v
	}
	if v := os.Getenv("HERMES_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.TimeoutSeconds = n
		}
	}
}

// StateDir returns the state directory with ~ expanded.
func (c *Config) StateDir() string {
	return ExpandPath(c.State.Dir)
}

// HistoryDBPath returns the history database path with ~ expanded.
func (c *Config) HistoryDBPath() string {
	return ExpandPath(c.State.HistoryDB)
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig serializes the given Config to TOML at the specified path.
func SaveConfig(path string, config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidInput)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
