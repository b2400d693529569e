package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the HTTP port used when neither addr nor PORT is set.
const DefaultPort = "10000"

var validDirections = []string{"TD", "TB", "BT", "LR", "RL"}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config holds all configuration for codeflow
type Config struct {
	// Addr is the listen address of the HTTP service
	Addr string `yaml:"addr" env:"CFLOW_ADDR"`

	// Graph construction
	MaxDepth       int      `yaml:"max_depth" env:"CFLOW_MAX_DEPTH"`
	Dedup          bool     `yaml:"dedup" env:"CFLOW_DEDUP"`
	IOCalls        []string `yaml:"io_calls" env:"CFLOW_IO_CALLS"`
	MaxLabelLength int      `yaml:"max_label_length" env:"CFLOW_MAX_LABEL_LENGTH"`

	// Diagram output
	Direction string `yaml:"direction" env:"CFLOW_DIRECTION"`
	Header    bool   `yaml:"header" env:"CFLOW_HEADER"`

	// Result cache; an empty CachePath keeps it in memory only
	CacheSize int    `yaml:"cache_size" env:"CFLOW_CACHE_SIZE"`
	CachePath string `yaml:"cache_path" env:"CFLOW_CACHE_PATH"`

	// Request limits
	MaxSourceBytes int64         `yaml:"max_source_bytes" env:"CFLOW_MAX_SOURCE_BYTES"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"CFLOW_REQUEST_TIMEOUT"`

	// Logging
	LogLevel string `yaml:"log_level" env:"CFLOW_LOG_LEVEL"`
	LogJSON  bool   `yaml:"log_json" env:"CFLOW_LOG_JSON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":" + DefaultPort,
		MaxDepth:       100,
		Dedup:          false,
		IOCalls:        []string{"print", "input"},
		MaxLabelLength: 80,
		Direction:      "TD",
		Header:         true,
		CacheSize:      256,
		CachePath:      "",
		MaxSourceBytes: 1 << 20,
		RequestTimeout: 10 * time.Second,
		LogLevel:       "info",
		LogJSON:        false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.cflow/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cflow/config.yaml"
	}
	return filepath.Join(home, ".cflow", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.cflow/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".cflow", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Project-level config (./.cflow/config.yaml)
// 2. Environment variables
// 3. Global config (~/.cflow/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	return load(GlobalConfigFilePath(), ProjectConfigFilePath())
}

func load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if err := mergeFile(cfg, globalPath); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := mergeFile(cfg, projectPath); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeFile overlays the YAML file at path onto cfg. A missing file is
// skipped.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromFile reads configuration from a specific YAML file path. The file
// must exist; environment variables still override it.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// PORT is honored for hosting platforms that assign one; CFLOW_ADDR wins
// over it.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("CFLOW_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("CFLOW_MAX_DEPTH"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return envError("CFLOW_MAX_DEPTH", v, err)
		}
		cfg.MaxDepth = i
	}
	if v := os.Getenv("CFLOW_DEDUP"); v != "" {
		cfg.Dedup = parseBool(v)
	}
	if v := os.Getenv("CFLOW_IO_CALLS"); v != "" {
		cfg.IOCalls = splitList(v)
	}
	if v := os.Getenv("CFLOW_MAX_LABEL_LENGTH"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return envError("CFLOW_MAX_LABEL_LENGTH", v, err)
		}
		cfg.MaxLabelLength = i
	}
	if v := os.Getenv("CFLOW_DIRECTION"); v != "" {
		cfg.Direction = strings.ToUpper(v)
	}
	if v := os.Getenv("CFLOW_HEADER"); v != "" {
		cfg.Header = parseBool(v)
	}
	if v := os.Getenv("CFLOW_CACHE_SIZE"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return envError("CFLOW_CACHE_SIZE", v, err)
		}
		cfg.CacheSize = i
	}
	if v := os.Getenv("CFLOW_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("CFLOW_MAX_SOURCE_BYTES"); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return envError("CFLOW_MAX_SOURCE_BYTES", v, err)
		}
		cfg.MaxSourceBytes = i
	}
	if v := os.Getenv("CFLOW_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("CFLOW_REQUEST_TIMEOUT", v, err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("CFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("CFLOW_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	return nil
}

func envError(name, value string, err error) error {
	return fmt.Errorf("invalid %s=%q: %w", name, value, err)
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive")
	}
	if c.MaxLabelLength < 0 {
		return fmt.Errorf("max_label_length must be non-negative")
	}
	if !contains(validDirections, c.Direction) {
		return fmt.Errorf("invalid direction: %s (must be one of %s)", c.Direction, strings.Join(validDirections, ", "))
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}
	if c.MaxSourceBytes <= 0 {
		return fmt.Errorf("max_source_bytes must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log_level: %s (must be one of %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	for _, name := range c.IOCalls {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("io_calls must not contain empty names")
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
