// Package config provides configuration management for Visage.
// It loads settings from environment variables with the VISAGE_ prefix
// and provides sensible defaults for all configuration options. An
// optional YAML file (VISAGE_CONFIG_FILE) is applied between the
// defaults and the environment, so the precedence is:
//
//	defaults < config file < environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Visage application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Engine    EngineConfig    `yaml:"engine"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Features  FeaturesConfig  `yaml:"features"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 6464)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string `yaml:"storage_engine"` // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string `yaml:"data_path"`      // Path to data directory for sqlite (default: ./data)
	PostgresDSN   string `yaml:"postgres_dsn"`   // PostgreSQL connection string
}

// EngineConfig contains identity matching tunables.
type EngineConfig struct {
	MatchThreshold  float64       `yaml:"match_threshold"`  // Max Euclidean distance for a match (default: 0.6)
	IdentifyTimeout time.Duration `yaml:"identify_timeout"` // Identify scan budget (default: 2s)
	ReportWindow    int           `yaml:"report_window"`    // Default analytics window in days (default: 30)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string `yaml:"security_mode"` // Security mode: development, production (default: development)
	APIToken     string `yaml:"api_token"`     // API authentication token
}

// RateLimitConfig contains request throttling settings for the HTTP API.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"` // Sustained rate (default: 10)
	Burst             int     `yaml:"burst"`               // Burst allowance (default: 20)
}

// FeaturesConfig contains feature flags.
type FeaturesConfig struct {
	EnableWebUI     bool `yaml:"enable_web_ui"`    // Serve the kiosk UI (default: true)
	EnableTelemetry bool `yaml:"enable_telemetry"` // Accept telemetry writes (default: true)
	EnableEvents    bool `yaml:"enable_events"`    // Expose the websocket event feed (default: true)
}

// LoadConfig loads configuration from defaults, the optional YAML file
// named by VISAGE_CONFIG_FILE, and environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("VISAGE_CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no deployment can run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	switch c.Storage.StorageEngine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres storage engine requires a DSN")
	}
	if c.Engine.MatchThreshold <= 0 {
		return fmt.Errorf("config: match threshold must be positive, got %v", c.Engine.MatchThreshold)
	}
	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: production mode requires VISAGE_API_TOKEN")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 6464,
			Host: "127.0.0.1",
		},
		Storage: StorageConfig{
			StorageEngine: "sqlite",
			DataPath:      "./data",
		},
		Engine: EngineConfig{
			MatchThreshold:  0.6,
			IdentifyTimeout: 2 * time.Second,
			ReportWindow:    30,
		},
		Security: SecurityConfig{
			SecurityMode: "development",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Features: FeaturesConfig{
			EnableWebUI:     true,
			EnableTelemetry: true,
			EnableEvents:    true,
		},
	}
}

// loadFile overlays settings from a YAML file onto cfg. Fields absent from
// the file keep their current values.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays VISAGE_-prefixed environment variables onto cfg.
func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("VISAGE_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("VISAGE_HOST", cfg.Server.Host)

	cfg.Storage.StorageEngine = getEnv("VISAGE_STORAGE_ENGINE", cfg.Storage.StorageEngine)
	cfg.Storage.DataPath = getEnv("VISAGE_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("VISAGE_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Engine.MatchThreshold = getEnvFloat("VISAGE_MATCH_THRESHOLD", cfg.Engine.MatchThreshold)
	cfg.Engine.IdentifyTimeout = getEnvDuration("VISAGE_IDENTIFY_TIMEOUT", cfg.Engine.IdentifyTimeout)
	cfg.Engine.ReportWindow = getEnvInt("VISAGE_REPORT_WINDOW", cfg.Engine.ReportWindow)

	cfg.Security.SecurityMode = getEnv("VISAGE_SECURITY_MODE", cfg.Security.SecurityMode)
	cfg.Security.APIToken = getEnv("VISAGE_API_TOKEN", cfg.Security.APIToken)

	cfg.RateLimit.RequestsPerSecond = getEnvFloat("VISAGE_RATE_LIMIT_RPS", cfg.RateLimit.RequestsPerSecond)
	cfg.RateLimit.Burst = getEnvInt("VISAGE_RATE_LIMIT_BURST", cfg.RateLimit.Burst)

	cfg.Features.EnableWebUI = getEnvBool("VISAGE_ENABLE_WEB_UI", cfg.Features.EnableWebUI)
	cfg.Features.EnableTelemetry = getEnvBool("VISAGE_ENABLE_TELEMETRY", cfg.Features.EnableTelemetry)
	cfg.Features.EnableEvents = getEnvBool("VISAGE_ENABLE_EVENTS", cfg.Features.EnableEvents)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "500ms",
// "3s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
