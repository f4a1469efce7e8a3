// Package config provides configuration structures and loading logic for the
// interception container.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	defaultAdminAddress = ":19090"
	defaultServiceName  = "polis-intercept"
)

// Config holds the global configuration.
type Config struct {
	Logging       LoggingConfig        `yaml:"logging"`
	Telemetry     TelemetryConfig      `yaml:"telemetry"`
	Admin         AdminConfig          `yaml:"admin"`
	Registrations []RegistrationConfig `yaml:"registrations"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
	// SampleRatio is the fraction of root builds traced. Zero means all.
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// AdminConfig holds configuration for the admin HTTP server.
type AdminConfig struct {
	Address string `yaml:"address"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{ServiceName: defaultServiceName},
		Admin:     AdminConfig{Address: defaultAdminAddress},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
// An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		data = raw
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("INTERCEPT_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("INTERCEPT_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("INTERCEPT_ADMIN_ADDR"); val != "" {
		cfg.Admin.Address = val
	}
	if val := os.Getenv("INTERCEPT_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("INTERCEPT_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
}

// Validate applies defaults and validates the entire configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	if strings.TrimSpace(c.Admin.Address) == "" {
		c.Admin.Address = defaultAdminAddress
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: telemetry sample_ratio %v must be within [0, 1]", ErrInvalidConfig, c.Telemetry.SampleRatio)
	}

	seen := make(map[string]int, len(c.Registrations))
	for i := range c.Registrations {
		reg := &c.Registrations[i]
		if err := reg.Validate(); err != nil {
			return fmt.Errorf("registration %d: %w", i, err)
		}
		id := reg.ID()
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("%w: registration %d duplicates registration %d (%s)", ErrInvalidConfig, i, prev, id)
		}
		seen[id] = i
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
	default:
		return fmt.Errorf("%w: invalid log level %q, supported levels: debug, info, warn, error", ErrInvalidConfig, c.Level)
	}

	format := strings.TrimSpace(strings.ToLower(c.Format))
	switch format {
	case "":
		c.Format = "text"
	case "text", "json":
		c.Format = format
	default:
		return fmt.Errorf("%w: invalid log format %q, supported formats: text, json", ErrInvalidConfig, c.Format)
	}
	return nil
}
