// Package config is the process bootstrap surface: a small YAML-loaded
// record carrying logging settings and the declarative TLSSettings that
// ToSSLConfig turns into a live sslconfig.Config.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete bootstrap configuration for a process embedding
// this module's TLS configuration-coherence engine.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	TLS     TLSSettings   `yaml:"tls"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	// #nosec G304 - config file path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration.
func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("TLSCONFIG_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("TLSCONFIG_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if certFile := os.Getenv("TLSCONFIG_CERT_FILE"); certFile != "" {
		cfg.TLS.CertFile = certFile
	}
	if keyFile := os.Getenv("TLSCONFIG_KEY_FILE"); keyFile != "" {
		cfg.TLS.KeyFile = keyFile
	}
	if trustFile := os.Getenv("TLSCONFIG_TRUST_FILE"); trustFile != "" {
		cfg.TLS.TrustFile = trustFile
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, error, or fatal)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if c.Logging.Format != "" && !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	if c.TLS.Enabled && c.TLS.CertFile == "" {
		return fmt.Errorf("tls.cert_file is required when tls is enabled")
	}

	return nil
}
