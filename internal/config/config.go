// Package config provides configuration loading and management for the
// data-sharing coordination service.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientSecretEnvVar names the environment variable consulted when no
// clientSecretFile is configured.
const ClientSecretEnvVar = "DSC_CLIENT_SECRET"

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Server configures the inbound REST surface
	Server ServerConfig `yaml:"server,omitempty"`

	// Coordination configures the outbound coordination endpoint
	Coordination CoordinationConfig `yaml:"coordination"`

	// Frontend configures portal links embedded in outbound payloads
	Frontend FrontendConfig `yaml:"frontend"`

	// Poller configures the background delivery watcher
	Poller *PollerConfig `yaml:"poller,omitempty"`

	// Telemetry configures metrics export
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// ServerConfig defines the inbound HTTP listener settings
type ServerConfig struct {
	// Address is the listen address, defaults to ":8080"
	Address string `yaml:"address,omitempty"`
}

// CoordinationConfig defines the external process-engine endpoint settings
type CoordinationConfig struct {
	// FHIRBaseURL is the base URL of the coordination FHIR endpoint
	FHIRBaseURL string `yaml:"fhirBaseUrl"`

	// TokenURL is the OAuth2 client-credentials token endpoint
	TokenURL string `yaml:"tokenUrl,omitempty"`

	// ClientID is the OAuth2 client id
	ClientID string `yaml:"clientId,omitempty"`

	// ClientSecretFile is the path to a file containing the OAuth2 client
	// secret; recommended for production deployments. The file content is
	// trimmed of surrounding whitespace.
	ClientSecretFile string `yaml:"clientSecretFile,omitempty"`

	// Timeout is the per-request timeout (e.g. "30s"). Empty uses the
	// transport default.
	Timeout string `yaml:"timeout,omitempty"`

	// TestMode substitutes sandbox identifiers on every coordination
	// request so no real data-integration center is contacted.
	TestMode bool `yaml:"testMode,omitempty"`
}

// FrontendConfig defines the portal frontend settings
type FrontendConfig struct {
	// BaseURL is the portal base URL that contract links point into
	BaseURL string `yaml:"baseUrl"`
}

// PollerConfig defines the background delivery watcher settings
type PollerConfig struct {
	// Enabled turns the watcher on
	Enabled bool `yaml:"enabled,omitempty"`

	// Interval between poll rounds (e.g. "2m"), defaults to 2 minutes
	Interval string `yaml:"interval,omitempty"`
}

// TelemetryConfig defines metrics export settings
type TelemetryConfig struct {
	// Enabled turns the Prometheus metrics endpoint on
	Enabled bool `yaml:"enabled,omitempty"`

	// ServiceName reported in metrics, defaults to "datashare-coordinator"
	ServiceName string `yaml:"serviceName,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetAddress returns the listen address, using ":8080" if not specified
func (c *Config) GetAddress() string {
	if c.Server.Address == "" {
		return ":8080"
	}
	return c.Server.Address
}

// GetTimeout returns the coordination request timeout; zero means the
// transport default applies.
func (c *Config) GetTimeout() time.Duration {
	if c.Coordination.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Coordination.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// GetPollerInterval returns the watcher interval, using 2 minutes if not
// specified or unparsable.
func (c *Config) GetPollerInterval() time.Duration {
	if c.Poller == nil || c.Poller.Interval == "" {
		return 2 * time.Minute
	}
	d, err := time.ParseDuration(c.Poller.Interval)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// GetServiceName returns the telemetry service name, using
// "datashare-coordinator" if not specified.
func (c *Config) GetServiceName() string {
	if c.Telemetry == nil || c.Telemetry.ServiceName == "" {
		return "datashare-coordinator"
	}
	return c.Telemetry.ServiceName
}

// GetClientSecret returns the OAuth2 client secret using the following
// priority:
// 1. Read from ClientSecretFile if specified
// 2. Read from the DSC_CLIENT_SECRET environment variable
//
// The secret from file will have leading/trailing whitespace trimmed.
func (c *CoordinationConfig) GetClientSecret() (string, error) {
	if c.ClientSecretFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(c.ClientSecretFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read client secret from file %s: %w", c.ClientSecretFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envSecret := os.Getenv(ClientSecretEnvVar); envSecret != "" {
		return envSecret, nil
	}

	return "", fmt.Errorf(
		"no client secret configured: set clientSecretFile or the %s environment variable", ClientSecretEnvVar)
}

// AuthConfigured reports whether the OAuth2 client-credentials flow is set up.
func (c CoordinationConfig) AuthConfigured() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// Validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateBaseURL(c.Coordination.FHIRBaseURL, "coordination.fhirBaseUrl"); err != nil {
		return err
	}
	if err := validateBaseURL(c.Frontend.BaseURL, "frontend.baseUrl"); err != nil {
		return err
	}

	if c.Coordination.TokenURL != "" {
		if err := validateBaseURL(c.Coordination.TokenURL, "coordination.tokenUrl"); err != nil {
			return err
		}
		if c.Coordination.ClientID == "" {
			return fmt.Errorf("coordination.clientId is required when tokenUrl is set")
		}
	}

	if c.Coordination.Timeout != "" {
		if _, err := time.ParseDuration(c.Coordination.Timeout); err != nil {
			return fmt.Errorf("coordination.timeout must be a valid duration (e.g. '30s'): %w", err)
		}
	}

	if c.Poller != nil && c.Poller.Interval != "" {
		if _, err := time.ParseDuration(c.Poller.Interval); err != nil {
			return fmt.Errorf("poller.interval must be a valid duration (e.g. '2m'): %w", err)
		}
	}

	return nil
}

func validateBaseURL(raw, field string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL, got %q", field, raw)
	}
	return nil
}
