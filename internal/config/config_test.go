package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		yamlContent string
		wantConfig  *Config
		wantErr     string
	}{
		{
			name: "full_config",
			yamlContent: `server:
  address: ":9090"
coordination:
  fhirBaseUrl: https://dsf.example.org/fhir
  tokenUrl: https://auth.example.org/realms/dsf/token
  clientId: portal
  timeout: "45s"
  testMode: true
frontend:
  baseUrl: https://portal.example.org
poller:
  enabled: true
  interval: "5m"
telemetry:
  enabled: true
  serviceName: coordinator-dev`,
			wantConfig: &Config{
				Server: ServerConfig{Address: ":9090"},
				Coordination: CoordinationConfig{
					FHIRBaseURL: "https://dsf.example.org/fhir",
					TokenURL:    "https://auth.example.org/realms/dsf/token",
					ClientID:    "portal",
					Timeout:     "45s",
					TestMode:    true,
				},
				Frontend:  FrontendConfig{BaseURL: "https://portal.example.org"},
				Poller:    &PollerConfig{Enabled: true, Interval: "5m"},
				Telemetry: &TelemetryConfig{Enabled: true, ServiceName: "coordinator-dev"},
			},
		},
		{
			name: "minimal_config",
			yamlContent: `coordination:
  fhirBaseUrl: https://dsf.example.org/fhir
frontend:
  baseUrl: https://portal.example.org`,
			wantConfig: &Config{
				Coordination: CoordinationConfig{FHIRBaseURL: "https://dsf.example.org/fhir"},
				Frontend:     FrontendConfig{BaseURL: "https://portal.example.org"},
			},
		},
		{
			name: "missing_fhir_base_url",
			yamlContent: `frontend:
  baseUrl: https://portal.example.org`,
			wantErr: "coordination.fhirBaseUrl is required",
		},
		{
			name: "missing_frontend_base_url",
			yamlContent: `coordination:
  fhirBaseUrl: https://dsf.example.org/fhir`,
			wantErr: "frontend.baseUrl is required",
		},
		{
			name: "non_http_url",
			yamlContent: `coordination:
  fhirBaseUrl: ftp://dsf.example.org/fhir
frontend:
  baseUrl: https://portal.example.org`,
			wantErr: "must be an http or https URL",
		},
		{
			name: "token_url_without_client_id",
			yamlContent: `coordination:
  fhirBaseUrl: https://dsf.example.org/fhir
  tokenUrl: https://auth.example.org/token
frontend:
  baseUrl: https://portal.example.org`,
			wantErr: "coordination.clientId is required",
		},
		{
			name: "invalid_timeout",
			yamlContent: `coordination:
  fhirBaseUrl: https://dsf.example.org/fhir
  timeout: "soon"
frontend:
  baseUrl: https://portal.example.org`,
			wantErr: "coordination.timeout must be a valid duration",
		},
		{
			name: "invalid_poller_interval",
			yamlContent: `coordination:
  fhirBaseUrl: https://dsf.example.org/fhir
frontend:
  baseUrl: https://portal.example.org
poller:
  interval: "every now and then"`,
			wantErr: "poller.interval must be a valid duration",
		},
		{
			name:        "invalid_yaml",
			yamlContent: `{invalid: yaml: [unclosed`,
			wantErr:     "failed to parse YAML config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfigFile(t, tt.yamlContent)

			cfg, err := LoadConfig(WithConfigPath(path))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, cfg)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")))
	require.Error(t, err)
}

func TestLoadConfig_PathRequired(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, ":8080", cfg.GetAddress())
	assert.Equal(t, time.Duration(0), cfg.GetTimeout())
	assert.Equal(t, 2*time.Minute, cfg.GetPollerInterval())
	assert.Equal(t, "datashare-coordinator", cfg.GetServiceName())
}

func TestConfig_Getters(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Server:       ServerConfig{Address: ":7070"},
		Coordination: CoordinationConfig{Timeout: "15s"},
		Poller:       &PollerConfig{Interval: "90s"},
		Telemetry:    &TelemetryConfig{ServiceName: "custom"},
	}
	assert.Equal(t, ":7070", cfg.GetAddress())
	assert.Equal(t, 15*time.Second, cfg.GetTimeout())
	assert.Equal(t, 90*time.Second, cfg.GetPollerInterval())
	assert.Equal(t, "custom", cfg.GetServiceName())
}

func TestCoordinationConfig_GetClientSecret(t *testing.T) {
	t.Parallel()

	t.Run("from file with whitespace trimmed", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "secret")
		require.NoError(t, os.WriteFile(path, []byte("  s3cret\n"), 0600))

		c := CoordinationConfig{ClientSecretFile: path}
		secret, err := c.GetClientSecret()
		require.NoError(t, err)
		assert.Equal(t, "s3cret", secret)
	})

	t.Run("missing file errors", func(t *testing.T) {
		t.Parallel()

		c := CoordinationConfig{ClientSecretFile: filepath.Join(t.TempDir(), "nope")}
		_, err := c.GetClientSecret()
		require.Error(t, err)
	})
}

func TestCoordinationConfig_AuthConfigured(t *testing.T) {
	t.Parallel()

	assert.False(t, CoordinationConfig{}.AuthConfigured())
	assert.False(t, CoordinationConfig{TokenURL: "https://auth.example.org/token"}.AuthConfigured())
	assert.True(t, CoordinationConfig{TokenURL: "https://auth.example.org/token", ClientID: "portal"}.AuthConfigured())
}
