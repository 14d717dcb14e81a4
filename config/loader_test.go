package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/snowgate/auth"
	"github.com/BaSui01/snowgate/orchestrator"
	"github.com/BaSui01/snowgate/types"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snowgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, auth.StrategyNone, cfg.Auth.Strategy)
	assert.False(t, cfg.Delegation.Enabled)
	assert.Equal(t, orchestrator.DispatchSequential, cfg.Orchestrator.Mode)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, float64(10), cfg.RateLimit.RPS)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestLoader_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_port: 9000
auth:
  strategy: jwt
  jwt:
    issuer: https://idp.example.com
    audience: snowgate
    jwks_uri: https://idp.example.com/jwks
delegation:
  enabled: true
  audience: servicenow
  client_id: snowgate
  client_secret: secret
orchestrator:
  mode: parallel
  max_parallel: 8
routing:
  rules:
    incidents: [incident, outage]
    cmdb: [cmdb]
capabilities:
  - name: get_incident
    description: Fetch one incident by number
    tags: [incidents]
  - name: get_cmdb
    description: Look up a configuration item
    tags: [cmdb]
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, auth.StrategyJWT, cfg.Auth.Strategy)
	assert.Equal(t, "https://idp.example.com", cfg.Auth.JWT.Issuer)
	assert.True(t, cfg.Delegation.Enabled)
	assert.Equal(t, orchestrator.DispatchParallel, cfg.Orchestrator.Mode)
	assert.Equal(t, int64(8), cfg.Orchestrator.MaxParallel)
	assert.Equal(t, []string{"incident", "outage"}, cfg.Routing.Rules["incidents"])
	require.Len(t, cfg.Capabilities, 2)
	assert.Equal(t, []string{"incidents"}, cfg.Capabilities[0].Tags)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("SNOWGATE_SERVER_HTTP_PORT", "9100")
	t.Setenv("SNOWGATE_AUTH_STRATEGY", "static-token")
	t.Setenv("SNOWGATE_DELEGATION_TIMEOUT", "5s")
	t.Setenv("SNOWGATE_RATE_LIMIT_RPS", "50")
	t.Setenv("SNOWGATE_AUTH_JWT_REQUIRED_SCOPES", "read, write")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.HTTPPort)
	assert.Equal(t, auth.StrategyStaticToken, cfg.Auth.Strategy)
	assert.Equal(t, 5*time.Second, cfg.Delegation.Timeout)
	assert.Equal(t, float64(50), cfg.RateLimit.RPS)
	assert.Equal(t, []string{"read", "write"}, cfg.Auth.JWT.RequiredScopes)
}

func TestLoader_EnvBeatsFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  http_port: 9000\n")
	t.Setenv("SNOWGATE_SERVER_HTTP_PORT", "9200")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.HTTPPort)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "server: [not a mapping\n")
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.GetErrorCode(err))
}

func TestLoader_CustomValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		return types.NewError(types.ErrConfig, "rejected by validator")
	}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected by validator")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.HTTPPort = 0 },
			wantErr: "http_port",
		},
		{
			name:    "bad store backend",
			mutate:  func(c *Config) { c.Store.Backend = "etcd" },
			wantErr: "store.backend",
		},
		{
			name: "redis backend without addr",
			mutate: func(c *Config) {
				c.Store.Backend = "redis"
				c.Store.Redis.Addr = ""
			},
			wantErr: "store.redis.addr",
		},
		{
			name:    "bad dispatch mode",
			mutate:  func(c *Config) { c.Orchestrator.Mode = "burst" },
			wantErr: "orchestrator.mode",
		},
		{
			name: "bad rate limit",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RPS = 0
			},
			wantErr: "rate_limit",
		},
		{
			name: "capability without tags",
			mutate: func(c *Config) {
				c.Capabilities = []CapabilityConfig{{Name: "orphan"}}
			},
			wantErr: "tag",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, types.ErrConfig, types.GetErrorCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}
