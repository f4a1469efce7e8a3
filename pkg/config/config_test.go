package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
logging:
  level: DEBUG
  format: json

telemetry:
  otlp_endpoint: "localhost:4317"
  insecure: true

admin:
  address: ":29090"

registrations:
  - type: demo.Calculator
    lifetime: singleton
    args: [42]
    intercept: true
    interfaces: [io.Closer]
    behaviors:
      - kind: logging
        level: info
      - kind: ratelimit
        rps: 5
        methods: [Divide]
      - kind: circuitbreaker
        max_failures: 3
        open_timeout: 10s
      - kind: match
        rule: 'method == "Add"'
        behavior:
          kind: timeout
          timeout: 250ms
  - type: demo.Calculator
    name: plain
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, defaultServiceName, cfg.Telemetry.ServiceName)
	assert.Equal(t, ":29090", cfg.Admin.Address)

	require.Len(t, cfg.Registrations, 2)
	reg := cfg.Registrations[0]
	assert.Equal(t, "demo.Calculator", reg.ID())
	assert.Equal(t, LifetimeSingleton, reg.Lifetime)
	assert.Equal(t, []any{42}, reg.Args)
	assert.Equal(t, []string{"io.Closer"}, reg.Interfaces)

	require.Len(t, reg.Behaviors, 4)
	assert.Equal(t, []string{"Divide"}, reg.Behaviors[1].Methods)
	assert.Equal(t, 1, reg.Behaviors[1].Burst, "burst defaults to 1")
	assert.Equal(t, 10*time.Second, reg.Behaviors[2].OpenTimeout)
	require.NotNil(t, reg.Behaviors[3].Behavior)
	assert.Equal(t, 250*time.Millisecond, reg.Behaviors[3].Behavior.Timeout)

	plain := cfg.Registrations[1]
	assert.Equal(t, "demo.Calculator[plain]", plain.ID())
	assert.Equal(t, LifetimeTransient, plain.Lifetime)
	assert.False(t, plain.Intercept)
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("INTERCEPT_LOG_LEVEL", "warn")
	t.Setenv("INTERCEPT_ADMIN_ADDR", "127.0.0.1:9000")
	t.Setenv("INTERCEPT_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("INTERCEPT_OTLP_INSECURE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1:9000", cfg.Admin.Address)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Empty(t, cfg.Registrations)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "logging: [not, a, map]"))
	require.Error(t, err)
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad log level", "logging: {level: verbose}"},
		{"bad log format", "logging: {format: xml}"},
		{"sample ratio above one", "telemetry: {sample_ratio: 1.5}"},
		{"missing type", "registrations: [{name: x}]"},
		{"bad lifetime", "registrations: [{type: a.B, lifetime: pooled}]"},
		{"behaviors without intercept", "registrations: [{type: a.B, behaviors: [{kind: logging}]}]"},
		{"duplicate key", "registrations: [{type: a.B}, {type: a.B}]"},
		{"unknown behavior", "registrations: [{type: a.B, intercept: true, behaviors: [{kind: caching}]}]"},
		{"missing kind", "registrations: [{type: a.B, intercept: true, behaviors: [{level: info}]}]"},
		{"authorization without policy", "registrations: [{type: a.B, intercept: true, behaviors: [{kind: authorization}]}]"},
		{"match without behavior", "registrations: [{type: a.B, intercept: true, behaviors: [{kind: match, rule: 'true'}]}]"},
		{"ratelimit without rps", "registrations: [{type: a.B, intercept: true, behaviors: [{kind: ratelimit}]}]"},
		{"retry without attempts", "registrations: [{type: a.B, intercept: true, behaviors: [{kind: retry}]}]"},
		{"timeout without duration", "registrations: [{type: a.B, intercept: true, behaviors: [{kind: timeout}]}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestAuthorizationQueryDefault(t *testing.T) {
	cfg, err := Parse([]byte(`
registrations:
  - type: a.B
    intercept: true
    behaviors:
      - kind: authorization
        policy: |
          package intercept.authz
          allow := true
`))
	require.NoError(t, err)
	assert.Equal(t, "data.intercept.authz.allow", cfg.Registrations[0].Behaviors[0].Query)
}
