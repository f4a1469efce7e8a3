package behaviors

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-intercept/pkg/config"
	"github.com/polisai/polis-intercept/pkg/domain"
)

func TestFromConfig(t *testing.T) {
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)
	deps := Dependencies{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics,
	}

	tests := []struct {
		name string
		cfg  config.BehaviorConfig
		want any
	}{
		{"logging", config.BehaviorConfig{Kind: "logging", Level: "info"}, &Logging{}},
		{"tracing", config.BehaviorConfig{Kind: "tracing"}, &Tracing{}},
		{"metrics", config.BehaviorConfig{Kind: "metrics"}, &Metrics{}},
		{"authorization", config.BehaviorConfig{Kind: "authorization", Policy: authzPolicy}, &Authorization{}},
		{"ratelimit", config.BehaviorConfig{Kind: "ratelimit", RPS: 10}, &RateLimit{}},
		{"circuitbreaker", config.BehaviorConfig{Kind: "circuitbreaker", MaxFailures: 3}, &CircuitBreaker{}},
		{"retry", config.BehaviorConfig{Kind: "retry", MaxRetries: 2, Backoff: time.Millisecond}, &Retry{}},
		{"timeout", config.BehaviorConfig{Kind: "timeout", Timeout: time.Second}, &Timeout{}},
		{"closeguard", config.BehaviorConfig{Kind: "CloseGuard"}, &CloseGuard{}},
		{"match", config.BehaviorConfig{
			Kind:     "match",
			Rule:     `method == "Add"`,
			Behavior: &config.BehaviorConfig{Kind: "closeguard"},
		}, &Matching{}},
		{"methods", config.BehaviorConfig{Kind: "tracing", Methods: []string{"Add"}}, &methodFilter{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := FromConfig(t.Context(), tt.cfg, deps)
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestFromConfigMetricsShareRegistry(t *testing.T) {
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)

	b, err := FromConfig(t.Context(), config.BehaviorConfig{Kind: config.BehaviorMetrics}, Dependencies{Metrics: metrics})
	require.NoError(t, err)
	assert.Same(t, metrics, b)
}

func TestFromConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.BehaviorConfig
		deps Dependencies
		err  error
	}{
		{"unknown kind", config.BehaviorConfig{Kind: "caching"}, Dependencies{}, config.ErrInvalidConfig},
		{"invalid fields", config.BehaviorConfig{Kind: "ratelimit"}, Dependencies{}, config.ErrInvalidConfig},
		{"metrics without registry", config.BehaviorConfig{Kind: "metrics"}, Dependencies{}, domain.ErrInvalidUsage},
		{"bad level", config.BehaviorConfig{Kind: "logging", Level: "loud"}, Dependencies{}, nil},
		{"bad rule", config.BehaviorConfig{
			Kind:     "match",
			Rule:     `args +`,
			Behavior: &config.BehaviorConfig{Kind: "tracing"},
		}, Dependencies{}, nil},
		{"bad policy", config.BehaviorConfig{Kind: "authorization", Policy: "not rego"}, Dependencies{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromConfig(t.Context(), tt.cfg, tt.deps)
			require.Error(t, err)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			}
		})
	}
}
