package behaviors

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-intercept/internal/governance"
	"github.com/polisai/polis-intercept/pkg/config"
	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/logging"
)

// Dependencies are the shared collaborators behaviors built from
// configuration draw on.
type Dependencies struct {
	Logger         *slog.Logger
	Metrics        *Metrics
	TracerProvider trace.TracerProvider
}

// FromConfig builds the behavior described by cfg. cfg is validated first.
func FromConfig(ctx context.Context, cfg config.BehaviorConfig, deps Dependencies) (domain.Behavior, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b, err := fromConfig(ctx, cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("%s behavior: %w", cfg.Kind, err)
	}
	return OnlyMethods(b, cfg.Methods...), nil
}

func fromConfig(ctx context.Context, cfg config.BehaviorConfig, deps Dependencies) (domain.Behavior, error) {
	switch cfg.Kind {
	case config.BehaviorLogging:
		level, err := logging.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		return NewLogging(deps.Logger, level), nil

	case config.BehaviorTracing:
		return NewTracing(deps.TracerProvider, cfg.TracerName), nil

	case config.BehaviorMetrics:
		if deps.Metrics == nil {
			return nil, fmt.Errorf("%w: no metrics registry configured", domain.ErrInvalidUsage)
		}
		return deps.Metrics, nil

	case config.BehaviorAuthorization:
		return NewAuthorization(ctx, cfg.Policy, cfg.Query)

	case config.BehaviorMatch:
		inner, err := FromConfig(ctx, *cfg.Behavior, deps)
		if err != nil {
			return nil, err
		}
		return NewMatching(cfg.Rule, inner)

	case config.BehaviorRateLimit:
		return NewRateLimit(cfg.RPS, cfg.Burst), nil

	case config.BehaviorCircuitBreaker:
		return NewCircuitBreaker(governance.CircuitBreakerConfig{
			FailureThreshold: cfg.MaxFailures,
			OpenTimeout:      cfg.OpenTimeout,
		}), nil

	case config.BehaviorRetry:
		return NewRetry(governance.RetryConfig{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.Backoff,
			Jitter:         true,
		}), nil

	case config.BehaviorTimeout:
		return NewTimeout(cfg.Timeout), nil

	case config.BehaviorCloseGuard:
		return NewCloseGuard(), nil

	default:
		return nil, fmt.Errorf("%w: unknown behavior kind %q", config.ErrInvalidConfig, cfg.Kind)
	}
}
