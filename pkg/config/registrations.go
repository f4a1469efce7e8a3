package config

import (
	"fmt"
	"strings"
	"time"
)

// Lifetimes understood by RegistrationConfig.
const (
	LifetimeTransient = "transient"
	LifetimeSingleton = "singleton"
)

// Behavior kinds understood by BehaviorConfig.
const (
	BehaviorLogging        = "logging"
	BehaviorTracing        = "tracing"
	BehaviorMetrics        = "metrics"
	BehaviorAuthorization  = "authorization"
	BehaviorMatch          = "match"
	BehaviorRateLimit      = "ratelimit"
	BehaviorCircuitBreaker = "circuitbreaker"
	BehaviorRetry          = "retry"
	BehaviorTimeout        = "timeout"
	BehaviorCloseGuard     = "closeguard"
)

// RegistrationConfig configures a type already known to the container by name.
type RegistrationConfig struct {
	// Type is the catalog name of the build key type, e.g. "demo.Calculator".
	Type string `yaml:"type"`
	Name string `yaml:"name,omitempty"`
	// Lifetime is transient (default) or singleton.
	Lifetime string `yaml:"lifetime,omitempty"`
	// Args pins constructor arguments positionally.
	Args []any `yaml:"args,omitempty"`
	// Intercept enables proxy substitution for the key.
	Intercept  bool             `yaml:"intercept"`
	Interfaces []string         `yaml:"interfaces,omitempty"`
	Behaviors  []BehaviorConfig `yaml:"behaviors,omitempty"`
}

// ID renders the registration's build key as "type" or "type[name]".
func (r RegistrationConfig) ID() string {
	if r.Name == "" {
		return r.Type
	}
	return r.Type + "[" + r.Name + "]"
}

// Validate applies defaults and checks the registration.
func (r *RegistrationConfig) Validate() error {
	r.Type = strings.TrimSpace(r.Type)
	if r.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidConfig)
	}

	switch strings.ToLower(strings.TrimSpace(r.Lifetime)) {
	case "", LifetimeTransient:
		r.Lifetime = LifetimeTransient
	case LifetimeSingleton:
		r.Lifetime = LifetimeSingleton
	default:
		return fmt.Errorf("%w: %s: unknown lifetime %q", ErrInvalidConfig, r.ID(), r.Lifetime)
	}

	if !r.Intercept && (len(r.Behaviors) > 0 || len(r.Interfaces) > 0) {
		return fmt.Errorf("%w: %s: behaviors and interfaces require intercept: true", ErrInvalidConfig, r.ID())
	}
	for i := range r.Behaviors {
		if err := r.Behaviors[i].Validate(); err != nil {
			return fmt.Errorf("%s behavior %d: %w", r.ID(), i, err)
		}
	}
	return nil
}

// BehaviorConfig describes one interception behavior. Only the fields relevant
// to Kind are read.
type BehaviorConfig struct {
	Kind string `yaml:"kind"`
	// Methods restricts the behavior to the named methods. Empty means all.
	Methods []string `yaml:"methods,omitempty"`

	// logging
	Level string `yaml:"level,omitempty"`
	// tracing
	TracerName string `yaml:"tracer,omitempty"`
	// authorization: a rego module and the boolean query to evaluate.
	Policy string `yaml:"policy,omitempty"`
	Query  string `yaml:"query,omitempty"`
	// match: a CEL rule gating the nested behavior.
	Rule     string          `yaml:"rule,omitempty"`
	Behavior *BehaviorConfig `yaml:"behavior,omitempty"`
	// ratelimit
	RPS   float64 `yaml:"rps,omitempty"`
	Burst int     `yaml:"burst,omitempty"`
	// circuitbreaker
	MaxFailures int           `yaml:"max_failures,omitempty"`
	OpenTimeout time.Duration `yaml:"open_timeout,omitempty"`
	// retry
	MaxRetries int           `yaml:"max_retries,omitempty"`
	Backoff    time.Duration `yaml:"backoff,omitempty"`
	// timeout
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Validate checks the fields required by Kind.
func (b *BehaviorConfig) Validate() error {
	b.Kind = strings.ToLower(strings.TrimSpace(b.Kind))
	switch b.Kind {
	case BehaviorLogging, BehaviorTracing, BehaviorMetrics, BehaviorCloseGuard:
	case BehaviorAuthorization:
		if strings.TrimSpace(b.Policy) == "" {
			return fmt.Errorf("%w: authorization requires policy", ErrInvalidConfig)
		}
		if strings.TrimSpace(b.Query) == "" {
			b.Query = "data.intercept.authz.allow"
		}
	case BehaviorMatch:
		if strings.TrimSpace(b.Rule) == "" || b.Behavior == nil {
			return fmt.Errorf("%w: match requires rule and behavior", ErrInvalidConfig)
		}
		if err := b.Behavior.Validate(); err != nil {
			return fmt.Errorf("match behavior: %w", err)
		}
	case BehaviorRateLimit:
		if b.RPS <= 0 {
			return fmt.Errorf("%w: ratelimit requires rps > 0", ErrInvalidConfig)
		}
		if b.Burst <= 0 {
			b.Burst = 1
		}
	case BehaviorCircuitBreaker:
		if b.MaxFailures < 0 || b.OpenTimeout < 0 {
			return fmt.Errorf("%w: circuitbreaker thresholds must not be negative", ErrInvalidConfig)
		}
	case BehaviorRetry:
		if b.MaxRetries <= 0 {
			return fmt.Errorf("%w: retry requires max_retries > 0", ErrInvalidConfig)
		}
	case BehaviorTimeout:
		if b.Timeout <= 0 {
			return fmt.Errorf("%w: timeout requires a positive duration", ErrInvalidConfig)
		}
	case "":
		return fmt.Errorf("%w: behavior kind is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown behavior kind %q", ErrInvalidConfig, b.Kind)
	}
	return nil
}
