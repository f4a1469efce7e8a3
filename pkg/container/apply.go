package container

import (
	"context"
	"fmt"
	"reflect"

	"github.com/polisai/polis-intercept/pkg/behaviors"
	"github.com/polisai/polis-intercept/pkg/config"
	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/engine"
	"github.com/polisai/polis-intercept/pkg/interception"
)

// stagedRegistration is a validated registration waiting to be installed.
type stagedRegistration struct {
	key     domain.BuildKey
	install func(domain.Policies)
}

// Apply replaces the configuration layer with cfg. Every registration is
// validated before anything is installed, so a failing cfg leaves the
// previous configuration in place. Singleton instances built under the
// previous configuration are dropped.
func (c *Container) Apply(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil configuration", domain.ErrInvalidUsage)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	staged := make([]stagedRegistration, 0, len(cfg.Registrations))
	for _, reg := range cfg.Registrations {
		s, err := c.stage(ctx, reg)
		if err != nil {
			return fmt.Errorf("registration %s: %w", reg.ID(), err)
		}
		staged = append(staged, s)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.applied {
		c.overlay.ClearKey(key)
	}
	c.applied = c.applied[:0]
	for _, s := range staged {
		s.install(c.overlay)
		c.applied = append(c.applied, s.key)
	}

	c.logger.Info("configuration applied", "registrations", len(staged))
	return nil
}

func (c *Container) stage(ctx context.Context, reg config.RegistrationConfig) (stagedRegistration, error) {
	t, err := c.LookupType(reg.Type)
	if err != nil {
		return stagedRegistration{}, err
	}
	key := domain.NewBuildKey(t, reg.Name)

	if _, ok := domain.GetPolicy[*domain.ConstructorSet](c.code, key); !ok {
		return stagedRegistration{}, fmt.Errorf("%w: %s is not registered in code", domain.ErrNoConstructor, key)
	}

	var lifetime engine.LifetimePolicy = engine.TransientLifetime{}
	if reg.Lifetime == config.LifetimeSingleton {
		lifetime = &engine.SingletonLifetime{}
	}
	var params *engine.ParameterPolicy
	if len(reg.Args) > 0 {
		params = engine.ValueParameters(reg.Args...)
	}

	var (
		policy     domain.TypeInterceptionPolicy
		set        *interception.BehaviorSet
		interfaces *interception.InterfaceSet
	)
	if reg.Intercept {
		if !c.interceptor.CanIntercept(t) {
			return stagedRegistration{}, fmt.Errorf("%w: no proxy registered for %s", domain.ErrNotInterceptable, t)
		}
		policy = interception.NewFixedInterceptorPolicy(c.interceptor)

		set = interception.NewBehaviorSet()
		deps := behaviors.Dependencies{
			Logger:         c.logger,
			Metrics:        c.metrics,
			TracerProvider: c.tracerProvider,
		}
		for i, bc := range reg.Behaviors {
			b, err := behaviors.FromConfig(ctx, bc, deps)
			if err != nil {
				return stagedRegistration{}, fmt.Errorf("behavior %d: %w", i, err)
			}
			set.Add(b)
		}

		ifaceTypes := make([]reflect.Type, 0, len(reg.Interfaces))
		for _, name := range reg.Interfaces {
			it, err := c.LookupType(name)
			if err != nil {
				return stagedRegistration{}, err
			}
			ifaceTypes = append(ifaceTypes, it)
		}
		if interfaces, err = interception.NewInterfaceSet(ifaceTypes...); err != nil {
			return stagedRegistration{}, err
		}
	}

	return stagedRegistration{
		key: key,
		install: func(p domain.Policies) {
			domain.SetPolicy(p, key, lifetime)
			if params != nil {
				domain.SetPolicy(p, key, params)
			}
			if policy != nil {
				// Empty sets are stored too: configuration owns every
				// interception policy kind of the keys it intercepts.
				domain.SetPolicy[domain.TypeInterceptionPolicy](p, key, policy)
				domain.SetPolicy[domain.BehaviorsPolicy](p, key, set)
				domain.SetPolicy[domain.AdditionalInterfacesPolicy](p, key, interfaces)
			}
		},
	}, nil
}
