// Package container is the registration surface over the build engine. It
// wires lifetime management, interception and creation into one strategy
// chain and lets callers register types, proxies and interception both in
// code and from configuration.
package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-intercept/pkg/behaviors"
	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/engine"
	"github.com/polisai/polis-intercept/pkg/engine/runtime"
	"github.com/polisai/polis-intercept/pkg/interception"
	"github.com/polisai/polis-intercept/pkg/proxy"
	"github.com/polisai/polis-intercept/pkg/storage"
)

// ErrUnknownType is returned when a type name is not in the catalog.
var ErrUnknownType = errors.New("unknown type")

// Strategy names in the build chain.
const (
	StrategyLifetime     = "lifetime"
	StrategyInterception = "interception"
	StrategyCreation     = "creation"
)

// Config holds dependencies for creating a Container.
type Config struct {
	Logger *slog.Logger
	// Registry receives behavior call metrics. Nil creates a private registry.
	Registry *prometheus.Registry
	// TracerProvider backs tracing behaviors. Nil uses the global provider.
	TracerProvider trace.TracerProvider
}

// Container registers types and builds them through the strategy chain.
//
// Policies live in two layers: registrations made in code, and an overlay
// owned by Apply that is replaced wholesale on every configuration change.
type Container struct {
	logger         *slog.Logger
	code           *storage.PolicyList
	overlay        *storage.PolicyList
	builder        *engine.Builder
	interceptor    *proxy.Interceptor
	metrics        *behaviors.Metrics
	tracerProvider trace.TracerProvider

	mu      sync.RWMutex
	types   map[string]reflect.Type
	applied []domain.BuildKey
}

// New creates a container with the standard strategy chain.
func New(cfg Config) (*Container, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics, err := behaviors.NewMetrics(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("register behavior metrics: %w", err)
	}

	code := storage.NewPolicyList(nil)
	overlay := storage.NewPolicyList(code)
	domain.SetDefaultPolicy[domain.ConstructorSelector](code, engine.DefaultConstructorSelector{})

	builder := engine.NewBuilder(engine.BuilderConfig{Policies: overlay, Logger: logger})
	builder.AddStrategy(runtime.StageLifetime, StrategyLifetime, engine.LifetimeStrategy{})
	builder.AddStrategy(runtime.StagePreCreation, StrategyInterception, interception.Strategy{})
	builder.AddStrategy(runtime.StageCreation, StrategyCreation, engine.CreationStrategy{})

	c := &Container{
		logger:         logger,
		code:           code,
		overlay:        overlay,
		builder:        builder,
		interceptor:    proxy.NewInterceptor(logger),
		metrics:        metrics,
		tracerProvider: cfg.TracerProvider,
		types:          make(map[string]reflect.Type),
	}
	c.Alias("io.Closer", reflect.TypeFor[io.Closer]())

	if err := c.Register(InterceptorKey, Instance(c.interceptor)); err != nil {
		return nil, err
	}
	return c, nil
}

// InterceptorKey resolves the container's proxy interceptor.
var InterceptorKey = domain.KeyFor[domain.Interceptor]("")

// Interceptor returns the container's proxy interceptor.
func (c *Container) Interceptor() *proxy.Interceptor { return c.interceptor }

// Metrics returns the call metrics shared by metrics behaviors.
func (c *Container) Metrics() *behaviors.Metrics { return c.metrics }

// Strategies lists the build chain in execution order.
func (c *Container) Strategies() []engine.StrategyInfo { return c.builder.Strategies() }

// Alias adds t to the type catalog under name. Registered types are catalogued
// automatically under their Go type name.
func (c *Container) Alias(name string, t reflect.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[name] = t
}

// LookupType finds a catalogued type by name.
func (c *Container) LookupType(name string) (reflect.Type, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// Register records how to build key. At least one constructor is required
// and every constructor must produce a value assignable to key's type.
func (c *Container) Register(key domain.BuildKey, opts ...RegisterOption) error {
	if key.Type == nil {
		return fmt.Errorf("%w: build key without type", domain.ErrInvalidUsage)
	}

	r := &registration{lifetime: engine.TransientLifetime{}}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return fmt.Errorf("register %s: %w", key, err)
		}
	}
	if len(r.constructors) == 0 {
		return fmt.Errorf("register %s: %w", key, domain.ErrNoConstructor)
	}

	set := domain.NewConstructorSet()
	for _, ctor := range r.constructors {
		if !ctor.Declaring().AssignableTo(key.Type) {
			return fmt.Errorf("register %s: %w: %s does not produce %s", key, domain.ErrInvalidUsage, ctor, key.Type)
		}
		set.Add(ctor)
	}

	domain.SetPolicy(c.code, key, set)
	domain.SetPolicy[engine.LifetimePolicy](c.code, key, r.lifetime)
	if r.params != nil {
		domain.SetPolicy(c.code, key, r.params)
	} else {
		domain.ClearPolicy[*engine.ParameterPolicy](c.code, key)
	}
	c.Alias(key.Type.String(), key.Type)

	c.logger.Debug("type registered", "build_key", key.String(), "constructors", set.Len())
	return nil
}

// RegisterProxy declares a proxy struct to the container's interceptor.
func (c *Container) RegisterProxy(def proxy.Definition) error {
	if err := c.interceptor.Register(def); err != nil {
		return err
	}
	c.Alias(def.Target.String(), def.Target)
	return nil
}

// Intercept enables interception for key, replacing any earlier
// interception set up in code for it.
func (c *Container) Intercept(key domain.BuildKey, opts ...InterceptOption) error {
	if key.Type == nil {
		return fmt.Errorf("%w: build key without type", domain.ErrInvalidUsage)
	}

	in := &interceptSetup{behaviors: interception.NewBehaviorSet()}
	for _, opt := range opts {
		if err := opt(in); err != nil {
			return fmt.Errorf("intercept %s: %w", key, err)
		}
	}

	policy := in.policy
	if policy == nil {
		policy = interception.NewFixedInterceptorPolicy(c.interceptor)
	}
	interfaces, err := interception.NewInterfaceSet(in.interfaces...)
	if err != nil {
		return fmt.Errorf("intercept %s: %w", key, err)
	}

	installInterception(c.code, key, policy, in.behaviors, interfaces)
	c.logger.Debug("interception enabled", "build_key", key.String(),
		"behaviors", in.behaviors.Len(), "interfaces", len(in.interfaces))
	return nil
}

func installInterception(p domain.Policies, key domain.BuildKey, policy domain.TypeInterceptionPolicy, behaviors *interception.BehaviorSet, interfaces *interception.InterfaceSet) {
	domain.SetPolicy[domain.TypeInterceptionPolicy](p, key, policy)
	if behaviors.Len() > 0 {
		domain.SetPolicy[domain.BehaviorsPolicy](p, key, behaviors)
	} else {
		domain.ClearPolicy[domain.BehaviorsPolicy](p, key)
	}
	if len(interfaces.AdditionalInterfaces()) > 0 {
		domain.SetPolicy[domain.AdditionalInterfacesPolicy](p, key, interfaces)
	} else {
		domain.ClearPolicy[domain.AdditionalInterfacesPolicy](p, key)
	}
}

// BuildUp builds key, configuring existing when it is non-nil.
func (c *Container) BuildUp(ctx context.Context, key domain.BuildKey, existing any) (any, error) {
	return c.builder.BuildUp(ctx, key, existing)
}

// Resolve builds the T registered under name.
func Resolve[T any](ctx context.Context, c *Container, name string) (T, error) {
	var zero T
	key := domain.KeyFor[T](name)
	value, err := c.BuildUp(ctx, key, nil)
	if err != nil {
		return zero, err
	}
	out, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s built %T", domain.ErrUnexpectedType, key, value)
	}
	return out, nil
}
