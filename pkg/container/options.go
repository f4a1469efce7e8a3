package container

import (
	"fmt"
	"reflect"

	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/engine"
	"github.com/polisai/polis-intercept/pkg/interception"
)

type registration struct {
	constructors []domain.Constructor
	params       *engine.ParameterPolicy
	lifetime     engine.LifetimePolicy
}

// RegisterOption configures a registration.
type RegisterOption func(*registration) error

// Constructor adds a constructor function of the form func(...) T or
// func(...) (T, error).
func Constructor(fn any) RegisterOption {
	return func(r *registration) error {
		ctor, err := domain.ConstructorOf(fn)
		if err != nil {
			return err
		}
		r.constructors = append(r.constructors, ctor)
		return nil
	}
}

// Instance registers a fixed value as a singleton.
func Instance(v any) RegisterOption {
	return func(r *registration) error {
		if v == nil {
			return fmt.Errorf("%w: nil instance", domain.ErrInvalidUsage)
		}
		r.constructors = append(r.constructors, domain.NewConstructor(reflect.TypeOf(v), nil, func([]any) (any, error) {
			return v, nil
		}))
		r.lifetime = &engine.SingletonLifetime{}
		return nil
	}
}

// Args pins constructor arguments positionally. Nil entries fall back to
// dependency resolution.
func Args(values ...any) RegisterOption {
	return func(r *registration) error {
		r.params = engine.ValueParameters(values...)
		for i, v := range values {
			if v == nil {
				r.params.Resolvers[i] = nil
			}
		}
		return nil
	}
}

// Singleton keeps the first built instance.
func Singleton() RegisterOption {
	return func(r *registration) error {
		r.lifetime = &engine.SingletonLifetime{}
		return nil
	}
}

// Transient builds a new instance per request. This is the default.
func Transient() RegisterOption {
	return func(r *registration) error {
		r.lifetime = engine.TransientLifetime{}
		return nil
	}
}

type interceptSetup struct {
	policy     domain.TypeInterceptionPolicy
	behaviors  *interception.BehaviorSet
	interfaces []reflect.Type
}

// InterceptOption configures interception for a key.
type InterceptOption func(*interceptSetup) error

// UsingInterceptor intercepts with a fixed interceptor instead of the
// container's proxy interceptor.
func UsingInterceptor(interceptor domain.Interceptor) InterceptOption {
	return func(in *interceptSetup) error {
		if interceptor == nil {
			return fmt.Errorf("%w: nil interceptor", domain.ErrInvalidUsage)
		}
		in.policy = interception.NewFixedInterceptorPolicy(interceptor)
		return nil
	}
}

// UsingInterceptorKey resolves the interceptor from the container on every build.
func UsingInterceptorKey(key domain.BuildKey) InterceptOption {
	return func(in *interceptSetup) error {
		in.policy = interception.NewResolvedInterceptorPolicy(key)
		return nil
	}
}

// WithBehaviors appends behavior instances in order.
func WithBehaviors(behaviors ...domain.Behavior) InterceptOption {
	return func(in *interceptSetup) error {
		for _, b := range behaviors {
			in.behaviors.Add(b)
		}
		return nil
	}
}

// WithBehaviorKeys appends behaviors resolved from the container at build time.
func WithBehaviorKeys(keys ...domain.BuildKey) InterceptOption {
	return func(in *interceptSetup) error {
		for _, k := range keys {
			in.behaviors.AddKey(k)
		}
		return nil
	}
}

// WithInterfaces requires the proxy to implement the given interfaces.
func WithInterfaces(interfaces ...reflect.Type) InterceptOption {
	return func(in *interceptSetup) error {
		in.interfaces = append(in.interfaces, interfaces...)
		return nil
	}
}
