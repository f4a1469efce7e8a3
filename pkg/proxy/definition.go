package proxy

import (
	"fmt"
	"reflect"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// Definition describes a proxy struct standing in for Target.
type Definition struct {
	// Target is the intercepted interface type.
	Target reflect.Type
	// Proxy is the Go type of proxy instances, usually a pointer to a struct.
	Proxy reflect.Type
	// Constructors build Proxy values. Their signatures must mirror the
	// constructors registered for the real implementation.
	Constructors []domain.Constructor
}

// DefinitionFor declares proxy P for interface T from plain constructor functions.
func DefinitionFor[T, P any](ctors ...any) (Definition, error) {
	def := Definition{
		Target: reflect.TypeFor[T](),
		Proxy:  reflect.TypeFor[P](),
	}
	for i, fn := range ctors {
		ctor, err := domain.ConstructorOf(fn)
		if err != nil {
			return Definition{}, fmt.Errorf("proxy %s constructor %d: %w", def.Proxy, i, err)
		}
		def.Constructors = append(def.Constructors, ctor)
	}
	return def, def.Validate()
}

var interceptingProxyType = reflect.TypeFor[domain.InterceptingProxy]()

// Validate checks that the proxy can substitute the target and that every
// constructor builds the proxy type.
func (d Definition) Validate() error {
	if d.Target == nil || d.Proxy == nil {
		return fmt.Errorf("%w: proxy definition needs target and proxy types", domain.ErrInvalidUsage)
	}
	if d.Target.Kind() != reflect.Interface {
		return fmt.Errorf("%w: %s is not an interface", domain.ErrNotInterceptable, d.Target)
	}
	if !d.Proxy.Implements(d.Target) {
		return fmt.Errorf("%w: %s does not implement %s", domain.ErrInterfaceNotImplemented, d.Proxy, d.Target)
	}
	if !d.Proxy.Implements(interceptingProxyType) {
		return fmt.Errorf("%w: %s does not implement domain.InterceptingProxy", domain.ErrInterfaceNotImplemented, d.Proxy)
	}
	if len(d.Constructors) == 0 {
		return fmt.Errorf("%w: proxy %s declares no constructors", domain.ErrNoConstructor, d.Proxy)
	}
	for _, ctor := range d.Constructors {
		if ctor.Declaring() != d.Proxy {
			return fmt.Errorf("%w: constructor %s does not build %s", domain.ErrInvalidUsage, ctor, d.Proxy)
		}
	}
	return nil
}
