package proxy

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// Interceptor implements domain.Interceptor over registered proxy definitions.
type Interceptor struct {
	logger *slog.Logger

	mu          sync.RWMutex
	definitions map[reflect.Type]Definition
	cache       map[cacheKey]*domain.ProxyType
}

var _ domain.Interceptor = (*Interceptor)(nil)

type cacheKey struct {
	target     reflect.Type
	interfaces string
}

// NewInterceptor returns an interceptor with no definitions.
func NewInterceptor(logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interceptor{
		logger:      logger,
		definitions: make(map[reflect.Type]Definition),
		cache:       make(map[cacheKey]*domain.ProxyType),
	}
}

// Register adds or replaces the definition for def.Target. Replacing drops the
// proxy types cached for the previous definition.
func (i *Interceptor) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.definitions[def.Target] = def
	for key := range i.cache {
		if key.target == def.Target {
			delete(i.cache, key)
		}
	}
	i.logger.Debug("proxy registered", "target", def.Target.String(), "proxy_type", def.Proxy.String())
	return nil
}

// Definition returns the definition registered for target.
func (i *Interceptor) Definition(target reflect.Type) (Definition, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	def, ok := i.definitions[target]
	return def, ok
}

// Targets lists the intercepted types, sorted by name.
func (i *Interceptor) Targets() []reflect.Type {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]reflect.Type, 0, len(i.definitions))
	for t := range i.definitions {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b reflect.Type) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// CanIntercept reports whether a proxy is registered for t.
func (i *Interceptor) CanIntercept(t reflect.Type) bool {
	_, ok := i.Definition(t)
	return ok
}

// CreateProxyType returns the proxy type for t implementing every additional
// interface. Results are cached per target and interface set.
func (i *Interceptor) CreateProxyType(t reflect.Type, additionalInterfaces ...reflect.Type) (*domain.ProxyType, error) {
	def, ok := i.Definition(t)
	if !ok {
		return nil, fmt.Errorf("%w: no proxy registered for %v", domain.ErrNotInterceptable, t)
	}

	ifaces, err := normalizeInterfaces(def.Proxy, additionalInterfaces)
	if err != nil {
		return nil, err
	}
	key := cacheKey{target: t, interfaces: joinTypes(ifaces)}

	i.mu.Lock()
	defer i.mu.Unlock()
	if cached, ok := i.cache[key]; ok {
		return cached, nil
	}
	pt := domain.NewProxyType(def.Proxy, t, ifaces, domain.NewConstructorSet(def.Constructors...))
	i.cache[key] = pt
	i.logger.Debug("proxy type created", "target", t.String(), "proxy_type", pt.String(), "interfaces", key.interfaces)
	return pt, nil
}

// normalizeInterfaces validates, dedupes and sorts the requested interfaces.
func normalizeInterfaces(proxy reflect.Type, requested []reflect.Type) ([]reflect.Type, error) {
	out := make([]reflect.Type, 0, len(requested))
	for _, iface := range requested {
		if iface == nil || iface.Kind() != reflect.Interface {
			return nil, fmt.Errorf("%w: %v", domain.ErrNotInterface, iface)
		}
		if !proxy.Implements(iface) {
			return nil, fmt.Errorf("%w: %s does not implement %s", domain.ErrInterfaceNotImplemented, proxy, iface)
		}
		if !slices.Contains(out, iface) {
			out = append(out, iface)
		}
	}
	slices.SortFunc(out, func(a, b reflect.Type) int { return strings.Compare(a.String(), b.String()) })
	return out, nil
}

func joinTypes(types []reflect.Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ",")
}
