package interception

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// proxyCache holds the proxy type lazily created for an interception policy.
type proxyCache struct {
	proxy atomic.Pointer[domain.ProxyType]
}

func (c *proxyCache) ProxyType() *domain.ProxyType { return c.proxy.Load() }

func (c *proxyCache) SetProxyType(pt *domain.ProxyType) { c.proxy.Store(pt) }

// FixedInterceptorPolicy intercepts with a fixed interceptor instance.
type FixedInterceptorPolicy struct {
	proxyCache
	interceptor domain.Interceptor
}

// NewFixedInterceptorPolicy returns a policy always answering interceptor.
func NewFixedInterceptorPolicy(interceptor domain.Interceptor) *FixedInterceptorPolicy {
	return &FixedInterceptorPolicy{interceptor: interceptor}
}

// Interceptor returns the configured interceptor.
func (p *FixedInterceptorPolicy) Interceptor(domain.BuildContext) (domain.Interceptor, error) {
	return p.interceptor, nil
}

// ResolvedInterceptorPolicy builds its interceptor from the container on every
// lookup, so the interceptor's own lifetime applies.
type ResolvedInterceptorPolicy struct {
	proxyCache
	key domain.BuildKey
}

// NewResolvedInterceptorPolicy resolves the interceptor registered under key.
func NewResolvedInterceptorPolicy(key domain.BuildKey) *ResolvedInterceptorPolicy {
	return &ResolvedInterceptorPolicy{key: key}
}

// Key returns the interceptor's build key.
func (p *ResolvedInterceptorPolicy) Key() domain.BuildKey { return p.key }

// Interceptor resolves the interceptor through bc.
func (p *ResolvedInterceptorPolicy) Interceptor(bc domain.BuildContext) (domain.Interceptor, error) {
	if bc == nil {
		return nil, fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
	}
	value, err := bc.Resolve(p.key)
	if err != nil {
		return nil, fmt.Errorf("resolve interceptor %s: %w", p.key, err)
	}
	interceptor, ok := value.(domain.Interceptor)
	if !ok {
		return nil, fmt.Errorf("%w: %s resolved to %T, want domain.Interceptor", domain.ErrUnexpectedType, p.key, value)
	}
	return interceptor, nil
}

var (
	_ domain.TypeInterceptionPolicy = (*FixedInterceptorPolicy)(nil)
	_ domain.TypeInterceptionPolicy = (*ResolvedInterceptorPolicy)(nil)
)

// Applicable is optionally implemented by behaviors that only apply to some
// intercepted types.
type Applicable interface {
	AppliesTo(typeToIntercept, implementationType reflect.Type) bool
}

// behaviorEntry is either a behavior instance or the build key of one.
type behaviorEntry struct {
	behavior domain.Behavior
	key      domain.BuildKey
}

// BehaviorSet is an ordered list of behaviors, given as instances or resolved
// from the container by key at build time.
type BehaviorSet struct {
	mu      sync.RWMutex
	entries []behaviorEntry
}

var _ domain.BehaviorsPolicy = (*BehaviorSet)(nil)

// NewBehaviorSet returns a set holding behaviors in order.
func NewBehaviorSet(behaviors ...domain.Behavior) *BehaviorSet {
	s := &BehaviorSet{}
	for _, b := range behaviors {
		s.Add(b)
	}
	return s
}

// Add appends a behavior instance. Nil is ignored.
func (s *BehaviorSet) Add(b domain.Behavior) {
	if b == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, behaviorEntry{behavior: b})
}

// AddKey appends a behavior resolved from key at build time.
func (s *BehaviorSet) AddKey(key domain.BuildKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, behaviorEntry{key: key})
}

// Len returns the number of entries.
func (s *BehaviorSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EffectiveBehaviors resolves the entries in order and drops behaviors that
// declare themselves inapplicable to the intercepted type. WillExecute filtering
// is left to the caller.
func (s *BehaviorSet) EffectiveBehaviors(bc domain.BuildContext, _ domain.Interceptor, typeToIntercept, implementationType reflect.Type) ([]domain.Behavior, error) {
	s.mu.RLock()
	entries := slices.Clone(s.entries)
	s.mu.RUnlock()

	out := make([]domain.Behavior, 0, len(entries))
	for _, entry := range entries {
		b := entry.behavior
		if b == nil {
			if bc == nil {
				return nil, fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
			}
			value, err := bc.Resolve(entry.key)
			if err != nil {
				return nil, fmt.Errorf("resolve behavior %s: %w", entry.key, err)
			}
			resolved, ok := value.(domain.Behavior)
			if !ok {
				return nil, fmt.Errorf("%w: %s resolved to %T", domain.ErrNotABehavior, entry.key, value)
			}
			b = resolved
		}
		if a, ok := b.(Applicable); ok && !a.AppliesTo(typeToIntercept, implementationType) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// InterfaceSet lists additional interfaces a proxy must implement.
type InterfaceSet struct {
	interfaces []reflect.Type
}

var _ domain.AdditionalInterfacesPolicy = (*InterfaceSet)(nil)

// NewInterfaceSet validates that every type is an interface. Duplicates are dropped.
func NewInterfaceSet(interfaces ...reflect.Type) (*InterfaceSet, error) {
	s := &InterfaceSet{}
	for _, iface := range interfaces {
		if iface == nil || iface.Kind() != reflect.Interface {
			return nil, fmt.Errorf("%w: %v", domain.ErrNotInterface, iface)
		}
		if !slices.Contains(s.interfaces, iface) {
			s.interfaces = append(s.interfaces, iface)
		}
	}
	return s, nil
}

// AdditionalInterfaces returns a copy of the interface list.
func (s *InterfaceSet) AdditionalInterfaces() []reflect.Type {
	return slices.Clone(s.interfaces)
}
