package container

import (
	"reflect"
	"slices"

	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/engine"
	"github.com/polisai/polis-intercept/pkg/interception"
	"github.com/polisai/polis-intercept/pkg/storage"
)

// Registration sources reported by Describe.
const (
	SourceCode   = "code"
	SourceConfig = "config"
)

// RegistrationInfo summarizes how a build key is configured.
type RegistrationInfo struct {
	Key          string   `json:"key" yaml:"key"`
	Source       string   `json:"source" yaml:"source"`
	Lifetime     string   `json:"lifetime" yaml:"lifetime"`
	Constructors []string `json:"constructors,omitempty" yaml:"constructors,omitempty"`
	Arguments    int      `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Intercepted  bool     `json:"intercepted" yaml:"intercepted"`
	Behaviors    int      `json:"behaviors,omitempty" yaml:"behaviors,omitempty"`
	Interfaces   []string `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	// ProxyType is filled in once the key has been built with interception.
	ProxyType       string   `json:"proxy_type,omitempty" yaml:"proxy_type,omitempty"`
	ProxyInterfaces []string `json:"proxy_interfaces,omitempty" yaml:"proxy_interfaces,omitempty"`
}

// Describe lists every key holding constructors or interception, sorted by key.
func (c *Container) Describe() []RegistrationInfo {
	var keys []domain.BuildKey
	for _, list := range []*storage.PolicyList{c.code, c.overlay} {
		for _, kind := range []reflect.Type{
			domain.PolicyKind[*domain.ConstructorSet](),
			domain.PolicyKind[domain.TypeInterceptionPolicy](),
			domain.PolicyKind[engine.LifetimePolicy](),
		} {
			for _, k := range list.Keys(kind) {
				if !slices.Contains(keys, k) {
					keys = append(keys, k)
				}
			}
		}
	}
	slices.SortFunc(keys, func(a, b domain.BuildKey) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})

	out := make([]RegistrationInfo, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.describe(key))
	}
	return out
}

func (c *Container) describe(key domain.BuildKey) RegistrationInfo {
	p := c.overlay
	info := RegistrationInfo{
		Key:      key.String(),
		Source:   SourceCode,
		Lifetime: lifetimeName(p, key),
	}
	if _, ok := domain.GetExactPolicy[engine.LifetimePolicy](c.overlay, key); ok {
		info.Source = SourceConfig
	}

	if set, ok := domain.GetPolicy[*domain.ConstructorSet](p, key); ok {
		for _, ctor := range set.All() {
			info.Constructors = append(info.Constructors, ctor.String())
		}
	}
	if params, ok := domain.GetPolicy[*engine.ParameterPolicy](p, key); ok {
		info.Arguments = len(params.Resolvers)
	}

	policy, ok := domain.GetPolicy[domain.TypeInterceptionPolicy](p, key)
	if !ok {
		return info
	}
	info.Intercepted = true
	if set, ok := domain.GetPolicy[domain.BehaviorsPolicy](p, key); ok {
		if bs, ok := set.(*interception.BehaviorSet); ok {
			info.Behaviors = bs.Len()
		}
	}
	if ifaces, ok := domain.GetPolicy[domain.AdditionalInterfacesPolicy](p, key); ok {
		info.Interfaces = typeNames(ifaces.AdditionalInterfaces())
	}
	if pt := policy.ProxyType(); pt != nil {
		info.ProxyType = pt.String()
		info.ProxyInterfaces = typeNames(pt.Interfaces())
	}
	return info
}

func lifetimeName(p domain.Policies, key domain.BuildKey) string {
	lifetime, _ := domain.GetPolicy[engine.LifetimePolicy](p, key)
	if _, ok := lifetime.(*engine.SingletonLifetime); ok {
		return "singleton"
	}
	return "transient"
}

func typeNames(types []reflect.Type) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
