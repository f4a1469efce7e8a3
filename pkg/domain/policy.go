package domain

import "reflect"

// Policies is the hierarchical key→policy lookup consumed by build strategies.
//
// Policies are partitioned by kind, the reflect.Type of the policy interface (or
// pointer type) they implement. A non-exact Get searches the exact key through the
// parent chain, then the type-only key through the chain, then the per-kind
// defaults. An exact Get only consults the exact key in the receiving list.
type Policies interface {
	Get(kind reflect.Type, key BuildKey, exactOnly bool) (policy any, containing Policies, ok bool)
	Set(kind reflect.Type, key BuildKey, policy any)
	SetDefault(kind reflect.Type, policy any)
	Clear(kind reflect.Type, key BuildKey)
}

// PolicyKind returns the kind under which policies of type P are stored.
func PolicyKind[P any]() reflect.Type {
	return reflect.TypeFor[P]()
}

// GetPolicy looks up a P for key with type-only and default fallback.
func GetPolicy[P any](p Policies, key BuildKey) (P, bool) {
	policy, _, ok := FindPolicy[P](p, key)
	return policy, ok
}

// FindPolicy is GetPolicy that also returns the list the policy was found in.
func FindPolicy[P any](p Policies, key BuildKey) (P, Policies, bool) {
	var zero P
	if p == nil {
		return zero, nil, false
	}
	raw, containing, ok := p.Get(PolicyKind[P](), key, false)
	if !ok {
		return zero, nil, false
	}
	policy, ok := raw.(P)
	if !ok {
		return zero, nil, false
	}
	return policy, containing, true
}

// GetExactPolicy looks up a P stored under exactly key in p itself.
func GetExactPolicy[P any](p Policies, key BuildKey) (P, bool) {
	var zero P
	if p == nil {
		return zero, false
	}
	raw, _, ok := p.Get(PolicyKind[P](), key, true)
	if !ok {
		return zero, false
	}
	policy, ok := raw.(P)
	return policy, ok
}

// SetPolicy stores policy under key as kind P.
func SetPolicy[P any](p Policies, key BuildKey, policy P) {
	p.Set(PolicyKind[P](), key, policy)
}

// SetDefaultPolicy stores the kind-wide default used when no key matches.
func SetDefaultPolicy[P any](p Policies, policy P) {
	p.SetDefault(PolicyKind[P](), policy)
}

// ClearPolicy removes the P stored under exactly key in p.
func ClearPolicy[P any](p Policies, key BuildKey) {
	p.Clear(PolicyKind[P](), key)
}

// ConstructorSelector is the pluggable rule that picks the constructor and the
// argument resolution plan used to instantiate the build key's type.
type ConstructorSelector interface {
	SelectConstructor(bc BuildContext) (SelectedConstructor, error)
}

// ParameterResolver produces one constructor argument.
type ParameterResolver interface {
	Resolve(bc BuildContext) (any, error)
}

// SelectedConstructor is a constructor choice plus its bound argument plan,
// one resolver per parameter in order.
type SelectedConstructor struct {
	Constructor Constructor
	Resolvers   []ParameterResolver
}

// TypeInterceptionPolicy associates a build key or type with an interceptor and
// records the proxy type last created for it.
type TypeInterceptionPolicy interface {
	Interceptor(bc BuildContext) (Interceptor, error)
	ProxyType() *ProxyType
	SetProxyType(pt *ProxyType)
}

// BehaviorsPolicy yields the ordered behaviors configured for a build.
type BehaviorsPolicy interface {
	EffectiveBehaviors(bc BuildContext, interceptor Interceptor, typeToIntercept, implementationType reflect.Type) ([]Behavior, error)
}

// AdditionalInterfacesPolicy lists extra interfaces a proxy must implement.
type AdditionalInterfacesPolicy interface {
	AdditionalInterfaces() []reflect.Type
}

// EffectiveBehaviorsPolicy is the transient record of the behaviors that will be
// attached to the proxy built by the current build.
type EffectiveBehaviorsPolicy struct {
	Behaviors []Behavior
}
