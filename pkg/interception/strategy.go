package interception

import (
	"fmt"
	"reflect"

	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/engine/runtime"
	"github.com/polisai/polis-intercept/pkg/telemetry"
)

// Strategy substitutes intercepted build keys with proxy types. It belongs at
// runtime.StagePreCreation, after lifetime handling and before creation.
type Strategy struct{}

var _ runtime.Strategy = Strategy{}

// PreBuildUp detects interception for the build key, records the effective
// behaviors, obtains the proxy type and redirects constructor selection onto it.
func (Strategy) PreBuildUp(bc domain.BuildContext) error {
	if bc == nil {
		return fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
	}
	if bc.Existing() != nil {
		return nil
	}

	key := bc.BuildKey()
	policies := bc.Policies()

	policy, ok := domain.GetPolicy[domain.TypeInterceptionPolicy](policies, key)
	if !ok || policy == nil {
		return nil
	}
	interceptor, err := policy.Interceptor(bc)
	if err != nil {
		return err
	}
	typeToIntercept := key.Type
	if interceptor == nil || !interceptor.CanIntercept(typeToIntercept) {
		bc.Logger().Debug("interceptor declined type", "type", typeToIntercept.String())
		return nil
	}

	effective, err := effectiveBehaviors(bc, interceptor, typeToIntercept)
	if err != nil {
		return err
	}

	var extra []reflect.Type
	if ifaces, ok := domain.GetPolicy[domain.AdditionalInterfacesPolicy](policies, key); ok && ifaces != nil {
		extra = ifaces.AdditionalInterfaces()
	}
	required := AllAdditionalInterfaces(effective, extra)

	domain.SetPolicy(policies, key, &domain.EffectiveBehaviorsPolicy{Behaviors: effective})

	proxyType, err := proxyTypeFor(policy, interceptor, typeToIntercept, required)
	if err != nil {
		return err
	}
	if err := SetPolicyForInterceptingType(bc, proxyType); err != nil {
		return err
	}

	bc.Logger().Debug("build intercepted",
		"proxy_type", proxyType.String(),
		"behaviors", len(effective),
		"interfaces", len(required),
	)
	telemetry.RecordInterception(bc.Context(), telemetry.InterceptionMetrics{
		Key:        key.String(),
		ProxyType:  proxyType.String(),
		Behaviors:  len(effective),
		Interfaces: len(required),
	})
	return nil
}

// PostBuildUp attaches the behaviors recorded for this build to the proxy
// instance, in recorded order. The record is consumed.
func (Strategy) PostBuildUp(bc domain.BuildContext) error {
	if bc == nil {
		return fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
	}

	proxy, ok := bc.Existing().(domain.InterceptingProxy)
	if !ok {
		return nil
	}
	key := bc.BuildKey()
	record, ok := domain.GetExactPolicy[*domain.EffectiveBehaviorsPolicy](bc.Policies(), key)
	if !ok || record == nil {
		return nil
	}
	domain.ClearPolicy[*domain.EffectiveBehaviorsPolicy](bc.Policies(), key)

	for _, b := range record.Behaviors {
		proxy.AddInterceptionBehavior(b)
	}
	telemetry.RecordBehaviorsAttached(bc.Context(), key.String(), len(record.Behaviors))
	return nil
}

// effectiveBehaviors returns the configured behaviors that will execute, in order.
func effectiveBehaviors(bc domain.BuildContext, interceptor domain.Interceptor, typeToIntercept reflect.Type) ([]domain.Behavior, error) {
	policy, ok := domain.GetPolicy[domain.BehaviorsPolicy](bc.Policies(), bc.BuildKey())
	if !ok || policy == nil {
		return nil, nil
	}
	candidates, err := policy.EffectiveBehaviors(bc, interceptor, typeToIntercept, typeToIntercept)
	if err != nil {
		return nil, err
	}

	effective := make([]domain.Behavior, 0, len(candidates))
	for _, b := range candidates {
		if b != nil && b.WillExecute() {
			effective = append(effective, b)
		}
	}
	return effective, nil
}

// proxyTypeFor asks the interceptor for the proxy type on every build so a
// replaced proxy definition, or a different resolved interceptor, applies to
// the next build. The policy records the latest result.
func proxyTypeFor(policy domain.TypeInterceptionPolicy, interceptor domain.Interceptor, typeToIntercept reflect.Type, required []reflect.Type) (*domain.ProxyType, error) {
	proxyType, err := interceptor.CreateProxyType(typeToIntercept, required...)
	if err != nil {
		return nil, fmt.Errorf("create proxy type for %s: %w", typeToIntercept, err)
	}
	if proxyType == nil {
		return nil, fmt.Errorf("%w: interceptor returned no proxy type for %s", domain.ErrNotInterceptable, typeToIntercept)
	}
	if policy.ProxyType() != proxyType {
		policy.SetProxyType(proxyType)
	}
	return proxyType, nil
}
