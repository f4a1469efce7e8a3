// Package interception substitutes intercepted build keys with proxy types.
//
// Strategy is the build chain stage that detects interception, records the
// behaviors that will run for the current build, requests a proxy type and
// redirects constructor selection onto it. On the way back up it attaches the
// recorded behaviors to the freshly built proxy.
//
// Policies consulted per build key, each with independent type-only fallback:
//
//   - domain.TypeInterceptionPolicy: FixedInterceptorPolicy, ResolvedInterceptorPolicy
//   - domain.BehaviorsPolicy: BehaviorSet
//   - domain.AdditionalInterfacesPolicy: InterfaceSet
//
// ProxyConstructorSelector is the single override node wrapped around the
// native constructor selector.
package interception
