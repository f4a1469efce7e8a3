// Package proxy is the wrapper-struct proxy backend.
//
// Go cannot synthesise types at runtime, so proxies are hand written (or
// generated ahead of time) structs that implement the intercepted interface,
// embed Base and route every method through Base.Invoke. A Definition declares
// such a struct together with constructors mirroring the real implementation's
// constructors; Interceptor turns definitions into domain.ProxyType values.
package proxy
