// Package behaviors provides interception behaviors that can be attached to
// proxies: logging, tracing, metrics, authorization, rule matching, rate
// limiting, circuit breaking, retries, timeouts and close guarding.
//
// Every behavior implements domain.Behavior. Behaviors are shared between
// all proxies they are attached to, so per-call state lives in the
// invocation and per-target state is keyed by the invocation's target.
package behaviors
