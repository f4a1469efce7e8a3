// Package governance holds the runtime safety controls behind the resilience
// behaviors: a consecutive-failure circuit breaker and an exponential backoff
// retry policy. Both are keyed by the caller (usually one per intercepted
// method) and safe for concurrent use.
package governance
