package behaviors

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/polisai/polis-intercept/internal/governance"
	"github.com/polisai/polis-intercept/pkg/domain"
)

// CircuitBreaker trips a breaker per "<type>.<method>" after repeated
// failures. Open breakers fail calls with governance.ErrCircuitOpen.
type CircuitBreaker struct {
	breakers *governance.BreakerSet
}

// NewCircuitBreaker creates breakers from config.
func NewCircuitBreaker(config governance.CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{breakers: governance.NewBreakerSet(config)}
}

// Stats returns the state of every breaker created so far.
func (c *CircuitBreaker) Stats() []governance.BreakerStats {
	return c.breakers.Stats()
}

// Invoke runs the rest of the chain under the method's breaker.
func (c *CircuitBreaker) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	var (
		ret domain.MethodReturn
		ran bool
	)
	err := c.breakers.For(inv.TypeName+"."+inv.Method).Do(inv.Context, func(context.Context) error {
		ran = true
		ret = next(inv)
		return ret.Err
	})
	if !ran && err != nil {
		return domain.ReturnError(err)
	}
	return ret
}

// RequiredInterfaces returns nil.
func (c *CircuitBreaker) RequiredInterfaces() []reflect.Type { return nil }

// WillExecute returns true.
func (c *CircuitBreaker) WillExecute() bool { return true }

// Retry re-runs failing calls with exponential backoff.
type Retry struct {
	policy *governance.RetryPolicy
}

// NewRetry retries according to config.
func NewRetry(config governance.RetryConfig) *Retry {
	return &Retry{policy: governance.NewRetryPolicy(config)}
}

// Invoke calls next until it succeeds or the policy gives up.
func (r *Retry) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	var ret domain.MethodReturn
	err := r.policy.Do(inv.Context, func(context.Context, int) error {
		ret = next(inv)
		return ret.Err
	})
	if err != nil {
		return domain.MethodReturn{Values: ret.Values, Err: err}
	}
	return ret
}

// RequiredInterfaces returns nil.
func (r *Retry) RequiredInterfaces() []reflect.Type { return nil }

// WillExecute returns true.
func (r *Retry) WillExecute() bool { return true }

// Timeout bounds each call with a context deadline. Targets must observe the
// invocation context for the deadline to take effect.
type Timeout struct {
	timeout time.Duration
}

// NewTimeout bounds calls to d.
func NewTimeout(d time.Duration) *Timeout {
	return &Timeout{timeout: d}
}

// Invoke continues the chain with a deadline-bound context.
func (t *Timeout) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	ctx, cancel := context.WithTimeout(inv.Context, t.timeout)
	defer cancel()

	bounded := *inv
	bounded.Context = ctx
	ret := next(&bounded)
	if ret.Err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && inv.Context.Err() == nil {
		ret.Err = fmt.Errorf("%w: %s.%s after %s: %w", ErrCallTimeout, inv.TypeName, inv.Method, t.timeout, ret.Err)
	}
	return ret
}

// RequiredInterfaces returns nil.
func (t *Timeout) RequiredInterfaces() []reflect.Type { return nil }

// WillExecute reports whether a positive timeout is configured.
func (t *Timeout) WillExecute() bool { return t.timeout > 0 }

var (
	_ domain.Behavior = (*CircuitBreaker)(nil)
	_ domain.Behavior = (*Retry)(nil)
	_ domain.Behavior = (*Timeout)(nil)
)
