package behaviors

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/time/rate"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// RateLimit rejects calls exceeding a per-method token bucket. Buckets are
// keyed by "<type>.<method>".
type RateLimit struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimit allows rps calls per second per method with the given burst.
func NewRateLimit(rps float64, burst int) *RateLimit {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimit{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *RateLimit) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = l
	}
	return l
}

// Invoke continues the chain when a token is available.
func (r *RateLimit) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	key := inv.TypeName + "." + inv.Method
	if !r.limiter(key).Allow() {
		return domain.ReturnError(fmt.Errorf("%w: %s", ErrRateLimited, key))
	}
	return next(inv)
}

// RequiredInterfaces returns nil.
func (r *RateLimit) RequiredInterfaces() []reflect.Type { return nil }

// WillExecute returns true.
func (r *RateLimit) WillExecute() bool { return true }

var _ domain.Behavior = (*RateLimit)(nil)
