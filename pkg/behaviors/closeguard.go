package behaviors

import (
	"io"
	"reflect"
	"sync"

	"github.com/polisai/polis-intercept/pkg/domain"
)

var closerType = reflect.TypeFor[io.Closer]()

// CloseGuard fails every call on a target after its Close succeeded. Proxies
// carrying it must implement io.Closer.
type CloseGuard struct {
	mu     sync.Mutex
	closed map[any]struct{}
}

// NewCloseGuard returns an empty guard.
func NewCloseGuard() *CloseGuard {
	return &CloseGuard{closed: make(map[any]struct{})}
}

// Invoke rejects calls on closed targets and records successful closes.
// Targets that cannot be map keys pass through unguarded.
func (g *CloseGuard) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	if inv.Target == nil || !reflect.ValueOf(inv.Target).Comparable() {
		return next(inv)
	}

	g.mu.Lock()
	_, closed := g.closed[inv.Target]
	g.mu.Unlock()
	if closed {
		return domain.ReturnError(ErrClosed)
	}

	ret := next(inv)
	if inv.Method == "Close" && ret.Err == nil {
		g.mu.Lock()
		g.closed[inv.Target] = struct{}{}
		g.mu.Unlock()
	}
	return ret
}

// IsClosed reports whether target was closed through a guarded proxy.
func (g *CloseGuard) IsClosed(target any) bool {
	if target == nil || !reflect.ValueOf(target).Comparable() {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.closed[target]
	return ok
}

// RequiredInterfaces returns io.Closer.
func (g *CloseGuard) RequiredInterfaces() []reflect.Type {
	return []reflect.Type{closerType}
}

// WillExecute returns true.
func (g *CloseGuard) WillExecute() bool { return true }

var _ domain.Behavior = (*CloseGuard)(nil)
