package proxy

import (
	"sync"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// Pipeline is an ordered behavior chain. The first behavior added is the
// outermost wrapper around the target call.
type Pipeline struct {
	mu        sync.RWMutex
	behaviors []domain.Behavior
}

// NewPipeline returns a pipeline holding behaviors in order.
func NewPipeline(behaviors ...domain.Behavior) *Pipeline {
	p := &Pipeline{}
	for _, b := range behaviors {
		p.Add(b)
	}
	return p
}

// Add appends b. Nil is ignored.
func (p *Pipeline) Add(b domain.Behavior) {
	if b == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.behaviors = append(p.behaviors, b)
}

// Len returns the number of behaviors.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.behaviors)
}

// Behaviors returns the behaviors in invocation order.
func (p *Pipeline) Behaviors() []domain.Behavior {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Behavior, len(p.behaviors))
	copy(out, p.behaviors)
	return out
}

// Invoke runs inv through every behavior and finally target.
func (p *Pipeline) Invoke(inv *domain.Invocation, target domain.InvokeFunc) domain.MethodReturn {
	behaviors := p.Behaviors()
	if len(behaviors) == 0 {
		return target(inv)
	}

	// Build the chain from end to start
	handler := target
	for i := len(behaviors) - 1; i >= 0; i-- {
		b := behaviors[i]
		next := handler
		handler = func(inv *domain.Invocation) domain.MethodReturn {
			return b.Invoke(inv, next)
		}
	}
	return handler(inv)
}
