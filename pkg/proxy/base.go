package proxy

import (
	"context"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// Base is embedded by proxy structs. It satisfies domain.InterceptingProxy and
// routes calls through the attached behaviors.
//
//	type CalculatorProxy struct {
//		proxy.Base
//		inner Calculator
//	}
//
//	func (p *CalculatorProxy) Add(ctx context.Context, a, b int) (int, error) {
//		ret := p.Invoke(ctx, p.inner, "Add", []any{a, b}, func(inv *domain.Invocation) domain.MethodReturn {
//			sum, err := p.inner.Add(inv.Context, inv.Arguments[0].(int), inv.Arguments[1].(int))
//			return domain.MethodReturn{Values: []any{sum}, Err: err}
//		})
//		...
//	}
type Base struct {
	pipeline Pipeline
	typeName string
}

// SetTypeName names the proxied type in invocations, e.g. "demo.Calculator".
func (b *Base) SetTypeName(name string) { b.typeName = name }

// AddInterceptionBehavior attaches behavior after the ones already attached.
func (b *Base) AddInterceptionBehavior(behavior domain.Behavior) {
	b.pipeline.Add(behavior)
}

// InterceptionBehaviors returns the attached behaviors in invocation order.
func (b *Base) InterceptionBehaviors() []domain.Behavior {
	return b.pipeline.Behaviors()
}

// Invoke dispatches method through the behavior chain, ending in call.
func (b *Base) Invoke(ctx context.Context, target any, method string, args []any, call domain.InvokeFunc) domain.MethodReturn {
	if ctx == nil {
		ctx = context.Background()
	}
	inv := &domain.Invocation{
		Context:   ctx,
		Target:    target,
		TypeName:  b.typeName,
		Method:    method,
		Arguments: args,
	}
	return b.pipeline.Invoke(inv, call)
}

var _ domain.InterceptingProxy = (*Base)(nil)
