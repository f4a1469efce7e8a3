package demo

import (
	"context"
	"io"

	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/proxy"
)

// TypeName names Calculator in invocations and configuration.
const TypeName = "demo.Calculator"

// CalculatorProxy stands in for Calculator and routes every call through its
// attached behaviors. Its constructors mirror BasicCalculator's.
type CalculatorProxy struct {
	proxy.Base
	inner *BasicCalculator
}

// NewCalculatorProxy mirrors NewCalculator.
func NewCalculatorProxy() *CalculatorProxy {
	return newCalculatorProxy(NewCalculator())
}

// NewSeededCalculatorProxy mirrors NewSeededCalculator.
func NewSeededCalculatorProxy(seed int) *CalculatorProxy {
	return newCalculatorProxy(NewSeededCalculator(seed))
}

func newCalculatorProxy(inner *BasicCalculator) *CalculatorProxy {
	p := &CalculatorProxy{inner: inner}
	p.SetTypeName(TypeName)
	return p
}

// Target returns the proxied calculator.
func (p *CalculatorProxy) Target() *BasicCalculator { return p.inner }

// Add implements Calculator.
func (p *CalculatorProxy) Add(ctx context.Context, a, b int) (int, error) {
	ret := p.Invoke(ctx, p.inner, "Add", []any{a, b}, func(inv *domain.Invocation) domain.MethodReturn {
		sum, err := p.inner.Add(inv.Context, inv.Arguments[0].(int), inv.Arguments[1].(int))
		return domain.MethodReturn{Values: []any{sum}, Err: err}
	})
	return intResult(ret)
}

// Divide implements Calculator.
func (p *CalculatorProxy) Divide(ctx context.Context, a, b int) (int, error) {
	ret := p.Invoke(ctx, p.inner, "Divide", []any{a, b}, func(inv *domain.Invocation) domain.MethodReturn {
		q, err := p.inner.Divide(inv.Context, inv.Arguments[0].(int), inv.Arguments[1].(int))
		return domain.MethodReturn{Values: []any{q}, Err: err}
	})
	return intResult(ret)
}

// Seed implements Calculator.
func (p *CalculatorProxy) Seed() int {
	ret := p.Invoke(context.Background(), p.inner, "Seed", nil, func(*domain.Invocation) domain.MethodReturn {
		return domain.Return(p.inner.Seed())
	})
	seed, _ := intResult(ret)
	return seed
}

// Close implements io.Closer.
func (p *CalculatorProxy) Close() error {
	ret := p.Invoke(context.Background(), p.inner, "Close", nil, func(*domain.Invocation) domain.MethodReturn {
		return domain.ReturnError(p.inner.Close())
	})
	return ret.Err
}

func intResult(ret domain.MethodReturn) (int, error) {
	if ret.Err != nil {
		return 0, ret.Err
	}
	if len(ret.Values) == 0 {
		return 0, nil
	}
	v, _ := ret.Values[0].(int)
	return v, nil
}

var (
	_ Calculator               = (*CalculatorProxy)(nil)
	_ io.Closer                = (*CalculatorProxy)(nil)
	_ domain.InterceptingProxy = (*CalculatorProxy)(nil)
)

// Definition declares CalculatorProxy to the proxy interceptor.
func Definition() (proxy.Definition, error) {
	return proxy.DefinitionFor[Calculator, *CalculatorProxy](NewCalculatorProxy, NewSeededCalculatorProxy)
}
