package domain

import (
	"context"
	"reflect"
)

// Interceptor judges proxyability and generates proxy types.
type Interceptor interface {
	CanIntercept(t reflect.Type) bool
	CreateProxyType(t reflect.Type, additionalInterfaces ...reflect.Type) (*ProxyType, error)
}

// InterceptingProxy is implemented by every proxy instance.
type InterceptingProxy interface {
	AddInterceptionBehavior(b Behavior)
}

// ProxyType is a generated substitute for an intercepted type. Its constructors
// mirror the intercepted type's constructors one for one.
type ProxyType struct {
	typ          reflect.Type
	target       reflect.Type
	interfaces   []reflect.Type
	constructors *ConstructorSet
}

// NewProxyType describes proxy type typ standing in for target.
func NewProxyType(typ, target reflect.Type, interfaces []reflect.Type, constructors *ConstructorSet) *ProxyType {
	ifaces := make([]reflect.Type, len(interfaces))
	copy(ifaces, interfaces)
	if constructors == nil {
		constructors = NewConstructorSet()
	}
	return &ProxyType{typ: typ, target: target, interfaces: ifaces, constructors: constructors}
}

// Type returns the Go type of proxy instances.
func (p *ProxyType) Type() reflect.Type { return p.typ }

// Target returns the intercepted type.
func (p *ProxyType) Target() reflect.Type { return p.target }

// Interfaces returns the additional interfaces the proxy was generated with.
func (p *ProxyType) Interfaces() []reflect.Type {
	out := make([]reflect.Type, len(p.interfaces))
	copy(out, p.interfaces)
	return out
}

// Constructors returns the proxy's constructor registry.
func (p *ProxyType) Constructors() *ConstructorSet { return p.constructors }

// Implements reports whether iface is among the proxy's additional interfaces.
func (p *ProxyType) Implements(iface reflect.Type) bool {
	for _, i := range p.interfaces {
		if i == iface {
			return true
		}
	}
	return false
}

// String returns the proxy's Go type name.
func (p *ProxyType) String() string {
	if p == nil || p.typ == nil {
		return "<nil>"
	}
	return p.typ.String()
}

// Invocation describes one intercepted method call.
type Invocation struct {
	Context   context.Context
	Target    any
	TypeName  string
	Method    string
	Arguments []any
}

// MethodReturn carries the results of an intercepted call.
type MethodReturn struct {
	Values []any
	Err    error
}

// Return builds a successful MethodReturn.
func Return(values ...any) MethodReturn {
	return MethodReturn{Values: values}
}

// ReturnError builds a failed MethodReturn.
func ReturnError(err error) MethodReturn {
	return MethodReturn{Err: err}
}

// InvokeFunc continues an invocation down the behavior chain.
type InvokeFunc func(inv *Invocation) MethodReturn

// Behavior is an attachable, ordered call-wrapping unit.
type Behavior interface {
	// Invoke handles inv, calling next to continue the chain.
	Invoke(inv *Invocation, next InvokeFunc) MethodReturn
	// RequiredInterfaces lists interfaces the proxy must implement for this behavior.
	RequiredInterfaces() []reflect.Type
	// WillExecute reports whether the behavior does anything; false ones are never attached.
	WillExecute() bool
}
