package behaviors

import (
	"reflect"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// OnlyMethods restricts b to the named methods. Other calls skip it. With no
// methods b is returned unchanged.
func OnlyMethods(b domain.Behavior, methods ...string) domain.Behavior {
	if len(methods) == 0 || b == nil {
		return b
	}
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return &methodFilter{inner: b, methods: set}
}

type methodFilter struct {
	inner   domain.Behavior
	methods map[string]struct{}
}

func (f *methodFilter) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	if _, ok := f.methods[inv.Method]; !ok {
		return next(inv)
	}
	return f.inner.Invoke(inv, next)
}

func (f *methodFilter) RequiredInterfaces() []reflect.Type { return f.inner.RequiredInterfaces() }

func (f *methodFilter) WillExecute() bool { return f.inner.WillExecute() }
