package behaviors

import (
	"reflect"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// DefaultTracerName is used when no tracer name is configured.
const DefaultTracerName = "intercept.behaviors"

// Tracing wraps every call in a span named "<type>.<method>".
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing creates spans with the named tracer from tp. A nil provider uses
// the global one.
func NewTracing(tp trace.TracerProvider, tracerName string) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if tracerName == "" {
		tracerName = DefaultTracerName
	}
	return &Tracing{tracer: tp.Tracer(tracerName)}
}

// Invoke starts a span and continues the chain with the span's context.
func (t *Tracing) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	ctx, span := t.tracer.Start(inv.Context, inv.TypeName+"."+inv.Method,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("intercept.type", inv.TypeName),
			attribute.String("intercept.method", inv.Method),
			attribute.Int("intercept.args", len(inv.Arguments)),
		),
	)
	defer span.End()

	traced := *inv
	traced.Context = ctx
	ret := next(&traced)
	if ret.Err != nil {
		span.RecordError(ret.Err)
		span.SetStatus(codes.Error, ret.Err.Error())
	}
	return ret
}

// RequiredInterfaces returns nil.
func (t *Tracing) RequiredInterfaces() []reflect.Type { return nil }

// WillExecute returns true.
func (t *Tracing) WillExecute() bool { return true }

var _ domain.Behavior = (*Tracing)(nil)
