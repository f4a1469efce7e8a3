package behaviors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"pgregory.net/rapid"

	"github.com/polisai/polis-intercept/internal/governance"
	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/proxy"
)

var errBoom = errors.New("boom")

type target struct{ name string }

func invocation(method string, args ...any) *domain.Invocation {
	return &domain.Invocation{
		Context:   context.Background(),
		Target:    &target{name: "calc"},
		TypeName:  "demo.Calculator",
		Method:    method,
		Arguments: args,
	}
}

// terminal counts calls and answers with ret.
type terminal struct {
	calls int
	ret   domain.MethodReturn
	seen  *domain.Invocation
}

func (t *terminal) call(inv *domain.Invocation) domain.MethodReturn {
	t.calls++
	t.seen = inv
	return t.ret
}

func run(b domain.Behavior, inv *domain.Invocation, t *terminal) domain.MethodReturn {
	return proxy.NewPipeline(b).Invoke(inv, t.call)
}

// marker records whether it ran.
type marker struct{ ran int }

func (m *marker) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	m.ran++
	return next(inv)
}
func (m *marker) RequiredInterfaces() []reflect.Type { return []reflect.Type{closerType} }
func (m *marker) WillExecute() bool                  { return true }

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	assert.False(t, NewLogging(logger, slog.LevelDebug).WillExecute())

	b := NewLogging(logger, slog.LevelInfo)
	require.True(t, b.WillExecute())
	assert.Empty(t, b.RequiredInterfaces())

	ret := run(b, invocation("Add", 1, 2), &terminal{ret: domain.Return(3)})
	require.NoError(t, ret.Err)
	assert.Equal(t, []any{3}, ret.Values)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "intercepted call", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Add", entry["method"])
	assert.Equal(t, "demo.Calculator", entry["type"])

	buf.Reset()
	ret = run(b, invocation("Divide", 1, 0), &terminal{ret: domain.ReturnError(errBoom)})
	require.ErrorIs(t, ret.Err, errBoom)
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "boom", entry["error"])
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	b := NewTracing(tp, "")

	term := &terminal{ret: domain.Return(3)}
	run(b, invocation("Add", 1, 2), term)
	assert.True(t, trace.SpanFromContext(term.seen.Context).SpanContext().IsValid(), "next sees the span context")

	run(b, invocation("Divide", 1, 0), &terminal{ret: domain.ReturnError(errBoom)})

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "demo.Calculator.Add", spans[0].Name())
	assert.Equal(t, DefaultTracerName, spans[0].InstrumentationScope().Name)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "demo.Calculator.Divide", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)

	run(m, invocation("Add"), &terminal{})
	run(m, invocation("Add"), &terminal{})
	run(m, invocation("Divide"), &terminal{ret: domain.ReturnError(errBoom)})

	assert.InDelta(t, 2, testutil.ToFloat64(m.calls.WithLabelValues("demo.Calculator", "Add", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.calls.WithLabelValues("demo.Calculator", "Divide", "error")), 0)

	again, err := NewMetrics(registry)
	require.NoError(t, err, "re-registering on the same registry reuses collectors")
	run(again, invocation("Add"), &terminal{})
	assert.InDelta(t, 3, testutil.ToFloat64(m.calls.WithLabelValues("demo.Calculator", "Add", "ok")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "intercept_calls_total")
	assert.Contains(t, rec.Body.String(), "intercept_call_duration_seconds")
	assert.Same(t, registry, m.Registry())
}

const authzPolicy = `package intercept.authz

default allow := false

allow if input.method == "Add"

allow if {
	input.method == "Divide"
	input.args[1] != 0
}
`

func TestAuthorization(t *testing.T) {
	b, err := NewAuthorization(t.Context(), authzPolicy, "")
	require.NoError(t, err)

	term := &terminal{ret: domain.Return(3)}
	ret := run(b, invocation("Add", 1, 2), term)
	require.NoError(t, ret.Err)
	assert.Equal(t, 1, term.calls)

	ret = run(b, invocation("Divide", 4, 2), term)
	require.NoError(t, ret.Err)
	assert.Equal(t, 2, term.calls)

	ret = run(b, invocation("Divide", 4, 0), term)
	require.ErrorIs(t, ret.Err, ErrCallDenied)
	assert.Equal(t, 2, term.calls, "denied calls never reach the target")

	ret = run(b, invocation("Multiply", 2, 2), term)
	require.ErrorIs(t, ret.Err, ErrCallDenied)
}

func TestAuthorizationRejectsBadModules(t *testing.T) {
	_, err := NewAuthorization(t.Context(), "", "")
	require.Error(t, err)

	_, err = NewAuthorization(t.Context(), "package intercept.authz\nallow if {", "")
	require.Error(t, err)
}

func TestMatching(t *testing.T) {
	inner := &marker{}
	b, err := NewMatching(`method == "Divide" && args[1] == 0`, inner)
	require.NoError(t, err)
	assert.Equal(t, []reflect.Type{closerType}, b.RequiredInterfaces())
	assert.True(t, b.WillExecute())

	term := &terminal{}
	run(b, invocation("Divide", 1, 0), term)
	run(b, invocation("Divide", 1, 2), term)
	run(b, invocation("Add", 1, 0), term)

	assert.Equal(t, 1, inner.ran)
	assert.Equal(t, 3, term.calls)
}

func TestMatchingRejectsBadRules(t *testing.T) {
	_, err := NewMatching(`method +`, &marker{})
	require.Error(t, err)

	_, err = NewMatching(`method`, &marker{})
	require.Error(t, err, "rule must be boolean")

	_, err = NewMatching(`true`, nil)
	require.Error(t, err)
}

func TestRateLimitPerMethod(t *testing.T) {
	b := NewRateLimit(0.001, 1)
	term := &terminal{}

	require.NoError(t, run(b, invocation("Add"), term).Err)
	require.ErrorIs(t, run(b, invocation("Add"), term).Err, ErrRateLimited)
	require.NoError(t, run(b, invocation("Divide"), term).Err, "methods have separate buckets")
	assert.Equal(t, 2, term.calls)
}

func TestRateLimitBurst(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		burst := rapid.IntRange(1, 20).Draw(rt, "burst")
		calls := rapid.IntRange(0, 40).Draw(rt, "calls")

		b := NewRateLimit(0.001, burst)
		allowed := 0
		for range calls {
			if run(b, invocation("Add"), &terminal{}).Err == nil {
				allowed++
			}
		}
		if want := min(burst, calls); allowed != want {
			rt.Fatalf("allowed %d calls, want %d", allowed, want)
		}
	})
}

func TestCircuitBreakerOpens(t *testing.T) {
	b := NewCircuitBreaker(governance.CircuitBreakerConfig{FailureThreshold: 2, OpenTimeout: time.Hour})
	failing := &terminal{ret: domain.ReturnError(errBoom)}

	require.ErrorIs(t, run(b, invocation("Divide"), failing).Err, errBoom)
	require.ErrorIs(t, run(b, invocation("Divide"), failing).Err, errBoom)

	ret := run(b, invocation("Divide"), failing)
	require.ErrorIs(t, ret.Err, governance.ErrCircuitOpen)
	assert.Equal(t, 2, failing.calls)

	ok := &terminal{ret: domain.Return(1)}
	require.NoError(t, run(b, invocation("Add"), ok).Err, "other methods keep their own breaker")

	var openErr *governance.OpenError
	require.ErrorAs(t, ret.Err, &openErr)
	assert.Equal(t, "demo.Calculator.Divide", openErr.Method)

	stats := b.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "demo.Calculator.Add", stats[0].Method)
	assert.Equal(t, governance.StateClosed, stats[0].State)
	assert.Equal(t, governance.StateOpen, stats[1].State)
	assert.Equal(t, uint64(1), stats[1].Rejected)
}

// flaky fails the first n calls.
type flaky struct {
	n     int
	calls int
}

func (f *flaky) call(*domain.Invocation) domain.MethodReturn {
	f.calls++
	if f.calls <= f.n {
		return domain.ReturnError(errBoom)
	}
	return domain.Return("ok")
}

func TestRetry(t *testing.T) {
	b := NewRetry(governance.RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	f := &flaky{n: 2}
	ret := proxy.NewPipeline(b).Invoke(invocation("Add"), f.call)
	require.NoError(t, ret.Err)
	assert.Equal(t, []any{"ok"}, ret.Values)
	assert.Equal(t, 3, f.calls)

	f = &flaky{n: 10}
	ret = proxy.NewPipeline(b).Invoke(invocation("Add"), f.call)
	require.ErrorIs(t, ret.Err, governance.ErrMaxRetriesExceeded)
	require.ErrorIs(t, ret.Err, errBoom)
	assert.Equal(t, 4, f.calls)
}

func TestTimeout(t *testing.T) {
	b := NewTimeout(5 * time.Millisecond)
	require.True(t, b.WillExecute())
	assert.False(t, NewTimeout(0).WillExecute())

	blocking := func(inv *domain.Invocation) domain.MethodReturn {
		<-inv.Context.Done()
		return domain.ReturnError(inv.Context.Err())
	}
	ret := proxy.NewPipeline(b).Invoke(invocation("Add"), blocking)
	require.ErrorIs(t, ret.Err, ErrCallTimeout)
	require.ErrorIs(t, ret.Err, context.DeadlineExceeded)

	fast := &terminal{ret: domain.ReturnError(errBoom)}
	ret = run(b, invocation("Add"), fast)
	require.ErrorIs(t, ret.Err, errBoom)
	assert.NotErrorIs(t, ret.Err, ErrCallTimeout)
}

func TestCloseGuard(t *testing.T) {
	g := NewCloseGuard()
	assert.Equal(t, []reflect.Type{reflect.TypeFor[io.Closer]()}, g.RequiredInterfaces())

	first := invocation("Add")
	other := invocation("Add")
	term := &terminal{}

	require.NoError(t, run(g, first, term).Err)

	closeInv := *first
	closeInv.Method = "Close"
	require.NoError(t, run(g, &closeInv, term).Err)
	assert.True(t, g.IsClosed(first.Target))

	require.ErrorIs(t, run(g, first, term).Err, ErrClosed)
	require.NoError(t, run(g, other, term).Err, "other targets stay open")
	assert.Equal(t, 3, term.calls)

	uncomparable := invocation("Add")
	uncomparable.Target = []int{1}
	require.NoError(t, run(g, uncomparable, term).Err)
	assert.False(t, g.IsClosed([]int{1}))
}

func TestCloseGuardFailedCloseKeepsTargetOpen(t *testing.T) {
	g := NewCloseGuard()
	inv := invocation("Close")
	require.ErrorIs(t, run(g, inv, &terminal{ret: domain.ReturnError(errBoom)}).Err, errBoom)
	assert.False(t, g.IsClosed(inv.Target))
}

func TestOnlyMethods(t *testing.T) {
	inner := &marker{}
	assert.Same(t, inner, OnlyMethods(inner))

	b := OnlyMethods(inner, "Divide")
	assert.Equal(t, inner.RequiredInterfaces(), b.RequiredInterfaces())
	assert.True(t, b.WillExecute())

	term := &terminal{}
	run(b, invocation("Add"), term)
	run(b, invocation("Divide"), term)
	assert.Equal(t, 1, inner.ran)
	assert.Equal(t, 2, term.calls)
}
