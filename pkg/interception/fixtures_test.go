package interception

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/engine"
	"github.com/polisai/polis-intercept/pkg/engine/runtime"
	"github.com/polisai/polis-intercept/pkg/storage"
)

type calculator interface {
	Add(a, b int) int
}

type basicCalc struct{ seed int }

func (c *basicCalc) Add(a, b int) int { return a + b + c.seed }

func newBasicCalc() *basicCalc { return &basicCalc{} }

func newSeededCalc(seed int) *basicCalc { return &basicCalc{seed: seed} }

// calcProxy stands in for calculator and records attached behaviors.
type calcProxy struct {
	mu       sync.Mutex
	inner    *basicCalc
	attached []domain.Behavior
}

func (p *calcProxy) Add(a, b int) int { return p.inner.Add(a, b) }

func (p *calcProxy) AddInterceptionBehavior(b domain.Behavior) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = append(p.attached, b)
}

func (p *calcProxy) Close() error { return nil }

func (p *calcProxy) behaviors() []domain.Behavior {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Behavior(nil), p.attached...)
}

func newCalcProxy() *calcProxy { return &calcProxy{inner: newBasicCalc()} }

func newSeededCalcProxy(seed int) *calcProxy { return &calcProxy{inner: newSeededCalc(seed)} }

// tb is satisfied by both *testing.T and *rapid.T.
type tb interface {
	Helper()
	Errorf(format string, args ...any)
	FailNow()
}

var (
	calculatorType = reflect.TypeFor[calculator]()
	closerType     = reflect.TypeFor[io.Closer]()
	calcProxyType  = reflect.TypeFor[*calcProxy]()
)

// stubBehavior is a behavior with a fixed WillExecute answer.
type stubBehavior struct {
	name     string
	will     bool
	requires []reflect.Type
}

func (b *stubBehavior) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	return next(inv)
}

func (b *stubBehavior) RequiredInterfaces() []reflect.Type { return b.requires }

func (b *stubBehavior) WillExecute() bool { return b.will }

// stubInterceptor answers CanIntercept from a fixed set and builds calcProxy types.
type stubInterceptor struct {
	accept  map[reflect.Type]bool
	ctors   *domain.ConstructorSet
	mu      sync.Mutex
	created int
}

func newStubInterceptor(t tb, accept ...reflect.Type) *stubInterceptor {
	t.Helper()

	set := domain.NewConstructorSet()
	for _, fn := range []any{newCalcProxy, newSeededCalcProxy} {
		ctor, err := domain.ConstructorOf(fn)
		require.NoError(t, err)
		set.Add(ctor)
	}
	s := &stubInterceptor{accept: map[reflect.Type]bool{}, ctors: set}
	for _, a := range accept {
		s.accept[a] = true
	}
	return s
}

func (s *stubInterceptor) CanIntercept(t reflect.Type) bool { return s.accept[t] }

func (s *stubInterceptor) CreateProxyType(t reflect.Type, ifaces ...reflect.Type) (*domain.ProxyType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	return domain.NewProxyType(calcProxyType, t, ifaces, s.ctors), nil
}

func (s *stubInterceptor) createdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// mockInterceptor is a testify mock for call expectations.
type mockInterceptor struct {
	mock.Mock
}

func (m *mockInterceptor) CanIntercept(t reflect.Type) bool {
	return m.Called(t).Bool(0)
}

func (m *mockInterceptor) CreateProxyType(t reflect.Type, ifaces ...reflect.Type) (*domain.ProxyType, error) {
	args := m.Called(t, ifaces)
	pt, _ := args.Get(0).(*domain.ProxyType)
	return pt, args.Error(1)
}

// harness wires lifetime, interception and creation the way a container does.
type harness struct {
	builder  *engine.Builder
	policies *storage.PolicyList
	key      domain.BuildKey
}

func newHarness(t tb, ctors ...any) *harness {
	t.Helper()

	policies := storage.NewPolicyList(nil)
	b := engine.NewBuilder(engine.BuilderConfig{
		Policies: policies,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	b.AddStrategy(runtime.StageLifetime, "lifetime", engine.LifetimeStrategy{})
	b.AddStrategy(runtime.StagePreCreation, "interception", Strategy{})
	b.AddStrategy(runtime.StageCreation, "creation", engine.CreationStrategy{})
	domain.SetDefaultPolicy[domain.ConstructorSelector](policies, engine.DefaultConstructorSelector{})

	key := domain.KeyFor[calculator]("")
	if len(ctors) == 0 {
		ctors = []any{newBasicCalc}
	}
	set := domain.NewConstructorSet()
	for _, fn := range ctors {
		ctor, err := domain.ConstructorOf(fn)
		require.NoError(t, err)
		set.Add(ctor)
	}
	domain.SetPolicy(policies, key, set)

	return &harness{builder: b, policies: policies, key: key}
}

func (h *harness) intercept(interceptor domain.Interceptor) *FixedInterceptorPolicy {
	policy := NewFixedInterceptorPolicy(interceptor)
	domain.SetPolicy[domain.TypeInterceptionPolicy](h.policies, h.key, policy)
	return policy
}

func (h *harness) build(t tb) any {
	t.Helper()
	result, err := h.builder.BuildUp(context.Background(), h.key, nil)
	require.NoError(t, err)
	return result
}

// fakeContext is a minimal BuildContext for calling strategy phases directly.
type fakeContext struct {
	ctx      context.Context
	key      domain.BuildKey
	existing any
	complete bool
	policies *storage.PolicyList
	resolve  func(domain.BuildKey) (any, error)
}

func newFakeContext(key domain.BuildKey, persistent *storage.PolicyList) *fakeContext {
	return &fakeContext{ctx: context.Background(), key: key, policies: storage.NewPolicyList(persistent)}
}

func (f *fakeContext) Context() context.Context   { return f.ctx }
func (f *fakeContext) BuildKey() domain.BuildKey  { return f.key }
func (f *fakeContext) BuildID() string            { return "test-build" }
func (f *fakeContext) Existing() any              { return f.existing }
func (f *fakeContext) SetExisting(instance any)   { f.existing = instance }
func (f *fakeContext) BuildComplete() bool        { return f.complete }
func (f *fakeContext) SetBuildComplete(done bool) { f.complete = done }
func (f *fakeContext) Policies() domain.Policies  { return f.policies }
func (f *fakeContext) Logger() *slog.Logger       { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func (f *fakeContext) Resolve(key domain.BuildKey) (any, error) {
	if f.resolve == nil {
		return nil, domain.ErrNoConstructor
	}
	return f.resolve(key)
}
