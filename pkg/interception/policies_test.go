package interception

import (
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/storage"
)

// typedBehavior only applies to one intercepted type.
type typedBehavior struct {
	stubBehavior
	only reflect.Type
}

func (b *typedBehavior) AppliesTo(typeToIntercept, _ reflect.Type) bool {
	return typeToIntercept == b.only
}

func TestBehaviorSetResolvesKeysInOrder(t *testing.T) {
	first := &stubBehavior{name: "first", will: true}
	resolved := &stubBehavior{name: "resolved", will: true}
	last := &stubBehavior{name: "last", will: true}
	behaviorKey := domain.KeyFor[*stubBehavior]("audit")

	set := NewBehaviorSet(first)
	set.AddKey(behaviorKey)
	set.Add(last)
	set.Add(nil)
	assert.Equal(t, 3, set.Len())

	bc := newFakeContext(domain.KeyFor[calculator](""), storage.NewPolicyList(nil))
	bc.resolve = func(key domain.BuildKey) (any, error) {
		require.Equal(t, behaviorKey, key)
		return resolved, nil
	}

	got, err := set.EffectiveBehaviors(bc, nil, calculatorType, calculatorType)
	require.NoError(t, err)
	assert.Equal(t, []domain.Behavior{first, resolved, last}, got)
}

func TestBehaviorSetErrors(t *testing.T) {
	set := NewBehaviorSet()
	set.AddKey(domain.KeyFor[string]("not-a-behavior"))
	bc := newFakeContext(domain.KeyFor[calculator](""), nil)

	bc.resolve = func(domain.BuildKey) (any, error) { return "plain string", nil }
	_, err := set.EffectiveBehaviors(bc, nil, calculatorType, calculatorType)
	require.ErrorIs(t, err, domain.ErrNotABehavior)

	failure := errors.New("lookup failed")
	bc.resolve = func(domain.BuildKey) (any, error) { return nil, failure }
	_, err = set.EffectiveBehaviors(bc, nil, calculatorType, calculatorType)
	require.ErrorIs(t, err, failure)

	_, err = set.EffectiveBehaviors(nil, nil, calculatorType, calculatorType)
	require.ErrorIs(t, err, domain.ErrInvalidUsage)
}

func TestBehaviorSetSkipsInapplicable(t *testing.T) {
	general := &stubBehavior{will: true}
	closerOnly := &typedBehavior{stubBehavior: stubBehavior{will: true}, only: closerType}
	set := NewBehaviorSet(general, closerOnly)

	got, err := set.EffectiveBehaviors(nil, nil, calculatorType, calculatorType)
	require.NoError(t, err)
	assert.Equal(t, []domain.Behavior{general}, got)
}

func TestInterfaceSet(t *testing.T) {
	set, err := NewInterfaceSet(closerType, reflect.TypeFor[io.Reader](), closerType)
	require.NoError(t, err)
	assert.Equal(t, []reflect.Type{closerType, reflect.TypeFor[io.Reader]()}, set.AdditionalInterfaces())

	_, err = NewInterfaceSet(reflect.TypeFor[*basicCalc]())
	require.ErrorIs(t, err, domain.ErrNotInterface)
	_, err = NewInterfaceSet(nil)
	require.ErrorIs(t, err, domain.ErrNotInterface)
}

func TestResolvedInterceptorPolicy(t *testing.T) {
	key := domain.KeyFor[domain.Interceptor]("stub")
	policy := NewResolvedInterceptorPolicy(key)
	assert.Equal(t, key, policy.Key())
	bc := newFakeContext(domain.KeyFor[calculator](""), nil)

	stub := newStubInterceptor(t, calculatorType)
	bc.resolve = func(domain.BuildKey) (any, error) { return stub, nil }
	got, err := policy.Interceptor(bc)
	require.NoError(t, err)
	assert.Same(t, stub, got)

	bc.resolve = func(domain.BuildKey) (any, error) { return 7, nil }
	_, err = policy.Interceptor(bc)
	require.ErrorIs(t, err, domain.ErrUnexpectedType)

	_, err = policy.Interceptor(nil)
	require.ErrorIs(t, err, domain.ErrInvalidUsage)

	pt := proxyTypeWith()
	policy.SetProxyType(pt)
	assert.Same(t, pt, policy.ProxyType())
}

func TestAllAdditionalInterfaces(t *testing.T) {
	reader := reflect.TypeFor[io.Reader]()
	behaviors := []domain.Behavior{
		&stubBehavior{requires: []reflect.Type{closerType, nil}},
		&stubBehavior{requires: []reflect.Type{reader, closerType}},
	}

	assert.Equal(t, []reflect.Type{closerType, reader}, AllAdditionalInterfaces(behaviors, []reflect.Type{reader}))
	assert.Empty(t, AllAdditionalInterfaces(nil, nil))

	writer := reflect.TypeFor[io.Writer]()
	assert.Equal(t, []reflect.Type{writer}, AllAdditionalInterfaces(nil, []reflect.Type{writer, writer}))
}
