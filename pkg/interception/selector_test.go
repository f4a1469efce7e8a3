package interception

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/engine"
	"github.com/polisai/polis-intercept/pkg/storage"
)

// fixedSelector always answers the same selection.
type fixedSelector struct {
	selected domain.SelectedConstructor
	err      error
}

func (s fixedSelector) SelectConstructor(domain.BuildContext) (domain.SelectedConstructor, error) {
	return s.selected, s.err
}

func proxyTypeWith(ctors ...domain.Constructor) *domain.ProxyType {
	return domain.NewProxyType(calcProxyType, calculatorType, nil, domain.NewConstructorSet(ctors...))
}

func TestOverrideIsIdempotent(t *testing.T) {
	base := engine.DefaultConstructorSelector{}
	pt := proxyTypeWith()

	first, changed := overrideSelector(base, pt)
	require.True(t, changed)
	second, changed := overrideSelector(first, pt)
	assert.False(t, changed)
	assert.Same(t, first, second)
	assert.Equal(t, base, second.(*ProxyConstructorSelector).Original())
}

func TestReinterceptionUnwrapsToNativeSelector(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := fixedSelector{}
		n := rapid.IntRange(1, 6).Draw(t, "reinterceptions")

		var current domain.ConstructorSelector = base
		var last *domain.ProxyType
		for range n {
			last = proxyTypeWith()
			current, _ = overrideSelector(current, last)
		}

		override, ok := current.(*ProxyConstructorSelector)
		require.True(t, ok)
		assert.Same(t, last, override.ProxyType())
		_, nested := override.Original().(*ProxyConstructorSelector)
		assert.False(t, nested, "override must never wrap another override")
		assert.Equal(t, base, override.Original())
	})
}

func TestNewProxyConstructorSelectorUnwraps(t *testing.T) {
	base := fixedSelector{}
	p1, p2 := proxyTypeWith(), proxyTypeWith()
	wrapped := NewProxyConstructorSelector(p2, NewProxyConstructorSelector(p1, base))
	assert.Equal(t, base, wrapped.Original())
	assert.Same(t, p2, wrapped.ProxyType())
}

var signaturePool = []reflect.Type{
	reflect.TypeFor[int](),
	reflect.TypeFor[string](),
	reflect.TypeFor[bool](),
	reflect.TypeFor[float64](),
	reflect.TypeFor[[]byte](),
}

func constructorFor(declaring reflect.Type, sig domain.Signature) domain.Constructor {
	return domain.NewConstructor(declaring, sig, func(args []any) (any, error) {
		return fmt.Sprint(args...), nil
	})
}

func TestSelectionMapsOntoProxyConstructor(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		idx := rapid.SliceOfN(rapid.IntRange(0, len(signaturePool)-1), 0, 4).Draw(t, "signature")
		sig := make(domain.Signature, len(idx))
		resolvers := make([]domain.ParameterResolver, len(idx))
		for i, j := range idx {
			sig[i] = signaturePool[j]
			resolvers[i] = engine.ValueResolver{Value: i}
		}

		original := constructorFor(reflect.TypeFor[*basicCalc](), sig)
		// Proxy mirrors the original plus a decoy with one extra parameter.
		decoy := append(domain.Signature{reflect.TypeFor[uint8]()}, sig...)
		proxyCtor := constructorFor(calcProxyType, sig)
		pt := proxyTypeWith(constructorFor(calcProxyType, decoy), proxyCtor)

		selector := NewProxyConstructorSelector(pt, fixedSelector{selected: domain.SelectedConstructor{
			Constructor: original,
			Resolvers:   resolvers,
		}})

		got, err := selector.SelectConstructor(newFakeContext(domain.KeyFor[calculator](""), nil))
		require.NoError(t, err)
		assert.Equal(t, calcProxyType, got.Constructor.Declaring())
		assert.True(t, got.Constructor.Params().Equal(sig))
		assert.Equal(t, resolvers, got.Resolvers)
		if len(resolvers) > 0 {
			assert.NotSame(t, &resolvers[0], &got.Resolvers[0], "resolver slice is copied")
		}
	})
}

func TestSelectionMismatch(t *testing.T) {
	sig := domain.SignatureOf(reflect.TypeFor[string]())
	original := constructorFor(reflect.TypeFor[*basicCalc](), sig)
	pt := proxyTypeWith(constructorFor(calcProxyType, domain.SignatureOf(reflect.TypeFor[int]())))

	selector := NewProxyConstructorSelector(pt, fixedSelector{selected: domain.SelectedConstructor{Constructor: original}})
	_, err := selector.SelectConstructor(newFakeContext(domain.KeyFor[calculator](""), nil))
	require.ErrorIs(t, err, domain.ErrConstructionMismatch)
	require.ErrorIs(t, err, domain.ErrNoMatchingConstructor)

	t.Run("ambiguous", func(t *testing.T) {
		pt := proxyTypeWith(constructorFor(calcProxyType, sig), constructorFor(calcProxyType, sig))
		selector := NewProxyConstructorSelector(pt, fixedSelector{selected: domain.SelectedConstructor{Constructor: original}})
		_, err := selector.SelectConstructor(newFakeContext(domain.KeyFor[calculator](""), nil))
		require.ErrorIs(t, err, domain.ErrConstructionMismatch)
		require.ErrorIs(t, err, domain.ErrAmbiguousConstructor)
	})
}

func TestSelectionPropagatesOriginalError(t *testing.T) {
	failure := fmt.Errorf("%w: nothing registered", domain.ErrNoConstructor)
	selector := NewProxyConstructorSelector(proxyTypeWith(), fixedSelector{err: failure})
	_, err := selector.SelectConstructor(newFakeContext(domain.KeyFor[calculator](""), nil))
	require.ErrorIs(t, err, failure)

	_, err = NewProxyConstructorSelector(proxyTypeWith(), nil).SelectConstructor(newFakeContext(domain.KeyFor[calculator](""), nil))
	require.ErrorIs(t, err, domain.ErrNoConstructor)

	_, err = selector.SelectConstructor(nil)
	require.ErrorIs(t, err, domain.ErrInvalidUsage)
}

func TestSetPolicyForInterceptingTypeWritesBuildLocal(t *testing.T) {
	persistent := storage.NewPolicyList(nil)
	domain.SetDefaultPolicy[domain.ConstructorSelector](persistent, engine.DefaultConstructorSelector{})
	key := domain.KeyFor[calculator]("")
	bc := newFakeContext(key, persistent)
	pt := proxyTypeWith()

	require.NoError(t, SetPolicyForInterceptingType(bc, pt))
	active, ok := domain.GetExactPolicy[domain.ConstructorSelector](bc.Policies(), key)
	require.True(t, ok)
	first := active.(*ProxyConstructorSelector)
	assert.Same(t, pt, first.ProxyType())

	require.NoError(t, SetPolicyForInterceptingType(bc, pt))
	again, _ := domain.GetExactPolicy[domain.ConstructorSelector](bc.Policies(), key)
	assert.Same(t, first, again)

	p2 := proxyTypeWith()
	require.NoError(t, SetPolicyForInterceptingType(bc, p2))
	rewrapped, _ := domain.GetExactPolicy[domain.ConstructorSelector](bc.Policies(), key)
	assert.Same(t, p2, rewrapped.(*ProxyConstructorSelector).ProxyType())
	assert.Equal(t, engine.DefaultConstructorSelector{}, rewrapped.(*ProxyConstructorSelector).Original())

	persisted, _ := domain.GetPolicy[domain.ConstructorSelector](persistent, key)
	assert.Equal(t, engine.DefaultConstructorSelector{}, persisted)

	assert.ErrorIs(t, SetPolicyForInterceptingType(nil, pt), domain.ErrInvalidUsage)
	assert.ErrorIs(t, SetPolicyForInterceptingType(bc, nil), domain.ErrInvalidUsage)
}
