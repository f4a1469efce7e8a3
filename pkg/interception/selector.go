package interception

import (
	"fmt"
	"slices"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// ProxyConstructorSelector re-targets the constructor chosen by the original
// selector onto the proxy type, keeping the original resolvers.
type ProxyConstructorSelector struct {
	proxyType *domain.ProxyType
	original  domain.ConstructorSelector
}

var _ domain.ConstructorSelector = (*ProxyConstructorSelector)(nil)

// NewProxyConstructorSelector wraps original for proxyType. An original that is
// itself a ProxyConstructorSelector is unwrapped first, so at most one override
// ever sits in front of the native selector.
func NewProxyConstructorSelector(proxyType *domain.ProxyType, original domain.ConstructorSelector) *ProxyConstructorSelector {
	if inner, ok := original.(*ProxyConstructorSelector); ok {
		original = inner.original
	}
	return &ProxyConstructorSelector{proxyType: proxyType, original: original}
}

// ProxyType returns the type constructors are selected on.
func (s *ProxyConstructorSelector) ProxyType() *domain.ProxyType { return s.proxyType }

// Original returns the native selector being delegated to.
func (s *ProxyConstructorSelector) Original() domain.ConstructorSelector { return s.original }

// SelectConstructor asks the original selector for its choice and returns the
// proxy constructor with the identical signature and the same resolvers.
func (s *ProxyConstructorSelector) SelectConstructor(bc domain.BuildContext) (domain.SelectedConstructor, error) {
	if bc == nil {
		return domain.SelectedConstructor{}, fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
	}
	if s.original == nil {
		return domain.SelectedConstructor{}, fmt.Errorf("%w: no selector behind proxy %s", domain.ErrNoConstructor, s.proxyType)
	}

	chosen, err := s.original.SelectConstructor(bc)
	if err != nil {
		return domain.SelectedConstructor{}, err
	}

	signature := chosen.Constructor.Params()
	ctor, err := s.proxyType.Constructors().Lookup(signature)
	if err != nil {
		return domain.SelectedConstructor{}, &domain.ConstructionMismatchError{
			ProxyType: s.proxyType.String(),
			Original:  chosen.Constructor.String(),
			Signature: signature,
			Err:       err,
		}
	}

	return domain.SelectedConstructor{
		Constructor: ctor,
		Resolvers:   slices.Clone(chosen.Resolvers),
	}, nil
}

// overrideSelector returns the selector that should be active once proxyType
// intercepts a build currently served by current. changed is false when current
// already targets proxyType.
func overrideSelector(current domain.ConstructorSelector, proxyType *domain.ProxyType) (next domain.ConstructorSelector, changed bool) {
	if existing, ok := current.(*ProxyConstructorSelector); ok && existing.proxyType == proxyType {
		return existing, false
	}
	return NewProxyConstructorSelector(proxyType, current), true
}

// SetPolicyForInterceptingType installs the constructor selection override for
// the build key of bc. The override lives in the build-local policy list.
func SetPolicyForInterceptingType(bc domain.BuildContext, proxyType *domain.ProxyType) error {
	if bc == nil {
		return fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
	}
	if proxyType == nil {
		return fmt.Errorf("%w: nil proxy type", domain.ErrInvalidUsage)
	}

	key := bc.BuildKey()
	current, _ := domain.GetPolicy[domain.ConstructorSelector](bc.Policies(), key)
	next, changed := overrideSelector(current, proxyType)
	if !changed {
		return nil
	}
	domain.SetPolicy[domain.ConstructorSelector](bc.Policies(), key, next)
	return nil
}
