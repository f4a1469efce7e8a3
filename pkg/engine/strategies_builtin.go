package engine

import (
	"fmt"
	"sync"

	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/engine/runtime"
)

// LifetimePolicy decides whether a built instance is reused.
type LifetimePolicy interface {
	Value() (any, bool)
	Store(instance any)
	Reset()
}

// TransientLifetime never caches.
type TransientLifetime struct{}

// Value reports no cached instance.
func (TransientLifetime) Value() (any, bool) { return nil, false }

// Store discards the instance.
func (TransientLifetime) Store(any) {}

// Reset does nothing.
func (TransientLifetime) Reset() {}

// SingletonLifetime keeps the first instance built for its key.
type SingletonLifetime struct {
	mu       sync.RWMutex
	instance any
	set      bool
}

// Value returns the cached instance if any.
func (l *SingletonLifetime) Value() (any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.instance, l.set
}

// Store caches instance unless one is already held.
func (l *SingletonLifetime) Store(instance any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		return
	}
	l.instance = instance
	l.set = true
}

// Reset drops the cached instance.
func (l *SingletonLifetime) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.instance = nil
	l.set = false
}

// LifetimeStrategy short-circuits builds with a cached instance and stores
// freshly built ones.
type LifetimeStrategy struct{}

// PreBuildUp supplies the cached instance and completes the build.
func (LifetimeStrategy) PreBuildUp(bc domain.BuildContext) error {
	if bc == nil {
		return fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
	}
	if bc.Existing() != nil {
		return nil
	}
	lifetime, ok := domain.GetPolicy[LifetimePolicy](bc.Policies(), bc.BuildKey())
	if !ok {
		return nil
	}
	if instance, cached := lifetime.Value(); cached {
		bc.SetExisting(instance)
		bc.SetBuildComplete(true)
		bc.Logger().Debug("lifetime returned cached instance")
	}
	return nil
}

// PostBuildUp stores the instance built by the chain.
func (LifetimeStrategy) PostBuildUp(bc domain.BuildContext) error {
	if bc == nil {
		return fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
	}
	if bc.Existing() == nil {
		return nil
	}
	if lifetime, ok := domain.GetPolicy[LifetimePolicy](bc.Policies(), bc.BuildKey()); ok {
		lifetime.Store(bc.Existing())
	}
	return nil
}

// CreationStrategy instantiates the build key using the active constructor selector.
type CreationStrategy struct {
	runtime.NoopStrategy
}

// PreBuildUp selects a constructor, resolves its arguments and invokes it.
func (CreationStrategy) PreBuildUp(bc domain.BuildContext) error {
	if bc == nil {
		return fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
	}
	if bc.Existing() != nil {
		return nil
	}
	key := bc.BuildKey()

	selector, ok := domain.GetPolicy[domain.ConstructorSelector](bc.Policies(), key)
	if !ok || selector == nil {
		return fmt.Errorf("%w: no constructor selector for %s", domain.ErrNoConstructor, key)
	}
	selected, err := selector.SelectConstructor(bc)
	if err != nil {
		return err
	}

	args := make([]any, len(selected.Resolvers))
	for i, resolver := range selected.Resolvers {
		value, err := resolver.Resolve(bc)
		if err != nil {
			return fmt.Errorf("parameter %d of %s: %w", i, selected.Constructor, err)
		}
		args[i] = value
	}

	instance, err := selected.Constructor.Invoke(args)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", selected.Constructor, err)
	}
	bc.SetExisting(instance)
	bc.Logger().Debug("instance created", "constructor", selected.Constructor.String())
	return nil
}
