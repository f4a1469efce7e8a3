package storage

import (
	"reflect"
	"sort"
	"sync"

	"github.com/polisai/polis-intercept/pkg/domain"
)

type policyKey struct {
	kind reflect.Type
	key  domain.BuildKey
}

// PolicyList is an in-memory policy list with an optional parent.
type PolicyList struct {
	mu       sync.RWMutex
	parent   *PolicyList
	policies map[policyKey]any
	defaults map[reflect.Type]any
}

// NewPolicyList creates a policy list layered over parent (which may be nil).
func NewPolicyList(parent *PolicyList) *PolicyList {
	return &PolicyList{
		parent:   parent,
		policies: make(map[policyKey]any),
		defaults: make(map[reflect.Type]any),
	}
}

// Parent returns the list this one falls back to.
func (l *PolicyList) Parent() *PolicyList {
	return l.parent
}

// Get implements domain.Policies.
func (l *PolicyList) Get(kind reflect.Type, key domain.BuildKey, exactOnly bool) (any, domain.Policies, bool) {
	if exactOnly {
		if p, ok := l.local(kind, key); ok {
			return p, l, true
		}
		return nil, nil, false
	}

	if p, list, ok := l.chain(kind, key); ok {
		return p, list, true
	}
	if !key.IsTypeOnly() {
		if p, list, ok := l.chain(kind, key.TypeKey()); ok {
			return p, list, true
		}
	}
	for list := l; list != nil; list = list.parent {
		if p, ok := list.defaultFor(kind); ok {
			return p, list, true
		}
	}
	return nil, nil, false
}

func (l *PolicyList) chain(kind reflect.Type, key domain.BuildKey) (any, *PolicyList, bool) {
	for list := l; list != nil; list = list.parent {
		if p, ok := list.local(kind, key); ok {
			return p, list, true
		}
	}
	return nil, nil, false
}

func (l *PolicyList) local(kind reflect.Type, key domain.BuildKey) (any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.policies[policyKey{kind: kind, key: key}]
	return p, ok
}

func (l *PolicyList) defaultFor(kind reflect.Type) (any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.defaults[kind]
	return p, ok
}

// Set implements domain.Policies.
func (l *PolicyList) Set(kind reflect.Type, key domain.BuildKey, policy any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies[policyKey{kind: kind, key: key}] = policy
}

// SetDefault implements domain.Policies.
func (l *PolicyList) SetDefault(kind reflect.Type, policy any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defaults[kind] = policy
}

// Clear implements domain.Policies.
func (l *PolicyList) Clear(kind reflect.Type, key domain.BuildKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.policies, policyKey{kind: kind, key: key})
}

// ClearKey removes every kind of policy stored under exactly key.
func (l *PolicyList) ClearKey(key domain.BuildKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for pk := range l.policies {
		if pk.key == key {
			delete(l.policies, pk)
		}
	}
}

// Keys lists the keys holding a policy of kind in this list, sorted by name.
func (l *PolicyList) Keys(kind reflect.Type) []domain.BuildKey {
	l.mu.RLock()
	keys := make([]domain.BuildKey, 0, len(l.policies))
	for pk := range l.policies {
		if pk.kind == kind {
			keys = append(keys, pk.key)
		}
	}
	l.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Len returns the number of keyed policies held locally.
func (l *PolicyList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.policies)
}
