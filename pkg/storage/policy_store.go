// Package storage provides the hierarchical policy lists consulted by build strategies.
// A persistent list holds configured policies; every build layers a transient list
// on top of it for build-local scratch state.
package storage

import (
	"reflect"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// PolicyStore exposes the policy lookup plus the inspection and maintenance
// operations used by the container.
type PolicyStore interface {
	domain.Policies
	// Keys lists the build keys holding a policy of kind in this list.
	Keys(kind reflect.Type) []domain.BuildKey
	// ClearKey removes every policy stored under exactly key in this list.
	ClearKey(key domain.BuildKey)
}

var _ PolicyStore = (*PolicyList)(nil)
