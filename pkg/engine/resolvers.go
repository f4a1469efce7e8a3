package engine

import (
	"fmt"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// ValueResolver supplies a fixed argument.
type ValueResolver struct {
	Value any
}

// Resolve returns the fixed value.
func (r ValueResolver) Resolve(domain.BuildContext) (any, error) {
	return r.Value, nil
}

// DependencyResolver supplies an argument by building another key.
type DependencyResolver struct {
	Key domain.BuildKey
}

// Resolve runs a nested build for the dependency key.
func (r DependencyResolver) Resolve(bc domain.BuildContext) (any, error) {
	if bc == nil {
		return nil, fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
	}
	value, err := bc.Resolve(r.Key)
	if err != nil {
		return nil, fmt.Errorf("resolve dependency %s: %w", r.Key, err)
	}
	return value, nil
}

var (
	_ domain.ParameterResolver = ValueResolver{}
	_ domain.ParameterResolver = DependencyResolver{}
)
