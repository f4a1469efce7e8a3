package engine

import (
	"fmt"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// ParameterPolicy pins constructor arguments for a build key. A nil entry, or a
// position past the end, falls back to dependency resolution by parameter type.
type ParameterPolicy struct {
	Resolvers []domain.ParameterResolver
}

// ValueParameters pins literal argument values.
func ValueParameters(values ...any) *ParameterPolicy {
	resolvers := make([]domain.ParameterResolver, len(values))
	for i, v := range values {
		resolvers[i] = ValueResolver{Value: v}
	}
	return &ParameterPolicy{Resolvers: resolvers}
}

// DefaultConstructorSelector selects the longest constructor registered for the
// build key in its *domain.ConstructorSet policy.
type DefaultConstructorSelector struct{}

// SelectConstructor implements domain.ConstructorSelector.
func (DefaultConstructorSelector) SelectConstructor(bc domain.BuildContext) (domain.SelectedConstructor, error) {
	if bc == nil {
		return domain.SelectedConstructor{}, fmt.Errorf("%w: nil build context", domain.ErrInvalidUsage)
	}
	key := bc.BuildKey()

	set, ok := domain.GetPolicy[*domain.ConstructorSet](bc.Policies(), key)
	if !ok || set.Len() == 0 {
		return domain.SelectedConstructor{}, fmt.Errorf("%w for %s", domain.ErrNoConstructor, key)
	}
	ctor, err := set.Longest()
	if err != nil {
		return domain.SelectedConstructor{}, fmt.Errorf("select constructor for %s: %w", key, err)
	}

	params, _ := domain.GetPolicy[*ParameterPolicy](bc.Policies(), key)
	signature := ctor.Params()
	resolvers := make([]domain.ParameterResolver, len(signature))
	for i, paramType := range signature {
		if params != nil && i < len(params.Resolvers) && params.Resolvers[i] != nil {
			resolvers[i] = params.Resolvers[i]
			continue
		}
		resolvers[i] = DependencyResolver{Key: domain.NewBuildKey(paramType, "")}
	}

	return domain.SelectedConstructor{Constructor: ctor, Resolvers: resolvers}, nil
}

var _ domain.ConstructorSelector = DefaultConstructorSelector{}
