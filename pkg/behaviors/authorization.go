package behaviors

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// DefaultAuthorizationQuery is evaluated when no query is configured.
const DefaultAuthorizationQuery = "data.intercept.authz.allow"

// Authorization evaluates a rego policy before each call. The policy sees
// input.type, input.method and input.args and must produce true to allow.
type Authorization struct {
	query rego.PreparedEvalQuery
}

// NewAuthorization compiles module and prepares query.
func NewAuthorization(ctx context.Context, module, query string) (*Authorization, error) {
	if strings.TrimSpace(module) == "" {
		return nil, errors.New("authorization requires a rego module")
	}
	if strings.TrimSpace(query) == "" {
		query = DefaultAuthorizationQuery
	}

	prepared, err := rego.New(
		rego.Query(query),
		rego.Module("intercept_authz.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile authorization policy: %w", err)
	}
	return &Authorization{query: prepared}, nil
}

// Invoke evaluates the policy and only continues when it allows the call.
func (a *Authorization) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	args := inv.Arguments
	if args == nil {
		args = []any{}
	}
	input := map[string]any{
		"type":   inv.TypeName,
		"method": inv.Method,
		"args":   args,
	}

	rs, err := a.query.Eval(inv.Context, rego.EvalInput(input))
	if err != nil {
		return domain.ReturnError(fmt.Errorf("evaluate authorization policy: %w", err))
	}
	if !rs.Allowed() {
		return domain.ReturnError(fmt.Errorf("%w: %s.%s", ErrCallDenied, inv.TypeName, inv.Method))
	}
	return next(inv)
}

// RequiredInterfaces returns nil.
func (a *Authorization) RequiredInterfaces() []reflect.Type { return nil }

// WillExecute returns true.
func (a *Authorization) WillExecute() bool { return true }

var _ domain.Behavior = (*Authorization)(nil)
