package behaviors

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// Matching runs an inner behavior only for calls matching a CEL rule. The rule
// sees type, method and args and must evaluate to a bool, e.g.
//
//	method == "Divide" && args[1] == 0
type Matching struct {
	rule    string
	program cel.Program
	inner   domain.Behavior
}

// NewMatching compiles rule and gates inner with it.
func NewMatching(rule string, inner domain.Behavior) (*Matching, error) {
	if inner == nil {
		return nil, errors.New("matching requires an inner behavior")
	}

	env, err := cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("args", cel.ListType(cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}

	ast, issues := env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile rule %q: %w", rule, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %q must evaluate to bool, got %s", rule, ast.OutputType())
	}

	program, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program rule %q: %w", rule, err)
	}
	return &Matching{rule: rule, program: program, inner: inner}, nil
}

// Rule returns the CEL source.
func (m *Matching) Rule() string { return m.rule }

// Invoke delegates to the inner behavior when the rule matches.
func (m *Matching) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	args := inv.Arguments
	if args == nil {
		args = []any{}
	}
	out, _, err := m.program.ContextEval(inv.Context, map[string]any{
		"type":   inv.TypeName,
		"method": inv.Method,
		"args":   args,
	})
	if err != nil {
		return domain.ReturnError(fmt.Errorf("evaluate rule %q: %w", m.rule, err))
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return domain.ReturnError(fmt.Errorf("rule %q: result not bool", m.rule))
	}
	if !matched {
		return next(inv)
	}
	return m.inner.Invoke(inv, next)
}

// RequiredInterfaces returns the inner behavior's interfaces.
func (m *Matching) RequiredInterfaces() []reflect.Type { return m.inner.RequiredInterfaces() }

// WillExecute reports whether the inner behavior executes.
func (m *Matching) WillExecute() bool { return m.inner.WillExecute() }

var _ domain.Behavior = (*Matching)(nil)
