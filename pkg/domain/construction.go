package domain

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Signature is the ordered list of constructor parameter types.
type Signature []reflect.Type

// SignatureOf builds a signature from the given parameter types.
func SignatureOf(params ...reflect.Type) Signature {
	return Signature(params)
}

// String renders the signature as "(int, string)"; it is also the registry index.
func (s Signature) String() string {
	parts := make([]string, len(s))
	for i, t := range s {
		if t == nil {
			parts[i] = "<nil>"
			continue
		}
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Equal reports whether both signatures list identical types in the same order.
func (s Signature) Equal(other Signature) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// InvokeConstructorFunc creates an instance from already resolved arguments.
type InvokeConstructorFunc func(args []any) (any, error)

// Constructor is a constructor handle: the type it declares, its parameter
// signature and the function producing the instance.
type Constructor struct {
	declaring reflect.Type
	params    Signature
	invoke    InvokeConstructorFunc
}

// NewConstructor returns a constructor declared on declaring.
func NewConstructor(declaring reflect.Type, params Signature, invoke InvokeConstructorFunc) Constructor {
	return Constructor{declaring: declaring, params: params, invoke: invoke}
}

var errorType = reflect.TypeFor[error]()

// ConstructorOf adapts a Go constructor function. fn must have the shape
// func(A, B, ...) T or func(A, B, ...) (T, error); T becomes the declaring type.
func ConstructorOf(fn any) (Constructor, error) {
	if fn == nil {
		return Constructor{}, fmt.Errorf("%w: nil constructor function", ErrInvalidUsage)
	}
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return Constructor{}, fmt.Errorf("%w: constructor must be a function, got %s", ErrInvalidUsage, ft)
	}
	if ft.IsVariadic() {
		return Constructor{}, fmt.Errorf("%w: variadic constructor %s", ErrInvalidUsage, ft)
	}
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return Constructor{}, fmt.Errorf("%w: constructor %s must return T or (T, error)", ErrInvalidUsage, ft)
	}

	params := make(Signature, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
	}

	invoke := func(args []any) (any, error) {
		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			v, err := argumentValue(arg, params[i])
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			in[i] = v
		}
		out := fv.Call(in)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}

	return NewConstructor(ft.Out(0), params, invoke), nil
}

// MustConstructorOf is ConstructorOf that panics on malformed functions.
// Useful for package-level proxy definitions.
func MustConstructorOf(fn any) Constructor {
	c, err := ConstructorOf(fn)
	if err != nil {
		panic(err)
	}
	return c
}

func argumentValue(arg any, param reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch param.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(param), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil for %s", ErrArgumentMismatch, param)
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(param) {
		return v, nil
	}
	// Config files decode numbers loosely (int for int64 parameters and the like).
	if numericKind(v.Kind()) != 0 && numericKind(param.Kind()) != 0 {
		return convertNumber(v, param)
	}
	return reflect.Value{}, fmt.Errorf("%w: %s is not assignable to %s", ErrArgumentMismatch, v.Type(), param)
}

const (
	kindInt = iota + 1
	kindUint
	kindFloat
)

func numericKind(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return kindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return kindUint
	case reflect.Float32, reflect.Float64:
		return kindFloat
	}
	return 0
}

// convertNumber converts v to param only when the value is kept exactly:
// no truncated fractions, no overflow, no sign change.
func convertNumber(v reflect.Value, param reflect.Type) (reflect.Value, error) {
	mismatch := func() (reflect.Value, error) {
		return reflect.Value{}, fmt.Errorf("%w: %s %v does not fit %s", ErrArgumentMismatch, v.Type(), v.Interface(), param)
	}
	out := reflect.New(param).Elem()

	switch numericKind(param.Kind()) {
	case kindInt:
		var n int64
		switch numericKind(v.Kind()) {
		case kindInt:
			n = v.Int()
		case kindUint:
			if v.Uint() > math.MaxInt64 {
				return mismatch()
			}
			n = int64(v.Uint())
		case kindFloat:
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return mismatch()
			}
			n = int64(f)
		}
		if out.OverflowInt(n) {
			return mismatch()
		}
		out.SetInt(n)

	case kindUint:
		var n uint64
		switch numericKind(v.Kind()) {
		case kindInt:
			if v.Int() < 0 {
				return mismatch()
			}
			n = uint64(v.Int())
		case kindUint:
			n = v.Uint()
		case kindFloat:
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return mismatch()
			}
			n = uint64(f)
		}
		if out.OverflowUint(n) {
			return mismatch()
		}
		out.SetUint(n)

	case kindFloat:
		var f float64
		switch numericKind(v.Kind()) {
		case kindInt:
			f = float64(v.Int())
			if int64(f) != v.Int() {
				return mismatch()
			}
		case kindUint:
			f = float64(v.Uint())
			if f >= math.MaxUint64 || uint64(f) != v.Uint() {
				return mismatch()
			}
		case kindFloat:
			f = v.Float()
		}
		if out.OverflowFloat(f) {
			return mismatch()
		}
		out.SetFloat(f)
	}
	return out, nil
}

// Declaring returns the type the constructor produces.
func (c Constructor) Declaring() reflect.Type { return c.declaring }

// Params returns the ordered parameter signature.
func (c Constructor) Params() Signature { return c.params }

// IsZero reports whether c is an empty handle.
func (c Constructor) IsZero() bool { return c.invoke == nil }

// Invoke creates an instance from resolved arguments.
func (c Constructor) Invoke(args []any) (any, error) {
	if c.invoke == nil {
		return nil, fmt.Errorf("%w: empty constructor handle", ErrInvalidUsage)
	}
	if len(args) != len(c.params) {
		return nil, fmt.Errorf("%w: %s%s called with %d arguments",
			ErrArgumentMismatch, c.declaring, c.params, len(args))
	}
	return c.invoke(args)
}

// String renders the constructor as "pkg.Type(int)".
func (c Constructor) String() string {
	name := "<nil>"
	if c.declaring != nil {
		name = c.declaring.String()
	}
	return name + c.params.String()
}

// ConstructorSet indexes a type's constructors by signature.
type ConstructorSet struct {
	order []Constructor
	index map[string][]int
}

// NewConstructorSet returns a set holding ctors in declaration order.
func NewConstructorSet(ctors ...Constructor) *ConstructorSet {
	s := &ConstructorSet{index: make(map[string][]int)}
	for _, c := range ctors {
		s.Add(c)
	}
	return s
}

// Add appends a constructor. Duplicate signatures are kept and reported as
// ambiguous on lookup.
func (s *ConstructorSet) Add(c Constructor) {
	if s.index == nil {
		s.index = make(map[string][]int)
	}
	sig := c.params.String()
	s.index[sig] = append(s.index[sig], len(s.order))
	s.order = append(s.order, c)
}

// Len returns the number of constructors.
func (s *ConstructorSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// All returns the constructors in declaration order.
func (s *ConstructorSet) All() []Constructor {
	if s == nil {
		return nil
	}
	out := make([]Constructor, len(s.order))
	copy(out, s.order)
	return out
}

// Lookup returns the unique constructor whose ordered parameter types equal sig.
func (s *ConstructorSet) Lookup(sig Signature) (Constructor, error) {
	if s == nil {
		return Constructor{}, fmt.Errorf("%w %s", ErrNoMatchingConstructor, sig)
	}
	var found []Constructor
	for _, i := range s.index[sig.String()] {
		// The index is keyed by type names; distinct types may share a name.
		if s.order[i].params.Equal(sig) {
			found = append(found, s.order[i])
		}
	}
	switch len(found) {
	case 0:
		return Constructor{}, fmt.Errorf("%w %s", ErrNoMatchingConstructor, sig)
	case 1:
		return found[0], nil
	default:
		return Constructor{}, fmt.Errorf("%w: %d constructors with signature %s", ErrAmbiguousConstructor, len(found), sig)
	}
}

// Longest returns the constructor with the most parameters. Several candidates
// of the same maximal arity are ambiguous.
func (s *ConstructorSet) Longest() (Constructor, error) {
	if s.Len() == 0 {
		return Constructor{}, ErrNoConstructor
	}
	best := -1
	tied := false
	for i, c := range s.order {
		switch {
		case best < 0 || len(c.params) > len(s.order[best].params):
			best = i
			tied = false
		case len(c.params) == len(s.order[best].params):
			tied = true
		}
	}
	if tied {
		return Constructor{}, fmt.Errorf("%w: several constructors with %d parameters on %s",
			ErrAmbiguousConstructor, len(s.order[best].params), s.order[best].declaring)
	}
	return s.order[best], nil
}
