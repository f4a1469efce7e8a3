package domain

import (
	"errors"
	"strconv"
)

// Common domain errors
var (
	ErrInvalidUsage            = errors.New("invalid usage")
	ErrConstructionMismatch    = errors.New("construction mismatch")
	ErrNoConstructor           = errors.New("no constructor registered")
	ErrNoMatchingConstructor   = errors.New("no constructor matches signature")
	ErrAmbiguousConstructor    = errors.New("ambiguous constructor")
	ErrArgumentMismatch        = errors.New("constructor argument mismatch")
	ErrNotInterceptable        = errors.New("type cannot be intercepted")
	ErrNotInterface            = errors.New("type is not an interface")
	ErrInterfaceNotImplemented = errors.New("proxy does not implement interface")
	ErrNotABehavior            = errors.New("resolved value is not an interception behavior")
	ErrBuildDepthExceeded      = errors.New("maximum build depth exceeded")
	ErrUnexpectedType          = errors.New("resolved value has unexpected type")
)

// ConstructionMismatchError is returned when a proxy type has no constructor
// mirroring the signature chosen for the original type.
type ConstructionMismatchError struct {
	ProxyType string
	Original  string
	Signature Signature
	Err       error
}

func (e *ConstructionMismatchError) Error() string {
	msg := "construction mismatch: proxy " + strconv.Quote(e.ProxyType) +
		" has no constructor " + e.Signature.String() +
		" matching " + strconv.Quote(e.Original)
	if e.Err != nil && !errors.Is(e.Err, ErrNoMatchingConstructor) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is lets errors.Is match ErrConstructionMismatch.
func (e *ConstructionMismatchError) Is(target error) bool {
	return target == ErrConstructionMismatch
}

func (e *ConstructionMismatchError) Unwrap() error {
	return e.Err
}

// BuildPhase names the half of the strategy chain a failure occurred in.
type BuildPhase string

const (
	// PhaseForward is the pre-construction walk over the strategy chain.
	PhaseForward BuildPhase = "forward"
	// PhaseReverse is the post-construction unwind.
	PhaseReverse BuildPhase = "reverse"
)

// BuildError wraps errors raised by a strategy with the build it aborted.
type BuildError struct {
	Key      BuildKey
	Strategy string
	Phase    BuildPhase
	Err      error
}

func (e *BuildError) Error() string {
	return "build " + e.Key.String() + ": " + e.Strategy + " (" + string(e.Phase) + "): " + e.Err.Error()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
