package domain

import (
	"context"
	"log/slog"
)

// BuildContext carries the state of one build invocation through the strategy chain.
type BuildContext interface {
	// Context returns the caller's context for the build.
	Context() context.Context
	// BuildKey identifies what is being built.
	BuildKey() BuildKey
	// BuildID is unique per build invocation, nested builds included.
	BuildID() string
	// Existing returns the instance built or supplied so far, nil if none.
	Existing() any
	SetExisting(instance any)
	// BuildComplete stops the forward walk once set.
	BuildComplete() bool
	SetBuildComplete(done bool)
	// Policies is the build-local policy list, chained to the persistent store.
	Policies() Policies
	Logger() *slog.Logger
	// Resolve runs a nested build for key and returns its result.
	Resolve(key BuildKey) (any, error)
}
