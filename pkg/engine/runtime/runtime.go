// Package runtime defines the contracts shared by the build engine and the
// strategies plugged into it, keeping strategy logic decoupled from execution mechanics.
package runtime

import (
	"github.com/polisai/polis-intercept/pkg/domain"
)

// Stage orders strategies in the build chain. Strategies run forward in
// ascending stage order and unwind in reverse.
type Stage int

const (
	// StageSetup runs before anything else, e.g. to prepare build-local policies.
	StageSetup Stage = iota
	// StageTypeMapping redirects a build key to another key.
	StageTypeMapping
	// StageLifetime returns cached instances and stores built ones.
	StageLifetime
	// StagePreCreation adjusts how the instance will be created. Interception runs here.
	StagePreCreation
	// StageCreation instantiates the object.
	StageCreation
	// StageInitialization configures the created object.
	StageInitialization
	// StagePostInitialization runs once the object is fully initialised.
	StagePostInitialization
)

var stageNames = map[Stage]string{
	StageSetup:              "setup",
	StageTypeMapping:        "type-mapping",
	StageLifetime:           "lifetime",
	StagePreCreation:        "pre-creation",
	StageCreation:           "creation",
	StageInitialization:     "initialization",
	StagePostInitialization: "post-initialization",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Strategy is one stage of the build chain. PreBuildUp runs on the way down,
// PostBuildUp on the way back up, once each per build.
type Strategy interface {
	PreBuildUp(bc domain.BuildContext) error
	PostBuildUp(bc domain.BuildContext) error
}

// NoopStrategy can be embedded by strategies that only need one phase.
type NoopStrategy struct{}

// PreBuildUp does nothing.
func (NoopStrategy) PreBuildUp(domain.BuildContext) error { return nil }

// PostBuildUp does nothing.
func (NoopStrategy) PostBuildUp(domain.BuildContext) error { return nil }
