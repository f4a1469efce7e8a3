package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/storage"
)

// maxBuildDepth bounds nested builds so dependency cycles fail instead of overflowing the stack.
const maxBuildDepth = 64

// buildContext is the engine's domain.BuildContext for a single build invocation.
type buildContext struct {
	ctx      context.Context
	builder  *Builder
	parent   *buildContext
	key      domain.BuildKey
	id       string
	depth    int
	existing any
	complete bool
	policies *storage.PolicyList
	logger   *slog.Logger
}

var _ domain.BuildContext = (*buildContext)(nil)

func newBuildContext(ctx context.Context, b *Builder, parent *buildContext, key domain.BuildKey, existing any) *buildContext {
	if ctx == nil {
		ctx = context.Background()
	}

	// Build-local policies always layer over the persistent store, never over
	// a parent build, so overrides made for one key stay invisible to its dependencies.
	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}

	id := uuid.NewString()
	return &buildContext{
		ctx:      ctx,
		builder:  b,
		parent:   parent,
		key:      key,
		id:       id,
		depth:    depth,
		existing: existing,
		policies: storage.NewPolicyList(b.policies),
		logger:   b.logger.With("build_key", key.String(), "build_id", id),
	}
}

func (c *buildContext) Context() context.Context { return c.ctx }

func (c *buildContext) BuildKey() domain.BuildKey { return c.key }

func (c *buildContext) BuildID() string { return c.id }

func (c *buildContext) Existing() any { return c.existing }

func (c *buildContext) SetExisting(instance any) { c.existing = instance }

func (c *buildContext) BuildComplete() bool { return c.complete }

func (c *buildContext) SetBuildComplete(done bool) { c.complete = done }

func (c *buildContext) Policies() domain.Policies { return c.policies }

func (c *buildContext) Logger() *slog.Logger { return c.logger }

func (c *buildContext) Depth() int { return c.depth }

func (c *buildContext) Parent() domain.BuildContext {
	if c.parent == nil {
		return nil
	}
	return c.parent
}

// Resolve runs a nested build for key within this build.
func (c *buildContext) Resolve(key domain.BuildKey) (any, error) {
	return c.builder.build(c.ctx, c, key, nil)
}
