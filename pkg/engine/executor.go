package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-intercept/pkg/domain"
	"github.com/polisai/polis-intercept/pkg/engine/runtime"
	"github.com/polisai/polis-intercept/pkg/storage"
	"github.com/polisai/polis-intercept/pkg/telemetry"
)

// Builder runs build requests through an ordered chain of strategies.
type Builder struct {
	policies *storage.PolicyList
	logger   *slog.Logger

	mu         sync.RWMutex
	strategies []registeredStrategy
}

// registeredStrategy pairs a strategy with its position in the chain.
type registeredStrategy struct {
	name     string
	stage    runtime.Stage
	seq      int
	strategy runtime.Strategy
}

// StrategyInfo describes a registered strategy.
type StrategyInfo struct {
	Name  string
	Stage runtime.Stage
}

// BuilderConfig holds dependencies for creating a Builder.
type BuilderConfig struct {
	// Policies is the persistent policy list every build layers over.
	Policies *storage.PolicyList
	Logger   *slog.Logger
}

// NewBuilder creates a builder with an empty strategy chain.
func NewBuilder(cfg BuilderConfig) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policies := cfg.Policies
	if policies == nil {
		policies = storage.NewPolicyList(nil)
	}

	return &Builder{
		policies: policies,
		logger:   logger,
	}
}

// Policies returns the persistent policy list.
func (b *Builder) Policies() *storage.PolicyList {
	return b.policies
}

// AddStrategy registers a strategy at stage. Strategies sharing a stage run in
// registration order.
func (b *Builder) AddStrategy(stage runtime.Stage, name string, strategy runtime.Strategy) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.strategies = append(b.strategies, registeredStrategy{
		name:     name,
		stage:    stage,
		seq:      len(b.strategies),
		strategy: strategy,
	})
	sort.SliceStable(b.strategies, func(i, j int) bool {
		if b.strategies[i].stage != b.strategies[j].stage {
			return b.strategies[i].stage < b.strategies[j].stage
		}
		return b.strategies[i].seq < b.strategies[j].seq
	})
}

// Strategies lists the chain in execution order.
func (b *Builder) Strategies() []StrategyInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]StrategyInfo, len(b.strategies))
	for i, rs := range b.strategies {
		out[i] = StrategyInfo{Name: rs.name, Stage: rs.stage}
	}
	return out
}

func (b *Builder) chain() []registeredStrategy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]registeredStrategy, len(b.strategies))
	copy(out, b.strategies)
	return out
}

// BuildUp builds key. existing, when non-nil, is an already supplied instance
// that strategies may configure but must not replace.
func (b *Builder) BuildUp(ctx context.Context, key domain.BuildKey, existing any) (any, error) {
	return b.build(ctx, nil, key, existing)
}

func (b *Builder) build(ctx context.Context, parent *buildContext, key domain.BuildKey, existing any) (any, error) {
	if key.Type == nil {
		return nil, fmt.Errorf("%w: build key without type", domain.ErrInvalidUsage)
	}
	if parent != nil && parent.depth+1 >= maxBuildDepth {
		return nil, fmt.Errorf("%w: resolving %s at depth %d", domain.ErrBuildDepthExceeded, key, parent.depth+1)
	}

	bc := newBuildContext(ctx, b, parent, key, existing)
	start := time.Now()

	tracer := otel.Tracer("intercept.container")
	spanCtx, span := tracer.Start(bc.ctx, "container.build", trace.WithAttributes(
		attribute.String("build.key", key.String()),
		attribute.String("build.id", bc.id),
		attribute.Int("build.depth", bc.depth),
	))
	defer span.End()
	bc.ctx = spanCtx

	bc.logger.Debug("build started", "depth", bc.depth)

	result, err := b.run(bc, tracer)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		bc.logger.Error("build failed", "error", err)
	} else {
		bc.logger.Debug("build completed", "duration", time.Since(start))
	}

	telemetry.RecordBuild(bc.ctx, telemetry.BuildMetrics{
		Key:      key.String(),
		Outcome:  outcome,
		Depth:    bc.depth,
		Duration: time.Since(start),
	})

	return result, err
}

// run walks the chain forward until done, then unwinds the strategies that ran.
func (b *Builder) run(bc *buildContext, tracer trace.Tracer) (any, error) {
	strategies := b.chain()

	executed := 0
	for _, rs := range strategies {
		if err := b.runPhase(bc, tracer, rs, domain.PhaseForward); err != nil {
			return nil, err
		}
		executed++
		if bc.complete {
			bc.logger.Debug("build completed early", "strategy", rs.name)
			break
		}
	}

	for i := executed - 1; i >= 0; i-- {
		if err := b.runPhase(bc, tracer, strategies[i], domain.PhaseReverse); err != nil {
			return nil, err
		}
	}

	return bc.existing, nil
}

func (b *Builder) runPhase(bc *buildContext, tracer trace.Tracer, rs registeredStrategy, phase domain.BuildPhase) error {
	parentCtx := bc.ctx
	spanCtx, span := tracer.Start(parentCtx, "container.strategy", trace.WithAttributes(
		attribute.String("strategy.name", rs.name),
		attribute.String("strategy.stage", rs.stage.String()),
		attribute.String("strategy.phase", string(phase)),
	))
	bc.ctx = spanCtx
	defer func() {
		bc.ctx = parentCtx
		span.End()
	}()

	var err error
	if phase == domain.PhaseForward {
		err = rs.strategy.PreBuildUp(bc)
	} else {
		err = rs.strategy.PostBuildUp(bc)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &domain.BuildError{Key: bc.key, Strategy: rs.name, Phase: phase, Err: err}
	}
	return nil
}
