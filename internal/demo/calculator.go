// Package demo provides a small calculator service used by the CLI and the
// end-to-end tests to exercise interception.
package demo

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrDivideByZero is returned by Divide for a zero divisor.
var ErrDivideByZero = errors.New("divide by zero")

// Calculator is the intercepted service contract.
type Calculator interface {
	Add(ctx context.Context, a, b int) (int, error)
	Divide(ctx context.Context, a, b int) (int, error)
	// Seed is the offset added to every sum.
	Seed() int
}

// BasicCalculator is the real Calculator implementation.
type BasicCalculator struct {
	seed   int
	closed atomic.Bool
}

// NewCalculator returns a calculator with seed 0.
func NewCalculator() *BasicCalculator {
	return &BasicCalculator{}
}

// NewSeededCalculator returns a calculator adding seed to every sum.
func NewSeededCalculator(seed int) *BasicCalculator {
	return &BasicCalculator{seed: seed}
}

// Add returns a+b+seed.
func (c *BasicCalculator) Add(ctx context.Context, a, b int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return a + b + c.seed, nil
}

// Divide returns a/b.
func (c *BasicCalculator) Divide(ctx context.Context, a, b int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if b == 0 {
		return 0, ErrDivideByZero
	}
	return a / b, nil
}

// Seed returns the configured seed.
func (c *BasicCalculator) Seed() int { return c.seed }

// Close marks the calculator closed.
func (c *BasicCalculator) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *BasicCalculator) Closed() bool { return c.closed.Load() }

var _ Calculator = (*BasicCalculator)(nil)
