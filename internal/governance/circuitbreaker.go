package governance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrCircuitOpen is matched by every OpenError.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError is returned for calls rejected by an open breaker.
type OpenError struct {
	Method     string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("%s: %v", e.Method, ErrCircuitOpen)
	}
	return fmt.Sprintf("%s: %v, retry in %s", e.Method, ErrCircuitOpen, e.RetryAfter.Round(time.Millisecond))
}

func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// BreakerState is the state of one breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// CircuitBreakerConfig defines thresholds for circuit breaking.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the circuit.
	FailureThreshold int
	// OpenTimeout is how long the circuit stays open before probing again.
	OpenTimeout time.Duration
	// HalfOpenProbes is the number of probe calls admitted while half-open.
	// That many successes close the circuit; any failure reopens it.
	HalfOpenProbes int
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 1
	}
	return c
}

// Breaker guards calls to one intercepted method.
type Breaker struct {
	method string
	config CircuitBreakerConfig
	now    func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int // consecutive, while closed
	probes   int // admitted while half-open
	probeOK  int
	openedAt time.Time
	calls    uint64
	failed   uint64
	rejected uint64
}

// NewBreaker returns a closed breaker for method. Zero config values take defaults.
func NewBreaker(method string, config CircuitBreakerConfig) *Breaker {
	return &Breaker{
		method: method,
		config: config.withDefaults(),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Do runs fn unless the circuit is open. A cancelled ctx is returned before
// the breaker is consulted and does not count as a failure.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		wait := b.openedAt.Add(b.config.OpenTimeout).Sub(b.now())
		if wait > 0 {
			b.rejected++
			return &OpenError{Method: b.method, RetryAfter: wait}
		}
		b.setState(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.config.HalfOpenProbes {
			b.rejected++
			return &OpenError{Method: b.method}
		}
		b.probes++
	}
	b.calls++
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failed++
	}
	switch b.state {
	case StateClosed:
		if err == nil {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		if err != nil {
			b.setState(StateOpen)
			return
		}
		b.probeOK++
		if b.probeOK >= b.config.HalfOpenProbes {
			b.setState(StateClosed)
		}
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(state BreakerState) {
	b.state = state
	b.failures = 0
	b.probes = 0
	b.probeOK = 0
	if state == StateOpen {
		b.openedAt = b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats is a snapshot of one breaker.
type BreakerStats struct {
	Method              string       `json:"method" yaml:"method"`
	State               BreakerState `json:"state" yaml:"state"`
	ConsecutiveFailures int          `json:"consecutiveFailures" yaml:"consecutiveFailures"`
	Calls               uint64       `json:"calls" yaml:"calls"`
	Failures            uint64       `json:"failures" yaml:"failures"`
	Rejected            uint64       `json:"rejected" yaml:"rejected"`
	OpenedAt            *time.Time   `json:"openedAt,omitempty" yaml:"openedAt,omitempty"`
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := BreakerStats{
		Method:              b.method,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		Calls:               b.calls,
		Failures:            b.failed,
		Rejected:            b.rejected,
	}
	if b.state == StateOpen {
		opened := b.openedAt
		s.OpenedAt = &opened
	}
	return s
}

// BreakerSet hands out one breaker per method, all sharing a config.
type BreakerSet struct {
	config CircuitBreakerConfig
	now    func() time.Time

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewBreakerSet creates an empty set whose breakers use config.
func NewBreakerSet(config CircuitBreakerConfig) *BreakerSet {
	return &BreakerSet{
		config:   config.withDefaults(),
		now:      time.Now,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for method, creating it on first use.
func (s *BreakerSet) For(method string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[method]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[method]; ok {
		return b
	}
	b = NewBreaker(method, s.config)
	b.now = s.now
	s.breakers[method] = b
	return b
}

// Stats returns a snapshot of every breaker, sorted by method.
func (s *BreakerSet) Stats() []BreakerStats {
	s.mu.RLock()
	stats := make([]BreakerStats, 0, len(s.breakers))
	for _, b := range s.breakers {
		stats = append(stats, b.Stats())
	}
	s.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Method < stats[j].Method })
	return stats
}
