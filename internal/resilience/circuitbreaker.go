// Package resilience provides circuit breaker and classifier failover
// primitives.
//
// The central type is [CircuitBreaker], a classic three-state breaker
// (closed, open, half-open) that stops a stream from hammering a dead
// inference backend once per cycle. [FallbackGroup] composes several values of
// the same type with per-entry breakers, and [ClassifierFallback] applies it to
// classifier backends: a failing primary is bypassed in favour of healthy
// fallbacks.
//
// A call rejected by an open breaker fails immediately; the stream treats it
// like any other adapter failure and drops the cycle.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state; all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected immediately with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen is the trial state entered after the reset timeout. A limited
	// number of calls are allowed through; if they succeed the breaker closes,
	// otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages and metrics.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 10s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful trial calls required in the
	// half-open state before the breaker closes. Default: 2.
	HalfOpenMax int

	// OnStateChange, if set, is called after every state transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	halfOpenCalls   int
	halfOpenOK      int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Now,
		state:         StateClosed,
	}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state at most
// HalfOpenMax trial calls are in flight.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	var changed []transition
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		changed = append(changed, cb.setState(StateHalfOpen))
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	trial := cb.state == StateHalfOpen
	if trial {
		cb.halfOpenCalls++
	}
	cb.mu.Unlock()
	cb.notify(changed)

	err := fn()

	cb.mu.Lock()
	var t transition
	if err != nil {
		t = cb.recordFailure(trial)
	} else {
		t = cb.recordSuccess(trial)
	}
	cb.mu.Unlock()
	cb.notify([]transition{t})
	return err
}

type transition struct{ from, to State }

// setState moves to s and resets the per-state counters. Must be called with
// cb.mu held.
func (cb *CircuitBreaker) setState(s State) transition {
	t := transition{from: cb.state, to: s}
	cb.state = s
	switch s {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateHalfOpen:
		cb.halfOpenCalls, cb.halfOpenOK = 0, 0
	case StateClosed:
		cb.consecutiveFail = 0
		cb.halfOpenCalls, cb.halfOpenOK = 0, 0
	}
	return t
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(trial bool) transition {
	if trial {
		// Any failed trial re-opens immediately.
		if cb.state == StateHalfOpen {
			return cb.setState(StateOpen)
		}
		return transition{}
	}
	cb.consecutiveFail++
	if cb.state == StateClosed && cb.consecutiveFail >= cb.maxFailures {
		return cb.setState(StateOpen)
	}
	return transition{}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(trial bool) transition {
	if !trial {
		cb.consecutiveFail = 0
		return transition{}
	}
	cb.halfOpenOK++
	if cb.state == StateHalfOpen && cb.halfOpenOK >= cb.halfOpenMax {
		return cb.setState(StateClosed)
	}
	return transition{}
}

func (cb *CircuitBreaker) notify(ts []transition) {
	for _, t := range ts {
		if t.from == t.to {
			continue
		}
		switch t.to {
		case StateOpen:
			slog.Warn("circuit breaker opened", "name", cb.name, "from", t.from.String())
		default:
			slog.Info("circuit breaker state change", "name", cb.name, "from", t.from.String(), "to", t.to.String())
		}
		if cb.onStateChange != nil {
			cb.onStateChange(cb.name, t.from, t.to)
		}
	}
}

// State returns the current [State] of the breaker. If the breaker is open and
// the reset timeout has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset manually forces the breaker back to [StateClosed], clearing all failure
// counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.setState(StateClosed)
	cb.mu.Unlock()
	cb.notify([]transition{t})
}
