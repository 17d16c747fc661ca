// Package decision implements the hysteresis state machine that turns a stream
// of per-cycle class score vectors into stable, debounced classification
// decisions.
//
// Every cycle the [Engine] records the score vector in its own
// [vote.Aggregator] and compares two plurality votes:
//
//   - prior, the plurality over the evidence older than the last K cycles, and
//   - recent, the plurality over the last K cycles.
//
// A decision fires when the cooldown has elapsed, the prior regime's polarity
// differs from the last decision's polarity and the recent window disagrees
// with the prior regime. The decision reports the prior regime's class: an
// event is finalized once the evidence has moved on from it.
//
// Streak counters of consecutive positive and negative single-frame winners are
// maintained as a secondary debounce signal and exposed through
// [Engine.State]. They never gate a decision.
//
// An Engine belongs to exactly one audio stream and is not safe for concurrent
// use. Observe never allocates and never panics: a score vector of the wrong
// length is ignored.
package decision

import (
	"fmt"

	"github.com/MrWong99/trafficear/pkg/types"
	"github.com/MrWong99/trafficear/pkg/vote"
)

// State is the coarse state of the hysteresis machine.
type State int

const (
	// StateIdle is the state at stream start and right after a decision.
	StateIdle State = iota

	// StateAccumulatingPositive means the last single-frame winner was a
	// non-background class.
	StateAccumulatingPositive

	// StateAccumulatingNegative means the last single-frame winner was the
	// background class.
	StateAccumulatingNegative
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulatingPositive:
		return "accumulating_positive"
	case StateAccumulatingNegative:
		return "accumulating_negative"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// streakCancel is the length of an opposite-polarity run that cancels an
// in-progress streak.
const streakCancel = 2

// Config holds the engine parameters.
type Config struct {
	// NumClasses is the length of every score vector. Must be positive.
	NumClasses int

	// NegativeClass is the index of the background class.
	NegativeClass int

	// HistoryDepth is K, the number of recent vectors that form the recent
	// window. Must be positive.
	HistoryDepth int

	// Cooldown is the number of cycles after stream start and after every
	// decision during which no decision may fire. Zero disables it.
	Cooldown int
}

// Validate reports whether the configuration is usable. Errors wrap
// [types.ErrInvalidConfiguration].
func (c Config) Validate() error {
	switch {
	case c.NumClasses <= 0:
		return fmt.Errorf("decision: class count %d must be positive: %w", c.NumClasses, types.ErrInvalidConfiguration)
	case c.NegativeClass < 0 || c.NegativeClass >= c.NumClasses:
		return fmt.Errorf("decision: negative class %d out of range [0, %d): %w",
			c.NegativeClass, c.NumClasses, types.ErrInvalidConfiguration)
	case c.HistoryDepth <= 0:
		return fmt.Errorf("decision: history depth %d must be positive: %w", c.HistoryDepth, types.ErrInvalidConfiguration)
	case c.Cooldown < 0:
		return fmt.Errorf("decision: cooldown %d must not be negative: %w", c.Cooldown, types.ErrInvalidConfiguration)
	}
	return nil
}

// Snapshot is a copy of the engine's hysteresis state.
type Snapshot struct {
	State          State
	PositiveStreak int
	NegativeStreak int
	LastPolarity   types.Polarity

	// Cooldown is the number of cycles that still have to pass before a
	// decision may fire.
	Cooldown int

	// Winner is the single-frame winner of the last observed cycle.
	Winner int

	// PriorClass and RecentClass are the plurality classes computed on the
	// last observed cycle.
	PriorClass  int
	RecentClass int

	// Decisions counts decisions emitted since construction or Reset.
	Decisions uint64
}

// Engine is the hysteresis decision engine for one stream.
type Engine[S types.Score] struct {
	cfg   Config
	votes *vote.Aggregator[S]

	state    State
	pos, neg int
	last     types.Polarity
	cooldown int

	winner, prior, recent int
	decisions             uint64
}

// New returns an Engine with zeroed vote history and pool, no recorded
// decision and a full cooldown.
func New[S types.Score](cfg Config) (*Engine[S], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	votes, err := vote.New[S](cfg.NumClasses, cfg.HistoryDepth)
	if err != nil {
		return nil, fmt.Errorf("decision: %w", err)
	}
	return &Engine[S]{
		cfg:      cfg,
		votes:    votes,
		cooldown: cfg.Cooldown,
	}, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine[S]) Config() Config { return e.cfg }

// Observe runs one cycle of the state machine on scores. cycle is the caller's
// cycle number and is only copied into the returned decision. The boolean
// reports whether a decision fired on this cycle.
//
// A vector that does not have exactly NumClasses entries is not a cycle: it
// returns false and leaves the history, pool, streaks and cooldown untouched.
func (e *Engine[S]) Observe(cycle uint64, scores []S) (types.Decision, bool) {
	if len(scores) != e.cfg.NumClasses {
		return types.Decision{}, false
	}
	e.winner = vote.Argmax(scores)
	if e.polarity(e.winner) == types.PolarityPositive {
		e.pos++
		if e.pos >= streakCancel {
			e.neg = 0
		}
		e.state = StateAccumulatingPositive
	} else {
		e.neg++
		if e.neg >= streakCancel {
			e.pos = 0
		}
		e.state = StateAccumulatingNegative
	}

	recent, prior := e.votes.Record(scores)
	e.recent = vote.Plurality(recent, vote.NoExclusion)
	e.prior = vote.Plurality(prior, vote.NoExclusion)

	if !e.shouldDecide() {
		if e.cooldown > 0 {
			e.cooldown--
		}
		return types.Decision{}, false
	}

	d := types.Decision{
		Class:    e.prior,
		Cycle:    cycle,
		Polarity: e.polarity(e.prior),
	}
	e.last = d.Polarity
	e.pos, e.neg = 0, 0
	e.state = StateIdle
	e.cooldown = e.cfg.Cooldown
	e.votes.ResetAfterDecision()
	e.decisions++
	return d, true
}

func (e *Engine[S]) shouldDecide() bool {
	if e.cooldown > 0 {
		return false
	}
	p := e.polarity(e.prior)
	if p == e.last {
		return false
	}
	return p != e.polarity(e.recent)
}

func (e *Engine[S]) polarity(class int) types.Polarity {
	return types.PolarityOf(class, e.cfg.NegativeClass)
}

// State returns a snapshot of the hysteresis state.
func (e *Engine[S]) State() Snapshot {
	return Snapshot{
		State:          e.state,
		PositiveStreak: e.pos,
		NegativeStreak: e.neg,
		LastPolarity:   e.last,
		Cooldown:       e.cooldown,
		Winner:         e.winner,
		PriorClass:     e.prior,
		RecentClass:    e.recent,
		Decisions:      e.decisions,
	}
}

// Reset returns the engine to its freshly constructed state, including the
// vote history and pool.
func (e *Engine[S]) Reset() {
	e.votes.Reset()
	e.state = StateIdle
	e.pos, e.neg = 0, 0
	e.last = types.PolarityUnknown
	e.cooldown = e.cfg.Cooldown
	e.winner, e.prior, e.recent = 0, 0, 0
	e.decisions = 0
}
