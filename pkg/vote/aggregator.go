// Package vote accumulates per-cycle class score vectors for the decision
// engine.
//
// An [Aggregator] keeps two views of the evidence seen since the last
// finalized decision:
//
//   - the history, a fixed-capacity ring of the last K score vectors, and
//   - the pool, a running per-class sum of every vector recorded since the
//     last decision.
//
// Their difference, pool - sum(history), is the evidence older than the
// current K-window. [Aggregator.Record] returns both the recent sum and this
// prior sum so the decision engine can compare the old regime against the new
// one.
//
// All buffers are allocated once in [New]; Record and ResetAfterDecision never
// allocate. An Aggregator belongs to exactly one audio stream and is not safe
// for concurrent use.
package vote

import (
	"fmt"

	"github.com/MrWong99/trafficear/pkg/types"
)

// Aggregator maintains the vote history ring and the vote pool for one stream.
//
// The pool is a plain sum of S and is only rebuilt when a decision fires.
// Integer score types must be wide enough for the longest run without a
// decision; quantized int8 scores use int64 (see [types.Score]).
type Aggregator[S types.Score] struct {
	classes int
	depth   int

	// history holds depth*classes scores; slot i occupies
	// history[i*classes : (i+1)*classes].
	history []S
	next    int

	pool   []S
	recent []S
	prior  []S
}

// New returns an Aggregator for vectors of numClasses scores with a history
// depth of k. Both must be positive; otherwise the error wraps
// [types.ErrInvalidConfiguration]. History, pool and result buffers start
// zeroed.
func New[S types.Score](numClasses, k int) (*Aggregator[S], error) {
	if numClasses <= 0 {
		return nil, fmt.Errorf("vote: class count %d must be positive: %w", numClasses, types.ErrInvalidConfiguration)
	}
	if k <= 0 {
		return nil, fmt.Errorf("vote: history depth %d must be positive: %w", k, types.ErrInvalidConfiguration)
	}
	return &Aggregator[S]{
		classes: numClasses,
		depth:   k,
		history: make([]S, numClasses*k),
		pool:    make([]S, numClasses),
		recent:  make([]S, numClasses),
		prior:   make([]S, numClasses),
	}, nil
}

// NumClasses returns the configured score vector length.
func (a *Aggregator[S]) NumClasses() int { return a.classes }

// Len returns the number of vectors held in the history. It is always K:
// slots that have not been written yet hold zero vectors.
func (a *Aggregator[S]) Len() int { return a.depth }

// Record adds scores to the pool, overwrites the oldest history slot with it
// and returns the element-wise sum of the whole history (recent) together
// with pool - recent (prior).
//
// scores must have exactly NumClasses elements; the length is validated once
// at stream setup, and a mismatch here panics.
//
// The returned slices are owned by the Aggregator and are only valid until the
// next call to Record or ResetAfterDecision.
func (a *Aggregator[S]) Record(scores []S) (recent, prior []S) {
	if len(scores) != a.classes {
		panic(fmt.Sprintf("vote: score vector has %d entries, want %d", len(scores), a.classes))
	}

	for i, s := range scores {
		a.pool[i] += s
	}

	copy(a.slot(a.next), scores)
	a.next = (a.next + 1) % a.depth

	a.sumHistory(a.recent)
	for i := range a.prior {
		a.prior[i] = a.pool[i] - a.recent[i]
	}
	return a.recent, a.prior
}

// ResetAfterDecision discards the evidence that led to a finalized decision.
// The history is kept: the last K raw votes remain valid evidence for the next
// regime, so the pool is rebuilt as the sum of the surviving history window.
// Immediately afterwards pool - sum(history) is the zero vector, which is the
// invariant every later Record relies on.
func (a *Aggregator[S]) ResetAfterDecision() {
	a.sumHistory(a.pool)
}

// Reset zeroes history and pool, returning the Aggregator to its freshly
// constructed state.
func (a *Aggregator[S]) Reset() {
	clear(a.history)
	clear(a.pool)
	clear(a.recent)
	clear(a.prior)
	a.next = 0
}

// Pool returns a copy of the current vote pool.
func (a *Aggregator[S]) Pool() []S {
	out := make([]S, a.classes)
	copy(out, a.pool)
	return out
}

// History returns a copy of the history ring in insertion order, oldest
// first.
func (a *Aggregator[S]) History() [][]S {
	out := make([][]S, 0, a.depth)
	for i := range a.depth {
		slot := a.slot((a.next + i) % a.depth)
		v := make([]S, a.classes)
		copy(v, slot)
		out = append(out, v)
	}
	return out
}

func (a *Aggregator[S]) slot(i int) []S {
	return a.history[i*a.classes : (i+1)*a.classes]
}

func (a *Aggregator[S]) sumHistory(dst []S) {
	clear(dst)
	for i := range a.depth {
		for c, s := range a.slot(i) {
			dst[c] += s
		}
	}
}
