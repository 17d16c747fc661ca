// Package mock provides a test double for the classifier.Classifier
// interface.
//
// Classifier returns scripted score vectors in order and records every block
// it was asked to classify. Once the script is exhausted the last entry is
// repeated.
//
// Example:
//
//	c := &mock.Classifier[float32]{
//	    Classes: 4,
//	    Script:  [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
//	}
//	scores, _ := c.Classify(ctx, block)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/trafficear/pkg/provider/classifier"
	"github.com/MrWong99/trafficear/pkg/types"
)

// Step is one scripted response. When Err is non-nil it is returned instead of
// Scores.
type Step[S types.Score] struct {
	Scores []S
	Err    error
}

// Classifier is a mock implementation of classifier.Classifier.
type Classifier[S types.Score] struct {
	mu sync.Mutex

	// Classes is returned by NumClasses.
	Classes int

	// Script holds plain score vectors returned in order. Ignored when Steps
	// is set.
	Script [][]S

	// Steps holds scripted responses that may include errors.
	Steps []Step[S]

	// ClassifyErr, if non-nil, is returned by every Classify call.
	ClassifyErr error

	// --- Call records ---

	// Blocks holds a copy of every block passed to Classify.
	Blocks [][]float32

	calls int
}

// Classify records the block and returns the next scripted response.
func (c *Classifier[S]) Classify(ctx context.Context, block []float32) ([]S, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make([]float32, len(block))
	copy(cp, block)
	c.Blocks = append(c.Blocks, cp)

	i := c.calls
	c.calls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ClassifyErr != nil {
		return nil, c.ClassifyErr
	}
	if n := len(c.Steps); n > 0 {
		st := c.Steps[min(i, n-1)]
		if st.Err != nil {
			return nil, st.Err
		}
		return st.Scores, nil
	}
	if n := len(c.Script); n > 0 {
		return c.Script[min(i, n-1)], nil
	}
	return make([]S, c.Classes), nil
}

// NumClasses returns Classes.
func (c *Classifier[S]) NumClasses() int { return c.Classes }

// CallCount returns the number of Classify calls.
func (c *Classifier[S]) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset clears all recorded calls and restarts the script. Thread-safe.
func (c *Classifier[S]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Blocks = nil
	c.calls = 0
}

// Ensure Classifier implements classifier.Classifier at compile time.
var _ classifier.Classifier[float32] = (*Classifier[float32])(nil)
