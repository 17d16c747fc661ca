// Package classifier defines the Classifier interface for feature extraction
// and inference backends.
//
// A Classifier turns one conditioned sample block into a fixed-length vector
// of per-class scores. How the scores are produced (an MFCC front-end feeding a
// convolutional network, a remote inference server, a quantized model on a
// microcontroller) is opaque to the rest of the system: the decision engine
// only relies on the vector having exactly NumClasses entries and on the
// scores being comparable.
//
// The score type S is either a floating-point soft score or a widened
// quantized integer. Use [Quantize] to present a float backend as an int64
// one.
//
// Implementations must be deterministic for identical input given a fixed
// model. A single Classifier value is driven by one stream at a time; backends
// that are safe for concurrent use across streams document it.
package classifier

import (
	"context"

	"github.com/MrWong99/trafficear/pkg/types"
)

// Classifier maps a conditioned sample block to a per-class score vector.
type Classifier[S types.Score] interface {
	// Classify returns the score vector for block. block must not be modified
	// and must not be retained after Classify returns. The returned slice
	// has NumClasses entries and may be reused by the implementation on the
	// next call; callers that keep it must copy it.
	//
	// Returns an error if the backend fails or ctx is cancelled. Callers
	// wrap such errors with [types.ErrAdapterFailure] and drop the cycle.
	Classify(ctx context.Context, block []float32) ([]S, error)

	// NumClasses returns the fixed length of every score vector produced by
	// Classify.
	NumClasses() int
}

// Func adapts a plain function to the Classifier interface.
type Func[S types.Score] struct {
	Classes int
	Fn      func(ctx context.Context, block []float32) ([]S, error)
}

// Classify calls f.Fn.
func (f Func[S]) Classify(ctx context.Context, block []float32) ([]S, error) {
	return f.Fn(ctx, block)
}

// NumClasses returns f.Classes.
func (f Func[S]) NumClasses() int { return f.Classes }

var _ Classifier[float32] = Func[float32]{}
