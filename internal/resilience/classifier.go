package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/trafficear/pkg/provider/classifier"
	"github.com/MrWong99/trafficear/pkg/types"
)

// ClassifierFallback is a [classifier.Classifier] that routes each block to
// the first healthy backend of a [FallbackGroup]. All backends must report the
// same number of classes.
type ClassifierFallback[S types.Score] struct {
	group   *FallbackGroup[classifier.Classifier[S]]
	classes int
}

// NewClassifierFallback wraps primary. With no fallbacks added the result is a
// plain circuit breaker around primary.
func NewClassifierFallback[S types.Score](primary classifier.Classifier[S], name string, cfg FallbackConfig) *ClassifierFallback[S] {
	return &ClassifierFallback[S]{
		group:   NewFallbackGroup(primary, name, cfg),
		classes: primary.NumClasses(),
	}
}

// AddFallback registers another backend. It returns an error wrapping
// [types.ErrInvalidConfiguration] if the backend's class count differs from
// the primary's.
func (f *ClassifierFallback[S]) AddFallback(name string, c classifier.Classifier[S]) error {
	if n := c.NumClasses(); n != f.classes {
		return fmt.Errorf("resilience: fallback %q has %d classes, primary has %d: %w",
			name, n, f.classes, types.ErrInvalidConfiguration)
	}
	f.group.AddFallback(name, c)
	return nil
}

// Classify runs the block through the first backend whose breaker admits the
// call and that succeeds.
func (f *ClassifierFallback[S]) Classify(ctx context.Context, block []float32) ([]S, error) {
	return ExecuteWithResult(ctx, f.group, func(c classifier.Classifier[S]) ([]S, error) {
		return c.Classify(ctx, block)
	})
}

// NumClasses returns the shared class count.
func (f *ClassifierFallback[S]) NumClasses() int { return f.classes }

// Group exposes the underlying group, e.g. for breaker inspection.
func (f *ClassifierFallback[S]) Group() *FallbackGroup[classifier.Classifier[S]] { return f.group }

var _ classifier.Classifier[float32] = (*ClassifierFallback[float32])(nil)
