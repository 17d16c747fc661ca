// Package types defines the shared types used across all trafficear packages.
//
// These types form the lingua franca between the signal conditioner, the
// classifier adapters, the vote aggregator, the decision engine and the
// decision sinks. Each package defines its own domain types; only the
// cross-cutting ones live here to avoid circular imports.
package types

import "errors"

// ErrInvalidConfiguration is wrapped by every setup-time validation failure
// (frame length not greater than overlap, zero classes, negative class index
// out of range, non-positive history depth, ...). It is fatal: callers are
// expected to abort stream setup when they see it.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrAdapterFailure is wrapped around errors returned by a classifier adapter
// during a classification cycle. It is recoverable: the cycle is dropped and
// the stream continues with the next sample block.
var ErrAdapterFailure = errors.New("classifier adapter failure")

// Score is the numeric domain of a single class score. Floating-point soft
// scores and quantized integer scores are both supported.
//
// The vote pool only resets when a decision fires, so on a road that never
// produces one it grows without bound. Integer scores wrap silently: an int32
// pool of int8 scores overflows after about 2^31/128 cycles (under 8 days at
// 40 ms blocks), which flips the plurality and fires a spurious decision.
// Quantized int8 outputs are therefore widened to int64, which needs about
// 2^56 cycles to overflow.
type Score interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// Polarity classifies a class index as background (negative) or as any real
// class (positive). PolarityUnknown is only used before the first decision.
type Polarity int

const (
	// PolarityUnknown means no decision has been recorded yet.
	PolarityUnknown Polarity = iota

	// PolarityNegative is the background class.
	PolarityNegative

	// PolarityPositive is any non-background class.
	PolarityPositive
)

// String returns the human-readable name of the polarity.
func (p Polarity) String() string {
	switch p {
	case PolarityNegative:
		return "negative"
	case PolarityPositive:
		return "positive"
	default:
		return "unknown"
	}
}

// PolarityOf returns the polarity of class given the index of the negative
// class.
func PolarityOf(class, negativeClass int) Polarity {
	if class == negativeClass {
		return PolarityNegative
	}
	return PolarityPositive
}

// Decision is a finalized, debounced classification emitted by the decision
// engine. Consumers may only rely on Class and Cycle; the remaining fields
// are informational.
type Decision struct {
	// Class is the index of the winning class.
	Class int

	// Cycle is the 1-based classification cycle on which the decision fired.
	Cycle uint64

	// Polarity is the polarity of Class.
	Polarity Polarity

	// Label is the human-readable class name when the stream was configured
	// with labels. Empty otherwise.
	Label string

	// Stream names the audio stream that produced the decision.
	Stream string
}
