package classifier

import (
	"context"
	"fmt"
	"math"
)

const (
	// DefaultQuantScale and DefaultQuantZeroPoint are the int8 output
	// parameters of a softmax layer quantized the usual way: probability p
	// maps to round(p*256) - 128.
	DefaultQuantScale     = 1.0 / 256
	DefaultQuantZeroPoint = -128
)

// Quantized presents a float32 Classifier as an int8-quantized one. Each soft
// score s is mapped to clamp(round(s/scale) + zeroPoint, -128, 127) and widened
// to int64. The vote pool accumulates these until a decision fires, which may
// never happen on a quiet road; int32 would wrap within weeks of continuous
// listening.
//
// Quantization is monotonic (non-decreasing), so plurality
// decisions computed on the quantized scores can only differ from the float
// ones where clipping or rounding creates a tie.
type Quantized struct {
	inner     Classifier[float32]
	scale     float64
	zeroPoint int32
	out       []int64
}

// Quantize wraps inner. A non-positive scale selects [DefaultQuantScale] and
// [DefaultQuantZeroPoint].
func Quantize(inner Classifier[float32], scale float64, zeroPoint int32) *Quantized {
	if scale <= 0 {
		scale, zeroPoint = DefaultQuantScale, DefaultQuantZeroPoint
	}
	return &Quantized{
		inner:     inner,
		scale:     scale,
		zeroPoint: zeroPoint,
		out:       make([]int64, inner.NumClasses()),
	}
}

// Classify runs the wrapped classifier and quantizes its scores. The returned
// slice is reused on the next call.
func (q *Quantized) Classify(ctx context.Context, block []float32) ([]int64, error) {
	scores, err := q.inner.Classify(ctx, block)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(q.out) {
		return nil, fmt.Errorf("classifier: quantize: got %d scores, want %d", len(scores), len(q.out))
	}
	for i, s := range scores {
		q.out[i] = QuantizeScore(s, q.scale, q.zeroPoint)
	}
	return q.out, nil
}

// NumClasses returns the class count of the wrapped classifier.
func (q *Quantized) NumClasses() int { return len(q.out) }

// QuantizeScore maps one soft score to the int8 range, widened to int64.
// NaN maps to the minimum.
func QuantizeScore(s float32, scale float64, zeroPoint int32) int64 {
	v := math.Round(float64(s)/scale) + float64(zeroPoint)
	switch {
	case math.IsNaN(v) || v < math.MinInt8:
		return math.MinInt8
	case v > math.MaxInt8:
		return math.MaxInt8
	default:
		return int64(v)
	}
}

var _ Classifier[int64] = (*Quantized)(nil)
