// Package condition implements the deterministic per-block audio conditioning
// applied to every sample block before feature extraction.
//
// A [Conditioner] runs three transforms, always in the same order and always
// in place:
//
//  1. Peak normalization to [-1, 1].
//  2. RMS leveling to a configured target RMS.
//  3. First-order pre-emphasis (high-pass).
//
// Near-silent blocks (peak or RMS below [Epsilon]) are left untouched by the
// first two steps so that background hiss is never amplified into a
// full-scale signal. None of the transforms allocate; a Conditioner is safe to
// call once per cycle on a hard real-time loop.
//
// The same transforms are used by the offline dataset generator so that
// training frames and live frames are conditioned identically.
package condition

import (
	"log/slog"
	"math"
	"sync"
)

// Epsilon is the threshold below which a block's peak or RMS is treated as
// silence and the corresponding leveling step becomes a no-op.
const Epsilon = 1e-8

const (
	// DefaultTargetRMS is the RMS level blocks are leveled to when no target
	// is configured.
	DefaultTargetRMS = 0.2

	// DefaultPreEmphasis is the pre-emphasis coefficient used when none is
	// configured.
	DefaultPreEmphasis = 0.97

	// recommendedMinRMS and recommendedMaxRMS bound the target RMS values
	// that keep conditioned blocks well inside [-1, 1].
	recommendedMinRMS = 0.1
	recommendedMaxRMS = 0.3
)

// Config holds the conditioning parameters.
type Config struct {
	// TargetRMS is the RMS level every non-silent block is scaled to.
	// Zero selects [DefaultTargetRMS].
	TargetRMS float64

	// PreEmphasis is the alpha coefficient of the pre-emphasis filter
	// y[i] = x[i] - alpha*x[i-1]. Zero selects [DefaultPreEmphasis]; use
	// [DisablePreEmphasis] to switch the filter off.
	PreEmphasis float64

	// DisablePreEmphasis skips the pre-emphasis step entirely.
	DisablePreEmphasis bool
}

// Conditioner applies peak normalization, RMS leveling and pre-emphasis to
// sample blocks. The zero value is not usable; construct with [New].
// A Conditioner holds no per-block state and may be shared by goroutines.
type Conditioner struct {
	targetRMS float64
	alpha     float64
}

var warnRMSOnce sync.Once

// New returns a Conditioner for cfg, filling zero fields with defaults.
// A target RMS outside [0.1, 0.3] is accepted but logged once, since it
// either wastes dynamic range or risks clipping after pre-emphasis.
func New(cfg Config) *Conditioner {
	if cfg.TargetRMS == 0 {
		cfg.TargetRMS = DefaultTargetRMS
	}
	if cfg.PreEmphasis == 0 {
		cfg.PreEmphasis = DefaultPreEmphasis
	}
	if cfg.TargetRMS < recommendedMinRMS || cfg.TargetRMS > recommendedMaxRMS {
		warnRMSOnce.Do(func() {
			slog.Warn("condition: target RMS outside recommended range",
				"target_rms", cfg.TargetRMS,
				"min", recommendedMinRMS,
				"max", recommendedMaxRMS,
			)
		})
	}
	alpha := cfg.PreEmphasis
	if cfg.DisablePreEmphasis {
		alpha = 0
	}
	return &Conditioner{targetRMS: cfg.TargetRMS, alpha: alpha}
}

// TargetRMS returns the configured target RMS.
func (c *Conditioner) TargetRMS() float64 { return c.targetRMS }

// PreEmphasis returns the effective pre-emphasis coefficient (0 if disabled).
func (c *Conditioner) PreEmphasis() float64 { return c.alpha }

// Condition runs the full pipeline on block in place.
func (c *Conditioner) Condition(block []float32) {
	PeakNormalize(block)
	LevelRMS(block, c.targetRMS)
	if c.alpha != 0 {
		PreEmphasize(block, c.alpha)
	}
}

// Peak returns the maximum absolute sample value of block, or 0 for an empty
// block.
func Peak(block []float32) float64 {
	var peak float64
	for _, s := range block {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS returns sqrt(mean(sample²)) of block, or 0 for an empty block.
func RMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range block {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(block)))
}

// PeakNormalize divides every sample by the block's peak so that the result
// spans [-1, 1]. It is a no-op when the peak is below [Epsilon].
func PeakNormalize(block []float32) {
	peak := Peak(block)
	if peak < Epsilon {
		return
	}
	scale := 1 / peak
	for i, s := range block {
		block[i] = float32(float64(s) * scale)
	}
}

// LevelRMS scales block so that its RMS equals target. It is a no-op when
// the block's RMS is below [Epsilon].
func LevelRMS(block []float32, target float64) {
	rms := RMS(block)
	if rms < Epsilon {
		return
	}
	gain := target / rms
	for i, s := range block {
		block[i] = float32(float64(s) * gain)
	}
}

// PreEmphasize applies y[0] = x[0], y[i] = x[i] - alpha*x[i-1] in place.
// The recurrence always uses the previous raw input sample, carried in a
// local, never the already-filtered output.
func PreEmphasize(block []float32, alpha float64) {
	if len(block) == 0 {
		return
	}
	prev := block[0]
	for i := 1; i < len(block); i++ {
		raw := block[i]
		block[i] = float32(float64(raw) - alpha*float64(prev))
		prev = raw
	}
}
