package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form, e.g. "44100Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Converter turns interleaved float samples of any format into mono samples at
// a target rate. It logs a warning on the first format mismatch.
// Create one per stream; not designed for shared use across goroutines.
type Converter struct {
	TargetRate     int
	warnedMismatch sync.Once
}

// Convert downmixes interleaved samples in format from to mono and resamples
// them to TargetRate. A zero TargetRate keeps the source rate. If the source is
// already mono at the target rate, samples is returned unchanged.
func (c *Converter) Convert(samples []float32, from Format) []float32 {
	target := Format{SampleRate: c.TargetRate, Channels: 1}
	if target.SampleRate == 0 {
		target.SampleRate = from.SampleRate
	}
	if from == target {
		return samples
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting", "from", from.String(), "to", target.String())
	})

	// Downmix first so that only one channel is resampled.
	mono := Downmix(samples, from.Channels)
	return Resample(mono, from.SampleRate, target.SampleRate)
}

// Downmix averages each group of channels interleaved samples into one mono
// sample. A trailing partial frame is dropped. channels <= 1 returns the input
// unchanged.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	if rem := len(samples) % channels; rem != 0 {
		slog.Warn("audio downmix: dropping trailing partial frame", "channels", channels, "samples", rem)
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match or either is not positive, samples is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}

	out := make([]float32, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// IntToFloat scales integer PCM samples of the given bit depth to [-1, 1).
func IntToFloat(data []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(math.Ldexp(1, bitDepth-1))
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out
}

// FloatToInt16 converts float samples to 16-bit integer PCM values, clamping
// to the int16 range.
func FloatToInt16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * math.MaxInt16)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int(v)
	}
	return out
}
