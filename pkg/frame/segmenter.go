// Package frame slices a long raw signal into fixed-length, overlapping
// analysis windows.
//
// A [Segmenter] is built once from a frame length and an overlap (both in
// samples, or in seconds via [FromSeconds]) and then produces a lazy, finite
// sequence of frames for any number of input signals. Frames start at offsets
// 0, stride, 2*stride, ... where stride = frameLen - overlap, and only frames
// that fit completely inside the signal are produced. Tail samples are dropped,
// never padded.
//
// The segmenter carries no state between calls; iterating the same signal twice
// yields the same frames.
package frame

import (
	"fmt"
	"iter"

	"github.com/MrWong99/trafficear/pkg/types"
)

// Segmenter produces overlapping frames of a fixed length.
type Segmenter struct {
	frameLen int
	overlap  int
}

// New returns a Segmenter for frames of frameLen samples overlapping by
// overlap samples. frameLen must be strictly greater than overlap and overlap
// must not be negative; anything else would produce a zero or negative stride
// and fails with [types.ErrInvalidConfiguration].
func New(frameLen, overlap int) (*Segmenter, error) {
	if overlap < 0 {
		return nil, fmt.Errorf("frame: overlap %d must not be negative: %w", overlap, types.ErrInvalidConfiguration)
	}
	if frameLen <= overlap {
		return nil, fmt.Errorf("frame: frame length (%d) must be greater than overlap length (%d): %w",
			frameLen, overlap, types.ErrInvalidConfiguration)
	}
	return &Segmenter{frameLen: frameLen, overlap: overlap}, nil
}

// FromSeconds converts frame and overlap durations to sample counts at
// sampleRate (truncating) and returns the corresponding Segmenter.
func FromSeconds(frameSeconds, overlapSeconds float64, sampleRate int) (*Segmenter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("frame: sample rate %d must be positive: %w", sampleRate, types.ErrInvalidConfiguration)
	}
	frameLen := int(frameSeconds * float64(sampleRate))
	overlap := int(overlapSeconds * float64(sampleRate))
	s, err := New(frameLen, overlap)
	if err != nil {
		return nil, fmt.Errorf("%w (at sample rate %d)", err, sampleRate)
	}
	return s, nil
}

// FrameLen returns the frame length in samples.
func (s *Segmenter) FrameLen() int { return s.frameLen }

// Overlap returns the overlap in samples.
func (s *Segmenter) Overlap() int { return s.overlap }

// Stride returns the distance in samples between consecutive frame starts.
func (s *Segmenter) Stride() int { return s.frameLen - s.overlap }

// Count returns how many complete frames a signal of n samples yields.
func (s *Segmenter) Count(n int) int {
	if n < s.frameLen {
		return 0
	}
	return (n-s.frameLen)/s.Stride() + 1
}

// Frames returns a lazy sequence of (offset, frame) pairs over signal. Each
// frame is a sub-slice of signal with capacity clipped to the frame, so it
// aliases the input: callers that mutate a frame in place (for example to
// condition it) must copy it first if overlapping frames are still needed.
func (s *Segmenter) Frames(signal []float32) iter.Seq2[int, []float32] {
	return func(yield func(int, []float32) bool) {
		stride := s.Stride()
		for off := 0; off+s.frameLen <= len(signal); off += stride {
			if !yield(off, signal[off:off+s.frameLen:off+s.frameLen]) {
				return
			}
		}
	}
}
