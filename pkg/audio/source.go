// Package audio provides raw sample sources and format helpers for the
// classification stream.
//
// A [Source] fills fixed-length blocks of mono float32 samples. End of stream
// is reported as [io.EOF] and is not an error: the stream simply stops.
// Backends:
//
//   - [Float32Reader] decodes a little-endian float32 byte stream, such as a
//     microcontroller's serial port or a pipe on stdin.
//   - [WAVSource] decodes a WAV file, downmixing and resampling it to the
//     stream's sample rate.
//
// Samples delivered by all sources are nominally in [-1, 1].
package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Source delivers sample blocks of a fixed length.
type Source interface {
	// ReadBlock fills dst completely. It returns io.EOF when the source is
	// exhausted; a final partial block is discarded and also reported as
	// io.EOF. Any other error is a source failure.
	ReadBlock(dst []float32) error
}

// Float32Reader reads little-endian IEEE-754 float32 samples from an
// io.Reader.
type Float32Reader struct {
	r   *bufio.Reader
	buf []byte
}

// NewFloat32Reader returns a Source reading float32 samples from r.
func NewFloat32Reader(r io.Reader) *Float32Reader {
	return &Float32Reader{r: bufio.NewReader(r)}
}

// ReadBlock implements Source.
func (f *Float32Reader) ReadBlock(dst []float32) error {
	need := len(dst) * 4
	if cap(f.buf) < need {
		f.buf = make([]byte, need)
	}
	buf := f.buf[:need]

	if _, err := io.ReadFull(f.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return fmt.Errorf("audio: read float32 block: %w", err)
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return nil
}

// SliceSource serves blocks from an in-memory mono signal.
type SliceSource struct {
	samples []float32
	pos     int
}

// NewSliceSource returns a Source over samples.
func NewSliceSource(samples []float32) *SliceSource {
	return &SliceSource{samples: samples}
}

// ReadBlock implements Source.
func (s *SliceSource) ReadBlock(dst []float32) error {
	if s.pos+len(dst) > len(s.samples) {
		s.pos = len(s.samples)
		return io.EOF
	}
	copy(dst, s.samples[s.pos:])
	s.pos += len(dst)
	return nil
}

// Remaining returns the number of samples not yet delivered.
func (s *SliceSource) Remaining() int { return len(s.samples) - s.pos }

var (
	_ Source = (*Float32Reader)(nil)
	_ Source = (*SliceSource)(nil)
)
