package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when a file is not a decodable PCM WAV file.
var ErrInvalidWAV = errors.New("audio: invalid wav file")

// DecodeWAV reads a whole PCM WAV stream and returns its interleaved samples
// scaled to [-1, 1) together with the source format.
func DecodeWAV(r io.ReadSeeker) ([]float32, Format, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, Format{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, Format{}, ErrInvalidWAV
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	f := Format{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels}
	return IntToFloat(buf.Data, depth), f, nil
}

// ReadWAVFile decodes the WAV file at path and converts it to mono at
// sampleRate (zero keeps the file's rate). It returns the mono samples and the
// file's original format.
func ReadWAVFile(path string, sampleRate int) ([]float32, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	samples, format, err := DecodeWAV(f)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: %s: %w", path, err)
	}
	conv := Converter{TargetRate: sampleRate}
	return conv.Convert(samples, format), format, nil
}

// EncodeWAV writes mono samples as a 16-bit PCM WAV stream.
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           FloatToInt16(samples),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: close wav encoder: %w", err)
	}
	return nil
}

// WriteWAVFile creates path and writes samples to it as 16-bit mono WAV.
func WriteWAVFile(path string, samples []float32, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("audio: close %s: %w", path, cerr)
		}
	}()
	return EncodeWAV(f, samples, sampleRate)
}

// WAVSource serves fixed-length blocks from a decoded WAV file.
type WAVSource struct {
	*SliceSource
	format Format
}

// NewWAVSource decodes path, converts it to mono at sampleRate and returns a
// Source over the result.
func NewWAVSource(path string, sampleRate int) (*WAVSource, error) {
	samples, format, err := ReadWAVFile(path, sampleRate)
	if err != nil {
		return nil, err
	}
	return &WAVSource{SliceSource: NewSliceSource(samples), format: format}, nil
}

// SourceFormat returns the format of the file before conversion.
func (w *WAVSource) SourceFormat() Format { return w.format }

var _ Source = (*WAVSource)(nil)
