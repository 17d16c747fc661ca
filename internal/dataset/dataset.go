// Package dataset turns a directory of labelled recordings into a training
// set of fixed-length frames.
//
// The input root holds one directory per class; every WAV file below a class
// directory is loaded, downmixed and resampled to the model rate, leveled to
// the target RMS, pre-emphasized and cut into overlapping frames. Each frame
// is written as a 16-bit mono WAV file to <out>/<class>/<stem>_frame_<i>.wav.
//
// Files are processed in parallel by a bounded worker pool. A file that
// cannot be read is logged and counted; it never aborts the batch.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/trafficear/internal/observe"
	"github.com/MrWong99/trafficear/pkg/audio"
	"github.com/MrWong99/trafficear/pkg/condition"
	"github.com/MrWong99/trafficear/pkg/frame"
	"github.com/MrWong99/trafficear/pkg/types"
)

// File status attribute values.
const (
	StatusOK          = "ok"
	StatusFailed      = "failed"
	StatusUnsupported = "unsupported"
)

// unsupported are audio formats that are recognised but cannot be decoded.
var unsupported = map[string]bool{".mp3": true, ".flac": true, ".ogg": true}

// Config configures [Generate].
type Config struct {
	// Root is the input directory; its immediate subdirectories are classes.
	Root string

	// Out is the output directory. It is created if missing.
	Out string

	// SampleRate is the output rate in Hz.
	SampleRate int

	// FrameSeconds and OverlapSeconds set the frame geometry.
	FrameSeconds   float64
	OverlapSeconds float64

	// Workers bounds the number of files processed at once. Default: 1.
	Workers int

	// TargetRMS and PreEmphasis condition each file before framing. Zero
	// selects the condition package defaults.
	TargetRMS   float64
	PreEmphasis float64

	// Metrics receives per-file and per-frame counters. Default:
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Report summarises a [Generate] run.
type Report struct {
	// Files counts WAV files processed successfully.
	Files int

	// Failed lists the WAV files that could not be processed.
	Failed []string

	// Unsupported counts files skipped because of their format.
	Unsupported int

	// Frames counts frames written per class.
	Frames map[string]int
}

// TotalFrames returns the number of frames written over all classes.
func (r Report) TotalFrames() int {
	n := 0
	for _, v := range r.Frames {
		n += v
	}
	return n
}

type job struct {
	path  string
	class string
}

// Generate processes every WAV file below cfg.Root. The returned error is
// non-nil only for invalid configuration, an unreadable root or
// cancellation; per-file failures are reported in [Report.Failed].
func Generate(ctx context.Context, cfg Config) (Report, error) {
	rep := Report{Frames: make(map[string]int)}
	if cfg.Root == "" || cfg.Out == "" {
		return rep, fmt.Errorf("dataset: root and out directories are required: %w", types.ErrInvalidConfiguration)
	}
	if cfg.SampleRate <= 0 {
		return rep, fmt.Errorf("dataset: sample rate %d must be positive: %w", cfg.SampleRate, types.ErrInvalidConfiguration)
	}
	seg, err := frame.FromSeconds(cfg.FrameSeconds, cfg.OverlapSeconds, cfg.SampleRate)
	if err != nil {
		return rep, fmt.Errorf("dataset: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TargetRMS == 0 {
		cfg.TargetRMS = condition.DefaultTargetRMS
	}
	if cfg.PreEmphasis == 0 {
		cfg.PreEmphasis = condition.DefaultPreEmphasis
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	jobs, skipped, err := collect(ctx, cfg)
	rep.Unsupported = skipped
	if err != nil {
		return rep, err
	}
	slog.Info("dataset: generating frames",
		"files", len(jobs), "workers", cfg.Workers,
		"frame_len", seg.FrameLen(), "stride", seg.Stride())

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := process(cfg, seg, j)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("dataset: skipping file", "path", j.path, "err", err)
				cfg.Metrics.RecordDatasetFile(gctx, StatusFailed)
				rep.Failed = append(rep.Failed, j.path)
				return nil
			}
			slog.Debug("dataset: file done", "path", j.path, "class", j.class, "frames", n)
			cfg.Metrics.RecordDatasetFile(gctx, StatusOK)
			cfg.Metrics.RecordDatasetFrames(gctx, j.class, n)
			rep.Files++
			rep.Frames[j.class] += n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	slog.Info("dataset: done",
		"files", rep.Files, "failed", len(rep.Failed),
		"unsupported", rep.Unsupported, "frames", rep.TotalFrames())
	return rep, nil
}

// collect walks cfg.Root and returns the WAV jobs and the number of files in
// unsupported formats.
func collect(ctx context.Context, cfg Config) ([]job, int, error) {
	var (
		jobs    []job
		skipped int
	)
	err := filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(cfg.Root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 2 {
			slog.Debug("dataset: ignoring file outside a class directory", "path", path)
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case ext == ".wav":
			jobs = append(jobs, job{path: path, class: parts[0]})
		case unsupported[ext]:
			slog.Warn("dataset: unsupported format", "path", path, "format", ext)
			cfg.Metrics.RecordDatasetFile(ctx, StatusUnsupported)
			skipped++
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, skipped, err
		}
		return nil, skipped, fmt.Errorf("dataset: walk %s: %w", cfg.Root, err)
	}
	return jobs, skipped, nil
}

// process converts one file and returns the number of frames written.
func process(cfg Config, seg *frame.Segmenter, j job) (int, error) {
	samples, _, err := audio.ReadWAVFile(j.path, cfg.SampleRate)
	if err != nil {
		return 0, err
	}
	condition.LevelRMS(samples, cfg.TargetRMS)
	condition.PreEmphasize(samples, cfg.PreEmphasis)

	dir := filepath.Join(cfg.Out, j.class)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("dataset: create %s: %w", dir, err)
	}
	stem := strings.TrimSuffix(filepath.Base(j.path), filepath.Ext(j.path))
	n := 0
	for _, fr := range seg.Frames(samples) {
		name := filepath.Join(dir, fmt.Sprintf("%s_frame_%d.wav", stem, n))
		if err := audio.WriteWAVFile(name, fr, cfg.SampleRate); err != nil {
			return n, fmt.Errorf("dataset: write frame %d: %w", n, err)
		}
		n++
	}
	return n, nil
}
