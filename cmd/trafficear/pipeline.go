package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/trafficear/internal/config"
	"github.com/MrWong99/trafficear/internal/health"
	"github.com/MrWong99/trafficear/internal/observe"
	"github.com/MrWong99/trafficear/internal/resilience"
	"github.com/MrWong99/trafficear/internal/stream"
	"github.com/MrWong99/trafficear/pkg/audio"
	"github.com/MrWong99/trafficear/pkg/condition"
	"github.com/MrWong99/trafficear/pkg/decision"
	"github.com/MrWong99/trafficear/pkg/provider/classifier"
	"github.com/MrWong99/trafficear/pkg/types"
)

// pipeline hides the score type of a stream from main.
type pipeline interface {
	name() string
	run(ctx context.Context, sink stream.Sink) (stream.Stats, error)
	checkers() []health.Checker
	close()
}

// buildPipeline assembles the backends, source and stream for sc. The score
// type follows classifier.quantize.enabled.
func buildPipeline(cfg *config.Config, sc config.StreamConfig, reg *config.Registry, m *observe.Metrics) (pipeline, error) {
	if cfg.Classifier.Quantize.Enabled {
		p, err := newPipeline(cfg, sc, reg, m, func(c classifier.Classifier[float32], e config.ClassifierEntry) classifier.Classifier[int64] {
			return classifier.Quantize(c, e.Quantize.Scale, int32(e.Quantize.ZeroPoint))
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	p, err := newPipeline(cfg, sc, reg, m, func(c classifier.Classifier[float32], _ config.ClassifierEntry) classifier.Classifier[float32] {
		return c
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

type streamPipeline[S types.Score] struct {
	stream  *stream.Stream[S]
	src     audio.Source
	closers []io.Closer
	checks  []health.Checker
}

// newPipeline creates one backend set per stream: in-process backends are
// not safe for concurrent use, and per-stream breakers keep one stream's
// failures from tripping another's.
func newPipeline[S types.Score](
	cfg *config.Config,
	sc config.StreamConfig,
	reg *config.Registry,
	m *observe.Metrics,
	wrap func(classifier.Classifier[float32], config.ClassifierEntry) classifier.Classifier[S],
) (_ *streamPipeline[S], err error) {
	p := &streamPipeline[S]{}
	defer func() {
		if err != nil {
			p.close()
		}
	}()

	fcfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Classifier.Breaker.MaxFailures,
		ResetTimeout: cfg.Classifier.Breaker.ResetTimeout,
		HalfOpenMax:  cfg.Classifier.Breaker.HalfOpenMax,
		OnStateChange: func(name string, _, to resilience.State) {
			m.RecordBreakerTransition(context.Background(), name, to.String())
		},
	}}

	var fb *resilience.ClassifierFallback[S]
	entries := append([]config.ClassifierEntry{cfg.Classifier}, cfg.Fallbacks...)
	for i, entry := range entries {
		raw, err := reg.CreateClassifier(entry, cfg.Model)
		if err != nil {
			return nil, err
		}
		if c, ok := raw.(io.Closer); ok {
			p.closers = append(p.closers, c)
		}
		name := backendName(sc.Name, i, entry.Name)
		if pg, ok := raw.(health.Pinger); ok {
			p.checks = append(p.checks, health.PingChecker("classifier:"+name, pg))
		}
		c := wrap(raw, entry)
		if fb == nil {
			fb = resilience.NewClassifierFallback(c, name, fcfg)
			continue
		}
		if err := fb.AddFallback(name, c); err != nil {
			return nil, err
		}
	}
	fb.Group().Each(func(name string, _ classifier.Classifier[S]) {
		p.checks = append(p.checks, health.BreakerChecker(fb.Group().Breaker(name)))
	})

	src, closer, err := openSource(sc.Source, cfg.Model.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", sc.Name, err)
	}
	p.src = src
	if closer != nil {
		p.closers = append(p.closers, closer)
	}

	p.stream, err = stream.New(stream.Config{
		Name:      sc.Name,
		BlockSize: cfg.Model.BlockSize,
		Labels:    cfg.Model.Labels,
		Conditioning: condition.Config{
			TargetRMS:          cfg.Conditioning.TargetRMS,
			PreEmphasis:        cfg.Conditioning.PreEmphasis,
			DisablePreEmphasis: cfg.Conditioning.DisablePreEmphasis,
		},
		Decision: decision.Config{
			NumClasses:    len(cfg.Model.Labels),
			NegativeClass: cfg.Model.NegativeClass,
			HistoryDepth:  cfg.Voting.HistoryDepth,
			Cooldown:      cfg.Voting.CooldownCycles(),
		},
	}, classifier.Classifier[S](fb), stream.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	slog.Info("stream ready",
		"stream", sc.Name,
		"source", sc.Source.Kind,
		"path", sc.Source.Path,
		"backends", fb.Group().Len(),
	)
	return p, nil
}

func (p *streamPipeline[S]) name() string { return p.stream.Name() }

func (p *streamPipeline[S]) run(ctx context.Context, sink stream.Sink) (stream.Stats, error) {
	return p.stream.Run(ctx, p.src, sink)
}

func (p *streamPipeline[S]) checkers() []health.Checker { return p.checks }

func (p *streamPipeline[S]) close() {
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			slog.Warn("close error", "err", err)
		}
	}
	p.closers = nil
}

// backendName labels backend i of a stream for breakers, metrics and health.
func backendName(stream string, i int, backend string) string {
	if i == 0 {
		return fmt.Sprintf("%s/primary:%s", stream, backend)
	}
	return fmt.Sprintf("%s/fallback%d:%s", stream, i, backend)
}

// openSource opens the sample source of a stream. The returned closer is nil
// when nothing needs closing.
func openSource(sc config.SourceConfig, sampleRate int) (audio.Source, io.Closer, error) {
	switch sc.Kind {
	case config.SourceWAV:
		src, err := audio.NewWAVSource(sc.Path, sampleRate)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	case config.SourceFloat32, "":
		if sc.Path == "" || sc.Path == "-" {
			return audio.NewFloat32Reader(os.Stdin), nil, nil
		}
		f, err := os.Open(sc.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open source: %w", err)
		}
		return audio.NewFloat32Reader(f), f, nil
	default:
		return nil, nil, errors.New("unknown source kind " + string(sc.Kind))
	}
}
