// Package stream drives one audio stream through the classification
// pipeline.
//
// Each cycle reads one block from an [audio.Source], conditions it, asks the
// classifier for a score vector and feeds the vector to the hysteresis
// decision engine. Emitted decisions go to a [Sink]. A classifier failure
// drops the cycle: no vote is recorded, the cycle number still advances, and
// the stream keeps running.
//
// A Stream owns all of its state. Independent streams share nothing and may
// run concurrently; a single Stream must be driven by one goroutine.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/trafficear/internal/observe"
	"github.com/MrWong99/trafficear/internal/resilience"
	"github.com/MrWong99/trafficear/pkg/audio"
	"github.com/MrWong99/trafficear/pkg/condition"
	"github.com/MrWong99/trafficear/pkg/decision"
	"github.com/MrWong99/trafficear/pkg/provider/classifier"
	"github.com/MrWong99/trafficear/pkg/types"
)

// Adapter failure reasons reported as metric attributes.
const (
	reasonError       = "error"
	reasonCircuitOpen = "circuit_open"
	reasonCanceled    = "canceled"
	reasonLength      = "length_mismatch"
)

// Sink receives decisions as they fire.
type Sink interface {
	Emit(ctx context.Context, d types.Decision) error
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(ctx context.Context, d types.Decision) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, d types.Decision) error { return f(ctx, d) }

// Config configures a [Stream].
type Config struct {
	// Name identifies the stream in logs, metrics and decisions.
	Name string

	// BlockSize is the number of samples fed to the classifier per cycle.
	BlockSize int

	// Labels optionally names each class. When set it must have exactly
	// Decision.NumClasses entries.
	Labels []string

	Conditioning condition.Config
	Decision     decision.Config
}

// Stats summarises a finished [Stream.Run].
type Stats struct {
	// Cycles counts every block read, including skipped ones.
	Cycles uint64

	// Skipped counts cycles dropped because of an adapter failure.
	Skipped uint64

	// Decisions counts decisions emitted.
	Decisions uint64
}

// Option configures optional [Stream] dependencies.
type Option func(*options)

type options struct {
	metrics *observe.Metrics
	logger  *slog.Logger
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the base logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Stream is the classification loop for one audio stream.
type Stream[S types.Score] struct {
	cfg     Config
	clf     classifier.Classifier[S]
	cond    *condition.Conditioner
	metrics *observe.Metrics
	log     *slog.Logger
	attrs   metric.MeasurementOption

	// work is only touched by the goroutine driving Cycle.
	work []float32

	mu     sync.Mutex // guards engine and cycle against concurrent State readers
	engine *decision.Engine[S]
	cycle  uint64
}

// New validates cfg against clf and returns a ready Stream. Errors wrap
// [types.ErrInvalidConfiguration].
func New[S types.Score](cfg Config, clf classifier.Classifier[S], opts ...Option) (*Stream[S], error) {
	if clf == nil {
		return nil, fmt.Errorf("stream: classifier is nil: %w", types.ErrInvalidConfiguration)
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("stream: block size %d must be positive: %w", cfg.BlockSize, types.ErrInvalidConfiguration)
	}
	if n := clf.NumClasses(); n != cfg.Decision.NumClasses {
		return nil, fmt.Errorf("stream: classifier produces %d classes, configured %d: %w",
			n, cfg.Decision.NumClasses, types.ErrInvalidConfiguration)
	}
	if len(cfg.Labels) > 0 && len(cfg.Labels) != cfg.Decision.NumClasses {
		return nil, fmt.Errorf("stream: %d labels for %d classes: %w",
			len(cfg.Labels), cfg.Decision.NumClasses, types.ErrInvalidConfiguration)
	}
	eng, err := decision.New[S](cfg.Decision)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	return &Stream[S]{
		cfg:     cfg,
		clf:     clf,
		cond:    condition.New(cfg.Conditioning),
		metrics: o.metrics,
		log:     o.logger.With("stream", cfg.Name),
		attrs:   metric.WithAttributes(attribute.String("stream", cfg.Name)),
		work:    make([]float32, cfg.BlockSize),
		engine:  eng,
	}, nil
}

// Name returns the configured stream name.
func (s *Stream[S]) Name() string { return s.cfg.Name }

// BlockSize returns the number of samples consumed per cycle.
func (s *Stream[S]) BlockSize() int { return s.cfg.BlockSize }

// Label returns the configured label of class, or "" when unlabelled.
func (s *Stream[S]) Label(class int) string {
	if class < 0 || class >= len(s.cfg.Labels) {
		return ""
	}
	return s.cfg.Labels[class]
}

// State returns a snapshot of the decision engine. Safe to call while Run is
// active.
func (s *Stream[S]) State() decision.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State()
}

// Cycle runs one classification cycle on block, which must hold exactly
// BlockSize samples and is not modified. On adapter failure the returned
// error wraps [types.ErrAdapterFailure] and the engine is left untouched.
//
// Cycle and Run must be driven from a single goroutine; the working block and
// conditioner are not locked. State may be called concurrently.
func (s *Stream[S]) Cycle(ctx context.Context, block []float32) (types.Decision, bool, error) {
	if len(block) != s.cfg.BlockSize {
		return types.Decision{}, false, fmt.Errorf("stream %q: block has %d samples, want %d",
			s.cfg.Name, len(block), s.cfg.BlockSize)
	}

	s.mu.Lock()
	s.cycle++
	cycle := s.cycle
	s.mu.Unlock()

	copy(s.work, block)
	s.cond.Condition(s.work)

	cctx, span := observe.StartCycleSpan(ctx, s.cfg.Name, cycle)
	defer span.End()

	start := time.Now()
	scores, err := s.clf.Classify(cctx, s.work)
	s.metrics.ClassifyDuration.Record(ctx, time.Since(start).Seconds(), s.attrs)

	reason := reasonError
	if err == nil && len(scores) != s.cfg.Decision.NumClasses {
		err = fmt.Errorf("classifier returned %d scores, want %d", len(scores), s.cfg.Decision.NumClasses)
		reason = reasonLength
	}
	if err != nil {
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			reason = reasonCircuitOpen
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			reason = reasonCanceled
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		s.metrics.RecordAdapterFailure(ctx, s.cfg.Name, reason)
		s.metrics.RecordCycle(ctx, s.cfg.Name, observe.CycleSkipped)
		observe.Logger(cctx).Warn("classifier failed, skipping cycle",
			"stream", s.cfg.Name, "cycle", cycle, "reason", reason, "err", err)
		return types.Decision{}, false, fmt.Errorf("stream %q: cycle %d: %w: %w",
			s.cfg.Name, cycle, types.ErrAdapterFailure, err)
	}

	s.mu.Lock()
	d, fired := s.engine.Observe(cycle, scores)
	snap := s.engine.State()
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int("trafficear.winner", snap.Winner),
		attribute.Int("trafficear.prior_class", snap.PriorClass),
		attribute.Int("trafficear.recent_class", snap.RecentClass),
	)
	s.metrics.RecordCycle(ctx, s.cfg.Name, observe.CycleOK)
	s.metrics.RecordStreaks(ctx, s.cfg.Name, snap.PositiveStreak, snap.NegativeStreak)

	if !fired {
		return types.Decision{}, false, nil
	}
	d.Label = s.Label(d.Class)
	d.Stream = s.cfg.Name
	span.SetAttributes(attribute.Int("trafficear.decision", d.Class))
	s.metrics.RecordDecision(ctx, s.cfg.Name, d.Class, d.Label)
	s.log.Info("decision", "class", d.Class, "label", d.Label, "cycle", d.Cycle, "polarity", d.Polarity.String())
	return d, true, nil
}

// Run reads blocks from src until it reports [io.EOF] or ctx is done, sending
// every decision to sink (which may be nil). End of input returns a nil error;
// cancellation returns the context error. Sink failures are logged and
// counted but do not stop the stream. Run is the single driver of Cycle for
// its duration.
func (s *Stream[S]) Run(ctx context.Context, src audio.Source, sink Sink) (Stats, error) {
	var st Stats
	block := make([]float32, s.cfg.BlockSize)

	s.metrics.ActiveStreams.Add(ctx, 1, s.attrs)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1, s.attrs)

	s.log.Info("stream started", "block_size", s.cfg.BlockSize, "classes", s.cfg.Decision.NumClasses)
	for {
		if err := ctx.Err(); err != nil {
			s.log.Info("stream stopped", "cycles", st.Cycles, "decisions", st.Decisions)
			return st, err
		}
		if err := src.ReadBlock(block); err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("stream ended", "cycles", st.Cycles, "skipped", st.Skipped, "decisions", st.Decisions)
				return st, nil
			}
			return st, fmt.Errorf("stream %q: read block: %w", s.cfg.Name, err)
		}

		st.Cycles++
		d, fired, err := s.Cycle(ctx, block)
		if err != nil {
			if errors.Is(err, types.ErrAdapterFailure) {
				st.Skipped++
				continue
			}
			return st, err
		}
		if !fired {
			continue
		}
		st.Decisions++
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, d); err != nil {
			s.metrics.RecordSinkError(ctx, sinkName(sink))
			s.log.Warn("sink failed", "cycle", d.Cycle, "class", d.Class, "err", err)
		}
	}
}

// sinkName returns the sink's Name() when it has one.
func sinkName(sink Sink) string {
	if n, ok := sink.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "sink"
}
