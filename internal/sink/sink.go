// Package sink provides decision sinks for classification streams: a slog
// logger, a per-class tally, a websocket broadcast hub and a PostgreSQL
// journal, plus [Multi] to fan a decision out to several of them.
//
// Every sink implements the stream.Sink interface and reports its name for
// metrics through Name.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/trafficear/pkg/types"
)

// Sink is the decision consumer interface shared with the stream package.
type Sink interface {
	Emit(ctx context.Context, d types.Decision) error
	Name() string
}

// Log writes every decision as a structured log record.
type Log struct {
	Logger *slog.Logger
	Level  slog.Level
}

// Emit logs d. It never fails.
func (l Log) Emit(ctx context.Context, d types.Decision) error {
	lg := l.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg.Log(ctx, l.Level, "vehicle decision",
		"stream", d.Stream,
		"class", d.Class,
		"label", d.Label,
		"cycle", d.Cycle,
		"polarity", d.Polarity.String(),
	)
	return nil
}

// Name returns "log".
func (Log) Name() string { return "log" }

// Multi delivers each decision to every sink in order. A failing sink does
// not prevent delivery to the rest; all failures are joined.
type Multi []Sink

// Emit calls Emit on every sink.
func (m Multi) Emit(ctx context.Context, d types.Decision) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Name returns "multi".
func (Multi) Name() string { return "multi" }
