package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/trafficear/pkg/types"
)

// Tally counts decisions per class. The negative (background) class is
// counted but left out of [Tally.String], [Tally.LogValue] and [Tally.Total].
type Tally struct {
	labels   []string
	negative int

	mu     sync.Mutex
	counts []uint64
}

// NewTally returns a Tally for numClasses classes. labels may be nil, in which
// case classes print by index. Pass a negative value for negativeClass to
// report every class.
func NewTally(numClasses, negativeClass int, labels []string) *Tally {
	return &Tally{
		labels:   labels,
		negative: negativeClass,
		counts:   make([]uint64, max(numClasses, len(labels))),
	}
}

// Emit increments the counter for d.Class. Out-of-range classes are an error.
func (t *Tally) Emit(_ context.Context, d types.Decision) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d.Class < 0 || d.Class >= len(t.counts) {
		return fmt.Errorf("sink: tally: class %d out of range [0, %d)", d.Class, len(t.counts))
	}
	t.counts[d.Class]++
	return nil
}

// Name returns "tally".
func (*Tally) Name() string { return "tally" }

// Counts returns a copy of the per-class counters, background included.
func (t *Tally) Counts() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, len(t.counts))
	copy(out, t.counts)
	return out
}

// Total returns the number of positive decisions counted.
func (t *Tally) Total() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n uint64
	for c, v := range t.counts {
		if c != t.negative {
			n += v
		}
	}
	return n
}

// String renders the tally as "Car: 3, Truck: 1, Bus: 0".
func (t *Tally) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := make([]string, 0, len(t.counts))
	for c, v := range t.counts {
		if c == t.negative {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %d", t.label(c), v))
	}
	return strings.Join(parts, ", ")
}

// LogValue implements [slog.LogValuer].
func (t *Tally) LogValue() slog.Value {
	t.mu.Lock()
	defer t.mu.Unlock()
	attrs := make([]slog.Attr, 0, len(t.counts))
	for c, v := range t.counts {
		if c == t.negative {
			continue
		}
		attrs = append(attrs, slog.Uint64(t.label(c), v))
	}
	return slog.GroupValue(attrs...)
}

func (t *Tally) label(c int) string {
	if c < len(t.labels) && t.labels[c] != "" {
		return t.labels[c]
	}
	return fmt.Sprintf("class_%d", c)
}
