package sink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/trafficear/pkg/types"
)

var labels = []string{"Background", "Car", "Truck", "Bus", "Motorcycle"}

func decisionOf(class int) types.Decision {
	return types.Decision{
		Class:    class,
		Cycle:    uint64(10 + class),
		Polarity: types.PolarityOf(class, 0),
		Label:    labels[class],
		Stream:   "kerb-north",
	}
}

func TestLog_Emit(t *testing.T) {
	var buf bytes.Buffer
	l := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil)), Level: slog.LevelInfo}
	if err := l.Emit(context.Background(), decisionOf(2)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"vehicle decision", "label=Truck", "cycle=12", "polarity=positive", "stream=kerb-north"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

type failingSink struct{ err error }

func (f failingSink) Emit(context.Context, types.Decision) error { return f.err }
func (failingSink) Name() string                                 { return "failing" }

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	tally := NewTally(5, 0, labels)
	m := Multi{failingSink{errA}, tally}

	err := m.Emit(context.Background(), decisionOf(1))
	if !errors.Is(err, errA) {
		t.Fatalf("err = %v, want it to wrap errA", err)
	}
	if !strings.Contains(err.Error(), "failing:") {
		t.Errorf("err = %q, want sink name prefix", err)
	}
	if got := tally.Counts()[1]; got != 1 {
		t.Errorf("tally count = %d, want 1; later sinks must still receive the decision", got)
	}
	if err := (Multi{tally}).Emit(context.Background(), decisionOf(3)); err != nil {
		t.Errorf("all-ok Multi returned %v", err)
	}
}

func TestTally(t *testing.T) {
	tally := NewTally(5, 0, labels)
	ctx := context.Background()
	for _, c := range []int{1, 1, 2, 0, 4, 1, 0} {
		if err := tally.Emit(ctx, decisionOf(c)); err != nil {
			t.Fatalf("Emit(%d): %v", c, err)
		}
	}

	if got, want := tally.Counts(), []uint64{2, 3, 1, 0, 1}; !slices.Equal(got, want) {
		t.Errorf("Counts = %v, want %v", got, want)
	}
	if got := tally.Total(); got != 5 {
		t.Errorf("Total = %d, want 5", got)
	}
	if got, want := tally.String(), "Car: 3, Truck: 1, Bus: 0, Motorcycle: 1"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("status", "tally", tally)
	if !strings.Contains(buf.String(), "tally.Car=3") {
		t.Errorf("LogValue output = %s", buf.String())
	}

	if err := tally.Emit(ctx, types.Decision{Class: 9}); err == nil {
		t.Error("expected error for out-of-range class")
	}
}

func TestTally_Unlabelled(t *testing.T) {
	tally := NewTally(3, -1, nil)
	_ = tally.Emit(context.Background(), types.Decision{Class: 0})
	if got, want := tally.String(), "class_0: 1, class_1: 0, class_2: 0"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}
