package classifier_test

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/trafficear/pkg/provider/classifier"
	"github.com/MrWong99/trafficear/pkg/provider/classifier/mock"
	"github.com/MrWong99/trafficear/pkg/vote"
)

func TestQuantizeScore(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int64
	}{
		{"zero probability", 0, -128},
		{"half", 0.5, 0},
		{"one clips", 1, 127},
		{"above range clips", 3, 127},
		{"below range clips", -1, -128},
		{"nan", float32(math.NaN()), -128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.QuantizeScore(tt.in, classifier.DefaultQuantScale, classifier.DefaultQuantZeroPoint)
			if got != tt.want {
				t.Errorf("QuantizeScore(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuantized_Classify(t *testing.T) {
	inner := &mock.Classifier[float32]{
		Classes: 4,
		Script:  [][]float32{{0.1, 0.6, 0.2, 0.1}},
	}
	q := classifier.Quantize(inner, 0, 0)
	if q.NumClasses() != 4 {
		t.Fatalf("NumClasses = %d, want 4", q.NumClasses())
	}

	got, err := q.Classify(context.Background(), make([]float32, 8))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := []int64{-102, 26, -77, -102}
	if !slices.Equal(got, want) {
		t.Errorf("Classify = %v, want %v", got, want)
	}
	if vote.Argmax(got) != vote.Argmax(inner.Script[0]) {
		t.Errorf("quantization changed the winner")
	}
}

func TestQuantized_Errors(t *testing.T) {
	boom := errors.New("boom")
	q := classifier.Quantize(&mock.Classifier[float32]{Classes: 2, ClassifyErr: boom}, 0, 0)
	if _, err := q.Classify(context.Background(), nil); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}

	short := classifier.Quantize(&mock.Classifier[float32]{Classes: 3, Script: [][]float32{{1}}}, 0, 0)
	if _, err := short.Classify(context.Background(), nil); err == nil {
		t.Error("expected error for short score vector")
	}
}
