package vote

import "testing"

func TestArgmax(t *testing.T) {
	tests := []struct {
		name string
		v    []float32
		want int
	}{
		{"single max", []float32{0.1, 0.7, 0.2}, 1},
		{"tie resolves to lowest", []float32{0, 5, 1, 5}, 1},
		{"all zero", []float32{0, 0, 0, 0}, 0},
		{"negative values", []float32{-3, -1, -2}, 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Argmax(tt.v); got != tt.want {
				t.Errorf("Argmax(%v) = %d, want %d", tt.v, got, tt.want)
			}
		})
	}
}

func TestArgmax_TieIsDeterministic(t *testing.T) {
	v := []int32{2, 9, 4, 9}
	for range 1000 {
		if got := Argmax(v); got != 1 {
			t.Fatalf("Argmax = %d, want 1", got)
		}
	}
}

func TestPlurality_Exclusion(t *testing.T) {
	v := []int64{10, 3, 7, 7}
	if got := Plurality(v, NoExclusion); got != 0 {
		t.Errorf("no exclusion: got %d, want 0", got)
	}
	if got := Plurality(v, 0); got != 2 {
		t.Errorf("excluding 0: got %d, want 2", got)
	}
	if got := Plurality([]int64{4}, 0); got != 0 {
		t.Errorf("everything excluded: got %d, want 0", got)
	}
}

func TestPlurality_SameForSoftAndQuantized(t *testing.T) {
	soft := []float64{0.05, 0.15, 0.6, 0.2}
	quant := []int32{-120, -90, 40, -70}
	if Argmax(soft) != Argmax(quant) {
		t.Errorf("soft argmax %d != quantized argmax %d", Argmax(soft), Argmax(quant))
	}
}
