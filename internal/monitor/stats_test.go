package monitor

import (
	"math"
	"testing"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{4}, 4},
		{"several", []float64{10, 12, 11, 9}, 10.5},
		{"cancels", []float64{-1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mean(tt.vals); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Mean(%v) = %v, want %v", tt.vals, got, tt.want)
			}
		})
	}
}

func TestSampleStdDev(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{5}, 0},
		{"identical", []float64{3, 3, 3}, 0},
		{"pair", []float64{2, 4}, math.Sqrt2},
		{"window", []float64{10, 12, 11, 9}, math.Sqrt(5.0 / 3.0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SampleStdDev(tt.vals); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SampleStdDev(%v) = %v, want %v", tt.vals, got, tt.want)
			}
		})
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}
	for _, tt := range tests {
		if got := Clamp01(tt.in); got != tt.want {
			t.Errorf("Clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
