package units

import (
	"math"
	"testing"
)

func TestRadiansDegrees(t *testing.T) {
	tests := []struct {
		name string
		deg  float64
		rad  float64
	}{
		{"zero", 0, 0},
		{"right angle", 90, math.Pi / 2},
		{"straight", 180, math.Pi},
		{"full turn", 360, 2 * math.Pi},
		{"negative", -45, -math.Pi / 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Radians(tt.deg); math.Abs(got-tt.rad) > 1e-12 {
				t.Errorf("Radians(%v) = %v, want %v", tt.deg, got, tt.rad)
			}
			if got := Degrees(tt.rad); math.Abs(got-tt.deg) > 1e-12 {
				t.Errorf("Degrees(%v) = %v, want %v", tt.rad, got, tt.deg)
			}
		})
	}
}

func TestWrapDeg180(t *testing.T) {
	tests := []struct {
		name     string
		deg      float64
		expected float64
	}{
		{"in range", 10, 10},
		{"upper boundary stays", 180, 180},
		{"lower boundary folds", -180, 180},
		{"just over", 181, -179},
		{"full turn", 360, 0},
		{"turn and a half", 540, 180},
		{"negative turn and a half", -540, 180},
		{"two turns plus", 725, 5},
		{"small negative", -10, -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapDeg180(tt.deg); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("WrapDeg180(%v) = %v, want %v", tt.deg, got, tt.expected)
			}
		})
	}
}

func TestWrapDeg360(t *testing.T) {
	tests := []struct {
		name     string
		deg      float64
		expected float64
	}{
		{"in range", 123, 123},
		{"zero", 0, 0},
		{"negative", -90, 270},
		{"full turn", 360, 0},
		{"over a turn", 370, 10},
		{"deep negative", -730, 350},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapDeg360(tt.deg); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("WrapDeg360(%v) = %v, want %v", tt.deg, got, tt.expected)
			}
		})
	}
}

func TestAngleDiffDeg(t *testing.T) {
	tests := []struct {
		name     string
		a, b     float64
		expected float64
	}{
		{"same heading", 45, 45, 0},
		{"simple difference", 50, 45, 5},
		{"across the seam", 179, -179, -2},
		{"across the seam reversed", -179, 179, 2},
		{"north across zero", 1, 359, 2},
		{"opposite headings", 0, 180, 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AngleDiffDeg(tt.a, tt.b); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("AngleDiffDeg(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}
