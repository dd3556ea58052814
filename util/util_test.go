package util

import "testing"

func TestClamp(t *testing.T) {
	if got := Clamp(-1, 0, 255); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
	if got := Clamp(300, 0, 255); got != 255 {
		t.Errorf("expected 255, got %f", got)
	}
	if got := Clamp(128, 0, 255); got != 128 {
		t.Errorf("expected 128, got %f", got)
	}
}

func TestMinMax(t *testing.T) {
	min, max := MinMax([]float64{3, -2, 7, 0})
	if min != -2 || max != 7 {
		t.Errorf("expected (-2, 7), got (%f, %f)", min, max)
	}
	min, max = MinMax(nil)
	if min != 0 || max != 0 {
		t.Errorf("expected zeros for an empty slice, got (%f, %f)", min, max)
	}
}
