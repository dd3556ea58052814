package focalplane

import (
	"errors"
	"testing"
)

func TestNewCalibrationIsIdentity(t *testing.T) {
	c := NewCalibration(4)
	for i := 0; i < 4; i++ {
		if c.Scales[i] != 1.0 {
			t.Errorf("scale %d: expected 1.0, got %f", i, c.Scales[i])
		}
		if c.Offsets[i] != 0.0 {
			t.Errorf("offset %d: expected 0.0, got %f", i, c.Offsets[i])
		}
	}
}

func TestSetNilMeansIdentity(t *testing.T) {
	c := NewCalibration(2)
	c.Scales[0] = 3.5
	c.Offsets[1] = 100
	if err := c.Set(2, nil, nil); err != nil {
		t.Fatal(err)
	}
	if c.Scales[0] != 1.0 || c.Offsets[1] != 0.0 {
		t.Error("Set with nil arguments must reset to identity")
	}
}

func TestSetIgnoresExtraValues(t *testing.T) {
	c := NewCalibration(2)
	err := c.Set(2, []float64{2, 3, 4, 5}, []float64{10, 20, 30, 40})
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected calibration length 2, got %d", c.Len())
	}
	if c.Scales[1] != 3 || c.Offsets[1] != 20 {
		t.Errorf("expected leading values installed, got scale %f offset %f", c.Scales[1], c.Offsets[1])
	}
}

func TestSetPartialArraysLeaveTailIdentity(t *testing.T) {
	c := NewCalibration(3)
	if err := c.Set(3, []float64{2}, nil); err != nil {
		t.Fatal(err)
	}
	if c.Scales[0] != 2 || c.Scales[1] != 1 || c.Scales[2] != 1 {
		t.Errorf("expected [2 1 1], got %v", c.Scales)
	}
}

func TestSetRejectsMismatchedLengths(t *testing.T) {
	c := NewCalibration(2)
	err := c.Set(2, []float64{1, 2}, []float64{3})
	var le LengthError
	if !errors.As(err, &le) {
		t.Fatalf("expected length error, got %v", err)
	}
	if le.Gains != 2 || le.Offsets != 1 {
		t.Errorf("expected lengths 2 and 1 in the error, got %d and %d", le.Gains, le.Offsets)
	}
}
