package focalplane

import "fmt"

// LengthError indicates gain and offset arrays of conflicting lengths
type LengthError struct {
	Gains, Offsets int
}

func (e LengthError) Error() string {
	return fmt.Sprintf("scaling arrays disagree in length: %d gains, %d offsets", e.Gains, e.Offsets)
}

// Calibration holds the per-amplifier linear photometric correction applied
// during assembly: dst = (src - Offset) * Scale.
type Calibration struct {
	// Scales are the per-amplifier gains, e/DN
	Scales []float64

	// Offsets are the per-amplifier bias levels, DN
	Offsets []float64
}

// NewCalibration returns an identity calibration (scale 1, offset 0) for
// namps amplifiers
func NewCalibration(namps int) Calibration {
	c := Calibration{}
	c.reset(namps)
	return c
}

func (c *Calibration) reset(namps int) {
	c.Scales = make([]float64, namps)
	c.Offsets = make([]float64, namps)
	for i := range c.Scales {
		c.Scales[i] = 1.0
	}
}

// Set replaces the calibration with identity entries for namps amplifiers,
// then overwrites the leading entries with the supplied gains and offsets.
// A nil or empty slice means identity for that quantity.  Supplied values
// beyond namps are ignored.  When both slices are non-empty their lengths
// must agree; silently pairing mismatched arrays is how detectors end up
// miscalibrated.
func (c *Calibration) Set(namps int, gains, offsets []float64) error {
	if len(gains) != 0 && len(offsets) != 0 && len(gains) != len(offsets) {
		return LengthError{Gains: len(gains), Offsets: len(offsets)}
	}
	c.reset(namps)
	for i := 0; i < len(gains) && i < namps; i++ {
		c.Scales[i] = gains[i]
	}
	for i := 0; i < len(offsets) && i < namps; i++ {
		c.Offsets[i] = offsets[i]
	}
	return nil
}

// Len returns the number of amplifiers the calibration covers
func (c Calibration) Len() int {
	return len(c.Scales)
}
