package detimage

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// OverscanStats returns the mean and standard deviation of amplifier amp's
// serial overscan pixels across all rows.  The mean is the usual bias
// estimate fed back into the calibration offsets.
func (img *Image) OverscanStats(amp int) (mean, sigma float64, err error) {
	if !img.valid {
		return 0, 0, ErrNotReady
	}
	g := img.FP
	if amp < 0 || amp >= g.NumAmps() {
		return 0, 0, fmt.Errorf("amplifier %d outside 0..%d", amp, g.NumAmps()-1)
	}
	if g.OverscanCols == 0 {
		return 0, 0, fmt.Errorf("geometry has no serial overscan to measure")
	}
	block := img.raw[amp]
	px := make([]float64, 0, g.AmpRows*g.OverscanCols)
	start := g.AmpCols - g.OverscanCols
	for r := 0; r < g.AmpRows; r++ {
		base := r * g.AmpCols
		px = append(px, block[base+start:base+g.AmpCols]...)
	}
	mean, sigma = stat.MeanStdDev(px, nil)
	return mean, sigma, nil
}

// ScaleFromOverscan installs unit gains and per-amplifier offsets equal to
// each amplifier's overscan mean, so assembly subtracts the measured bias.
func (img *Image) ScaleFromOverscan() error {
	namps := img.FP.NumAmps()
	offsets := make([]float64, namps)
	for amp := 0; amp < namps; amp++ {
		mean, _, err := img.OverscanStats(amp)
		if err != nil {
			return err
		}
		offsets[amp] = mean
	}
	return img.SetScaling(nil, offsets)
}
