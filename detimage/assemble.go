package detimage

import (
	"github.com/uaitl/focalsrv/focalplane"
)

// Assemble builds the single contiguous science image from the raw
// per-amplifier blocks, applying the per-amplifier calibration and
// orientation corrections and optionally removing the prescan/overscan
// margins.
//
// If the image is already assembled the call is a no-op, even when the
// calibration changed in the meantime; call Invalidate first to force a
// recompute.  A failed call leaves the image's state untouched.
//
// Only TrimApply removes margins.  TrimDefault currently takes the
// untrimmed path rather than consulting the stored Trim preference.
// TODO(sgz): resolve TrimDefault against img.Trim once the controller
// group confirms which default the legacy clients rely on.
func (img *Image) Assemble(trim TrimMode) error {
	if !img.valid {
		return ErrNotReady
	}
	if img.assembled {
		return nil
	}
	g := img.FP
	if err := g.Validate(); err != nil {
		return err
	}

	var m focalplane.Margins
	if trim == TrimApply {
		m = g.TrimMargins()
	}
	dstAmpCols, dstAmpRows := g.DstAmpSize(m)
	cols, rows := g.AssembledSize(m)

	namps := g.NumAmps()
	if len(img.raw) != namps {
		return focalplane.ShapeError{Amp: -1, Want: namps, Got: len(img.raw)}
	}
	npx := g.AmpPixels()
	for i := 0; i < namps; i++ {
		if len(img.raw[i]) < npx {
			return focalplane.ShapeError{Amp: i, Want: npx, Got: len(img.raw[i])}
		}
	}
	if img.Cal.Len() < namps || len(img.Cal.Offsets) < namps {
		return focalplane.LengthError{Gains: img.Cal.Len(), Offsets: len(img.Cal.Offsets)}
	}

	buf := make([]float64, cols*rows)

	// walk the parallel amplifier groups top to bottom; within each group
	// copy one destination line at a time, amplifier by amplifier in
	// readout order
	for par := 0; par < g.NumAmpsY; par++ {
		extBase := par * g.NumAmpsX
		srcLine := m.RowsTop
		for line := par * dstAmpRows; line < (par+1)*dstAmpRows; line++ {
			lineStart := line * cols
			for ext := extBase; ext < extBase+g.NumAmpsX; ext++ {
				amp := g.ReadoutOrder[ext]
				flip := g.FlipCodes[amp]
				pos, err := focalplane.RowStart(flip, srcLine, g, m)
				if err != nil {
					return err
				}
				src := img.raw[amp][pos : pos+dstAmpCols]
				dst := buf[lineStart : lineStart+dstAmpCols]
				offset := img.Cal.Offsets[amp]
				scale := img.Cal.Scales[amp]
				if flip.MirrorsX() {
					last := dstAmpCols - 1
					for i := 0; i < dstAmpCols; i++ {
						dst[i] = (src[last-i] - offset) * scale
					}
				} else {
					for i := 0; i < dstAmpCols; i++ {
						dst[i] = (src[i] - offset) * scale
					}
				}
				lineStart += dstAmpCols
			}
			srcLine++
		}
	}

	img.buffer = buf
	img.asmCols, img.asmRows = cols, rows
	img.assembled = true
	img.trimmed = trim == TrimApply
	return nil
}
