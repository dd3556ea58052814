// Package detimage holds the in-memory representation of one detector
// exposure: the per-amplifier raw readout, the focal plane geometry and
// calibration it was taken with, and the assembled science image built
// from them.
package detimage

import (
	"errors"

	"github.com/uaitl/focalsrv/focalplane"
)

// ErrNotReady is returned when an operation needs decoded raw data and
// none is present
var ErrNotReady = errors.New("image has no valid raw data, decode an exposure first")

// TrimMode selects whether assembly removes the prescan/overscan margins
type TrimMode int

const (
	// TrimDefault defers to the image's stored trim preference
	TrimDefault TrimMode = -1

	// TrimNone keeps the margins in the assembled image
	TrimNone TrimMode = 0

	// TrimApply removes the margins
	TrimApply TrimMode = 1
)

// Image is one exposure.  The zero value is unusable; construct with New.
//
// An Image is not internally synchronized.  Instances are independent and
// may be assembled on separate goroutines, but concurrent access to a
// single instance must be serialized by the caller.
type Image struct {
	// FP is the focal plane geometry the exposure was read out with
	FP focalplane.Geometry

	// Cal is the per-amplifier photometric calibration applied during
	// assembly.  Changing it after assembly has no effect until the
	// image is invalidated and assembled again.
	Cal focalplane.Calibration

	// Trim is the stored trim preference, applied by file loaders
	Trim bool

	// BitPix is the on-disk sample format the raw data was decoded from
	// (8/16/32/64 integer, -32/-64 float)
	BitPix int

	// DoublePrec records that the raw data was 64-bit floating point.
	// Compute happens in float64 either way; codecs consult this to pick
	// the output sample class.
	DoublePrec bool

	raw   [][]float64
	valid bool

	buffer    []float64
	assembled bool
	trimmed   bool
	asmCols   int
	asmRows   int
}

// New returns an empty Image for the given geometry with identity
// calibration.  Raw data must be installed with SetRaw before assembly.
func New(g focalplane.Geometry) *Image {
	return &Image{
		FP:     g,
		Cal:    focalplane.NewCalibration(g.NumAmps()),
		BitPix: 16,
	}
}

// SetRaw installs a new exposure's decoded per-amplifier data, one flat
// block per amplifier, each of length AmpCols*AmpRows.  The image takes
// the slice as-is and never mutates it.  Any previous assembly is
// discarded.
func (img *Image) SetRaw(raw [][]float64) error {
	g := img.FP
	if err := g.Validate(); err != nil {
		return err
	}
	if len(raw) != g.NumAmps() {
		return focalplane.ShapeError{Amp: -1, Want: g.NumAmps(), Got: len(raw)}
	}
	npx := g.AmpPixels()
	for i, block := range raw {
		if len(block) < npx {
			return focalplane.ShapeError{Amp: i, Want: npx, Got: len(block)}
		}
	}
	img.raw = raw
	img.valid = true
	img.Invalidate()
	return nil
}

// Raw returns the per-amplifier raw blocks.  Callers must not mutate them
// between SetRaw and assembly.
func (img *Image) Raw() [][]float64 {
	return img.raw
}

// Valid reports whether decoded raw data is present
func (img *Image) Valid() bool {
	return img.valid
}

// Invalidate discards the assembled buffer so the next Assemble call
// recomputes it.  Raw data is untouched.
func (img *Image) Invalidate() {
	img.buffer = nil
	img.assembled = false
	img.trimmed = false
	img.asmCols, img.asmRows = 0, 0
}

// Assembled reports whether an assembled buffer exists
func (img *Image) Assembled() bool {
	return img.assembled
}

// Trimmed reports whether the assembled buffer had its margins removed
func (img *Image) Trimmed() bool {
	return img.trimmed
}

// Size returns the assembled dimensions, zero before assembly
func (img *Image) Size() (cols, rows int) {
	return img.asmCols, img.asmRows
}

// Buffer returns the assembled image, row-major, rows x cols.  It is nil
// before assembly and must be treated as read-only afterward.
func (img *Image) Buffer() []float64 {
	return img.buffer
}

// SetScaling replaces the calibration with identity entries and overwrites
// the leading ones with the supplied gains and offsets.  See
// focalplane.Calibration.Set for the exact semantics.  It does not touch a
// previously assembled buffer; Invalidate and reassemble to apply new
// values.
func (img *Image) SetScaling(gains, offsets []float64) error {
	return img.Cal.Set(img.FP.NumAmps(), gains, offsets)
}
