// Package focalplane describes the amplifier layout of a segmented detector:
// how many readout channels there are, how big each channel's raw block is,
// which margins of that block are not photosensitive, and how each channel's
// readout is oriented relative to the physical focal plane.
package focalplane

import "fmt"

// FlipCode is the per-amplifier orientation correction applied during
// assembly.  The codes come from the controller's geometry tables.
type FlipCode int

const (
	// FlipNone leaves the amplifier's readout as-is
	FlipNone FlipCode = 0

	// FlipX mirrors the readout left-right (reverses the serial direction)
	FlipX FlipCode = 1

	// FlipY mirrors the readout top-bottom (reverses the parallel direction)
	FlipY FlipCode = 2

	// FlipXY mirrors the readout in both directions
	FlipXY FlipCode = 3
)

// MirrorsX is true for the codes that reverse pixel order within a line
func (f FlipCode) MirrorsX() bool {
	return f == FlipX || f == FlipXY
}

// InvalidFlipError is an orientation code outside 0..3
type InvalidFlipError int

func (e InvalidFlipError) Error() string {
	return fmt.Sprintf("flip code %d is not valid, must be 0 (none), 1 (x), 2 (y), or 3 (xy)", int(e))
}

// ShapeError indicates a buffer whose size disagrees with the declared geometry
type ShapeError struct {
	// Amp is the amplifier index the buffer belongs to, -1 if not per-amp
	Amp int

	// Want and Got are the expected and actual element counts
	Want, Got int
}

func (e ShapeError) Error() string {
	if e.Amp < 0 {
		return fmt.Sprintf("buffer size disagrees with geometry, expected %d elements, got %d", e.Want, e.Got)
	}
	return fmt.Sprintf("amplifier %d: buffer size disagrees with geometry, expected %d elements, got %d", e.Amp, e.Want, e.Got)
}

// Geometry holds the static layout parameters of the focal plane.  It is
// pure data; Validate is the only behavior beyond derived size arithmetic.
type Geometry struct {
	// NumAmpsX is the number of amplifiers along the serial (column) axis
	NumAmpsX int

	// NumAmpsY is the number of amplifiers along the parallel (row) axis
	NumAmpsY int

	// AmpCols is the raw per-amplifier width, margins included
	AmpCols int

	// AmpRows is the raw per-amplifier height, margins included
	AmpRows int

	// UnderscanCols and OverscanCols are the serial margins before and
	// after the active columns of each amplifier
	UnderscanCols, OverscanCols int

	// UnderscanRows and OverscanRows are the parallel margins before and
	// after the active rows of each amplifier
	UnderscanRows, OverscanRows int

	// ReadoutOrder maps the logical column-major amplifier position to the
	// physical amplifier index whose data occupies that position.  Zero
	// based; file codecs convert the one-based header convention.
	ReadoutOrder []int

	// FlipCodes holds the orientation code of each physical amplifier
	FlipCodes []FlipCode
}

// NumAmps returns the total amplifier count
func (g Geometry) NumAmps() int {
	return g.NumAmpsX * g.NumAmpsY
}

// AmpPixels returns the raw pixel count of one amplifier block
func (g Geometry) AmpPixels() int {
	return g.AmpCols * g.AmpRows
}

// Validate checks the internal consistency of the geometry.  Flip code
// values are not range checked here; RowStart owns that so the orientation
// dispatch is validated in exactly one place.
func (g Geometry) Validate() error {
	if g.NumAmpsX < 1 || g.NumAmpsY < 1 {
		return fmt.Errorf("amplifier grid must be at least 1x1, got %dx%d", g.NumAmpsX, g.NumAmpsY)
	}
	if g.AmpCols < 1 || g.AmpRows < 1 {
		return fmt.Errorf("amplifier block must be at least 1x1, got %dx%d", g.AmpCols, g.AmpRows)
	}
	if g.UnderscanCols < 0 || g.OverscanCols < 0 || g.UnderscanRows < 0 || g.OverscanRows < 0 {
		return fmt.Errorf("margins may not be negative")
	}
	if g.UnderscanCols+g.OverscanCols > g.AmpCols {
		return fmt.Errorf("serial margins (%d+%d) exceed amplifier width %d", g.UnderscanCols, g.OverscanCols, g.AmpCols)
	}
	if g.UnderscanRows+g.OverscanRows > g.AmpRows {
		return fmt.Errorf("parallel margins (%d+%d) exceed amplifier height %d", g.UnderscanRows, g.OverscanRows, g.AmpRows)
	}
	namps := g.NumAmps()
	if len(g.ReadoutOrder) != namps {
		return ShapeError{Amp: -1, Want: namps, Got: len(g.ReadoutOrder)}
	}
	if len(g.FlipCodes) != namps {
		return ShapeError{Amp: -1, Want: namps, Got: len(g.FlipCodes)}
	}
	for i, amp := range g.ReadoutOrder {
		if amp < 0 || amp >= namps {
			return fmt.Errorf("readout order entry %d refers to amplifier %d, outside 0..%d", i, amp, namps-1)
		}
	}
	return nil
}

// Margins are the effective per-amplifier margins removed during one
// assembly pass.  All zero when margins are retained.
type Margins struct {
	// Cols and ColsEnd are the leading and trailing columns skipped on
	// every line
	Cols, ColsEnd int

	// RowsTop and RowsBot are the leading and trailing rows skipped
	RowsTop, RowsBot int
}

// TrimMargins returns the geometry's full margins, for a trimmed assembly
func (g Geometry) TrimMargins() Margins {
	return Margins{
		Cols:    g.UnderscanCols,
		ColsEnd: g.OverscanCols,
		RowsTop: g.UnderscanRows,
		RowsBot: g.OverscanRows,
	}
}

// DstAmpSize returns the per-amplifier extent after removing m
func (g Geometry) DstAmpSize(m Margins) (cols, rows int) {
	return g.AmpCols - m.Cols - m.ColsEnd, g.AmpRows - m.RowsTop - m.RowsBot
}

// AssembledSize returns the dimensions of the assembled image after
// removing m from every amplifier
func (g Geometry) AssembledSize(m Margins) (cols, rows int) {
	c, r := g.DstAmpSize(m)
	return c * g.NumAmpsX, r * g.NumAmpsY
}

// RowStart returns the offset within an amplifier's flat raw block of the
// first retained pixel of source line `line`, for the given orientation.
// `line` counts from the top of the raw block and already includes any
// skipped leading rows (m.RowsTop).
//
// FlipY and FlipXY locate the mirrored row with different margin terms:
// the bottom margin for FlipY and the top margin for FlipXY.  The
// controller geometry tables are written against this exact arithmetic,
// so the two formulas stay distinct.
func RowStart(flip FlipCode, line int, g Geometry, m Margins) (int, error) {
	switch flip {
	case FlipNone, FlipX:
		return line*g.AmpCols + m.Cols, nil
	case FlipY:
		return (g.AmpRows-line-m.RowsBot-1)*g.AmpCols + m.Cols, nil
	case FlipXY:
		return (g.AmpRows-line-m.RowsTop-1)*g.AmpCols + m.Cols, nil
	default:
		return 0, InvalidFlipError(flip)
	}
}
