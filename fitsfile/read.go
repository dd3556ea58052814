package fitsfile

import (
	"fmt"
	"io"
	"os"

	"github.com/astrogo/fitsio"

	"github.com/uaitl/focalsrv/detimage"
	"github.com/uaitl/focalsrv/focalplane"
)

// ReadFile decodes a single or multi-extension FITS file into a fresh
// Image with valid raw data and identity calibration.
func ReadFile(path string) (*detimage.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Read decodes a FITS stream.  A file with image extensions is treated as
// one raw amplifier block per extension; a file with only a primary HDU is
// treated as a single-amplifier exposure.
func Read(r io.Reader) (*detimage.Image, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var exts []fitsio.Image
	for i := 1; i < len(f.HDUs()); i++ {
		if im, ok := f.HDU(i).(fitsio.Image); ok {
			exts = append(exts, im)
		}
	}
	if len(exts) == 0 {
		return readSingle(f)
	}
	return readMEF(f, exts)
}

func readSingle(f *fitsio.File) (*detimage.Image, error) {
	prim, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("primary HDU carries no image data")
	}
	hdr := prim.Header()
	axes := hdr.Axes()
	if len(axes) < 2 {
		return nil, fmt.Errorf("expected a 2D image, got %d axes", len(axes))
	}
	cols, rows := axes[0], axes[1]

	g := focalplane.Geometry{
		NumAmpsX:      1,
		NumAmpsY:      1,
		AmpCols:       cols,
		AmpRows:       rows,
		UnderscanCols: cardInt(hdr, "PRESCAN1", 0),
		OverscanCols:  cardInt(hdr, "OVRSCAN1", 0),
		UnderscanRows: cardInt(hdr, "PRESCAN2", 0),
		OverscanRows:  cardInt(hdr, "OVRSCAN2", 0),
		ReadoutOrder:  []int{0},
		FlipCodes:     []focalplane.FlipCode{focalplane.FlipCode(cardInt(hdr, "AMP-CFG", 0))},
	}
	img := detimage.New(g)
	img.BitPix = hdr.Bitpix()
	img.DoublePrec = img.BitPix == -64

	block, err := readPixels(prim, g.AmpPixels())
	if err != nil {
		return nil, err
	}
	if err := img.SetRaw([][]float64{block}); err != nil {
		return nil, err
	}
	return img, nil
}

func readMEF(f *fitsio.File, exts []fitsio.Image) (*detimage.Image, error) {
	phdr := f.HDU(0).Header()
	first := exts[0].Header()
	axes := first.Axes()
	if len(axes) < 2 {
		return nil, fmt.Errorf("expected 2D image extensions, got %d axes", len(axes))
	}
	cols, rows := axes[0], axes[1]
	namps := len(exts)

	g := focalplane.Geometry{
		NumAmpsX:      cardInt(phdr, "NUM-AMPX", namps),
		NumAmpsY:      cardInt(phdr, "NUM-AMPY", 1),
		AmpCols:       cols,
		AmpRows:       rows,
		UnderscanCols: cardInt(first, "PRESCAN1", 0),
		OverscanCols:  cardInt(first, "OVRSCAN1", 0),
		UnderscanRows: cardInt(first, "PRESCAN2", 0),
		OverscanRows:  cardInt(first, "OVRSCAN2", 0),
		ReadoutOrder:  make([]int, namps),
		FlipCodes:     make([]focalplane.FlipCode, namps),
	}
	if g.NumAmpsX*g.NumAmpsY != namps {
		return nil, focalplane.ShapeError{Amp: -1, Want: g.NumAmpsX * g.NumAmpsY, Got: namps}
	}

	raw := make([][]float64, namps)
	taken := make([]bool, namps)
	for i, ext := range exts {
		hdr := ext.Header()
		g.FlipCodes[i] = focalplane.FlipCode(cardInt(hdr, "AMP-CFG", 0))
		// JPG-EXT is the amplifier's 1-based logical position
		pos := cardInt(hdr, "JPG-EXT", i+1)
		if pos < 1 || pos > namps {
			return nil, fmt.Errorf("extension %d: JPG-EXT %d outside 1..%d", i+1, pos, namps)
		}
		if taken[pos-1] {
			return nil, fmt.Errorf("extension %d: JPG-EXT %d repeats an earlier extension's position", i+1, pos)
		}
		taken[pos-1] = true
		g.ReadoutOrder[pos-1] = i
		block, err := readPixels(ext, g.AmpPixels())
		if err != nil {
			return nil, fmt.Errorf("extension %d: %w", i+1, err)
		}
		raw[i] = block
	}

	img := detimage.New(g)
	img.BitPix = first.Bitpix()
	img.DoublePrec = img.BitPix == -64
	if err := img.SetRaw(raw); err != nil {
		return nil, err
	}
	return img, nil
}

// readPixels reads an HDU's data as float64 with BZERO/BSCALE applied
func readPixels(im fitsio.Image, n int) ([]float64, error) {
	hdr := im.Header()
	bzero := cardFloat(hdr, "BZERO", 0)
	bscale := cardFloat(hdr, "BSCALE", 1)
	out := make([]float64, n)
	switch bitpix := hdr.Bitpix(); bitpix {
	case 8:
		data := make([]uint8, n)
		if err := im.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case 16:
		data := make([]int16, n)
		if err := im.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case 32:
		data := make([]int32, n)
		if err := im.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case 64:
		data := make([]int64, n)
		if err := im.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case -32:
		data := make([]float32, n)
		if err := im.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case -64:
		if err := im.Read(&out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unrecognized BITPIX %d", bitpix)
	}
	if bzero != 0 || bscale != 1 {
		for i := range out {
			out[i] = out[i]*bscale + bzero
		}
	}
	return out, nil
}

func cardInt(hdr *fitsio.Header, name string, def int) int {
	c := hdr.Get(name)
	if c == nil {
		return def
	}
	switch v := c.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func cardFloat(hdr *fitsio.Header, name string, def float64) float64 {
	c := hdr.Get(name)
	if c == nil {
		return def
	}
	switch v := c.Value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}
