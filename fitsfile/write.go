package fitsfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/astrogo/fitsio"

	"github.com/uaitl/focalsrv/detimage"
)

// WriteFile serializes img to path per opt.  The assembly computation is
// never retried; only the deletion of a pre-existing output file is.
func WriteFile(img *detimage.Image, path string, opt WriteOptions) error {
	if err := prepare(path, opt); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bitpix := opt.SaveDataFormat
	if bitpix == 0 {
		bitpix = img.BitPix
	}

	switch opt.FileType {
	case TypeFITS:
		err = WriteFITS(f, img, bitpix)
	case TypeMEF:
		err = WriteMEF(f, img, bitpix)
	case TypeBin:
		err = WriteBin(f, img)
	case TypeASM:
		err = WriteASM(f, img, bitpix)
	default:
		err = fmt.Errorf("invalid file type %d", opt.FileType)
	}
	if err != nil {
		return err
	}
	if opt.MakeLockfile {
		return writeLockfile(path)
	}
	return nil
}

// WriteASM streams the assembled image to w as a single-extension FITS
// file, assembling (trimmed) first if needed.
func WriteASM(w io.Writer, img *detimage.Image, bitpix int) error {
	if !img.Assembled() {
		if err := img.Assemble(detimage.TrimApply); err != nil {
			return err
		}
	}
	cols, rows := img.Size()
	cards := append(geometryCards(img),
		fitsio.Card{Name: "ASSEMBLD", Value: true, Comment: "image assembled from amplifier readouts"},
		fitsio.Card{Name: "TRIMMED", Value: img.Trimmed(), Comment: "prescan/overscan margins removed"},
	)
	return writeImage(w, cards, img.Buffer(), bitpix, []int{cols, rows})
}

// WriteFITS streams a standard single FITS file to w.  An exposure from a
// single-amplifier detector is written verbatim from its raw block; a
// multi-amplifier exposure is assembled (trimmed) first.
func WriteFITS(w io.Writer, img *detimage.Image, bitpix int) error {
	if img.FP.NumAmps() == 1 {
		if !img.Valid() {
			return detimage.ErrNotReady
		}
		cards := geometryCards(img)
		return writeImage(w, cards, img.Raw()[0], bitpix, []int{img.FP.AmpCols, img.FP.AmpRows})
	}
	return WriteASM(w, img, bitpix)
}

// WriteMEF streams a multi-extension FITS file to w, one image extension
// per amplifier, raw blocks verbatim with the geometry keywords the read
// path needs to reassemble them.
func WriteMEF(w io.Writer, img *detimage.Image, bitpix int) error {
	if !img.Valid() {
		return detimage.ErrNotReady
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()

	// data-less primary holds the focal plane layout
	prim := fitsio.NewImage(8, []int{})
	defer prim.Close()
	if err := prim.Header().Append(geometryCards(img)...); err != nil {
		return err
	}
	if err := fits.Write(prim); err != nil {
		return err
	}

	g := img.FP
	// invert ReadoutOrder so each amplifier records its logical position
	position := make([]int, g.NumAmps())
	for logical, amp := range g.ReadoutOrder {
		position[amp] = logical
	}
	for amp := 0; amp < g.NumAmps(); amp++ {
		ext := fitsio.NewImage(bitpix, []int{g.AmpCols, g.AmpRows})
		cards := []fitsio.Card{
			{Name: "EXTNAME", Value: fmt.Sprintf("IM%d", amp+1)},
			{Name: "INHERIT", Value: true, Comment: "extension inherits primary keywords"},
			{Name: "BUNIT", Value: "ADU", Comment: "physical unit of array values"},
			{Name: "AMP-CFG", Value: int(g.FlipCodes[amp]), Comment: "amplifier orientation code"},
			{Name: "JPG-EXT", Value: position[amp] + 1, Comment: "logical position, 1-based"},
			{Name: "PRESCAN1", Value: g.UnderscanCols, Comment: "serial prescan columns"},
			{Name: "OVRSCAN1", Value: g.OverscanCols, Comment: "serial overscan columns"},
			{Name: "PRESCAN2", Value: g.UnderscanRows, Comment: "parallel prescan rows"},
			{Name: "OVRSCAN2", Value: g.OverscanRows, Comment: "parallel overscan rows"},
		}
		cards = append(cards, sampleCards(bitpix)...)
		if err := ext.Header().Append(cards...); err != nil {
			ext.Close()
			return err
		}
		data, err := bufferAs(img.Raw()[amp][:g.AmpPixels()], bitpix)
		if err != nil {
			ext.Close()
			return err
		}
		if err := ext.Write(data); err != nil {
			ext.Close()
			return err
		}
		if err := fits.Write(ext); err != nil {
			ext.Close()
			return err
		}
		ext.Close()
	}
	return nil
}

// WriteBin streams the assembled image as raw little-endian uint16,
// assembling (trimmed) first if needed.
func WriteBin(w io.Writer, img *detimage.Image) error {
	if !img.Assembled() {
		if err := img.Assemble(detimage.TrimApply); err != nil {
			return err
		}
	}
	buf := img.Buffer()
	out := make([]uint16, len(buf))
	for i, v := range buf {
		out[i] = uint16(int64(v))
	}
	return binary.Write(w, binary.LittleEndian, out)
}

// writeImage writes a single image HDU with the given cards and data
func writeImage(w io.Writer, cards []fitsio.Card, buf []float64, bitpix int, dims []int) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(bitpix, dims)
	defer im.Close()
	cards = append(cards, sampleCards(bitpix)...)
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	data, err := bufferAs(buf, bitpix)
	if err != nil {
		return err
	}
	if err := im.Write(data); err != nil {
		return err
	}
	return fits.Write(im)
}

// sampleCards returns the BZERO/BSCALE pair for unsigned 16-bit data, the
// convention every consumer of these files expects
func sampleCards(bitpix int) []fitsio.Card {
	if bitpix == 16 {
		return []fitsio.Card{
			{Name: "BZERO", Value: 32768},
			{Name: "BSCALE", Value: 1.0},
		}
	}
	return nil
}

func geometryCards(img *detimage.Image) []fitsio.Card {
	g := img.FP
	return []fitsio.Card{
		{Name: "NUM-AMPX", Value: g.NumAmpsX, Comment: "amplifiers along serial axis"},
		{Name: "NUM-AMPY", Value: g.NumAmpsY, Comment: "amplifiers along parallel axis"},
		{Name: "NAMPS", Value: g.NumAmps(), Comment: "total amplifier count"},
		{Name: "PRESCAN1", Value: g.UnderscanCols, Comment: "serial prescan columns"},
		{Name: "OVRSCAN1", Value: g.OverscanCols, Comment: "serial overscan columns"},
		{Name: "PRESCAN2", Value: g.UnderscanRows, Comment: "parallel prescan rows"},
		{Name: "OVRSCAN2", Value: g.OverscanRows, Comment: "parallel overscan rows"},
	}
}

// bufferAs converts the float64 compute buffer to the slice type matching
// a FITS BITPIX value.  16-bit output uses the unsigned convention: the
// stored int16 underflows so that BZERO=32768 recovers the physical value.
func bufferAs(buf []float64, bitpix int) (interface{}, error) {
	switch bitpix {
	case 8:
		out := make([]uint8, len(buf))
		for i, v := range buf {
			out[i] = uint8(int64(v))
		}
		return out, nil
	case 16:
		out := make([]int16, len(buf))
		for i, v := range buf {
			out[i] = int16(uint16(int64(v)) - 32768)
		}
		return out, nil
	case 32:
		out := make([]int32, len(buf))
		for i, v := range buf {
			out[i] = int32(int64(v))
		}
		return out, nil
	case 64:
		out := make([]int64, len(buf))
		for i, v := range buf {
			out[i] = int64(v)
		}
		return out, nil
	case -32:
		out := make([]float32, len(buf))
		for i, v := range buf {
			out[i] = float32(v)
		}
		return out, nil
	case -64:
		out := make([]float64, len(buf))
		copy(out, buf)
		return out, nil
	default:
		return nil, fmt.Errorf("invalid sample format %d, must be a FITS BITPIX value", bitpix)
	}
}
