// Package fitsfile is the container codec for detector exposures.  It
// decodes single and multi-extension FITS files into detimage.Image values
// and serializes images back out as single FITS, multi-extension FITS, raw
// binary, or assembled single-extension files.
package fitsfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// File type codes, carried over from the controller software so existing
// client configurations keep working.
const (
	// TypeFITS is a single FITS file: the raw block for one amplifier,
	// or the assembled image for several
	TypeFITS = 0

	// TypeMEF is a multi-extension FITS file, one extension per amplifier
	TypeMEF = 1

	// TypeBin is the assembled image as raw little-endian uint16
	TypeBin = 2

	// TypeASM is the assembled image as a single-extension FITS file
	TypeASM = 6
)

// ErrExists is returned when the output file exists and overwriting was
// not requested
var ErrExists = errors.New("output file exists and overwrite is not set")

// WriteOptions configure the file write path
type WriteOptions struct {
	// FileType is one of TypeFITS, TypeMEF, TypeBin, TypeASM
	FileType int

	// Overwrite allows replacing an existing file
	Overwrite bool

	// TestImage marks throwaway frames; they always overwrite
	TestImage bool

	// MakeLockfile drops a sentinel <name>.OK file after a successful
	// write so downstream pipelines know the image is complete
	MakeLockfile bool

	// SaveDataFormat is the on-disk sample format as a FITS BITPIX value
	// (8, 16, 32, 64, -32, -64).  Zero means use the image's source
	// format.
	SaveDataFormat int
}

// deleteAttempts and deleteBackoff bound the retry loop for removing a
// pre-existing output file; network filesystems intermittently refuse the
// unlink while the previous frame is still being ingested.
const (
	deleteAttempts = 10
	deleteBackoff  = 500 * time.Millisecond
)

func removeExisting(path string) error {
	op := func() error {
		return os.Remove(path)
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(deleteBackoff), deleteAttempts-1)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("deleting previous image file %s: %w", path, err)
	}
	return nil
}

// prepare validates the destination and clears a pre-existing file
func prepare(path string, opt WriteOptions) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("output folder %s does not exist", dir)
		}
	}
	if _, err := os.Stat(path); err == nil {
		if !(opt.Overwrite || opt.TestImage) {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
		if err := removeExisting(path); err != nil {
			return err
		}
	}
	return nil
}

// lockfileName swaps the file extension for .OK
func lockfileName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".OK"
}

func writeLockfile(path string) error {
	f, err := os.Create(lockfileName(path))
	if err != nil {
		return err
	}
	return f.Close()
}
