// Package nifti validates that uploaded scan files are well-formed NIfTI
// volumes before a case is admitted. It only inspects the header; voxel data
// is the pipeline's problem.
package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	nifti1HeaderSize = 348
	nifti2HeaderSize = 540

	// dim[0] is the number of dimensions; a volumetric scan needs at least 3.
	minDimensions = 3
	maxDimensions = 7
)

type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// Validate checks the NIfTI header of the file at path, transparently
// handling gzip-compressed volumes (.nii.gz).
func (v *Validator) Validate(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open scan: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	head := make([]byte, 2)
	if _, err := io.ReadFull(f, head); err != nil {
		return fmt.Errorf("not a NIfTI file: too short")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind scan: %w", err)
	}
	if head[0] == 0x1f && head[1] == 0x8b {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("corrupt gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	header := make([]byte, nifti1HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("not a NIfTI file: header truncated")
	}

	dims, err := headerDimensions(header, r)
	if err != nil {
		return err
	}
	if dims < minDimensions || dims > maxDimensions {
		return fmt.Errorf("NIfTI file must be 3D or 4D, got %d dimensions", dims)
	}
	return nil
}

// headerDimensions reads dim[0] out of a NIfTI-1 or NIfTI-2 header, probing
// both byte orders via the sizeof_hdr field.
func headerDimensions(header []byte, r io.Reader) (int, error) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch order.Uint32(header[0:4]) {
		case nifti1HeaderSize:
			// NIfTI-1: dim[0] is an int16 at offset 40.
			return int(int16(order.Uint16(header[40:42]))), nil
		case nifti2HeaderSize:
			// NIfTI-2: the header is longer and dim[0] is an int64 at
			// offset 16; the first 348 bytes are already in hand.
			rest := make([]byte, nifti2HeaderSize-nifti1HeaderSize)
			if _, err := io.ReadFull(r, rest); err != nil {
				return 0, fmt.Errorf("not a NIfTI file: NIfTI-2 header truncated")
			}
			return int(int64(order.Uint64(header[16:24]))), nil
		}
	}
	return 0, fmt.Errorf("not a NIfTI file: unrecognized header")
}
