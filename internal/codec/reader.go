package codec

import (
	"fmt"
	"io"
)

// DatReader wraps an io.ReaderAt with bounds checking and error messages
// that name what was being read.
type DatReader struct {
	r    io.ReaderAt
	path string
	size int64
}

// NewDatReader creates a DatReader over a dat file of known size.
func NewDatReader(r io.ReaderAt, size int64, path string) *DatReader {
	return &DatReader{r: r, size: size, path: path}
}

// Path returns the file path associated with this reader.
func (dr *DatReader) Path() string {
	return dr.path
}

// Size returns the on-disk size of the dat file.
func (dr *DatReader) Size() int64 {
	return dr.size
}

// ReadAt reads bytes at the given offset with context for error messages.
func (dr *DatReader) ReadAt(b []byte, off int64, what string) error {
	if off < 0 || off >= dr.size {
		return fmt.Errorf("%s: offset %d out of bounds (file size: %d) while reading %s",
			dr.path, off, dr.size, what)
	}
	if off+int64(len(b)) > dr.size {
		return fmt.Errorf("%s: read of %d bytes at offset %d would exceed file size %d while reading %s",
			dr.path, len(b), off, dr.size, what)
	}

	n, err := dr.r.ReadAt(b, off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%s: failed to read %s at offset %d: %w", dr.path, what, off, err)
	}
	if n < len(b) {
		return fmt.Errorf("%s: short read for %s at offset %d: got %d bytes, expected %d",
			dr.path, what, off, n, len(b))
	}
	return nil
}

// ReadRange decodes count samples starting at absolute sample index start
// within the dat stream that begins byteOffset bytes into the file.
//
// For sub-byte formats the read is widened to packing-group boundaries and
// the lead samples discarded, since no individual sample in those formats
// lies on a byte boundary. Only the required byte span is fetched.
func ReadRange(code string, dr *DatReader, byteOffset int64, start, count int) ([]int32, error) {
	s, ok := specs[code]
	if !ok {
		return nil, fmt.Errorf("unknown dat format %q", code)
	}
	if count == 0 {
		return nil, nil
	}

	lead := start % s.GroupSamples
	aligned := start - lead
	total := lead + count

	need, err := SampleBytes(code, total)
	if err != nil {
		return nil, err
	}
	off := byteOffset + int64(aligned/s.GroupSamples)*int64(s.GroupBytes)
	if off+int64(need) > dr.size {
		return nil, fmt.Errorf("%s: dat file too short for %d samples of format %s at offset %d",
			dr.path, count, code, off)
	}

	buf := make([]byte, need)
	if err := dr.ReadAt(buf, off, fmt.Sprintf("format %s samples", code)); err != nil {
		return nil, err
	}

	all := make([]int32, total)
	if err := Decode(code, buf, all); err != nil {
		return nil, err
	}
	return all[lead:], nil
}
