// Package codec converts between packed WFDB dat-file bytes and digital
// sample values. Each storage format is identified by its header code
// ("16", "212", ...) and described by a Spec giving its packing geometry
// and representable range.
package codec

import "fmt"

// Spec describes the packing geometry of one dat storage format.
//
// Samples are packed in fixed-size groups: GroupBytes bytes hold
// GroupSamples samples. For byte- and word-aligned formats the group is a
// single sample; for the sub-byte formats ("212", "310", "311") a group
// must be reconstructed whole before any sample in it can be isolated.
type Spec struct {
	Code         string
	GroupBytes   int
	GroupSamples int
	Bits         int   // significant bits per sample
	Min          int32 // smallest representable digital value
	Max          int32 // largest representable digital value
	NaN          int32 // missing-value sentinel
}

var specs = map[string]Spec{
	"80":  {Code: "80", GroupBytes: 1, GroupSamples: 1, Bits: 8, Min: -127, Max: 127, NaN: -128},
	"16":  {Code: "16", GroupBytes: 2, GroupSamples: 1, Bits: 16, Min: -32767, Max: 32767, NaN: -32768},
	"61":  {Code: "61", GroupBytes: 2, GroupSamples: 1, Bits: 16, Min: -32767, Max: 32767, NaN: -32768},
	"160": {Code: "160", GroupBytes: 2, GroupSamples: 1, Bits: 16, Min: -32767, Max: 32767, NaN: -32768},
	"212": {Code: "212", GroupBytes: 3, GroupSamples: 2, Bits: 12, Min: -2047, Max: 2047, NaN: -2048},
	"310": {Code: "310", GroupBytes: 4, GroupSamples: 3, Bits: 10, Min: -511, Max: 511, NaN: -512},
	"311": {Code: "311", GroupBytes: 4, GroupSamples: 3, Bits: 10, Min: -511, Max: 511, NaN: -512},
	"24":  {Code: "24", GroupBytes: 3, GroupSamples: 1, Bits: 24, Min: -8388607, Max: 8388607, NaN: -8388608},
	"32":  {Code: "32", GroupBytes: 4, GroupSamples: 1, Bits: 32, Min: -2147483647, Max: 2147483647, NaN: -2147483648},
}

// Supported reports whether code names a dat format this package can
// decode and encode.
func Supported(code string) bool {
	_, ok := specs[code]
	return ok
}

// Describe returns the Spec for a format code.
func Describe(code string) (Spec, error) {
	s, ok := specs[code]
	if !ok {
		return Spec{}, fmt.Errorf("unknown dat format %q", code)
	}
	return s, nil
}

// NaNValue returns the missing-value sentinel for a format code. It
// panics on unknown codes; callers validate the code first.
func NaNValue(code string) int32 {
	s, ok := specs[code]
	if !ok {
		panic(fmt.Sprintf("codec: unknown dat format %q", code))
	}
	return s.NaN
}

// partialBytes[code][k] is the number of bytes a trailing group needs to
// hold its first k samples. Only the sub-byte formats have entries; the
// aligned formats never have partial groups. Note that "310" sample 1
// lives entirely in the second byte pair, so two samples need four bytes.
var partialBytes = map[string][]int{
	"212": {0, 2},
	"310": {0, 2, 4},
	"311": {0, 2, 3},
}

// SampleBytes returns the number of bytes needed to store n samples in
// the given format (e.g. one lone "212" sample occupies 2 bytes).
func SampleBytes(code string, n int) (int, error) {
	s, ok := specs[code]
	if !ok {
		return 0, fmt.Errorf("unknown dat format %q", code)
	}
	groups := n / s.GroupSamples
	rem := n % s.GroupSamples
	b := groups * s.GroupBytes
	if rem > 0 {
		b += partialBytes[code][rem]
	}
	return b, nil
}

// SamplesInBytes returns how many whole samples fit in size bytes of the
// given format. Used to infer a record's signal length from a dat file's
// on-disk size.
func SamplesInBytes(code string, size int64) (int, error) {
	s, ok := specs[code]
	if !ok {
		return 0, fmt.Errorf("unknown dat format %q", code)
	}
	n := int(size/int64(s.GroupBytes)) * s.GroupSamples
	rem := int(size % int64(s.GroupBytes))
	for k := s.GroupSamples - 1; k > 0; k-- {
		if rem >= partialBytes[code][k] {
			n += k
			break
		}
	}
	return n, nil
}
