package wfdb

import (
	"time"
)

// CommonFields holds the record-line descriptors shared by single- and
// multi-segment records. Both Record and MultiRecord embed it; code that
// only needs these fields accepts the HasCommonFields interface instead
// of branching on the concrete type.
type CommonFields struct {
	// Name of the record, without directory or extension.
	Name string

	// NSig is the total number of signal channels.
	NSig int

	// FS is the sampling frequency in Hz, per frame.
	FS float64

	// CounterFreq is the counter frequency, 0 when absent (defaults to FS).
	CounterFreq float64

	// BaseCounter is the counter value at the start of the record.
	BaseCounter float64

	// SigLen is the total number of frames in the record.
	SigLen int

	// BaseTime is the time of day the record started, nil when absent.
	// Only the clock components are meaningful.
	BaseTime *time.Time

	// BaseDate is the date the record started, nil when absent. Only the
	// date components are meaningful.
	BaseDate *time.Time

	// Comments holds the header comment lines, without the '#' marker.
	Comments []string
}

// Common returns the embedded common descriptor fields.
func (c *CommonFields) Common() *CommonFields { return c }

// HasCommonFields is implemented by both Record and MultiRecord.
type HasCommonFields interface {
	Common() *CommonFields
}

// startTime combines BaseDate and BaseTime into one time.Time. The second
// return value reports whether a date is part of the result.
func (c *CommonFields) startTime() (time.Time, bool) {
	var t time.Time
	switch {
	case c.BaseDate != nil && c.BaseTime != nil:
		d, clock := *c.BaseDate, *c.BaseTime
		return time.Date(d.Year(), d.Month(), d.Day(),
			clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(),
			time.UTC), true
	case c.BaseTime != nil:
		return *c.BaseTime, false
	}
	return t, false
}

// shiftStart advances BaseTime/BaseDate by frames/FS seconds, used when a
// read starts partway into the record. Calendar arithmetic is delegated
// to time.Time. A record with only a date keeps it unchanged: the shifted
// clock time is unknowable without a base time.
func (c *CommonFields) shiftStart(frames int) {
	if frames == 0 || c.BaseTime == nil || c.FS <= 0 {
		return
	}
	t, hasDate := c.startTime()
	t = t.Add(time.Duration(float64(frames) / c.FS * float64(time.Second)))
	clock := t
	c.BaseTime = &clock
	if hasDate {
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		c.BaseDate = &d
	}
}

// Record describes a single-segment WFDB record: the header fields plus,
// after a read, the signal data itself.
//
// Per-channel fields are parallel slices of length NSig. Channels that
// share a dat file must occupy consecutive positions (the file
// interleaves their samples frame by frame).
type Record struct {
	CommonFields

	// FileName is the dat file holding each channel.
	FileName []string

	// Fmt is the storage format code of each channel ("16", "212", ...).
	Fmt []string

	// SampsPerFrame is the number of samples each channel contributes to
	// one frame.
	SampsPerFrame []int

	// Skew is the per-channel alignment offset in frames.
	Skew []int

	// ByteOffset is where sample 0 begins within each channel's dat file.
	ByteOffset []int

	// ADCGain is the ADC units per physical unit; strictly positive.
	ADCGain []float64

	// Baseline is the digital value corresponding to physical zero.
	Baseline []int

	// Units is the physical unit string of each channel; no whitespace.
	Units []string

	// ADCRes is the ADC resolution in bits.
	ADCRes []int

	// ADCZero is the digital value produced by a zero-volt input.
	ADCZero []int

	// InitValue is the first sample value of each channel.
	InitValue []int

	// Checksum is the declared 16-bit checksum of each channel.
	Checksum []int

	// BlockSize is the dat file I/O block size, usually 0.
	BlockSize []int

	// SigName is the signal name of each channel.
	SigName []string

	// PSignal is the physical signal matrix, frames x channels. Set by
	// reads in physical mode, or by callers before a write.
	PSignal [][]float64

	// DSignal is the digital signal matrix, frames x channels.
	DSignal [][]int32

	// EPSignal and EDSignal are the expanded (per-channel, one sequence
	// each) representations used when frame smoothing is declined.
	// Channel lengths differ when SampsPerFrame does.
	EPSignal [][]float64
	EDSignal [][]int32

	// Warnings collects non-fatal issues found while reading.
	Warnings []Warning

	// dir is where the record's files live, set when read from disk.
	dir string

	// baselineSet tracks which baselines were explicit in the header,
	// used only between parsing and default resolution.
	baselineSet []bool
}

// Layout states whether every segment of a multi-segment record exposes
// the same channel set.
type Layout int

const (
	// LayoutFixed means all segments share one channel set, in order.
	LayoutFixed Layout = iota
	// LayoutVariable means segments may expose differing channel subsets,
	// reconciled by name against the layout segment's canonical list.
	LayoutVariable
)

func (l Layout) String() string {
	if l == LayoutVariable {
		return "variable"
	}
	return "fixed"
}

// SegmentRef names one segment of a multi-segment record. A null segment
// (written "~" in the header) marks a time span with no recorded data.
type SegmentRef struct {
	// Name of the segment record, "" for a null segment.
	Name string

	// Length of the segment in frames.
	Length int
}

// IsNull reports whether the reference marks a gap with no data.
func (s SegmentRef) IsNull() bool { return s.Name == "" }

// MultiRecord describes a multi-segment WFDB record. Segment signal data
// is not held here; Records carries the loaded child segments after a
// read, and ToSingle assembles them into one Record.
type MultiRecord struct {
	CommonFields

	// Layout is fixed or variable. Variable-layout records carry a
	// zero-length layout segment at index 0 whose channel metadata is the
	// canonical superset.
	Layout Layout

	// Segments is the ordered segment list from the header.
	Segments []SegmentRef

	// Records holds loaded child segments, parallel to Segments. Entries
	// are nil for null segments and for segments not (yet) loaded.
	Records []*Record

	// Warnings collects non-fatal issues found while reading.
	Warnings []Warning

	// dir is where the record's files live, set when read from disk.
	dir string
}

// NSeg returns the number of segments.
func (m *MultiRecord) NSeg() int { return len(m.Segments) }

// SampleInfo carries the descriptor fields most callers of ReadSamples
// want alongside the physical matrix.
type SampleInfo struct {
	FS       float64
	NSig     int
	SigLen   int
	Units    []string
	SigName  []string
	Comments []string
}
