package wfdb

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredSegmentsFixed(t *testing.T) {
	m := &MultiRecord{
		CommonFields: CommonFields{SigLen: 10},
		Layout:       LayoutFixed,
		Segments:     []SegmentRef{{Name: "a", Length: 4}, {Name: "b", Length: 6}},
	}

	nums, ranges, err := m.requiredSegments(2, 8)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, nums)
	assert.Equal(t, [][2]int{{2, 4}, {0, 4}}, ranges)

	// A range ending exactly at the record end covers the last segment.
	nums, ranges, err = m.requiredSegments(2, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, nums)
	assert.Equal(t, [][2]int{{2, 4}, {0, 6}}, ranges)

	nums, ranges, err = m.requiredSegments(5, 7)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, nums)
	assert.Equal(t, [][2]int{{1, 3}}, ranges)

	nums, ranges, err = m.requiredSegments(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, nums)
	assert.Equal(t, [][2]int{{0, 4}}, ranges)
}

func TestRequiredSegmentsVariable(t *testing.T) {
	m := &MultiRecord{
		CommonFields: CommonFields{SigLen: 10},
		Layout:       LayoutVariable,
		Segments: []SegmentRef{
			{Name: "lay", Length: 0},
			{Name: "a", Length: 4},
			{Name: "b", Length: 6},
		},
	}
	nums, ranges, err := m.requiredSegments(2, 8)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, nums)
	assert.Equal(t, [][2]int{{2, 4}, {0, 4}}, ranges)
}

func TestRequiredSegmentsUncovered(t *testing.T) {
	// A record line may declare frames no segment provides; resolving a
	// range into them must fail, not crash.
	m := &MultiRecord{
		CommonFields: CommonFields{Name: "hollow", SigLen: 5},
		Layout:       LayoutVariable,
		Segments:     []SegmentRef{{Name: "lay", Length: 0}},
	}
	_, _, err := m.requiredSegments(0, 5)
	var cerr *CohesionError
	require.ErrorAs(t, err, &cerr)

	m.Segments = append(m.Segments, SegmentRef{Name: "a", Length: 3})
	_, _, err = m.requiredSegments(0, 5)
	require.ErrorAs(t, err, &cerr)
}

func writeFixedMulti(t *testing.T, dir string) {
	t.Helper()
	s1 := &Record{
		CommonFields: CommonFields{Name: "m_s1", FS: 360},
		Fmt:          []string{"16", "16"},
		ADCGain:      []float64{200, 200},
		Baseline:     []int{0, 0},
		SigName:      []string{"I", "II"},
		DSignal:      [][]int32{{1, 10}, {2, 20}, {3, 30}, {4, 40}},
	}
	require.NoError(t, s1.Write(dir))
	s2 := &Record{
		CommonFields: CommonFields{Name: "m_s2", FS: 360},
		Fmt:          []string{"16", "16"},
		ADCGain:      []float64{200, 200},
		Baseline:     []int{0, 0},
		SigName:      []string{"I", "II"},
		DSignal:      [][]int32{{5, 50}, {6, 60}},
	}
	require.NoError(t, s2.Write(dir))

	m := &MultiRecord{
		CommonFields: CommonFields{Name: "mfix", NSig: 2, FS: 360, SigLen: 6},
		Layout:       LayoutFixed,
		Segments:     []SegmentRef{{Name: "m_s1", Length: 4}, {Name: "m_s2", Length: 2}},
	}
	require.NoError(t, m.WriteHeader(dir))
}

func TestReadRecordFlattensFixedMulti(t *testing.T) {
	dir := t.TempDir()
	writeFixedMulti(t, dir)

	read, err := ReadRecord(filepath.Join(dir, "mfix"), Digital())
	require.NoError(t, err)

	assert.Equal(t, 6, read.SigLen)
	assert.Equal(t, []string{"I", "II"}, read.SigName)
	assert.Equal(t, [][]int32{
		{1, 10}, {2, 20}, {3, 30}, {4, 40}, {5, 50}, {6, 60},
	}, read.DSignal)
	assert.Equal(t, []int{1, 10}, read.InitValue)
}

func TestReadRecordMultiRange(t *testing.T) {
	dir := t.TempDir()
	writeFixedMulti(t, dir)

	read, err := ReadRecord(filepath.Join(dir, "mfix"), Digital(), WithRange(3, 5))
	require.NoError(t, err)
	assert.Equal(t, [][]int32{{4, 40}, {5, 50}}, read.DSignal)
}

func TestReadMultiRecordKeepsSegments(t *testing.T) {
	dir := t.TempDir()
	writeFixedMulti(t, dir)

	m, err := ReadMultiRecord(filepath.Join(dir, "mfix"), Digital(), WithRange(3, 5))
	require.NoError(t, err)

	assert.Equal(t, 2, m.SigLen)
	require.Len(t, m.Segments, 2)
	assert.Equal(t, 1, m.Segments[0].Length)
	assert.Equal(t, 1, m.Segments[1].Length)
	require.NotNil(t, m.Records[0])
	assert.Equal(t, [][]int32{{4, 40}}, m.Records[0].DSignal)
	assert.Equal(t, [][]int32{{5, 50}}, m.Records[1].DSignal)
}

func TestReadMultiRecordRejectsSingle(t *testing.T) {
	dir := t.TempDir()
	rec := &Record{
		CommonFields: CommonFields{Name: "single", FS: 100},
		Fmt:          []string{"16"},
		ADCGain:      []float64{100},
		Baseline:     []int{0},
		DSignal:      [][]int32{{1}},
	}
	require.NoError(t, rec.Write(dir))

	_, err := ReadMultiRecord(filepath.Join(dir, "single"))
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
}

func TestMultiRejectsUnsmoothedRead(t *testing.T) {
	dir := t.TempDir()
	writeFixedMulti(t, dir)

	_, err := ReadRecord(filepath.Join(dir, "mfix"), Digital(), WithoutSmoothing())
	var derr *DomainError
	require.ErrorAs(t, err, &derr)
}

func TestNullSegmentFillsMissing(t *testing.T) {
	dir := t.TempDir()
	writeFixedMulti(t, dir)
	m := &MultiRecord{
		CommonFields: CommonFields{Name: "mnull", NSig: 2, FS: 360, SigLen: 8},
		Layout:       LayoutFixed,
		Segments: []SegmentRef{
			{Name: "m_s1", Length: 4},
			{Name: "", Length: 2},
			{Name: "m_s2", Length: 2},
		},
	}
	require.NoError(t, m.WriteHeader(dir))

	read, err := ReadRecord(filepath.Join(dir, "mnull"), Digital())
	require.NoError(t, err)
	assert.Equal(t, [][]int32{
		{1, 10}, {2, 20}, {3, 30}, {4, 40},
		{-32768, -32768}, {-32768, -32768},
		{5, 50}, {6, 60},
	}, read.DSignal)

	phys, err := ReadRecord(filepath.Join(dir, "mnull"))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(phys.PSignal[4][0]))
	assert.InDelta(t, 0.005, phys.PSignal[0][0], 1e-9)
}

func writeVariableMulti(t *testing.T, dir string) {
	t.Helper()
	layout := &Record{
		CommonFields:  CommonFields{Name: "mv_layout", NSig: 2, FS: 360, SigLen: 0},
		FileName:      []string{"~", "~"},
		Fmt:           []string{"16", "16"},
		SampsPerFrame: []int{1, 1},
		Skew:          []int{0, 0},
		ByteOffset:    []int{0, 0},
		ADCGain:       []float64{200, 200},
		Baseline:      []int{0, 0},
		Units:         []string{"mV", "mV"},
		ADCRes:        []int{16, 16},
		ADCZero:       []int{0, 0},
		InitValue:     []int{0, 0},
		Checksum:      []int{0, 0},
		BlockSize:     []int{0, 0},
		SigName:       []string{"I", "II"},
	}
	require.NoError(t, layout.WriteHeader(dir))

	s1 := &Record{
		CommonFields: CommonFields{Name: "mv_s1", FS: 360},
		Fmt:          []string{"16"},
		ADCGain:      []float64{200},
		Baseline:     []int{0},
		SigName:      []string{"II"},
		DSignal:      [][]int32{{100}, {101}, {102}},
	}
	require.NoError(t, s1.Write(dir))

	s2 := &Record{
		CommonFields: CommonFields{Name: "mv_s2", FS: 360},
		Fmt:          []string{"16", "16"},
		ADCGain:      []float64{200, 200},
		Baseline:     []int{0, 0},
		SigName:      []string{"I", "II"},
		DSignal:      [][]int32{{7, 103}, {8, 104}, {9, 105}},
	}
	require.NoError(t, s2.Write(dir))

	m := &MultiRecord{
		CommonFields: CommonFields{Name: "mvar", NSig: 2, FS: 360, SigLen: 6},
		Layout:       LayoutVariable,
		Segments: []SegmentRef{
			{Name: "mv_layout", Length: 0},
			{Name: "mv_s1", Length: 3},
			{Name: "mv_s2", Length: 3},
		},
	}
	require.NoError(t, m.WriteHeader(dir))
}

func TestVariableLayoutFlatten(t *testing.T) {
	dir := t.TempDir()
	writeVariableMulti(t, dir)

	read, err := ReadRecord(filepath.Join(dir, "mvar"), Digital())
	require.NoError(t, err)

	assert.Equal(t, []string{"I", "II"}, read.SigName)
	assert.Equal(t, [][]int32{
		{-32768, 100}, {-32768, 101}, {-32768, 102},
		{7, 103}, {8, 104}, {9, 105},
	}, read.DSignal)

	phys, err := ReadRecord(filepath.Join(dir, "mvar"))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(phys.PSignal[0][0]))
	assert.InDelta(t, 0.5, phys.PSignal[0][1], 1e-9)
	assert.InDelta(t, 0.035, phys.PSignal[3][0], 1e-9)
}

func TestVariableLayoutChannelSelection(t *testing.T) {
	dir := t.TempDir()
	writeVariableMulti(t, dir)
	path := filepath.Join(dir, "mvar")

	read, err := ReadRecord(path, Digital(), WithChannelNames("I"))
	require.NoError(t, err)
	assert.Equal(t, 1, read.NSig)
	assert.Equal(t, [][]int32{
		{-32768}, {-32768}, {-32768}, {7}, {8}, {9},
	}, read.DSignal)

	// Restricted to the first segment, channel I never appears; dropping
	// layout channels leaves nothing.
	m, err := ReadMultiRecord(path, Digital(), WithRange(0, 3),
		WithChannelNames("I"), KeepLayoutChannels(false))
	require.NoError(t, err)
	assert.Equal(t, 0, m.NSig)
	assert.NotEmpty(t, m.Warnings)
}

func TestVariableLayoutCohesion(t *testing.T) {
	dir := t.TempDir()
	writeVariableMulti(t, dir)

	// A segment that re-records channel II at a different gain.
	s3 := &Record{
		CommonFields: CommonFields{Name: "mv_s3", FS: 360},
		Fmt:          []string{"16"},
		ADCGain:      []float64{100},
		Baseline:     []int{0},
		SigName:      []string{"II"},
		DSignal:      [][]int32{{1}, {2}},
	}
	require.NoError(t, s3.Write(dir))
	m := &MultiRecord{
		CommonFields: CommonFields{Name: "mmix", NSig: 2, FS: 360, SigLen: 5},
		Layout:       LayoutVariable,
		Segments: []SegmentRef{
			{Name: "mv_layout", Length: 0},
			{Name: "mv_s1", Length: 3},
			{Name: "mv_s3", Length: 2},
		},
	}
	require.NoError(t, m.WriteHeader(dir))
	path := filepath.Join(dir, "mmix")

	// Digital samples from differing encodings cannot share a column.
	_, err := ReadRecord(path, Digital())
	var cerr *CohesionError
	require.ErrorAs(t, err, &cerr)

	// Physical values can; the conflicted gain is dropped instead.
	read, err := ReadRecord(path)
	require.NoError(t, err)
	assert.Nil(t, read.ADCGain)
	assert.InDelta(t, 0.5, read.PSignal[0][1], 1e-9)
	assert.InDelta(t, 0.01, read.PSignal[3][1], 1e-9)
}

func TestVariableLayoutPlaceholderCalibration(t *testing.T) {
	dir := t.TempDir()
	writeVariableMulti(t, dir)

	// A layout header whose calibration matches no segment; it is
	// authoritative for names only, so flattening must still succeed
	// with the calibration the segments agree on.
	layout := &Record{
		CommonFields:  CommonFields{Name: "ph_layout", NSig: 2, FS: 360, SigLen: 0},
		FileName:      []string{"~", "~"},
		Fmt:           []string{"16", "16"},
		SampsPerFrame: []int{1, 1},
		Skew:          []int{0, 0},
		ByteOffset:    []int{0, 0},
		ADCGain:       []float64{1, 1},
		Baseline:      []int{0, 0},
		Units:         []string{"mV", "mV"},
		ADCRes:        []int{16, 16},
		ADCZero:       []int{0, 0},
		InitValue:     []int{0, 0},
		Checksum:      []int{0, 0},
		BlockSize:     []int{0, 0},
		SigName:       []string{"I", "II"},
	}
	require.NoError(t, layout.WriteHeader(dir))
	m := &MultiRecord{
		CommonFields: CommonFields{Name: "mtrust", NSig: 2, FS: 360, SigLen: 6},
		Layout:       LayoutVariable,
		Segments: []SegmentRef{
			{Name: "ph_layout", Length: 0},
			{Name: "mv_s1", Length: 3},
			{Name: "mv_s2", Length: 3},
		},
	}
	require.NoError(t, m.WriteHeader(dir))

	read, err := ReadRecord(filepath.Join(dir, "mtrust"), Digital())
	require.NoError(t, err)
	assert.Equal(t, []float64{200, 200}, read.ADCGain)
	assert.Equal(t, []int{0, 0}, read.Baseline)
	assert.Equal(t, [][]int32{
		{-32768, 100}, {-32768, 101}, {-32768, 102},
		{7, 103}, {8, 104}, {9, 105},
	}, read.DSignal)
}

func TestMultiUncoveredLengthRead(t *testing.T) {
	dir := t.TempDir()
	writeVariableMulti(t, dir)

	// The record line promises 5 frames but the only segment is the
	// layout pseudo-segment.
	header := "mvoid/1 2 360 5\nmv_layout 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mvoid.hea"), []byte(header), 0o644))

	_, err := ReadRecord(filepath.Join(dir, "mvoid"), Digital())
	var cerr *CohesionError
	require.ErrorAs(t, err, &cerr)
}

func TestSegmentLengthCohesion(t *testing.T) {
	dir := t.TempDir()
	writeFixedMulti(t, dir)

	// m_s2 holds 2 frames; a parent claiming 3 must fail coherently.
	m := &MultiRecord{
		CommonFields: CommonFields{Name: "mlong", NSig: 2, FS: 360, SigLen: 7},
		Layout:       LayoutFixed,
		Segments:     []SegmentRef{{Name: "m_s1", Length: 4}, {Name: "m_s2", Length: 3}},
	}
	require.NoError(t, m.WriteHeader(dir))

	_, err := ReadRecord(filepath.Join(dir, "mlong"), Digital())
	var cerr *CohesionError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Error(), "m_s2")
}

func TestMultiReturnWidthEnforced(t *testing.T) {
	dir := t.TempDir()
	s1 := &Record{
		CommonFields: CommonFields{Name: "wide_s1", FS: 360},
		Fmt:          []string{"16"},
		ADCGain:      []float64{200},
		Baseline:     []int{0},
		SigName:      []string{"I"},
		DSignal:      [][]int32{{300}, {-301}},
	}
	require.NoError(t, s1.Write(dir))
	m := &MultiRecord{
		CommonFields: CommonFields{Name: "mwide", NSig: 1, FS: 360, SigLen: 2},
		Layout:       LayoutFixed,
		Segments:     []SegmentRef{{Name: "wide_s1", Length: 2}},
	}
	require.NoError(t, m.WriteHeader(dir))
	path := filepath.Join(dir, "mwide")

	_, err := ReadMultiRecord(path, Digital(), WithReturnWidth(8))
	var derr *DomainError
	require.ErrorAs(t, err, &derr)

	kept, err := ReadMultiRecord(path, Digital(), WithReturnWidth(16))
	require.NoError(t, err)
	require.NotNil(t, kept.Records[0])
	assert.Equal(t, [][]int32{{300}, {-301}}, kept.Records[0].DSignal)
}
