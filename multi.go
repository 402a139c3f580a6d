package wfdb

import (
	"fmt"
	"math"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/openwfdb/wfdb/internal/codec"
)

// segmentStarts returns the absolute start frame of each segment, plus a
// final entry holding the record length.
func (m *MultiRecord) segmentStarts() []int {
	starts := make([]int, len(m.Segments)+1)
	for i, seg := range m.Segments {
		starts[i+1] = starts[i] + seg.Length
	}
	return starts
}

// requiredSegments resolves the frame range [sampFrom, sampTo) to the
// segments that cover it. It returns the segment indices, in order, and
// the local frame range to read from each. The layout segment of a
// variable-layout record is never part of the result.
func (m *MultiRecord) requiredSegments(sampFrom, sampTo int) ([]int, [][2]int, error) {
	startSeg := 0
	if m.Layout == LayoutVariable {
		startSeg = 1
	}
	cum := make([]int, 0, len(m.Segments)-startSeg)
	total := 0
	for _, seg := range m.Segments[startSeg:] {
		total += seg.Length
		cum = append(cum, total)
	}
	if len(cum) == 0 || sampTo > total {
		return nil, nil, &CohesionError{Record: m.Name,
			Reason: fmt.Sprintf("segments cover %d frames but the read needs %d", total, sampTo)}
	}

	first := startSeg
	for i, c := range cum {
		if sampFrom < c {
			first = startSeg + i
			break
		}
	}
	last := startSeg + len(cum) - 1
	if sampTo != cum[len(cum)-1] {
		for i, c := range cum {
			if sampTo <= c {
				last = startSeg + i
				break
			}
		}
	}

	starts := m.segmentStarts()
	if first == last {
		return []int{first},
			[][2]int{{sampFrom - starts[first], sampTo - starts[first]}}, nil
	}
	var nums []int
	var ranges [][2]int
	for i := first; i <= last; i++ {
		lo, hi := 0, m.Segments[i].Length
		if i == first {
			lo = sampFrom - starts[i]
		}
		if i == last {
			hi = sampTo - starts[i]
		}
		nums = append(nums, i)
		ranges = append(ranges, [2]int{lo, hi})
	}
	return nums, ranges, nil
}

// requiredChannels maps the requested channels into each required
// segment. For fixed layout every segment shares the channel numbering;
// for variable layout the selection is matched by signal name against
// each segment's header. Null segments yield nil.
func (m *MultiRecord) requiredChannels(segNums, channels []int) ([][]int, error) {
	out := make([][]int, len(segNums))
	if m.Layout == LayoutFixed {
		for i := range segNums {
			out[i] = append([]int(nil), channels...)
		}
		return out, nil
	}

	refNames, err := m.SigNames()
	if err != nil {
		return nil, err
	}
	wanted := make([]string, len(channels))
	for i, ch := range channels {
		wanted[i] = refNames[ch]
	}
	for i, segNum := range segNums {
		seg := m.Segments[segNum]
		if seg.IsNull() {
			continue
		}
		child, _, err := ReadHeader(filepath.Join(m.dir, seg.Name))
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", seg.Name, err)
		}
		out[i] = wantedChannels(wanted, child.SigName, false)
	}
	return out, nil
}

// readMulti reads the required segments of a multi-segment record
// concurrently and returns the record narrowed to the requested range
// and channels. Each loaded child Record carries its own samples.
func readMulti(m *MultiRecord, o *readOptions) (*MultiRecord, error) {
	sampTo := o.sampTo
	if sampTo < 0 {
		sampTo = m.SigLen
	}
	refNames, err := m.SigNames()
	if err != nil {
		return nil, err
	}
	channels := resolveChannels(o, refNames, m.NSig)
	if len(channels) == 0 {
		out := &MultiRecord{CommonFields: m.CommonFields, Layout: m.Layout, dir: m.dir}
		out.NSig = 0
		out.SigLen = 0
		if o.warnEmpty {
			out.Warnings = append(out.Warnings, Warning{Stage: "selection",
				Message: "no signals match the selected channels"})
		}
		return out, nil
	}
	if err := checkReadRange(&m.CommonFields, o.sampFrom, sampTo, channels,
		o.physical, o.smoothFrames, o.returnWidth, true); err != nil {
		return nil, err
	}

	segNums, segRanges, err := m.requiredSegments(o.sampFrom, sampTo)
	if err != nil {
		return nil, err
	}
	segChans, err := m.requiredChannels(segNums, channels)
	if err != nil {
		return nil, err
	}

	loaded := make([]*Record, len(segNums))
	var g errgroup.Group
	for i := range segNums {
		seg := m.Segments[segNums[i]]
		if seg.IsNull() || len(segChans[i]) == 0 {
			continue
		}
		i := i
		g.Go(func() error {
			path := filepath.Join(m.dir, seg.Name)
			hdr, _, err := ReadHeader(path)
			if err != nil {
				return fmt.Errorf("segment %s: %w", seg.Name, err)
			}
			if hdr != nil {
				if hdr.FS != m.FS {
					return &CohesionError{Record: m.Name,
						Reason: fmt.Sprintf("segment %s samples at %g Hz, the record at %g Hz",
							seg.Name, hdr.FS, m.FS)}
				}
				// A zero sig_len is inferred from the dat file later.
				if hdr.SigLen != 0 && hdr.SigLen != seg.Length {
					return &CohesionError{Record: m.Name,
						Reason: fmt.Sprintf("segment %s declares %d frames where the record expects %d",
							seg.Name, hdr.SigLen, seg.Length)}
				}
			}
			opts := []ReadOption{
				WithRange(segRanges[i][0], segRanges[i][1]),
				WithChannels(segChans[i]...),
				WithReturnWidth(o.returnWidth),
			}
			if !o.physical {
				opts = append(opts, Digital())
			}
			if o.ignoreSkew {
				opts = append(opts, WithIgnoreSkew())
			}
			if o.strictChecksums {
				opts = append(opts, WithStrictChecksums())
			}
			child, err := ReadRecord(path, opts...)
			if err != nil {
				return fmt.Errorf("segment %s: %w", seg.Name, err)
			}
			loaded[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return m.arrange(segNums, segRanges, channels, loaded, o)
}

// arrange assembles the narrowed MultiRecord from the loaded segments.
func (m *MultiRecord) arrange(segNums []int, segRanges [][2]int,
	channels []int, loaded []*Record, o *readOptions) (*MultiRecord, error) {

	out := &MultiRecord{CommonFields: m.CommonFields, Layout: m.Layout, dir: m.dir}
	out.Comments = append([]string(nil), m.Comments...)

	if m.Layout == LayoutVariable && !o.keepLayout {
		channels = m.presentChannels(channels, loaded)
	}
	out.NSig = len(channels)
	if out.NSig == 0 {
		out.Warnings = append(out.Warnings, Warning{Stage: "selection",
			Message: "no data in the selected range covers the selected channels"})
	}

	if m.Layout == LayoutVariable {
		layout := m.Records[0].selectChannels(channels)
		layout.SigLen = 0
		out.Segments = append(out.Segments, m.Segments[0])
		out.Records = append(out.Records, layout)
	}

	total := 0
	for i, segNum := range segNums {
		length := segRanges[i][1] - segRanges[i][0]
		out.Segments = append(out.Segments, SegmentRef{
			Name:   m.Segments[segNum].Name,
			Length: length,
		})
		out.Records = append(out.Records, loaded[i])
		total += length
	}
	out.SigLen = total
	out.shiftStart(o.sampFrom)
	return out, nil
}

// presentChannels filters the selection down to channels appearing in at
// least one loaded segment, matched by name.
func (m *MultiRecord) presentChannels(channels []int, loaded []*Record) []int {
	present := make(map[string]bool)
	for _, child := range loaded {
		if child == nil {
			continue
		}
		for _, name := range child.SigName {
			present[name] = true
		}
	}
	refNames := m.Records[0].SigName
	var kept []int
	for _, ch := range channels {
		if present[refNames[ch]] {
			kept = append(kept, ch)
		}
	}
	return kept
}

// ToSingle flattens a read multi-segment record into one Record whose
// signal matrix spans the full range, with gaps from null or
// channel-missing segments filled with missing values: NaN for physical
// signals, the format sentinel for digital.
//
// Digital flattening requires fmt, gain, and baseline to agree wherever
// a channel appears; a conflict is a CohesionError. Physical flattening
// tolerates conflicts by dropping the conflicted descriptor field.
func (m *MultiRecord) ToSingle(physical bool) (*Record, error) {
	out := &Record{CommonFields: m.CommonFields, dir: m.dir}
	out.Comments = append([]string(nil), m.Comments...)
	out.Warnings = append(out.Warnings, m.Warnings...)
	if m.NSig == 0 {
		out.SigLen = 0
		return out, nil
	}

	if err := m.reconcileFields(out, physical); err != nil {
		return nil, err
	}
	out.SampsPerFrame = make([]int, out.NSig)
	for i := range out.SampsPerFrame {
		out.SampsPerFrame[i] = 1
	}

	if physical {
		matrix := make([][]float64, m.SigLen)
		for i := range matrix {
			row := make([]float64, out.NSig)
			for j := range row {
				row[j] = math.NaN()
			}
			matrix[i] = row
		}
		m.fillPhysical(matrix, out.SigName)
		out.PSignal = matrix
		return out, nil
	}

	nans := make([]int32, out.NSig)
	for i := range nans {
		nans[i] = codec.NaNValue(out.Fmt[i])
	}
	matrix := make([][]int32, m.SigLen)
	for i := range matrix {
		row := make([]int32, out.NSig)
		copy(row, nans)
		matrix[i] = row
	}
	m.fillDigital(matrix, out.SigName)
	out.DSignal = matrix

	if len(matrix) > 0 {
		sums := out.CalcChecksum(false)
		out.InitValue = make([]int, out.NSig)
		out.Checksum = make([]int, out.NSig)
		for i := 0; i < out.NSig; i++ {
			out.InitValue[i] = int(matrix[0][i])
			out.Checksum[i] = sums[i]
		}
	}
	return out, nil
}

// reconcileFields derives the flattened record's per-channel descriptor
// fields from the loaded segments.
//
// The layout header of a variable-layout record is authoritative for
// signal names only; its calibration is usually a placeholder. Each
// channel's fmt, gain, baseline, and units come from the first read
// segment that exposes it, and later appearances must agree: a
// disagreement is a CohesionError for digital flattening, while physical
// flattening drops the conflicted field instead.
func (m *MultiRecord) reconcileFields(out *Record, physical bool) error {
	var base *Record
	if m.Layout == LayoutVariable {
		base = m.Records[0]
	} else {
		for _, rec := range m.Records {
			if rec != nil {
				base = rec
				break
			}
		}
	}
	if base == nil {
		return &CohesionError{Record: m.Name, Reason: "no segment data to flatten"}
	}
	out.NSig = m.NSig
	out.SigName = append([]string(nil), base.SigName...)

	if m.Layout == LayoutFixed {
		out.Fmt = append([]string(nil), base.Fmt...)
		out.ADCGain = append([]float64(nil), base.ADCGain...)
		out.Baseline = append([]int(nil), base.Baseline...)
		out.Units = append([]string(nil), base.Units...)
		return nil
	}

	fmts := make([]string, m.NSig)
	gains := make([]float64, m.NSig)
	baselines := make([]int, m.NSig)
	units := make([]string, m.NSig)
	seen := make([]bool, m.NSig)
	var dropFmt, dropGain, dropBaseline, dropUnits bool
	for _, child := range m.Records[1:] {
		if child == nil {
			continue
		}
		for j, name := range child.SigName {
			g := indexOf(out.SigName, name)
			if g < 0 {
				continue
			}
			if !seen[g] {
				seen[g] = true
				fmts[g] = child.Fmt[j]
				gains[g] = child.ADCGain[j]
				baselines[g] = child.Baseline[j]
				units[g] = child.Units[j]
				continue
			}
			fmtMismatch := child.Fmt[j] != fmts[g]
			gainMismatch := child.ADCGain[j] != gains[g]
			baseMismatch := child.Baseline[j] != baselines[g]
			unitMismatch := child.Units[j] != units[g]
			if !physical && (fmtMismatch || gainMismatch || baseMismatch || unitMismatch) {
				return &CohesionError{Record: m.Name,
					Reason: fmt.Sprintf("channel %q changes digital encoding across segments", name)}
			}
			dropFmt = dropFmt || fmtMismatch
			dropGain = dropGain || gainMismatch
			dropBaseline = dropBaseline || baseMismatch
			dropUnits = dropUnits || unitMismatch
		}
	}
	// Channels absent from every read segment keep the layout values so
	// the flattened record still describes them.
	for g := range seen {
		if !seen[g] {
			fmts[g] = base.Fmt[g]
			gains[g] = base.ADCGain[g]
			baselines[g] = base.Baseline[g]
			units[g] = base.Units[g]
		}
	}
	out.Fmt, out.ADCGain, out.Baseline, out.Units = fmts, gains, baselines, units
	if dropFmt {
		out.Fmt = nil
	}
	if dropGain {
		out.ADCGain = nil
	}
	if dropBaseline {
		out.Baseline = nil
	}
	if dropUnits {
		out.Units = nil
	}
	return nil
}

// fillPhysical copies each loaded segment's physical samples into the
// flattened matrix. Rows not covered stay NaN.
func (m *MultiRecord) fillPhysical(matrix [][]float64, names []string) {
	rowStart := 0
	for i, seg := range m.Segments {
		rec := m.Records[i]
		if rec == nil || rec.PSignal == nil {
			rowStart += seg.Length
			continue
		}
		cols := m.columnMap(rec, names)
		for r, row := range rec.PSignal {
			for j, g := range cols {
				if g >= 0 {
					matrix[rowStart+r][g] = row[j]
				}
			}
		}
		rowStart += seg.Length
	}
}

// fillDigital copies each loaded segment's digital samples into the
// flattened matrix. Rows not covered keep their missing-value sentinel.
func (m *MultiRecord) fillDigital(matrix [][]int32, names []string) {
	rowStart := 0
	for i, seg := range m.Segments {
		rec := m.Records[i]
		if rec == nil || rec.DSignal == nil {
			rowStart += seg.Length
			continue
		}
		cols := m.columnMap(rec, names)
		for r, row := range rec.DSignal {
			for j, g := range cols {
				if g >= 0 {
					matrix[rowStart+r][g] = row[j]
				}
			}
		}
		rowStart += seg.Length
	}
}

// columnMap maps a segment's columns to the flattened matrix columns.
// Fixed-layout segments line up positionally; variable-layout segments
// match by signal name, -1 marking columns with no destination.
func (m *MultiRecord) columnMap(rec *Record, names []string) []int {
	cols := make([]int, rec.NSig)
	if m.Layout == LayoutFixed {
		for j := range cols {
			cols[j] = j
		}
		return cols
	}
	for j, name := range rec.SigName {
		cols[j] = indexOf(names, name)
	}
	return cols
}

func indexOf(list []string, want string) int {
	for i, s := range list {
		if s == want {
			return i
		}
	}
	return -1
}
