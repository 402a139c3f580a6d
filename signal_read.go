package wfdb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openwfdb/wfdb/internal/codec"
)

// ReadRecord reads a record's header and signal data. path names the
// record without the .hea extension; options narrow the range and
// channel selection and control the sample representation.
//
// Multi-segment records are resolved and flattened into a single Record.
// Use ReadMultiRecord to keep the segment structure.
func ReadRecord(path string, opts ...ReadOption) (*Record, error) {
	o := defaultReadOptions()
	for _, opt := range opts {
		opt(o)
	}
	return readWith(path, o)
}

// ReadSamples reads the physical signal matrix of a record along with
// the descriptor fields most callers need. Frames are always smoothed
// and values converted to physical units; Digital and WithoutSmoothing
// are ignored here.
func ReadSamples(path string, opts ...ReadOption) ([][]float64, *SampleInfo, error) {
	o := defaultReadOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.physical = true
	o.smoothFrames = true
	rec, err := readWith(path, o)
	if err != nil {
		return nil, nil, err
	}
	info := &SampleInfo{
		FS:       rec.FS,
		NSig:     rec.NSig,
		SigLen:   rec.SigLen,
		Units:    rec.Units,
		SigName:  rec.SigName,
		Comments: rec.Comments,
	}
	return rec.PSignal, info, nil
}

// ReadMultiRecord reads a multi-segment record, keeping its segment
// structure: the returned MultiRecord holds each required segment as a
// loaded child Record. Reading a single-segment record this way is an
// error.
func ReadMultiRecord(path string, opts ...ReadOption) (*MultiRecord, error) {
	o := defaultReadOptions()
	for _, opt := range opts {
		opt(o)
	}
	_, multi, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	if multi == nil {
		return nil, &FormatError{Path: path + ".hea",
			Reason: "not a multi-segment record"}
	}
	return readMulti(multi, o)
}

func readWith(path string, o *readOptions) (*Record, error) {
	rec, multi, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	if multi == nil {
		return readSingle(rec, o)
	}

	m, err := readMulti(multi, o)
	if err != nil {
		return nil, err
	}
	single, err := m.ToSingle(o.physical)
	if err != nil {
		return nil, err
	}
	if err := single.checkWidthFit(o.returnWidth, o.physical); err != nil {
		return nil, err
	}
	return single, nil
}

func readSingle(r *Record, o *readOptions) (*Record, error) {
	if r.SigLen == 0 && r.NSig > 0 {
		if err := r.inferSigLen(); err != nil {
			return nil, err
		}
	}
	sampTo := o.sampTo
	if sampTo < 0 {
		sampTo = r.SigLen
	}
	channels := resolveChannels(o, r.SigName, r.NSig)
	if len(channels) == 0 {
		out := &Record{CommonFields: r.CommonFields, dir: r.dir}
		out.NSig = 0
		out.SigLen = 0
		if o.warnEmpty {
			out.Warnings = append(out.Warnings, Warning{Stage: "selection",
				Message: "no signals match the selected channels"})
		}
		return out, nil
	}
	if err := checkReadRange(&r.CommonFields, o.sampFrom, sampTo, channels,
		o.physical, o.smoothFrames, o.returnWidth, false); err != nil {
		return nil, err
	}

	keepExpanded := false
	if !o.smoothFrames {
		for _, ch := range channels {
			if r.SampsPerFrame[ch] > 1 {
				keepExpanded = true
				break
			}
		}
	}

	expanded, rawSums, err := r.readSignal(o.sampFrom, sampTo, channels, o.ignoreSkew)
	if err != nil {
		return nil, err
	}
	out, err := r.narrow(channels, o.sampFrom, sampTo, expanded, rawSums, keepExpanded, o.strictChecksums)
	if err != nil {
		return nil, err
	}
	if o.physical {
		if err := out.Dac(keepExpanded); err != nil {
			return nil, err
		}
	}
	if err := out.checkWidthFit(o.returnWidth, o.physical); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveChannels turns the option selection into concrete channel
// indices. Names take precedence over indices; with neither given, all
// channels are selected.
func resolveChannels(o *readOptions, sigNames []string, nSig int) []int {
	if o.channelNames != nil {
		return wantedChannels(o.channelNames, sigNames, false)
	}
	if o.channels != nil {
		return append([]int(nil), o.channels...)
	}
	all := make([]int, nSig)
	for i := range all {
		all[i] = i
	}
	return all
}

// wantedChannels maps each wanted signal name to its index in available.
// With pad set, missing names yield -1 entries; otherwise they are
// skipped.
func wantedChannels(wanted, available []string, pad bool) []int {
	index := make(map[string]int, len(available))
	for i, name := range available {
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}
	var out []int
	if pad {
		out = make([]int, 0, len(wanted))
	}
	for _, name := range wanted {
		if i, ok := index[name]; ok {
			out = append(out, i)
		} else if pad {
			out = append(out, -1)
		}
	}
	return out
}

// inferSigLen fills in a zero sig_len from the size of the first dat
// file, the way a header with an unspecified length is resolved.
func (r *Record) inferSigLen() error {
	groups := r.datGroups()
	if len(groups) == 0 {
		return &MissingFieldError{Field: FieldSigLen.String()}
	}
	g := groups[0]
	path := filepath.Join(r.dir, g.fileName)
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("infer sig_len: %w", err)
	}
	n, err := codec.SamplesInBytes(g.fmtCode, stat.Size()-int64(g.byteOffset))
	if err != nil {
		return &FormatError{Path: path, Reason: err.Error()}
	}
	r.SigLen = n / g.tspf
	return nil
}

// selectChannels copies the record descriptor restricted to the given
// channels, in the given order. Signal data is not carried over.
func (r *Record) selectChannels(channels []int) *Record {
	out := &Record{CommonFields: r.CommonFields, dir: r.dir}
	out.Comments = append([]string(nil), r.Comments...)
	out.NSig = len(channels)

	out.FileName = make([]string, len(channels))
	out.Fmt = make([]string, len(channels))
	out.SampsPerFrame = make([]int, len(channels))
	out.Skew = make([]int, len(channels))
	out.ByteOffset = make([]int, len(channels))
	out.ADCGain = make([]float64, len(channels))
	out.Baseline = make([]int, len(channels))
	out.Units = make([]string, len(channels))
	out.ADCRes = make([]int, len(channels))
	out.ADCZero = make([]int, len(channels))
	out.InitValue = make([]int, len(channels))
	out.Checksum = make([]int, len(channels))
	out.BlockSize = make([]int, len(channels))
	if r.SigName != nil {
		out.SigName = make([]string, len(channels))
	}
	for i, ch := range channels {
		out.FileName[i] = r.FileName[ch]
		out.Fmt[i] = r.Fmt[ch]
		out.SampsPerFrame[i] = r.SampsPerFrame[ch]
		out.Skew[i] = r.Skew[ch]
		out.ByteOffset[i] = r.ByteOffset[ch]
		out.ADCGain[i] = r.ADCGain[ch]
		out.Baseline[i] = r.Baseline[ch]
		out.Units[i] = r.Units[ch]
		out.ADCRes[i] = r.ADCRes[ch]
		out.ADCZero[i] = r.ADCZero[ch]
		out.InitValue[i] = r.InitValue[ch]
		out.Checksum[i] = r.Checksum[ch]
		out.BlockSize[i] = r.BlockSize[ch]
		if r.SigName != nil {
			out.SigName[i] = r.SigName[ch]
		}
	}
	return out
}

// narrow builds the read result: a record restricted to the selected
// channels and range, carrying the freshly read samples. The source
// record is left untouched. init_value and checksum are recomputed from
// the held samples so the result can be written back verbatim; declared
// checksums are verified first when the full record was read.
func (r *Record) narrow(channels []int, sampFrom, sampTo int,
	expanded [][]int32, rawSums []int, keepExpanded bool, strict bool) (*Record, error) {

	out := r.selectChannels(channels)
	out.SigLen = sampTo - sampFrom
	out.shiftStart(sampFrom)

	out.EDSignal = expanded
	computed := out.CalcChecksum(true)
	if sampFrom == 0 && sampTo == r.SigLen && len(r.Checksum) > 0 {
		// Declared checksums cover the file's stored stream, before any
		// skew correction; compare against the unshifted sums.
		for i, ch := range channels {
			// Compare modulo 65536: older headers store the sum with either
			// signedness.
			if uint16(r.Checksum[ch]) != uint16(rawSums[i]) {
				if strict {
					return nil, &CohesionError{Record: r.Name,
						Reason: fmt.Sprintf("channel %d: computed checksum %d does not match declared %d",
							ch, rawSums[i], r.Checksum[ch])}
				}
				out.Warnings = append(out.Warnings, Warning{Stage: "checksum",
					Message: fmt.Sprintf("channel %d: computed checksum %d does not match declared %d",
						ch, rawSums[i], r.Checksum[ch])})
			}
		}
	}
	for i, seq := range expanded {
		out.Checksum[i] = computed[i]
		if len(seq) > 0 {
			out.InitValue[i] = int(seq[0])
		}
	}

	if !keepExpanded {
		nans := make([]int32, len(channels))
		for i := range channels {
			nans[i] = codec.NaNValue(out.Fmt[i])
		}
		out.DSignal = smoothFrames(expanded, out.SampsPerFrame, nans)
		out.EDSignal = nil
		// A smoothed matrix no longer reflects multi-sample frames.
		if len(out.DSignal) > 0 {
			computed = out.CalcChecksum(false)
			for i := range channels {
				out.SampsPerFrame[i] = 1
				out.Checksum[i] = computed[i]
				out.InitValue[i] = int(out.DSignal[0][i])
			}
		}
	}
	return out, nil
}
