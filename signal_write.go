package wfdb

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/openwfdb/wfdb/internal/codec"
)

// WriteSamples writes a physical signal matrix as a new record: dat file
// plus header. Gain and baseline are fitted to each channel's value
// range. The fully defaulted Record is returned for inspection.
func WriteSamples(dir, name string, fs float64, pSignal [][]float64,
	sigNames, units []string, comments ...string) (*Record, error) {

	rec := &Record{
		CommonFields: CommonFields{Name: name, FS: fs, Comments: comments},
		PSignal:      pSignal,
		SigName:      sigNames,
		Units:        units,
	}
	if err := rec.Write(dir); err != nil {
		return nil, err
	}
	return rec, nil
}

// Write validates the record, fills defaultable descriptor fields, and
// writes the header and dat files into dir. Physical signals are
// converted to digital in place first; after a successful write the
// record holds the digital representation actually stored.
//
// One of PSignal, DSignal, EPSignal, or EDSignal must be set. Digital
// input additionally requires fmt, adc_gain, and baseline.
func (r *Record) Write(dir string) error {
	expanded := r.EDSignal != nil || r.EPSignal != nil
	physical := r.PSignal != nil || r.EPSignal != nil
	hasSignal := expanded || r.DSignal != nil || r.PSignal != nil

	if hasSignal {
		if err := r.setWriteDefaults(expanded, physical); err != nil {
			return err
		}
		if physical {
			if err := r.Adc(expanded); err != nil {
				return err
			}
		}
		sums := r.CalcChecksum(expanded)
		r.Checksum = make([]int, r.NSig)
		r.InitValue = make([]int, r.NSig)
		for ch := 0; ch < r.NSig; ch++ {
			r.Checksum[ch] = sums[ch]
			if expanded {
				if len(r.EDSignal[ch]) > 0 {
					r.InitValue[ch] = int(r.EDSignal[ch][0])
				}
			} else if r.SigLen > 0 {
				r.InitValue[ch] = int(r.DSignal[0][ch])
			}
		}
	}

	if err := r.validateHeader(); err != nil {
		return err
	}
	if hasSignal {
		if err := r.checkDigitalRange(expanded); err != nil {
			return err
		}
		if err := r.checkDatGrouping(); err != nil {
			return err
		}
		if err := r.writeDat(dir, expanded); err != nil {
			return err
		}
	}
	if err := r.WriteHeader(dir); err != nil {
		return err
	}
	r.dir = dir
	return nil
}

// Write writes the parent header and every present segment record.
// Segment records without signal data (the layout segment) get a
// header-only write.
func (m *MultiRecord) Write(dir string) error {
	for i, seg := range m.Segments {
		if seg.IsNull() || m.Records[i] == nil {
			continue
		}
		rec := m.Records[i]
		var err error
		if rec.PSignal == nil && rec.DSignal == nil &&
			rec.EPSignal == nil && rec.EDSignal == nil {
			err = rec.WriteHeader(dir)
		} else {
			err = rec.Write(dir)
		}
		if err != nil {
			return fmt.Errorf("segment %s: %w", seg.Name, err)
		}
	}
	if err := m.WriteHeader(dir); err != nil {
		return err
	}
	m.dir = dir
	return nil
}

// setWriteDefaults derives NSig and SigLen from the signal data and
// fills every defaultable descriptor field left nil.
func (r *Record) setWriteDefaults(expanded, physical bool) error {
	if expanded {
		n := len(r.EDSignal)
		if physical {
			n = len(r.EPSignal)
		}
		r.NSig = n
		if r.SampsPerFrame == nil {
			r.SampsPerFrame = ones(n)
		}
		if len(r.SampsPerFrame) != n {
			return &ShapeError{Field: FieldSampsPerFrame.String(), Channel: -1,
				Reason: fmt.Sprintf("has %d entries for %d signals", len(r.SampsPerFrame), n)}
		}
		if n > 0 {
			seqLen := func(ch int) int {
				if physical {
					return len(r.EPSignal[ch])
				}
				return len(r.EDSignal[ch])
			}
			r.SigLen = seqLen(0) / r.SampsPerFrame[0]
			for ch := 0; ch < n; ch++ {
				if seqLen(ch) != r.SigLen*r.SampsPerFrame[ch] {
					return &ShapeError{Field: FieldEDSignal.String(), Channel: ch,
						Reason: "sequence length is not samps_per_frame times a common frame count"}
				}
			}
		}
	} else {
		var f Field
		if physical {
			f = FieldPSignal
		} else {
			f = FieldDSignal
		}
		if err := r.CheckField(f, nil); err != nil {
			return err
		}
		if physical {
			r.SigLen = len(r.PSignal)
			if r.SigLen > 0 {
				r.NSig = len(r.PSignal[0])
			}
		} else {
			r.SigLen = len(r.DSignal)
			if r.SigLen > 0 {
				r.NSig = len(r.DSignal[0])
			}
		}
		if r.SampsPerFrame == nil {
			r.SampsPerFrame = ones(r.NSig)
		}
	}

	n := r.NSig
	if r.FileName == nil {
		r.FileName = make([]string, n)
		for ch := range r.FileName {
			r.FileName[ch] = r.Name + ".dat"
		}
	}
	if r.Fmt == nil {
		r.Fmt = make([]string, n)
		code := "16"
		if !physical && r.digitalNeeds32(expanded) {
			code = "32"
		}
		for ch := range r.Fmt {
			r.Fmt[ch] = code
		}
	}
	if r.Skew == nil {
		r.Skew = make([]int, n)
	}
	if r.ByteOffset == nil {
		r.ByteOffset = make([]int, n)
	}
	if r.Units == nil {
		r.Units = make([]string, n)
		for ch := range r.Units {
			r.Units[ch] = "mV"
		}
	}
	if r.ADCZero == nil {
		r.ADCZero = make([]int, n)
	}
	if r.ADCRes == nil {
		r.ADCRes = make([]int, n)
		for ch := range r.ADCRes {
			if spec, err := codec.Describe(r.Fmt[ch]); err == nil {
				r.ADCRes[ch] = spec.Bits
			}
		}
	}
	if r.BlockSize == nil {
		r.BlockSize = make([]int, n)
	}
	if r.InitValue == nil {
		r.InitValue = make([]int, n)
	}
	if r.Checksum == nil {
		r.Checksum = make([]int, n)
	}

	if physical {
		if r.ADCGain == nil || r.Baseline == nil {
			if err := r.fitADCParams(expanded); err != nil {
				return err
			}
		}
	} else {
		if r.ADCGain == nil {
			return &MissingFieldError{Field: FieldADCGain.String()}
		}
		if r.Baseline == nil {
			return &MissingFieldError{Field: FieldBaseline.String()}
		}
	}
	return nil
}

func ones(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

// digitalNeeds32 reports whether any digital sample falls outside the
// 16-bit range, forcing the wider default format.
func (r *Record) digitalNeeds32(expanded bool) bool {
	outside := func(v int32) bool { return v < math.MinInt16 || v > math.MaxInt16 }
	if expanded {
		for _, seq := range r.EDSignal {
			for _, v := range seq {
				if outside(v) {
					return true
				}
			}
		}
		return false
	}
	for _, row := range r.DSignal {
		for _, v := range row {
			if outside(v) {
				return true
			}
		}
	}
	return false
}

// fitADCParams chooses a gain and baseline per channel so the physical
// value range maps onto the chosen format's digital range, leaving the
// minimum code free as the missing-value sentinel.
func (r *Record) fitADCParams(expanded bool) error {
	r.ADCGain = make([]float64, r.NSig)
	r.Baseline = make([]int, r.NSig)
	for ch := 0; ch < r.NSig; ch++ {
		spec, err := codec.Describe(r.Fmt[ch])
		if err != nil {
			return &DomainError{Field: FieldFmt.String(), Reason: err.Error()}
		}
		pmin, pmax := math.Inf(1), math.Inf(-1)
		scan := func(v float64) {
			if math.IsNaN(v) {
				return
			}
			pmin = math.Min(pmin, v)
			pmax = math.Max(pmax, v)
		}
		if expanded {
			for _, v := range r.EPSignal[ch] {
				scan(v)
			}
		} else {
			for _, row := range r.PSignal {
				scan(row[ch])
			}
		}

		lo, hi := float64(spec.Min+1), float64(spec.Max)
		switch {
		case math.IsInf(pmin, 1):
			// All samples missing.
			r.ADCGain[ch] = DefaultGain
			r.Baseline[ch] = 0
		case pmin == pmax:
			r.ADCGain[ch] = 1
			r.Baseline[ch] = int(math.Round((lo+hi)/2 - pmin))
		default:
			gain := (hi - lo) / (pmax - pmin)
			r.ADCGain[ch] = gain
			r.Baseline[ch] = int(math.Round(lo - pmin*gain))
		}
	}
	return nil
}

// checkDigitalRange verifies every digital sample is representable in
// its channel's format.
func (r *Record) checkDigitalRange(expanded bool) error {
	for ch := 0; ch < r.NSig; ch++ {
		spec, err := codec.Describe(r.Fmt[ch])
		if err != nil {
			return &DomainError{Field: FieldFmt.String(), Reason: err.Error()}
		}
		bad := func(v int32) error {
			if v < spec.Min || v > spec.Max {
				return &DomainError{Field: FieldDSignal.String(),
					Reason: fmt.Sprintf("channel %d: sample %d is outside format %s's range [%d, %d]",
						ch, v, spec.Code, spec.Min, spec.Max)}
			}
			return nil
		}
		if expanded {
			for _, v := range r.EDSignal[ch] {
				if err := bad(v); err != nil {
					return err
				}
			}
		} else {
			for _, row := range r.DSignal {
				if err := bad(row[ch]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// checkDatGrouping verifies channels sharing a dat file agree on format,
// byte offset, and block size, since those apply to the whole file.
func (r *Record) checkDatGrouping() error {
	for _, g := range r.datGroups() {
		first := g.channels[0]
		for _, ch := range g.channels[1:] {
			if r.Fmt[ch] != r.Fmt[first] {
				return &DomainError{Field: FieldFmt.String(),
					Reason: fmt.Sprintf("channels sharing %s use formats %s and %s",
						g.fileName, r.Fmt[first], r.Fmt[ch])}
			}
			if r.ByteOffset[ch] != r.ByteOffset[first] {
				return &DomainError{Field: FieldByteOffset.String(),
					Reason: fmt.Sprintf("channels sharing %s disagree on byte offset", g.fileName)}
			}
			if r.BlockSize[ch] != r.BlockSize[first] {
				return &DomainError{Field: FieldBlockSize.String(),
					Reason: fmt.Sprintf("channels sharing %s disagree on block size", g.fileName)}
			}
		}
	}
	return nil
}

// writeDat encodes and writes each dat file: frames interleaved channel
// by channel, preceded by byteOffset zero bytes when declared.
func (r *Record) writeDat(dir string, expanded bool) error {
	for _, g := range r.datGroups() {
		samples := make([]int32, 0, r.SigLen*g.tspf)
		for fr := 0; fr < r.SigLen; fr++ {
			for _, ch := range g.channels {
				spf := r.SampsPerFrame[ch]
				if expanded {
					samples = append(samples, r.EDSignal[ch][fr*spf:(fr+1)*spf]...)
				} else {
					samples = append(samples, r.DSignal[fr][ch])
				}
			}
		}
		data, err := codec.Encode(g.fmtCode, samples)
		if err != nil {
			return &DomainError{Field: FieldFmt.String(), Reason: err.Error()}
		}
		if g.byteOffset > 0 {
			data = append(make([]byte, g.byteOffset), data...)
		}
		path := filepath.Join(dir, g.fileName)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write dat file: %w", err)
		}
	}
	return nil
}
