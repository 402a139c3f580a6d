package wfdb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openwfdb/wfdb/internal/codec"
)

// Field identifies one descriptor field for validation. Validation
// dispatches over these tags through a check table rather than comparing
// field names as strings.
type Field int

const (
	FieldName Field = iota
	FieldNSig
	FieldFS
	FieldCounterFreq
	FieldBaseCounter
	FieldSigLen
	FieldComments
	FieldFileName
	FieldFmt
	FieldSampsPerFrame
	FieldSkew
	FieldByteOffset
	FieldADCGain
	FieldBaseline
	FieldUnits
	FieldADCRes
	FieldADCZero
	FieldInitValue
	FieldChecksum
	FieldBlockSize
	FieldSigName
	FieldSegments
	FieldDSignal
	FieldPSignal
	FieldEDSignal
	FieldEPSignal
)

var fieldNames = map[Field]string{
	FieldName:          "record name",
	FieldNSig:          "n_sig",
	FieldFS:            "fs",
	FieldCounterFreq:   "counter_freq",
	FieldBaseCounter:   "base_counter",
	FieldSigLen:        "sig_len",
	FieldComments:      "comments",
	FieldFileName:      "file_name",
	FieldFmt:           "fmt",
	FieldSampsPerFrame: "samps_per_frame",
	FieldSkew:          "skew",
	FieldByteOffset:    "byte_offset",
	FieldADCGain:       "adc_gain",
	FieldBaseline:      "baseline",
	FieldUnits:         "units",
	FieldADCRes:        "adc_res",
	FieldADCZero:       "adc_zero",
	FieldInitValue:     "init_value",
	FieldChecksum:      "checksum",
	FieldBlockSize:     "block_size",
	FieldSigName:       "sig_name",
	FieldSegments:      "segments",
	FieldDSignal:       "d_signal",
	FieldPSignal:       "p_signal",
	FieldEDSignal:      "e_d_signal",
	FieldEPSignal:      "e_p_signal",
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return fmt.Sprintf("field(%d)", int(f))
}

var (
	nameRE     = regexp.MustCompile(`^[-\w]+$`)
	// Layout segment headers use "~" as a placeholder file name.
	fileNameRE = regexp.MustCompile(`^[-\w]+\.?[\w]+$|^~$`)
	// Tabs, newlines and other vertical whitespace break the header line
	// structure; plain spaces are fine in comments.
	commentCtrlRE = regexp.MustCompile(`[\t\n\r\f\v]`)
)

// commonChecks validates the record-line fields shared by Record and
// MultiRecord, keyed by field tag.
var commonChecks = map[Field]func(c *CommonFields) error{
	FieldName: func(c *CommonFields) error {
		if c.Name == "" {
			return &MissingFieldError{Field: FieldName.String()}
		}
		if !nameRE.MatchString(c.Name) {
			return &DomainError{Field: FieldName.String(),
				Reason: "must only comprise letters, digits, hyphens, and underscores"}
		}
		return nil
	},
	FieldNSig: func(c *CommonFields) error {
		if c.NSig < 0 {
			return &DomainError{Field: FieldNSig.String(), Reason: "must be non-negative"}
		}
		return nil
	},
	FieldFS: func(c *CommonFields) error {
		if c.FS <= 0 {
			return &DomainError{Field: FieldFS.String(), Reason: "must be a positive number"}
		}
		return nil
	},
	FieldCounterFreq: func(c *CommonFields) error {
		if c.CounterFreq < 0 {
			return &DomainError{Field: FieldCounterFreq.String(), Reason: "must be a positive number"}
		}
		return nil
	},
	FieldBaseCounter: func(c *CommonFields) error {
		if c.BaseCounter < 0 {
			return &DomainError{Field: FieldBaseCounter.String(), Reason: "must be a positive number"}
		}
		return nil
	},
	FieldSigLen: func(c *CommonFields) error {
		if c.SigLen < 0 {
			return &DomainError{Field: FieldSigLen.String(), Reason: "must be a non-negative integer"}
		}
		return nil
	},
	FieldComments: func(c *CommonFields) error {
		for _, line := range c.Comments {
			if commentCtrlRE.MatchString(line) {
				return &DomainError{Field: FieldComments.String(),
					Reason: "comments may not contain tabs or newlines"}
			}
		}
		return nil
	},
}

// signalChecks validates one channel of a per-channel field, keyed by
// field tag. Whole-field constraints (grouping, uniqueness) live in
// CheckField itself.
var signalChecks = map[Field]func(r *Record, ch int) error{
	FieldFileName: func(r *Record, ch int) error {
		if !fileNameRE.MatchString(r.FileName[ch]) {
			return &DomainError{Field: FieldFileName.String(),
				Reason: fmt.Sprintf("%q: file names may only contain alphanumerics, hyphens, and an extension", r.FileName[ch])}
		}
		return nil
	},
	FieldFmt: func(r *Record, ch int) error {
		if !codec.Supported(r.Fmt[ch]) {
			return &DomainError{Field: FieldFmt.String(),
				Reason: fmt.Sprintf("%q is not a valid dat format code", r.Fmt[ch])}
		}
		return nil
	},
	FieldSampsPerFrame: func(r *Record, ch int) error {
		if r.SampsPerFrame[ch] < 1 {
			return &DomainError{Field: FieldSampsPerFrame.String(), Reason: "values must be positive integers"}
		}
		return nil
	},
	FieldSkew: func(r *Record, ch int) error {
		if r.Skew[ch] < 0 {
			return &DomainError{Field: FieldSkew.String(), Reason: "values must be non-negative integers"}
		}
		return nil
	},
	FieldByteOffset: func(r *Record, ch int) error {
		if r.ByteOffset[ch] < 0 {
			return &DomainError{Field: FieldByteOffset.String(), Reason: "values must be non-negative integers"}
		}
		return nil
	},
	FieldADCGain: func(r *Record, ch int) error {
		if r.ADCGain[ch] <= 0 {
			return &DomainError{Field: FieldADCGain.String(), Reason: "values must be positive"}
		}
		return nil
	},
	FieldBaseline: func(r *Record, ch int) error {
		// The original WFDB library stores baselines in 4 bytes.
		if r.Baseline[ch] < -2147483648 || r.Baseline[ch] > 2147483647 {
			return &DomainError{Field: FieldBaseline.String(),
				Reason: "values must be between -2147483648 and 2147483647"}
		}
		return nil
	},
	FieldUnits: func(r *Record, ch int) error {
		if strings.ContainsAny(r.Units[ch], " \t\n\r\f\v") {
			return &DomainError{Field: FieldUnits.String(), Reason: "unit strings may not contain whitespace"}
		}
		return nil
	},
	FieldADCRes: func(r *Record, ch int) error {
		if r.ADCRes[ch] < 0 {
			return &DomainError{Field: FieldADCRes.String(), Reason: "values must be non-negative integers"}
		}
		return nil
	},
	FieldADCZero:   func(r *Record, ch int) error { return nil },
	FieldInitValue: func(r *Record, ch int) error { return nil },
	FieldChecksum:  func(r *Record, ch int) error { return nil },
	FieldBlockSize: func(r *Record, ch int) error {
		if r.BlockSize[ch] < 0 {
			return &DomainError{Field: FieldBlockSize.String(), Reason: "values must be non-negative integers"}
		}
		return nil
	},
	FieldSigName: func(r *Record, ch int) error {
		if strings.ContainsAny(r.SigName[ch], " \t\n\r\f\v") {
			return &DomainError{Field: FieldSigName.String(), Reason: "signal names may not contain whitespace"}
		}
		return nil
	},
}

// signalField returns the per-channel slice for a signal specification
// field, as an any-typed length check helper.
func (r *Record) signalFieldLen(f Field) (int, bool) {
	switch f {
	case FieldFileName:
		return len(r.FileName), r.FileName != nil
	case FieldFmt:
		return len(r.Fmt), r.Fmt != nil
	case FieldSampsPerFrame:
		return len(r.SampsPerFrame), r.SampsPerFrame != nil
	case FieldSkew:
		return len(r.Skew), r.Skew != nil
	case FieldByteOffset:
		return len(r.ByteOffset), r.ByteOffset != nil
	case FieldADCGain:
		return len(r.ADCGain), r.ADCGain != nil
	case FieldBaseline:
		return len(r.Baseline), r.Baseline != nil
	case FieldUnits:
		return len(r.Units), r.Units != nil
	case FieldADCRes:
		return len(r.ADCRes), r.ADCRes != nil
	case FieldADCZero:
		return len(r.ADCZero), r.ADCZero != nil
	case FieldInitValue:
		return len(r.InitValue), r.InitValue != nil
	case FieldChecksum:
		return len(r.Checksum), r.Checksum != nil
	case FieldBlockSize:
		return len(r.BlockSize), r.BlockSize != nil
	case FieldSigName:
		return len(r.SigName), r.SigName != nil
	}
	return 0, false
}

// CheckField validates a single field of the record in its basic form,
// without checking compatibility against other fields. requiredChannels
// limits which channels of a per-channel field are held to the domain
// checks; pass nil to check all channels. Called before every write, and
// usable at any point on a partially built descriptor.
func (r *Record) CheckField(f Field, requiredChannels []int) error {
	if check, ok := commonChecks[f]; ok {
		return check(&r.CommonFields)
	}

	if check, ok := signalChecks[f]; ok {
		n, set := r.signalFieldLen(f)
		if !set {
			return &MissingFieldError{Field: f.String()}
		}
		required := requiredChannels
		if required == nil {
			required = make([]int, n)
			for i := range required {
				required[i] = i
			}
		}
		for _, ch := range required {
			if ch < 0 || ch >= n {
				return &ShapeError{Field: f.String(), Channel: ch, Reason: "channel out of range"}
			}
			if err := check(r, ch); err != nil {
				return err
			}
		}
		// Whole-field constraints.
		switch f {
		case FieldFileName:
			if !isMonotonic(r.FileName) {
				return &DomainError{Field: f.String(),
					Reason: "channels that share a dat file must be consecutive"}
			}
		case FieldSigName:
			seen := make(map[string]struct{}, n)
			for _, name := range r.SigName {
				if _, dup := seen[name]; dup {
					return &DomainError{Field: f.String(),
						Reason: fmt.Sprintf("signal names must be unique; %q repeats", name)}
				}
				seen[name] = struct{}{}
			}
		}
		return nil
	}

	switch f {
	case FieldDSignal:
		if r.DSignal == nil {
			return &MissingFieldError{Field: f.String()}
		}
		return checkMatrix32(r.DSignal, f)
	case FieldPSignal:
		if r.PSignal == nil {
			return &MissingFieldError{Field: f.String()}
		}
		return checkMatrix64(r.PSignal, f)
	case FieldEDSignal:
		if r.EDSignal == nil {
			return &MissingFieldError{Field: f.String()}
		}
		return nil
	case FieldEPSignal:
		if r.EPSignal == nil {
			return &MissingFieldError{Field: f.String()}
		}
		return nil
	}
	return fmt.Errorf("unknown field tag %d", int(f))
}

// CheckField validates a single field of the multi-segment record.
func (m *MultiRecord) CheckField(f Field) error {
	if check, ok := commonChecks[f]; ok {
		return check(&m.CommonFields)
	}
	if f != FieldSegments {
		return fmt.Errorf("unknown field tag %d for multi-segment record", int(f))
	}
	if m.Segments == nil {
		return &MissingFieldError{Field: f.String()}
	}
	for i, seg := range m.Segments {
		if !seg.IsNull() && !nameRE.MatchString(seg.Name) {
			return &DomainError{Field: f.String(),
				Reason: fmt.Sprintf("segment %d: names may only contain alphanumerics and dashes", i)}
		}
		// Only the layout segment, at index 0, may be empty.
		minLen := 1
		if i == 0 {
			minLen = 0
		}
		if seg.Length < minLen {
			return &DomainError{Field: f.String(),
				Reason: fmt.Sprintf("segment %d: lengths must be positive; only seg_len[0] may be 0", i)}
		}
	}
	return nil
}

func checkMatrix32(m [][]int32, f Field) error {
	for i, row := range m {
		if len(row) != len(m[0]) {
			return &ShapeError{Field: f.String(), Channel: -1,
				Reason: fmt.Sprintf("ragged matrix: row %d has %d columns, row 0 has %d", i, len(row), len(m[0]))}
		}
	}
	return nil
}

func checkMatrix64(m [][]float64, f Field) error {
	for i, row := range m {
		if len(row) != len(m[0]) {
			return &ShapeError{Field: f.String(), Channel: -1,
				Reason: fmt.Sprintf("ragged matrix: row %d has %d columns, row 0 has %d", i, len(row), len(m[0]))}
		}
	}
	return nil
}

// isMonotonic reports whether equal elements are clustered together,
// e.g. [a a b c] is, [a b a] is not.
func isMonotonic(list []string) bool {
	if len(list) == 0 {
		return true
	}
	seen := map[string]struct{}{list[0]: {}}
	prev := list[0]
	for _, item := range list {
		if item != prev {
			if _, ok := seen[item]; ok {
				return false
			}
			prev = item
			seen[item] = struct{}{}
		}
	}
	return true
}

// validReturnWidths are the accepted sample width requests, in bits.
var validReturnWidths = map[int]bool{64: true, 32: true, 16: true, 8: true}

// checkReadRange validates read parameters against the record's bounds.
// multi reports whether the target is a multi-segment record, which
// cannot be read with frame smoothing disabled.
func checkReadRange(c *CommonFields, sampFrom, sampTo int, channels []int,
	physical, smoothFrames bool, returnWidth int, multi bool) error {

	if sampFrom < 0 {
		return &DomainError{Reason: "sampfrom must be a non-negative integer"}
	}
	if sampFrom > c.SigLen {
		return &DomainError{Reason: "sampfrom must be shorter than the signal length"}
	}
	if sampTo < 0 {
		return &DomainError{Reason: "sampto must be a non-negative integer"}
	}
	if sampTo > c.SigLen {
		return &DomainError{Reason: "sampto must be shorter than the signal length"}
	}
	if sampTo <= sampFrom {
		return &DomainError{Reason: "sampto must be greater than sampfrom"}
	}
	for _, ch := range channels {
		if ch < 0 {
			return &DomainError{Reason: "channels must all be non-negative integers"}
		}
		if ch > c.NSig-1 {
			return &DomainError{Reason: "channels must all be lower than the total channel count"}
		}
	}
	if !validReturnWidths[returnWidth] {
		return &DomainError{Reason: "return width must be one of 64, 32, 16, 8"}
	}
	if physical && returnWidth == 8 {
		return &DomainError{Reason: "return width must be one of 64, 32, 16 for physical signals"}
	}
	if multi && !smoothFrames {
		return &DomainError{Reason: "multi-segment records cannot be read with frame smoothing disabled"}
	}
	return nil
}
