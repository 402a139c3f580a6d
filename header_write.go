package wfdb

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// formatFloat renders a float the way header files expect: no exponent,
// no trailing zeros.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// recordLine renders the first header line. nSeg is 0 for single-segment
// records.
func (c *CommonFields) recordLine(nSeg int) string {
	var b strings.Builder
	b.WriteString(c.Name)
	if nSeg > 0 {
		fmt.Fprintf(&b, "/%d", nSeg)
	}
	fmt.Fprintf(&b, " %d ", c.NSig)
	b.WriteString(formatFloat(c.FS))
	if c.CounterFreq > 0 {
		b.WriteString("/" + formatFloat(c.CounterFreq))
		if c.BaseCounter > 0 {
			b.WriteString("(" + formatFloat(c.BaseCounter) + ")")
		}
	}
	fmt.Fprintf(&b, " %d", c.SigLen)
	if c.BaseTime != nil {
		b.WriteString(" " + c.BaseTime.Format("15:04:05"))
		if c.BaseTime.Nanosecond() != 0 {
			fmt.Fprintf(&b, ".%06d", c.BaseTime.Nanosecond()/1000)
		}
		if c.BaseDate != nil {
			b.WriteString(" " + c.BaseDate.Format("02/01/2006"))
		}
	}
	return b.String()
}

// signalLine renders the signal specification line for one channel.
func (r *Record) signalLine(ch int) string {
	var b strings.Builder
	b.WriteString(r.FileName[ch] + " " + r.Fmt[ch])
	if r.SampsPerFrame[ch] > 1 {
		fmt.Fprintf(&b, "x%d", r.SampsPerFrame[ch])
	}
	if r.Skew[ch] > 0 {
		fmt.Fprintf(&b, ":%d", r.Skew[ch])
	}
	if r.ByteOffset[ch] > 0 {
		fmt.Fprintf(&b, "+%d", r.ByteOffset[ch])
	}
	fmt.Fprintf(&b, " %s(%d)/%s %d %d %d %d %d",
		formatFloat(r.ADCGain[ch]), r.Baseline[ch], r.Units[ch],
		r.ADCRes[ch], r.ADCZero[ch], r.InitValue[ch], r.Checksum[ch],
		r.BlockSize[ch])
	if len(r.SigName) > ch && r.SigName[ch] != "" {
		b.WriteString(" " + r.SigName[ch])
	}
	return b.String()
}

func writeHeaderFile(dir, name string, lines, comments []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	for _, comment := range comments {
		b.WriteString("# " + comment + "\n")
	}
	path := filepath.Join(dir, name+".hea")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// WriteHeader validates the header fields and writes the .hea file for a
// single-segment record.
func (r *Record) WriteHeader(dir string) error {
	if err := r.validateHeader(); err != nil {
		return err
	}
	lines := []string{r.recordLine(0)}
	for ch := 0; ch < r.NSig; ch++ {
		lines = append(lines, r.signalLine(ch))
	}
	return writeHeaderFile(dir, r.Name, lines, r.Comments)
}

// WriteHeader validates the header fields and writes the parent .hea
// file for a multi-segment record. Child segments are written by their
// own Records.
func (m *MultiRecord) WriteHeader(dir string) error {
	for _, f := range []Field{FieldName, FieldNSig, FieldFS, FieldSigLen, FieldComments, FieldSegments} {
		if err := m.CheckField(f); err != nil {
			return err
		}
	}
	total := 0
	for _, seg := range m.Segments {
		total += seg.Length
	}
	if total != m.SigLen {
		return &CohesionError{Record: m.Name,
			Reason: fmt.Sprintf("segment lengths sum to %d but sig_len is %d", total, m.SigLen)}
	}
	lines := []string{m.recordLine(len(m.Segments))}
	for _, seg := range m.Segments {
		name := seg.Name
		if seg.IsNull() {
			name = nullSegmentName
		}
		lines = append(lines, fmt.Sprintf("%s %d", name, seg.Length))
	}
	return writeHeaderFile(dir, m.Name, lines, m.Comments)
}

// validateHeader runs the field checks needed before a header write.
func (r *Record) validateHeader() error {
	for _, f := range []Field{FieldName, FieldNSig, FieldFS, FieldSigLen, FieldComments} {
		if err := r.CheckField(f, nil); err != nil {
			return err
		}
	}
	if r.NSig == 0 {
		return nil
	}
	signalFields := []Field{FieldFileName, FieldFmt, FieldSampsPerFrame,
		FieldSkew, FieldByteOffset, FieldADCGain, FieldBaseline, FieldUnits,
		FieldADCRes, FieldADCZero, FieldInitValue, FieldChecksum,
		FieldBlockSize, FieldSigName}
	for _, f := range signalFields {
		if f == FieldSigName && r.SigName == nil {
			continue
		}
		if err := r.CheckField(f, nil); err != nil {
			return err
		}
		if n, _ := r.signalFieldLen(f); n != r.NSig {
			return &ShapeError{Field: f.String(), Channel: -1,
				Reason: fmt.Sprintf("has %d entries for %d signals", n, r.NSig)}
		}
	}
	return nil
}
