package wfdb

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultFS is the sampling frequency assumed when the record line omits
// one, per the WFDB header specification.
const DefaultFS = 250.0

// DefaultGain is the ADC gain assumed when a signal line omits one.
const DefaultGain = 200.0

// nullSegmentName marks a data-free time span in a segment line.
const nullSegmentName = "~"

var (
	recordTokenRE = regexp.MustCompile(`^([-\w]+)(?:/(\d+))?$`)
	fsTokenRE     = regexp.MustCompile(`^(\d+\.?\d*(?:[eE][+-]?\d+)?)(?:/(\d+\.?\d*)(?:\((\d+\.?\d*)\))?)?$`)
	fmtTokenRE    = regexp.MustCompile(`^(\d+)(?:x(\d+))?(?::(\d+))?(?:\+(\d+))?$`)
	gainTokenRE   = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(?:\((-?\d+)\))?(?:/(\S+))?$`)
)

// ReadHeader reads a WFDB header file and returns the descriptor it
// declares. path names the record without the ".hea" extension; exactly
// one of the two results is non-nil.
//
// For multi-segment records only the parent header is read; use
// (*MultiRecord).ReadSegmentHeaders to load the child descriptors.
func ReadHeader(path string) (*Record, *MultiRecord, error) {
	headerPath := path + ".hea"
	f, err := os.Open(headerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open header: %w", err)
	}
	defer f.Close()

	var headerLines []string
	var lineNums []int
	var comments []string
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		switch {
		case strings.HasPrefix(strings.TrimSpace(line), "#"):
			comments = append(comments, strings.Trim(line, " \t#"))
		case strings.TrimSpace(line) != "":
			headerLines = append(headerLines, line)
			lineNums = append(lineNums, lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if len(headerLines) == 0 {
		return nil, nil, &FormatError{Path: headerPath, Reason: "empty header"}
	}

	common, nSeg, err := parseRecordLine(headerLines[0])
	if err != nil {
		return nil, nil, &FormatError{Path: headerPath, Line: lineNums[0], Reason: err.Error()}
	}
	common.Comments = comments
	dir := filepath.Dir(path)

	if nSeg == 0 {
		record := &Record{CommonFields: common, dir: dir}
		for i, line := range headerLines[1:] {
			if err := record.parseSignalLine(line); err != nil {
				return nil, nil, &FormatError{Path: headerPath, Line: lineNums[i+1], Reason: err.Error()}
			}
		}
		if n := len(record.FileName); n != common.NSig {
			return nil, nil, &FormatError{Path: headerPath,
				Reason: fmt.Sprintf("header declares %d signals but has %d signal lines", common.NSig, n)}
		}
		record.applySignalDefaults()
		return record, nil, nil
	}

	multi := &MultiRecord{CommonFields: common, dir: dir}
	for i, line := range headerLines[1:] {
		seg, err := parseSegmentLine(line)
		if err != nil {
			return nil, nil, &FormatError{Path: headerPath, Line: lineNums[i+1], Reason: err.Error()}
		}
		multi.Segments = append(multi.Segments, seg)
	}
	if len(multi.Segments) != nSeg {
		return nil, nil, &FormatError{Path: headerPath,
			Reason: fmt.Sprintf("header declares %d segments but has %d segment lines", nSeg, len(multi.Segments))}
	}
	multi.Records = make([]*Record, len(multi.Segments))
	if multi.Segments[0].Length == 0 {
		multi.Layout = LayoutVariable
	} else {
		multi.Layout = LayoutFixed
	}
	return nil, multi, nil
}

// parseRecordLine parses the first header line. nSeg is 0 for
// single-segment records; any "/n" suffix on the record name, even "/1",
// makes the header multi-segment.
func parseRecordLine(line string) (CommonFields, int, error) {
	var c CommonFields
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return c, 0, fmt.Errorf("record line needs at least a name and a signal count")
	}

	m := recordTokenRE.FindStringSubmatch(tokens[0])
	if m == nil {
		return c, 0, fmt.Errorf("malformed record name token %q", tokens[0])
	}
	c.Name = m[1]
	nSeg := 0
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil || n <= 0 {
			return c, 0, fmt.Errorf("malformed segment count in %q", tokens[0])
		}
		nSeg = n
	}

	nSig, err := strconv.Atoi(tokens[1])
	if err != nil || nSig < 0 {
		return c, 0, fmt.Errorf("malformed signal count %q", tokens[1])
	}
	c.NSig = nSig

	c.FS = DefaultFS
	if len(tokens) > 2 {
		fm := fsTokenRE.FindStringSubmatch(tokens[2])
		if fm == nil {
			return c, 0, fmt.Errorf("malformed sampling frequency token %q", tokens[2])
		}
		if c.FS, err = strconv.ParseFloat(fm[1], 64); err != nil {
			return c, 0, fmt.Errorf("malformed sampling frequency %q", fm[1])
		}
		if fm[2] != "" {
			if c.CounterFreq, err = strconv.ParseFloat(fm[2], 64); err != nil {
				return c, 0, fmt.Errorf("malformed counter frequency %q", fm[2])
			}
		}
		if fm[3] != "" {
			if c.BaseCounter, err = strconv.ParseFloat(fm[3], 64); err != nil {
				return c, 0, fmt.Errorf("malformed base counter %q", fm[3])
			}
		}
	}
	if len(tokens) > 3 {
		if c.SigLen, err = strconv.Atoi(tokens[3]); err != nil {
			return c, 0, fmt.Errorf("malformed signal length %q", tokens[3])
		}
	}
	if len(tokens) > 4 {
		t, err := parseBaseTime(tokens[4])
		if err != nil {
			return c, 0, err
		}
		c.BaseTime = &t
	}
	if len(tokens) > 5 {
		d, err := time.Parse("02/01/2006", tokens[5])
		if err != nil {
			return c, 0, fmt.Errorf("malformed base date %q", tokens[5])
		}
		c.BaseDate = &d
	}
	return c, nSeg, nil
}

func parseBaseTime(tok string) (time.Time, error) {
	for _, layout := range []string{"15:04:05.999999", "15:04:05", "15:04"} {
		if t, err := time.Parse(layout, tok); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed base time %q", tok)
}

// parseSignalLine parses one signal specification line and appends the
// channel to the record's per-channel fields. Omitted trailing fields
// take their zero values here; applySignalDefaults resolves the
// documented defaults afterwards.
func (r *Record) parseSignalLine(line string) error {
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return fmt.Errorf("signal line needs at least a file name and a format")
	}

	r.FileName = append(r.FileName, tokens[0])

	fm := fmtTokenRE.FindStringSubmatch(tokens[1])
	if fm == nil {
		return fmt.Errorf("malformed format token %q", tokens[1])
	}
	r.Fmt = append(r.Fmt, fm[1])
	spf, skew, offset := 1, 0, 0
	var err error
	if fm[2] != "" {
		if spf, err = strconv.Atoi(fm[2]); err != nil {
			return fmt.Errorf("malformed samples per frame in %q", tokens[1])
		}
	}
	if fm[3] != "" {
		if skew, err = strconv.Atoi(fm[3]); err != nil {
			return fmt.Errorf("malformed skew in %q", tokens[1])
		}
	}
	if fm[4] != "" {
		if offset, err = strconv.Atoi(fm[4]); err != nil {
			return fmt.Errorf("malformed byte offset in %q", tokens[1])
		}
	}
	r.SampsPerFrame = append(r.SampsPerFrame, spf)
	r.Skew = append(r.Skew, skew)
	r.ByteOffset = append(r.ByteOffset, offset)

	gain, units := DefaultGain, ""
	baseline, haveBaseline := 0, false
	if len(tokens) > 2 {
		gm := gainTokenRE.FindStringSubmatch(tokens[2])
		if gm == nil {
			return fmt.Errorf("malformed gain token %q", tokens[2])
		}
		if gain, err = strconv.ParseFloat(gm[1], 64); err != nil {
			return fmt.Errorf("malformed gain %q", gm[1])
		}
		if gain == 0 {
			// A zero gain in the header means "uncalibrated"; the
			// default gain applies.
			gain = DefaultGain
		}
		if gm[2] != "" {
			if baseline, err = strconv.Atoi(gm[2]); err != nil {
				return fmt.Errorf("malformed baseline %q", gm[2])
			}
			haveBaseline = true
		}
		units = gm[3]
	}
	r.ADCGain = append(r.ADCGain, gain)
	r.Baseline = append(r.Baseline, baseline)
	r.baselineSet = append(r.baselineSet, haveBaseline)
	if units == "" {
		units = "mV"
	}
	r.Units = append(r.Units, units)

	intAt := func(i int) (int, error) {
		if len(tokens) <= i {
			return 0, nil
		}
		return strconv.Atoi(tokens[i])
	}
	adcRes, err := intAt(3)
	if err != nil {
		return fmt.Errorf("malformed adc resolution %q", tokens[3])
	}
	adcZero, err := intAt(4)
	if err != nil {
		return fmt.Errorf("malformed adc zero %q", tokens[4])
	}
	initValue, err := intAt(5)
	if err != nil {
		return fmt.Errorf("malformed initial value %q", tokens[5])
	}
	checksum, err := intAt(6)
	if err != nil {
		return fmt.Errorf("malformed checksum %q", tokens[6])
	}
	blockSize, err := intAt(7)
	if err != nil {
		return fmt.Errorf("malformed block size %q", tokens[7])
	}
	r.ADCRes = append(r.ADCRes, adcRes)
	r.ADCZero = append(r.ADCZero, adcZero)
	r.InitValue = append(r.InitValue, initValue)
	r.Checksum = append(r.Checksum, checksum)
	r.BlockSize = append(r.BlockSize, blockSize)

	name := ""
	if len(tokens) > 8 {
		name = strings.Join(tokens[8:], " ")
	}
	r.SigName = append(r.SigName, name)
	return nil
}

// applySignalDefaults resolves per-channel defaults that depend on other
// fields: an omitted baseline equals adc_zero, and unnamed channels get
// positional names.
func (r *Record) applySignalDefaults() {
	named := false
	for ch := range r.FileName {
		if ch < len(r.baselineSet) && !r.baselineSet[ch] {
			r.Baseline[ch] = r.ADCZero[ch]
		}
		if r.SigName[ch] != "" {
			named = true
		}
	}
	if !named {
		r.SigName = nil
	}
	r.baselineSet = nil
}

func parseSegmentLine(line string) (SegmentRef, error) {
	tokens := strings.Fields(line)
	if len(tokens) != 2 {
		return SegmentRef{}, fmt.Errorf("segment line must be a name and a length")
	}
	length, err := strconv.Atoi(tokens[1])
	if err != nil || length < 0 {
		return SegmentRef{}, fmt.Errorf("malformed segment length %q", tokens[1])
	}
	name := tokens[0]
	if name == nullSegmentName {
		name = ""
	}
	return SegmentRef{Name: name, Length: length}, nil
}

// ReadSegmentHeaders loads the header of every non-null segment into
// Records. Segments already loaded are left alone.
func (m *MultiRecord) ReadSegmentHeaders() error {
	for i, seg := range m.Segments {
		if seg.IsNull() || m.Records[i] != nil {
			continue
		}
		child, _, err := ReadHeader(filepath.Join(m.dir, seg.Name))
		if err != nil {
			return fmt.Errorf("segment %d (%s): %w", i, seg.Name, err)
		}
		if child == nil {
			return &FormatError{Path: filepath.Join(m.dir, seg.Name) + ".hea",
				Reason: "segments must be single-segment records"}
		}
		m.Records[i] = child
	}
	return nil
}

// SigNames returns the canonical channel names of the record: the layout
// segment's names for variable layout, the first non-null segment's
// otherwise. Child headers are loaded as needed.
func (m *MultiRecord) SigNames() ([]string, error) {
	idx := -1
	if m.Layout == LayoutVariable {
		idx = 0
	} else {
		for i, seg := range m.Segments {
			if !seg.IsNull() {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return nil, nil
	}
	if m.Records[idx] == nil {
		child, _, err := ReadHeader(filepath.Join(m.dir, m.Segments[idx].Name))
		if err != nil {
			return nil, err
		}
		m.Records[idx] = child
	}
	return m.Records[idx].SigName, nil
}
