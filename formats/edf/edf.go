// Package edf converts between EDF/EDF+ files and WFDB records.
//
// EDF stores 16-bit samples in fixed-duration data records with a
// per-signal sample count, which maps directly onto WFDB frames: one
// data record becomes one frame, and each signal's samples-per-record
// becomes its samples-per-frame.
package edf

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	openpsg "github.com/OpenPSG/edf"

	"github.com/openwfdb/wfdb"
)

// calibration holds the EDF per-signal scaling fields needed to map
// physical values back to the stored digital codes.
type calibration struct {
	label       string
	dimension   string
	physMin     float64
	physMax     float64
	digMin      int
	digMax      int
	samplesPerR int
}

type fileInfo struct {
	patientID   string
	recordingID string
	startTime   time.Time
	records     int
	duration    time.Duration
	signals     []calibration
}

// Import reads an EDF file into a Record carrying expanded digital
// sequences, ready to be written as a WFDB record or converted to
// physical units with Dac.
func Import(path string) (*wfdb.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edf file: %w", err)
	}
	defer f.Close()

	info, err := parseHeader(f)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind edf file: %w", err)
	}
	r, err := openpsg.Open(f)
	if err != nil {
		return nil, fmt.Errorf("parse edf file: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rec := &wfdb.Record{
		CommonFields: wfdb.CommonFields{
			Name:   name,
			NSig:   len(info.signals),
			FS:     float64(time.Second) / float64(info.duration),
			SigLen: info.records,
		},
	}
	if !info.startTime.IsZero() {
		clock := info.startTime
		rec.BaseTime = &clock
		date := time.Date(clock.Year(), clock.Month(), clock.Day(), 0, 0, 0, 0, time.UTC)
		rec.BaseDate = &date
	}
	if info.patientID != "" {
		rec.Comments = append(rec.Comments, "patient: "+info.patientID)
	}
	if info.recordingID != "" {
		rec.Comments = append(rec.Comments, "recording: "+info.recordingID)
	}

	n := len(info.signals)
	rec.FileName = make([]string, n)
	rec.Fmt = make([]string, n)
	rec.SampsPerFrame = make([]int, n)
	rec.Skew = make([]int, n)
	rec.ByteOffset = make([]int, n)
	rec.ADCGain = make([]float64, n)
	rec.Baseline = make([]int, n)
	rec.Units = make([]string, n)
	rec.ADCRes = make([]int, n)
	rec.ADCZero = make([]int, n)
	rec.InitValue = make([]int, n)
	rec.Checksum = make([]int, n)
	rec.BlockSize = make([]int, n)
	rec.SigName = make([]string, n)
	rec.EDSignal = make([][]int32, n)

	for i, sig := range info.signals {
		gain, baseline := sig.wfdbScaling()
		rec.FileName[i] = name + ".dat"
		rec.Fmt[i] = "16"
		rec.SampsPerFrame[i] = sig.samplesPerR
		rec.ADCGain[i] = gain
		rec.Baseline[i] = baseline
		rec.Units[i] = sanitizeToken(sig.dimension, "NU")
		rec.ADCRes[i] = 16
		rec.SigName[i] = sanitizeToken(sig.label, fmt.Sprintf("sig_%d", i))

		sr, err := r.Signal(i)
		if err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
		phys := make([]float64, info.records*sig.samplesPerR)
		read, err := sr.Read(phys)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
		if read != len(phys) {
			return nil, fmt.Errorf("signal %d: truncated after %d of %d samples", i, read, len(phys))
		}
		rec.EDSignal[i] = sig.digitize(phys)
		if len(rec.EDSignal[i]) > 0 {
			rec.InitValue[i] = int(rec.EDSignal[i][0])
		}
	}
	for i, sum := range rec.CalcChecksum(true) {
		rec.Checksum[i] = sum
	}
	return rec, nil
}

// wfdbScaling maps the EDF calibration onto the WFDB affine pair:
// gain in digital codes per physical unit, baseline the code for
// physical zero. Degenerate calibrations fall back to identity.
func (c *calibration) wfdbScaling() (float64, int) {
	if c.digMax == c.digMin || c.physMax == c.physMin {
		return 1, 0
	}
	gain := float64(c.digMax-c.digMin) / (c.physMax - c.physMin)
	baseline := int(math.Round(float64(c.digMin) - c.physMin*gain))
	return gain, baseline
}

// digitize inverts the EDF physical conversion to recover the stored
// 16-bit codes.
func (c *calibration) digitize(phys []float64) []int32 {
	out := make([]int32, len(phys))
	if c.digMax == c.digMin || c.physMax == c.physMin {
		for i, p := range phys {
			out[i] = int32(math.Round(p))
		}
		return out
	}
	scale := float64(c.digMax-c.digMin) / (c.physMax - c.physMin)
	for i, p := range phys {
		out[i] = int32(math.Round((p-c.physMin)*scale)) + int32(c.digMin)
	}
	return out
}

// sanitizeToken makes a free-text EDF field usable as a whitespace-free
// header token.
func sanitizeToken(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return strings.Join(strings.Fields(s), "_")
}

// parseHeader reads the fixed-width EDF header fields the conversion
// needs. Field positions follow the EDF specification: a 256-byte file
// header followed by 256 bytes per signal, each field space-padded.
func parseHeader(f io.Reader) (*fileInfo, error) {
	b := make([]byte, 256)
	if _, err := io.ReadFull(f, b); err != nil {
		return nil, fmt.Errorf("read edf header: %w", err)
	}
	info := &fileInfo{
		patientID:   field(b, 8, 88),
		recordingID: field(b, 88, 168),
	}

	dateStr, timeStr := field(b, 168, 176), field(b, 176, 184)
	if d, err := time.Parse("02.01.06", dateStr); err == nil {
		if t, err := time.Parse("15.04.05", timeStr); err == nil {
			info.startTime = time.Date(d.Year(), d.Month(), d.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		}
	}

	records, err := strconv.Atoi(field(b, 236, 244))
	if err != nil || records < 0 {
		return nil, fmt.Errorf("malformed edf record count %q", field(b, 236, 244))
	}
	info.records = records
	seconds, err := strconv.ParseFloat(field(b, 244, 252), 64)
	if err != nil || seconds <= 0 {
		return nil, fmt.Errorf("malformed edf record duration %q", field(b, 244, 252))
	}
	info.duration = time.Duration(seconds * float64(time.Second))
	count, err := strconv.Atoi(field(b, 252, 256))
	if err != nil || count < 0 {
		return nil, fmt.Errorf("malformed edf signal count %q", field(b, 252, 256))
	}

	info.signals = make([]calibration, count)
	readColumn := func(width int, set func(i int, s string)) error {
		buf := make([]byte, width)
		for i := 0; i < count; i++ {
			if _, err := io.ReadFull(f, buf); err != nil {
				return fmt.Errorf("read edf signal header: %w", err)
			}
			set(i, strings.TrimSpace(string(buf)))
		}
		return nil
	}
	columns := []struct {
		width int
		set   func(i int, s string)
	}{
		{16, func(i int, s string) { info.signals[i].label = s }},
		{80, func(i int, s string) {}}, // transducer type
		{8, func(i int, s string) { info.signals[i].dimension = s }},
		{8, func(i int, s string) { info.signals[i].physMin, _ = strconv.ParseFloat(s, 64) }},
		{8, func(i int, s string) { info.signals[i].physMax, _ = strconv.ParseFloat(s, 64) }},
		{8, func(i int, s string) { info.signals[i].digMin, _ = strconv.Atoi(s) }},
		{8, func(i int, s string) { info.signals[i].digMax, _ = strconv.Atoi(s) }},
		{80, func(i int, s string) {}}, // prefiltering
		{8, func(i int, s string) { info.signals[i].samplesPerR, _ = strconv.Atoi(s) }},
	}
	for _, col := range columns {
		if err := readColumn(col.width, col.set); err != nil {
			return nil, err
		}
	}
	for i, sig := range info.signals {
		if sig.samplesPerR <= 0 {
			return nil, fmt.Errorf("signal %d: malformed samples per record", i)
		}
	}
	return info, nil
}

func field(b []byte, lo, hi int) string {
	return strings.TrimSpace(string(b[lo:hi]))
}

// Export writes a record's physical signal as an EDF file, one frame
// per data record. The record must hold physical samples (PSignal or
// EPSignal).
func Export(path string, rec *wfdb.Record) error {
	expanded := rec.EPSignal != nil
	if rec.PSignal == nil && !expanded {
		return fmt.Errorf("record %s has no physical signal to export", rec.Name)
	}
	if rec.FS <= 0 {
		return fmt.Errorf("record %s has no sampling frequency", rec.Name)
	}

	hdr := openpsg.Header{
		Version:            openpsg.Version0,
		RecordingID:        rec.Name,
		StartTime:          exportStart(rec),
		DataRecords:        rec.SigLen,
		DataRecordDuration: time.Duration(float64(time.Second) / rec.FS),
		SignalCount:        rec.NSig,
	}
	for ch := 0; ch < rec.NSig; ch++ {
		pmin, pmax := physRange(rec, ch, expanded)
		label := fmt.Sprintf("sig_%d", ch)
		if rec.SigName != nil {
			label = rec.SigName[ch]
		}
		dim := ""
		if rec.Units != nil {
			dim = rec.Units[ch]
		}
		spf := 1
		if expanded {
			spf = rec.SampsPerFrame[ch]
		}
		hdr.Signals = append(hdr.Signals, openpsg.SignalHeader{
			Label:             label,
			PhysicalDimension: dim,
			PhysicalMin:       pmin,
			PhysicalMax:       pmax,
			DigitalMin:        math.MinInt16,
			DigitalMax:        math.MaxInt16,
			SamplesPerRecord:  spf,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create edf file: %w", err)
	}
	defer f.Close()
	w, err := openpsg.Create(f, hdr)
	if err != nil {
		return fmt.Errorf("write edf header: %w", err)
	}
	for fr := 0; fr < rec.SigLen; fr++ {
		frame := make([][]float64, rec.NSig)
		for ch := 0; ch < rec.NSig; ch++ {
			if expanded {
				spf := rec.SampsPerFrame[ch]
				frame[ch] = rec.EPSignal[ch][fr*spf : (fr+1)*spf]
			} else {
				frame[ch] = []float64{rec.PSignal[fr][ch]}
			}
		}
		if err := w.WriteRecord(frame); err != nil {
			return fmt.Errorf("write edf record %d: %w", fr, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize edf file: %w", err)
	}
	return nil
}

func exportStart(rec *wfdb.Record) time.Time {
	if rec.BaseDate != nil && rec.BaseTime != nil {
		d, t := *rec.BaseDate, *rec.BaseTime
		return time.Date(d.Year(), d.Month(), d.Day(),
			t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	}
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
}

// physRange finds a channel's physical extremes, widened slightly when
// flat so the EDF calibration stays non-degenerate.
func physRange(rec *wfdb.Record, ch int, expanded bool) (float64, float64) {
	pmin, pmax := math.Inf(1), math.Inf(-1)
	scan := func(v float64) {
		if math.IsNaN(v) {
			return
		}
		pmin = math.Min(pmin, v)
		pmax = math.Max(pmax, v)
	}
	if expanded {
		for _, v := range rec.EPSignal[ch] {
			scan(v)
		}
	} else {
		for _, row := range rec.PSignal {
			scan(row[ch])
		}
	}
	if math.IsInf(pmin, 1) {
		return -1, 1
	}
	if pmin == pmax {
		return pmin - 1, pmax + 1
	}
	return pmin, pmax
}
