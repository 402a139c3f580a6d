// Package wav converts between PCM WAV files and WFDB records.
//
// WAV carries no calibration, so imported channels get a unit gain
// scale: gain 2^(bits-1), baseline 0, units "NU". Sample codes move
// unchanged, with 8-bit audio rebased from unsigned to the offset
// representation WFDB format 80 stores.
package wav

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	goaudiowav "github.com/go-audio/wav"

	"github.com/openwfdb/wfdb"
)

// fmtForBits maps PCM bit depths to the dat format of matching width.
var fmtForBits = map[int]string{8: "80", 16: "16", 24: "24", 32: "32"}

// bitsForFmt is the reverse mapping used on export; the 16-bit variant
// formats all carry 16-bit samples.
var bitsForFmt = map[string]int{"80": 8, "16": 16, "61": 16, "160": 16, "24": 24, "32": 32}

// Import reads a PCM WAV file into a digital Record, one channel per
// WAV channel.
func Import(path string) (*wfdb.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav file: %w", err)
	}
	defer f.Close()

	d := goaudiowav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav data: %w", err)
	}
	bits := int(d.BitDepth)
	code, ok := fmtForBits[bits]
	if !ok {
		return nil, fmt.Errorf("unsupported wav bit depth %d", bits)
	}
	nch := buf.Format.NumChannels
	if nch < 1 {
		return nil, fmt.Errorf("wav file reports %d channels", nch)
	}
	frames := len(buf.Data) / nch

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rec := &wfdb.Record{
		CommonFields: wfdb.CommonFields{
			Name:   name,
			NSig:   nch,
			FS:     float64(buf.Format.SampleRate),
			SigLen: frames,
		},
	}
	rec.FileName = make([]string, nch)
	rec.Fmt = make([]string, nch)
	rec.SampsPerFrame = make([]int, nch)
	rec.Skew = make([]int, nch)
	rec.ByteOffset = make([]int, nch)
	rec.ADCGain = make([]float64, nch)
	rec.Baseline = make([]int, nch)
	rec.Units = make([]string, nch)
	rec.ADCRes = make([]int, nch)
	rec.ADCZero = make([]int, nch)
	rec.InitValue = make([]int, nch)
	rec.Checksum = make([]int, nch)
	rec.BlockSize = make([]int, nch)
	rec.SigName = make([]string, nch)
	for ch := 0; ch < nch; ch++ {
		rec.FileName[ch] = name + ".dat"
		rec.Fmt[ch] = code
		rec.SampsPerFrame[ch] = 1
		rec.ADCGain[ch] = float64(int64(1) << (bits - 1))
		rec.Units[ch] = "NU"
		rec.ADCRes[ch] = bits
		rec.SigName[ch] = fmt.Sprintf("ch_%d", ch)
	}

	rec.DSignal = make([][]int32, frames)
	for fr := 0; fr < frames; fr++ {
		row := make([]int32, nch)
		for ch := 0; ch < nch; ch++ {
			v := int32(buf.Data[fr*nch+ch])
			if bits == 8 {
				// WAV 8-bit PCM is unsigned.
				v -= 128
			}
			row[ch] = v
		}
		rec.DSignal[fr] = row
	}
	if frames > 0 {
		for ch, sum := range rec.CalcChecksum(false) {
			rec.Checksum[ch] = sum
			rec.InitValue[ch] = int(rec.DSignal[0][ch])
		}
	}
	return rec, nil
}

// Export writes a record's digital matrix as a PCM WAV file. Every
// channel must use the same bit depth, and the sampling frequency is
// rounded to a whole number of Hertz.
func Export(path string, rec *wfdb.Record) error {
	if rec.DSignal == nil {
		return fmt.Errorf("record %s has no digital matrix to export", rec.Name)
	}
	if rec.NSig == 0 || rec.SigLen == 0 {
		return fmt.Errorf("record %s is empty", rec.Name)
	}
	bits, ok := bitsForFmt[rec.Fmt[0]]
	if !ok {
		return fmt.Errorf("format %s has no wav equivalent", rec.Fmt[0])
	}
	for ch := 1; ch < rec.NSig; ch++ {
		if bitsForFmt[rec.Fmt[ch]] != bits {
			return fmt.Errorf("channels mix %d-bit and %d-bit formats", bits, bitsForFmt[rec.Fmt[ch]])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer f.Close()

	rate := int(math.Round(rec.FS))
	e := goaudiowav.NewEncoder(f, rate, bits, rec.NSig, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: rec.NSig, SampleRate: rate},
		Data:           make([]int, rec.SigLen*rec.NSig),
		SourceBitDepth: bits,
	}
	for fr, row := range rec.DSignal {
		for ch, v := range row {
			if bits == 8 {
				v += 128
			}
			buf.Data[fr*rec.NSig+ch] = int(v)
		}
	}
	if err := e.Write(buf); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	if err := e.Close(); err != nil {
		return fmt.Errorf("finalize wav file: %w", err)
	}
	return nil
}
