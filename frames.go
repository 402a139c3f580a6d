package wfdb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openwfdb/wfdb/internal/codec"
)

// datGroup describes the block of consecutive channels multiplexed into
// one dat file. Samples are interleaved frame by frame: each frame holds
// SampsPerFrame samples of every channel in file order.
type datGroup struct {
	fileName   string
	fmtCode    string
	byteOffset int
	channels   []int // record channel indices, in file order
	tspf       int   // total samples per frame across the file's channels
}

// datGroups splits the record's channels by dat file. Channels sharing a
// file are consecutive (validated elsewhere), so a simple scan suffices.
func (r *Record) datGroups() []datGroup {
	var groups []datGroup
	for ch := 0; ch < r.NSig; ch++ {
		if len(groups) == 0 || groups[len(groups)-1].fileName != r.FileName[ch] {
			groups = append(groups, datGroup{
				fileName:   r.FileName[ch],
				fmtCode:    r.Fmt[ch],
				byteOffset: r.ByteOffset[ch],
			})
		}
		g := &groups[len(groups)-1]
		g.channels = append(g.channels, ch)
		g.tspf += r.SampsPerFrame[ch]
	}
	return groups
}

// frameOffset returns the position of channel ch's first sample within a
// frame of its dat group.
func (g *datGroup) frameOffset(r *Record, ch int) int {
	off := 0
	for _, c := range g.channels {
		if c == ch {
			return off
		}
		off += r.SampsPerFrame[c]
	}
	return -1
}

// frameCount returns how many whole frames the group's dat file holds.
func (g *datGroup) frameCount(dr *codec.DatReader) (int, error) {
	n, err := codec.SamplesInBytes(g.fmtCode, dr.Size()-int64(g.byteOffset))
	if err != nil {
		return 0, err
	}
	return n / g.tspf, nil
}

// readSignal reads the expanded digital sequences of the selected
// channels over frames [sampFrom, sampTo). The result is ordered like
// channels; entry i has (sampTo-sampFrom)*SampsPerFrame[channels[i]]
// samples. Only the required byte span of each dat file is fetched.
//
// Skew shifts a channel's sequence forward by its skew in frames; frames
// past the end of the file are filled with the format's missing-value
// sentinel. The second result holds each channel's checksum over the
// unshifted stream, which is what a header's declared checksum covers.
func (r *Record) readSignal(sampFrom, sampTo int, channels []int, ignoreSkew bool) ([][]int32, []int, error) {
	out := make([][]int32, len(channels))
	rawSums := make([]int, len(channels))
	pos := make(map[int]int, len(channels))
	for i, ch := range channels {
		pos[ch] = i
	}

	for _, g := range r.datGroups() {
		var wanted []int
		maxSkew := 0
		for _, ch := range g.channels {
			if _, ok := pos[ch]; !ok {
				continue
			}
			wanted = append(wanted, ch)
			if !ignoreSkew && r.Skew[ch] > maxSkew {
				maxSkew = r.Skew[ch]
			}
		}
		if len(wanted) == 0 {
			continue
		}

		path := filepath.Join(r.dir, g.fileName)
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open dat file: %w", err)
		}
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("stat dat file: %w", err)
		}
		dr := codec.NewDatReader(f, stat.Size(), path)

		fileFrames, err := g.frameCount(dr)
		if err != nil {
			f.Close()
			return nil, nil, &FormatError{Path: path, Reason: err.Error()}
		}
		if fileFrames < sampTo {
			f.Close()
			return nil, nil, &FormatError{Path: path,
				Reason: fmt.Sprintf("dat file holds %d frames but %d are needed", fileFrames, sampTo)}
		}

		readTo := sampTo + maxSkew
		if readTo > fileFrames {
			readTo = fileFrames
		}
		nFrames := readTo - sampFrom
		samples, err := codec.ReadRange(g.fmtCode, dr, int64(g.byteOffset),
			sampFrom*g.tspf, nFrames*g.tspf)
		f.Close()
		if err != nil {
			return nil, nil, &FormatError{Path: path, Reason: err.Error()}
		}

		nan := codec.NaNValue(g.fmtCode)
		for _, ch := range wanted {
			spf := r.SampsPerFrame[ch]
			off := g.frameOffset(r, ch)
			skew := 0
			if !ignoreSkew {
				skew = r.Skew[ch]
			}
			seq := make([]int32, (sampTo-sampFrom)*spf)
			var raw int64
			for fr := 0; fr < sampTo-sampFrom; fr++ {
				src := fr + skew
				for j := 0; j < spf; j++ {
					if src < nFrames {
						seq[fr*spf+j] = samples[src*g.tspf+off+j]
					} else {
						seq[fr*spf+j] = nan
					}
					raw += int64(samples[fr*g.tspf+off+j])
				}
			}
			out[pos[ch]] = seq
			rawSums[pos[ch]] = int(int16(raw))
		}
	}
	return out, rawSums, nil
}

// smoothFrames collapses expanded per-channel sequences into a uniform
// frames x channels matrix, averaging each frame's samples per channel.
// A frame containing a missing-value sentinel stays missing. Channels
// with one sample per frame pass through untouched, so smoothing a
// single-rate record is exact.
func smoothFrames(expanded [][]int32, spf []int, nans []int32) [][]int32 {
	if len(expanded) == 0 {
		return nil
	}
	nFrames := len(expanded[0]) / spf[0]
	matrix := make([][]int32, nFrames)
	for fr := range matrix {
		row := make([]int32, len(expanded))
		for ch, seq := range expanded {
			s := spf[ch]
			if s == 1 {
				row[ch] = seq[fr]
				continue
			}
			var sum int64
			missing := false
			for _, v := range seq[fr*s : (fr+1)*s] {
				if v == nans[ch] {
					missing = true
					break
				}
				sum += int64(v)
			}
			if missing {
				row[ch] = nans[ch]
			} else {
				row[ch] = int32(floorDiv(sum, int64(s)))
			}
		}
		matrix[fr] = row
	}
	return matrix
}

// floorDiv divides rounding toward negative infinity, matching the
// integer averaging of the original library.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
