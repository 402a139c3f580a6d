package wfdb

import (
	"fmt"
	"math"

	"github.com/openwfdb/wfdb/internal/codec"
)

// Dac converts the record's digital signal to physical units in place:
// physical = (digital - baseline) / gain, with each format's
// missing-value sentinel mapping to NaN. With expanded set, EDSignal is
// converted to EPSignal; otherwise DSignal to PSignal. The digital
// representation is released afterwards.
func (r *Record) Dac(expanded bool) error {
	if expanded {
		if r.EDSignal == nil {
			return &MissingFieldError{Field: FieldEDSignal.String()}
		}
		r.EPSignal = make([][]float64, len(r.EDSignal))
		for ch, seq := range r.EDSignal {
			nan := codec.NaNValue(r.Fmt[ch])
			out := make([]float64, len(seq))
			for i, d := range seq {
				if d == nan {
					out[i] = math.NaN()
				} else {
					out[i] = (float64(d) - float64(r.Baseline[ch])) / r.ADCGain[ch]
				}
			}
			r.EPSignal[ch] = out
		}
		r.EDSignal = nil
		return nil
	}

	if r.DSignal == nil {
		return &MissingFieldError{Field: FieldDSignal.String()}
	}
	nans := make([]int32, r.NSig)
	for ch := 0; ch < r.NSig; ch++ {
		nans[ch] = codec.NaNValue(r.Fmt[ch])
	}
	r.PSignal = make([][]float64, len(r.DSignal))
	for i, row := range r.DSignal {
		out := make([]float64, len(row))
		for ch, d := range row {
			if d == nans[ch] {
				out[ch] = math.NaN()
			} else {
				out[ch] = (float64(d) - float64(r.Baseline[ch])) / r.ADCGain[ch]
			}
		}
		r.PSignal[i] = out
	}
	r.DSignal = nil
	return nil
}

// Adc converts the record's physical signal to digital codes in place:
// digital = round(physical * gain) + baseline, clamped to the format's
// representable range, with NaN mapping to the format's missing-value
// sentinel.
func (r *Record) Adc(expanded bool) error {
	if expanded {
		if r.EPSignal == nil {
			return &MissingFieldError{Field: FieldEPSignal.String()}
		}
		r.EDSignal = make([][]int32, len(r.EPSignal))
		for ch, seq := range r.EPSignal {
			spec, err := codec.Describe(r.Fmt[ch])
			if err != nil {
				return &DomainError{Field: FieldFmt.String(), Reason: err.Error()}
			}
			out := make([]int32, len(seq))
			for i, p := range seq {
				out[i] = adcSample(p, r.ADCGain[ch], r.Baseline[ch], spec)
			}
			r.EDSignal[ch] = out
		}
		r.EPSignal = nil
		return nil
	}

	if r.PSignal == nil {
		return &MissingFieldError{Field: FieldPSignal.String()}
	}
	specs := make([]codec.Spec, r.NSig)
	for ch := 0; ch < r.NSig; ch++ {
		spec, err := codec.Describe(r.Fmt[ch])
		if err != nil {
			return &DomainError{Field: FieldFmt.String(), Reason: err.Error()}
		}
		specs[ch] = spec
	}
	r.DSignal = make([][]int32, len(r.PSignal))
	for i, row := range r.PSignal {
		out := make([]int32, len(row))
		for ch, p := range row {
			out[ch] = adcSample(p, r.ADCGain[ch], r.Baseline[ch], specs[ch])
		}
		r.DSignal[i] = out
	}
	r.PSignal = nil
	return nil
}

func adcSample(p, gain float64, baseline int, spec codec.Spec) int32 {
	if math.IsNaN(p) {
		return spec.NaN
	}
	d := math.Round(p*gain) + float64(baseline)
	if d < float64(spec.Min) {
		return spec.Min
	}
	if d > float64(spec.Max) {
		return spec.Max
	}
	return int32(d)
}

// CalcChecksum returns the 16-bit rolling checksum of each channel: the
// sum of its digital samples modulo 65536, interpreted as a signed
// 16-bit value the way header files store it.
func (r *Record) CalcChecksum(expanded bool) []int {
	if expanded {
		sums := make([]int, len(r.EDSignal))
		for ch, seq := range r.EDSignal {
			var total int64
			for _, v := range seq {
				total += int64(v)
			}
			sums[ch] = int(int16(total))
		}
		return sums
	}
	if len(r.DSignal) == 0 {
		return make([]int, r.NSig)
	}
	sums := make([]int, len(r.DSignal[0]))
	for _, row := range r.DSignal {
		for ch, v := range row {
			sums[ch] = int(int16(int64(sums[ch]) + int64(v)))
		}
	}
	return sums
}

// checkWidthFit verifies that every sample fits the caller's requested
// return width. Digital signals may request 8, 16, 32, or 64 bits;
// physical signals 16 (half precision range), 32, or 64.
func (r *Record) checkWidthFit(width int, physical bool) error {
	if physical {
		var limit float64
		switch width {
		case 64:
			return nil
		case 32:
			limit = math.MaxFloat32
		case 16:
			limit = 65504 // largest finite half-precision value
		}
		check := func(v float64) error {
			if !math.IsNaN(v) && math.Abs(v) > limit {
				return &DomainError{Reason: fmt.Sprintf("sample %g does not fit a %d-bit float", v, width)}
			}
			return nil
		}
		for _, row := range r.PSignal {
			for _, v := range row {
				if err := check(v); err != nil {
					return err
				}
			}
		}
		for _, seq := range r.EPSignal {
			for _, v := range seq {
				if err := check(v); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if width >= 32 {
		return nil
	}
	var lo, hi int32
	if width == 16 {
		lo, hi = math.MinInt16, math.MaxInt16
	} else {
		lo, hi = math.MinInt8, math.MaxInt8
	}
	check := func(v int32) error {
		if v < lo || v > hi {
			return &DomainError{Reason: fmt.Sprintf("sample %d does not fit a %d-bit integer", v, width)}
		}
		return nil
	}
	for _, row := range r.DSignal {
		for _, v := range row {
			if err := check(v); err != nil {
				return err
			}
		}
	}
	for _, seq := range r.EDSignal {
		for _, v := range seq {
			if err := check(v); err != nil {
				return err
			}
		}
	}
	return nil
}
