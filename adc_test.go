package wfdb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDacMatrix(t *testing.T) {
	r := &Record{
		CommonFields: CommonFields{NSig: 2, SigLen: 3},
		Fmt:          []string{"16", "16"},
		ADCGain:      []float64{200, 100},
		Baseline:     []int{0, 1024},
		DSignal: [][]int32{
			{100, 1124},
			{-50, 1024},
			{-32768, 924}, // channel 0 missing
		},
	}
	require.NoError(t, r.Dac(false))
	require.Nil(t, r.DSignal)

	assert.InDelta(t, 0.5, r.PSignal[0][0], 1e-12)
	assert.InDelta(t, 1.0, r.PSignal[0][1], 1e-12)
	assert.InDelta(t, -0.25, r.PSignal[1][0], 1e-12)
	assert.InDelta(t, 0.0, r.PSignal[1][1], 1e-12)
	assert.True(t, math.IsNaN(r.PSignal[2][0]))
	assert.InDelta(t, -1.0, r.PSignal[2][1], 1e-12)
}

func TestAdcRoundTrip(t *testing.T) {
	r := &Record{
		CommonFields: CommonFields{NSig: 1, SigLen: 4},
		Fmt:          []string{"212"},
		ADCGain:      []float64{200},
		Baseline:     []int{12},
		DSignal:      [][]int32{{100}, {-100}, {-2048}, {2047}},
	}
	want := [][]int32{{100}, {-100}, {-2048}, {2047}}

	require.NoError(t, r.Dac(false))
	require.NoError(t, r.Adc(false))
	assert.Equal(t, want, r.DSignal)
}

func TestAdcClamps(t *testing.T) {
	r := &Record{
		CommonFields: CommonFields{NSig: 1, SigLen: 2},
		Fmt:          []string{"80"},
		ADCGain:      []float64{1},
		Baseline:     []int{0},
		PSignal:      [][]float64{{1e6}, {-1e6}},
	}
	require.NoError(t, r.Adc(false))
	assert.Equal(t, [][]int32{{127}, {-127}}, r.DSignal)
}

func TestAdcExpanded(t *testing.T) {
	r := &Record{
		CommonFields:  CommonFields{NSig: 1, SigLen: 2},
		Fmt:           []string{"16"},
		SampsPerFrame: []int{2},
		ADCGain:       []float64{100},
		Baseline:      []int{0},
		EPSignal:      [][]float64{{0.5, math.NaN(), -0.25, 1}},
	}
	require.NoError(t, r.Adc(true))
	assert.Equal(t, [][]int32{{50, -32768, -25, 100}}, r.EDSignal)

	require.NoError(t, r.Dac(true))
	assert.InDelta(t, 0.5, r.EPSignal[0][0], 1e-12)
	assert.True(t, math.IsNaN(r.EPSignal[0][1]))
}

func TestDacRequiresSignal(t *testing.T) {
	r := &Record{}
	var merr *MissingFieldError
	require.ErrorAs(t, r.Dac(false), &merr)
	require.ErrorAs(t, r.Adc(true), &merr)
}

func TestCalcChecksum(t *testing.T) {
	r := &Record{
		CommonFields: CommonFields{NSig: 1},
		DSignal:      [][]int32{{10}, {-10}, {5}},
	}
	assert.Equal(t, []int{5}, r.CalcChecksum(false))

	// The sum wraps at 16 bits.
	r.DSignal = [][]int32{{32767}, {32767}}
	assert.Equal(t, []int{-2}, r.CalcChecksum(false))

	r.EDSignal = [][]int32{{10, -10, 5}, {1, 2, 3}}
	assert.Equal(t, []int{5, 6}, r.CalcChecksum(true))
}

func TestCheckWidthFit(t *testing.T) {
	r := &Record{DSignal: [][]int32{{200}}}
	assert.NoError(t, r.checkWidthFit(16, false))
	assert.Error(t, r.checkWidthFit(8, false))

	r = &Record{PSignal: [][]float64{{1e20}}}
	assert.NoError(t, r.checkWidthFit(64, true))
	assert.Error(t, r.checkWidthFit(32, true))

	r = &Record{PSignal: [][]float64{{70000}}}
	assert.NoError(t, r.checkWidthFit(32, true))
	assert.Error(t, r.checkWidthFit(16, true))

	// NaN is representable at every width.
	r = &Record{PSignal: [][]float64{{math.NaN()}}}
	assert.NoError(t, r.checkWidthFit(16, true))
}
