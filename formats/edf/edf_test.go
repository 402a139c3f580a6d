package edf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	openpsg "github.com/OpenPSG/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwfdb/wfdb"
)

func writeTestEDF(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	hdr := openpsg.Header{
		Version:            openpsg.Version0,
		PatientID:          "Patient X",
		RecordingID:        "overnight study",
		StartTime:          time.Date(2021, 3, 4, 23, 30, 0, 0, time.UTC),
		DataRecordDuration: time.Second,
		SignalCount:        2,
		Signals: []openpsg.SignalHeader{
			{
				Label:             "EEG Fpz-Cz",
				PhysicalDimension: "uV",
				PhysicalMin:       -250,
				PhysicalMax:       250,
				DigitalMin:        -2048,
				DigitalMax:        2047,
				SamplesPerRecord:  2,
			},
			{
				Label:             "Resp",
				PhysicalDimension: "L",
				PhysicalMin:       -1,
				PhysicalMax:       1,
				DigitalMin:        -32768,
				DigitalMax:        32767,
				SamplesPerRecord:  1,
			},
		},
	}
	w, err := openpsg.Create(f, hdr)
	require.NoError(t, err)
	records := [][][]float64{
		{{10, -10}, {0.5}},
		{{100, -100}, {-0.5}},
		{{0, 250}, {0}},
	}
	for _, rec := range records {
		require.NoError(t, w.WriteRecord(rec))
	}
	require.NoError(t, w.Close())
}

func TestImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.edf")
	writeTestEDF(t, path)

	rec, err := Import(path)
	require.NoError(t, err)

	assert.Equal(t, "study", rec.Name)
	assert.Equal(t, 2, rec.NSig)
	assert.Equal(t, 3, rec.SigLen)
	assert.Equal(t, 1.0, rec.FS)
	assert.Equal(t, []int{2, 1}, rec.SampsPerFrame)
	assert.Equal(t, []string{"EEG_Fpz-Cz", "Resp"}, rec.SigName)
	assert.Equal(t, []string{"uV", "L"}, rec.Units)
	assert.Equal(t, []string{"16", "16"}, rec.Fmt)
	assert.Contains(t, rec.Comments, "patient: Patient X")
	require.NotNil(t, rec.BaseTime)
	assert.Equal(t, 23, rec.BaseTime.Hour())
	require.NotNil(t, rec.BaseDate)
	assert.Equal(t, 2021, rec.BaseDate.Year())

	require.Len(t, rec.EDSignal[0], 6)
	require.Len(t, rec.EDSignal[1], 3)

	// The stored codes survive the physical round trip to within the
	// writer's quantization step.
	require.NoError(t, rec.Dac(true))
	quantum := 500.0 / 4095
	assert.InDelta(t, 10, rec.EPSignal[0][0], 2*quantum)
	assert.InDelta(t, -100, rec.EPSignal[0][3], 2*quantum)
	assert.InDelta(t, 0.5, rec.EPSignal[1][0], 2.0*2/65535)
}

func TestImportedRecordWritesAsWFDB(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.edf")
	writeTestEDF(t, path)

	rec, err := Import(path)
	require.NoError(t, err)
	require.NoError(t, rec.Write(dir))

	read, err := wfdb.ReadRecord(filepath.Join(dir, "study"),
		wfdb.Digital(), wfdb.WithoutSmoothing())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, read.SampsPerFrame)
	require.Len(t, read.EDSignal[0], 6)
}

func TestExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(0, 1, 1, 8, 15, 0, 0, time.UTC)
	date := time.Date(2019, 11, 2, 0, 0, 0, 0, time.UTC)
	rec := &wfdb.Record{
		CommonFields: wfdb.CommonFields{
			Name: "hr", NSig: 1, FS: 4, SigLen: 5,
			BaseTime: &base, BaseDate: &date,
		},
		Units:   []string{"mV"},
		SigName: []string{"ecg"},
		PSignal: [][]float64{{0.1}, {0.2}, {-0.1}, {0.4}, {0.0}},
	}
	path := filepath.Join(dir, "hr.edf")
	require.NoError(t, Export(path, rec))

	got, err := Import(path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NSig)
	assert.Equal(t, 5, got.SigLen)
	assert.Equal(t, []string{"ecg"}, got.SigName)

	require.NoError(t, got.Dac(true))
	quantum := 0.5 / 65535
	for i, want := range []float64{0.1, 0.2, -0.1, 0.4, 0.0} {
		assert.InDelta(t, want, got.EPSignal[0][i], 3*quantum, "sample %d", i)
	}
}

func TestExportRequiresPhysical(t *testing.T) {
	rec := &wfdb.Record{CommonFields: wfdb.CommonFields{Name: "d", FS: 1, SigLen: 1}}
	assert.Error(t, Export(filepath.Join(t.TempDir(), "d.edf"), rec))
}

func TestImportRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.edf")
	require.NoError(t, os.WriteFile(path, []byte("definitely not edf"), 0o644))
	_, err := Import(path)
	assert.Error(t, err)
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "EEG_Fpz-Cz", sanitizeToken(" EEG Fpz-Cz ", "x"))
	assert.Equal(t, "x", sanitizeToken("   ", "x"))
}

func TestCalibrationScaling(t *testing.T) {
	c := &calibration{physMin: -1, physMax: 1, digMin: -32768, digMax: 32767}
	gain, baseline := c.wfdbScaling()
	assert.InDelta(t, 32767.5, gain, 1e-9)
	assert.Equal(t, -1, baseline)

	codes := c.digitize([]float64{0, 1, -1})
	assert.Equal(t, []int32{0, 32767, -32768}, codes)

	degenerate := &calibration{physMin: 1, physMax: 1}
	gain, baseline = degenerate.wfdbScaling()
	assert.Equal(t, 1.0, gain)
	assert.Equal(t, 0, baseline)
}
