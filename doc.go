// Package wfdb reads and writes WFDB records: physiological waveform
// recordings stored as a text header (.hea) alongside binary signal
// (.dat) files, the container used by PhysioNet databases.
//
// ReadRecord opens a record by path and returns its descriptor fields
// and samples in one Record:
//
//	rec, err := wfdb.ReadRecord("data/100", wfdb.WithRange(0, 1000))
//
// Samples arrive as a frames x channels physical matrix by default;
// Digital, WithoutSmoothing, and the channel selection options choose
// other representations. ReadSamples is the shortcut when only the
// physical matrix and basic descriptors are wanted, and ReadMultiRecord
// exposes the segment structure of multi-segment records that ReadRecord
// would flatten.
//
// Writing goes the other way: fill a Record's descriptor and signal
// fields and call Write, or hand a physical matrix to WriteSamples and
// let the library fit the storage parameters.
package wfdb
