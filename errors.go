package wfdb

import "fmt"

// MissingFieldError is returned when a required descriptor field is unset
// before validation or writing.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %s", e.Field)
}

// ShapeError is returned when a field's value has the wrong rank, length,
// or element kind (e.g. a ragged signal matrix, or a per-channel list
// whose length disagrees with the channel count).
type ShapeError struct {
	Field   string
	Channel int // -1 if the problem is not tied to one channel
	Reason  string
}

func (e *ShapeError) Error() string {
	if e.Channel >= 0 {
		return fmt.Sprintf("field %s, channel %d: %s", e.Field, e.Channel, e.Reason)
	}
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

// DomainError is returned when a value lies outside its allowed structural
// range: non-positive rates or gains, negative lengths, invalid format
// codes, out-of-range read bounds, or an incompatible return width.
type DomainError struct {
	Field  string
	Reason string
}

func (e *DomainError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
	}
	return e.Reason
}

// FormatError is returned for malformed header syntax, unsupported sample
// packing, and file-size/length mismatches.
type FormatError struct {
	Path   string
	Line   int // 1-based header line number, 0 if not applicable
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// CohesionError is returned when a record's declared fields disagree with
// the properties of its constituent files or segments: fs or length
// mismatches, or incompatible digital calibration across variable-layout
// segments.
type CohesionError struct {
	Record string
	Reason string
}

func (e *CohesionError) Error() string {
	if e.Record != "" {
		return fmt.Sprintf("record %s: %s", e.Record, e.Reason)
	}
	return e.Reason
}

// Warning represents a non-fatal issue found while reading a record, such
// as a stale header checksum or a channel selection that matched nothing.
// Warnings are collected on the returned descriptor.
type Warning struct {
	// Stage where the warning occurred: "header", "signal", "checksum",
	// "selection".
	Stage string

	Message string
}

// String returns a human-readable warning message.
func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Stage, w.Message)
}
