package wfdb

// ReadOption configures the read path of ReadRecord, ReadMultiRecord,
// and ReadSamples.
type ReadOption func(*readOptions)

type readOptions struct {
	sampFrom        int
	sampTo          int // -1 means end of record
	channels        []int
	channelNames    []string
	physical        bool
	smoothFrames    bool
	returnWidth     int
	ignoreSkew      bool
	strictChecksums bool
	keepLayout      bool // keep requested layout channels even if absent from every read segment
	warnEmpty       bool
}

func defaultReadOptions() *readOptions {
	return &readOptions{
		sampFrom:     0,
		sampTo:       -1,
		physical:     true,
		smoothFrames: true,
		returnWidth:  64,
		keepLayout:   true,
	}
}

// WithRange limits the read to frames [from, to). Pass to = -1 to read
// through the end of the record.
func WithRange(from, to int) ReadOption {
	return func(o *readOptions) {
		o.sampFrom = from
		o.sampTo = to
	}
}

// WithChannels selects channels by index. All channels are read by
// default. An empty (non-nil) selection yields a zero-channel result.
func WithChannels(channels ...int) ReadOption {
	return func(o *readOptions) {
		if channels == nil {
			channels = []int{}
		}
		o.channels = channels
	}
}

// WithChannelNames selects channels by signal name, taking precedence
// over WithChannels. Names absent from the record are skipped, not
// errors.
func WithChannelNames(names ...string) ReadOption {
	return func(o *readOptions) {
		o.channelNames = names
	}
}

// Digital returns digital sample values in DSignal instead of converting
// to physical units.
func Digital() ReadOption {
	return func(o *readOptions) {
		o.physical = false
	}
}

// WithoutSmoothing keeps every sample of channels with more than one
// sample per frame, returning the expanded per-channel sequences instead
// of a uniform matrix. Not supported for multi-segment records.
func WithoutSmoothing() ReadOption {
	return func(o *readOptions) {
		o.smoothFrames = false
	}
}

// WithReturnWidth declares the sample width, in bits, the caller intends
// to hold the result in: 64, 32, 16, or 8 (8 for digital only). The read
// fails if any returned sample does not fit the requested width.
func WithReturnWidth(bits int) ReadOption {
	return func(o *readOptions) {
		o.returnWidth = bits
	}
}

// WithIgnoreSkew loads dat file contents unaligned, skipping the
// per-channel skew correction.
func WithIgnoreSkew() ReadOption {
	return func(o *readOptions) {
		o.ignoreSkew = true
	}
}

// WithStrictChecksums turns header checksum mismatches into errors.
// By default they are reported as Warnings, since historical records
// often carry stale checksums.
func WithStrictChecksums() ReadOption {
	return func(o *readOptions) {
		o.strictChecksums = true
	}
}

// KeepLayoutChannels controls variable-layout narrowing. When true (the
// default) the layout segment keeps every requested channel even if no
// read segment contains it; when false, channels absent from every read
// segment are dropped from the result.
func KeepLayoutChannels(keep bool) ReadOption {
	return func(o *readOptions) {
		o.keepLayout = keep
	}
}

// WarnEmpty records a Warning on the result when the channel selection
// matches nothing. An empty selection is never an error either way.
func WarnEmpty() ReadOption {
	return func(o *readOptions) {
		o.warnEmpty = true
	}
}
