package usbdevice

import (
	"time"

	"go.uber.org/zap"
)

// defaultControlTimeout bounds enumeration's own control transfers when the
// caller does not override it with WithControlTimeout.
const defaultControlTimeout = 5 * time.Second

// options holds the functional-options configuration surface, the same
// pattern the teacher uses for NewContext/NewAsyncTransferManager. There is
// no config file: everything configurable here is either a constructor
// argument or one of these options.
type options struct {
	logger         *zap.Logger
	overrideRows   []overrideRow
	controlTimeout time.Duration
}

// Option configures a Device at construction time.
type Option func(*options)

// WithLogger installs a structured logger. A nil logger (the default) is
// equivalent to discarding all log output.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithOverrideTable replaces the default (vid, pid) → configuration
// override table. Implementations that call this are responsible for
// preserving any rows they still want honored; the package default
// (Realtek 0x0BDA:0x8153 → configuration 2) is not implicitly merged in.
func WithOverrideTable(rows []overrideRow) Option {
	return func(o *options) { o.overrideRows = rows }
}

// WithControlTimeout overrides the timeout used for control transfers
// issued internally during enumeration and set_configuration.
func WithControlTimeout(d time.Duration) Option {
	return func(o *options) { o.controlTimeout = d }
}

func newOptions(opts []Option) options {
	o := options{controlTimeout: defaultControlTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// OverrideRow constructs an override table row; exported so callers of
// WithOverrideTable can build tables without reaching into unexported
// fields.
func OverrideRow(vendorID, productID uint16, configuration uint8) overrideRow {
	return overrideRow{vendorID: vendorID, productID: productID, configuration: configuration}
}

// DefaultOverrideTable returns a copy of the built-in baseline table (the
// Realtek 0x0BDA:0x8153 → configuration 2 row plus its terminator), for
// callers that want to extend rather than replace it.
func DefaultOverrideTable() []overrideRow {
	out := make([]overrideRow, len(defaultOverrideTable))
	copy(out, defaultOverrideTable)
	return out
}
