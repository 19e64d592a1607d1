package composite

import (
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/tandem/framestore"
)

var (
	// DefaultLogger is the default target for log messages produced by a
	// compositor.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// Option configures the behavior of a compositor.
type Option func(*options)

// WithLogger returns an option that sets the target for log messages produced
// by the compositor.
//
// If this option is omitted or l is nil, DefaultLogger is used.
func WithLogger(l logging.Logger) Option {
	return func(opts *options) {
		opts.Logger = l
	}
}

// WithBytePixels returns an option that composites the color channel as
// bytes instead of floats.
//
// Every process in the group must use the same pixel format.
func WithBytePixels() Option {
	return func(opts *options) {
		opts.Format = ByteRGBA
	}
}

// WithCapture returns an option that saves every frame composited on the root
// process to s.
func WithCapture(s framestore.Store) Option {
	return func(opts *options) {
		opts.Capture = s
	}
}

// options is a container for a fully-resolved set of compositor options.
type options struct {
	Logger  logging.Logger
	Format  PixelFormat
	Capture framestore.Store
}

// resolveOptions returns a fully-populated set of options built from the given
// set of option functions.
func resolveOptions(opts ...Option) *options {
	o := &options{}

	for _, fn := range opts {
		fn(o)
	}

	if o.Logger == nil {
		o.Logger = DefaultLogger
	}

	return o
}
