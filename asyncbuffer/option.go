package asyncbuffer

import "github.com/dogmatiq/dodeca/logging"

var (
	// DefaultLogger is the default target for log messages produced by a
	// buffer.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// Option configures the behavior of a buffer.
type Option func(*options)

// WithBlocking returns an option that sets whether the buffer is blocking.
//
// A blocking buffer behaves exactly like the stage it wraps. A non-blocking
// buffer produces output in the background and hands it to downstream stages
// once it is complete. Buffers are non-blocking by default.
func WithBlocking(b bool) Option {
	return func(opts *options) {
		opts.Blocking = b
	}
}

// WithLogger returns an option that sets the target for log messages produced
// by the buffer.
//
// If this option is omitted or l is nil, DefaultLogger is used.
func WithLogger(l logging.Logger) Option {
	return func(opts *options) {
		opts.Logger = l
	}
}

// options is a container for a fully-resolved set of buffer options.
type options struct {
	Blocking bool
	Logger   logging.Logger
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
