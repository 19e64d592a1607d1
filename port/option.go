package port

import (
	"github.com/dogmatiq/dodeca/logging"
)

var (
	// DefaultLogger is the default target for log messages produced by a
	// port.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// Option configures the behavior of a port.
type Option func(*options)

// WithLogger returns an option that sets the target for log messages produced
// by the port.
//
// If this option is omitted or l is nil, DefaultLogger is used.
func WithLogger(l logging.Logger) Option {
	return func(opts *options) {
		opts.Logger = l
	}
}

// WithPipelineParallel returns an option that causes an output port to answer
// each update request with the output it produced for the previous request,
// then produce the next output while the consumer processes it.
//
// It has no effect on input ports.
func WithPipelineParallel() Option {
	return func(opts *options) {
		opts.PipelineParallel = true
	}
}

// options is a container for a fully-resolved set of port options.
type options struct {
	Logger           logging.Logger
	PipelineParallel bool
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
