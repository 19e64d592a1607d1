package controller

import (
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/marshalkit"
)

var (
	// DefaultLogger is the default target for log messages produced by a
	// process controller.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// Option configures the behavior of a process controller.
type Option func(*options)

// WithLogger returns an option that sets the target for log messages produced
// by the controller.
//
// If this option is omitted or l is nil DefaultLogger is used.
func WithLogger(l logging.Logger) Option {
	return func(opts *options) {
		opts.Logger = l
	}
}

// WithMarshaler returns an option that sets the marshaler used to encode the
// values passed to SendObject() when the communicator cannot carry them by
// reference.
//
// If this option is omitted, SendObject() and ReceiveObject() fail with an
// ArgumentError on such communicators.
func WithMarshaler(m marshalkit.ValueMarshaler) Option {
	return func(opts *options) {
		opts.Marshaler = m
	}
}

// options is a container for a fully-resolved set of controller options.
type options struct {
	Logger    logging.Logger
	Marshaler marshalkit.ValueMarshaler
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
