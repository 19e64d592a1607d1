package socket

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
)

var (
	// DefaultDialBackoff is the default backoff strategy used while waiting
	// for a lower-ranked peer to start listening.
	//
	// It is overridden by the WithDialBackoff() option.
	DefaultDialBackoff backoff.Strategy = backoff.WithTransforms(
		backoff.Exponential(10*time.Millisecond),
		linger.FullJitter,
		linger.Limiter(0, 1*time.Second),
	)

	// DefaultLogger is the default target for log messages produced by the
	// communicator.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// Option configures the behavior of a socket communicator.
type Option func(*options)

// WithListener returns an option that accepts connections from higher-ranked
// peers on l, instead of listening on the local process's own address.
//
// The communicator takes ownership of l and closes it once every peer has
// connected.
func WithListener(l net.Listener) Option {
	return func(opts *options) {
		opts.Listener = l
	}
}

// WithDialBackoff returns an option that sets the backoff strategy used to
// delay connection attempts to peers that are not yet listening.
//
// If this option is omitted or s is nil, DefaultDialBackoff is used.
func WithDialBackoff(s backoff.Strategy) Option {
	return func(opts *options) {
		opts.DialBackoff = s
	}
}

// WithByteOrder returns an option that sets the byte order the local process
// uses to encode headers and multi-byte elements.
//
// If this option is omitted the native byte order is used.
func WithByteOrder(o binary.ByteOrder) Option {
	return func(opts *options) {
		opts.ByteOrder = o
	}
}

// WithLogger returns an option that sets the target for log messages produced
// by the communicator.
//
// If this option is omitted or l is nil, DefaultLogger is used.
func WithLogger(l logging.Logger) Option {
	return func(opts *options) {
		opts.Logger = l
	}
}

// options is a container for a fully-resolved set of socket options.
type options struct {
	Listener    net.Listener
	DialBackoff backoff.Strategy
	ByteOrder   binary.ByteOrder
	Logger      logging.Logger
}

// resolveOptions returns a fully-populated set of options built from the given
// set of option functions.
func resolveOptions(opts ...Option) *options {
	o := &options{}

	for _, fn := range opts {
		fn(o)
	}

	if o.DialBackoff == nil {
		o.DialBackoff = DefaultDialBackoff
	}

	if o.ByteOrder == nil {
		o.ByteOrder = binary.NativeEndian
	}

	if o.Logger == nil {
		o.Logger = DefaultLogger
	}

	return o
}
