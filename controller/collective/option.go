package collective

import (
	"net"

	"github.com/dogmatiq/dodeca/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	// DefaultLogger is the default target for log messages produced by the
	// communicator.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// Option configures the behavior of a collective communicator.
type Option func(*options)

// WithListener returns an option that serves the local process's endpoint on
// l, instead of listening on its own address.
//
// The communicator takes ownership of l.
func WithListener(l net.Listener) Option {
	return func(opts *options) {
		opts.Listener = l
	}
}

// WithDialOptions returns an option that adds options to the gRPC client
// connections made to each peer.
//
// If no dial options are provided, connections are made without transport
// security.
func WithDialOptions(dialOpts ...grpc.DialOption) Option {
	return func(opts *options) {
		opts.DialOptions = append(opts.DialOptions, dialOpts...)
	}
}

// WithServerOptions returns an option that adds options to the gRPC server
// that receives messages from each peer.
func WithServerOptions(serverOpts ...grpc.ServerOption) Option {
	return func(opts *options) {
		opts.ServerOptions = append(opts.ServerOptions, serverOpts...)
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

// options is a container for a fully-resolved set of collective options.
type options struct {
	Listener      net.Listener
	DialOptions   []grpc.DialOption
	ServerOptions []grpc.ServerOption
	Logger        logging.Logger
}

// resolveOptions returns a fully-populated set of options built from the given
// set of option functions.
func resolveOptions(opts ...Option) *options {
	o := &options{}

	for _, fn := range opts {
		fn(o)
	}

	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		}
	}

	if o.Logger == nil {
		o.Logger = DefaultLogger
	}

	return o
}
