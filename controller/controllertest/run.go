package controllertest

import (
	"context"
	"reflect"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/controller/memory"
)

// NewMarshaler returns the default marshaler, supporting values of the same
// types as the given values.
func NewMarshaler(values ...interface{}) marshalkit.ValueMarshaler {
	types := make([]reflect.Type, len(values))

	for i, v := range values {
		types[i] = reflect.TypeOf(v)
	}

	return controller.NewDefaultMarshaler(types...)
}

// Run runs fn on each process of an in-memory group of n processes.
//
// Log messages are discarded unless a logger option is given.
func Run(
	ctx context.Context,
	n int,
	fn func(context.Context, *controller.Process) error,
	opts ...controller.Option,
) error {
	opts = append(
		[]controller.Option{
			controller.WithLogger(logging.DiscardLogger{}),
		},
		opts...,
	)

	return memory.NewGroup(n).Run(ctx, fn, opts...)
}
