package controller

import (
	"reflect"

	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/marshalkit/codec"
	"github.com/dogmatiq/marshalkit/codec/json"
	"github.com/dogmatiq/marshalkit/codec/protobuf"
)

// NewDefaultMarshaler returns a marshaler for use with WithMarshaler() that
// supports the given types.
//
// Protocol Buffers messages use their native binary encoding. All other types
// are encoded as JSON.
func NewDefaultMarshaler(types ...reflect.Type) marshalkit.ValueMarshaler {
	m, err := codec.NewMarshaler(
		types,
		[]codec.Codec{
			&protobuf.DefaultNativeCodec,
			&json.Codec{},
		},
	)
	if err != nil {
		panic(err)
	}

	return m
}
