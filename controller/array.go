package controller

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dogmatiq/tandem/internal/mlog"
)

// elementCodec encodes and decodes one element type of a typed array.
type elementCodec[T any] struct {
	size int
	put  func(binary.ByteOrder, []byte, T)
	get  func(binary.ByteOrder, []byte) T
}

var (
	int32Codec = elementCodec[int32]{
		4,
		func(o binary.ByteOrder, b []byte, v int32) { o.PutUint32(b, uint32(v)) },
		func(o binary.ByteOrder, b []byte) int32 { return int32(o.Uint32(b)) },
	}

	uint64Codec = elementCodec[uint64]{
		8,
		func(o binary.ByteOrder, b []byte, v uint64) { o.PutUint64(b, v) },
		func(o binary.ByteOrder, b []byte) uint64 { return o.Uint64(b) },
	}

	byteCodec = elementCodec[byte]{
		1,
		func(_ binary.ByteOrder, b []byte, v byte) { b[0] = v },
		func(_ binary.ByteOrder, b []byte) byte { return b[0] },
	}

	float32Codec = elementCodec[float32]{
		4,
		func(o binary.ByteOrder, b []byte, v float32) { o.PutUint32(b, math.Float32bits(v)) },
		func(o binary.ByteOrder, b []byte) float32 { return math.Float32frombits(o.Uint32(b)) },
	}

	float64Codec = elementCodec[float64]{
		8,
		func(o binary.ByteOrder, b []byte, v float64) { o.PutUint64(b, math.Float64bits(v)) },
		func(o binary.ByteOrder, b []byte) float64 { return math.Float64frombits(o.Uint64(b)) },
	}
)

// encode returns the binary representation of data in the given byte order.
func (c elementCodec[T]) encode(o binary.ByteOrder, data []T) []byte {
	buf := make([]byte, len(data)*c.size)

	for i, v := range data {
		c.put(o, buf[i*c.size:], v)
	}

	return buf
}

// decode copies as many elements of data into buf as will fit. It returns the
// number of elements in data and the number copied.
func (c elementCodec[T]) decode(o binary.ByteOrder, data []byte, buf []T) (sent, copied int, err error) {
	if len(data)%c.size != 0 {
		return 0, 0, fmt.Errorf(
			"payload of %d byte(s) is not a whole number of %d-byte elements",
			len(data),
			c.size,
		)
	}

	sent = len(data) / c.size
	copied = min(sent, len(buf))

	for i := 0; i < copied; i++ {
		buf[i] = c.get(o, data[i*c.size:])
	}

	return sent, copied, nil
}

func sendArray[T any](
	ctx context.Context,
	p *Process,
	c elementCodec[T],
	op string,
	dst ProcessID,
	tag Tag,
	data []T,
) error {
	order := p.comm.ByteOrder()

	return p.send(
		ctx,
		op,
		dst,
		Message{
			Tag:       tag,
			Data:      c.encode(order, data),
			ByteOrder: order,
		},
	)
}

func receiveArray[T any](
	ctx context.Context,
	p *Process,
	c elementCodec[T],
	op string,
	src ProcessID,
	tag Tag,
	buf []T,
) (Status, error) {
	m, err := p.receive(ctx, op, src, tag)
	if err != nil {
		return Status{}, err
	}

	order := m.ByteOrder
	if order == nil {
		order = p.comm.ByteOrder()
	}

	sent, n, err := c.decode(order, m.Data, buf)
	if err != nil {
		return Status{}, TransportError{"decode", m.Source, tag, err}
	}

	if sent != len(buf) {
		mlog.LogWarning(
			p.logger,
			int(m.Source),
			int(tag),
			SizeMismatchError{m.Source, tag, sent, len(buf)},
		)
	}

	return Status{m.Source, n}, nil
}

// SendInt32s sends an array of 32-bit integers to dst.
func (p *Process) SendInt32s(ctx context.Context, dst ProcessID, tag Tag, data []int32) error {
	return sendArray(ctx, p, int32Codec, "SendInt32s", dst, tag, data)
}

// SendUint64s sends an array of unsigned 64-bit integers to dst.
func (p *Process) SendUint64s(ctx context.Context, dst ProcessID, tag Tag, data []uint64) error {
	return sendArray(ctx, p, uint64Codec, "SendUint64s", dst, tag, data)
}

// SendBytes sends an array of bytes to dst.
func (p *Process) SendBytes(ctx context.Context, dst ProcessID, tag Tag, data []byte) error {
	return sendArray(ctx, p, byteCodec, "SendBytes", dst, tag, data)
}

// SendFloat32s sends an array of single-precision floats to dst.
func (p *Process) SendFloat32s(ctx context.Context, dst ProcessID, tag Tag, data []float32) error {
	return sendArray(ctx, p, float32Codec, "SendFloat32s", dst, tag, data)
}

// SendFloat64s sends an array of double-precision floats to dst.
func (p *Process) SendFloat64s(ctx context.Context, dst ProcessID, tag Tag, data []float64) error {
	return sendArray(ctx, p, float64Codec, "SendFloat64s", dst, tag, data)
}

// ReceiveInt32s receives an array of 32-bit integers into buf.
//
// If the message length differs from len(buf) the smaller number of elements
// is copied and a warning is logged.
func (p *Process) ReceiveInt32s(ctx context.Context, src ProcessID, tag Tag, buf []int32) (Status, error) {
	return receiveArray(ctx, p, int32Codec, "ReceiveInt32s", src, tag, buf)
}

// ReceiveUint64s receives an array of unsigned 64-bit integers into buf.
func (p *Process) ReceiveUint64s(ctx context.Context, src ProcessID, tag Tag, buf []uint64) (Status, error) {
	return receiveArray(ctx, p, uint64Codec, "ReceiveUint64s", src, tag, buf)
}

// ReceiveBytes receives an array of bytes into buf.
func (p *Process) ReceiveBytes(ctx context.Context, src ProcessID, tag Tag, buf []byte) (Status, error) {
	return receiveArray(ctx, p, byteCodec, "ReceiveBytes", src, tag, buf)
}

// ReceiveFloat32s receives an array of single-precision floats into buf.
func (p *Process) ReceiveFloat32s(ctx context.Context, src ProcessID, tag Tag, buf []float32) (Status, error) {
	return receiveArray(ctx, p, float32Codec, "ReceiveFloat32s", src, tag, buf)
}

// ReceiveFloat64s receives an array of double-precision floats into buf.
func (p *Process) ReceiveFloat64s(ctx context.Context, src ProcessID, tag Tag, buf []float64) (Status, error) {
	return receiveArray(ctx, p, float64Codec, "ReceiveFloat64s", src, tag, buf)
}
