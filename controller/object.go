package controller

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dogmatiq/marshalkit"
)

// MaxObjectSize is the largest marshaled object, in bytes, that SendObject()
// sends and ReceiveObject() accepts.
const MaxObjectSize = 1 << 30

// SendObject sends an arbitrary value to dst.
//
// If the communicator carries objects by reference the value itself is handed
// to the receiver, and the caller must not modify it afterwards. Otherwise it
// is marshaled with the configured marshaler and sent as a length followed by
// the marshaled bytes, both on the same tag.
func (p *Process) SendObject(ctx context.Context, dst ProcessID, tag Tag, v interface{}) error {
	if err := p.checkDestination("SendObject", dst); err != nil {
		return err
	}

	if p.carriesObjects() {
		return p.send(
			ctx,
			"SendObject",
			dst,
			Message{
				Tag:    tag,
				Object: v,
			},
		)
	}

	if p.marshaler == nil {
		return ArgumentError{"SendObject", "no marshaler is configured"}
	}

	pkt, err := p.marshaler.Marshal(v)
	if err != nil {
		return fmt.Errorf("unable to marshal %T: %w", v, err)
	}

	data := encodePacket(pkt)
	if len(data) > MaxObjectSize {
		return ArgumentError{
			"SendObject",
			fmt.Sprintf("%T marshals to %d bytes, the limit is %d", v, len(data), MaxObjectSize),
		}
	}

	if err := p.SendUint64s(ctx, dst, tag, []uint64{uint64(len(data))}); err != nil {
		return err
	}

	return p.SendBytes(ctx, dst, tag, data)
}

// ReceiveObject receives a value sent with SendObject().
func (p *Process) ReceiveObject(ctx context.Context, src ProcessID, tag Tag) (interface{}, Status, error) {
	if err := p.checkSource("ReceiveObject", src); err != nil {
		return nil, Status{}, err
	}

	if p.carriesObjects() {
		m, err := p.receive(ctx, "ReceiveObject", src, tag)
		if err != nil {
			return nil, Status{}, err
		}

		return m.Object, Status{m.Source, 1}, nil
	}

	if p.marshaler == nil {
		return nil, Status{}, ArgumentError{"ReceiveObject", "no marshaler is configured"}
	}

	var size [1]uint64
	s, err := p.ReceiveUint64s(ctx, src, tag, size[:])
	if err != nil {
		return nil, Status{}, err
	}

	if s.Count != 1 {
		return nil, s, TransportError{
			"decode",
			s.Source,
			tag,
			errors.New("object length is missing"),
		}
	}

	if size[0] > MaxObjectSize {
		return nil, s, TransportError{
			"decode",
			s.Source,
			tag,
			fmt.Errorf("object length %d exceeds the limit of %d bytes", size[0], MaxObjectSize),
		}
	}

	// The bytes must come from the same process as the length, even when the
	// caller asked for any source.
	data := make([]byte, size[0])
	s, err = p.ReceiveBytes(ctx, s.Source, tag, data)
	if err != nil {
		return nil, s, err
	}

	pkt, err := decodePacket(data[:s.Count])
	if err != nil {
		return nil, s, TransportError{"decode", s.Source, tag, err}
	}

	v, err := p.marshaler.Unmarshal(pkt)
	if err != nil {
		return nil, s, fmt.Errorf("unable to unmarshal %s: %w", pkt.MediaType, err)
	}

	return v, Status{s.Source, 1}, nil
}

func (p *Process) carriesObjects() bool {
	if c, ok := p.comm.(ObjectCarrier); ok {
		return c.CarriesObjects()
	}

	return false
}

// encodePacket returns the binary representation of a marshaled packet.
//
// The format is the length of the media type as a big-endian uint32, followed
// by the media type, followed by the data.
func encodePacket(p marshalkit.Packet) []byte {
	buf := make([]byte, 4+len(p.MediaType)+len(p.Data))
	binary.BigEndian.PutUint32(buf, uint32(len(p.MediaType)))
	n := copy(buf[4:], p.MediaType)
	copy(buf[4+n:], p.Data)
	return buf
}

// decodePacket parses data produced by encodePacket().
func decodePacket(data []byte) (marshalkit.Packet, error) {
	if len(data) < 4 {
		return marshalkit.Packet{}, errors.New("object packet is too short")
	}

	n := int(binary.BigEndian.Uint32(data))
	data = data[4:]

	if n > len(data) {
		return marshalkit.Packet{}, errors.New("object media-type is truncated")
	}

	return marshalkit.Packet{
		MediaType: string(data[:n]),
		Data:      data[n:],
	}, nil
}
