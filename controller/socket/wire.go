package socket

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dogmatiq/iago/must"
	"github.com/dogmatiq/tandem/controller"
)

const (
	// littleEndian is the handshake flag sent by a little-endian process.
	littleEndian byte = 0

	// bigEndian is the handshake flag sent by a big-endian process.
	bigEndian byte = 1

	// frameHeaderSize is the size of the tag and byte count that precede
	// each payload.
	frameHeaderSize = 8

	// maxPayloadSize is the largest payload accepted in a single frame.
	maxPayloadSize = controller.MaxObjectSize
)

// endiannessFlag returns the handshake flag for the byte order o.
func endiannessFlag(o binary.ByteOrder) byte {
	var b [2]byte
	o.PutUint16(b[:], 1)

	if b[0] == 1 {
		return littleEndian
	}

	return bigEndian
}

// byteOrderFor returns the byte order described by a handshake flag.
func byteOrderFor(f byte) (binary.ByteOrder, error) {
	switch f {
	case littleEndian:
		return binary.LittleEndian, nil
	case bigEndian:
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("invalid endianness flag in handshake: %#02x", f)
	}
}

// writeFrame writes a single frame to w.
//
// A frame is the 4-byte tag followed by the payload, which is a 4-byte byte
// count followed by the data. Both integers are written in byte order o.
func writeFrame(w io.Writer, o binary.ByteOrder, tag controller.Tag, data []byte) (err error) {
	defer must.Recover(&err)

	if len(data) > maxPayloadSize {
		return fmt.Errorf("payload of %d bytes is too large", len(data))
	}

	buf := make([]byte, frameHeaderSize+len(data))
	o.PutUint32(buf[0:], uint32(tag))
	o.PutUint32(buf[4:], uint32(len(data)))
	copy(buf[frameHeaderSize:], data)

	must.Write(w, buf)

	return nil
}

// readFrame reads a single frame written in byte order o from r.
func readFrame(r io.Reader, o binary.ByteOrder) (controller.Tag, []byte, error) {
	var header [frameHeaderSize]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	tag := controller.Tag(int32(o.Uint32(header[0:])))

	size := o.Uint32(header[4:])
	if size > maxPayloadSize {
		return 0, nil, fmt.Errorf("frame with tag %d has a payload of %d bytes, the limit is %d", tag, size, maxPayloadSize)
	}

	data := make([]byte, size)

	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, err
	}

	return tag, data, nil
}
