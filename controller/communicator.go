package controller

import (
	"context"
	"encoding/binary"
)

// Communicator is the transport-specific part of a controller.
//
// Each backend (in-process, socket, process-group) provides an implementation.
// Communicators must deliver messages at most once, and in FIFO order within
// each (sender, receiver, tag) triple.
type Communicator interface {
	// LocalProcessID returns the rank of the local process.
	LocalProcessID() ProcessID

	// NumberOfProcesses returns the number of processes in the group.
	NumberOfProcesses() int

	// ByteOrder returns the byte order used by the local process to encode
	// multi-byte elements.
	ByteOrder() binary.ByteOrder

	// SendMessage sends m to dst. It blocks until the message has been
	// handed to the transport (or the receiver, for rendezvous transports).
	SendMessage(ctx context.Context, dst ProcessID, m Message) error

	// ReceiveMessage blocks until a message with the given tag arrives from
	// src, which may be AnyProcess.
	ReceiveMessage(ctx context.Context, src ProcessID, tag Tag) (Message, error)

	// Close releases any resources held by the communicator.
	Close() error
}

// ObjectCarrier is an optional interface implemented by communicators that
// can hand values to the receiver by reference, without marshaling.
type ObjectCarrier interface {
	// CarriesObjects returns true if Message.Object is delivered as-is.
	CarriesObjects() bool
}

// Message is a unit of data exchanged by communicators.
type Message struct {
	// Tag is the logical channel of the message.
	Tag Tag

	// Source is the rank of the sending process. It is populated by the
	// receiving communicator.
	Source ProcessID

	// Data is the encoded payload.
	Data []byte

	// ByteOrder is the order the sender used to encode multi-byte elements
	// within Data. It is populated by the receiving communicator.
	ByteOrder binary.ByteOrder

	// Object is a value handed over by reference. It is only used by
	// communicators that implement ObjectCarrier.
	Object interface{}
}
