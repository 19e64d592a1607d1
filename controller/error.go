package controller

import (
	"fmt"
)

// ArgumentError indicates that an operation was called with an invalid
// argument, or before a required collaborator was supplied.
//
// The operation has no effect.
type ArgumentError struct {
	Op     string
	Reason string
}

func (e ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument to %s(): %s", e.Op, e.Reason)
}

// ProtocolError indicates that a phase of a multi-step protocol was entered
// out of order.
//
// The operation has no effect.
type ProtocolError struct {
	Op     string
	Reason string
}

func (e ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation in %s(): %s", e.Op, e.Reason)
}

// TransportError indicates that the communicator failed to send or receive a
// message.
//
// It is reported to the immediate caller and is never retried.
type TransportError struct {
	Op    string
	Peer  ProcessID
	Tag   Tag
	Cause error
}

func (e TransportError) Error() string {
	return fmt.Sprintf(
		"unable to %s message with tag %d (peer %s): %s",
		e.Op,
		e.Tag,
		e.Peer,
		e.Cause,
	)
}

// Unwrap returns the underlying cause of the error.
func (e TransportError) Unwrap() error {
	return e.Cause
}

// DispatchError indicates that an RMI was triggered for a tag that has no
// registered callbacks.
type DispatchError struct {
	Source ProcessID
	Tag    Tag
}

func (e DispatchError) Error() string {
	return fmt.Sprintf(
		"no RMI callback registered for tag %d (triggered by process %s)",
		e.Tag,
		e.Source,
	)
}

// SizeMismatchError indicates that the length of a received message differs
// from the capacity of the receive buffer.
//
// It is reported as a warning. The message is truncated to the smaller of the
// two lengths.
type SizeMismatchError struct {
	Source   ProcessID
	Tag      Tag
	Sent     int
	Capacity int
}

func (e SizeMismatchError) Error() string {
	return fmt.Sprintf(
		"message with tag %d from process %s has %d element(s) but the receive buffer holds %d, copied %d",
		e.Tag,
		e.Source,
		e.Sent,
		e.Capacity,
		min(e.Sent, e.Capacity),
	)
}

// RMIErrorCode describes the stage at which an RMI could not be received.
type RMIErrorCode int

const (
	// RMITagError means the RMI header could not be received.
	RMITagError RMIErrorCode = iota + 1

	// RMIArgError means the RMI argument could not be received.
	RMIArgError
)

func (c RMIErrorCode) String() string {
	switch c {
	case RMITagError:
		return "tag"
	case RMIArgError:
		return "argument"
	default:
		return fmt.Sprintf("RMIErrorCode(%d)", int(c))
	}
}

// RMIError is returned by ProcessRMI() and ProcessRMIs() when an incoming RMI
// could not be received.
type RMIError struct {
	Code  RMIErrorCode
	Cause error
}

func (e RMIError) Error() string {
	return fmt.Sprintf("unable to receive RMI %s: %s", e.Code, e.Cause)
}

// Unwrap returns the underlying cause of the error.
func (e RMIError) Unwrap() error {
	return e.Cause
}
