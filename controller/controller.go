package controller

import (
	"context"
)

// A Controller is the point-to-point and remote-invocation surface shared by
// every component that spans several processes.
//
// A single Controller is created for each process and shared by reference.
// All blocking operations wait until their partner completes or ctx is
// canceled; no operation imposes a timeout of its own.
type Controller interface {
	// LocalProcessID returns the rank of the local process.
	LocalProcessID() ProcessID

	// NumberOfProcesses returns the number of processes in the group.
	NumberOfProcesses() int

	SendInt32s(ctx context.Context, dst ProcessID, tag Tag, data []int32) error
	SendUint64s(ctx context.Context, dst ProcessID, tag Tag, data []uint64) error
	SendBytes(ctx context.Context, dst ProcessID, tag Tag, data []byte) error
	SendFloat32s(ctx context.Context, dst ProcessID, tag Tag, data []float32) error
	SendFloat64s(ctx context.Context, dst ProcessID, tag Tag, data []float64) error

	ReceiveInt32s(ctx context.Context, src ProcessID, tag Tag, buf []int32) (Status, error)
	ReceiveUint64s(ctx context.Context, src ProcessID, tag Tag, buf []uint64) (Status, error)
	ReceiveBytes(ctx context.Context, src ProcessID, tag Tag, buf []byte) (Status, error)
	ReceiveFloat32s(ctx context.Context, src ProcessID, tag Tag, buf []float32) (Status, error)
	ReceiveFloat64s(ctx context.Context, src ProcessID, tag Tag, buf []float64) (Status, error)

	// SendObject sends an arbitrary value to dst.
	//
	// Ownership of v passes to the receiver; the caller must not modify it
	// after SendObject returns.
	SendObject(ctx context.Context, dst ProcessID, tag Tag, v interface{}) error

	// ReceiveObject receives a value sent with SendObject().
	ReceiveObject(ctx context.Context, src ProcessID, tag Tag) (interface{}, Status, error)

	// TriggerRMI invokes the callbacks registered for tag on process dst.
	TriggerRMI(ctx context.Context, dst ProcessID, tag Tag, arg []byte) error

	// TriggerRMIOnAllSatellites invokes the callbacks registered for tag on
	// every process other than the local process.
	TriggerRMIOnAllSatellites(ctx context.Context, tag Tag, arg []byte) error

	// TriggerBreakRMIs causes ProcessRMIs() to return on every other process.
	TriggerBreakRMIs(ctx context.Context) error

	// AddRMI registers fn to be called when an RMI with the given tag is
	// triggered on the local process.
	AddRMI(tag Tag, fn RMIFunc) RMIID

	// RemoveRMI removes the registration with the given ID. It returns false
	// if there is no such registration.
	RemoveRMI(id RMIID) bool

	// RemoveAllRMIs removes every registration for the given tag.
	RemoveAllRMIs(tag Tag)

	// ProcessRMIs dispatches incoming RMIs until a BREAK RMI is received.
	ProcessRMIs(ctx context.Context) error

	// ProcessRMI waits for and dispatches exactly one incoming RMI.
	ProcessRMI(ctx context.Context) error

	// Close releases the underlying communicator.
	Close() error
}
