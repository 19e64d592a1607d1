package controller

import "fmt"

// ProcessID is the rank of a process within a group, in the range [0, N).
type ProcessID int

// AnyProcess matches messages from any source when passed to a receive
// operation.
const AnyProcess ProcessID = -1

func (id ProcessID) String() string {
	if id == AnyProcess {
		return "any"
	}

	return fmt.Sprintf("%d", int(id))
}

// Tag discriminates the logical channels multiplexed over one transport.
type Tag int

const (
	// RMITag is the tag used to send the header of a remote method
	// invocation.
	RMITag Tag = 1

	// RMIArgTag is the tag used to send the argument of a remote method
	// invocation.
	RMIArgTag Tag = 2

	// BreakRMITag is the RMI tag that causes ProcessRMIs() to return.
	BreakRMITag Tag = 3
)

// IsReserved returns true if t is one of the tags reserved by the controller.
func (t Tag) IsReserved() bool {
	return t == RMITag || t == RMIArgTag || t == BreakRMITag
}

// Status describes a completed receive operation.
type Status struct {
	// Source is the rank of the process that sent the message.
	Source ProcessID

	// Count is the number of elements copied into the receive buffer.
	Count int
}
