// Package controllertest contains utilities for testing code that uses a
// controller.
package controllertest

import (
	"context"
	"sync"

	"github.com/dogmatiq/tandem/controller"
)

// Recorder is a controller.Communicator that records every message sent and
// received via another communicator.
type Recorder struct {
	controller.Communicator

	m        sync.Mutex
	sent     []Record
	received []Record
}

// Record describes one message that passed through a Recorder.
type Record struct {
	Peer controller.ProcessID
	Tag  controller.Tag
	Size int
}

var (
	_ controller.Communicator  = (*Recorder)(nil)
	_ controller.ObjectCarrier = (*Recorder)(nil)
)

// NewRecorder returns a recorder that forwards to c.
func NewRecorder(c controller.Communicator) *Recorder {
	return &Recorder{Communicator: c}
}

// CarriesObjects returns true if the underlying communicator carries objects
// by reference.
func (r *Recorder) CarriesObjects() bool {
	if c, ok := r.Communicator.(controller.ObjectCarrier); ok {
		return c.CarriesObjects()
	}

	return false
}

// SendMessage records m and forwards it to the underlying communicator.
func (r *Recorder) SendMessage(ctx context.Context, dst controller.ProcessID, m controller.Message) error {
	r.m.Lock()
	r.sent = append(r.sent, Record{dst, m.Tag, len(m.Data)})
	r.m.Unlock()

	return r.Communicator.SendMessage(ctx, dst, m)
}

// ReceiveMessage receives a message from the underlying communicator and
// records it.
func (r *Recorder) ReceiveMessage(ctx context.Context, src controller.ProcessID, tag controller.Tag) (controller.Message, error) {
	m, err := r.Communicator.ReceiveMessage(ctx, src, tag)
	if err != nil {
		return m, err
	}

	r.m.Lock()
	r.received = append(r.received, Record{m.Source, m.Tag, len(m.Data)})
	r.m.Unlock()

	return m, nil
}

// Sent returns the messages sent so far.
func (r *Recorder) Sent() []Record {
	r.m.Lock()
	defer r.m.Unlock()

	return append([]Record(nil), r.sent...)
}

// Received returns the messages received so far.
func (r *Recorder) Received() []Record {
	r.m.Lock()
	defer r.m.Unlock()

	return append([]Record(nil), r.received...)
}

// Calls returns the total number of messages sent and received.
func (r *Recorder) Calls() int {
	r.m.Lock()
	defer r.m.Unlock()

	return len(r.sent) + len(r.received)
}
