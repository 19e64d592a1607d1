// Package framestore defines storage for composited frames, such as the
// baselines used by image regression tests.
package framestore

import (
	"context"
	"time"
)

// Frame is a captured composited frame.
type Frame struct {
	// ID uniquely identifies the frame within its store.
	ID string

	// CapturedAt is the time at which the frame was composited.
	CapturedAt time.Time

	Width  int
	Height int

	// FloatColor contains the RGBA color of each pixel, if the frame was
	// composited with floating-point pixels.
	FloatColor []float32 `json:",omitempty"`

	// ByteColor contains the RGBA color of each pixel, if the frame was
	// composited with byte pixels.
	ByteColor []byte `json:",omitempty"`

	// Depth contains the depth of each pixel.
	Depth []float32
}

// Store is a collection of frames.
type Store interface {
	// Save adds f to the store, replacing any frame with the same ID.
	Save(ctx context.Context, f Frame) error

	// Load returns the frame with the given ID. ok is false if there is no
	// such frame.
	Load(ctx context.Context, id string) (f Frame, ok bool, err error)

	// List returns the IDs of the frames in the store, in the order they
	// were captured.
	List(ctx context.Context) ([]string, error)

	// Delete removes the frame with the given ID. It is not an error if
	// there is no such frame.
	Delete(ctx context.Context, id string) error
}
