// Package pipeline defines the contract between the stages of a data-flow
// pipeline.
//
// A stage is updated in two phases. UpdateInformation() reports what the
// stage would produce, including its pipeline time, without producing it.
// Update() produces the requested part of the output. Comparing pipeline
// times lets a consumer detect that its copy of an output is stale without
// transferring the output itself.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Time is a modification time. Times are totally ordered within one process
// and increase monotonically.
type Time uint64

var clock atomic.Uint64

// Now returns a modification time that is later than any time previously
// returned.
func Now() Time {
	return Time(clock.Add(1))
}

// Extent describes the part of an output that is requested from a stage.
type Extent struct {
	Piece          int
	NumberOfPieces int
	GhostLevel     int
}

// WholeExtent is the extent that requests the entire output as one piece.
var WholeExtent = Extent{Piece: 0, NumberOfPieces: 1}

func (e Extent) String() string {
	return fmt.Sprintf("piece %d/%d (ghost level %d)", e.Piece, e.NumberOfPieces, e.GhostLevel)
}

// Information describes the output of a stage before it is produced.
type Information struct {
	// PipelineTime is the latest modification time of the stage and of every
	// stage upstream of it.
	PipelineTime Time

	// MaximumNumberOfPieces is the largest number of pieces the output may be
	// split into.
	MaximumNumberOfPieces int

	// WholeExtent is the structured extent of the complete output, as
	// (min, max) pairs for each of three axes.
	WholeExtent [6]int
}

// Algorithm is a stage of a pipeline.
type Algorithm interface {
	// UpdateInformation returns information about the output that the stage
	// would produce.
	UpdateInformation(ctx context.Context) (Information, error)

	// Update produces the requested part of the output.
	Update(ctx context.Context, e Extent) (interface{}, error)
}

// Releaser is an optional interface implemented by stages that cache their
// output and can discard it on request.
type Releaser interface {
	// ReleaseData discards the cached output.
	ReleaseData()

	// DataReleased returns true if the cached output has been discarded
	// since it was last produced.
	DataReleased() bool
}

// Source is an Algorithm that produces output by calling a function.
//
// It records its own modification time and caches the output of the last
// call to Produce until it is modified or released.
type Source struct {
	// Produce returns the output for the given extent.
	Produce func(ctx context.Context, e Extent) (interface{}, error)

	// MaximumNumberOfPieces is reported via UpdateInformation(). If it is
	// zero, the output is reported as a single piece.
	MaximumNumberOfPieces int

	// WholeExtent is reported via UpdateInformation().
	WholeExtent [6]int

	mtime    atomic.Uint64
	cache    atomic.Pointer[sourceOutput]
	released atomic.Bool
}

type sourceOutput struct {
	Extent Extent
	Time   Time
	Value  interface{}
}

var (
	_ Algorithm = (*Source)(nil)
	_ Releaser  = (*Source)(nil)
)

// Modified marks the source as modified, so that its next Update()
// reproduces its output.
func (s *Source) Modified() {
	s.mtime.Store(uint64(Now()))
}

// ModificationTime returns the time at which the source was last modified.
func (s *Source) ModificationTime() Time {
	return Time(s.mtime.Load())
}

// UpdateInformation returns the source's information.
func (s *Source) UpdateInformation(context.Context) (Information, error) {
	if s.mtime.Load() == 0 {
		s.Modified()
	}

	pieces := s.MaximumNumberOfPieces
	if pieces == 0 {
		pieces = 1
	}

	return Information{
		PipelineTime:          s.ModificationTime(),
		MaximumNumberOfPieces: pieces,
		WholeExtent:           s.WholeExtent,
	}, nil
}

// Update returns the output for e, calling Produce if there is no current
// output for that extent.
func (s *Source) Update(ctx context.Context, e Extent) (interface{}, error) {
	if s.mtime.Load() == 0 {
		s.Modified()
	}

	if c := s.cache.Load(); c != nil &&
		c.Extent == e &&
		c.Time >= s.ModificationTime() &&
		!s.released.Load() {
		return c.Value, nil
	}

	v, err := s.Produce(ctx, e)
	if err != nil {
		return nil, err
	}

	s.cache.Store(&sourceOutput{e, Now(), v})
	s.released.Store(false)

	return v, nil
}

// ReleaseData discards the cached output.
func (s *Source) ReleaseData() {
	s.released.Store(true)
}

// DataReleased returns true if the cached output has been discarded.
func (s *Source) DataReleased() bool {
	return s.released.Load()
}
