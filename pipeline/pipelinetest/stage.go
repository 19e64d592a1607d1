// Package pipelinetest contains pipeline stages for use in tests.
package pipelinetest

import (
	"context"
	"sync"

	"github.com/dogmatiq/tandem/pipeline"
)

// Stage is a pipeline.Algorithm that records how it is called.
type Stage struct {
	// Output returns the output for an extent. If it is nil, Update() returns
	// the number of times it has been called.
	Output func(pipeline.Extent) interface{}

	// Gate, if non-nil, causes Update() to block until a value is received
	// from it.
	Gate chan struct{}

	m            sync.Mutex
	pipelineTime pipeline.Time
	info         int
	updates      int
	running      int
	maxRunning   int
}

var _ pipeline.Algorithm = (*Stage)(nil)

// Modified advances the stage's pipeline time to the current time.
func (s *Stage) Modified() pipeline.Time {
	t := pipeline.Now()
	s.SetPipelineTime(t)
	return t
}

// SetPipelineTime sets the pipeline time reported by UpdateInformation().
func (s *Stage) SetPipelineTime(t pipeline.Time) {
	s.m.Lock()
	defer s.m.Unlock()

	s.pipelineTime = t
}

// UpdateInformation returns the stage's pipeline time.
func (s *Stage) UpdateInformation(context.Context) (pipeline.Information, error) {
	s.m.Lock()
	defer s.m.Unlock()

	s.info++

	return pipeline.Information{
		PipelineTime:          s.pipelineTime,
		MaximumNumberOfPieces: 1,
	}, nil
}

// Update returns the output for e.
func (s *Stage) Update(ctx context.Context, e pipeline.Extent) (interface{}, error) {
	s.m.Lock()
	s.updates++
	n := s.updates
	s.running++
	s.maxRunning = max(s.maxRunning, s.running)
	s.m.Unlock()

	defer func() {
		s.m.Lock()
		s.running--
		s.m.Unlock()
	}()

	if s.Gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.Gate:
		}
	}

	if s.Output == nil {
		return n, nil
	}

	return s.Output(e), nil
}

// InformationCalls returns the number of calls to UpdateInformation().
func (s *Stage) InformationCalls() int {
	s.m.Lock()
	defer s.m.Unlock()

	return s.info
}

// UpdateCalls returns the number of calls to Update().
func (s *Stage) UpdateCalls() int {
	s.m.Lock()
	defer s.m.Unlock()

	return s.updates
}

// MaxConcurrentUpdates returns the largest number of calls to Update() that
// were in progress at the same time.
func (s *Stage) MaxConcurrentUpdates() int {
	s.m.Lock()
	defer s.m.Unlock()

	return s.maxRunning
}
