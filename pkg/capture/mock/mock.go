// Package mock provides a scriptable capture.Source for tests.
package mock

import (
	"context"
	"sync"

	"github.com/liveprompt/liveprompt/pkg/audio"
	"github.com/liveprompt/liveprompt/pkg/capture"
)

// Source is a mock implementation of capture.Source. Tests push frames via
// Emit and end the stream via Close.
type Source struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StartCallCount is the number of times Start was called.
	StartCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	frames chan audio.Frame
	closed bool
}

// Start returns the frame channel tests feed through Emit.
func (s *Source) Start(ctx context.Context) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCallCount++
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	if s.frames == nil {
		s.frames = make(chan audio.Frame, 64)
	}
	return s.frames, nil
}

// Emit delivers one frame to the consumer. No-op after Close.
func (s *Source) Emit(frame audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.frames == nil {
		s.frames = make(chan audio.Frame, 64)
	}
	s.frames <- frame
}

// StartCount returns the number of Start calls so far. Thread-safe.
func (s *Source) StartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StartCallCount
}

// CloseCount returns the number of Close calls so far. Thread-safe.
func (s *Source) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Close ends the frame stream. Idempotent.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if s.closed {
		return nil
	}
	s.closed = true
	if s.frames != nil {
		close(s.frames)
	}
	return nil
}

// Ensure Source implements capture.Source at compile time.
var _ capture.Source = (*Source)(nil)
