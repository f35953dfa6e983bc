package stream_test

import (
	"context"
	"sync"

	"github.com/agentruntime/core/runtime/agent/stream"
)

// fakeSink is an in-memory stream.Sink used to assert on the exact event
// sequence a handler emits, without a real HTTP connection.
type fakeSink struct {
	mu     sync.Mutex
	events []stream.Event
	closed bool
}

func newFakeSink() *fakeSink { return &fakeSink{} }

func (s *fakeSink) Send(ctx context.Context, event stream.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) Names() []stream.EventName {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.EventName, len(s.events))
	for i, e := range s.events {
		out[i] = e.Name()
	}
	return out
}

func (s *fakeSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ stream.Sink = (*fakeSink)(nil)
