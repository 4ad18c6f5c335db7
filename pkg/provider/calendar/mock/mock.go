// Package mock provides a test double for the calendar.Scheduler interface.
package mock

import (
	"context"
	"sync"

	"github.com/callsmith-ai/callsmith/pkg/provider/calendar"
)

// Scheduler is a mock implementation of calendar.Scheduler.
type Scheduler struct {
	mu sync.Mutex

	// Invite is returned by CreateEvent when Err is nil. When nil, a default
	// invite is returned instead.
	Invite *calendar.Invite

	// Err, if non-nil, is returned by CreateEvent.
	Err error

	// Calls records every event passed to CreateEvent.
	Calls []calendar.Event
}

// CreateEvent implements calendar.Scheduler.
func (s *Scheduler) CreateEvent(ctx context.Context, ev calendar.Event) (*calendar.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, ev)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Invite != nil {
		inv := *s.Invite
		return &inv, nil
	}
	return &calendar.Invite{EventID: "mock-event", Link: "https://calendar.example/mock-event"}, nil
}

// Reset clears recorded calls.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
}

// Ensure Scheduler implements calendar.Scheduler at compile time.
var _ calendar.Scheduler = (*Scheduler)(nil)
