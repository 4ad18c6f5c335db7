// Package calendar defines the scheduling contract used at the end of a call
// to book a follow-up meeting with the prospect.
//
// Implementations wrap external calendar services. The engine treats event
// creation as best effort: a failed booking is reported but never blocks the
// rest of call finalisation.
package calendar

import (
	"context"
	"time"
)

// Event describes a meeting to be created.
type Event struct {
	// Title is the event summary line.
	Title string
	// Description carries free-form context, typically the call summary.
	Description string
	// Start is the meeting start time. Meetings are one hour long.
	Start time.Time
	// AttendeeEmail, when non-empty, is invited to the event.
	AttendeeEmail string
}

// Invite is the result of a successful booking.
type Invite struct {
	// EventID is the provider-assigned identifier of the created event.
	EventID string
	// Link is a human-openable URL for the event, if the provider exposes one.
	Link string
}

// Scheduler creates calendar events.
type Scheduler interface {
	// CreateEvent books the given event and returns the provider's invite
	// details. Implementations should honour ctx cancellation.
	CreateEvent(ctx context.Context, ev Event) (*Invite, error)
}
