// Package crm defines the contract for recording call outcomes as leads in an
// external customer relationship management system.
//
// Like calendar booking, lead creation is best effort at call finalisation
// and never blocks the rest of teardown.
package crm

import "context"

// Lead describes a prospect captured during a call.
type Lead struct {
	// FirstName and LastName are split from the prospect's spoken name.
	FirstName string
	LastName  string
	// Company is the prospect's organisation.
	Company string
	// Email is the sanitised contact address, empty when none was captured.
	Email string
	// Description carries the call summary.
	Description string
	// Source labels how the lead was acquired.
	Source string
}

// Connector creates leads in a CRM backend.
type Connector interface {
	// CreateLead records the lead and returns its backend identifier.
	// Implementations should honour ctx cancellation.
	CreateLead(ctx context.Context, lead Lead) (string, error)
}
