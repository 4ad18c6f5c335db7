// Package mock provides a test double for the crm.Connector interface.
package mock

import (
	"context"
	"sync"

	"github.com/callsmith-ai/callsmith/pkg/provider/crm"
)

// Connector is a mock implementation of crm.Connector.
type Connector struct {
	mu sync.Mutex

	// LeadID is returned by CreateLead when Err is nil. Defaults to
	// "mock-lead" when empty.
	LeadID string

	// Err, if non-nil, is returned by CreateLead.
	Err error

	// Calls records every lead passed to CreateLead.
	Calls []crm.Lead
}

// CreateLead implements crm.Connector.
func (c *Connector) CreateLead(ctx context.Context, lead crm.Lead) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, lead)
	if c.Err != nil {
		return "", c.Err
	}
	if c.LeadID != "" {
		return c.LeadID, nil
	}
	return "mock-lead", nil
}

// Reset clears recorded calls.
func (c *Connector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = nil
}

// Ensure Connector implements crm.Connector at compile time.
var _ crm.Connector = (*Connector)(nil)
