package call

import (
	"sync"
)

// Registry maps call identifiers to sessions. GetOrCreate is atomic per key:
// two concurrent deliveries for the same call id, such as a duplicated
// webhook, always observe the same session object.
type Registry struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	systemPrompt string
}

// NewRegistry creates a registry whose sessions are seeded with systemPrompt.
func NewRegistry(systemPrompt string) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		systemPrompt: systemPrompt,
	}
}

// GetOrCreate returns the session for callID, creating it when absent.
// created reports whether this call performed the creation.
func (r *Registry) GetOrCreate(callID string) (sess *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[callID]; ok {
		return sess, false
	}
	sess = NewSession(callID, r.systemPrompt)
	r.sessions[callID] = sess
	return sess, true
}

// Get returns the session for callID if it exists.
func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[callID]
	return sess, ok
}

// Remove evicts the session for callID. Removing an unknown id is a no-op.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
