// Package call owns the per-call session state and the registry that maps
// call identifiers to live sessions.
//
// A Session is mutated only while its lock is held. The conversation engine
// holds the lock for the full duration of a turn, which serialises turns
// within one call: utterance N+1 is never processed before utterance N has
// produced its reply. Sessions for different calls share nothing.
package call

import (
	"sync"
	"time"

	"github.com/callsmith-ai/callsmith/internal/entity"
	"github.com/callsmith-ai/callsmith/pkg/provider/llm"
)

// State is the conversation lifecycle stage of a session.
type State int

const (
	// StateNew means the session exists but no assistant turn was produced.
	StateNew State = iota
	// StateActive means the conversation is underway.
	StateActive
	// StateEndRequested means an end-intent phrase was heard and the caller
	// was asked to confirm.
	StateEndRequested
	// StateEnded is terminal.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateEndRequested:
		return "end_requested"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Outcome labels how a call concluded.
type Outcome string

const (
	OutcomeConverted Outcome = "Converted"
	OutcomeFollowUp  Outcome = "FollowUp"
	OutcomeRejected  Outcome = "Rejected"
)

// Summary is the cached end-of-call summary, written at most once.
type Summary struct {
	Text    string
	Outcome Outcome
}

// Session is the state of one call. All fields below the mutex are guarded
// by it; callers take the lock via Lock/Unlock and hold it for a whole turn.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu sync.Mutex

	// State is the conversation stage.
	State State
	// History is the ordered turn log. Index 0 is the system prompt; all
	// later entries are append-only user and assistant turns.
	History []llm.Message
	// Entities is the lead record accumulated across turns.
	Entities entity.Record
	// EndCallDetected is set when an end-intent phrase was heard.
	EndCallDetected bool
	// EndCallConfirmed is set when the caller confirmed ending.
	EndCallConfirmed bool
	// ActionsBlocked is set when end-of-call external actions must be
	// skipped for this session, e.g. the captured email failed validation.
	ActionsBlocked bool
	// Audit is the append-only log of extraction attempts.
	Audit []entity.AuditEntry

	summary *Summary
}

// NewSession creates a session seeded with the system prompt.
func NewSession(id, systemPrompt string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		State:     StateNew,
		History:   []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
	}
}

// Lock acquires the session's turn lock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's turn lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// AppendTurn appends one turn to the history. Callers hold the lock.
func (s *Session) AppendTurn(role, content string) {
	s.History = append(s.History, llm.Message{Role: role, Content: content})
}

// SetSummary caches the summary. Only the first write wins; later calls are
// no-ops so the summary stays idempotent. Safe without the turn lock.
func (s *Session) SetSummary(sum Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		s.summary = &sum
	}
}

// CachedSummary returns the summary if one was generated. It never triggers
// generation. Safe without the turn lock.
func (s *Session) CachedSummary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return Summary{}, false
	}
	return *s.summary, true
}
