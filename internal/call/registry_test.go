package call

import (
	"fmt"
	"sync"
	"testing"
)

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	r := NewRegistry("you are a sales agent")

	a, created := r.GetOrCreate("call-1")
	if !created {
		t.Error("first access did not create")
	}
	b, created := r.GetOrCreate("call-1")
	if created {
		t.Error("second access created again")
	}
	if a != b {
		t.Error("two session objects for one call id")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestGetOrCreateSeedsSystemPrompt(t *testing.T) {
	r := NewRegistry("system prompt text")
	sess, _ := r.GetOrCreate("call-1")
	if len(sess.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(sess.History))
	}
	if sess.History[0].Role != "system" || sess.History[0].Content != "system prompt text" {
		t.Errorf("unexpected seed turn: %+v", sess.History[0])
	}
	if sess.State != StateNew {
		t.Errorf("state = %v, want new", sess.State)
	}
}

func TestGetOrCreateConcurrentSameID(t *testing.T) {
	r := NewRegistry("prompt")

	const goroutines = 32
	sessions := make([]*Session, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			sessions[i], _ = r.GetOrCreate("dup-call")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("concurrent GetOrCreate produced distinct sessions")
		}
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRemove(t *testing.T) {
	r := NewRegistry("prompt")
	r.GetOrCreate("call-1")
	r.Remove("call-1")
	if _, ok := r.Get("call-1"); ok {
		t.Error("session survived Remove")
	}
	// Removing twice must not panic.
	r.Remove("call-1")
}

func TestSessionsAreIndependent(t *testing.T) {
	r := NewRegistry("prompt")
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, fmt.Sprintf("call-%d", i))
		r.GetOrCreate(ids[i])
	}
	if r.Len() != 5 {
		t.Errorf("Len = %d, want 5", r.Len())
	}
	sess, _ := r.Get("call-2")
	sess.Lock()
	sess.AppendTurn("user", "hello")
	sess.Unlock()
	other, _ := r.Get("call-3")
	if len(other.History) != 1 {
		t.Error("turn leaked across sessions")
	}
}

func TestSummaryWriteOnce(t *testing.T) {
	sess := NewSession("call-1", "prompt")
	if _, ok := sess.CachedSummary(); ok {
		t.Error("summary present before generation")
	}
	sess.SetSummary(Summary{Text: "first", Outcome: OutcomeFollowUp})
	sess.SetSummary(Summary{Text: "second", Outcome: OutcomeRejected})

	sum, ok := sess.CachedSummary()
	if !ok {
		t.Fatal("summary missing after set")
	}
	if sum.Text != "first" || sum.Outcome != OutcomeFollowUp {
		t.Errorf("summary overwritten: %+v", sum)
	}
}
