package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/callsmith-ai/callsmith/internal/call"
	"github.com/callsmith-ai/callsmith/internal/knowledge"
	embmock "github.com/callsmith-ai/callsmith/pkg/provider/embeddings/mock"
	"github.com/callsmith-ai/callsmith/pkg/provider/llm"
	llmmock "github.com/callsmith-ai/callsmith/pkg/provider/llm/mock"
)

func reply(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: text}
}

func newTestEngine(t *testing.T, model *llmmock.Provider) *Engine {
	t.Helper()
	retriever := knowledge.NewRetriever(knowledge.NewStore(), &embmock.Provider{Dims: 3})
	return New(model, retriever, nil)
}

func newTestSession() *call.Session {
	return call.NewSession("call-1", "system prompt")
}

func TestEmptyInputAsksForClarification(t *testing.T) {
	model := &llmmock.Provider{}
	e := newTestEngine(t, model)
	sess := newTestSession()

	reply, terminal := e.HandleUtterance(context.Background(), sess, "   ")
	if reply != replyClarify || terminal {
		t.Errorf("got (%q, %v)", reply, terminal)
	}
	if sess.State != call.StateNew {
		t.Errorf("state changed on empty input: %v", sess.State)
	}
	if len(model.CompleteCalls) != 0 {
		t.Error("model called for empty input")
	}
}

func TestNormalTurnMergesEntitiesAndActivates(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponse: reply(`Nice to meet you, Asha. [[ENTITIES]]{"entities": {"name": "Asha", "email": "asha@example.com", "company_name": null, "requirements": [], "meeting_date": null, "meeting_time": null, "industry": null}}[[END_ENTITIES]]`),
	}
	e := newTestEngine(t, model)
	sess := newTestSession()

	reply, terminal := e.HandleUtterance(context.Background(), sess, "my name is Asha, email asha@example.com")
	if terminal {
		t.Error("normal turn marked terminal")
	}
	if reply != "Nice to meet you, Asha." {
		t.Errorf("reply = %q", reply)
	}
	if sess.State != call.StateActive {
		t.Errorf("state = %v, want active", sess.State)
	}
	if sess.Entities.Name == nil || *sess.Entities.Name != "Asha" {
		t.Errorf("name not merged: %+v", sess.Entities)
	}
	if sess.Entities.Email == nil || *sess.Entities.Email != "asha@example.com" {
		t.Errorf("email not merged: %+v", sess.Entities)
	}
	// History gained a user and an assistant turn after the system seed.
	if len(sess.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(sess.History))
	}
	if sess.History[1].Role != "user" || sess.History[2].Role != "assistant" {
		t.Errorf("unexpected turn roles: %+v", sess.History[1:])
	}
	if len(sess.Audit) != 1 {
		t.Errorf("audit entries = %d, want 1", len(sess.Audit))
	}
}

func TestTurnPromptCarriesSnapshotAndInstructions(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: reply("Sure.")}
	e := newTestEngine(t, model)
	sess := newTestSession()

	e.HandleUtterance(context.Background(), sess, "tell me about cloud hosting")
	if len(model.CompleteCalls) != 1 {
		t.Fatalf("model calls = %d", len(model.CompleteCalls))
	}
	req := model.CompleteCalls[0].Req
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" {
		t.Errorf("last message role = %q", last.Role)
	}
	for _, want := range []string{"tell me about cloud hosting", "Current entities state:", "[[ENTITIES]]", "[[END_ENTITIES]]"} {
		if !strings.Contains(last.Content, want) {
			t.Errorf("turn prompt missing %q", want)
		}
	}
	if req.Messages[0].Content != "system prompt" {
		t.Errorf("system seed not first: %+v", req.Messages[0])
	}
}

func TestGoodbyeRequestsConfirmation(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: reply("ok")}
	e := newTestEngine(t, model)
	sess := newTestSession()
	sess.State = call.StateActive

	reply, terminal := e.HandleUtterance(context.Background(), sess, "alright, goodbye")
	if terminal {
		t.Error("end request marked terminal")
	}
	if reply != replyConfirmEnd {
		t.Errorf("reply = %q", reply)
	}
	if sess.State != call.StateEndRequested || !sess.EndCallDetected {
		t.Errorf("state = %v detected = %v", sess.State, sess.EndCallDetected)
	}
	if len(model.CompleteCalls) != 0 {
		t.Error("model called for end-intent turn")
	}
}

func TestConfirmEndWithValidEmail(t *testing.T) {
	e := newTestEngine(t, &llmmock.Provider{})
	sess := newTestSession()
	sess.State = call.StateEndRequested
	sess.EndCallDetected = true
	email := "  asha@example.com "
	sess.Entities.Email = &email

	reply, terminal := e.HandleUtterance(context.Background(), sess, "yes please")
	if !terminal {
		t.Error("confirmed end not terminal")
	}
	if reply != replyFarewell {
		t.Errorf("reply = %q", reply)
	}
	if sess.State != call.StateEnded || !sess.EndCallConfirmed {
		t.Errorf("state = %v confirmed = %v", sess.State, sess.EndCallConfirmed)
	}
	if sess.ActionsBlocked {
		t.Error("actions blocked despite valid email")
	}
	if *sess.Entities.Email != "asha@example.com" {
		t.Errorf("email not sanitised: %q", *sess.Entities.Email)
	}
}

func TestConfirmEndWithMissingEmailBlocksActions(t *testing.T) {
	e := newTestEngine(t, &llmmock.Provider{})
	sess := newTestSession()
	sess.State = call.StateEndRequested
	sess.EndCallDetected = true

	reply, terminal := e.HandleUtterance(context.Background(), sess, "okay")
	if !terminal {
		t.Error("confirmed end not terminal")
	}
	if reply != replyNoBooking {
		t.Errorf("reply = %q", reply)
	}
	if sess.State != call.StateEnded {
		t.Errorf("state = %v", sess.State)
	}
	if !sess.ActionsBlocked {
		t.Error("follow-up actions not blocked for invalid email")
	}
}

func TestNonAffirmativeCancelsEndRequest(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: reply("Happy to continue.")}
	e := newTestEngine(t, model)
	sess := newTestSession()
	sess.State = call.StateEndRequested
	sess.EndCallDetected = true

	reply, terminal := e.HandleUtterance(context.Background(), sess, "actually, tell me about pricing")
	if terminal {
		t.Error("cancelled end marked terminal")
	}
	if reply != "Happy to continue." {
		t.Errorf("reply = %q", reply)
	}
	if sess.State != call.StateActive || sess.EndCallDetected {
		t.Errorf("end request not cancelled: state = %v detected = %v", sess.State, sess.EndCallDetected)
	}
}

func TestModelFailurePreservesState(t *testing.T) {
	model := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	e := newTestEngine(t, model)
	sess := newTestSession()
	sess.State = call.StateActive
	name := "Asha"
	sess.Entities.Name = &name

	reply, terminal := e.HandleUtterance(context.Background(), sess, "what do you offer")
	if terminal {
		t.Error("recoverable failure marked terminal")
	}
	if reply != replyModelTrouble {
		t.Errorf("reply = %q", reply)
	}
	if len(sess.History) != 1 {
		t.Errorf("history mutated on failure: %d turns", len(sess.History))
	}
	if *sess.Entities.Name != "Asha" {
		t.Error("entities mutated on failure")
	}
}

func TestModelFailureDiscardsPreExtractedEntities(t *testing.T) {
	model := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	e := newTestEngine(t, model)
	sess := newTestSession()
	sess.State = call.StateActive

	got, terminal := e.HandleUtterance(context.Background(), sess, "my email is asha@example.com")
	if terminal {
		t.Error("recoverable failure marked terminal")
	}
	if got != replyModelTrouble {
		t.Errorf("reply = %q", got)
	}
	if sess.Entities.Email != nil {
		t.Errorf("email captured on failed turn: %q", *sess.Entities.Email)
	}

	// A retry that succeeds still picks the detail up from the utterance.
	model.CompleteErr = nil
	model.CompleteResponse = reply("Thanks, noted.")
	e.HandleUtterance(context.Background(), sess, "my email is asha@example.com")
	if sess.Entities.Email == nil {
		t.Fatal("email not captured on successful turn")
	}
	if *sess.Entities.Email != "asha@example.com" {
		t.Errorf("email = %q", *sess.Entities.Email)
	}
}

func TestModelFailureAfterEndDetectedEndsGracefully(t *testing.T) {
	model := &llmmock.Provider{CompleteErr: errors.New("down")}
	e := newTestEngine(t, model)
	sess := newTestSession()
	sess.State = call.StateActive
	sess.EndCallDetected = true

	reply, terminal := e.HandleUtterance(context.Background(), sess, "one more thing")
	if !terminal {
		t.Error("call left hanging after failure with end detected")
	}
	if reply != replyFarewellOnFail {
		t.Errorf("reply = %q", reply)
	}
	if sess.State != call.StateEnded {
		t.Errorf("state = %v", sess.State)
	}
}

func TestMalformedEntityBlockKeepsSpokenText(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponse: reply("We can help with that. [[ENTITIES]]{broken json[[END_ENTITIES]]"),
	}
	e := newTestEngine(t, model)
	sess := newTestSession()

	reply, terminal := e.HandleUtterance(context.Background(), sess, "we need a mobile app")
	if terminal {
		t.Error("parse failure marked terminal")
	}
	if reply != "We can help with that." {
		t.Errorf("reply = %q", reply)
	}
	if sess.Entities.Name != nil || len(sess.Entities.Requirements) != 0 {
		t.Errorf("entities merged from broken block: %+v", sess.Entities)
	}
	if len(sess.Audit) != 1 {
		t.Errorf("audit entries = %d, want 1", len(sess.Audit))
	}
}

func TestUtterancePreExtractionSurvivesOmission(t *testing.T) {
	// The model omits the email but the utterance carried one.
	model := &llmmock.Provider{
		CompleteResponse: reply(`Got it. [[ENTITIES]]{"entities": {"name": null, "email": null, "company_name": null, "requirements": [], "meeting_date": null, "meeting_time": null, "industry": null}}[[END_ENTITIES]]`),
	}
	e := newTestEngine(t, model)
	sess := newTestSession()

	e.HandleUtterance(context.Background(), sess, "reach me at asha@example.com")
	if sess.Entities.Email == nil || *sess.Entities.Email != "asha@example.com" {
		t.Errorf("pre-extracted email lost: %+v", sess.Entities)
	}
}

func TestDefaultSystemPromptCarriesDate(t *testing.T) {
	now, err := time.Parse(time.RFC3339, "2026-09-12T14:30:00Z")
	if err != nil {
		t.Fatal(err)
	}
	prompt := DefaultSystemPrompt(now)
	if !strings.Contains(prompt, "12-09-2026") {
		t.Errorf("prompt missing rendered date")
	}
	if !strings.Contains(prompt, "[[ENTITIES]]") || !strings.Contains(prompt, "[[END_ENTITIES]]") {
		t.Error("prompt missing sentinel instructions")
	}
}
