// Package engine implements the per-call conversation state machine.
//
// A call moves through new, active, end_requested and ended. Each utterance
// is handled under the session's turn lock, so turns within one call are
// strictly ordered even when transport deliveries interleave. All model and
// parse failures are recovered into a valid spoken reply; the engine never
// lets a call hang silently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/callsmith-ai/callsmith/internal/call"
	"github.com/callsmith-ai/callsmith/internal/entity"
	"github.com/callsmith-ai/callsmith/internal/knowledge"
	"github.com/callsmith-ai/callsmith/pkg/provider/llm"
)

const (
	defaultTemperature      = 0.0
	defaultMaxTokens        = 150
	defaultModelConcurrency = 8
)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxTokens caps completion length per turn. Default 150 keeps replies
// short enough for speech synthesis latency.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithTemperature sets the sampling temperature. Default 0 keeps entity
// echoes deterministic.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithModelConcurrency bounds the number of in-flight model requests across
// all calls. Default 8.
func WithModelConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// Engine drives one conversation turn at a time. It is shared by every
// active call and is safe for concurrent use; per-call ordering comes from
// the session lock.
type Engine struct {
	model     llm.Provider
	retriever *knowledge.Retriever
	logger    *slog.Logger

	sem         *semaphore.Weighted
	temperature float64
	maxTokens   int
}

// New builds an engine over model and retriever. A nil retriever disables
// knowledge grounding.
func New(model llm.Provider, retriever *knowledge.Retriever, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		model:       model,
		retriever:   retriever,
		logger:      logger,
		sem:         semaphore.NewWeighted(defaultModelConcurrency),
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// HandleUtterance processes one user utterance for sess and returns the
// reply to speak and whether the call is over. It holds the session lock for
// the whole turn, including the model round trip, so a later utterance for
// the same call queues behind it.
func (e *Engine) HandleUtterance(ctx context.Context, sess *call.Session, text string) (reply string, terminal bool) {
	sess.Lock()
	defer sess.Unlock()

	input := strings.TrimSpace(text)
	if input == "" {
		return replyClarify, false
	}

	if sess.State == call.StateEndRequested {
		if isAffirmative(input) {
			return e.confirmEnd(sess)
		}
		// Anything but a confirmation cancels the end request and the
		// utterance is handled as a normal turn.
		sess.State = call.StateActive
		sess.EndCallDetected = false
	}

	if matchesEndPhrase(input) {
		sess.EndCallDetected = true
		sess.State = call.StateEndRequested
		return replyConfirmEnd, false
	}

	return e.modelTurn(ctx, sess, input)
}

// confirmEnd finishes a call whose end was just confirmed. An unusable email
// still ends the call but blocks the external follow-up actions.
func (e *Engine) confirmEnd(sess *call.Session) (string, bool) {
	sess.EndCallConfirmed = true
	sess.State = call.StateEnded

	var email string
	if sess.Entities.Email != nil {
		email = *sess.Entities.Email
	}
	cleaned, ok := entity.SanitizeEmail(email)
	if !ok {
		sess.ActionsBlocked = true
		e.logger.Error("invalid email, skipping follow-up actions",
			"call_id", sess.ID, "email", email)
		return replyNoBooking, true
	}
	sess.Entities.Email = &cleaned
	return replyFarewell, true
}

// modelTurn runs a normal conversational turn through the model.
func (e *Engine) modelTurn(ctx context.Context, sess *call.Session, input string) (string, bool) {
	// Details the model tends to miss are scanned straight off the utterance.
	// The delta only informs the prompt here; it lands in the session after
	// the model call succeeds, so a failed turn leaves no trace.
	pre := entity.FromUtterance(input)
	snapshot := sess.Entities.Clone()
	snapshot.Merge(pre)

	var kctx knowledge.Result
	if e.retriever != nil {
		var err error
		kctx, err = e.retriever.Retrieve(ctx, input, knowledge.DefaultTopK)
		if err != nil {
			e.logger.Warn("knowledge retrieval failed, continuing without context",
				"call_id", sess.ID, "error", err)
			kctx = knowledge.Result{}
		}
	}

	turnPrompt := buildTurnPrompt(input, snapshot.Snapshot(), kctx)
	messages := make([]llm.Message, 0, len(sess.History)+1)
	messages = append(messages, sess.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: turnPrompt})

	resp, err := e.complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		e.logger.Error("model request failed", "call_id", sess.ID, "error", err)
		if sess.EndCallDetected {
			sess.State = call.StateEnded
			return replyFarewellOnFail, true
		}
		// History and entities stay untouched so a retry starts clean.
		return replyModelTrouble, false
	}

	spoken, delta, parseErr := entity.Parse(resp.Content)
	if parseErr != nil {
		e.logger.Warn("entity block unusable, keeping spoken text",
			"call_id", sess.ID, "error", parseErr)
	}
	sess.Entities.Merge(pre)
	sess.Audit = append(sess.Audit, entity.NewAuditEntry(resp.Content, delta, sess.Entities.Clone()))
	sess.Entities.Merge(delta)

	if spoken == "" {
		spoken = replyClarify
	}
	sess.AppendTurn(llm.RoleUser, input)
	sess.AppendTurn(llm.RoleAssistant, spoken)
	if sess.State == call.StateNew {
		sess.State = call.StateActive
	}
	return spoken, false
}

// complete issues the model request under the global concurrency bound.
func (e *Engine) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("engine: acquire model slot: %w", err)
	}
	defer e.sem.Release(1)
	resp, err := e.model.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("engine: provider returned no response")
	}
	return resp, nil
}
