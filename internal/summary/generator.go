// Package summary produces the end-of-call conversation summary and its
// outcome classification.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/callsmith-ai/callsmith/internal/call"
	"github.com/callsmith-ai/callsmith/pkg/provider/llm"
)

const summarySystemPrompt = `Please analyze this sales conversation and provide a concise summary including:
1. Customer's main interests and concerns
2. Any commitments or next steps
3. Important details captured (contact info, requirements, etc.)

If you did not get a conversation to analyze, respond with "Conversation Not Found For make Summary".

Additionally, based on the conversation, classify the outcome with one of the following labels:
- Converted: the customer has successfully scheduled a meeting.
- FollowUp: the customer is interested but requested another time to connect.
- Rejected: the customer is not interested, declined the offer, or the conversation is missing.

At the end of the summary, explicitly mention the classification in the format: Outcome: [Converted/FollowUp/Rejected].`

// Status values reported by Latest.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
)

// Latest is the cached-read result for a session's summary.
type Latest struct {
	Status  string `json:"status"`
	Summary string `json:"summary"`
}

// Generator summarises finished calls. Safe for concurrent use.
type Generator struct {
	model  llm.Provider
	logger *slog.Logger
}

// NewGenerator builds a generator over model.
func NewGenerator(model llm.Provider, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{model: model, logger: logger}
}

// Generate produces and caches the summary for sess. The first successful
// generation wins; later calls return the cached summary without a model
// round trip. An empty conversation still yields a Rejected summary.
func (g *Generator) Generate(ctx context.Context, sess *call.Session) (call.Summary, error) {
	if cached, ok := sess.CachedSummary(); ok {
		return cached, nil
	}

	transcript := formatTranscript(sess)
	resp, err := g.model.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: summarySystemPrompt},
			{Role: llm.RoleUser, Content: "Here's the conversation to summarize:\n\n" + transcript},
		},
		Temperature: 0.1,
		MaxTokens:   150,
	})
	if err != nil {
		return call.Summary{}, fmt.Errorf("summary: generate: %w", err)
	}

	sum := call.Summary{
		Text:    strings.TrimSpace(resp.Content),
		Outcome: parseOutcome(resp.Content),
	}
	sess.SetSummary(sum)
	g.logger.Info("conversation summarised", "call_id", sess.ID, "outcome", sum.Outcome)

	// Return the cached value: a racing Generate may have won the write.
	cached, _ := sess.CachedSummary()
	return cached, nil
}

// Latest is a pure read of the cached summary. It never triggers generation,
// so calling it repeatedly returns the identical result.
func (g *Generator) Latest(sess *call.Session) Latest {
	if sum, ok := sess.CachedSummary(); ok {
		return Latest{Status: StatusSuccess, Summary: sum.Text}
	}
	return Latest{Status: StatusPending, Summary: "No summary available."}
}

// formatTranscript renders the non-system turns as speaker-labelled lines.
func formatTranscript(sess *call.Session) string {
	sess.Lock()
	defer sess.Unlock()

	var lines []string
	for _, msg := range sess.History {
		switch msg.Role {
		case llm.RoleUser:
			lines = append(lines, "User: "+msg.Content)
		case llm.RoleAssistant:
			lines = append(lines, "AI: "+msg.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// parseOutcome extracts the trailing outcome tag. Replies without a usable
// tag classify as Rejected, matching how a missing conversation is treated.
func parseOutcome(text string) call.Outcome {
	idx := strings.LastIndex(strings.ToLower(text), "outcome:")
	if idx < 0 {
		return call.OutcomeRejected
	}
	tail := strings.ToLower(text[idx+len("outcome:"):])
	switch {
	case strings.Contains(tail, "converted"):
		return call.OutcomeConverted
	case strings.Contains(tail, "follow"):
		return call.OutcomeFollowUp
	default:
		return call.OutcomeRejected
	}
}
