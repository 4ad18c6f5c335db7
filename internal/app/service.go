package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/callsmith-ai/callsmith/internal/engine"
	"github.com/callsmith-ai/callsmith/internal/knowledge"
	"github.com/callsmith-ai/callsmith/internal/lifecycle"
	"github.com/callsmith-ai/callsmith/internal/observe"
	"github.com/callsmith-ai/callsmith/internal/summary"
	"github.com/callsmith-ai/callsmith/internal/transport"
)

// ErrUnknownCall is returned for operations on a call ID with no live session.
var ErrUnknownCall = errors.New("app: unknown call")

var _ transport.Service = (*App)(nil)

// StartCall registers the session and returns the opening greeting. Starting
// an already known call is a no-op returning the same greeting.
func (a *App) StartCall(ctx context.Context, callID string) (string, error) {
	_, created := a.registry.GetOrCreate(callID)
	if created {
		a.metrics.ActiveCalls.Add(ctx, 1)
		slog.Info("call started", "call_id", callID, "active", a.registry.Len())
	}
	return engine.Greeting, nil
}

// Speech runs one conversation turn for text. A session is created on the
// fly when the call is not yet known, matching the behaviour of the
// streaming path.
func (a *App) Speech(ctx context.Context, callID, text string) (string, bool, error) {
	ctx, span := observe.Tracer().Start(ctx, "call.turn")
	defer span.End()

	sess, created := a.registry.GetOrCreate(callID)
	if created {
		a.metrics.ActiveCalls.Add(ctx, 1)
	}
	reply, terminal := a.engine.HandleUtterance(ctx, sess, text)
	return reply, terminal, nil
}

// StreamAudio buffers raw audio for the call.
func (a *App) StreamAudio(ctx context.Context, callID string, audio []byte) error {
	if a.pipeline == nil {
		return errors.New("app: no transcription provider configured")
	}
	return a.pipeline.Ingest(ctx, callID, audio)
}

// FlushAudio forces transcription of buffered residue.
func (a *App) FlushAudio(ctx context.Context, callID string) error {
	if a.pipeline == nil {
		return nil
	}
	return a.pipeline.Flush(ctx, callID)
}

// AttachStream registers the sink replies for callID are delivered to.
func (a *App) AttachStream(callID string, sink transport.StreamSink) {
	a.sinks.Store(callID, sink)
}

// DetachStream removes a previously attached sink.
func (a *App) DetachStream(callID string) {
	a.sinks.Delete(callID)
}

// handleTurn is the pipeline's turn handler: it runs the engine on a
// transcribed utterance and forwards the reply to the call's stream sink.
func (a *App) handleTurn(ctx context.Context, callID, text string) {
	sess, created := a.registry.GetOrCreate(callID)
	if created {
		a.metrics.ActiveCalls.Add(ctx, 1)
	}

	start := time.Now()
	reply, terminal := a.engine.HandleUtterance(ctx, sess, text)
	a.metrics.ModelTurnDuration.Record(ctx, time.Since(start).Seconds())
	a.metrics.RecordUtterance(ctx, terminal)

	if v, ok := a.sinks.Load(callID); ok {
		v.(transport.StreamSink)(reply, terminal)
	} else {
		slog.Debug("no stream attached for turn reply", "call_id", callID)
	}
}

// EndCall runs the end-of-call sequence: summary plus follow-up actions,
// archiving, then eviction. Ending an unknown call reports an error status
// without side effects.
func (a *App) EndCall(ctx context.Context, callID string) lifecycle.Result {
	ctx, span := observe.Tracer().Start(ctx, "call.end")
	defer span.End()

	sess, ok := a.registry.Get(callID)
	if !ok {
		return lifecycle.Result{
			Status:  lifecycle.StatusError,
			Summary: "Conversation Not Found For make Summary",
		}
	}

	start := time.Now()
	res := a.coordinator.OnCallEnd(ctx, sess)
	a.metrics.SummaryDuration.Record(ctx, time.Since(start).Seconds())

	if a.archive != nil {
		if err := a.archive.Save(ctx, sess); err != nil {
			slog.Warn("call archive failed", "call_id", callID, "err", err)
		}
	}

	if a.pipeline != nil {
		a.pipeline.Remove(callID)
	}
	a.registry.Remove(callID)
	a.metrics.ActiveCalls.Add(ctx, -1)
	slog.Info("call ended", "call_id", callID, "status", res.Status, "outcome", res.Outcome)
	return res
}

// LatestSummary reads the cached summary for a live call.
func (a *App) LatestSummary(callID string) (summary.Latest, error) {
	sess, ok := a.registry.Get(callID)
	if !ok {
		return summary.Latest{}, fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	return a.summaries.Latest(sess), nil
}

// UploadKnowledge ingests pre-extracted document text, then mirrors the new
// corpus to PostgreSQL when persistence is configured.
func (a *App) UploadKnowledge(ctx context.Context, source string, pages []string) (int, error) {
	if a.providers.Embeddings == nil {
		return 0, errors.New("app: no embeddings provider configured")
	}
	added, err := a.ingestor.Ingest(ctx, knowledge.Document{Source: source, Pages: pages})
	if err != nil {
		return 0, err
	}
	if a.chunks != nil && added > 0 {
		if err := a.chunks.Replace(ctx, a.store.Current()); err != nil {
			slog.Warn("knowledge persistence failed", "err", err)
		}
	}
	return added, nil
}
