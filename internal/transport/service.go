// Package transport exposes the call server's HTTP and websocket surface.
// Handlers only decode requests and dispatch to a [Service]; all call logic
// lives behind that interface.
package transport

import (
	"context"

	"github.com/callsmith-ai/callsmith/internal/lifecycle"
	"github.com/callsmith-ai/callsmith/internal/summary"
)

// StreamSink receives replies produced asynchronously for a streamed call.
// endCall reports that the reply is the final one.
type StreamSink func(reply string, endCall bool)

// Service is the application surface the transport layer dispatches to.
type Service interface {
	// StartCall registers the call and returns the opening greeting.
	StartCall(ctx context.Context, callID string) (greeting string, err error)

	// Speech runs one conversation turn for an already transcribed utterance.
	Speech(ctx context.Context, callID, text string) (reply string, endCall bool, err error)

	// StreamAudio buffers raw audio for the call; transcription and the
	// resulting turn happen asynchronously and surface via the attached
	// StreamSink.
	StreamAudio(ctx context.Context, callID string, audio []byte) error

	// FlushAudio forces transcription of any buffered residue.
	FlushAudio(ctx context.Context, callID string) error

	// AttachStream registers the sink replies for callID are delivered to.
	// DetachStream must be called when the connection goes away.
	AttachStream(callID string, sink StreamSink)
	DetachStream(callID string)

	// EndCall runs the end-of-call sequence and evicts the session.
	EndCall(ctx context.Context, callID string) lifecycle.Result

	// LatestSummary reads the cached summary without generating one.
	LatestSummary(callID string) (summary.Latest, error)

	// UploadKnowledge ingests pre-extracted document text into the knowledge
	// base and returns the number of chunks added.
	UploadKnowledge(ctx context.Context, source string, pages []string) (chunks int, err error)
}
