// Package transcribe defines the Provider interface for batch speech-to-text
// backends.
//
// A transcription provider converts a buffered utterance of raw 16-bit signed
// little-endian PCM audio into text. Unlike a streaming STT session, the
// contract here is deliberately batch-shaped: the audio ingest pipeline
// accumulates telephony media frames into fixed-size buffers and submits each
// completed buffer as one transcription request on a bounded worker pool.
//
// Implementations must be safe for concurrent use; the same Provider instance
// serves every active call.
package transcribe

import "context"

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// Transcribe converts pcm (16-bit signed little-endian PCM) into text.
	//
	// An empty string with a nil error is a valid result and means no speech
	// was recognised; callers skip the turn rather than treating it as a
	// failure. A non-nil error indicates the backend could not process the
	// audio at all.
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}
