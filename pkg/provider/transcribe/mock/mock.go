// Package mock provides a test double for the transcribe.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/callsmith-ai/callsmith/pkg/provider/transcribe"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// PCM is a copy of the audio buffer passed to Transcribe.
	PCM []byte
}

// Provider is a mock implementation of transcribe.Provider.
// Zero values cause Transcribe to return "", nil (no speech recognised).
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// Texts, when non-empty, is consumed one entry per call before falling
	// back to Text.
	Texts []string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted text.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, PCM: buf})
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Texts) > 0 {
		text := p.Texts[0]
		p.Texts = p.Texts[1:]
		return text, nil
	}
	return p.Text, nil
}

// SetText changes the scripted text. Thread-safe.
func (p *Provider) SetText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Text = text
}

// SetError changes the scripted error. Thread-safe.
func (p *Provider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

// ReadCalls invokes fn with the recorded calls while holding the lock, so
// tests can inspect them while worker goroutines are still running.
func (p *Provider) ReadCalls(fn func(calls [][]byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := make([][]byte, len(p.Calls))
	for i, c := range p.Calls {
		buf[i] = c.PCM
	}
	fn(buf)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements transcribe.Provider at compile time.
var _ transcribe.Provider = (*Provider)(nil)
