package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/callsmith-ai/callsmith/pkg/provider/llm"
	llmmock "github.com/callsmith-ai/callsmith/pkg/provider/llm/mock"
	"github.com/callsmith-ai/callsmith/pkg/provider/transcribe"
	transcribemock "github.com/callsmith-ai/callsmith/pkg/provider/transcribe/mock"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", TripAfter: 3, Cooldown: time.Hour}, nil)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("open breaker ran the call: %v", err)
	}
	if called {
		t.Error("fn invoked while open")
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{TripAfter: 2, Cooldown: time.Hour}, nil)
	boom := errors.New("boom")

	b.Do(func() error { return boom })
	b.Do(func() error { return nil })
	b.Do(func() error { return boom })
	if b.State() != BreakerClosed {
		t.Errorf("interleaved success did not reset the counter: %v", b.State())
	}
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	b := NewBreaker(BreakerConfig{TripAfter: 1, Cooldown: 10 * time.Millisecond, ProbeBudget: 1}, nil)
	b.Do(func() error { return errors.New("boom") })
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != BreakerProbing {
		t.Fatalf("state after cooldown = %v", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("successful probe did not close the breaker: %v", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{TripAfter: 1, Cooldown: 10 * time.Millisecond, ProbeBudget: 1}, nil)
	b.Do(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)
	b.Do(func() error { return errors.New("still broken") })
	if b.State() != BreakerOpen {
		t.Errorf("failed probe left breaker %v, want open", b.State())
	}
}

func TestFailoverPrefersPrimary(t *testing.T) {
	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "primary"}}
	fallback := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "fallback"}}
	chain := NewFailover[llm.Provider]("primary", primary, BreakerConfig{}, nil)
	chain.Add("fallback", fallback)
	p := NewLLM(chain)

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(fallback.CompleteCalls) != 0 {
		t.Error("fallback consulted while primary healthy")
	}
}

func TestFailoverFallsBack(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("quota")}
	fallback := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "fallback"}}
	chain := NewFailover[llm.Provider]("primary", primary, BreakerConfig{}, nil)
	chain.Add("fallback", fallback)
	p := NewLLM(chain)

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "fallback" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestFailoverAllFail(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("a")}
	fallback := &llmmock.Provider{CompleteErr: errors.New("b")}
	chain := NewFailover[llm.Provider]("primary", primary, BreakerConfig{}, nil)
	chain.Add("fallback", fallback)
	p := NewLLM(chain)

	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Errorf("err = %v, want ErrAllBackendsFailed", err)
	}
}

func TestFailoverSkipsOpenBreaker(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	fallback := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	chain := NewFailover[llm.Provider]("primary", primary,
		BreakerConfig{TripAfter: 1, Cooldown: time.Hour}, nil)
	chain.Add("fallback", fallback)
	p := NewLLM(chain)

	// First call trips the primary's breaker.
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatal(err)
	}
	primaryCalls := len(primary.CompleteCalls)

	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatal(err)
	}
	if len(primary.CompleteCalls) != primaryCalls {
		t.Error("tripped primary still being probed")
	}
}

func TestTranscriberFallsBack(t *testing.T) {
	primary := &transcribemock.Provider{Err: errors.New("model load failed")}
	fallback := &transcribemock.Provider{Text: "hello world"}
	chain := NewFailover[transcribe.Provider]("whisper-native", primary, BreakerConfig{}, nil)
	chain.Add("openai", fallback)
	tr := NewTranscriber(chain)

	text, err := tr.Transcribe(context.Background(), []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q", text)
	}
	if len(primary.Calls) != 1 {
		t.Errorf("primary calls = %d, want 1", len(primary.Calls))
	}
}
