// Package openai provides a transcription provider backed by the OpenAI
// Whisper API. Buffered PCM utterances are wrapped in a RIFF/WAV container
// and submitted as one-shot transcription requests.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/callsmith-ai/callsmith/pkg/provider/transcribe"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

const (
	defaultSampleRate = 16000
	defaultChannels   = 1
)

// Compile-time assertion that Provider implements transcribe.Provider.
var _ transcribe.Provider = (*Provider)(nil)

// Provider implements transcribe.Provider using the OpenAI audio API.
type Provider struct {
	client     oai.Client
	model      string
	language   string
	sampleRate int
	channels   int
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	timeout    time.Duration
	language   string
	sampleRate int
	channels   int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "en").
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithAudioFormat sets the sample rate and channel count of incoming PCM
// data. Defaults to 16000 Hz mono.
func WithAudioFormat(sampleRate, channels int) Option {
	return func(c *config) {
		c.sampleRate = sampleRate
		c.channels = channels
	}
}

// New constructs a new OpenAI transcription Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai transcribe: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:     oai.NewClient(reqOpts...),
		model:      model,
		language:   cfg.language,
		sampleRate: cfg.sampleRate,
		channels:   cfg.channels,
	}, nil
}

// Transcribe implements transcribe.Provider.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) < 2 {
		return "", nil
	}

	wav := encodeWAV(pcm, p.sampleRate, p.channels)

	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcribe: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
