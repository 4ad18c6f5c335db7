package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"transcribe": {"whisper-native", "openai"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", fb.Name)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
	}
	validateProviderName("transcribe", cfg.Providers.Transcribe.Name)
	for i, fb := range cfg.Providers.TranscribeFallbacks {
		validateProviderName("transcribe", fb.Name)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.transcribe_fallbacks[%d].name is required", i))
		}
	}
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; the agent will not be able to respond to callers")
	}
	if cfg.Providers.Transcribe.Name == "" {
		slog.Warn("no transcription provider configured; streamed audio will be dropped")
	}
	if cfg.Providers.Transcribe.Name == "whisper-native" && cfg.Providers.Transcribe.ModelPath == "" {
		errs = append(errs, errors.New("providers.transcribe.model_path is required when name is whisper-native"))
	}

	// Embeddings ↔ knowledge dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Knowledge.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but knowledge.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Providers.Embeddings.Name == "" && cfg.Storage.PostgresDSN != "" {
		slog.Warn("storage.postgres_dsn is set but no embeddings provider is configured; persisted knowledge cannot be searched")
	}

	// Agent tuning
	if cfg.Agent.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("agent.max_tokens %d must not be negative", cfg.Agent.MaxTokens))
	}
	if cfg.Agent.ModelConcurrency < 0 {
		errs = append(errs, fmt.Errorf("agent.model_concurrency %d must not be negative", cfg.Agent.ModelConcurrency))
	}

	// Knowledge tuning
	if cfg.Knowledge.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("knowledge.chunk_size %d must not be negative", cfg.Knowledge.ChunkSize))
	}

	// Ingest tuning
	if cfg.Ingest.FlushThresholdBytes < 0 {
		errs = append(errs, fmt.Errorf("ingest.flush_threshold_bytes %d must not be negative", cfg.Ingest.FlushThresholdBytes))
	}
	if cfg.Ingest.Workers < 0 {
		errs = append(errs, fmt.Errorf("ingest.workers %d must not be negative", cfg.Ingest.Workers))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
