// Package config provides the configuration schema and loader for the
// Callsmith call server.
package config

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation backs each external
// dependency.
type ProvidersConfig struct {
	LLM LLMConfig `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary model fails.
	LLMFallbacks []LLMConfig `yaml:"llm_fallbacks"`

	Transcribe TranscribeConfig `yaml:"transcribe"`

	// TranscribeFallbacks are tried in order when the primary backend fails.
	TranscribeFallbacks []TranscribeConfig `yaml:"transcribe_fallbacks"`

	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

// LLMConfig selects and configures an LLM backend.
type LLMConfig struct {
	// Name selects the implementation: "openai" or an any-llm vendor such as
	// "anthropic", "gemini", "ollama", "mistral", "groq".
	Name string `yaml:"name"`

	// APIKey is the authentication key if the backend needs one.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`
}

// TranscribeConfig selects the speech-to-text backend.
type TranscribeConfig struct {
	// Name selects the implementation: "whisper-native" or "openai".
	Name string `yaml:"name"`

	// APIKey authenticates against a hosted backend.
	APIKey string `yaml:"api_key"`

	// ModelPath is the ggml model file for the native backend.
	ModelPath string `yaml:"model_path"`

	// Language hints the spoken language (e.g., "en").
	Language string `yaml:"language"`
}

// EmbeddingsConfig selects the embedding backend used for knowledge
// retrieval.
type EmbeddingsConfig struct {
	// Name selects the implementation: "openai" or "ollama".
	Name string `yaml:"name"`

	// APIKey authenticates against a hosted backend.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the embedding model.
	Model string `yaml:"model"`
}

// AgentConfig tunes the conversation engine.
type AgentConfig struct {
	// SystemPrompt overrides the built-in sales prompt when non-empty.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxTokens caps completion length per turn.
	MaxTokens int `yaml:"max_tokens"`

	// ModelConcurrency bounds in-flight model requests across all calls.
	ModelConcurrency int `yaml:"model_concurrency"`

	// Vocabulary lists proper nouns the transcript corrector may restore.
	Vocabulary []string `yaml:"vocabulary"`
}

// KnowledgeConfig tunes document ingestion and retrieval.
type KnowledgeConfig struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int `yaml:"chunk_size"`

	// EmbeddingDimensions must match the configured embedding model.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// StorageConfig configures PostgreSQL persistence. Empty DSNs disable the
// corresponding store.
type StorageConfig struct {
	// PostgresDSN is the connection string for the call archive and the
	// persisted knowledge corpus.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// IngestConfig tunes the audio pipeline.
type IngestConfig struct {
	// FlushThresholdBytes triggers transcription once a call's buffer
	// crosses it.
	FlushThresholdBytes int `yaml:"flush_threshold_bytes"`

	// Workers is the transcription worker pool size.
	Workers int `yaml:"workers"`
}
