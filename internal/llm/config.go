package llm

import (
	"context"
	"fmt"
)

// Config selects the judge, transcription and speech backends.
type Config struct {
	// Provider is the judge provider: openai, anthropic, gemini, mock or none.
	Provider string
	// Transcribe is the transcription provider: openai, gemini or none.
	Transcribe string
	// Speech is the TTS provider: openai or none.
	Speech string

	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Gemini    GeminiConfig

	TranscribeModel string
	Voice           string
	SpeechSpeed     float64
}

// OpenAIConfig holds OpenAI settings.
type OpenAIConfig struct {
	APIKey  string
	Model   string // Default: "gpt-4o-mini"
	BaseURL string // Optional. Any OpenAI-compatible API.
}

// AnthropicConfig holds Anthropic settings.
type AnthropicConfig struct {
	APIKey  string
	Model   string // Default: "claude-haiku"
	BaseURL string
}

// GeminiConfig holds Gemini settings.
type GeminiConfig struct {
	APIKey string
	Model  string // Default: "gemini-flash"
}

// DefaultConfig mirrors the hosted defaults: gpt-4o-mini judging,
// whisper-1 transcription, tts-1 at 0.9 speed.
func DefaultConfig() Config {
	return Config{
		Provider:        "openai",
		Transcribe:      "openai",
		Speech:          "openai",
		OpenAI:          OpenAIConfig{Model: "gpt-4o-mini"},
		Anthropic:       AnthropicConfig{Model: "claude-haiku"},
		Gemini:          GeminiConfig{Model: "gemini-flash"},
		TranscribeModel: "whisper-1",
		Voice:           "alloy",
		SpeechSpeed:     0.9,
	}
}

// Validate checks provider names. Missing keys are not an error: the
// capability degrades to ErrNotConfigured at call time.
func (c Config) Validate() error {
	switch c.Provider {
	case "openai", "anthropic", "gemini", "mock", "literal", "none", "":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	switch c.Transcribe {
	case "openai", "gemini", "none", "":
	default:
		return fmt.Errorf("unknown transcription provider: %q", c.Transcribe)
	}
	switch c.Speech {
	case "openai", "none", "":
	default:
		return fmt.Errorf("unknown speech provider: %q", c.Speech)
	}
	return nil
}

// NewProvider builds the judge provider wrapped with logging. It returns
// ErrNotConfigured for "none" or when the selected provider has no key.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		return NewMockProvider(), nil
	case "none", "", "literal":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}
	return WithLogging(base, cfg.Provider), nil
}

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, payload []byte, containerFormat string) (string, error)
}

// NewTranscriber builds the configured transcription backend.
func NewTranscriber(ctx context.Context, cfg Config) (Transcriber, error) {
	switch cfg.Transcribe {
	case "openai":
		oc := cfg.OpenAI
		oc.Model = cfg.TranscribeModel
		t, err := NewOpenAITranscriber(oc)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "gemini":
		gc := cfg.Gemini
		if cfg.TranscribeModel != "" && cfg.TranscribeModel != "whisper-1" {
			gc.Model = cfg.TranscribeModel
		}
		g, err := NewGeminiProvider(ctx, gc)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "none", "":
		return nil, ErrNotConfigured
	}
	return nil, fmt.Errorf("unknown transcription provider: %q", cfg.Transcribe)
}
