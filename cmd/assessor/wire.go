package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/pavelanni/assessor/internal/evaluate"
	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/llm/prompts"
	"github.com/pavelanni/assessor/internal/store"
)

func openSlot(ctx context.Context, v *viper.Viper) (store.Backend, error) {
	cfg := store.Config{
		Backend:  v.GetString("slot-backend"),
		DBPath:   v.GetString("db"),
		RedisURL: v.GetString("redis-url"),
		MongoURI: v.GetString("mongo-uri"),
		MongoDB:  v.GetString("mongo-db"),
		TTL:      v.GetDuration("slot-ttl"),
	}
	slot, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s slot: %w", cfg.Backend, err)
	}
	return slot, nil
}

var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// apiKey returns --llm-key when provider is the judge provider, otherwise
// the provider's conventional environment variable.
func apiKey(v *viper.Viper, provider string) string {
	if v.GetString("llm-provider") == provider {
		if k := v.GetString("llm-key"); k != "" {
			return k
		}
	}
	return os.Getenv(providerKeyEnv[provider])
}

func llmConfig(v *viper.Viper) llm.Config {
	cfg := llm.DefaultConfig()
	cfg.Provider = v.GetString("llm-provider")
	cfg.Transcribe = v.GetString("transcribe-provider")
	cfg.Speech = v.GetString("tts-provider")
	cfg.TranscribeModel = v.GetString("transcribe-model")
	if voice := v.GetString("tts-voice"); voice != "" {
		cfg.Voice = voice
	}

	cfg.OpenAI.APIKey = apiKey(v, "openai")
	cfg.OpenAI.BaseURL = v.GetString("llm-url")
	cfg.Anthropic.APIKey = apiKey(v, "anthropic")
	cfg.Gemini.APIKey = apiKey(v, "gemini")

	if m := v.GetString("llm-model"); m != "" {
		switch cfg.Provider {
		case "openai":
			cfg.OpenAI.Model = m
		case "anthropic":
			cfg.Anthropic.Model = m
		case "gemini":
			cfg.Gemini.Model = m
		}
	}
	return cfg
}

// buildPipeline wires the configured transcriber and judge. A capability
// without credentials is left out and its items fail as not configured.
func buildPipeline(ctx context.Context, v *viper.Viper) (*evaluate.Pipeline, error) {
	cfg := llmConfig(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var transcriber evaluate.Transcriber
	t, err := llm.NewTranscriber(ctx, cfg)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		slog.Warn("transcription disabled", "provider", cfg.Transcribe, "reason", err)
	case err != nil:
		return nil, fmt.Errorf("create transcriber: %w", err)
	default:
		transcriber = t
	}

	var judge evaluate.Judge
	switch cfg.Provider {
	case "literal":
		judge = evaluate.LiteralJudge{}
	default:
		p, err := llm.NewProvider(ctx, cfg)
		if errors.Is(err, llm.ErrNotConfigured) {
			slog.Warn("answer judging disabled", "provider", cfg.Provider, "reason", err)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("create judge provider: %w", err)
		}
		variant := prompts.PromptVariant(strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant"))))
		if !prompts.IsValidVariant(string(variant)) {
			slog.Warn("invalid prompt-variant, using standard", "variant", variant)
			variant = prompts.PromptStandard
		}
		j, err := evaluate.NewLLMJudge(p, variant)
		if err != nil {
			return nil, err
		}
		judge = j
	}

	return evaluate.New(transcriber, judge, evaluate.WithTimeout(v.GetDuration("eval-timeout"))), nil
}
