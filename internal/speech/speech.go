// Package speech reads question prompts aloud.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/assessor/internal/llm"
)

// ErrUnsupported means no speech engine is available.
var ErrUnsupported = errors.New("speech output not supported")

// Audio is synthesized speech.
type Audio struct {
	Data        []byte
	ContentType string
}

// Speaker turns text into audio.
type Speaker interface {
	Speak(ctx context.Context, text string) (Audio, error)
}

// Unsupported is the speaker used when TTS is disabled or unconfigured.
type Unsupported struct{}

func (Unsupported) Speak(context.Context, string) (Audio, error) {
	return Audio{}, ErrUnsupported
}

type engine interface {
	Speak(ctx context.Context, text string) ([]byte, string, error)
}

// OpenAI wraps the OpenAI TTS endpoint.
type OpenAI struct {
	engine engine
}

func (o *OpenAI) Speak(ctx context.Context, text string) (Audio, error) {
	data, contentType, err := o.engine.Speak(ctx, text)
	if err != nil {
		return Audio{}, fmt.Errorf("synthesize speech: %w", err)
	}
	return Audio{Data: data, ContentType: contentType}, nil
}

// New builds the configured speaker. A missing key or the "none" provider
// yields Unsupported rather than an error.
func New(cfg llm.Config) (Speaker, error) {
	switch cfg.Speech {
	case "none", "":
		return Unsupported{}, nil
	case "openai":
		s, err := llm.NewOpenAISpeaker(cfg.OpenAI, cfg.Voice, cfg.SpeechSpeed)
		if errors.Is(err, llm.ErrNotConfigured) {
			slog.Warn("speech output disabled", "reason", err)
			return Unsupported{}, nil
		}
		if err != nil {
			return nil, err
		}
		return NewCached(&OpenAI{engine: s}), nil
	}
	return nil, fmt.Errorf("unknown speech provider: %q", cfg.Speech)
}

// Cached memoizes synthesized prompts; the bank is fixed for the process
// lifetime so the cache is never invalidated.
type Cached struct {
	inner Speaker

	mu    sync.Mutex
	cache map[string]Audio
}

// NewCached wraps inner with an in-memory cache keyed by text.
func NewCached(inner Speaker) *Cached {
	return &Cached{inner: inner, cache: make(map[string]Audio)}
}

func (c *Cached) Speak(ctx context.Context, text string) (Audio, error) {
	c.mu.Lock()
	a, ok := c.cache[text]
	c.mu.Unlock()
	if ok {
		return a, nil
	}

	a, err := c.inner.Speak(ctx, text)
	if err != nil {
		return Audio{}, err
	}
	c.mu.Lock()
	c.cache[text] = a
	c.mu.Unlock()
	return a, nil
}
