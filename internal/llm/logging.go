package llm

import (
	"context"
	"log/slog"
	"time"
)

type loggingProvider struct {
	inner Provider
	name  string
}

// WithLogging wraps p so every call is logged with provider, model,
// purpose and latency.
func WithLogging(p Provider, name string) Provider {
	return &loggingProvider{inner: p, name: name}
}

func (l *loggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)

	attrs := []any{
		"provider", l.name,
		"model", l.inner.ModelID(),
		"purpose", PurposeFrom(ctx),
		"latency_ms", time.Since(start).Milliseconds(),
		"success", err == nil,
	}
	if resp != nil {
		attrs = append(attrs,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"stop_reason", resp.StopReason,
		)
		slog.Debug("LLM response", "raw", string(resp.Content))
	}
	if err != nil {
		slog.Warn("LLM request failed", append(attrs, "error", err)...)
	} else {
		slog.Debug("LLM request", attrs...)
	}
	return resp, err
}

func (l *loggingProvider) ModelID() string {
	return l.inner.ModelID()
}
