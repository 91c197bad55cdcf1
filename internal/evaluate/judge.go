package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/llm/prompts"
)

// VerdictSchema is the JSON shape requested from the model.
var VerdictSchema = &llm.Schema{
	Name:        "answer-verdict",
	Description: "Verdict on a student's answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"isCorrect": map[string]any{"type": "boolean"},
			"score":     map[string]any{"type": "number", "description": "0 to 100"},
			"feedback":  map[string]any{"type": "string"},
		},
		"required":             []string{"isCorrect", "score", "feedback"},
		"additionalProperties": false,
	},
}

const (
	judgeTemperature = 0.3
	judgeMaxTokens   = 512
)

// LLMJudge asks a language model for a verdict.
type LLMJudge struct {
	provider llm.Provider
	variant  prompts.PromptVariant
}

// NewLLMJudge loads the prompt templates and returns a judge using variant.
func NewLLMJudge(p llm.Provider, variant prompts.PromptVariant) (*LLMJudge, error) {
	if err := prompts.Load(prompts.Embedded); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if variant == "" {
		variant = prompts.PromptStandard
	}
	if !prompts.IsValidVariant(string(variant)) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	return &LLMJudge{provider: p, variant: variant}, nil
}

func (j *LLMJudge) Judge(ctx context.Context, req JudgeRequest) (JudgeResponse, error) {
	if j.provider == nil {
		return JudgeResponse{}, ErrNotConfigured
	}
	prompt, err := prompts.Build(j.variant, prompts.Data{
		Question:  req.Prompt,
		Reference: req.Reference,
		Answer:    req.Answer,
	})
	if err != nil {
		return JudgeResponse{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := j.provider.Generate(llm.WithPurpose(ctx, "judge"), llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Schema:      VerdictSchema,
		MaxTokens:   judgeMaxTokens,
		Temperature: judgeTemperature,
	})
	if err != nil {
		return JudgeResponse{}, err
	}
	return decodeVerdict(resp.Content), nil
}

// decodeVerdict keeps every field that has the right type. Content that is
// not a JSON object yields an empty verdict.
func decodeVerdict(raw json.RawMessage) JudgeResponse {
	if err := llm.Validate(VerdictSchema, raw); err == nil {
		var v struct {
			IsCorrect *bool    `json:"isCorrect"`
			Score     *float64 `json:"score"`
			Feedback  *string  `json:"feedback"`
		}
		if err := json.Unmarshal(raw, &v); err == nil {
			return JudgeResponse{IsCorrect: v.IsCorrect, Score: v.Score, Feedback: v.Feedback}
		}
	} else {
		slog.Debug("judge response does not match schema", "error", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return JudgeResponse{}
	}
	var out JudgeResponse
	var b bool
	if json.Unmarshal(fields["isCorrect"], &b) == nil {
		out.IsCorrect = &b
	}
	var f float64
	if json.Unmarshal(fields["score"], &f) == nil {
		out.Score = &f
	}
	var s string
	if json.Unmarshal(fields["feedback"], &s) == nil {
		out.Feedback = &s
	}
	return out
}

// LiteralJudge grades offline by exact match against the reference answer
// and the accepted literals. It cannot judge open-ended questions.
type LiteralJudge struct{}

func (LiteralJudge) Judge(_ context.Context, req JudgeRequest) (JudgeResponse, error) {
	if !req.Graded() && len(req.AcceptedLiterals) == 0 {
		return JudgeResponse{}, ErrNotConfigured
	}
	answer := strings.TrimSpace(req.Answer)
	match := answer != "" && strings.EqualFold(answer, strings.TrimSpace(req.Reference))
	for _, lit := range req.AcceptedLiterals {
		if answer != "" && strings.EqualFold(answer, strings.TrimSpace(lit)) {
			match = true
		}
	}

	score, feedback := 0.0, fmt.Sprintf("Expected: %s", req.Reference)
	if match {
		score, feedback = 100, "Correct."
	}
	return JudgeResponse{IsCorrect: &match, Score: &score, Feedback: &feedback}, nil
}
