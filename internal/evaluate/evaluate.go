// Package evaluate scores answers: recordings are transcribed, then every
// answer is judged and the verdict normalized. Batches run strictly in order
// and a failing item never stops the rest.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/model"
)

var (
	// ErrNotConfigured means the transcription or judging capability is missing.
	ErrNotConfigured = llm.ErrNotConfigured
	// ErrTranscriptionFailed wraps transcription service errors.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrJudgingFailed wraps judging service errors.
	ErrJudgingFailed = errors.New("judging failed")
)

const (
	// DefaultFeedback replaces missing or blank judge feedback.
	DefaultFeedback = "No feedback available"
	// FailureFeedback marks the placeholder for an item that could not be evaluated.
	FailureFeedback = "evaluation error"
	// DefaultTimeout bounds the external calls of one item.
	DefaultTimeout = 60 * time.Second
)

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, payload []byte, containerFormat string) (string, error)
}

// JudgeRequest is one answer to judge. An empty Reference selects
// open-ended mode.
type JudgeRequest struct {
	Prompt           string
	Answer           string
	Reference        string
	AcceptedLiterals []string
}

// Graded reports whether the request has a reference answer.
func (r JudgeRequest) Graded() bool {
	return strings.TrimSpace(r.Reference) != ""
}

// JudgeResponse is the raw verdict; any field may be missing.
type JudgeResponse struct {
	IsCorrect *bool
	Score     *float64
	Feedback  *string
}

// Judge scores an answer.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (JudgeResponse, error)
}

// Item is one question/answer pair to evaluate.
type Item struct {
	Ref              model.QuestionRef
	Prompt           string
	Answer           model.Answer
	Reference        string
	AcceptedLiterals []string
}

// AnswerSource looks up stored answers.
type AnswerSource interface {
	Get(setID, questionID string) (model.Answer, bool)
}

// ItemsFor builds items for the answered questions of refs, in order.
func ItemsFor(refs []model.QuestionRef, answers AnswerSource) []Item {
	var items []Item
	for _, ref := range refs {
		a, ok := answers.Get(ref.SetID, ref.Question.ID)
		if !ok || !a.Present() {
			continue
		}
		items = append(items, Item{
			Ref:              ref,
			Prompt:           ref.Question.Prompt,
			Answer:           a,
			Reference:        ref.Question.ReferenceAnswer,
			AcceptedLiterals: ref.Question.AcceptedLiterals,
		})
	}
	return items
}

// Pipeline evaluates items with an optional transcriber and judge.
type Pipeline struct {
	transcriber Transcriber
	judge       Judge
	timeout     time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout bounds each item's external calls. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// New creates a pipeline. Nil capabilities make the matching step fail
// with ErrNotConfigured.
func New(t Transcriber, j Judge, opts ...Option) *Pipeline {
	p := &Pipeline{transcriber: t, judge: j, timeout: DefaultTimeout}
	for _, o := range opts {
		o(p)
	}
	return p
}

// EvaluateItem transcribes (for recordings), judges and normalizes one item.
func (p *Pipeline) EvaluateItem(ctx context.Context, item Item) (model.EvaluationResult, error) {
	var (
		text          string
		transcription *string
	)
	switch a := item.Answer.(type) {
	case model.AudioAnswer:
		if p.transcriber == nil {
			return model.EvaluationResult{}, ErrNotConfigured
		}
		t, err := p.transcriber.Transcribe(ctx, a.Payload, a.ContainerFormat)
		if err != nil {
			if errors.Is(err, ErrNotConfigured) {
				return model.EvaluationResult{}, err
			}
			return model.EvaluationResult{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
		}
		text = t
		transcription = &t
	case model.TextAnswer:
		text = a.Content
	}

	if p.judge == nil {
		return model.EvaluationResult{}, ErrNotConfigured
	}
	req := JudgeRequest{
		Prompt:           item.Prompt,
		Answer:           text,
		Reference:        item.Reference,
		AcceptedLiterals: item.AcceptedLiterals,
	}
	resp, err := p.judge.Judge(ctx, req)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return model.EvaluationResult{}, err
		}
		return model.EvaluationResult{}, fmt.Errorf("%w: %v", ErrJudgingFailed, err)
	}

	result := Normalize(resp, req.Graded())
	result.Transcription = transcription
	return result, nil
}

// Batch is the outcome of Run. Results and Errs are aligned with Items; a
// failed item has a non-nil error and the placeholder result.
type Batch struct {
	Items   []Item
	Results []model.EvaluationResult
	Errs    []error
}

// Failed counts the items that could not be evaluated.
func (b Batch) Failed() int {
	n := 0
	for _, err := range b.Errs {
		if err != nil {
			n++
		}
	}
	return n
}

// AllFailed reports whether the batch is non-empty and no item was evaluated.
func (b Batch) AllFailed() bool {
	return len(b.Items) > 0 && b.Failed() == len(b.Items)
}

// QuestionResults pairs every item with its answer and result for output.
func (b Batch) QuestionResults() []model.QuestionResult {
	out := make([]model.QuestionResult, 0, len(b.Items))
	for i, item := range b.Items {
		res := b.Results[i]
		q := model.QuestionResult{
			SetID:      item.Ref.SetID,
			QuestionID: item.Ref.Question.ID,
			Kind:       item.Ref.Question.Kind,
			Prompt:     item.Prompt,
			Reference:  item.Reference,
			Result:     &res,
		}
		switch a := item.Answer.(type) {
		case model.TextAnswer:
			q.AnswerText = a.Content
		case model.AudioAnswer:
			q.AudioFormat = a.ContainerFormat
		}
		out = append(out, q)
	}
	return out
}

// Run evaluates items one at a time in input order. After each item
// onProgress (if set) receives the completed count and the total.
func (p *Pipeline) Run(ctx context.Context, items []Item, onProgress func(completed, total int)) Batch {
	b := Batch{
		Items:   items,
		Results: make([]model.EvaluationResult, 0, len(items)),
		Errs:    make([]error, 0, len(items)),
	}
	for i, item := range items {
		result, err := p.evaluateBounded(ctx, item)
		if err != nil {
			slog.Warn("evaluation failed", "index", i, "question", item.Ref.Key().String(), "error", err)
			result = Placeholder()
		}
		if onProgress != nil {
			onProgress(i+1, len(items))
		}
		b.Results = append(b.Results, result)
		b.Errs = append(b.Errs, err)
	}
	return b
}

// EvaluateAll is Run without the per-item errors.
func (p *Pipeline) EvaluateAll(ctx context.Context, items []Item, onProgress func(completed, total int)) []model.EvaluationResult {
	return p.Run(ctx, items, onProgress).Results
}

func (p *Pipeline) evaluateBounded(ctx context.Context, item Item) (model.EvaluationResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.EvaluateItem(ctx, item)
}

// Placeholder is the result recorded for an item that could not be evaluated.
func Placeholder() model.EvaluationResult {
	return model.EvaluationResult{IsCorrect: false, Score: 0, Feedback: FailureFeedback}
}

// Normalize fills defaults into a raw verdict. Open-ended answers are always
// reported correct; scores are rounded and clamped to 0..100.
func Normalize(resp JudgeResponse, graded bool) model.EvaluationResult {
	var r model.EvaluationResult

	if graded {
		r.IsCorrect = resp.IsCorrect != nil && *resp.IsCorrect
	} else {
		r.IsCorrect = true
	}

	if resp.Score != nil && !math.IsNaN(*resp.Score) {
		s := math.Round(*resp.Score)
		r.Score = int(math.Max(0, math.Min(100, s)))
	}

	r.Feedback = DefaultFeedback
	if resp.Feedback != nil && strings.TrimSpace(*resp.Feedback) != "" {
		r.Feedback = *resp.Feedback
	}
	return r
}
