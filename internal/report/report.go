// Package report keeps the finalized-scores summary and derives insights
// from it.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/assessor/internal/evaluate"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/store"
)

// ErrNothingEvaluated is returned by RecordBatch when no answer of the batch
// could be evaluated.
var ErrNothingEvaluated = errors.New("no answer could be evaluated")

// Graded is one evaluated answer with the kind of its question.
type Graded struct {
	Kind  model.Kind
	Score int
}

// Insights are average scores per assessment type.
type Insights struct {
	OralAverage    float64 `json:"oral_average"`
	WrittenAverage float64 `json:"written_average"`
	Count          int     `json:"count"`
}

// Scores reads and appends to the scores slot.
type Scores struct {
	slot store.Slot
	now  func() time.Time

	mu sync.Mutex
}

// New creates Scores kept in slot.
func New(slot store.Slot) *Scores {
	return &Scores{slot: slot, now: time.Now}
}

// List returns every recorded score. A missing slot is an empty list.
func (s *Scores) List(ctx context.Context) ([]model.StudentScore, error) {
	data, err := s.slot.Get(ctx, store.ScoresKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	var scores []model.StudentScore
	if err := json.Unmarshal(data, &scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	return scores, nil
}

// Record appends one score per assessment type present in graded, each the
// mean of that type's scores.
func (s *Scores) Record(ctx context.Context, sessionID, studentName string, graded []Graded) ([]model.StudentScore, error) {
	sums := map[model.AssessmentType]float64{}
	counts := map[model.AssessmentType]int{}
	for _, g := range graded {
		t := model.AssessmentTypeFor(g.Kind)
		sums[t] += float64(g.Score)
		counts[t]++
	}

	now := s.now().UTC()
	var added []model.StudentScore
	for _, t := range []model.AssessmentType{model.AssessmentOral, model.AssessmentWritten} {
		if counts[t] == 0 {
			continue
		}
		added = append(added, model.StudentScore{
			ID:             uuid.NewString(),
			SessionID:      sessionID,
			StudentName:    studentName,
			AssessmentType: t,
			Score:          round2(sums[t] / float64(counts[t])),
			RecordedAt:     now,
		})
	}
	if len(added) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	scores, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	scores = append(scores, added...)
	data, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("encode scores: %w", err)
	}
	if err := s.slot.Put(ctx, store.ScoresKey, data); err != nil {
		return nil, fmt.Errorf("save scores: %w", err)
	}
	return added, nil
}

// RecordBatch records the scores of an evaluated batch. Failed items count
// as zero unless every item failed, in which case nothing is recorded.
func (s *Scores) RecordBatch(ctx context.Context, sessionID, studentName string, b evaluate.Batch) ([]model.StudentScore, error) {
	if b.AllFailed() {
		return nil, ErrNothingEvaluated
	}
	graded := make([]Graded, 0, len(b.Items))
	for i, item := range b.Items {
		graded = append(graded, Graded{Kind: item.Ref.Question.Kind, Score: b.Results[i].Score})
	}
	return s.Record(ctx, sessionID, studentName, graded)
}

// Insights averages the recorded scores per assessment type.
func (s *Scores) Insights(ctx context.Context) (Insights, error) {
	scores, err := s.List(ctx)
	if err != nil {
		return Insights{}, err
	}
	return Summarize(scores), nil
}

// Summarize computes averages rounded to two decimals; an empty type
// averages to 0.
func Summarize(scores []model.StudentScore) Insights {
	var oral, written []float64
	for _, sc := range scores {
		switch sc.AssessmentType {
		case model.AssessmentOral:
			oral = append(oral, sc.Score)
		case model.AssessmentWritten:
			written = append(written, sc.Score)
		}
	}
	return Insights{OralAverage: mean(oral), WrittenAverage: mean(written), Count: len(scores)}
}

// Export builds the downloadable scores document.
func (s *Scores) Export(ctx context.Context, title string) (model.ScoresExport, error) {
	scores, err := s.List(ctx)
	if err != nil {
		return model.ScoresExport{}, err
	}
	in := Summarize(scores)
	return model.ScoresExport{
		Title:      title,
		ExportedAt: s.now().UTC(),
		OralAvg:    in.OralAverage,
		WrittenAvg: in.WrittenAverage,
		Scores:     scores,
	}, nil
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return round2(sum / float64(len(vals)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
