// Package progress computes completion metrics over a question sequence.
package progress

import (
	"math"

	"github.com/pavelanni/assessor/internal/model"
)

// AnswerChecker reports whether a question has a present answer.
type AnswerChecker interface {
	IsAnswered(setID, questionID string) bool
}

// Snapshot is the progress summary reported to clients.
type Snapshot struct {
	Answered   int `json:"answered"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// CompletionPercentage returns round(100 * answered / total), or 0 for an
// empty sequence.
func CompletionPercentage(seq []model.QuestionRef, answered AnswerChecker) int {
	return Take(seq, answered).Percentage
}

// Take counts answered questions in seq.
func Take(seq []model.QuestionRef, answered AnswerChecker) Snapshot {
	s := Snapshot{Total: len(seq)}
	for _, ref := range seq {
		if answered.IsAnswered(ref.SetID, ref.Question.ID) {
			s.Answered++
		}
	}
	if s.Total > 0 {
		s.Percentage = int(math.Round(100 * float64(s.Answered) / float64(s.Total)))
	}
	return s
}

// Partition splits seq into answered and unanswered questions, keeping order.
func Partition(seq []model.QuestionRef, answered AnswerChecker) (done, remaining []model.QuestionRef) {
	for _, ref := range seq {
		if answered.IsAnswered(ref.SetID, ref.Question.ID) {
			done = append(done, ref)
		} else {
			remaining = append(remaining, ref)
		}
	}
	return done, remaining
}
