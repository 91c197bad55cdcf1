package model

import (
	"strings"
)

// Kind is the modality a question is asked and answered in.
type Kind string

const (
	// KindWritten is a question shown as text and answered by typing.
	KindWritten Kind = "written"
	// KindSpoken is a question read aloud and answered by voice recording.
	KindSpoken Kind = "spoken"
)

// ParseKind accepts the canonical kind names and the legacy "blank"/"audio" aliases.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "written", "blank", "text":
		return KindWritten, true
	case "spoken", "audio", "oral":
		return KindSpoken, true
	}
	return "", false
}

// Question is a single bank entry. Questions are immutable once loaded.
type Question struct {
	ID               string   `json:"id" yaml:"id"`
	Kind             Kind     `json:"kind" yaml:"kind"`
	Prompt           string   `json:"prompt" yaml:"prompt"`
	SpokenPrompt     string   `json:"spoken_prompt,omitempty" yaml:"spoken_prompt,omitempty"`
	ReferenceAnswer  string   `json:"reference_answer,omitempty" yaml:"reference_answer,omitempty"`
	AcceptedLiterals []string `json:"accepted_literals" yaml:"accepted_literals"`
}

// SpeechText returns the text a speech engine should read for this question.
func (q Question) SpeechText() string {
	if q.SpokenPrompt != "" {
		return q.SpokenPrompt
	}
	return q.Prompt
}

// HasReference reports whether the question can be graded against a reference answer.
func (q Question) HasReference() bool {
	return strings.TrimSpace(q.ReferenceAnswer) != ""
}

// Accepts reports whether text matches the reference answer or one of the
// accepted literals, ignoring case and surrounding whitespace.
func (q Question) Accepts(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if q.HasReference() && strings.EqualFold(text, strings.TrimSpace(q.ReferenceAnswer)) {
		return true
	}
	for _, lit := range q.AcceptedLiterals {
		if strings.EqualFold(text, strings.TrimSpace(lit)) {
			return true
		}
	}
	return false
}

// QuestionSet is a named, ordered group of questions.
type QuestionSet struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Question looks up a question by ID.
func (s QuestionSet) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Bank is the full catalog of question sets.
type Bank struct {
	Title       string        `json:"title" yaml:"title"`
	Description string        `json:"description" yaml:"description"`
	Sets        []QuestionSet `json:"sets" yaml:"sets"`
}

// Set looks up a question set by ID.
func (b Bank) Set(id string) (QuestionSet, bool) {
	for _, s := range b.Sets {
		if s.ID == id {
			return s, true
		}
	}
	return QuestionSet{}, false
}

// Lookup finds a question by set and question ID.
func (b Bank) Lookup(setID, questionID string) (QuestionRef, bool) {
	s, ok := b.Set(setID)
	if !ok {
		return QuestionRef{}, false
	}
	q, ok := s.Question(questionID)
	if !ok {
		return QuestionRef{}, false
	}
	return QuestionRef{SetID: setID, Question: q}, true
}

// Flatten lists every question in set order, then question order.
func (b Bank) Flatten() []QuestionRef {
	var refs []QuestionRef
	for _, s := range b.Sets {
		for _, q := range s.Questions {
			refs = append(refs, QuestionRef{SetID: s.ID, Question: q})
		}
	}
	return refs
}

// Count returns the total number of questions across all sets.
func (b Bank) Count() int {
	n := 0
	for _, s := range b.Sets {
		n += len(s.Questions)
	}
	return n
}

// Key identifies a question within the bank.
type Key struct {
	SetID      string `json:"set_id"`
	QuestionID string `json:"question_id"`
}

func (k Key) String() string {
	return k.SetID + "/" + k.QuestionID
}

// QuestionRef pairs a question with the set it belongs to.
type QuestionRef struct {
	SetID    string   `json:"set_id"`
	Question Question `json:"question"`
}

// Key returns the (set, question) key of the reference.
func (r QuestionRef) Key() Key {
	return Key{SetID: r.SetID, QuestionID: r.Question.ID}
}

// Answer is either a TextAnswer or an AudioAnswer.
type Answer interface {
	// Present reports whether the answer counts as given.
	Present() bool
	isAnswer()
}

// TextAnswer is a typed answer.
type TextAnswer struct {
	Content string
}

// Present is true when the content is not blank.
func (a TextAnswer) Present() bool { return strings.TrimSpace(a.Content) != "" }

func (TextAnswer) isAnswer() {}

// AudioAnswer is a recorded voice answer.
type AudioAnswer struct {
	Payload         []byte
	ContainerFormat string
	DurationSeconds float64
}

// Present is true when a payload was recorded.
func (a AudioAnswer) Present() bool { return len(a.Payload) > 0 }

func (AudioAnswer) isAnswer() {}

// EvaluationResult is the judged outcome for one answer.
type EvaluationResult struct {
	IsCorrect     bool    `json:"is_correct"`
	Score         int     `json:"score"`
	Feedback      string  `json:"feedback"`
	Transcription *string `json:"transcription,omitempty"`
}

// ExamConfig holds runtime assessment parameters set via CLI flags.
type ExamConfig struct {
	Shuffle       bool
	Seed          uint64 // 0 means entropy-seeded
	PromptVariant string // Judge prompt variant (strict, standard, lenient)
}
