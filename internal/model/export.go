package model

import "time"

// AssessmentType groups scores by how the questions were answered.
type AssessmentType string

const (
	// AssessmentOral covers spoken questions.
	AssessmentOral AssessmentType = "Oral"
	// AssessmentWritten covers written questions.
	AssessmentWritten AssessmentType = "Written"
)

// AssessmentTypeFor maps a question kind to its assessment type.
func AssessmentTypeFor(k Kind) AssessmentType {
	if k == KindSpoken {
		return AssessmentOral
	}
	return AssessmentWritten
}

// StudentScore is one entry of the finalized-scores summary.
type StudentScore struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	StudentName    string         `json:"student_name"`
	AssessmentType AssessmentType `json:"assessment_type"`
	Score          float64        `json:"score"`
	RecordedAt     time.Time      `json:"recorded_at"`
}

// ScoresExport is the top-level JSON structure for score export.
type ScoresExport struct {
	Title      string         `json:"title"`
	ExportedAt time.Time      `json:"exported_at"`
	OralAvg    float64        `json:"oral_average"`
	WrittenAvg float64        `json:"written_average"`
	Scores     []StudentScore `json:"scores"`
}

// QuestionResult pairs a question with its answer and evaluation for review output.
type QuestionResult struct {
	SetID       string            `json:"set_id"`
	QuestionID  string            `json:"question_id"`
	Kind        Kind              `json:"kind"`
	Prompt      string            `json:"prompt"`
	Reference   string            `json:"reference_answer,omitempty"`
	AnswerText  string            `json:"answer_text,omitempty"`
	AudioFormat string            `json:"audio_format,omitempty"`
	Result      *EvaluationResult `json:"result,omitempty"`
}
