// Package handler exposes the assessment over a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/assessor/internal/answers"
	"github.com/pavelanni/assessor/internal/audio"
	"github.com/pavelanni/assessor/internal/evaluate"
	"github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/progress"
	"github.com/pavelanni/assessor/internal/report"
	"github.com/pavelanni/assessor/internal/session"
	"github.com/pavelanni/assessor/internal/speech"
)

const maxBodyBytes = 10 << 20

// Config lists the handler's dependencies.
type Config struct {
	Sessions *session.Manager
	Pipeline *evaluate.Pipeline
	Scores   *report.Scores
	Speaker  speech.Speaker
	// BaseContext bounds evaluations, which outlive the request that
	// started them. Defaults to context.Background.
	BaseContext context.Context
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Manager
	pipeline *evaluate.Pipeline
	scores   *report.Scores
	speaker  speech.Speaker
	base     context.Context
}

// New creates a new Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("handler: session manager is required")
	}
	if cfg.Scores == nil {
		return nil, errors.New("handler: scores are required")
	}
	h := &Handler{
		sessions: cfg.Sessions,
		pipeline: cfg.Pipeline,
		scores:   cfg.Scores,
		speaker:  cfg.Speaker,
		base:     cfg.BaseContext,
	}
	if h.pipeline == nil {
		h.pipeline = evaluate.New(nil, nil)
	}
	if h.speaker == nil {
		h.speaker = speech.Unsupported{}
	}
	if h.base == nil {
		h.base = context.Background()
	}
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(i18n.Middleware())

		r.Post("/sessions", h.handleStart)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleState)
			r.Post("/restart", h.handleRestart)
			r.Post("/next", h.handleNext)
			r.Post("/prev", h.handlePrev)
			r.Put("/answers/{setID}/{questionID}", h.handleAnswer)
			r.Get("/answers/{setID}/{questionID}/audio", h.handlePlayback)
			r.Post("/save", h.handleSave)
			r.Post("/reset", h.handleReset)

			r.Post("/recording/start", h.handleRecordingStart)
			r.Post("/recording/chunk", h.handleRecordingChunk)
			r.Post("/recording/stop", h.handleRecordingStop)
			r.Post("/recording/commit/{setID}/{questionID}", h.handleRecordingCommit)
			r.Delete("/recording", h.handleRecordingDiscard)

			r.Get("/review", h.handleReview)
			r.Post("/finish", h.handleFinish)
			r.Get("/evaluate/ws", h.handleEvaluateWS)
		})

		r.Get("/questions/{setID}/{questionID}/speech", h.handleSpeech)
		r.Get("/insights", h.handleInsights)
		r.Get("/scores/export", h.handleExport)
	})
}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error  string `json:"error"`
	Notice string `json:"notice"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, notice string, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Notice: i18n.T(r.Context(), notice)})
}

// fail maps domain errors to a status code and a localized notice.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var playback *audio.PlaybackError
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, r, http.StatusNotFound, i18n.SessionNotFound, err)
	case errors.Is(err, errQuestionNotFound):
		writeError(w, r, http.StatusNotFound, i18n.QuestionNotFound, err)
	case errors.Is(err, audio.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, i18n.MicrophoneDenied, err)
	case errors.Is(err, audio.ErrAlreadyRecording):
		writeError(w, r, http.StatusConflict, i18n.AlreadyRecording, err)
	case errors.Is(err, audio.ErrNoArtifact):
		writeError(w, r, http.StatusConflict, i18n.NoRecording, err)
	case errors.Is(err, audio.ErrNotRecording):
		writeError(w, r, http.StatusConflict, i18n.NotRecording, err)
	case errors.As(err, &playback):
		writeError(w, r, http.StatusUnprocessableEntity, i18n.PlaybackError, err)
	case errors.Is(err, speech.ErrUnsupported):
		writeError(w, r, http.StatusNotImplemented, i18n.SpeechUnsupported, err)
	case errors.Is(err, answers.ErrPersistenceCorrupt):
		writeError(w, r, http.StatusInternalServerError, i18n.SaveFailed, err)
	default:
		writeError(w, r, http.StatusInternalServerError, i18n.InternalError, err)
	}
}

var errQuestionNotFound = errors.New("question not found")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handler) session(r *http.Request) (*session.Session, error) {
	return h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
}

// question resolves the {setID}/{questionID} URL parameters.
func (h *Handler) question(r *http.Request) (model.QuestionRef, error) {
	ref, ok := h.sessions.Bank().Lookup(chi.URLParam(r, "setID"), chi.URLParam(r, "questionID"))
	if !ok {
		return model.QuestionRef{}, errQuestionNotFound
	}
	return ref, nil
}

type questionView struct {
	SetID        string     `json:"set_id"`
	ID           string     `json:"id"`
	Kind         model.Kind `json:"kind"`
	Prompt       string     `json:"prompt"`
	HasReference bool       `json:"has_reference"`
	Answered     bool       `json:"answered"`
	AnswerText   string     `json:"answer_text,omitempty"`
	AudioFormat  string     `json:"audio_format,omitempty"`
}

func viewQuestion(s *session.Session, ref model.QuestionRef) questionView {
	v := questionView{
		SetID:        ref.SetID,
		ID:           ref.Question.ID,
		Kind:         ref.Question.Kind,
		Prompt:       ref.Question.Prompt,
		HasReference: ref.Question.HasReference(),
	}
	a, ok := s.Answers.Get(ref.SetID, ref.Question.ID)
	if ok {
		v.Answered = a.Present()
		switch a := a.(type) {
		case model.TextAnswer:
			v.AnswerText = a.Content
		case model.AudioAnswer:
			v.AudioFormat = a.ContainerFormat
		}
	}
	return v
}

func viewQuestions(s *session.Session, refs []model.QuestionRef) []questionView {
	out := make([]questionView, 0, len(refs))
	for _, ref := range refs {
		out = append(out, viewQuestion(s, ref))
	}
	return out
}

type recordingView struct {
	State           string  `json:"state"`
	Format          string  `json:"format,omitempty"`
	PendingBytes    int     `json:"pending_bytes,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

func viewRecording(s *session.Session) recordingView {
	v := recordingView{State: s.Capture.State().String(), Format: s.Capture.Format()}
	if p := s.Capture.Pending(); p != nil {
		v.PendingBytes = len(p.Payload)
		v.DurationSeconds = p.DurationSeconds
	}
	return v
}

type sessionView struct {
	ID          string            `json:"id"`
	StudentName string            `json:"student_name"`
	Sequence    []questionView    `json:"sequence"`
	Position    session.Position  `json:"position"`
	Current     *questionView     `json:"current,omitempty"`
	Progress    progress.Snapshot `json:"progress"`
	Remaining   string            `json:"remaining"`
	Recording   recordingView     `json:"recording"`
	Notice      string            `json:"notice,omitempty"`
}

func (h *Handler) viewSession(ctx context.Context, s *session.Session) sessionView {
	p := s.Progress()
	v := sessionView{
		ID:          s.ID,
		StudentName: s.StudentName,
		Sequence:    viewQuestions(s, s.Sequence()),
		Position:    s.Position(),
		Progress:    p,
		Remaining:   i18n.Tp(ctx, i18n.QuestionsRemaining, p.Total-p.Answered),
		Recording:   viewRecording(s),
	}
	if cur, ok := s.Current(); ok {
		q := viewQuestion(s, cur)
		v.Current = &q
	}
	return v
}

type noticeView struct {
	Notice   string             `json:"notice"`
	Progress *progress.Snapshot `json:"progress,omitempty"`
}
