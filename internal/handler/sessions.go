package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pavelanni/assessor/internal/audio"
	"github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/progress"
)

type startRequest struct {
	StudentName string `json:"student_name"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, i18n.BadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	name := strings.TrimSpace(req.StudentName)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, i18n.BadRequest, errors.New("student_name is required"))
		return
	}

	s, err := h.sessions.Create(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.viewSession(r.Context(), s))
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.viewSession(r.Context(), s))
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.Restart(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.viewSession(r.Context(), s))
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.Next()
	writeJSON(w, http.StatusOK, h.viewSession(r.Context(), s))
}

func (h *Handler) handlePrev(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.Prev()
	writeJSON(w, http.StatusOK, h.viewSession(r.Context(), s))
}

type answerRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ref, err := h.question(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req answerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, i18n.BadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	s.Answers.SetText(ref.SetID, ref.Question.ID, req.Text)
	p := s.Progress()
	writeJSON(w, http.StatusOK, noticeView{Notice: i18n.T(r.Context(), i18n.AnswerSaved), Progress: &p})
}

func (h *Handler) handlePlayback(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ref, err := h.question(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	a, _ := s.Answers.Get(ref.SetID, ref.Question.ID)
	art, err := audio.Playback(a)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", audio.ContentType(art.ContainerFormat))
	w.Header().Set("Content-Length", fmt.Sprint(len(art.Payload)))
	w.WriteHeader(http.StatusOK)
	w.Write(art.Payload)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.Save(r.Context()); err != nil {
		writeError(w, r, http.StatusInternalServerError, i18n.SaveFailed, err)
		return
	}
	p := s.Progress()
	writeJSON(w, http.StatusOK, noticeView{Notice: i18n.T(r.Context(), i18n.ProgressSaved), Progress: &p})
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req resetRequest
	if err := decodeBody(w, r, &req); err != nil || !req.Confirm {
		writeError(w, r, http.StatusBadRequest, i18n.ResetNotConfirmed, errors.New("reset requires confirm=true"))
		return
	}
	if err := s.Reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	p := s.Progress()
	writeJSON(w, http.StatusOK, noticeView{Notice: i18n.T(r.Context(), i18n.AnswersReset), Progress: &p})
}

type reviewView struct {
	Answered   []questionView    `json:"answered"`
	Unanswered []questionView    `json:"unanswered"`
	Progress   progress.Snapshot `json:"progress"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	done, remaining := s.Review()
	writeJSON(w, http.StatusOK, reviewView{
		Answered:   viewQuestions(s, done),
		Unanswered: viewQuestions(s, remaining),
		Progress:   s.Progress(),
	})
}
