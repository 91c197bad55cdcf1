package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/pavelanni/assessor/internal/i18n"
)

type recordingStartRequest struct {
	Granted bool     `json:"granted"`
	Formats []string `json:"formats"`
}

type recordingResponse struct {
	Notice    string        `json:"notice"`
	Recording recordingView `json:"recording"`
}

func (h *Handler) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req recordingStartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, i18n.BadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	s.Device.Configure(req.Granted, req.Formats)
	if err := s.Capture.Start(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordingResponse{
		Notice:    i18n.T(r.Context(), i18n.RecordingStarted),
		Recording: viewRecording(s),
	})
}

func (h *Handler) handleRecordingChunk(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	chunk, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, i18n.BadRequest, fmt.Errorf("read chunk: %w", err))
		return
	}
	if err := s.Device.Feed(chunk); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	art, err := s.Capture.Stop()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if art == nil {
		writeJSON(w, http.StatusOK, recordingResponse{
			Notice:    i18n.T(r.Context(), i18n.NotRecording),
			Recording: viewRecording(s),
		})
		return
	}
	writeJSON(w, http.StatusOK, recordingResponse{
		Notice:    i18n.T(r.Context(), i18n.RecordingStopped),
		Recording: viewRecording(s),
	})
}

func (h *Handler) handleRecordingCommit(w http.ResponseWriter, r *http.Request) {
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
	if err := s.Capture.Commit(s.Answers, ref.SetID, ref.Question.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	p := s.Progress()
	writeJSON(w, http.StatusOK, noticeView{Notice: i18n.T(r.Context(), i18n.RecordingCommitted), Progress: &p})
}

func (h *Handler) handleRecordingDiscard(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.Capture.Discard()
	writeJSON(w, http.StatusOK, recordingResponse{
		Notice:    i18n.T(r.Context(), i18n.RecordingDiscarded),
		Recording: viewRecording(s),
	})
}
