package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pavelanni/assessor/internal/evaluate"
	"github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/progress"
	"github.com/pavelanni/assessor/internal/report"
	"github.com/pavelanni/assessor/internal/session"
	"github.com/pavelanni/assessor/internal/speech"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is served to the bundled client from any origin it is proxied under.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type finishView struct {
	Results    []model.QuestionResult `json:"results"`
	Scores     []model.StudentScore   `json:"scores"`
	Unanswered []questionView         `json:"unanswered"`
	Progress   progress.Snapshot      `json:"progress"`
	Notice     string                 `json:"notice"`
}

// finish saves the session, evaluates every answered question in sequence
// order and records the per-type scores.
func (h *Handler) finish(ctx context.Context, s *session.Session, onProgress func(done, total int)) (finishView, error) {
	if err := s.Save(ctx); err != nil {
		return finishView{}, err
	}

	items := evaluate.ItemsFor(s.Sequence(), s.Answers)
	batch := h.pipeline.Run(h.base, items, onProgress)

	view := finishView{
		Results:  batch.QuestionResults(),
		Progress: s.Progress(),
		Notice:   i18n.T(ctx, i18n.QuestionnaireCompleted),
	}
	_, remaining := s.Review()
	view.Unanswered = viewQuestions(s, remaining)

	scored := make([]session.ScoredResult, 0, len(items))
	for i, item := range items {
		scored = append(scored, session.ScoredResult{Ref: item.Ref, Result: batch.Results[i]})
	}
	s.SetResults(scored)

	added, err := h.scores.RecordBatch(ctx, s.ID, s.StudentName, batch)
	if errors.Is(err, report.ErrNothingEvaluated) {
		slog.Warn("no answer could be evaluated, scores not recorded", "session", s.ID, "answers", len(items))
		view.Notice = i18n.T(ctx, i18n.EvaluationUnavailable)
		return view, nil
	}
	if err != nil {
		return finishView{}, err
	}
	view.Scores = added
	slog.Info("session finished", "session", s.ID, "evaluated", len(items), "failed", batch.Failed())
	return view, nil
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.finish(r.Context(), s, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type wsMessage struct {
	Type      string      `json:"type"`
	Completed int         `json:"completed,omitempty"`
	Total     int         `json:"total,omitempty"`
	Notice    string      `json:"notice,omitempty"`
	Results   *finishView `json:"results,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// wsWriter drops writes once the client has gone away.
type wsWriter struct {
	conn *websocket.Conn
	gone bool
}

func (ww *wsWriter) send(msg wsMessage) {
	if ww.gone {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("encode websocket message", "error", err)
		return
	}
	ww.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ww.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("websocket client gone", "error", err)
		ww.gone = true
	}
}

func (h *Handler) handleEvaluateWS(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session", s.ID, "error", err)
		return
	}
	defer conn.Close()

	// The request context ends with the connection; evaluation does not.
	ctx := context.WithoutCancel(r.Context())
	ww := &wsWriter{conn: conn}
	view, err := h.finish(ctx, s, func(done, total int) {
		ww.send(wsMessage{
			Type:      "progress",
			Completed: done,
			Total:     total,
			Notice:    i18n.Td(ctx, i18n.EvaluationProgress, map[string]any{"Done": done, "Total": total}),
		})
	})
	if err != nil {
		slog.Error("evaluation failed", "session", s.ID, "error", err)
		ww.send(wsMessage{Type: "error", Error: err.Error(), Notice: i18n.T(ctx, i18n.SaveFailed)})
		return
	}
	ww.send(wsMessage{Type: "results", Results: &view, Notice: view.Notice})
	if !ww.gone {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	}
}

func (h *Handler) handleSpeech(w http.ResponseWriter, r *http.Request) {
	ref, err := h.question(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.speaker.Speak(r.Context(), ref.Question.SpeechText())
	if errors.Is(err, speech.ErrUnsupported) {
		h.fail(w, r, err)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusBadGateway, i18n.SpeechFailed, err)
		return
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(a.Data)
}

func (h *Handler) handleInsights(w http.ResponseWriter, r *http.Request) {
	in, err := h.scores.Insights(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := h.scores.Export(r.Context(), h.sessions.Bank().Title)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="scores.json"`)
	writeJSON(w, http.StatusOK, exp)
}
