// Package session tracks one assessment attempt per student: the shuffled
// question sequence, a cursor over it, the answers and the recorder.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/assessor/internal/answers"
	"github.com/pavelanni/assessor/internal/audio"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/progress"
	"github.com/pavelanni/assessor/internal/shuffle"
	"github.com/pavelanni/assessor/internal/store"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Position describes the cursor within the sequence.
type Position struct {
	Index   int  `json:"index"`
	Total   int  `json:"total"`
	IsFirst bool `json:"is_first"`
	IsLast  bool `json:"is_last"`
}

// Session is one student's attempt. All methods are safe for concurrent use.
type Session struct {
	ID          string
	StudentName string
	CreatedAt   time.Time

	Answers *answers.Store
	Device  *audio.PipeDevice
	Capture *audio.Capture

	mgr *Manager

	mu       sync.Mutex
	sequence []model.QuestionRef
	cursor   int
	results  []ScoredResult
}

// ScoredResult is an evaluation result for a question of the sequence.
type ScoredResult struct {
	Ref    model.QuestionRef      `json:"ref"`
	Result model.EvaluationResult `json:"result"`
}

func (s *Session) position() Position {
	n := len(s.sequence)
	return Position{
		Index:   s.cursor,
		Total:   n,
		IsFirst: s.cursor == 0,
		IsLast:  n == 0 || s.cursor == n-1,
	}
}

// Sequence returns a copy of the question order.
func (s *Session) Sequence() []model.QuestionRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.QuestionRef(nil), s.sequence...)
}

// Position returns the cursor position.
func (s *Session) Position() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position()
}

// Current returns the question under the cursor.
func (s *Session) Current() (model.QuestionRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sequence) == 0 {
		return model.QuestionRef{}, false
	}
	return s.sequence[s.cursor], true
}

// Next moves the cursor forward; it stays put on the last question.
func (s *Session) Next() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor < len(s.sequence)-1 {
		s.cursor++
	}
	return s.position()
}

// Prev moves the cursor back; it stays put on the first question.
func (s *Session) Prev() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor > 0 {
		s.cursor--
	}
	return s.position()
}

// Restart reshuffles the sequence and rewinds the cursor. Answers are kept.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	s.sequence = s.mgr.order()
	s.cursor = 0
	s.results = nil
	s.mu.Unlock()
	s.Capture.Discard()
	return s.saveSequence(ctx)
}

// Progress reports how much of the sequence is answered.
func (s *Session) Progress() progress.Snapshot {
	return progress.Take(s.Sequence(), s.Answers)
}

// Review splits the sequence into answered and unanswered questions.
func (s *Session) Review() (done, remaining []model.QuestionRef) {
	return progress.Partition(s.Sequence(), s.Answers)
}

// Save persists the answers and the sequence.
func (s *Session) Save(ctx context.Context) error {
	if err := s.Answers.Persist(ctx); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	return s.saveSequence(ctx)
}

// Reset discards every answer, the persisted answers and any recording.
func (s *Session) Reset(ctx context.Context) error {
	s.Capture.Discard()
	s.mu.Lock()
	s.results = nil
	s.mu.Unlock()
	return s.Answers.ResetAll(ctx)
}

// SetResults stores the outcome of the last evaluation.
func (s *Session) SetResults(results []ScoredResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append([]ScoredResult(nil), results...)
}

// Results returns the outcome of the last evaluation, if any.
func (s *Session) Results() []ScoredResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScoredResult(nil), s.results...)
}

type sequenceDoc struct {
	StudentName string      `json:"student_name"`
	CreatedAt   time.Time   `json:"created_at"`
	Keys        []model.Key `json:"keys"`
	Cursor      int         `json:"cursor"`
}

func (s *Session) saveSequence(ctx context.Context) error {
	s.mu.Lock()
	doc := sequenceDoc{StudentName: s.StudentName, CreatedAt: s.CreatedAt, Cursor: s.cursor}
	for _, ref := range s.sequence {
		doc.Keys = append(doc.Keys, ref.Key())
	}
	s.mu.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode sequence: %w", err)
	}
	if err := s.mgr.slot.Put(ctx, store.SequenceKey(s.ID), data); err != nil {
		return fmt.Errorf("save sequence: %w", err)
	}
	return nil
}

// Manager owns the live sessions.
type Manager struct {
	bank    model.Bank
	slot    store.Slot
	shuffle bool

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager over bank. Sessions persist into slot.
func NewManager(bank model.Bank, slot store.Slot, cfg model.ExamConfig) *Manager {
	return &Manager{
		bank:     bank,
		slot:     slot,
		shuffle:  cfg.Shuffle,
		rng:      shuffle.NewSource(cfg.Seed),
		sessions: make(map[string]*Session),
	}
}

// Bank returns the question bank sessions draw from.
func (m *Manager) Bank() model.Bank { return m.bank }

func (m *Manager) order() []model.QuestionRef {
	refs := m.bank.Flatten()
	if !m.shuffle {
		return refs
	}
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return shuffle.Shuffle(m.rng, refs)
}

func (m *Manager) newSession(id, name string, created time.Time) *Session {
	dev := audio.NewPipeDevice()
	return &Session{
		ID:          id,
		StudentName: name,
		CreatedAt:   created,
		Answers:     answers.New(m.slot, store.AnswersKey(id)),
		Device:      dev,
		Capture:     audio.NewCapture(dev),
		mgr:         m,
	}
}

// Create starts a session with a freshly shuffled sequence.
func (m *Manager) Create(ctx context.Context, studentName string) (*Session, error) {
	s := m.newSession(uuid.NewString(), studentName, time.Now().UTC())
	s.sequence = m.order()
	if err := s.saveSequence(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	slog.Info("session started", "session", s.ID, "student", studentName, "questions", len(s.sequence))
	return s, nil
}

// Get returns a live session, restoring it from the slot after a restart.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}

	s, err := m.restore(ctx, id)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = s
	return s, nil
}

func (m *Manager) restore(ctx context.Context, id string) (*Session, error) {
	data, err := m.slot.Get(ctx, store.SequenceKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load sequence: %w", err)
	}
	var doc sequenceDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode sequence: %w", err)
	}

	s := m.newSession(id, doc.StudentName, doc.CreatedAt)
	for _, k := range doc.Keys {
		ref, ok := m.bank.Lookup(k.SetID, k.QuestionID)
		if !ok {
			slog.Warn("dropping question missing from bank", "session", id, "question", k.String())
			continue
		}
		s.sequence = append(s.sequence, ref)
	}
	if doc.Cursor >= 0 && doc.Cursor < len(s.sequence) {
		s.cursor = doc.Cursor
	}

	if err := s.Answers.Restore(ctx); err != nil {
		if !errors.Is(err, answers.ErrPersistenceCorrupt) {
			return nil, err
		}
		slog.Warn("persisted answers discarded", "session", id, "error", err)
	}
	slog.Info("session restored", "session", id, "answers", s.Answers.Len())
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
