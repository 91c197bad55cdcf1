// Package answers keeps the per-session mapping from question to answer and
// saves it into a persistence slot.
package answers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/store"
)

// ErrPersistenceCorrupt wraps Restore failures. The store is left empty and
// usable; callers only log it.
var ErrPersistenceCorrupt = errors.New("persisted answers are corrupt")

const formatVersion = 1

// Store maps (set, question) to the latest answer.
type Store struct {
	mu      sync.RWMutex
	answers map[model.Key]model.Answer
	slot    store.Slot
	key     string
}

// New returns an empty store that persists under key in slot.
func New(slot store.Slot, key string) *Store {
	return &Store{
		answers: make(map[model.Key]model.Answer),
		slot:    slot,
		key:     key,
	}
}

// SetText stores a typed answer, replacing any previous one.
func (s *Store) SetText(setID, questionID, text string) {
	s.set(setID, questionID, model.TextAnswer{Content: text})
}

// SetAudio stores a recorded answer, replacing any previous one.
func (s *Store) SetAudio(setID, questionID string, payload []byte, containerFormat string, durationSeconds float64) {
	s.set(setID, questionID, model.AudioAnswer{
		Payload:         payload,
		ContainerFormat: containerFormat,
		DurationSeconds: durationSeconds,
	})
}

func (s *Store) set(setID, questionID string, a model.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[model.Key{SetID: setID, QuestionID: questionID}] = a
}

// Get returns the stored answer, if any.
func (s *Store) Get(setID, questionID string) (model.Answer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[model.Key{SetID: setID, QuestionID: questionID}]
	return a, ok
}

// IsAnswered reports whether a present answer is stored: non-blank text or a
// non-empty recording.
func (s *Store) IsAnswered(setID, questionID string) bool {
	a, ok := s.Get(setID, questionID)
	return ok && a.Present()
}

// Len returns the number of stored entries, present or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers)
}

// Keys lists stored keys sorted by set then question.
func (s *Store) Keys() []model.Key {
	s.mu.RLock()
	keys := make([]model.Key, 0, len(s.answers))
	for k := range s.answers {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SetID != keys[j].SetID {
			return keys[i].SetID < keys[j].SetID
		}
		return keys[i].QuestionID < keys[j].QuestionID
	})
	return keys
}

type document struct {
	Version int                              `json:"version"`
	Answers map[string]map[string]wireAnswer `json:"answers"`
}

type wireAnswer struct {
	Type            string  `json:"type"`
	Content         string  `json:"content,omitempty"`
	Payload         []byte  `json:"payload,omitempty"`
	ContainerFormat string  `json:"container_format,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Persist writes the whole store into the slot.
func (s *Store) Persist(ctx context.Context) error {
	doc := document{Version: formatVersion, Answers: make(map[string]map[string]wireAnswer)}

	s.mu.RLock()
	for k, a := range s.answers {
		var w wireAnswer
		switch a := a.(type) {
		case model.TextAnswer:
			w = wireAnswer{Type: "text", Content: a.Content}
		case model.AudioAnswer:
			w = wireAnswer{Type: "audio", Payload: a.Payload, ContainerFormat: a.ContainerFormat, DurationSeconds: a.DurationSeconds}
		}
		if doc.Answers[k.SetID] == nil {
			doc.Answers[k.SetID] = make(map[string]wireAnswer)
		}
		doc.Answers[k.SetID][k.QuestionID] = w
	}
	s.mu.RUnlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	if err := s.slot.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("persist answers: %w", err)
	}
	return nil
}

// Restore replaces the in-memory answers with the slot contents. A missing
// slot is a no-op. Unreadable or malformed contents leave the store empty and
// return an error wrapping ErrPersistenceCorrupt.
func (s *Store) Restore(ctx context.Context) error {
	data, err := s.slot.Get(ctx, s.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = make(map[model.Key]model.Answer)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceCorrupt, err)
	}
	restored, err := decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceCorrupt, err)
	}
	s.answers = restored
	return nil
}

func decode(data []byte) (map[model.Key]model.Answer, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("unsupported answers version %d", doc.Version)
	}
	out := make(map[model.Key]model.Answer)
	for setID, qs := range doc.Answers {
		for qID, w := range qs {
			key := model.Key{SetID: setID, QuestionID: qID}
			switch w.Type {
			case "text":
				out[key] = model.TextAnswer{Content: w.Content}
			case "audio":
				out[key] = model.AudioAnswer{Payload: w.Payload, ContainerFormat: w.ContainerFormat, DurationSeconds: w.DurationSeconds}
			default:
				return nil, fmt.Errorf("answer %s: unknown type %q", key, w.Type)
			}
		}
	}
	return out, nil
}

// ResetAll clears every answer and deletes the slot.
func (s *Store) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	s.answers = make(map[model.Key]model.Answer)
	s.mu.Unlock()
	if err := s.slot.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("reset answers: %w", err)
	}
	return nil
}
