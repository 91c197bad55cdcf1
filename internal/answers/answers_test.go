package answers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/store"
)

type failingSlot struct{}

func (failingSlot) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk on fire") }
func (failingSlot) Put(context.Context, string, []byte) error   { return errors.New("disk on fire") }
func (failingSlot) Delete(context.Context, string) error        { return nil }

func TestSetAndGet(t *testing.T) {
	s := New(store.NewMemory(), "k")

	_, ok := s.Get("main", "Q1")
	assert.False(t, ok)
	assert.False(t, s.IsAnswered("main", "Q1"))

	s.SetText("main", "Q1", "first")
	s.SetText("main", "Q1", "second")
	a, ok := s.Get("main", "Q1")
	require.True(t, ok)
	assert.Equal(t, model.TextAnswer{Content: "second"}, a)
	assert.Equal(t, 1, s.Len())

	s.SetAudio("main", "Q2", []byte{1, 2, 3}, "audio/webm", 1.5)
	a, ok = s.Get("main", "Q2")
	require.True(t, ok)
	audio, isAudio := a.(model.AudioAnswer)
	require.True(t, isAudio)
	assert.Equal(t, "audio/webm", audio.ContainerFormat)
	assert.Equal(t, []model.Key{{SetID: "main", QuestionID: "Q1"}, {SetID: "main", QuestionID: "Q2"}}, s.Keys())
}

func TestIsAnsweredPresenceRule(t *testing.T) {
	s := New(store.NewMemory(), "k")
	s.SetText("main", "blank", "   \t")
	s.SetText("main", "text", " 8 ")
	s.SetAudio("main", "silent", nil, "audio/webm", 0)
	s.SetAudio("main", "voice", []byte{0x1a}, "audio/webm", 0.2)

	assert.False(t, s.IsAnswered("main", "blank"))
	assert.True(t, s.IsAnswered("main", "text"))
	assert.False(t, s.IsAnswered("main", "silent"))
	assert.True(t, s.IsAnswered("main", "voice"))
	assert.False(t, s.IsAnswered("other", "text"))
}

func TestPersistRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	sqlite, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	for name, slot := range map[string]store.Slot{"memory": store.NewMemory(), "sqlite": sqlite} {
		t.Run(name, func(t *testing.T) {
			key := store.AnswersKey(name)
			s := New(slot, key)
			s.SetText("main", "Q2", "Queue")
			s.SetAudio("main", "Q1", []byte("opus-bytes"), "audio/ogg;codecs=opus", 3.25)
			require.NoError(t, s.Persist(ctx))

			restored := New(slot, key)
			require.NoError(t, restored.Restore(ctx))
			assert.Equal(t, 2, restored.Len())

			a, _ := restored.Get("main", "Q2")
			assert.Equal(t, model.TextAnswer{Content: "Queue"}, a)
			a, _ = restored.Get("main", "Q1")
			assert.Equal(t, model.AudioAnswer{Payload: []byte("opus-bytes"), ContainerFormat: "audio/ogg;codecs=opus", DurationSeconds: 3.25}, a)
		})
	}
}

func TestRestoreMissingSlotIsNoop(t *testing.T) {
	s := New(store.NewMemory(), "k")
	s.SetText("main", "Q1", "kept")
	require.NoError(t, s.Restore(context.Background()))
	assert.True(t, s.IsAnswered("main", "Q1"))
}

func TestRestoreCorrupt(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{{{"},
		{"wrong version", `{"version":7,"answers":{}}`},
		{"unknown type", `{"version":1,"answers":{"main":{"Q1":{"type":"video"}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := store.NewMemory()
			require.NoError(t, slot.Put(ctx, "k", []byte(tt.data)))
			s := New(slot, "k")
			s.SetText("main", "Q1", "stale")

			err := s.Restore(ctx)
			assert.ErrorIs(t, err, ErrPersistenceCorrupt)
			assert.Equal(t, 0, s.Len())

			// Still usable.
			s.SetText("main", "Q3", "fresh")
			assert.True(t, s.IsAnswered("main", "Q3"))
		})
	}
}

func TestRestoreSlotReadFailure(t *testing.T) {
	s := New(failingSlot{}, "k")
	err := s.Restore(context.Background())
	assert.ErrorIs(t, err, ErrPersistenceCorrupt)
	assert.Equal(t, 0, s.Len())
}

func TestPersistSlotFailure(t *testing.T) {
	s := New(failingSlot{}, "k")
	s.SetText("main", "Q1", "x")
	assert.Error(t, s.Persist(context.Background()))
}

func TestResetAll(t *testing.T) {
	ctx := context.Background()
	slot := store.NewMemory()
	s := New(slot, "k")
	s.SetText("main", "Q1", "x")
	require.NoError(t, s.Persist(ctx))

	require.NoError(t, s.ResetAll(ctx))
	assert.Equal(t, 0, s.Len())
	_, err := slot.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Restore after reset finds nothing.
	require.NoError(t, s.Restore(ctx))
	assert.Equal(t, 0, s.Len())
}
