package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// exerciseSlot runs the shared Slot contract against a backend.
func exerciseSlot(t *testing.T, slot Slot) {
	t.Helper()
	ctx := context.Background()

	// Missing key.
	if _, err := slot.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing): expected ErrNotFound, got %v", err)
	}

	// Put and get.
	if err := slot.Put(ctx, AnswersKey("s1"), []byte(`{"version":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := slot.Get(ctx, AnswersKey("s1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"version":1}` {
		t.Errorf("Get = %q", got)
	}

	// Overwrite.
	if err := slot.Put(ctx, AnswersKey("s1"), []byte("second")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err = slot.Get(ctx, AnswersKey("s1"))
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Get after overwrite = %q, want 'second'", got)
	}

	// Other keys are independent.
	if _, err := slot.Get(ctx, SequenceKey("s1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("sequence key should be empty, got %v", err)
	}

	// Delete, twice.
	if err := slot.Delete(ctx, AnswersKey("s1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := slot.Delete(ctx, AnswersKey("s1")); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, err := slot.Get(ctx, AnswersKey("s1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteSlot(t *testing.T) {
	exerciseSlot(t, newTestStore(t))
}

func TestMemorySlot(t *testing.T) {
	exerciseSlot(t, NewMemory())
}

func TestMemorySlotCopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	if err := m.Put(ctx, "k", buf); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'z'
	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value changed through caller's slice: %q", got)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.db")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Put(ctx, ScoresKey, []byte("[]")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, ScoresKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("Get = %q, want '[]'", got)
	}
}

func TestSQLitePragmas(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "slots.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	var timeout int
	if err := s.db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout); err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestSQLiteConcurrentPut(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "slots.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	const writers, puts = 16, 50
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []error
	)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range puts {
				if err := s.Put(ctx, fmt.Sprintf("k%d-%d", w, i), []byte("v")); err != nil {
					mu.Lock()
					failed = append(failed, err)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if len(failed) > 0 {
		t.Fatalf("%d of %d puts failed, first: %v", len(failed), writers*puts, failed[0])
	}
	keys, err := s.Keys(ctx, "k")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != writers*puts {
		t.Errorf("stored %d keys, want %d", len(keys), writers*puts)
	}
}

func TestSQLiteKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, k := range []string{SequenceKey("b"), SequenceKey("a"), AnswersKey("a"), ScoresKey} {
		if err := s.Put(ctx, k, []byte("x")); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	keys, err := s.Keys(ctx, "session/")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	want := []string{"session/a/answers", "session/a/sequence", "session/b/sequence"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Config{Backend: "etcd"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestOpenMemory(t *testing.T) {
	b, err := Open(context.Background(), Config{Backend: "memory"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*Memory); !ok {
		t.Errorf("expected *Memory, got %T", b)
	}
}
