package bank

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/assessor/internal/model"
)

func TestDefaultBank(t *testing.T) {
	b, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if b.Count() != 42 {
		t.Fatalf("expected 42 questions, got %d", b.Count())
	}
	if len(b.Sets) != 1 || b.Sets[0].ID != "main" {
		t.Fatalf("expected one set 'main', got %+v", b.Sets)
	}

	spoken := 0
	for _, ref := range b.Flatten() {
		if ref.Question.Kind == model.KindSpoken {
			spoken++
		}
	}
	if spoken != 15 {
		t.Errorf("expected 15 spoken questions, got %d", spoken)
	}

	q1, ok := b.Lookup("main", "Q1")
	if !ok {
		t.Fatal("Q1 not found")
	}
	if !q1.Question.Accepts(" Eight ") {
		t.Errorf("Q1 should accept 'eight'")
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
title: Networking
sets:
  - id: net
    title: Basics
    questions:
      - id: n1
        kind: written
        prompt: What does DNS stand for?
        reference_answer: Domain Name System
        accepted_literals: [DNS]
      - id: n2
        kind: spoken
        prompt: Explain a TCP handshake.
      - id: n3
        kind: written
        prompt: Default HTTP port?
        reference_answer: 80
`)
	b, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if b.Title != "Networking" {
		t.Errorf("title = %q", b.Title)
	}
	refs := b.Flatten()
	if len(refs) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(refs))
	}
	if refs[1].Question.HasReference() {
		t.Errorf("n2 should be open-ended")
	}
	if refs[1].Question.SpeechText() != "Explain a TCP handshake." {
		t.Errorf("SpeechText fallback = %q", refs[1].Question.SpeechText())
	}
	if refs[2].Question.ReferenceAnswer != "80" {
		t.Errorf("numeric reference = %q, want '80'", refs[2].Question.ReferenceAnswer)
	}
}

func TestParseYAMLMultipleDocuments(t *testing.T) {
	data := []byte("title: a\nsets: []\n---\ntitle: b\n")
	if _, err := ParseYAML(data); err == nil || !strings.Contains(err.Error(), "multiple YAML documents") {
		t.Fatalf("expected multiple documents error, got %v", err)
	}
}

func TestParseLegacyMapForm(t *testing.T) {
	data := []byte(`{
  "title": "Legacy",
  "sets": {
    "main": {
      "title": "Main Section",
      "questions": {
        "Q10": {"type": "blank", "question": "Ten?", "answer": "10", "options": ["ten"]},
        "Q2": {"type": "audio", "question": "Two?", "tts_text": "Say two", "answer": "2"},
        "Q1": {"type": "blank", "question": "One?", "answer": "1"}
      }
    }
  }
}`)
	b, err := ParseJSON(data)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	refs := b.Flatten()
	var ids []string
	for _, r := range refs {
		ids = append(ids, r.Question.ID)
	}
	if got := strings.Join(ids, ","); got != "Q1,Q2,Q10" {
		t.Errorf("order = %s, want Q1,Q2,Q10", got)
	}
	q2 := refs[1].Question
	if q2.Kind != model.KindSpoken || q2.SpokenPrompt != "Say two" || q2.Prompt != "Two?" {
		t.Errorf("legacy fields not mapped: %+v", q2)
	}
	if !refs[2].Question.Accepts("TEN") {
		t.Errorf("options should become accepted literals")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"no sets", `{"title":"x"}`, "no sets"},
		{"bad kind", `{"sets":[{"id":"s","questions":[{"id":"a","kind":"video","prompt":"p"}]}]}`, "unknown kind"},
		{"duplicate question", `{"sets":[{"id":"s","questions":[{"id":"a","kind":"written","prompt":"p"},{"id":"a","kind":"written","prompt":"q"}]}]}`, "duplicate question"},
		{"empty prompt", `{"sets":[{"id":"s","questions":[{"id":"a","kind":"written","prompt":" "}]}]}`, "no prompt"},
		{"duplicate set", `{"sets":[{"id":"s","questions":[]},{"id":"s","questions":[]}]}`, "duplicate set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadFilesMerge(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.json")
	if err := os.WriteFile(a, []byte("title: A\nsets:\n  - id: one\n    questions:\n      - {id: x, kind: written, prompt: \"X?\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte(`{"title":"B","sets":[{"id":"two","questions":[{"id":"y","kind":"spoken","prompt":"Y?"}]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	merged, err := LoadFiles([]string{a, b})
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if merged.Title != "A" || merged.Count() != 2 {
		t.Errorf("merged = %+v", merged)
	}

	if _, err := LoadFiles([]string{a, a}); err == nil {
		t.Error("expected duplicate set error when loading the same file twice")
	}
}

func TestNaturalLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Q2", "Q10", true},
		{"Q10", "Q2", false},
		{"a", "b", true},
		{"Q1", "R1", true},
	}
	for _, tt := range tests {
		if got := naturalLess(tt.a, tt.b); got != tt.want {
			t.Errorf("naturalLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
