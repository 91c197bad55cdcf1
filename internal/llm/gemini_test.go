package llm

import (
	"context"
	"errors"
	"testing"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct{ input, want string }{
		{"gemini-flash", "gemini-2.0-flash"},
		{"gemini-pro", "gemini-2.0-pro"},
		{"gemini-2.5-flash", "gemini-2.5-flash"},
	}
	for _, tt := range tests {
		if got := resolveModel(tt.input, geminiModels); got != tt.want {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestBuildGeminiSchema(t *testing.T) {
	schema := buildGeminiSchema(verdictSchema.Definition)

	if schema.Type != "OBJECT" {
		t.Fatalf("expected OBJECT type, got %s", schema.Type)
	}
	if len(schema.Properties) != 3 {
		t.Fatalf("expected 3 properties, got %d", len(schema.Properties))
	}
	want := map[string]string{"isCorrect": "BOOLEAN", "score": "NUMBER", "feedback": "STRING"}
	for name, typ := range want {
		if got := string(schema.Properties[name].Type); got != typ {
			t.Errorf("%s type = %s, want %s", name, got, typ)
		}
	}
	if len(schema.Required) != 3 {
		t.Errorf("expected 3 required fields, got %v", schema.Required)
	}
}

func TestGeminiMissingKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), GeminiConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
