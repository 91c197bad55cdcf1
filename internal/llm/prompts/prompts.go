// Package prompts renders the judge prompts sent to the language model.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var embedded embed.FS

// Embedded holds the built-in templates.
var Embedded fs.FS = embedded

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

// PromptVariant represents a grading strictness.
type PromptVariant string

const (
	// PromptStrict accepts only exact or equivalent answers.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient accepts answers that capture the core idea.
	PromptLenient PromptVariant = "lenient"
)

// Mode is the judging mode.
type Mode string

const (
	// ModeGraded compares the answer with a reference answer.
	ModeGraded Mode = "graded"
	// ModeOpen scores an open-ended answer on quality alone.
	ModeOpen Mode = "open"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Mode]map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// Data holds template data for judge prompts.
type Data struct {
	Question  string
	Reference string
	Answer    string
}

// Mode returns graded when a reference answer is present.
func (d Data) Mode() Mode {
	if strings.TrimSpace(d.Reference) != "" {
		return ModeGraded
	}
	return ModeOpen
}

// Load parses templates/<mode>_<variant>.txt from fsys, once per process.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		loaded := make(map[Mode]map[PromptVariant]*template.Template)
		for _, m := range []Mode{ModeGraded, ModeOpen} {
			loaded[m] = make(map[PromptVariant]*template.Template)
			for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
				name := "templates/" + string(m) + "_" + string(v) + ".txt"
				content, err := fs.ReadFile(fsys, name)
				if err != nil {
					loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
					return
				}
				tmpl, err := template.New(string(m)).Parse(string(content))
				if err != nil {
					loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
					return
				}
				loaded[m][v] = tmpl
			}
		}
		templates = loaded
	})
	return loadErr
}

// Build renders the judge prompt for data using the variant. The answer is
// sanitized first.
func Build(variant PromptVariant, data Data) (string, error) {
	if templates == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[data.Mode()][variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data.Answer = sanitizeAnswer(data.Answer)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
