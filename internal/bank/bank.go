// Package bank loads question banks from JSON or YAML files.
package bank

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/assessor/internal/model"
)

//go:embed data/*.json
var dataFS embed.FS

const defaultBankFile = "data/computer_science.json"

// Default returns the built-in computer science bank.
func Default() (model.Bank, error) {
	data, err := dataFS.ReadFile(defaultBankFile)
	if err != nil {
		return model.Bank{}, fmt.Errorf("read embedded bank: %w", err)
	}
	return ParseJSON(data)
}

// LoadFiles parses every path and merges the banks in order.
// With no paths it returns the built-in bank.
func LoadFiles(paths []string) (model.Bank, error) {
	if len(paths) == 0 {
		return Default()
	}
	var banks []model.Bank
	for _, path := range paths {
		b, err := LoadFile(path)
		if err != nil {
			return model.Bank{}, err
		}
		banks = append(banks, b)
	}
	return Merge(banks...)
}

// LoadFile reads a bank file; the format is picked by extension.
func LoadFile(path string) (model.Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Bank{}, fmt.Errorf("read %s: %w", path, err)
	}

	var b model.Bank
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err = ParseYAML(data)
	default:
		b, err = ParseJSON(data)
	}
	if err != nil {
		return model.Bank{}, fmt.Errorf("parse %s: %w", path, err)
	}
	slog.Info("loaded question bank", "path", path, "sha256", sha256sum(data), "sets", len(b.Sets), "questions", b.Count())
	return b, nil
}

// Merge concatenates the sets of several banks. Set IDs must be unique.
func Merge(banks ...model.Bank) (model.Bank, error) {
	var out model.Bank
	seen := make(map[string]bool)
	for _, b := range banks {
		if out.Title == "" {
			out.Title = b.Title
			out.Description = b.Description
		}
		for _, s := range b.Sets {
			if seen[s.ID] {
				return model.Bank{}, fmt.Errorf("duplicate question set %q", s.ID)
			}
			seen[s.ID] = true
			out.Sets = append(out.Sets, s)
		}
	}
	return out, nil
}

// ParseYAML parses a single-document YAML bank.
func ParseYAML(data []byte) (model.Bank, error) {
	var doc any
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&doc); err != nil {
		return model.Bank{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return model.Bank{}, errors.New("multiple YAML documents are not supported")
		}
		return model.Bank{}, fmt.Errorf("decode yaml: %w", err)
	}
	// Route through JSON so both formats share one decoder.
	js, err := json.Marshal(doc)
	if err != nil {
		return model.Bank{}, fmt.Errorf("convert yaml: %w", err)
	}
	return ParseJSON(js)
}

type rawBank struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Sets        json.RawMessage `json:"sets"`
}

type rawSet struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Questions json.RawMessage `json:"questions"`
}

// rawQuestion accepts both the canonical field names and the legacy ones
// (type, question, answer, options, tts_text).
type rawQuestion struct {
	ID               text   `json:"id"`
	Kind             string `json:"kind"`
	Type             string `json:"type"`
	Prompt           string `json:"prompt"`
	Question         string `json:"question"`
	SpokenPrompt     string `json:"spoken_prompt"`
	TTSText          string `json:"tts_text"`
	ReferenceAnswer  text   `json:"reference_answer"`
	Answer           text   `json:"answer"`
	AcceptedLiterals []text `json:"accepted_literals"`
	Options          []text `json:"options"`
}

// text decodes JSON strings and numbers alike, since YAML turns `answer: 8` into a number.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*t = text(n.String())
	return nil
}

// ParseJSON parses a JSON bank in list form (sets: [...]) or map form (sets: {id: {...}}).
func ParseJSON(data []byte) (model.Bank, error) {
	var rb rawBank
	if err := json.Unmarshal(data, &rb); err != nil {
		return model.Bank{}, fmt.Errorf("decode bank: %w", err)
	}
	b := model.Bank{Title: rb.Title, Description: rb.Description}

	sets, err := decodeSets(rb.Sets)
	if err != nil {
		return model.Bank{}, err
	}
	for _, rs := range sets {
		qs, err := decodeQuestions(rs.Questions)
		if err != nil {
			return model.Bank{}, fmt.Errorf("set %q: %w", rs.ID, err)
		}
		set := model.QuestionSet{ID: rs.ID, Title: rs.Title}
		for _, rq := range qs {
			q, err := rq.toQuestion()
			if err != nil {
				return model.Bank{}, fmt.Errorf("set %q: %w", rs.ID, err)
			}
			set.Questions = append(set.Questions, q)
		}
		b.Sets = append(b.Sets, set)
	}

	if err := Validate(b); err != nil {
		return model.Bank{}, err
	}
	return b, nil
}

func decodeSets(raw json.RawMessage) ([]rawSet, error) {
	switch firstByte(raw) {
	case '[':
		var sets []rawSet
		if err := json.Unmarshal(raw, &sets); err != nil {
			return nil, fmt.Errorf("decode sets: %w", err)
		}
		return sets, nil
	case '{':
		var m map[string]rawSet
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode sets: %w", err)
		}
		ids := sortedKeys(m)
		sets := make([]rawSet, 0, len(ids))
		for _, id := range ids {
			s := m[id]
			if s.ID == "" {
				s.ID = id
			}
			sets = append(sets, s)
		}
		return sets, nil
	case 0:
		return nil, errors.New("bank has no sets")
	}
	return nil, errors.New("sets must be a list or an object")
}

func decodeQuestions(raw json.RawMessage) ([]rawQuestion, error) {
	switch firstByte(raw) {
	case '[':
		var qs []rawQuestion
		if err := json.Unmarshal(raw, &qs); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		return qs, nil
	case '{':
		var m map[string]rawQuestion
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		ids := sortedKeys(m)
		qs := make([]rawQuestion, 0, len(ids))
		for _, id := range ids {
			q := m[id]
			if q.ID == "" {
				q.ID = text(id)
			}
			qs = append(qs, q)
		}
		return qs, nil
	case 0:
		return nil, nil
	}
	return nil, errors.New("questions must be a list or an object")
}

func (rq rawQuestion) toQuestion() (model.Question, error) {
	kindName := rq.Kind
	if kindName == "" {
		kindName = rq.Type
	}
	kind, ok := model.ParseKind(kindName)
	if !ok {
		return model.Question{}, fmt.Errorf("question %q: unknown kind %q", rq.ID, kindName)
	}

	q := model.Question{
		ID:              string(rq.ID),
		Kind:            kind,
		Prompt:          firstNonEmpty(rq.Prompt, rq.Question),
		SpokenPrompt:    firstNonEmpty(rq.SpokenPrompt, rq.TTSText),
		ReferenceAnswer: firstNonEmpty(string(rq.ReferenceAnswer), string(rq.Answer)),
	}
	literals := rq.AcceptedLiterals
	if len(literals) == 0 {
		literals = rq.Options
	}
	q.AcceptedLiterals = make([]string, 0, len(literals))
	for _, l := range literals {
		q.AcceptedLiterals = append(q.AcceptedLiterals, string(l))
	}
	return q, nil
}

// Validate checks IDs, kinds and prompts across the bank.
func Validate(b model.Bank) error {
	var problems []string
	sets := make(map[string]bool)
	for i, s := range b.Sets {
		if s.ID == "" {
			problems = append(problems, fmt.Sprintf("set #%d has no id", i+1))
		}
		if sets[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate set %q", s.ID))
		}
		sets[s.ID] = true

		ids := make(map[string]bool)
		for j, q := range s.Questions {
			switch {
			case q.ID == "":
				problems = append(problems, fmt.Sprintf("set %q: question #%d has no id", s.ID, j+1))
			case ids[q.ID]:
				problems = append(problems, fmt.Sprintf("set %q: duplicate question %q", s.ID, q.ID))
			}
			ids[q.ID] = true
			if strings.TrimSpace(q.Prompt) == "" {
				problems = append(problems, fmt.Sprintf("set %q: question %q has no prompt", s.ID, q.ID))
			}
			if q.Kind != model.KindWritten && q.Kind != model.KindSpoken {
				problems = append(problems, fmt.Sprintf("set %q: question %q has invalid kind %q", s.ID, q.ID, q.Kind))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid bank: %s", strings.Join(problems, "; "))
	}
	return nil
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0
	}
	return trimmed[0]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// sortedKeys orders map keys naturally, so Q2 sorts before Q10.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return naturalLess(keys[i], keys[j]) })
	return keys
}

func naturalLess(a, b string) bool {
	pa, na, okA := splitNumericSuffix(a)
	pb, nb, okB := splitNumericSuffix(b)
	if okA && okB && pa == pb && na != nb {
		return na < nb
	}
	return a < b
}

func splitNumericSuffix(s string) (string, int, bool) {
	i := len(s)
	for i > 0 && unicode.IsDigit(rune(s[i-1])) {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], n, true
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
