// Package i18n localizes user-facing notices.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Notice IDs shown to students.
const (
	RecordingStarted       = "RecordingStarted"
	RecordingStopped       = "RecordingStopped"
	RecordingCommitted     = "RecordingCommitted"
	RecordingDiscarded     = "RecordingDiscarded"
	MicrophoneDenied       = "MicrophoneDenied"
	AlreadyRecording       = "AlreadyRecording"
	NoRecording            = "NoRecording"
	NotRecording           = "NotRecording"
	AnswerSaved            = "AnswerSaved"
	ProgressSaved          = "ProgressSaved"
	SaveFailed             = "SaveFailed"
	AnswersReset           = "AnswersReset"
	ResetNotConfirmed      = "ResetNotConfirmed"
	PlaybackError          = "PlaybackError"
	SpeechUnsupported      = "SpeechUnsupported"
	SpeechFailed           = "SpeechFailed"
	QuestionnaireCompleted = "QuestionnaireCompleted"
	EvaluationUnavailable  = "EvaluationUnavailable"
	EvaluationProgress     = "EvaluationProgress"
	SessionNotFound        = "SessionNotFound"
	QuestionNotFound       = "QuestionNotFound"
	BadRequest             = "BadRequest"
	InternalError          = "InternalError"
	QuestionsRemaining     = "QuestionsRemaining"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	bundle      *i18n.Bundle
	defaultLang = "en"
)

// Init loads the translation bundle. lang is the fallback language for
// requests that do not ask for one.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		slog.Debug("loaded locale file", "file", e.Name())
	}

	bundle = b
	defaultLang = lang
	return nil
}

// Languages lists the loaded language tags.
func Languages() []string {
	var out []string
	for _, t := range bundle.LanguageTags() {
		out = append(out, t.String())
	}
	return out
}

// NewLocalizer creates a localizer preferring langs in order, then the
// default language.
func NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(bundle, append(langs, defaultLang)...)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return NewLocalizer()
}

// T translates a message by ID. Unknown IDs come back unchanged.
func T(ctx context.Context, msgID string) string {
	return Td(ctx, msgID, nil)
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	s, err := localizerFromCtx(ctx).Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}

// Tp translates a pluralized message by ID.
func Tp(ctx context.Context, msgID string, count int) string {
	s, err := localizerFromCtx(ctx).Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}
