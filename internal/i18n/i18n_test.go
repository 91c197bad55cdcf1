package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, RecordingStarted); got != "Recording started." {
		t.Errorf("T(RecordingStarted) = %q", got)
	}
	if got := T(ctx, SpeechUnsupported); got != "Reading questions aloud is not supported." {
		t.Errorf("T(SpeechUnsupported) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, AnswerSaved); got != "Ответ сохранён." {
		t.Errorf("T(AnswerSaved) = %q, want 'Ответ сохранён.'", got)
	}
	if got := T(ctx, MicrophoneDenied); got == MicrophoneDenied {
		t.Errorf("T(MicrophoneDenied) returned the message ID")
	}
}

func TestEveryNoticeTranslated(t *testing.T) {
	ids := []string{
		RecordingStarted, RecordingStopped, RecordingCommitted, RecordingDiscarded,
		MicrophoneDenied, AlreadyRecording, NoRecording, NotRecording, AnswerSaved,
		ProgressSaved, SaveFailed, AnswersReset, ResetNotConfirmed, PlaybackError,
		SpeechUnsupported, SpeechFailed, QuestionnaireCompleted, EvaluationUnavailable,
		SessionNotFound, QuestionNotFound, BadRequest, InternalError,
	}
	for _, lang := range []string{"en", "ru"} {
		ctx := initLang(t, lang)
		for _, id := range ids {
			if got := T(ctx, id); got == id || got == "" {
				t.Errorf("%s: %s is not translated", lang, id)
			}
		}
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")
	if got := Tp(ctx, QuestionsRemaining, 1); got != "1 question left." {
		t.Errorf("Tp(1) = %q", got)
	}
	if got := Tp(ctx, QuestionsRemaining, 5); got != "5 questions left." {
		t.Errorf("Tp(5) = %q", got)
	}

	ctx = initLang(t, "ru")
	if got := Tp(ctx, QuestionsRemaining, 3); got != "Осталось 3 вопроса." {
		t.Errorf("Tp(ru, 3) = %q", got)
	}
	if got := Tp(ctx, QuestionsRemaining, 5); got != "Осталось 5 вопросов." {
		t.Errorf("Tp(ru, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")
	got := Td(ctx, EvaluationProgress, map[string]any{"Done": 2, "Total": 7})
	if got != "Evaluated 2 of 7 answers." {
		t.Errorf("Td(EvaluationProgress) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")
	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	ctx := initLang(t, "de")
	if got := T(ctx, AnswerSaved); got != "Answer saved." {
		t.Errorf("T(AnswerSaved) = %q, want English fallback", got)
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), ProgressSaved)
	}))

	tests := []struct {
		name   string
		query  string
		header string
		want   string
	}{
		{"default", "", "", "Progress saved."},
		{"header", "", "ru-RU,ru;q=0.9", "Прогресс сохранён."},
		{"query wins", "?lang=en", "ru", "Progress saved."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
