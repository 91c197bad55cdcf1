package evaluate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/pavelanni/assessor/internal/model"
)

type batchState struct {
	items    []Item
	failOn   map[int]bool
	batch    Batch
	progress []string
}

func (s *batchState) reset() {
	s.items = nil
	s.failOn = map[int]bool{}
	s.batch = Batch{}
	s.progress = nil
}

type failingOnJudge struct {
	state *batchState
	calls int
}

func (j *failingOnJudge) Judge(_ context.Context, _ JudgeRequest) (JudgeResponse, error) {
	j.calls++
	if j.state.failOn[j.calls] {
		return JudgeResponse{}, errors.New("judge unavailable")
	}
	return JudgeResponse{IsCorrect: ptr(true), Score: ptr(80.0), Feedback: ptr("fine")}, nil
}

func (s *batchState) aBatchOfWrittenAnswers(n int) error {
	for i := 1; i <= n; i++ {
		s.items = append(s.items, textItem(fmt.Sprintf("q%d", i), "answer", "answer"))
	}
	return nil
}

func (s *batchState) theJudgeFailsOnItem(n int) error {
	s.failOn[n] = true
	return nil
}

func (s *batchState) aRecordedAnswerIsAppended() error {
	s.items = append(s.items, Item{
		Ref:    model.QuestionRef{SetID: "s", Question: model.Question{ID: "rec", Kind: model.KindSpoken}},
		Answer: model.AudioAnswer{Payload: []byte{1, 2}, ContainerFormat: "audio/webm"},
	})
	return nil
}

func (s *batchState) theBatchIsEvaluated() error {
	p := New(nil, &failingOnJudge{state: s})
	s.batch = p.Run(context.Background(), s.items, func(done, total int) {
		s.progress = append(s.progress, fmt.Sprintf("%d/%d", done, total))
	})
	return nil
}

func (s *batchState) resultsAreReturned(n int) error {
	if len(s.batch.Results) != n {
		return fmt.Errorf("expected %d results, got %d", n, len(s.batch.Results))
	}
	return nil
}

func (s *batchState) progressIsReportedAs(want string) error {
	if got := strings.Join(s.progress, ", "); got != want {
		return fmt.Errorf("progress = %q, want %q", got, want)
	}
	return nil
}

func (s *batchState) result(n int) (model.EvaluationResult, error) {
	if n < 1 || n > len(s.batch.Results) {
		return model.EvaluationResult{}, fmt.Errorf("no result %d", n)
	}
	return s.batch.Results[n-1], nil
}

func (s *batchState) resultIsThePlaceholder(n int) error {
	r, err := s.result(n)
	if err != nil {
		return err
	}
	if r != Placeholder() {
		return fmt.Errorf("result %d = %+v, want placeholder", n, r)
	}
	if s.batch.Errs[n-1] == nil {
		return fmt.Errorf("result %d has no recorded error", n)
	}
	return nil
}

func (s *batchState) resultHasScore(n, score int) error {
	r, err := s.result(n)
	if err != nil {
		return err
	}
	if r.Score != score {
		return fmt.Errorf("result %d score = %d, want %d", n, r.Score, score)
	}
	return nil
}

func initializeBatchScenario(ctx *godog.ScenarioContext) {
	state := &batchState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})

	ctx.Step(`^a batch of (\d+) written answers$`, state.aBatchOfWrittenAnswers)
	ctx.Step(`^the judge fails on item (\d+)$`, state.theJudgeFailsOnItem)
	ctx.Step(`^a recorded answer is appended$`, state.aRecordedAnswerIsAppended)
	ctx.Step(`^the batch is evaluated$`, state.theBatchIsEvaluated)
	ctx.Step(`^(\d+) results are returned$`, state.resultsAreReturned)
	ctx.Step(`^progress is reported as "([^"]*)"$`, state.progressIsReportedAs)
	ctx.Step(`^result (\d+) is the evaluation error placeholder$`, state.resultIsThePlaceholder)
	ctx.Step(`^result (\d+) has score (\d+)$`, state.resultHasScore)
}

func TestBatchFeature(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "batch evaluation",
		ScenarioInitializer: initializeBatchScenario,
		Options: &godog.Options{
			Format:    "pretty",
			Paths:     []string{"features"},
			Strict:    true,
			TestingT:  t,
			Randomize: 0,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("batch evaluation scenarios failed")
	}
}
