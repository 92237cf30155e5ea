package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/botrelay/pkg/events"
	"github.com/dukex/botrelay/pkg/mocks"
	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/persistence/sqlbase"
	"github.com/dukex/botrelay/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *sqlbase.Store) {
	t.Helper()

	store := testutil.NewStore(t)

	return NewEngine(store, DefaultConfig(), testutil.Logger(), opts...), store
}

func reload(t *testing.T, store persistence.Persistence, id string) *models.Question {
	t.Helper()

	question, err := store.Questions().FindByID(context.Background(), id)
	require.NoError(t, err)

	return question
}

func TestEvaluate_Timeout(t *testing.T) {
	bus := &mocks.MockEventBus{}
	engine, store := newTestEngine(t, WithPublisher(bus))

	question := testutil.SeedQuestion(t, store, testutil.WithAge(121*time.Second))

	bus.On("Publish", mock.Anything, question.ID, mock.MatchedBy(func(event events.QuestionFinished) bool {
		return event.QuestionID == question.ID &&
			event.Status == models.QuestionStatusFailed &&
			event.Content == "处理超时"
	})).Return(nil).Once()

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, outcome)

	found := reload(t, store, question.ID)
	assert.True(t, found.Finish)
	assert.Equal(t, models.QuestionStatusFailed, found.Status)
	assert.Equal(t, "处理超时", found.Content)

	bus.AssertExpectations(t)
}

func TestEvaluate_TimeoutWinsOverSuccess(t *testing.T) {
	engine, store := newTestEngine(t)

	question := testutil.SeedQuestion(t, store,
		testutil.WithStatus(models.QuestionStatusRunning), testutil.WithAge(150*time.Second))
	run := testutil.SeedRun(t, store, question.ID)
	testutil.SeedEvent(t, store, run, models.EventKindMessage, models.EventStatusRunning, "late")
	testutil.SeedEvent(t, store, run, models.EventKindMessageEnd, models.EventStatusSucceeded, "")

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.Equal(t, models.QuestionStatusFailed, reload(t, store, question.ID).Status)
}

func TestEvaluate_Success(t *testing.T) {
	bus := &mocks.MockEventBus{}
	engine, store := newTestEngine(t, WithPublisher(bus))

	question := testutil.SeedQuestion(t, store, testutil.WithStatus(models.QuestionStatusRunning))
	run := testutil.SeedRun(t, store, question.ID)
	testutil.SeedEvent(t, store, run, models.EventKindMessage, models.EventStatusRunning, "42")
	testutil.SeedEvent(t, store, run, models.EventKindMessageEnd, models.EventStatusSucceeded, "")

	bus.On("Publish", mock.Anything, question.ID, mock.AnythingOfType("events.QuestionFinished")).Return(nil).Once()

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)

	found := reload(t, store, question.ID)
	assert.True(t, found.Finish)
	assert.Equal(t, models.QuestionStatusSucceeded, found.Status)
	assert.Equal(t, "42", found.Content)

	bus.AssertExpectations(t)
}

func TestEvaluate_SuccessWithoutMessageUsesPlaceholder(t *testing.T) {
	engine, store := newTestEngine(t)

	question := testutil.SeedQuestion(t, store, testutil.WithStatus(models.QuestionStatusRunning))
	run := testutil.SeedRun(t, store, question.ID)
	testutil.SeedEvent(t, store, run, models.EventKindMessageEnd, models.EventStatusSucceeded, "")

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.Equal(t, "正在处理中...", reload(t, store, question.ID).Content)
}

func TestEvaluate_FailureSignal(t *testing.T) {
	engine, store := newTestEngine(t)

	question := testutil.SeedQuestion(t, store, testutil.WithStatus(models.QuestionStatusRunning))
	run := testutil.SeedRun(t, store, question.ID)
	testutil.SeedEvent(t, store, run, models.EventKindMessage, models.EventStatusRunning, "partial")
	testutil.SeedEvent(t, store, run, models.EventKindNodeFinished, models.EventStatusFailed, "")

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	found := reload(t, store, question.ID)
	assert.True(t, found.Finish)
	assert.Equal(t, models.QuestionStatusFailed, found.Status)
	assert.Equal(t, "处理失败", found.Content)
}

func TestEvaluate_FailureWinsOverMessageEnd(t *testing.T) {
	engine, store := newTestEngine(t)

	question := testutil.SeedQuestion(t, store, testutil.WithStatus(models.QuestionStatusRunning))
	run := testutil.SeedRun(t, store, question.ID)
	testutil.SeedEvent(t, store, run, models.EventKindWorkflowFinished, models.EventStatusFailed, "")
	testutil.SeedEvent(t, store, run, models.EventKindMessageEnd, models.EventStatusSucceeded, "")

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestEvaluate_RunningRefreshesContent(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	question := testutil.SeedQuestion(t, store, testutil.WithStatus(models.QuestionStatusRunning))
	run := testutil.SeedRun(t, store, question.ID)
	testutil.SeedEvent(t, store, run, models.EventKindMessage, models.EventStatusRunning, "thinking")

	outcome, err := engine.Reconcile(ctx, question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, outcome)

	found := reload(t, store, question.ID)
	assert.False(t, found.Finish)
	assert.Equal(t, models.QuestionStatusRunning, found.Status)
	assert.Equal(t, "thinking", found.Content)

	outcome, err = engine.Reconcile(ctx, question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
}

func TestEvaluate_RunningWithoutEventsShowsPlaceholder(t *testing.T) {
	engine, store := newTestEngine(t)

	question := testutil.SeedQuestion(t, store, testutil.WithStatus(models.QuestionStatusRunning))

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, outcome)
	assert.Equal(t, "正在处理中...", reload(t, store, question.ID).Content)
}

func TestEvaluate_PendingIsNoop(t *testing.T) {
	engine, store := newTestEngine(t)

	question := testutil.SeedQuestion(t, store, testutil.WithAge(10*time.Second))

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)

	found := reload(t, store, question.ID)
	assert.Equal(t, models.QuestionStatusPending, found.Status)
	assert.Empty(t, found.Content)
}

func TestEvaluate_FinishedIsNoop(t *testing.T) {
	bus := &mocks.MockEventBus{}
	engine, store := newTestEngine(t, WithPublisher(bus))

	question := testutil.SeedQuestion(t, store,
		testutil.WithStatus(models.QuestionStatusSucceeded),
		testutil.WithContent("done"),
		testutil.WithAge(500*time.Second))

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyFinished, outcome)
	assert.Equal(t, "done", reload(t, store, question.ID).Content)

	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluate_Idempotent(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	question := testutil.SeedQuestion(t, store, testutil.WithStatus(models.QuestionStatusRunning))
	run := testutil.SeedRun(t, store, question.ID)
	testutil.SeedEvent(t, store, run, models.EventKindMessage, models.EventStatusRunning, "42")
	testutil.SeedEvent(t, store, run, models.EventKindMessageEnd, models.EventStatusSucceeded, "")

	_, err := engine.Reconcile(ctx, question.ID)
	require.NoError(t, err)

	first := reload(t, store, question.ID)

	outcome, err := engine.Reconcile(ctx, question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyFinished, outcome)

	second := reload(t, store, question.ID)
	assert.Equal(t, first, second)
}

func TestEvaluate_ConcurrentTerminalTransition(t *testing.T) {
	engine, store := newTestEngine(t)

	question := testutil.SeedQuestion(t, store, testutil.WithAge(130*time.Second))
	snapshot := reload(t, store, question.ID)

	const evaluators = 4

	outcomes := make([]Outcome, evaluators)

	var wg sync.WaitGroup

	for i := range evaluators {
		wg.Add(1)

		go func() {
			defer wg.Done()

			copied := *snapshot

			outcome, err := engine.Evaluate(context.Background(), &copied)
			assert.NoError(t, err)

			outcomes[i] = outcome
		}()
	}

	wg.Wait()

	timedOut := 0

	for _, outcome := range outcomes {
		switch outcome {
		case OutcomeTimedOut:
			timedOut++
		case OutcomeAlreadyFinished:
		default:
			t.Errorf("unexpected outcome %q", outcome)
		}
	}

	assert.Equal(t, 1, timedOut)
}

func TestEvaluate_InjectedClock(t *testing.T) {
	createdAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	store := testutil.NewStore(t)
	question := testutil.SeedQuestion(t, store, testutil.WithCreatedAt(createdAt))

	engine := NewEngine(store, Config{Timeout: time.Minute, Messages: DefaultMessages()}, testutil.Logger(),
		WithClock(func() time.Time { return createdAt.Add(59 * time.Second) }))

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)

	engine.now = func() time.Time { return createdAt.Add(61 * time.Second) }

	outcome, err = engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, outcome)
}

func TestEvaluate_PublishFailureIsNotFatal(t *testing.T) {
	bus := &mocks.MockEventBus{}
	engine, store := newTestEngine(t, WithPublisher(bus))

	question := testutil.SeedQuestion(t, store, testutil.WithAge(200*time.Second))

	bus.On("Publish", mock.Anything, question.ID, mock.Anything).Return(errors.New("broker down")).Once()

	outcome, err := engine.Reconcile(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.True(t, reload(t, store, question.ID).Finish)
}

func TestLatestContent(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	question := testutil.SeedQuestion(t, store)
	older := testutil.SeedRun(t, store, question.ID)
	newer := testutil.SeedRun(t, store, question.ID)

	content, err := engine.LatestContent(ctx, question.ID, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "正在处理中...", content)

	testutil.SeedEvent(t, store, older, models.EventKindMessage, models.EventStatusRunning, "from older run")

	content, err = engine.LatestContent(ctx, question.ID, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "from older run", content, "falls back to any run of the question")

	testutil.SeedEvent(t, store, newer, models.EventKindMessage, models.EventStatusRunning, "from newer run")
	testutil.SeedEvent(t, store, older, models.EventKindMessage, models.EventStatusRunning, "older again")

	content, err = engine.LatestContent(ctx, question.ID, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "from newer run", content, "prefers the run's own message")

	testutil.SeedEvent(t, store, newer, models.EventKindMessage, models.EventStatusRunning, "")

	content, err = engine.LatestContent(ctx, question.ID, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "正在处理中...", content, "an empty newest message yields the placeholder")
}
