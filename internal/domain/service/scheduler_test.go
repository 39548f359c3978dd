package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	apperrors "github.com/evalgate/evalgate/pkg/errors"
)

const (
	testSetID   = "set1"
	testJudgeID = "judge"
)

type testEngine struct {
	store     *fakeStore
	bus       *fakeBus
	registry  *CancelRegistry
	invoker   *fakeInvoker
	scheduler *Scheduler
}

// newTestEngine wires a scheduler over in-memory fakes. The default invoker
// answers candidates with a canned string and the judge with a PASS verdict
// scoring 80.
func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	logger := zap.NewNop()

	store := newFakeStore()
	store.sets[testSetID] = &entity.ProblemSet{ID: testSetID, Name: "set"}
	store.addModel(testJudgeID)

	invoker := &fakeInvoker{
		complete: func(ctx context.Context, model *entity.Model, messages []ChatMessage) (string, error) {
			if model.ID == testJudgeID {
				return `{"verdict": "PASS", "reasoning": "looks right", "score": 80}`, nil
			}
			return "answer from " + model.ID, nil
		},
	}

	bus := &fakeBus{}
	registry := NewCancelRegistry(logger)
	retry := RetryPolicy{MaxRetries: 1, BaseWait: time.Millisecond}
	judge := NewJudge(invoker, retry, logger)
	scheduler := NewScheduler(store, bus, registry, invoker, judge, retry, logger)

	return &testEngine{
		store:     store,
		bus:       bus,
		registry:  registry,
		invoker:   invoker,
		scheduler: scheduler,
	}
}

func (e *testEngine) addRun(id string, modelIDs []string, stream bool) {
	for _, mid := range modelIDs {
		if _, ok := e.store.models[mid]; !ok {
			e.store.addModel(mid)
		}
	}
	e.store.runs[id] = &entity.Run{
		ID:           id,
		ProblemSetID: testSetID,
		ModelIDs:     modelIDs,
		JudgeModelID: testJudgeID,
		Status:       entity.RunQueued,
		Stream:       stream,
	}
}

func waitForStatus(t *testing.T, store *fakeStore, runID string, want entity.RunStatus) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if store.runStatus(runID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached %s, stuck at %s", runID, want, store.runStatus(runID))
}

func TestSchedulerCompletesTextRun(t *testing.T) {
	e := newTestEngine(t)
	e.store.problems = []*entity.Problem{
		testProblem("p1", testSetID, entity.ProblemText),
		testProblem("p2", testSetID, entity.ProblemText),
	}
	e.addRun("run1", []string{"m1", "m2"}, false)

	if err := e.scheduler.Execute(context.Background(), "run1"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitForStatus(t, e.store, "run1", entity.RunCompleted)

	results := e.store.resultsForRun("run1")
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for _, r := range results {
		if r.Status != entity.ResultCompleted {
			t.Errorf("result %s status = %s, want completed", r.ID, r.Status)
		}
		if r.Score == nil || *r.Score != 80 {
			t.Errorf("result %s score = %v, want 80", r.ID, r.Score)
		}
		if r.JudgedBy != testJudgeID {
			t.Errorf("result %s judged_by = %q, want %q", r.ID, r.JudgedBy, testJudgeID)
		}
		if r.JudgeReasoning != "looks right" {
			t.Errorf("result %s reasoning = %q", r.ID, r.JudgeReasoning)
		}
		if !r.Passed() {
			t.Errorf("result %s should pass at score 80", r.ID)
		}
	}

	statuses := e.bus.ofType(entity.EventRunStatus)
	if len(statuses) < 2 {
		t.Fatalf("got %d run_status events, want at least 2", len(statuses))
	}
	if statuses[0].Status != string(entity.RunRunning) {
		t.Errorf("first run_status = %s, want running", statuses[0].Status)
	}
	if last := statuses[len(statuses)-1]; last.Status != string(entity.RunCompleted) {
		t.Errorf("last run_status = %s, want completed", last.Status)
	}

	all := e.bus.all()
	if all[0].Type != entity.EventRunStatus {
		t.Errorf("first event = %s, want run_status", all[0].Type)
	}
	if last := all[len(all)-1]; last.Type != entity.EventRunStatus {
		t.Errorf("last event = %s, want run_status", last.Type)
	}
}

func TestSchedulerPerModelEventOrdering(t *testing.T) {
	e := newTestEngine(t)
	e.store.problems = []*entity.Problem{
		testProblem("p1", testSetID, entity.ProblemText),
		testProblem("p2", testSetID, entity.ProblemText),
		testProblem("p3", testSetID, entity.ProblemText),
	}
	e.addRun("run1", []string{"m1"}, false)

	if err := e.scheduler.Execute(context.Background(), "run1"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitForStatus(t, e.store, "run1", entity.RunCompleted)

	events := e.bus.forModel("m1")
	wantPerProblem := []string{
		entity.EventModelStarted,
		entity.EventCandidateToken,
		entity.EventCandidateDone,
		entity.EventJudgeDone,
	}
	if len(events) != 3*len(wantPerProblem) {
		t.Fatalf("got %d events, want %d", len(events), 3*len(wantPerProblem))
	}
	for i, problemID := range []string{"p1", "p2", "p3"} {
		for j, wantType := range wantPerProblem {
			ev := events[i*len(wantPerProblem)+j]
			if ev.Type != wantType {
				t.Errorf("event[%d] type = %s, want %s", i*len(wantPerProblem)+j, ev.Type, wantType)
			}
			if ev.ProblemID != problemID {
				t.Errorf("event[%d] problem = %s, want %s", i*len(wantPerProblem)+j, ev.ProblemID, problemID)
			}
		}
	}
}

func TestSchedulerStreamingEmitsTokens(t *testing.T) {
	e := newTestEngine(t)
	e.store.problems = []*entity.Problem{testProblem("p1", testSetID, entity.ProblemText)}
	e.addRun("run1", []string{"m1"}, true)

	if err := e.scheduler.Execute(context.Background(), "run1"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitForStatus(t, e.store, "run1", entity.RunCompleted)

	if got := e.bus.ofType(entity.EventModelStreamingStarted); len(got) != 1 {
		t.Errorf("got %d model_streaming_started events, want 1", len(got))
	}

	tokens := e.bus.ofType(entity.EventCandidateToken)
	var rebuilt string
	for _, tok := range tokens {
		rebuilt += tok.Delta
	}
	if rebuilt != "answer from m1" {
		t.Errorf("token deltas rebuild %q, want %q", rebuilt, "answer from m1")
	}
	if len(tokens) < 2 {
		t.Errorf("streaming should emit multiple tokens, got %d", len(tokens))
	}
}

func TestSchedulerHTMLStaysManual(t *testing.T) {
	e := newTestEngine(t)
	e.store.problems = []*entity.Problem{testProblem("p1", testSetID, entity.ProblemHTML)}
	e.addRun("run1", []string{"m1"}, false)

	if err := e.scheduler.Execute(context.Background(), "run1"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitForStatus(t, e.store, "run1", entity.RunCompleted)

	results := e.store.resultsForRun("run1")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Status != entity.ResultManual {
		t.Errorf("html result status = %s, want manual", r.Status)
	}
	if r.Output == "" {
		t.Error("html result should carry the candidate output")
	}
	if r.Score != nil {
		t.Errorf("html result score = %v, want nil until review", r.Score)
	}

	if got := e.bus.ofType(entity.EventHTMLCandidateDone); len(got) != 1 {
		t.Errorf("got %d html_candidate_done events, want 1", len(got))
	}
	if got := e.bus.ofType(entity.EventJudgeDone); len(got) != 0 {
		t.Errorf("html problems must not reach the judge, got %d judge_done", len(got))
	}
}

func TestSchedulerModelFailureIsolation(t *testing.T) {
	e := newTestEngine(t)
	e.store.problems = []*entity.Problem{
		testProblem("p1", testSetID, entity.ProblemText),
		testProblem("p2", testSetID, entity.ProblemText),
	}
	e.addRun("run1", []string{"good", "bad"}, false)

	base := e.invoker.complete
	e.invoker.complete = func(ctx context.Context, model *entity.Model, messages []ChatMessage) (string, error) {
		if model.ID == "bad" {
			return "", fmt.Errorf("API error 401: invalid key")
		}
		return base(ctx, model, messages)
	}

	if err := e.scheduler.Execute(context.Background(), "run1"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitForStatus(t, e.store, "run1", entity.RunCompleted)

	for _, r := range e.store.resultsForRun("run1") {
		switch r.ModelID {
		case "bad":
			if r.Status != entity.ResultError {
				t.Errorf("bad result status = %s, want error", r.Status)
			}
			if r.Score != nil {
				t.Errorf("errored result score = %v, want nil", r.Score)
			}
		case "good":
			if r.Status != entity.ResultCompleted {
				t.Errorf("good result status = %s, want completed", r.Status)
			}
		}
	}

	// Both problems errored for the bad model: one failure is not fatal to
	// its queue.
	if got := e.bus.ofType(entity.EventModelError); len(got) != 2 {
		t.Errorf("got %d model_error events, want 2", len(got))
	}
}

func TestSchedulerCancelRun(t *testing.T) {
	e := newTestEngine(t)
	e.store.problems = []*entity.Problem{
		testProblem("p1", testSetID, entity.ProblemText),
		testProblem("p2", testSetID, entity.ProblemText),
	}
	e.addRun("run1", []string{"m1"}, false)

	started := make(chan struct{})
	base := e.invoker.complete
	e.invoker.complete = func(ctx context.Context, model *entity.Model, messages []ChatMessage) (string, error) {
		if model.ID == "m1" {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return "", ctx.Err()
		}
		return base(ctx, model, messages)
	}

	if err := e.scheduler.Execute(context.Background(), "run1"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("worker never started")
	}
	if !e.registry.CancelRun("run1", "user") {
		t.Fatal("CancelRun found no active run")
	}

	waitForStatus(t, e.store, "run1", entity.RunCancelled)

	e.store.mu.Lock()
	run := e.store.runs["run1"]
	if run.CancelledBy != "user" {
		t.Errorf("cancelled_by = %q, want user", run.CancelledBy)
	}
	if run.CancelledAt == nil {
		t.Error("cancelled_at not stamped")
	}
	e.store.mu.Unlock()

	results := e.store.resultsForRun("run1")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (second problem never starts)", len(results))
	}
	if results[0].Status != entity.ResultCancelled {
		t.Errorf("in-flight result status = %s, want cancelled", results[0].Status)
	}
	if results[0].CancelledAt == nil {
		t.Error("in-flight result cancelled_at not stamped")
	}

	cancelledEvents := e.bus.ofType(entity.EventModelCancelled)
	if len(cancelledEvents) != 1 {
		t.Fatalf("got %d model_cancelled events, want 1", len(cancelledEvents))
	}
	if cancelledEvents[0].ModelName != "m1" {
		t.Errorf("model_cancelled model_name = %q, want m1", cancelledEvents[0].ModelName)
	}

	all := e.bus.all()
	last := all[len(all)-1]
	if last.Type != entity.EventRunStatus || last.Status != string(entity.RunCancelled) {
		t.Errorf("last event = %s/%s, want run_status/cancelled", last.Type, last.Status)
	}
	for _, ev := range e.bus.ofType(entity.EventRunStatus) {
		if ev.Status == string(entity.RunCompleted) {
			t.Error("cancelled run must never report completed")
		}
	}
}

func TestSchedulerCancelModelLeavesSiblings(t *testing.T) {
	e := newTestEngine(t)
	e.store.problems = []*entity.Problem{testProblem("p1", testSetID, entity.ProblemText)}
	e.addRun("run1", []string{"slow", "fast"}, false)

	started := make(chan struct{})
	base := e.invoker.complete
	e.invoker.complete = func(ctx context.Context, model *entity.Model, messages []ChatMessage) (string, error) {
		if model.ID == "slow" {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return "", ctx.Err()
		}
		return base(ctx, model, messages)
	}

	if err := e.scheduler.Execute(context.Background(), "run1"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("slow worker never started")
	}
	if !e.registry.CancelModel("run1", "slow") {
		t.Fatal("CancelModel found no worker")
	}

	// Only one worker was cancelled, so the run still completes.
	waitForStatus(t, e.store, "run1", entity.RunCompleted)

	for _, r := range e.store.resultsForRun("run1") {
		switch r.ModelID {
		case "slow":
			if r.Status != entity.ResultCancelled {
				t.Errorf("slow result status = %s, want cancelled", r.Status)
			}
		case "fast":
			if r.Status != entity.ResultCompleted {
				t.Errorf("fast result status = %s, want completed", r.Status)
			}
		}
	}
}

// Every model-scoped event must carry the model's display label, so SSE
// consumers can render tokens and errors without a model lookup.
func TestSchedulerModelEventsCarryLabel(t *testing.T) {
	e := newTestEngine(t)
	e.store.problems = []*entity.Problem{
		testProblem("p1", testSetID, entity.ProblemText),
		testProblem("p2", testSetID, entity.ProblemHTML),
	}
	e.addRun("run1", []string{"m1", "bad"}, true)

	base := e.invoker.complete
	e.invoker.complete = func(ctx context.Context, model *entity.Model, messages []ChatMessage) (string, error) {
		if model.ID == "bad" {
			return "", fmt.Errorf("API error 401: invalid key")
		}
		return base(ctx, model, messages)
	}

	if err := e.scheduler.Execute(context.Background(), "run1"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitForStatus(t, e.store, "run1", entity.RunCompleted)

	// Labels equal model ids in the fakes, so ModelName must match ModelID.
	labelled := []string{
		entity.EventModelStarted,
		entity.EventModelStreamingStarted,
		entity.EventCandidateToken,
		entity.EventCandidateDone,
		entity.EventHTMLCandidateDone,
		entity.EventModelError,
	}
	for _, eventType := range labelled {
		events := e.bus.ofType(eventType)
		if len(events) == 0 {
			t.Errorf("no %s events published", eventType)
			continue
		}
		for _, ev := range events {
			if ev.ModelName == "" {
				t.Errorf("%s event has empty model_name (model %s)", eventType, ev.ModelID)
			} else if ev.ModelName != ev.ModelID {
				t.Errorf("%s event model_name = %q, want %q", eventType, ev.ModelName, ev.ModelID)
			}
		}
	}
}

func TestSchedulerExecutePreconditions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.scheduler.Execute(ctx, "missing"); !apperrors.IsNotFound(err) {
		t.Errorf("unknown run: got %v, want not-found", err)
	}

	e.addRun("running", []string{"m1"}, false)
	e.store.runs["running"].Status = entity.RunRunning
	if err := e.scheduler.Execute(ctx, "running"); !apperrors.IsConflict(err) {
		t.Errorf("running run: got %v, want conflict", err)
	}

	e.addRun("nojudge", []string{"m1"}, false)
	e.store.runs["nojudge"].JudgeModelID = "ghost"
	if err := e.scheduler.Execute(ctx, "nojudge"); !apperrors.IsInvalidInput(err) {
		t.Errorf("missing judge: got %v, want invalid-input", err)
	}

	e.addRun("done", []string{"m1"}, false)
	e.store.runs["done"].Status = entity.RunCompleted
	if err := e.scheduler.Execute(ctx, "done"); !apperrors.IsInvalidInput(err) {
		t.Errorf("completed run: got %v, want invalid-input transition error", err)
	}
}

func TestSchedulerReexecutesErroredRun(t *testing.T) {
	e := newTestEngine(t)
	e.store.problems = []*entity.Problem{testProblem("p1", testSetID, entity.ProblemText)}
	e.addRun("run1", []string{"m1"}, false)
	e.store.runs["run1"].Status = entity.RunError

	if err := e.scheduler.Execute(context.Background(), "run1"); err != nil {
		t.Fatalf("re-execution of errored run failed: %v", err)
	}
	waitForStatus(t, e.store, "run1", entity.RunCompleted)
}

func TestSchedulerSkipsMissingCandidates(t *testing.T) {
	e := newTestEngine(t)
	e.store.problems = []*entity.Problem{testProblem("p1", testSetID, entity.ProblemText)}
	e.addRun("run1", []string{"m1"}, false)
	e.store.runs["run1"].ModelIDs = []string{"m1", "vanished"}

	if err := e.scheduler.Execute(context.Background(), "run1"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitForStatus(t, e.store, "run1", entity.RunCompleted)

	results := e.store.resultsForRun("run1")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (vanished model skipped)", len(results))
	}
	if results[0].ModelID != "m1" {
		t.Errorf("result model = %s, want m1", results[0].ModelID)
	}
}
