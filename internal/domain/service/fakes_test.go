package service

import (
	"context"
	"sync"
	"time"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/domain/repository"
	apperrors "github.com/evalgate/evalgate/pkg/errors"
)

// fakeStore is an in-memory EngineStore for scheduler tests.
type fakeStore struct {
	mu        sync.Mutex
	runs      map[string]*entity.Run
	sets      map[string]*entity.ProblemSet
	problems  []*entity.Problem
	models    map[string]*entity.Model
	providers map[string]*entity.Provider // keyed by model id
	results   map[string]*entity.RunResult
	resultIDs []string // insertion order
}

var _ repository.EngineStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:      map[string]*entity.Run{},
		sets:      map[string]*entity.ProblemSet{},
		models:    map[string]*entity.Model{},
		providers: map[string]*entity.Provider{},
		results:   map[string]*entity.RunResult{},
	}
}

func (f *fakeStore) addModel(id string) {
	f.models[id] = &entity.Model{ID: id, ProviderID: "prov", Label: id, ModelID: "vendor-" + id}
	f.providers[id] = &entity.Provider{ID: "prov", Kind: entity.KindOpenAICompat, BaseURL: "http://localhost"}
}

func (f *fakeStore) GetRun(ctx context.Context, id string) (*entity.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("run not found")
	}
	copied := *run
	return &copied, nil
}

func (f *fakeStore) GetProblemSet(ctx context.Context, id string) (*entity.ProblemSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("problem set not found")
	}
	return set, nil
}

func (f *fakeStore) ListProblems(ctx context.Context, problemSetID string) ([]*entity.Problem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Problem
	for _, p := range f.problems {
		if p.ProblemSetID == problemSetID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetModel(ctx context.Context, id string) (*entity.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("model not found")
	}
	return m, nil
}

func (f *fakeStore) ModelProvider(ctx context.Context, modelID string) (*entity.Model, *entity.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[modelID]
	if !ok {
		return nil, nil, apperrors.NewNotFoundError("model not found")
	}
	return m, f.providers[modelID], nil
}

func (f *fakeStore) TransitionRunStatus(ctx context.Context, id string, from []entity.RunStatus, to entity.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return apperrors.NewNotFoundError("run not found")
	}
	for _, st := range from {
		if run.Status == st {
			run.Status = to
			return nil
		}
	}
	return apperrors.NewInvalidInputError("illegal transition from " + string(run.Status))
}

func (f *fakeStore) FinishRunCancelled(ctx context.Context, id, cancelledBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return apperrors.NewNotFoundError("run not found")
	}
	now := time.Now().UTC()
	run.Status = entity.RunCancelled
	run.CancelledAt = &now
	run.CancelledBy = cancelledBy
	return nil
}

func (f *fakeStore) CreateRunResult(ctx context.Context, result *entity.RunResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *result
	f.results[result.ID] = &copied
	f.resultIDs = append(f.resultIDs, result.ID)
	return nil
}

func (f *fakeStore) MarkResult(ctx context.Context, id string, patch repository.ResultPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[id]
	if !ok {
		return apperrors.NewNotFoundError("run result not found")
	}
	if patch.Output != nil {
		result.Output = *patch.Output
	}
	if patch.Score != nil {
		result.Score = patch.Score
	}
	if patch.Status != nil {
		result.Status = *patch.Status
	}
	if patch.JudgedBy != nil {
		result.JudgedBy = *patch.JudgedBy
	}
	if patch.JudgeReasoning != nil {
		result.JudgeReasoning = *patch.JudgeReasoning
	}
	if patch.CancelledAt != nil {
		result.CancelledAt = patch.CancelledAt
	}
	return nil
}

func (f *fakeStore) runStatus(id string) entity.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id].Status
}

func (f *fakeStore) resultsForRun(id string) []*entity.RunResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.RunResult
	for _, rid := range f.resultIDs {
		r := f.results[rid]
		if r.RunID == id {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out
}

// fakeBus records every published event in order.
type fakeBus struct {
	mu     sync.Mutex
	events []entity.RunEvent
}

var _ EventPublisher = (*fakeBus)(nil)

func (b *fakeBus) Publish(event entity.RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *fakeBus) all() []entity.RunEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]entity.RunEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *fakeBus) ofType(eventType string) []entity.RunEvent {
	var out []entity.RunEvent
	for _, ev := range b.all() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// forModel returns the per-worker event sequence of one candidate model,
// excluding run-level events.
func (b *fakeBus) forModel(modelID string) []entity.RunEvent {
	var out []entity.RunEvent
	for _, ev := range b.all() {
		if ev.ModelID == modelID {
			out = append(out, ev)
		}
	}
	return out
}

// fakeInvoker routes calls through a configurable complete function; Stream
// emits the result as single-rune tokens before returning it.
type fakeInvoker struct {
	complete func(ctx context.Context, model *entity.Model, messages []ChatMessage) (string, error)
}

var _ ModelInvoker = (*fakeInvoker)(nil)

func (f *fakeInvoker) Complete(ctx context.Context, provider *entity.Provider, model *entity.Model, messages []ChatMessage) (string, error) {
	return f.complete(ctx, model, messages)
}

func (f *fakeInvoker) Stream(ctx context.Context, provider *entity.Provider, model *entity.Model, messages []ChatMessage, onToken func(string)) (string, error) {
	text, err := f.complete(ctx, model, messages)
	if err != nil {
		return "", err
	}
	for _, r := range text {
		onToken(string(r))
	}
	return text, nil
}

func testProblem(id, setID string, kind entity.ProblemKind) *entity.Problem {
	return &entity.Problem{
		ID:           id,
		ProblemSetID: setID,
		Kind:         kind,
		Prompt:       "prompt " + id,
		CreatedAt:    time.Now().UTC(),
	}
}
