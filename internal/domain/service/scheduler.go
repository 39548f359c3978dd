package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/domain/repository"
	"github.com/evalgate/evalgate/pkg/errors"
	"github.com/evalgate/evalgate/pkg/safego"
)

// System prompts sent to candidate models, chosen by problem kind.
const (
	textSystemPrompt = "You are a helpful assistant."
	htmlSystemPrompt = "You are a helpful assistant that returns HTML/CSS/JS when asked. Keep responses concise."
)

// Scheduler executes runs: one worker per candidate model, each iterating the
// problem set in order, producing answers through the invoker and verdicts
// through the judge. Execute acknowledges immediately; the run body proceeds
// asynchronously.
type Scheduler struct {
	store    repository.EngineStore
	bus      EventPublisher
	registry *CancelRegistry
	invoker  ModelInvoker
	judge    *Judge
	retry    RetryPolicy
	logger   *zap.Logger
}

// NewScheduler wires a Scheduler.
func NewScheduler(
	store repository.EngineStore,
	bus EventPublisher,
	registry *CancelRegistry,
	invoker ModelInvoker,
	judge *Judge,
	retry RetryPolicy,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		store:    store,
		bus:      bus,
		registry: registry,
		invoker:  invoker,
		judge:    judge,
		retry:    retry,
		logger:   logger.With(zap.String("component", "scheduler")),
	}
}

// candidate pairs a resolved model with its provider row.
type candidate struct {
	model    *entity.Model
	provider *entity.Provider
}

// Execute starts the run. It validates preconditions, moves the run to
// running, publishes the status change, and returns; workers run in the
// background under the registry's cancel hierarchy.
//
// A run may be executed when queued or error (re-execution); executing a
// running run is a conflict, a finished run an invalid input.
func (s *Scheduler) Execute(ctx context.Context, runID string) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status == entity.RunRunning {
		return errors.NewConflictError("run is already running")
	}

	judgeModel, judgeProvider, err := s.store.ModelProvider(ctx, run.JudgeModelID)
	if err != nil {
		return errors.NewInvalidInputError(fmt.Sprintf("judge model %s does not resolve", run.JudgeModelID))
	}

	// Candidates that no longer exist are skipped, not fatal.
	candidates := make([]candidate, 0, len(run.ModelIDs))
	for _, id := range run.ModelIDs {
		model, provider, err := s.store.ModelProvider(ctx, id)
		if err != nil {
			s.logger.Warn("Skipping candidate model that no longer resolves",
				zap.String("run_id", runID),
				zap.String("model_id", id),
				zap.Error(err),
			)
			continue
		}
		candidates = append(candidates, candidate{model: model, provider: provider})
	}

	problems, err := s.store.ListProblems(ctx, run.ProblemSetID)
	if err != nil {
		return err
	}

	if err := s.store.TransitionRunStatus(ctx, runID,
		[]entity.RunStatus{entity.RunQueued, entity.RunError}, entity.RunRunning); err != nil {
		return err
	}
	s.bus.Publish(entity.RunEvent{
		Type:   entity.EventRunStatus,
		RunID:  runID,
		Status: string(entity.RunRunning),
	})

	// The run outlives the HTTP request that started it, so its cancel
	// hierarchy hangs off a fresh background context.
	runCtx := s.registry.RegisterRun(context.Background(), runID)
	judgeCand := candidate{model: judgeModel, provider: judgeProvider}

	s.logger.Info("Run started",
		zap.String("run_id", runID),
		zap.Int("candidates", len(candidates)),
		zap.Int("problems", len(problems)),
		zap.Bool("stream", run.Stream),
	)

	safego.Go(s.logger, "run-"+runID, func() {
		s.runBody(runCtx, run, judgeCand, candidates, problems)
	})
	return nil
}

func (s *Scheduler) runBody(runCtx context.Context, run *entity.Run, judgeCand candidate, candidates []candidate, problems []*entity.Problem) {
	defer s.registry.Cleanup(run.ID)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Run body panicked",
				zap.String("run_id", run.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.finishError(run.ID)
		}
	}()

	var wg sync.WaitGroup
	for _, cand := range candidates {
		cand := cand
		modelCtx := s.registry.RegisterModel(run.ID, cand.model.ID)
		wg.Add(1)
		safego.Go(s.logger, fmt.Sprintf("worker-%s-%s", run.ID, cand.model.ID), func() {
			defer wg.Done()
			s.runWorker(modelCtx, run, cand, judgeCand, problems)
		})
	}
	wg.Wait()

	// Terminal status writes use a fresh context: they must land even when
	// the run context has been cancelled.
	ctx := context.Background()

	if runCtx.Err() != nil || s.registry.RunCancelled(run.ID) {
		by := s.registry.CancelledBy(run.ID)
		if err := s.store.FinishRunCancelled(ctx, run.ID, by); err != nil {
			s.logger.Error("Failed to persist cancelled run",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
		s.bus.Publish(entity.RunEvent{
			Type:        entity.EventRunStatus,
			RunID:       run.ID,
			Status:      string(entity.RunCancelled),
			CancelledBy: by,
		})
		s.logger.Info("Run cancelled", zap.String("run_id", run.ID), zap.String("cancelled_by", by))
		return
	}

	if err := s.store.TransitionRunStatus(ctx, run.ID,
		[]entity.RunStatus{entity.RunRunning}, entity.RunCompleted); err != nil {
		s.logger.Error("Failed to complete run",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
		s.finishError(run.ID)
		return
	}
	s.bus.Publish(entity.RunEvent{
		Type:   entity.EventRunStatus,
		RunID:  run.ID,
		Status: string(entity.RunCompleted),
	})
	s.logger.Info("Run completed", zap.String("run_id", run.ID))
}

// finishError is the scheduler-fatal path: force the run to error and tell
// subscribers.
func (s *Scheduler) finishError(runID string) {
	if err := s.store.TransitionRunStatus(context.Background(), runID,
		[]entity.RunStatus{entity.RunRunning}, entity.RunError); err != nil {
		s.logger.Error("Failed to mark run as errored",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
	s.bus.Publish(entity.RunEvent{
		Type:   entity.EventRunStatus,
		RunID:  runID,
		Status: string(entity.RunError),
	})
}

// runWorker iterates the problem list in order for one candidate model.
// A per-problem failure is not fatal to the worker's queue; cancellation is.
func (s *Scheduler) runWorker(modelCtx context.Context, run *entity.Run, cand candidate, judgeCand candidate, problems []*entity.Problem) {
	logger := s.logger.With(
		zap.String("run_id", run.ID),
		zap.String("model_id", cand.model.ID),
	)

	for _, problem := range problems {
		if modelCtx.Err() != nil {
			logger.Info("Worker stopping, context cancelled")
			return
		}
		if !s.runProblem(modelCtx, run, cand, judgeCand, problem, logger) {
			return
		}
	}
}

// runProblem executes one (problem, model) cell. Returns false when the
// worker should stop iterating (cancellation).
func (s *Scheduler) runProblem(modelCtx context.Context, run *entity.Run, cand candidate, judgeCand candidate, problem *entity.Problem, logger *zap.Logger) bool {
	// Store writes use a detached context so cancelled work can still
	// persist its terminal state.
	storeCtx := context.Background()

	initialStatus := entity.ResultPending
	systemPrompt := textSystemPrompt
	if problem.Kind == entity.ProblemHTML {
		initialStatus = entity.ResultManual
		systemPrompt = htmlSystemPrompt
	}

	result := &entity.RunResult{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		ProblemID: problem.ID,
		ModelID:   cand.model.ID,
		Status:    initialStatus,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRunResult(storeCtx, result); err != nil {
		logger.Error("Failed to create run result",
			zap.String("problem_id", problem.ID),
			zap.Error(err),
		)
		return true
	}

	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: problem.Prompt},
	}

	output, err := s.retry.Do(modelCtx, logger, "candidate:"+cand.model.ModelID, func(attempt int) (string, error) {
		s.bus.Publish(entity.RunEvent{
			Type:      entity.EventModelStarted,
			RunID:     run.ID,
			ProblemID: problem.ID,
			ModelID:   cand.model.ID,
			ModelName: cand.model.Label,
			Attempt:   attempt,
			Streaming: run.Stream,
		})

		if run.Stream {
			s.bus.Publish(entity.RunEvent{
				Type:      entity.EventModelStreamingStarted,
				RunID:     run.ID,
				ProblemID: problem.ID,
				ModelID:   cand.model.ID,
				ModelName: cand.model.Label,
			})
			return s.invoker.Stream(modelCtx, cand.provider, cand.model, messages, func(delta string) {
				s.bus.Publish(entity.RunEvent{
					Type:      entity.EventCandidateToken,
					RunID:     run.ID,
					ProblemID: problem.ID,
					ModelID:   cand.model.ID,
					ModelName: cand.model.Label,
					Delta:     delta,
					Kind:      string(problem.Kind),
				})
			})
		}
		return s.invoker.Complete(modelCtx, cand.provider, cand.model, messages)
	})

	if err != nil {
		if modelCtx.Err() != nil {
			s.markCancelled(storeCtx, run, result.ID, problem.ID, cand.model, logger)
			return false
		}
		s.markError(storeCtx, run, result.ID, problem.ID, cand.model, err, logger)
		return true
	}

	// Non-streaming calls synthesize one token carrying the whole answer, so
	// subscribers see identical event shapes either way.
	if !run.Stream {
		s.bus.Publish(entity.RunEvent{
			Type:      entity.EventCandidateToken,
			RunID:     run.ID,
			ProblemID: problem.ID,
			ModelID:   cand.model.ID,
			ModelName: cand.model.Label,
			Delta:     output,
			Kind:      string(problem.Kind),
		})
	}

	if err := s.store.MarkResult(storeCtx, result.ID, repository.ResultPatch{Output: &output}); err != nil {
		logger.Error("Failed to write candidate output",
			zap.String("problem_id", problem.ID),
			zap.Error(err),
		)
	}

	if problem.Kind == entity.ProblemHTML {
		s.bus.Publish(entity.RunEvent{
			Type:      entity.EventHTMLCandidateDone,
			RunID:     run.ID,
			ProblemID: problem.ID,
			ModelID:   cand.model.ID,
			ModelName: cand.model.Label,
			HTML:      output,
		})
		// Stays in manual status until a human reviews it.
		return true
	}

	s.bus.Publish(entity.RunEvent{
		Type:      entity.EventCandidateDone,
		RunID:     run.ID,
		ProblemID: problem.ID,
		ModelID:   cand.model.ID,
		ModelName: cand.model.Label,
		Text:      output,
	})

	verdict, err := s.judge.Evaluate(modelCtx, judgeCand.provider, judgeCand.model, problem, output)
	if err != nil {
		if modelCtx.Err() != nil {
			s.markCancelled(storeCtx, run, result.ID, problem.ID, cand.model, logger)
			return false
		}
		s.markError(storeCtx, run, result.ID, problem.ID, cand.model, err, logger)
		return true
	}

	score := verdict.Score
	completed := entity.ResultCompleted
	judgedBy := run.JudgeModelID
	if err := s.store.MarkResult(storeCtx, result.ID, repository.ResultPatch{
		Score:          &score,
		Status:         &completed,
		JudgedBy:       &judgedBy,
		JudgeReasoning: &verdict.Reasoning,
	}); err != nil {
		logger.Error("Failed to write judge verdict",
			zap.String("problem_id", problem.ID),
			zap.Error(err),
		)
	}

	s.bus.Publish(entity.RunEvent{
		Type:      entity.EventJudgeDone,
		RunID:     run.ID,
		ProblemID: problem.ID,
		ModelID:   cand.model.ID,
		Verdict:   verdict.Label(),
		Reasoning: verdict.Reasoning,
		Score:     &score,
	})
	return true
}

func (s *Scheduler) markCancelled(ctx context.Context, run *entity.Run, resultID, problemID string, model *entity.Model, logger *zap.Logger) {
	now := time.Now().UTC()
	cancelled := entity.ResultCancelled
	if err := s.store.MarkResult(ctx, resultID, repository.ResultPatch{
		Status:      &cancelled,
		CancelledAt: &now,
	}); err != nil {
		logger.Error("Failed to mark result cancelled",
			zap.String("result_id", resultID),
			zap.Error(err),
		)
	}
	s.bus.Publish(entity.RunEvent{
		Type:      entity.EventModelCancelled,
		RunID:     run.ID,
		ProblemID: problemID,
		ModelID:   model.ID,
		ModelName: model.Label,
	})
}

func (s *Scheduler) markError(ctx context.Context, run *entity.Run, resultID, problemID string, model *entity.Model, cause error, logger *zap.Logger) {
	logger.Warn("Model call failed for problem",
		zap.String("problem_id", problemID),
		zap.Error(cause),
	)
	errStatus := entity.ResultError
	if err := s.store.MarkResult(ctx, resultID, repository.ResultPatch{Status: &errStatus}); err != nil {
		logger.Error("Failed to mark result errored",
			zap.String("result_id", resultID),
			zap.Error(err),
		)
	}
	s.bus.Publish(entity.RunEvent{
		Type:      entity.EventModelError,
		RunID:     run.ID,
		ProblemID: problemID,
		ModelID:   model.ID,
		ModelName: model.Label,
		Error:     cause.Error(),
		Streaming: run.Stream,
	})
}
