package repository

import (
	"context"
	"time"

	"github.com/evalgate/evalgate/internal/domain/entity"
)

// ResultPatch is a partial update of a RunResult. Nil fields are left
// untouched.
type ResultPatch struct {
	Output         *string
	Score          *int
	Status         *entity.ResultStatus
	JudgedBy       *string
	JudgeReasoning *string
	CancelledAt    *time.Time
}

// EngineStore is the store surface the run execution engine depends on.
// The persistence package provides the GORM-backed implementation; tests may
// use the same implementation over an in-memory SQLite file.
type EngineStore interface {
	GetRun(ctx context.Context, id string) (*entity.Run, error)
	GetProblemSet(ctx context.Context, id string) (*entity.ProblemSet, error)
	// ListProblems returns the problems of a set in ascending created-at
	// order; this order is authoritative for scheduling.
	ListProblems(ctx context.Context, problemSetID string) ([]*entity.Problem, error)
	GetModel(ctx context.Context, id string) (*entity.Model, error)
	// ModelProvider resolves a model to its provider row.
	ModelProvider(ctx context.Context, modelID string) (*entity.Model, *entity.Provider, error)

	// TransitionRunStatus moves a run to status `to` iff its current status
	// is in `from`; otherwise it fails with an invalid-input error and
	// leaves state unchanged.
	TransitionRunStatus(ctx context.Context, id string, from []entity.RunStatus, to entity.RunStatus) error
	// FinishRunCancelled transitions a run to cancelled and stamps
	// cancelled_at / cancelled_by.
	FinishRunCancelled(ctx context.Context, id, cancelledBy string) error

	CreateRunResult(ctx context.Context, result *entity.RunResult) error
	MarkResult(ctx context.Context, id string, patch ResultPatch) error
}
