package entity

import "time"

// RunStatus is the lifecycle state of a Run.
// Runs move queued → running → {completed | cancelled | error}; no state
// ever reverts. An errored run may be re-executed, which is the one case
// where a terminal-looking state accepts a transition (error → running).
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunError     RunStatus = "error"
)

// ResultStatus is the lifecycle state of a RunResult.
// Text problems start pending and end via the judge; html problems start
// manual and end via human review. Cancellation and upstream failure are
// terminal for both.
type ResultStatus string

const (
	ResultPending   ResultStatus = "pending"
	ResultManual    ResultStatus = "manual"
	ResultCompleted ResultStatus = "completed"
	ResultCancelled ResultStatus = "cancelled"
	ResultError     ResultStatus = "error"
)

// JudgedByHuman marks results scored through manual review rather than a
// judge model.
const JudgedByHuman = "human"

// PassThreshold is the score at or above which a result counts as a pass
// (half of the 0–100 scale).
const PassThreshold = 50

// Run is one execution of a problem set against a set of candidate models
// under a designated judge model.
type Run struct {
	ID           string
	Name         string
	ProblemSetID string
	ModelIDs     []string // candidate models, order preserved
	JudgeModelID string
	Status       RunStatus
	Stream       bool
	CreatedAt    time.Time
	CancelledAt  *time.Time
	CancelledBy  string
}

// RunResult is the persisted outcome of one (run, problem, candidate model)
// triple. Score is non-nil iff Status is completed.
type RunResult struct {
	ID             string
	RunID          string
	ProblemID      string
	ModelID        string
	Output         string
	Score          *int
	Status         ResultStatus
	JudgedBy       string // judge model id, or "human" for manual review
	JudgeReasoning string
	CreatedAt      time.Time
	CancelledAt    *time.Time
}

// Passed reports whether a completed result meets the pass threshold.
func (r *RunResult) Passed() bool {
	return r.Status == ResultCompleted && r.Score != nil && *r.Score >= PassThreshold
}
