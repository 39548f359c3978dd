package entity

import "time"

// ProblemKind distinguishes judge-scored text problems from manually reviewed
// HTML problems.
type ProblemKind string

const (
	ProblemText ProblemKind = "text"
	ProblemHTML ProblemKind = "html"
)

// ProblemSet groups problems that are benchmarked together.
type ProblemSet struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Problem is a single task dispatched to every candidate model of a run.
// Problems within a set have a stable chronological order by CreatedAt
// ascending; that order is observable to clients and authoritative for
// scheduling.
type Problem struct {
	ID             string
	ProblemSetID   string
	Kind           ProblemKind
	Prompt         string
	ExpectedAnswer string // text problems only
	HTMLAssets     string // html problems only, optional asset bundle
	ScoringHints   string
	CreatedAt      time.Time
}
