package models

import "time"

// GORM row models for the embedded store. Entity conversion lives with the
// Store methods; list- and map-valued fields (candidate model ids, parameter
// settings) are stored as JSON text columns.

type ProviderModel struct {
	ID             string `gorm:"primaryKey"`
	Name           string
	Kind           string
	BaseURL        string
	APIKey         string
	DefaultModelID string
	CreatedAt      time.Time
	LastChecked    *time.Time `gorm:"column:last_checked"`
}

func (ProviderModel) TableName() string { return "providers" }

type ModelModel struct {
	ID         string `gorm:"primaryKey"`
	ProviderID string `gorm:"index"`
	Label      string
	ModelID    string
	Params     string // JSON: map[name]{enabled,value}
	CreatedAt  time.Time
}

func (ModelModel) TableName() string { return "models" }

type ProblemSetModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Description string
	CreatedAt   time.Time
}

func (ProblemSetModel) TableName() string { return "problem_sets" }

type ProblemModel struct {
	ID             string `gorm:"primaryKey"`
	ProblemSetID   string `gorm:"index"`
	Kind           string
	Prompt         string
	ExpectedAnswer string
	HTMLAssets     string `gorm:"column:html_assets"`
	ScoringHints   string
	CreatedAt      time.Time
}

func (ProblemModel) TableName() string { return "problems" }

type RunModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	ProblemSetID string `gorm:"index"`
	ModelIDs     string `gorm:"column:model_ids"` // JSON: []string, order preserved
	JudgeModelID string
	Status       string `gorm:"index"`
	Stream       bool   `gorm:"column:stream"`
	CreatedAt    time.Time
	CancelledAt  *time.Time
	CancelledBy  string
}

func (RunModel) TableName() string { return "runs" }

type RunResultModel struct {
	ID             string `gorm:"primaryKey"`
	RunID          string `gorm:"index"`
	ProblemID      string `gorm:"index"`
	ModelID        string
	Output         string
	Score          *int
	Status         string
	JudgedBy       string
	JudgeReasoning string
	CreatedAt      time.Time
	CancelledAt    *time.Time
}

func (RunResultModel) TableName() string { return "run_results" }
