package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/domain/repository"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence/models"
	domainErrors "github.com/evalgate/evalgate/pkg/errors"
)

// ResultWithProblem is a RunResult joined with its problem's kind and prompt,
// the shape the results listing endpoint returns.
type ResultWithProblem struct {
	entity.RunResult
	ProblemKind   entity.ProblemKind
	ProblemPrompt string
}

func (s *Store) CreateRunResult(ctx context.Context, result *entity.RunResult) error {
	return s.write(func(db *gorm.DB) error {
		if err := db.WithContext(ctx).Create(resultToModel(result)).Error; err != nil {
			return domainErrors.NewInternalError("failed to create run result: " + err.Error())
		}
		return nil
	})
}

func (s *Store) GetRunResult(ctx context.Context, id string) (*entity.RunResult, error) {
	var model models.RunResultModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("run result not found")
		}
		return nil, domainErrors.NewInternalError("failed to find run result: " + err.Error())
	}
	return resultToEntity(&model), nil
}

// MarkResult applies a partial update; nil patch fields leave columns
// untouched.
func (s *Store) MarkResult(ctx context.Context, id string, patch repository.ResultPatch) error {
	updates := map[string]any{}
	if patch.Output != nil {
		updates["output"] = *patch.Output
	}
	if patch.Score != nil {
		updates["score"] = *patch.Score
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.JudgedBy != nil {
		updates["judged_by"] = *patch.JudgedBy
	}
	if patch.JudgeReasoning != nil {
		updates["judge_reasoning"] = *patch.JudgeReasoning
	}
	if patch.CancelledAt != nil {
		updates["cancelled_at"] = *patch.CancelledAt
	}
	if len(updates) == 0 {
		return nil
	}

	return s.write(func(db *gorm.DB) error {
		result := db.WithContext(ctx).Model(&models.RunResultModel{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return domainErrors.NewInternalError("failed to update run result: " + result.Error.Error())
		}
		if result.RowsAffected == 0 {
			return domainErrors.NewNotFoundError("run result not found")
		}
		return nil
	})
}

// ListRunResults returns all results of a run joined with problem kind and
// prompt, in insertion order.
func (s *Store) ListRunResults(ctx context.Context, runID string) ([]*ResultWithProblem, error) {
	type row struct {
		models.RunResultModel
		ProblemKind   string
		ProblemPrompt string
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("run_results").
		Select("run_results.*, problems.kind AS problem_kind, problems.prompt AS problem_prompt").
		Joins("LEFT JOIN problems ON problems.id = run_results.problem_id").
		Where("run_results.run_id = ?", runID).
		Order("run_results.created_at asc").
		Scan(&rows).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to list run results: " + err.Error())
	}

	results := make([]*ResultWithProblem, 0, len(rows))
	for i := range rows {
		results = append(results, &ResultWithProblem{
			RunResult:     *resultToEntity(&rows[i].RunResultModel),
			ProblemKind:   entity.ProblemKind(rows[i].ProblemKind),
			ProblemPrompt: rows[i].ProblemPrompt,
		})
	}
	return results, nil
}

func resultToModel(r *entity.RunResult) *models.RunResultModel {
	return &models.RunResultModel{
		ID:             r.ID,
		RunID:          r.RunID,
		ProblemID:      r.ProblemID,
		ModelID:        r.ModelID,
		Output:         r.Output,
		Score:          r.Score,
		Status:         string(r.Status),
		JudgedBy:       r.JudgedBy,
		JudgeReasoning: r.JudgeReasoning,
		CreatedAt:      r.CreatedAt,
		CancelledAt:    r.CancelledAt,
	}
}

func resultToEntity(m *models.RunResultModel) *entity.RunResult {
	return &entity.RunResult{
		ID:             m.ID,
		RunID:          m.RunID,
		ProblemID:      m.ProblemID,
		ModelID:        m.ModelID,
		Output:         m.Output,
		Score:          m.Score,
		Status:         entity.ResultStatus(m.Status),
		JudgedBy:       m.JudgedBy,
		JudgeReasoning: m.JudgeReasoning,
		CreatedAt:      m.CreatedAt,
		CancelledAt:    m.CancelledAt,
	}
}
