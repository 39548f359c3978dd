package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence/models"
	domainErrors "github.com/evalgate/evalgate/pkg/errors"
)

// RunFilter narrows ListRuns. Zero values mean "no filter"; Limit is clamped
// to [1,200] with a default of 50.
type RunFilter struct {
	Status       entity.RunStatus
	ProblemSetID string
	Limit        int
}

// CreateRun validates references and inserts the run in queued status.
// A run's judge model must resolve to an existing model at creation time.
func (s *Store) CreateRun(ctx context.Context, run *entity.Run) error {
	if len(run.ModelIDs) == 0 {
		return domainErrors.NewInvalidInputError("model_ids must not be empty")
	}
	if run.JudgeModelID == "" {
		return domainErrors.NewInvalidInputError("judge_model_id is required")
	}
	if _, err := s.GetProblemSet(ctx, run.ProblemSetID); err != nil {
		if domainErrors.IsNotFound(err) {
			return domainErrors.NewInvalidInputError("problem set not found: " + run.ProblemSetID)
		}
		return err
	}
	if _, err := s.GetModel(ctx, run.JudgeModelID); err != nil {
		if domainErrors.IsNotFound(err) {
			return domainErrors.NewInvalidInputError("judge model not found: " + run.JudgeModelID)
		}
		return err
	}

	return s.write(func(db *gorm.DB) error {
		if err := db.WithContext(ctx).Create(runToModel(run)).Error; err != nil {
			return domainErrors.NewInternalError("failed to create run: " + err.Error())
		}
		return nil
	})
}

func (s *Store) GetRun(ctx context.Context, id string) (*entity.Run, error) {
	var model models.RunModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("run not found")
		}
		return nil, domainErrors.NewInternalError("failed to find run: " + err.Error())
	}
	return runToEntity(&model), nil
}

// ListRuns returns recent runs sorted by created-at descending.
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]*entity.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	q := s.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.ProblemSetID != "" {
		q = q.Where("problem_set_id = ?", filter.ProblemSetID)
	}

	var modelList []models.RunModel
	if err := q.Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list runs: " + err.Error())
	}
	runs := make([]*entity.Run, 0, len(modelList))
	for i := range modelList {
		runs = append(runs, runToEntity(&modelList[i]))
	}
	return runs, nil
}

// TransitionRunStatus moves a run to `to` iff its current status is in
// `from`. The read and the write share one transaction so a concurrent
// transition cannot slip between them.
func (s *Store) TransitionRunStatus(ctx context.Context, id string, from []entity.RunStatus, to entity.RunStatus) error {
	return s.writeTx(func(tx *gorm.DB) error {
		var model models.RunModel
		if err := tx.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErrors.NewNotFoundError("run not found")
			}
			return domainErrors.NewInternalError("failed to find run: " + err.Error())
		}

		allowed := false
		for _, st := range from {
			if model.Status == string(st) {
				allowed = true
				break
			}
		}
		if !allowed {
			return domainErrors.NewInvalidInputError(
				"run " + id + " is " + model.Status + ", cannot transition to " + string(to))
		}

		if err := tx.WithContext(ctx).Model(&models.RunModel{}).Where("id = ?", id).Update("status", string(to)).Error; err != nil {
			return domainErrors.NewInternalError("failed to update run status: " + err.Error())
		}
		return nil
	})
}

// FinishRunCancelled transitions a run to cancelled and stamps who cancelled
// it and when.
func (s *Store) FinishRunCancelled(ctx context.Context, id, cancelledBy string) error {
	return s.writeTx(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Model(&models.RunModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":       string(entity.RunCancelled),
			"cancelled_at": time.Now().UTC(),
			"cancelled_by": cancelledBy,
		})
		if result.Error != nil {
			return domainErrors.NewInternalError("failed to cancel run: " + result.Error.Error())
		}
		if result.RowsAffected == 0 {
			return domainErrors.NewNotFoundError("run not found")
		}
		return nil
	})
}

func runToModel(r *entity.Run) *models.RunModel {
	ids, _ := json.Marshal(r.ModelIDs)
	return &models.RunModel{
		ID:           r.ID,
		Name:         r.Name,
		ProblemSetID: r.ProblemSetID,
		ModelIDs:     string(ids),
		JudgeModelID: r.JudgeModelID,
		Status:       string(r.Status),
		Stream:       r.Stream,
		CreatedAt:    r.CreatedAt,
		CancelledAt:  r.CancelledAt,
		CancelledBy:  r.CancelledBy,
	}
}

func runToEntity(m *models.RunModel) *entity.Run {
	var ids []string
	if m.ModelIDs != "" {
		_ = json.Unmarshal([]byte(m.ModelIDs), &ids)
	}
	return &entity.Run{
		ID:           m.ID,
		Name:         m.Name,
		ProblemSetID: m.ProblemSetID,
		ModelIDs:     ids,
		JudgeModelID: m.JudgeModelID,
		Status:       entity.RunStatus(m.Status),
		Stream:       m.Stream,
		CreatedAt:    m.CreatedAt,
		CancelledAt:  m.CancelledAt,
		CancelledBy:  m.CancelledBy,
	}
}
