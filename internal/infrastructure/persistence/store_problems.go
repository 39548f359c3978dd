package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence/models"
	domainErrors "github.com/evalgate/evalgate/pkg/errors"
)

func (s *Store) CreateProblemSet(ctx context.Context, ps *entity.ProblemSet) error {
	return s.write(func(db *gorm.DB) error {
		model := &models.ProblemSetModel{
			ID:          ps.ID,
			Name:        ps.Name,
			Description: ps.Description,
			CreatedAt:   ps.CreatedAt,
		}
		if err := db.WithContext(ctx).Create(model).Error; err != nil {
			return domainErrors.NewInternalError("failed to create problem set: " + err.Error())
		}
		return nil
	})
}

func (s *Store) GetProblemSet(ctx context.Context, id string) (*entity.ProblemSet, error) {
	var model models.ProblemSetModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("problem set not found")
		}
		return nil, domainErrors.NewInternalError("failed to find problem set: " + err.Error())
	}
	return problemSetToEntity(&model), nil
}

func (s *Store) ListProblemSets(ctx context.Context) ([]*entity.ProblemSet, error) {
	var modelList []models.ProblemSetModel
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list problem sets: " + err.Error())
	}
	sets := make([]*entity.ProblemSet, 0, len(modelList))
	for i := range modelList {
		sets = append(sets, problemSetToEntity(&modelList[i]))
	}
	return sets, nil
}

// CascadeDeleteProblemSet deletes the set, its problems, any runs that
// reference it, and all results of those runs, transactionally.
func (s *Store) CascadeDeleteProblemSet(ctx context.Context, id string) error {
	return s.cascadeTx(func(tx *gorm.DB) error {
		var runIDs []string
		if err := tx.WithContext(ctx).Model(&models.RunModel{}).Where("problem_set_id = ?", id).Pluck("id", &runIDs).Error; err != nil {
			return domainErrors.NewInternalError("failed to list referencing runs: " + err.Error())
		}
		if len(runIDs) > 0 {
			if err := tx.WithContext(ctx).Where("run_id IN ?", runIDs).Delete(&models.RunResultModel{}).Error; err != nil {
				return domainErrors.NewInternalError("failed to delete run results: " + err.Error())
			}
			if err := tx.WithContext(ctx).Where("id IN ?", runIDs).Delete(&models.RunModel{}).Error; err != nil {
				return domainErrors.NewInternalError("failed to delete runs: " + err.Error())
			}
		}
		if err := tx.WithContext(ctx).Where("problem_set_id = ?", id).Delete(&models.ProblemModel{}).Error; err != nil {
			return domainErrors.NewInternalError("failed to delete problems: " + err.Error())
		}
		result := tx.WithContext(ctx).Delete(&models.ProblemSetModel{}, "id = ?", id)
		if result.Error != nil {
			return domainErrors.NewInternalError("failed to delete problem set: " + result.Error.Error())
		}
		if result.RowsAffected == 0 {
			return domainErrors.NewNotFoundError("problem set not found")
		}
		return nil
	})
}

func (s *Store) CreateProblem(ctx context.Context, p *entity.Problem) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ProblemSetModel{}).Where("id = ?", p.ProblemSetID).Count(&count).Error; err != nil {
		return domainErrors.NewInternalError("failed to check problem set: " + err.Error())
	}
	if count == 0 {
		return domainErrors.NewInvalidInputError("problem set not found: " + p.ProblemSetID)
	}
	return s.write(func(db *gorm.DB) error {
		if err := db.WithContext(ctx).Create(problemToModel(p)).Error; err != nil {
			return domainErrors.NewInternalError("failed to create problem: " + err.Error())
		}
		return nil
	})
}

func (s *Store) GetProblem(ctx context.Context, id string) (*entity.Problem, error) {
	var model models.ProblemModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("problem not found")
		}
		return nil, domainErrors.NewInternalError("failed to find problem: " + err.Error())
	}
	return problemToEntity(&model), nil
}

// ListProblems returns the problems of a set in ascending created-at order.
func (s *Store) ListProblems(ctx context.Context, problemSetID string) ([]*entity.Problem, error) {
	var modelList []models.ProblemModel
	err := s.db.WithContext(ctx).
		Where("problem_set_id = ?", problemSetID).
		Order("created_at asc").
		Find(&modelList).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to list problems: " + err.Error())
	}
	problems := make([]*entity.Problem, 0, len(modelList))
	for i := range modelList {
		problems = append(problems, problemToEntity(&modelList[i]))
	}
	return problems, nil
}

func (s *Store) DeleteProblem(ctx context.Context, id string) error {
	return s.write(func(db *gorm.DB) error {
		result := db.WithContext(ctx).Delete(&models.ProblemModel{}, "id = ?", id)
		if result.Error != nil {
			return domainErrors.NewInternalError("failed to delete problem: " + result.Error.Error())
		}
		if result.RowsAffected == 0 {
			return domainErrors.NewNotFoundError("problem not found")
		}
		return nil
	})
}

func problemSetToEntity(m *models.ProblemSetModel) *entity.ProblemSet {
	return &entity.ProblemSet{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func problemToModel(p *entity.Problem) *models.ProblemModel {
	return &models.ProblemModel{
		ID:             p.ID,
		ProblemSetID:   p.ProblemSetID,
		Kind:           string(p.Kind),
		Prompt:         p.Prompt,
		ExpectedAnswer: p.ExpectedAnswer,
		HTMLAssets:     p.HTMLAssets,
		ScoringHints:   p.ScoringHints,
		CreatedAt:      p.CreatedAt,
	}
}

func problemToEntity(m *models.ProblemModel) *entity.Problem {
	return &entity.Problem{
		ID:             m.ID,
		ProblemSetID:   m.ProblemSetID,
		Kind:           entity.ProblemKind(m.Kind),
		Prompt:         m.Prompt,
		ExpectedAnswer: m.ExpectedAnswer,
		HTMLAssets:     m.HTMLAssets,
		ScoringHints:   m.ScoringHints,
		CreatedAt:      m.CreatedAt,
	}
}
