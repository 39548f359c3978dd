package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence/models"
	domainErrors "github.com/evalgate/evalgate/pkg/errors"
)

func (s *Store) CreateModel(ctx context.Context, m *entity.Model) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ProviderModel{}).Where("id = ?", m.ProviderID).Count(&count).Error; err != nil {
		return domainErrors.NewInternalError("failed to check provider: " + err.Error())
	}
	if count == 0 {
		return domainErrors.NewInvalidInputError("provider not found: " + m.ProviderID)
	}
	return s.write(func(db *gorm.DB) error {
		if err := db.WithContext(ctx).Create(modelToModel(m)).Error; err != nil {
			return domainErrors.NewInternalError("failed to create model: " + err.Error())
		}
		return nil
	})
}

func (s *Store) GetModel(ctx context.Context, id string) (*entity.Model, error) {
	var model models.ModelModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("model not found")
		}
		return nil, domainErrors.NewInternalError("failed to find model: " + err.Error())
	}
	return modelToEntity(&model), nil
}

func (s *Store) ListModels(ctx context.Context, providerID string) ([]*entity.Model, error) {
	q := s.db.WithContext(ctx).Order("created_at asc")
	if providerID != "" {
		q = q.Where("provider_id = ?", providerID)
	}
	var modelList []models.ModelModel
	if err := q.Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list models: " + err.Error())
	}
	result := make([]*entity.Model, 0, len(modelList))
	for i := range modelList {
		result = append(result, modelToEntity(&modelList[i]))
	}
	return result, nil
}

func (s *Store) UpdateModel(ctx context.Context, m *entity.Model) error {
	return s.write(func(db *gorm.DB) error {
		result := db.WithContext(ctx).Model(&models.ModelModel{}).Where("id = ?", m.ID).Updates(map[string]any{
			"label":    m.Label,
			"model_id": m.ModelID,
			"params":   paramsToJSON(m.Params),
		})
		if result.Error != nil {
			return domainErrors.NewInternalError("failed to update model: " + result.Error.Error())
		}
		if result.RowsAffected == 0 {
			return domainErrors.NewNotFoundError("model not found")
		}
		return nil
	})
}

// DeleteModel removes a model. Deletion is refused while any run references
// the model as candidate or judge, unless cascade is set, in which case the
// referencing runs and their results are deleted first.
func (s *Store) DeleteModel(ctx context.Context, id string, cascade bool) error {
	refs, err := s.countRunsReferencingModel(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 && !cascade {
		return domainErrors.NewConflictError("model is referenced by existing runs; delete with cascade to remove them")
	}

	return s.cascadeTx(func(tx *gorm.DB) error {
		if refs > 0 {
			if err := deleteRunsReferencingModel(ctx, tx, id); err != nil {
				return err
			}
		}
		result := tx.WithContext(ctx).Delete(&models.ModelModel{}, "id = ?", id)
		if result.Error != nil {
			return domainErrors.NewInternalError("failed to delete model: " + result.Error.Error())
		}
		if result.RowsAffected == 0 {
			return domainErrors.NewNotFoundError("model not found")
		}
		return nil
	})
}

// ModelProvider resolves a model row to its provider row.
func (s *Store) ModelProvider(ctx context.Context, modelID string) (*entity.Model, *entity.Provider, error) {
	model, err := s.GetModel(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	provider, err := s.GetProvider(ctx, model.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	return model, provider, nil
}

// Candidate lists are JSON arrays, so a reference check matches the quoted id
// inside runs.model_ids in addition to the judge column.
func (s *Store) countRunsReferencingModel(ctx context.Context, id string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RunModel{}).
		Where("judge_model_id = ? OR model_ids LIKE ?", id, `%"`+id+`"%`).
		Count(&count).Error
	if err != nil {
		return 0, domainErrors.NewInternalError("failed to count model references: " + err.Error())
	}
	return count, nil
}

func deleteRunsReferencingModel(ctx context.Context, tx *gorm.DB, id string) error {
	var runIDs []string
	err := tx.WithContext(ctx).Model(&models.RunModel{}).
		Where("judge_model_id = ? OR model_ids LIKE ?", id, `%"`+id+`"%`).
		Pluck("id", &runIDs).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to list referencing runs: " + err.Error())
	}
	if len(runIDs) == 0 {
		return nil
	}
	if err := tx.WithContext(ctx).Where("run_id IN ?", runIDs).Delete(&models.RunResultModel{}).Error; err != nil {
		return domainErrors.NewInternalError("failed to delete run results: " + err.Error())
	}
	if err := tx.WithContext(ctx).Where("id IN ?", runIDs).Delete(&models.RunModel{}).Error; err != nil {
		return domainErrors.NewInternalError("failed to delete runs: " + err.Error())
	}
	return nil
}

func modelToModel(m *entity.Model) *models.ModelModel {
	return &models.ModelModel{
		ID:         m.ID,
		ProviderID: m.ProviderID,
		Label:      m.Label,
		ModelID:    m.ModelID,
		Params:     paramsToJSON(m.Params),
		CreatedAt:  m.CreatedAt,
	}
}

func modelToEntity(m *models.ModelModel) *entity.Model {
	return &entity.Model{
		ID:         m.ID,
		ProviderID: m.ProviderID,
		Label:      m.Label,
		ModelID:    m.ModelID,
		Params:     paramsFromJSON(m.Params),
		CreatedAt:  m.CreatedAt,
	}
}
