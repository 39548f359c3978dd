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

func (s *Store) CreateProvider(ctx context.Context, p *entity.Provider) error {
	return s.write(func(db *gorm.DB) error {
		if err := db.WithContext(ctx).Create(providerToModel(p)).Error; err != nil {
			return domainErrors.NewInternalError("failed to create provider: " + err.Error())
		}
		return nil
	})
}

func (s *Store) GetProvider(ctx context.Context, id string) (*entity.Provider, error) {
	var model models.ProviderModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("provider not found")
		}
		return nil, domainErrors.NewInternalError("failed to find provider: " + err.Error())
	}
	return providerToEntity(&model), nil
}

func (s *Store) ListProviders(ctx context.Context) ([]*entity.Provider, error) {
	var modelList []models.ProviderModel
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list providers: " + err.Error())
	}
	providers := make([]*entity.Provider, 0, len(modelList))
	for i := range modelList {
		providers = append(providers, providerToEntity(&modelList[i]))
	}
	return providers, nil
}

func (s *Store) UpdateProvider(ctx context.Context, p *entity.Provider) error {
	return s.write(func(db *gorm.DB) error {
		result := db.WithContext(ctx).Model(&models.ProviderModel{}).Where("id = ?", p.ID).Updates(map[string]any{
			"name":             p.Name,
			"kind":             string(p.Kind),
			"base_url":         p.BaseURL,
			"api_key":          p.APIKey,
			"default_model_id": p.DefaultModelID,
		})
		if result.Error != nil {
			return domainErrors.NewInternalError("failed to update provider: " + result.Error.Error())
		}
		if result.RowsAffected == 0 {
			return domainErrors.NewNotFoundError("provider not found")
		}
		return nil
	})
}

// TouchProviderChecked stamps last_checked after a successful connectivity probe.
func (s *Store) TouchProviderChecked(ctx context.Context, id string, at time.Time) error {
	return s.write(func(db *gorm.DB) error {
		result := db.WithContext(ctx).Model(&models.ProviderModel{}).Where("id = ?", id).Update("last_checked", at)
		if result.Error != nil {
			return domainErrors.NewInternalError("failed to update provider: " + result.Error.Error())
		}
		if result.RowsAffected == 0 {
			return domainErrors.NewNotFoundError("provider not found")
		}
		return nil
	})
}

// CascadeDeleteProvider removes a provider, its models, and every run (with
// results) referencing one of those models, in one transaction.
func (s *Store) CascadeDeleteProvider(ctx context.Context, id string) error {
	return s.cascadeTx(func(tx *gorm.DB) error {
		var modelIDs []string
		if err := tx.WithContext(ctx).Model(&models.ModelModel{}).Where("provider_id = ?", id).Pluck("id", &modelIDs).Error; err != nil {
			return domainErrors.NewInternalError("failed to list provider models: " + err.Error())
		}
		for _, mid := range modelIDs {
			if err := deleteRunsReferencingModel(ctx, tx, mid); err != nil {
				return err
			}
		}
		if len(modelIDs) > 0 {
			if err := tx.WithContext(ctx).Where("provider_id = ?", id).Delete(&models.ModelModel{}).Error; err != nil {
				return domainErrors.NewInternalError("failed to delete provider models: " + err.Error())
			}
		}
		result := tx.WithContext(ctx).Delete(&models.ProviderModel{}, "id = ?", id)
		if result.Error != nil {
			return domainErrors.NewInternalError("failed to delete provider: " + result.Error.Error())
		}
		if result.RowsAffected == 0 {
			return domainErrors.NewNotFoundError("provider not found")
		}
		return nil
	})
}

func providerToModel(p *entity.Provider) *models.ProviderModel {
	return &models.ProviderModel{
		ID:             p.ID,
		Name:           p.Name,
		Kind:           string(p.Kind),
		BaseURL:        p.BaseURL,
		APIKey:         p.APIKey,
		DefaultModelID: p.DefaultModelID,
		CreatedAt:      p.CreatedAt,
		LastChecked:    p.LastCheckedAt,
	}
}

func providerToEntity(m *models.ProviderModel) *entity.Provider {
	return &entity.Provider{
		ID:             m.ID,
		Name:           m.Name,
		Kind:           entity.AdapterKind(m.Kind),
		BaseURL:        m.BaseURL,
		APIKey:         m.APIKey,
		DefaultModelID: m.DefaultModelID,
		CreatedAt:      m.CreatedAt,
		LastCheckedAt:  m.LastChecked,
	}
}

func paramsToJSON(p entity.ModelParams) string {
	if len(p) == 0 {
		return ""
	}
	data, _ := json.Marshal(p)
	return string(data)
}

func paramsFromJSON(raw string) entity.ModelParams {
	if raw == "" {
		return nil
	}
	var p entity.ModelParams
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil
	}
	return p
}
