package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/infrastructure/llm"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence"
)

// File is the YAML shape of a seed bundle: providers, their models, and
// problem sets. Models reference providers by name; re-importing a file
// matches existing rows by name instead of duplicating them.
type File struct {
	Providers   []ProviderSpec   `yaml:"providers"`
	Models      []ModelSpec      `yaml:"models"`
	ProblemSets []ProblemSetSpec `yaml:"problem_sets"`
}

type ProviderSpec struct {
	Name           string `yaml:"name"`
	Kind           string `yaml:"kind"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	DefaultModelID string `yaml:"default_model_id"`
}

type ModelSpec struct {
	Provider string                         `yaml:"provider"` // provider name
	Label    string                         `yaml:"label"`
	ModelID  string                         `yaml:"model_id"`
	Params   map[string]entity.ParamSetting `yaml:"params"`
}

type ProblemSetSpec struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Problems    []ProblemSpec `yaml:"problems"`
}

type ProblemSpec struct {
	Kind           string `yaml:"kind"`
	Prompt         string `yaml:"prompt"`
	ExpectedAnswer string `yaml:"expected_answer"`
	HTMLAssets     string `yaml:"html_assets"`
	ScoringHints   string `yaml:"scoring_hints"`
}

// Seeder imports a seed bundle into the store.
type Seeder struct {
	store  *persistence.Store
	logger *zap.Logger
}

func NewSeeder(store *persistence.Store, logger *zap.Logger) *Seeder {
	return &Seeder{store: store, logger: logger.With(zap.String("component", "seed"))}
}

// Import reads a YAML seed file and creates the rows it describes.
// Providers and problem sets already present (by name) are reused.
func (s *Seeder) Import(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	providerIDs, err := s.importProviders(ctx, file.Providers)
	if err != nil {
		return err
	}
	if err := s.importModels(ctx, file.Models, providerIDs); err != nil {
		return err
	}
	if err := s.importProblemSets(ctx, file.ProblemSets); err != nil {
		return err
	}

	s.logger.Info("Seed import complete",
		zap.Int("providers", len(file.Providers)),
		zap.Int("models", len(file.Models)),
		zap.Int("problem_sets", len(file.ProblemSets)),
	)
	return nil
}

func (s *Seeder) importProviders(ctx context.Context, specs []ProviderSpec) (map[string]string, error) {
	existing, err := s.store.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(existing))
	for _, p := range existing {
		byName[p.Name] = p.ID
	}

	for _, spec := range specs {
		if id, ok := byName[spec.Name]; ok {
			s.logger.Info("Provider already exists, skipping",
				zap.String("name", spec.Name),
				zap.String("provider_id", id),
			)
			continue
		}

		kind, ok := llm.NormalizeKind(spec.Kind)
		if !ok {
			return nil, fmt.Errorf("provider %q: unknown adapter kind %q", spec.Name, spec.Kind)
		}

		provider := &entity.Provider{
			ID:             uuid.NewString(),
			Name:           spec.Name,
			Kind:           kind,
			BaseURL:        llm.NormalizeBaseURL(spec.BaseURL),
			APIKey:         spec.APIKey,
			DefaultModelID: spec.DefaultModelID,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.store.CreateProvider(ctx, provider); err != nil {
			return nil, fmt.Errorf("create provider %q: %w", spec.Name, err)
		}
		byName[spec.Name] = provider.ID
	}
	return byName, nil
}

func (s *Seeder) importModels(ctx context.Context, specs []ModelSpec, providerIDs map[string]string) error {
	for _, spec := range specs {
		providerID, ok := providerIDs[spec.Provider]
		if !ok {
			return fmt.Errorf("model %q references unknown provider %q", spec.Label, spec.Provider)
		}

		siblings, err := s.store.ListModels(ctx, providerID)
		if err != nil {
			return err
		}
		exists := false
		for _, m := range siblings {
			if m.Label == spec.Label {
				exists = true
				break
			}
		}
		if exists {
			s.logger.Info("Model already exists, skipping", zap.String("label", spec.Label))
			continue
		}

		model := &entity.Model{
			ID:         uuid.NewString(),
			ProviderID: providerID,
			Label:      spec.Label,
			ModelID:    spec.ModelID,
			Params:     spec.Params,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.store.CreateModel(ctx, model); err != nil {
			return fmt.Errorf("create model %q: %w", spec.Label, err)
		}
	}
	return nil
}

func (s *Seeder) importProblemSets(ctx context.Context, specs []ProblemSetSpec) error {
	existing, err := s.store.ListProblemSets(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]bool, len(existing))
	for _, ps := range existing {
		byName[ps.Name] = true
	}

	for _, spec := range specs {
		if byName[spec.Name] {
			s.logger.Info("Problem set already exists, skipping", zap.String("name", spec.Name))
			continue
		}

		set := &entity.ProblemSet{
			ID:          uuid.NewString(),
			Name:        spec.Name,
			Description: spec.Description,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.store.CreateProblemSet(ctx, set); err != nil {
			return fmt.Errorf("create problem set %q: %w", spec.Name, err)
		}

		for i, p := range spec.Problems {
			kind := entity.ProblemKind(p.Kind)
			if kind != entity.ProblemText && kind != entity.ProblemHTML {
				return fmt.Errorf("problem set %q: problem %d has unknown kind %q", spec.Name, i, p.Kind)
			}

			problem := &entity.Problem{
				ID:             uuid.NewString(),
				ProblemSetID:   set.ID,
				Kind:           kind,
				Prompt:         p.Prompt,
				ExpectedAnswer: p.ExpectedAnswer,
				HTMLAssets:     p.HTMLAssets,
				ScoringHints:   p.ScoringHints,
				// Spacing the timestamps keeps the authoritative
				// created-at ordering identical to file order.
				CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
			}
			if err := s.store.CreateProblem(ctx, problem); err != nil {
				return fmt.Errorf("create problem %d of set %q: %w", i, spec.Name, err)
			}
		}
	}
	return nil
}
