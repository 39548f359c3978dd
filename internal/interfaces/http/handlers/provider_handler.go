package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/infrastructure/llm"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence"
)

// ProviderHandler serves provider CRUD and the connectivity probe.
type ProviderHandler struct {
	store  *persistence.Store
	logger *zap.Logger
}

func NewProviderHandler(store *persistence.Store, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{store: store, logger: logger}
}

type providerRequest struct {
	Name           string `json:"name" binding:"required"`
	Kind           string `json:"kind" binding:"required"`
	BaseURL        string `json:"base_url" binding:"required"`
	APIKey         string `json:"api_key"`
	DefaultModelID string `json:"default_model_id"`
}

// providerJSON is the wire shape of a provider. The credential itself is
// write-only; responses only reveal whether one is set.
type providerJSON struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Kind           string     `json:"kind"`
	BaseURL        string     `json:"base_url"`
	HasAPIKey      bool       `json:"has_api_key"`
	DefaultModelID string     `json:"default_model_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty"`
}

func toProviderJSON(p *entity.Provider) providerJSON {
	return providerJSON{
		ID:             p.ID,
		Name:           p.Name,
		Kind:           string(p.Kind),
		BaseURL:        p.BaseURL,
		HasAPIKey:      p.APIKey != "",
		DefaultModelID: p.DefaultModelID,
		CreatedAt:      p.CreatedAt,
		LastCheckedAt:  p.LastCheckedAt,
	}
}

func (h *ProviderHandler) Create(c *gin.Context) {
	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind, ok := llm.NormalizeKind(req.Kind)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown adapter kind %q", req.Kind)})
		return
	}

	provider := &entity.Provider{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Kind:           kind,
		BaseURL:        llm.NormalizeBaseURL(req.BaseURL),
		APIKey:         req.APIKey,
		DefaultModelID: req.DefaultModelID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.CreateProvider(c.Request.Context(), provider); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Provider created",
		zap.String("provider_id", provider.ID),
		zap.String("kind", string(kind)),
	)
	c.JSON(http.StatusCreated, toProviderJSON(provider))
}

func (h *ProviderHandler) List(c *gin.Context) {
	providers, err := h.store.ListProviders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]providerJSON, 0, len(providers))
	for _, p := range providers {
		out = append(out, toProviderJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func (h *ProviderHandler) Get(c *gin.Context) {
	provider, err := h.store.GetProvider(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProviderJSON(provider))
}

func (h *ProviderHandler) Update(c *gin.Context) {
	provider, err := h.store.GetProvider(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind, ok := llm.NormalizeKind(req.Kind)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown adapter kind %q", req.Kind)})
		return
	}

	provider.Name = req.Name
	provider.Kind = kind
	provider.BaseURL = llm.NormalizeBaseURL(req.BaseURL)
	provider.DefaultModelID = req.DefaultModelID
	if req.APIKey != "" {
		provider.APIKey = req.APIKey
	}

	if err := h.store.UpdateProvider(c.Request.Context(), provider); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProviderJSON(provider))
}

// Delete removes a provider together with its models, any runs referencing
// those models, and those runs' results.
func (h *ProviderHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.CascadeDeleteProvider(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("Provider deleted", zap.String("provider_id", id))
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// Test probes provider connectivity. A successful probe stamps last_checked
// on the provider row.
func (h *ProviderHandler) Test(c *gin.Context) {
	ctx := c.Request.Context()
	provider, err := h.store.GetProvider(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	ok, attempts := llm.Probe(ctx, nil, provider)
	if ok {
		if err := h.store.TouchProviderChecked(ctx, provider.ID, time.Now().UTC()); err != nil {
			h.logger.Warn("Failed to stamp provider probe time",
				zap.String("provider_id", provider.ID),
				zap.Error(err),
			)
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": ok, "attempts": attempts})
}
