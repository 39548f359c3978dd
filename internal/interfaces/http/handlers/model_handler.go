package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence"
)

// ModelHandler serves model CRUD.
type ModelHandler struct {
	store  *persistence.Store
	logger *zap.Logger
}

func NewModelHandler(store *persistence.Store, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{store: store, logger: logger}
}

type modelRequest struct {
	ProviderID string             `json:"provider_id" binding:"required"`
	Label      string             `json:"label" binding:"required"`
	ModelID    string             `json:"model_id" binding:"required"`
	Params     entity.ModelParams `json:"params"`
}

type modelJSON struct {
	ID         string             `json:"id"`
	ProviderID string             `json:"provider_id"`
	Label      string             `json:"label"`
	ModelID    string             `json:"model_id"`
	Params     entity.ModelParams `json:"params,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

func toModelJSON(m *entity.Model) modelJSON {
	return modelJSON{
		ID:         m.ID,
		ProviderID: m.ProviderID,
		Label:      m.Label,
		ModelID:    m.ModelID,
		Params:     m.Params,
		CreatedAt:  m.CreatedAt,
	}
}

func (h *ModelHandler) Create(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model := &entity.Model{
		ID:         uuid.NewString(),
		ProviderID: req.ProviderID,
		Label:      req.Label,
		ModelID:    req.ModelID,
		Params:     req.Params,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.store.CreateModel(c.Request.Context(), model); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Model created",
		zap.String("model_id", model.ID),
		zap.String("vendor_model", model.ModelID),
	)
	c.JSON(http.StatusCreated, toModelJSON(model))
}

// List returns all models, optionally filtered by ?provider_id.
func (h *ModelHandler) List(c *gin.Context) {
	models, err := h.store.ListModels(c.Request.Context(), c.Query("provider_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]modelJSON, 0, len(models))
	for _, m := range models {
		out = append(out, toModelJSON(m))
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

func (h *ModelHandler) Get(c *gin.Context) {
	model, err := h.store.GetModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toModelJSON(model))
}

func (h *ModelHandler) Update(c *gin.Context) {
	model, err := h.store.GetModel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model.ProviderID = req.ProviderID
	model.Label = req.Label
	model.ModelID = req.ModelID
	model.Params = req.Params

	if err := h.store.UpdateModel(c.Request.Context(), model); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toModelJSON(model))
}

// Delete removes a model. Deletion is refused with a conflict when any run
// references the model, unless ?cascade=true is passed, in which case the
// referencing runs and their results go too.
func (h *ModelHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	cascade := c.Query("cascade") == "true"

	if err := h.store.DeleteModel(c.Request.Context(), id, cascade); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Model deleted", zap.String("model_id", id), zap.Bool("cascade", cascade))
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
