package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence"
)

// ProblemHandler serves problem set and problem CRUD.
type ProblemHandler struct {
	store  *persistence.Store
	logger *zap.Logger
}

func NewProblemHandler(store *persistence.Store, logger *zap.Logger) *ProblemHandler {
	return &ProblemHandler{store: store, logger: logger}
}

type problemSetRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type problemRequest struct {
	Kind           string `json:"kind" binding:"required"`
	Prompt         string `json:"prompt" binding:"required"`
	ExpectedAnswer string `json:"expected_answer"`
	HTMLAssets     string `json:"html_assets"`
	ScoringHints   string `json:"scoring_hints"`
}

func (h *ProblemHandler) CreateSet(c *gin.Context) {
	var req problemSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	set := &entity.ProblemSet{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.CreateProblemSet(c.Request.Context(), set); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Problem set created", zap.String("problem_set_id", set.ID))
	c.JSON(http.StatusCreated, set)
}

func (h *ProblemHandler) ListSets(c *gin.Context) {
	sets, err := h.store.ListProblemSets(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"problem_sets": sets})
}

func (h *ProblemHandler) GetSet(c *gin.Context) {
	set, err := h.store.GetProblemSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// DeleteSet removes a problem set with its problems, the runs referencing the
// set, and those runs' results, in one transaction.
func (h *ProblemHandler) DeleteSet(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.CascadeDeleteProblemSet(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("Problem set deleted", zap.String("problem_set_id", id))
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *ProblemHandler) CreateProblem(c *gin.Context) {
	var req problemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := entity.ProblemKind(req.Kind)
	if kind != entity.ProblemText && kind != entity.ProblemHTML {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown problem kind %q", req.Kind)})
		return
	}

	problem := &entity.Problem{
		ID:             uuid.NewString(),
		ProblemSetID:   c.Param("id"),
		Kind:           kind,
		Prompt:         req.Prompt,
		ExpectedAnswer: req.ExpectedAnswer,
		HTMLAssets:     req.HTMLAssets,
		ScoringHints:   req.ScoringHints,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.CreateProblem(c.Request.Context(), problem); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, problem)
}

// ListProblems returns the set's problems in ascending created-at order, the
// same order the scheduler dispatches them in.
func (h *ProblemHandler) ListProblems(c *gin.Context) {
	problems, err := h.store.ListProblems(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"problems": problems})
}

func (h *ProblemHandler) DeleteProblem(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteProblem(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
