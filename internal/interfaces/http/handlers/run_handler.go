package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/domain/repository"
	"github.com/evalgate/evalgate/internal/domain/service"
	"github.com/evalgate/evalgate/internal/infrastructure/eventbus"
	"github.com/evalgate/evalgate/internal/infrastructure/persistence"
)

// RunHandler serves the run lifecycle: create, execute, cancel, results, and
// manual review.
type RunHandler struct {
	store     *persistence.Store
	scheduler *service.Scheduler
	registry  *service.CancelRegistry
	bus       *eventbus.Bus
	logger    *zap.Logger
}

func NewRunHandler(
	store *persistence.Store,
	scheduler *service.Scheduler,
	registry *service.CancelRegistry,
	bus *eventbus.Bus,
	logger *zap.Logger,
) *RunHandler {
	return &RunHandler{
		store:     store,
		scheduler: scheduler,
		registry:  registry,
		bus:       bus,
		logger:    logger,
	}
}

type createRunRequest struct {
	Name         string   `json:"name"`
	ProblemSetID string   `json:"problem_set_id" binding:"required"`
	ModelIDs     []string `json:"model_ids" binding:"required"`
	JudgeModelID string   `json:"judge_model_id" binding:"required"`
	Stream       bool     `json:"stream"`
}

type runJSON struct {
	ID           string     `json:"id"`
	Name         string     `json:"name,omitempty"`
	ProblemSetID string     `json:"problem_set_id"`
	ModelIDs     []string   `json:"model_ids"`
	JudgeModelID string     `json:"judge_model_id"`
	Status       string     `json:"status"`
	Stream       bool       `json:"stream"`
	CreatedAt    time.Time  `json:"created_at"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy  string     `json:"cancelled_by,omitempty"`
}

func toRunJSON(r *entity.Run) runJSON {
	return runJSON{
		ID:           r.ID,
		Name:         r.Name,
		ProblemSetID: r.ProblemSetID,
		ModelIDs:     r.ModelIDs,
		JudgeModelID: r.JudgeModelID,
		Status:       string(r.Status),
		Stream:       r.Stream,
		CreatedAt:    r.CreatedAt,
		CancelledAt:  r.CancelledAt,
		CancelledBy:  r.CancelledBy,
	}
}

func (h *RunHandler) Create(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run := &entity.Run{
		ID:           uuid.NewString(),
		Name:         req.Name,
		ProblemSetID: req.ProblemSetID,
		ModelIDs:     req.ModelIDs,
		JudgeModelID: req.JudgeModelID,
		Status:       entity.RunQueued,
		Stream:       req.Stream,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.CreateRun(c.Request.Context(), run); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Run created",
		zap.String("run_id", run.ID),
		zap.String("problem_set_id", run.ProblemSetID),
		zap.Int("models", len(run.ModelIDs)),
	)
	c.JSON(http.StatusCreated, gin.H{"id": run.ID})
}

// List returns recent runs, newest first, filtered by ?status and
// ?problem_set_id, capped at ?limit (default 50, max 200).
func (h *RunHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	filter := persistence.RunFilter{
		Status:       entity.RunStatus(c.Query("status")),
		ProblemSetID: c.Query("problem_set_id"),
		Limit:        limit,
	}

	runs, err := h.store.ListRuns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]runJSON, 0, len(runs))
	for _, r := range runs {
		out = append(out, toRunJSON(r))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRunJSON(run))
}

// Execute starts the run and acknowledges immediately; execution proceeds in
// the background. Re-execution of an errored run is allowed and reuses the id.
func (h *RunHandler) Execute(c *gin.Context) {
	id := c.Param("id")
	if err := h.scheduler.Execute(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": string(entity.RunRunning)})
}

// CancelRun aborts a running or queued run. For running runs the cancel
// propagates through the registry and the scheduler writes the terminal
// state; queued runs are finished directly since no workers exist yet.
func (h *RunHandler) CancelRun(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if run.Status != entity.RunRunning && run.Status != entity.RunQueued {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("run is %s, only running or queued runs can be cancelled", run.Status),
		})
		return
	}

	const cancelledBy = "user"
	cancelled := false

	if run.Status == entity.RunRunning {
		cancelled = h.registry.CancelRun(id, cancelledBy)
	}
	if !cancelled {
		// No live execution to signal; finish the run directly.
		if err := h.store.FinishRunCancelled(ctx, id, cancelledBy); err != nil {
			respondError(c, err)
			return
		}
	}

	h.bus.Publish(entity.RunEvent{
		Type:        entity.EventRunCancelled,
		RunID:       id,
		CancelledBy: cancelledBy,
	})
	if !cancelled {
		h.bus.Publish(entity.RunEvent{
			Type:        entity.EventRunStatus,
			RunID:       id,
			Status:      string(entity.RunCancelled),
			CancelledBy: cancelledBy,
		})
	}

	h.logger.Info("Run cancel requested",
		zap.String("run_id", id),
		zap.Bool("live_execution", cancelled),
	)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": string(entity.RunCancelled), "cancelled": cancelled})
}

// CancelModel aborts a single model worker of a running run; its siblings
// keep going.
func (h *RunHandler) CancelModel(c *gin.Context) {
	id := c.Param("id")
	modelID := c.Param("model_id")

	run, err := h.store.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if run.Status != entity.RunRunning {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("run is %s, model workers can only be cancelled on a running run", run.Status),
		})
		return
	}

	part := false
	for _, mid := range run.ModelIDs {
		if mid == modelID {
			part = true
			break
		}
	}
	if !part {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is not part of this run"})
		return
	}

	cancelled := h.registry.CancelModel(id, modelID)
	c.JSON(http.StatusOK, gin.H{"id": id, "model_id": modelID, "cancelled": cancelled})
}

type resultJSON struct {
	ID             string     `json:"id"`
	RunID          string     `json:"run_id"`
	ProblemID      string     `json:"problem_id"`
	ModelID        string     `json:"model_id"`
	Output         string     `json:"output,omitempty"`
	Score          *int       `json:"score,omitempty"`
	Status         string     `json:"status"`
	JudgedBy       string     `json:"judged_by,omitempty"`
	JudgeReasoning string     `json:"judge_reasoning,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	ProblemKind    string     `json:"problem_kind"`
	ProblemPrompt  string     `json:"problem_prompt"`
	Passed         bool       `json:"passed"`
}

// Results returns all results of a run joined with problem kind and prompt.
func (h *RunHandler) Results(c *gin.Context) {
	results, err := h.store.ListRunResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]resultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, resultJSON{
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
			ProblemKind:    string(r.ProblemKind),
			ProblemPrompt:  r.ProblemPrompt,
			Passed:         r.Passed(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

type reviewRequest struct {
	Decision string `json:"decision" binding:"required"` // pass | fail
	Notes    string `json:"notes"`
}

// Review records a human verdict on an HTML result awaiting manual review.
// Pass scores 100, fail scores 0; the result completes with judged_by
// "human".
func (h *RunHandler) Review(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Decision != "pass" && req.Decision != "fail" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be \"pass\" or \"fail\""})
		return
	}

	result, err := h.store.GetRunResult(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Status != entity.ResultManual {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("result is %s, only results awaiting manual review can be reviewed", result.Status),
		})
		return
	}

	problem, err := h.store.GetProblem(ctx, result.ProblemID)
	if err != nil {
		respondError(c, err)
		return
	}
	if problem.Kind != entity.ProblemHTML {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only html problem results are reviewed manually"})
		return
	}

	score := 0
	if req.Decision == "pass" {
		score = 100
	}
	completed := entity.ResultCompleted
	judgedBy := entity.JudgedByHuman

	patch := repository.ResultPatch{
		Score:    &score,
		Status:   &completed,
		JudgedBy: &judgedBy,
	}
	if req.Notes != "" {
		patch.JudgeReasoning = &req.Notes
	}
	if err := h.store.MarkResult(ctx, id, patch); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Result reviewed",
		zap.String("result_id", id),
		zap.String("decision", req.Decision),
	)
	c.JSON(http.StatusOK, gin.H{"id": id, "score": score, "status": string(completed)})
}
