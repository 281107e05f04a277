package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/structex/structex/internal/repository"
	"github.com/structex/structex/internal/service"
)

// EvaluationHandler handles evaluation endpoints.
type EvaluationHandler struct {
	evalService *service.EvaluateService
	evalRepo    *repository.EvaluationRepository
}

// NewEvaluationHandler creates a new evaluation handler.
// Parameters:
//   - evalService: evaluation service instance.
//   - evalRepo: evaluation repository for reads.
// Returns:
//   - *EvaluationHandler: initialized handler.
func NewEvaluationHandler(evalService *service.EvaluateService, evalRepo *repository.EvaluationRepository) *EvaluationHandler {
	return &EvaluationHandler{
		evalService: evalService,
		evalRepo:    evalRepo,
	}
}

type runEvaluationRequest struct {
	TrialID       string `json:"trial_id" binding:"required"`
	GroundTruthID string `json:"ground_truth_id" binding:"required"`
	Force         bool   `json:"force"`
}

// RunEvaluation handles POST /api/v1/evaluations. Evaluation is synchronous:
// the scored result comes back in the response.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *EvaluationHandler) RunEvaluation(c *gin.Context) {
	var req runEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	eval, err := h.evalService.Run(c.Request.Context(), req.TrialID, req.GroundTruthID, req.Force)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Evaluation failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, eval)
}

// GetEvaluation handles GET /api/v1/evaluations/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *EvaluationHandler) GetEvaluation(c *gin.Context) {
	eval, err := h.evalRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Evaluation not found",
		})
		return
	}

	c.JSON(http.StatusOK, eval)
}

// ListEvaluations handles GET /api/v1/projects/:id/evaluations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *EvaluationHandler) ListEvaluations(c *gin.Context) {
	evals, err := h.evalRepo.ListByProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list evaluations: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"evaluations": evals,
		"count":       len(evals),
	})
}

// ListEvaluationMetrics handles GET /api/v1/evaluations/:id/metrics.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *EvaluationHandler) ListEvaluationMetrics(c *gin.Context) {
	metrics, err := h.evalRepo.ListMetrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list metrics: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics": metrics,
		"count":   len(metrics),
	})
}
