package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/jobs"
	"github.com/structex/structex/internal/repository"
	"github.com/structex/structex/internal/service"
)

// TrialHandler handles extraction trial endpoints.
type TrialHandler struct {
	extractService *service.ExtractService
	trialRepo      *repository.TrialRepository
	queue          *jobs.Queue
}

// NewTrialHandler creates a new trial handler.
// Parameters:
//   - extractService: extraction service instance.
//   - trialRepo: trial repository for reads.
//   - queue: job queue for background runs.
// Returns:
//   - *TrialHandler: initialized handler.
func NewTrialHandler(extractService *service.ExtractService, trialRepo *repository.TrialRepository, queue *jobs.Queue) *TrialHandler {
	return &TrialHandler{
		extractService: extractService,
		trialRepo:      trialRepo,
		queue:          queue,
	}
}

type createTrialRequest struct {
	Name            string         `json:"name"`
	SchemaID        string         `json:"schema_id" binding:"required"`
	PromptID        string         `json:"prompt_id" binding:"required"`
	DocumentIDs     []string       `json:"document_ids" binding:"required"`
	Model           string         `json:"model" binding:"required"`
	APIKey          string         `json:"api_key"`
	BaseURL         string         `json:"base_url"`
	AdvancedOptions domain.JSONMap `json:"advanced_options"`
}

// CreateTrial handles POST /api/v1/projects/:id/trials. The trial is
// validated synchronously and then runs on the job queue.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TrialHandler) CreateTrial(c *gin.Context) {
	var req createTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	trial := &domain.Trial{
		ProjectID:       c.Param("id"),
		SchemaID:        req.SchemaID,
		PromptID:        req.PromptID,
		Name:            req.Name,
		DocumentIDs:     req.DocumentIDs,
		Model:           req.Model,
		APIKey:          req.APIKey,
		BaseURL:         req.BaseURL,
		AdvancedOptions: req.AdvancedOptions,
	}
	if err := h.extractService.CreateTrial(c.Request.Context(), trial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to create trial: " + err.Error(),
		})
		return
	}

	trialID := trial.ID
	if _, err := h.queue.Enqueue("extract:"+trialID, func(ctx context.Context) error {
		return h.extractService.Run(ctx, trialID)
	}); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to schedule trial: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, trial)
}

// GetTrial handles GET /api/v1/trials/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TrialHandler) GetTrial(c *gin.Context) {
	trial, err := h.trialRepo.GetTrial(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Trial not found",
		})
		return
	}

	c.JSON(http.StatusOK, trial)
}

// ListTrials handles GET /api/v1/projects/:id/trials.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TrialHandler) ListTrials(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	trials, err := h.trialRepo.ListTrialsByProject(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list trials: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trials": trials,
		"count":  len(trials),
	})
}

// CancelTrial handles POST /api/v1/trials/:id/cancel.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TrialHandler) CancelTrial(c *gin.Context) {
	if err := h.extractService.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to cancel trial: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// ListTrialResults handles GET /api/v1/trials/:id/results.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TrialHandler) ListTrialResults(c *gin.Context) {
	results, err := h.trialRepo.ListResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list results: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
	})
}
