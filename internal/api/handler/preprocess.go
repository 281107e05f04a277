package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/jobs"
	"github.com/structex/structex/internal/repository"
	"github.com/structex/structex/internal/service"
)

// PreprocessHandler handles preprocessing config and task endpoints.
type PreprocessHandler struct {
	preService *service.PreprocessService
	preRepo    *repository.PreprocessRepository
	queue      *jobs.Queue
}

// NewPreprocessHandler creates a new preprocessing handler.
// Parameters:
//   - preService: preprocessing service instance.
//   - preRepo: preprocessing repository for reads.
//   - queue: job queue for background runs.
// Returns:
//   - *PreprocessHandler: initialized handler.
func NewPreprocessHandler(preService *service.PreprocessService, preRepo *repository.PreprocessRepository, queue *jobs.Queue) *PreprocessHandler {
	return &PreprocessHandler{
		preService: preService,
		preRepo:    preRepo,
		queue:      queue,
	}
}

type createConfigRequest struct {
	Name          string               `json:"name"`
	Description   string               `json:"description"`
	PDFBackend    string               `json:"pdf_backend"`
	OCRBackend    string               `json:"ocr_backend"`
	UseOCR        bool                 `json:"use_ocr"`
	ForceOCR      bool                 `json:"force_ocr"`
	OCRLanguages  []string             `json:"ocr_languages"`
	OCRModel      string               `json:"ocr_model"`
	LLMModel      string               `json:"llm_model"`
	TableStrategy domain.TableStrategy `json:"table_strategy"`
	TableSettings domain.JSONMap       `json:"table_settings"`
	Extra         domain.JSONMap       `json:"extra"`
}

// CreateConfig handles POST /api/v1/projects/:id/preprocessing/configs. A
// request whose effective settings match an existing config returns that
// config instead of creating a duplicate.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PreprocessHandler) CreateConfig(c *gin.Context) {
	var req createConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	strategy := req.TableStrategy
	if strategy == "" {
		strategy = domain.StrategyFullDocument
	}

	cfg := &domain.PreprocessingConfig{
		ID:            uuid.New().String(),
		ProjectID:     c.Param("id"),
		Name:          req.Name,
		Description:   req.Description,
		PDFBackend:    req.PDFBackend,
		OCRBackend:    req.OCRBackend,
		UseOCR:        req.UseOCR,
		ForceOCR:      req.ForceOCR,
		OCRLanguages:  req.OCRLanguages,
		OCRModel:      req.OCRModel,
		LLMModel:      req.LLMModel,
		TableStrategy: strategy,
		TableSettings: req.TableSettings,
		Extra:         req.Extra,
	}

	// Reuse an existing config with identical effective settings
	existing, err := h.preRepo.FindMatchingConfig(c.Request.Context(), cfg.ProjectID, cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create config: " + err.Error(),
		})
		return
	}
	if existing != nil {
		c.JSON(http.StatusOK, existing)
		return
	}

	if err := h.preRepo.CreateConfig(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create config: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

// ListConfigs handles GET /api/v1/projects/:id/preprocessing/configs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PreprocessHandler) ListConfigs(c *gin.Context) {
	configs, err := h.preRepo.ListConfigs(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list configs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"configs": configs,
		"count":   len(configs),
	})
}

type createTaskRequest struct {
	ConfigID         string   `json:"config_id" binding:"required"`
	FileIDs          []string `json:"file_ids" binding:"required"`
	RollbackOnCancel bool     `json:"rollback_on_cancel"`
}

// CreateTask handles POST /api/v1/projects/:id/preprocessing/tasks. The task
// is registered synchronously and then runs on the job queue.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PreprocessHandler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	task, err := h.preService.CreateTask(c.Request.Context(), c.Param("id"), req.ConfigID, req.FileIDs, req.RollbackOnCancel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to create task: " + err.Error(),
		})
		return
	}

	taskID := task.ID
	if _, err := h.queue.Enqueue("preprocess:"+taskID, func(ctx context.Context) error {
		return h.preService.Run(ctx, taskID)
	}); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to schedule task: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, task)
}

// GetTask handles GET /api/v1/preprocessing/tasks/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PreprocessHandler) GetTask(c *gin.Context) {
	task, err := h.preRepo.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Task not found",
		})
		return
	}

	c.JSON(http.StatusOK, task)
}

// ListTasks handles GET /api/v1/projects/:id/preprocessing/tasks.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PreprocessHandler) ListTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	tasks, err := h.preRepo.ListTasksByProject(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list tasks: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

type cancelTaskRequest struct {
	Rollback bool `json:"rollback"`
}

// CancelTask handles POST /api/v1/preprocessing/tasks/:id/cancel. The flag is
// picked up by the running worker; completed work is settled at finalization.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PreprocessHandler) CancelTask(c *gin.Context) {
	var req cancelTaskRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.preService.Cancel(c.Request.Context(), c.Param("id"), req.Rollback); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to cancel task: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}
