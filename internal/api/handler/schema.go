package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/llm"
	"github.com/structex/structex/internal/repository"
)

// SchemaHandler handles schema and prompt endpoints.
type SchemaHandler struct {
	trialRepo *repository.TrialRepository
}

// NewSchemaHandler creates a new schema handler.
// Parameters:
//   - trialRepo: trial repository, which owns schemas and prompts.
// Returns:
//   - *SchemaHandler: initialized handler.
func NewSchemaHandler(trialRepo *repository.TrialRepository) *SchemaHandler {
	return &SchemaHandler{
		trialRepo: trialRepo,
	}
}

type createSchemaRequest struct {
	Name       string         `json:"name" binding:"required"`
	Definition domain.JSONMap `json:"definition" binding:"required"`
}

// CreateSchema handles POST /api/v1/projects/:id/schemas. The definition is
// compiled up front so malformed schemas are rejected here.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SchemaHandler) CreateSchema(c *gin.Context) {
	var req createSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if err := llm.CheckSchema(map[string]interface{}(req.Definition)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid schema: " + err.Error(),
		})
		return
	}

	schema := &domain.Schema{
		ID:         uuid.New().String(),
		ProjectID:  c.Param("id"),
		Name:       req.Name,
		Definition: req.Definition,
	}
	if err := h.trialRepo.CreateSchema(c.Request.Context(), schema); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create schema: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, schema)
}

// GetSchema handles GET /api/v1/schemas/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SchemaHandler) GetSchema(c *gin.Context) {
	schema, err := h.trialRepo.GetSchema(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Schema not found",
		})
		return
	}

	c.JSON(http.StatusOK, schema)
}

type createPromptRequest struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
}

// CreatePrompt handles POST /api/v1/projects/:id/prompts.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SchemaHandler) CreatePrompt(c *gin.Context) {
	var req createPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	prompt := &domain.Prompt{
		ID:           uuid.New().String(),
		ProjectID:    c.Param("id"),
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
	}
	if err := prompt.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid prompt: " + err.Error(),
		})
		return
	}

	if err := h.trialRepo.CreatePrompt(c.Request.Context(), prompt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create prompt: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, prompt)
}

// GetPrompt handles GET /api/v1/prompts/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SchemaHandler) GetPrompt(c *gin.Context) {
	prompt, err := h.trialRepo.GetPrompt(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Prompt not found",
		})
		return
	}

	c.JSON(http.StatusOK, prompt)
}
