package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/service"
)

// GroundTruthHandler handles ground-truth and field-mapping endpoints.
type GroundTruthHandler struct {
	gtService  *service.GroundTruthService
	mapService *service.FieldMapService
}

// NewGroundTruthHandler creates a new ground truth handler.
// Parameters:
//   - gtService: ground truth service instance.
//   - mapService: field mapping service instance.
// Returns:
//   - *GroundTruthHandler: initialized handler.
func NewGroundTruthHandler(gtService *service.GroundTruthService, mapService *service.FieldMapService) *GroundTruthHandler {
	return &GroundTruthHandler{
		gtService:  gtService,
		mapService: mapService,
	}
}

// UploadGroundTruth handles POST /api/v1/projects/:id/ground-truths.
// Accepts a multipart upload with optional "format" and "id_column" fields.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GroundTruthHandler) UploadGroundTruth(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing file field: " + err.Error(),
		})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File too large",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to open upload: " + err.Error(),
		})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read upload: " + err.Error(),
		})
		return
	}

	format := domain.GroundTruthFormat(c.PostForm("format"))
	idColumn := c.PostForm("id_column")

	gt, err := h.gtService.Create(c.Request.Context(), c.Param("id"), fileHeader.Filename, format, idColumn, data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to create ground truth: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gt)
}

// ListGroundTruths handles GET /api/v1/projects/:id/ground-truths.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GroundTruthHandler) ListGroundTruths(c *gin.Context) {
	gts, err := h.gtService.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list ground truths: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ground_truths": gts,
		"count":         len(gts),
	})
}

// GetGroundTruth handles GET /api/v1/ground-truths/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GroundTruthHandler) GetGroundTruth(c *gin.Context) {
	gt, err := h.gtService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Ground truth not found",
		})
		return
	}

	c.JSON(http.StatusOK, gt)
}

// DeleteGroundTruth handles DELETE /api/v1/ground-truths/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GroundTruthHandler) DeleteGroundTruth(c *gin.Context) {
	if err := h.gtService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete ground truth: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type autoMapRequest struct {
	SchemaID string `json:"schema_id" binding:"required"`
}

// AutoMap handles POST /api/v1/ground-truths/:id/automap.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GroundTruthHandler) AutoMap(c *gin.Context) {
	var req autoMapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	mappings, err := h.mapService.AutoMap(c.Request.Context(), c.Param("id"), req.SchemaID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to auto-map: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mappings": mappings,
		"count":    len(mappings),
	})
}

// ListMappings handles GET /api/v1/ground-truths/:id/mappings.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GroundTruthHandler) ListMappings(c *gin.Context) {
	schemaID := c.Query("schema_id")
	if schemaID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "schema_id query parameter is required",
		})
		return
	}

	mappings, err := h.mapService.ListMappings(c.Request.Context(), c.Param("id"), schemaID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list mappings: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mappings": mappings,
		"count":    len(mappings),
	})
}

type saveMappingRequest struct {
	SchemaID         string                  `json:"schema_id" binding:"required"`
	SchemaField      string                  `json:"schema_field" binding:"required"`
	GroundTruthField string                  `json:"ground_truth_field" binding:"required"`
	FieldType        domain.FieldType        `json:"field_type"`
	ComparisonMethod domain.ComparisonMethod `json:"comparison_method"`
	Options          domain.JSONMap          `json:"options"`
}

// SaveMapping handles PUT /api/v1/ground-truths/:id/mappings.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GroundTruthHandler) SaveMapping(c *gin.Context) {
	var req saveMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	mapping := &domain.FieldMapping{
		GroundTruthID:    c.Param("id"),
		SchemaID:         req.SchemaID,
		SchemaField:      req.SchemaField,
		GroundTruthField: req.GroundTruthField,
		FieldType:        req.FieldType,
		ComparisonMethod: req.ComparisonMethod,
		Options:          req.Options,
	}
	if err := h.mapService.SaveMapping(c.Request.Context(), mapping); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save mapping: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, mapping)
}

// DeleteMapping handles DELETE /api/v1/mappings/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GroundTruthHandler) DeleteMapping(c *gin.Context) {
	if err := h.mapService.DeleteMapping(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete mapping: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
