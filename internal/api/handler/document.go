package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/structex/structex/internal/repository"
)

// DocumentHandler handles document endpoints.
type DocumentHandler struct {
	docRepo *repository.DocumentRepository
}

// NewDocumentHandler creates a new document handler.
// Parameters:
//   - docRepo: document repository.
// Returns:
//   - *DocumentHandler: initialized handler.
func NewDocumentHandler(docRepo *repository.DocumentRepository) *DocumentHandler {
	return &DocumentHandler{
		docRepo: docRepo,
	}
}

// ListDocuments handles GET /api/v1/projects/:id/documents.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.docRepo.ListByProject(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list documents: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"count":     len(docs),
	})
}

// GetDocument handles GET /api/v1/documents/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.docRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Document not found",
		})
		return
	}

	c.JSON(http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/v1/documents/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	if err := h.docRepo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete document: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
