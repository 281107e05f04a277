package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/repository"
	"github.com/structex/structex/internal/service"
)

// maxUploadBytes caps a single multipart upload.
const maxUploadBytes = 100 << 20

// FileHandler handles file upload and retrieval endpoints.
type FileHandler struct {
	fileService *service.FileService
	fileRepo    *repository.FileRepository
}

// NewFileHandler creates a new file handler.
// Parameters:
//   - fileService: file service instance.
//   - fileRepo: file repository for listings.
// Returns:
//   - *FileHandler: initialized handler.
func NewFileHandler(fileService *service.FileService, fileRepo *repository.FileRepository) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		fileRepo:    fileRepo,
	}
}

// UploadFile handles POST /api/v1/projects/:id/files.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *FileHandler) UploadFile(c *gin.Context) {
	projectID := c.Param("id")

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

	file, err := h.fileService.Upload(c.Request.Context(), projectID, fileHeader.Filename, data, domain.FileCreatorUser)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store file: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, file)
}

// ListFiles handles GET /api/v1/projects/:id/files.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *FileHandler) ListFiles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	files, err := h.fileRepo.ListByProject(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list files: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files": files,
		"count": len(files),
	})
}

// GetFileContent handles GET /api/v1/files/:id/content.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes the raw payload).
func (h *FileHandler) GetFileContent(c *gin.Context) {
	data, file, err := h.fileService.Content(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "File not found",
		})
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+file.Name+"\"")
	c.Data(http.StatusOK, file.MimeType, data)
}

// DeleteFile handles DELETE /api/v1/files/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *FileHandler) DeleteFile(c *gin.Context) {
	if err := h.fileService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete file: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
