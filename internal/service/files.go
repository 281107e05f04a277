package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/logger"
	"github.com/structex/structex/internal/repository"
	"github.com/structex/structex/internal/storage"
	"gorm.io/gorm"
)

// FileService handles file uploads, deduplication and retrieval.
type FileService struct {
	fileRepo *repository.FileRepository
	store    storage.BlobStore
	logger   *logger.Logger
}

// NewFileService creates a FileService.
// Parameters:
//   - fileRepo: file repository.
//   - store: blob store for payloads.
//   - log: logger instance.
// Returns:
//   - *FileService: initialized service.
func NewFileService(fileRepo *repository.FileRepository, store storage.BlobStore, log *logger.Logger) *FileService {
	return &FileService{
		fileRepo: fileRepo,
		store:    store,
		logger:   log,
	}
}

func (s *FileService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Upload stores a payload and registers the file. An identical payload
// already in the project is returned as-is instead of stored twice.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - name: original file name.
//   - data: raw payload bytes.
//   - creator: who produced the file (user or system).
// Returns:
//   - *domain.File: stored or existing file record.
//   - error: non-nil if storage or persistence fails.
func (s *FileService) Upload(ctx context.Context, projectID, name string, data []byte, creator domain.FileCreator) (*domain.File, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("file %q is empty", name)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.fileRepo.GetByContentHash(ctx, projectID, hash)
	if err == nil {
		s.log(ctx).WithFields(logger.Fields{
			"file_id": existing.ID,
			"name":    name,
		}).Info("Duplicate upload, reusing stored file")
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key, err := s.store.Save(ctx, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store payload: %w", err)
	}

	file := &domain.File{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		UUID:        key,
		Name:        name,
		MimeType:    contentType,
		Size:        int64(len(data)),
		ContentHash: hash,
		Creator:     creator,
		Storage:     domain.FileStorageLocal,
	}
	if err := s.fileRepo.Create(ctx, file); err != nil {
		// Keep the store consistent when the record cannot be written
		_ = s.store.Delete(ctx, key)
		return nil, err
	}
	return file, nil
}

// Content loads a file's payload from the blob store.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileID: file record ID.
// Returns:
//   - []byte: raw payload.
//   - *domain.File: file record.
//   - error: non-nil if the record or payload is missing.
func (s *FileService) Content(ctx context.Context, fileID string) ([]byte, *domain.File, error) {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.store.Load(ctx, file.UUID)
	if err != nil {
		return nil, nil, err
	}
	return data, file, nil
}

// Delete removes a file record and its payload.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileID: file record ID.
// Returns:
//   - error: non-nil if the delete fails.
func (s *FileService) Delete(ctx context.Context, fileID string) error {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if err := s.fileRepo.Delete(ctx, fileID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, file.UUID); err != nil {
		s.log(ctx).WithField("file_id", fileID).WithError(err).Warn("Failed to delete payload")
	}
	return nil
}
