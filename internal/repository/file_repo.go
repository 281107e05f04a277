package repository

import (
	"context"

	"github.com/structex/structex/internal/domain"
	"gorm.io/gorm"
)

// FileRepository handles file metadata operations.
type FileRepository struct {
	db *gorm.DB
}

// NewFileRepository creates a new FileRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *FileRepository: repository instance bound to db.
func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create inserts a new file record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - file: file record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *FileRepository) Create(ctx context.Context, file *domain.File) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// GetByID retrieves a file by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: file ID.
// Returns:
//   - *domain.File: file record if found.
//   - error: non-nil if lookup fails.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*domain.File, error) {
	var file domain.File
	if err := r.db.WithContext(ctx).First(&file, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// GetByUUID retrieves a file by its storage UUID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - uuid: blob storage key.
// Returns:
//   - *domain.File: file record if found.
//   - error: non-nil if lookup fails.
func (r *FileRepository) GetByUUID(ctx context.Context, uuid string) (*domain.File, error) {
	var file domain.File
	if err := r.db.WithContext(ctx).First(&file, "uuid = ?", uuid).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// GetByIDs retrieves files by a list of IDs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: list of file IDs.
// Returns:
//   - []domain.File: matching file records.
//   - error: non-nil if the query fails.
func (r *FileRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.File, error) {
	if len(ids) == 0 {
		return []domain.File{}, nil
	}
	var files []domain.File
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// GetByContentHash retrieves a project-scoped file by content hash, used for
// upload deduplication.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - hash: hex content hash of the payload.
// Returns:
//   - *domain.File: file record if found.
//   - error: non-nil if lookup fails.
func (r *FileRepository) GetByContentHash(ctx context.Context, projectID, hash string) (*domain.File, error) {
	var file domain.File
	if err := r.db.WithContext(ctx).
		First(&file, "project_id = ? AND content_hash = ?", projectID, hash).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// ListByProject retrieves files belonging to a project with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.File: matching file records.
//   - error: non-nil if the query fails.
func (r *FileRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]domain.File, error) {
	var files []domain.File
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// Delete removes a file record by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: file ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.File{}, "id = ?", id).Error
}
