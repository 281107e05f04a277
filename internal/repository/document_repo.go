package repository

import (
	"context"

	"github.com/structex/structex/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepository handles document data operations.
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new DocumentRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *DocumentRepository: repository instance bound to db.
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - doc: document record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// CreateIgnoreDuplicate inserts a document, silently skipping rows that
// collide on the (original_file_id, config_id, document_name) identity.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - doc: document record to persist.
// Returns:
//   - bool: true if a new row was inserted.
//   - error: non-nil if the insert fails.
func (r *DocumentRepository) CreateIgnoreDuplicate(ctx context.Context, doc *domain.Document) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "original_file_id"}, {Name: "config_id"}, {Name: "document_name"},
		},
		DoNothing: true,
	}).Create(doc)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExistsByIdentity checks whether a document identity already exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileID: original file ID.
//   - configID: preprocessing config ID.
//   - name: document name.
// Returns:
//   - bool: true if a record exists.
//   - error: non-nil if the lookup fails.
func (r *DocumentRepository) ExistsByIdentity(ctx context.Context, fileID, configID, name string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Document{}).
		Where("original_file_id = ? AND config_id = ? AND document_name = ?", fileID, configID, name).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByID retrieves a document by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: document ID.
// Returns:
//   - *domain.Document: document record if found.
//   - error: non-nil if lookup fails.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByIDs retrieves documents by a list of IDs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: list of document IDs.
// Returns:
//   - []domain.Document: matching document records.
//   - error: non-nil if the query fails.
func (r *DocumentRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return []domain.Document{}, nil
	}
	var docs []domain.Document
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// ListByProject retrieves documents belonging to a project with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Document: matching document records.
//   - error: non-nil if the query fails.
func (r *DocumentRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]domain.Document, error) {
	var docs []domain.Document
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// ListByFileTask retrieves all documents produced by one file task.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileTaskID: file preprocessing task ID.
// Returns:
//   - []domain.Document: matching document records.
//   - error: non-nil if the query fails.
func (r *DocumentRepository) ListByFileTask(ctx context.Context, fileTaskID string) ([]domain.Document, error) {
	var docs []domain.Document
	if err := r.db.WithContext(ctx).
		Where("file_task_id = ?", fileTaskID).
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteByFileTask removes all documents produced by one file task. Used
// when a cancelled run rolls its partial output back.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileTaskID: file preprocessing task ID.
// Returns:
//   - int64: number of rows deleted.
//   - error: non-nil if the delete fails.
func (r *DocumentRepository) DeleteByFileTask(ctx context.Context, fileTaskID string) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&domain.Document{}, "file_task_id = ?", fileTaskID)
	return res.RowsAffected, res.Error
}

// Delete removes a document by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: document ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Document{}, "id = ?", id).Error
}
