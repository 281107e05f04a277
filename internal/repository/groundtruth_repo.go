package repository

import (
	"context"

	"github.com/structex/structex/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroundTruthRepository handles ground truths and field mappings.
type GroundTruthRepository struct {
	db *gorm.DB
}

// NewGroundTruthRepository creates a new GroundTruthRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *GroundTruthRepository: repository instance bound to db.
func NewGroundTruthRepository(db *gorm.DB) *GroundTruthRepository {
	return &GroundTruthRepository{db: db}
}

// Create inserts a new ground truth record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - gt: ground truth record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *GroundTruthRepository) Create(ctx context.Context, gt *domain.GroundTruth) error {
	return r.db.WithContext(ctx).Create(gt).Error
}

// GetByID retrieves a ground truth by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: ground truth ID.
// Returns:
//   - *domain.GroundTruth: ground truth record if found.
//   - error: non-nil if lookup fails.
func (r *GroundTruthRepository) GetByID(ctx context.Context, id string) (*domain.GroundTruth, error) {
	var gt domain.GroundTruth
	if err := r.db.WithContext(ctx).First(&gt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gt, nil
}

// ListByProject retrieves ground truths of a project, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
// Returns:
//   - []domain.GroundTruth: matching records.
//   - error: non-nil if the query fails.
func (r *GroundTruthRepository) ListByProject(ctx context.Context, projectID string) ([]domain.GroundTruth, error) {
	var gts []domain.GroundTruth
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&gts).Error; err != nil {
		return nil, err
	}
	return gts, nil
}

// UpdateDataCache persists the lazily parsed {key -> record} cache.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: ground truth ID.
//   - cache: parsed record map keyed by document identity.
// Returns:
//   - error: non-nil if the update fails.
func (r *GroundTruthRepository) UpdateDataCache(ctx context.Context, id string, cache domain.JSONMap) error {
	return r.db.WithContext(ctx).Model(&domain.GroundTruth{}).
		Where("id = ?", id).
		Update("data_cache", cache).Error
}

// Delete removes a ground truth by ID. Field mappings cascade.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: ground truth ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *GroundTruthRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.GroundTruth{}, "id = ?", id).Error
}

// UpsertMapping creates or replaces a field mapping keyed by
// (ground_truth_id, schema_id, schema_field).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - mapping: mapping record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *GroundTruthRepository) UpsertMapping(ctx context.Context, mapping *domain.FieldMapping) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "ground_truth_id"}, {Name: "schema_id"}, {Name: "schema_field"},
		},
		UpdateAll: true,
	}).Create(mapping).Error
}

// ListMappings retrieves all mappings for a (ground truth, schema) pair.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - groundTruthID: ground truth ID.
//   - schemaID: schema ID.
// Returns:
//   - []domain.FieldMapping: matching mapping records.
//   - error: non-nil if the query fails.
func (r *GroundTruthRepository) ListMappings(ctx context.Context, groundTruthID, schemaID string) ([]domain.FieldMapping, error) {
	var mappings []domain.FieldMapping
	if err := r.db.WithContext(ctx).
		Where("ground_truth_id = ? AND schema_id = ?", groundTruthID, schemaID).
		Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

// DeleteMapping removes a field mapping by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: mapping ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *GroundTruthRepository) DeleteMapping(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.FieldMapping{}, "id = ?", id).Error
}
