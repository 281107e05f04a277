package repository

import (
	"context"

	"github.com/structex/structex/internal/domain"
	"gorm.io/gorm"
)

// ProjectRepository handles project data operations.
type ProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProjectRepository: repository instance bound to db.
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - project: project record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// GetByID retrieves a project by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: project ID.
// Returns:
//   - *domain.Project: project record if found.
//   - error: non-nil if lookup fails.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// GetByName retrieves a project by its unique name.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: project name.
// Returns:
//   - *domain.Project: project record if found.
//   - error: non-nil if lookup fails.
func (r *ProjectRepository) GetByName(ctx context.Context, name string) (*domain.Project, error) {
	var project domain.Project
	if err := r.db.WithContext(ctx).First(&project, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// List retrieves projects ordered by creation time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Project: matching project records.
//   - error: non-nil if the query fails.
func (r *ProjectRepository) List(ctx context.Context, limit, offset int) ([]domain.Project, error) {
	var projects []domain.Project
	if err := r.db.WithContext(ctx).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// Update updates an existing project record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - project: project record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *ProjectRepository) Update(ctx context.Context, project *domain.Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

// Delete removes a project by ID. Dependent rows cascade.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: project ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Project{}, "id = ?", id).Error
}
