package repository

import (
	"context"

	"github.com/structex/structex/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EvaluationRepository handles evaluations and their field-level metrics.
type EvaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository creates a new EvaluationRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *EvaluationRepository: repository instance bound to db.
func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Upsert creates or replaces the evaluation for a (trial, ground truth)
// pair. Old field metrics are removed so the new run fully replaces them.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - eval: evaluation record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *EvaluationRepository) Upsert(ctx context.Context, eval *domain.Evaluation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Evaluation
		err := tx.First(&existing, "trial_id = ? AND ground_truth_id = ?", eval.TrialID, eval.GroundTruthID).Error
		if err == nil {
			if delErr := tx.Delete(&domain.EvaluationMetric{}, "evaluation_id = ?", existing.ID).Error; delErr != nil {
				return delErr
			}
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trial_id"}, {Name: "ground_truth_id"}},
			UpdateAll: true,
		}).Create(eval).Error
	})
}

// GetByID retrieves an evaluation by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: evaluation ID.
// Returns:
//   - *domain.Evaluation: evaluation record if found.
//   - error: non-nil if lookup fails.
func (r *EvaluationRepository) GetByID(ctx context.Context, id string) (*domain.Evaluation, error) {
	var eval domain.Evaluation
	if err := r.db.WithContext(ctx).First(&eval, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &eval, nil
}

// GetByPair retrieves the evaluation for a (trial, ground truth) pair.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trialID: trial ID.
//   - groundTruthID: ground truth ID.
// Returns:
//   - *domain.Evaluation: evaluation record if found.
//   - error: non-nil if lookup fails.
func (r *EvaluationRepository) GetByPair(ctx context.Context, trialID, groundTruthID string) (*domain.Evaluation, error) {
	var eval domain.Evaluation
	if err := r.db.WithContext(ctx).
		First(&eval, "trial_id = ? AND ground_truth_id = ?", trialID, groundTruthID).Error; err != nil {
		return nil, err
	}
	return &eval, nil
}

// ListByProject retrieves evaluations of a project, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
// Returns:
//   - []domain.Evaluation: matching evaluation records.
//   - error: non-nil if the query fails.
func (r *EvaluationRepository) ListByProject(ctx context.Context, projectID string) ([]domain.Evaluation, error) {
	var evals []domain.Evaluation
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&evals).Error; err != nil {
		return nil, err
	}
	return evals, nil
}

// InsertMetrics bulk-inserts field-level metrics for an evaluation.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - metrics: metric rows to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *EvaluationRepository) InsertMetrics(ctx context.Context, metrics []domain.EvaluationMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(metrics, 200).Error
}

// ListMetrics retrieves all field-level metrics of an evaluation.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - evaluationID: evaluation ID.
// Returns:
//   - []domain.EvaluationMetric: matching metric rows.
//   - error: non-nil if the query fails.
func (r *EvaluationRepository) ListMetrics(ctx context.Context, evaluationID string) ([]domain.EvaluationMetric, error) {
	var metrics []domain.EvaluationMetric
	if err := r.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Find(&metrics).Error; err != nil {
		return nil, err
	}
	return metrics, nil
}
