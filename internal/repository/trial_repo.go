package repository

import (
	"context"
	"time"

	"github.com/structex/structex/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrialRepository handles trials, trial results, schemas and prompts.
type TrialRepository struct {
	db *gorm.DB
}

// NewTrialRepository creates a new TrialRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *TrialRepository: repository instance bound to db.
func NewTrialRepository(db *gorm.DB) *TrialRepository {
	return &TrialRepository{db: db}
}

// CreateTrial inserts a new trial record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trial: trial record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *TrialRepository) CreateTrial(ctx context.Context, trial *domain.Trial) error {
	return r.db.WithContext(ctx).Create(trial).Error
}

// GetTrial retrieves a trial by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: trial ID.
// Returns:
//   - *domain.Trial: trial record if found.
//   - error: non-nil if lookup fails.
func (r *TrialRepository) GetTrial(ctx context.Context, id string) (*domain.Trial, error) {
	var trial domain.Trial
	if err := r.db.WithContext(ctx).First(&trial, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &trial, nil
}

// ClaimTrial transitions a trial from pending to in_progress. Only one
// concurrent caller wins the conditional update.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: trial ID.
// Returns:
//   - bool: true if this caller claimed the trial.
//   - error: non-nil if the update fails.
func (r *TrialRepository) ClaimTrial(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.Trial{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]interface{}{
			"status":     domain.StatusInProgress,
			"started_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// UpdateTrial persists trial fields.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trial: trial record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *TrialRepository) UpdateTrial(ctx context.Context, trial *domain.Trial) error {
	return r.db.WithContext(ctx).Save(trial).Error
}

// UpdateTrialFields applies a partial column update to a trial.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: trial ID.
//   - fields: column/value pairs to set.
// Returns:
//   - error: non-nil if the update fails.
func (r *TrialRepository) UpdateTrialFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&domain.Trial{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// TouchTrial bumps the trial's updated_at column. The extraction loop calls
// this as a heartbeat so the sweeper can tell live runs from orphans.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: trial ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *TrialRepository) TouchTrial(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Trial{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}

// MarkTrialCancelled sets the cancellation flag on a trial.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: trial ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *TrialRepository) MarkTrialCancelled(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Trial{}).
		Where("id = ?", id).
		Update("is_cancelled", true).Error
}

// IsTrialCancelled reads the cancellation flag.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: trial ID.
// Returns:
//   - bool: current cancellation flag.
//   - error: non-nil if the lookup fails.
func (r *TrialRepository) IsTrialCancelled(ctx context.Context, id string) (bool, error) {
	var cancelled bool
	if err := r.db.WithContext(ctx).Model(&domain.Trial{}).
		Where("id = ?", id).
		Pluck("is_cancelled", &cancelled).Error; err != nil {
		return false, err
	}
	return cancelled, nil
}

// ListTrialsByProject retrieves trials of a project, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Trial: matching trial records.
//   - error: non-nil if the query fails.
func (r *TrialRepository) ListTrialsByProject(ctx context.Context, projectID string, limit, offset int) ([]domain.Trial, error) {
	var trials []domain.Trial
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&trials).Error; err != nil {
		return nil, err
	}
	return trials, nil
}

// ListStalledTrials finds in_progress trials whose heartbeat is older than
// the cutoff.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: stall threshold.
// Returns:
//   - []domain.Trial: stalled trial records.
//   - error: non-nil if the query fails.
func (r *TrialRepository) ListStalledTrials(ctx context.Context, cutoff time.Time) ([]domain.Trial, error) {
	var trials []domain.Trial
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusInProgress, cutoff).
		Find(&trials).Error; err != nil {
		return nil, err
	}
	return trials, nil
}

// InsertResult inserts a trial result, skipping the insert when a result for
// the same (trial_id, document_id) pair already exists. This is what makes
// re-running a document idempotent.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - result: result record to persist.
// Returns:
//   - bool: true if a new row was inserted.
//   - error: non-nil if the insert fails.
func (r *TrialRepository) InsertResult(ctx context.Context, result *domain.TrialResult) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trial_id"}, {Name: "document_id"}},
		DoNothing: true,
	}).Create(result)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListResults retrieves all results of a trial.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trialID: trial ID.
// Returns:
//   - []domain.TrialResult: matching result records.
//   - error: non-nil if the query fails.
func (r *TrialRepository) ListResults(ctx context.Context, trialID string) ([]domain.TrialResult, error) {
	var results []domain.TrialResult
	if err := r.db.WithContext(ctx).
		Where("trial_id = ?", trialID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ResultDocumentIDs returns the document IDs that already have a result in
// this trial, so a resumed run can skip them.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trialID: trial ID.
// Returns:
//   - map[string]struct{}: set of document IDs with stored results.
//   - error: non-nil if the query fails.
func (r *TrialRepository) ResultDocumentIDs(ctx context.Context, trialID string) (map[string]struct{}, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.TrialResult{}).
		Where("trial_id = ?", trialID).
		Pluck("document_id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// CreateSchema inserts a new schema record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - schema: schema record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *TrialRepository) CreateSchema(ctx context.Context, schema *domain.Schema) error {
	return r.db.WithContext(ctx).Create(schema).Error
}

// GetSchema retrieves a schema by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: schema ID.
// Returns:
//   - *domain.Schema: schema record if found.
//   - error: non-nil if lookup fails.
func (r *TrialRepository) GetSchema(ctx context.Context, id string) (*domain.Schema, error) {
	var schema domain.Schema
	if err := r.db.WithContext(ctx).First(&schema, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &schema, nil
}

// CreatePrompt inserts a new prompt record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prompt: prompt record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *TrialRepository) CreatePrompt(ctx context.Context, prompt *domain.Prompt) error {
	return r.db.WithContext(ctx).Create(prompt).Error
}

// GetPrompt retrieves a prompt by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: prompt ID.
// Returns:
//   - *domain.Prompt: prompt record if found.
//   - error: non-nil if lookup fails.
func (r *TrialRepository) GetPrompt(ctx context.Context, id string) (*domain.Prompt, error) {
	var prompt domain.Prompt
	if err := r.db.WithContext(ctx).First(&prompt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &prompt, nil
}
