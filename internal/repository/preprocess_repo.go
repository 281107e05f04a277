package repository

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/structex/structex/internal/domain"
	"gorm.io/gorm"
)

// PreprocessRepository handles preprocessing configs, batch tasks and their
// per-file sub-tasks.
type PreprocessRepository struct {
	db *gorm.DB
}

// NewPreprocessRepository creates a new PreprocessRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *PreprocessRepository: repository instance bound to db.
func NewPreprocessRepository(db *gorm.DB) *PreprocessRepository {
	return &PreprocessRepository{db: db}
}

// CreateConfig inserts a new preprocessing config snapshot.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cfg: config record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *PreprocessRepository) CreateConfig(ctx context.Context, cfg *domain.PreprocessingConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

// GetConfig retrieves a preprocessing config by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: config ID.
// Returns:
//   - *domain.PreprocessingConfig: config record if found.
//   - error: non-nil if lookup fails.
func (r *PreprocessRepository) GetConfig(ctx context.Context, id string) (*domain.PreprocessingConfig, error) {
	var cfg domain.PreprocessingConfig
	if err := r.db.WithContext(ctx).First(&cfg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListConfigs retrieves all configs of a project, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
// Returns:
//   - []domain.PreprocessingConfig: matching config records.
//   - error: non-nil if the query fails.
func (r *PreprocessRepository) ListConfigs(ctx context.Context, projectID string) ([]domain.PreprocessingConfig, error) {
	var cfgs []domain.PreprocessingConfig
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&cfgs).Error; err != nil {
		return nil, err
	}
	return cfgs, nil
}

// FindMatchingConfig looks for an existing config of the project whose
// effective settings equal cfg's, ignoring name and description. Scalar
// fields narrow the query; array and map fields are compared in memory,
// languages order-insensitively.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - cfg: settings to match; cfg.ID, when set, is excluded from candidates.
// Returns:
//   - *domain.PreprocessingConfig: matching config, nil when none exists.
//   - error: non-nil if the query fails.
func (r *PreprocessRepository) FindMatchingConfig(ctx context.Context, projectID string, cfg *domain.PreprocessingConfig) (*domain.PreprocessingConfig, error) {
	query := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Where("pdf_backend = ? AND ocr_backend = ? AND use_ocr = ? AND force_ocr = ?",
			cfg.PDFBackend, cfg.OCRBackend, cfg.UseOCR, cfg.ForceOCR).
		Where("ocr_model = ? AND llm_model = ? AND table_strategy = ?",
			cfg.OCRModel, cfg.LLMModel, cfg.TableStrategy)
	if cfg.ID != "" {
		query = query.Where("id <> ?", cfg.ID)
	}

	var candidates []domain.PreprocessingConfig
	if err := query.Find(&candidates).Error; err != nil {
		return nil, err
	}
	for i := range candidates {
		cand := &candidates[i]
		if sameLanguages(cand.OCRLanguages, cfg.OCRLanguages) &&
			sameSettings(cand.TableSettings, cfg.TableSettings) &&
			sameSettings(cand.Extra, cfg.Extra) {
			return cand, nil
		}
	}
	return nil, nil
}

func sameLanguages(a, b domain.StringArray) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sameSettings(a, b domain.JSONMap) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(map[string]interface{}(a), map[string]interface{}(b))
}

// CreateTask inserts a batch task together with its file sub-tasks.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - task: batch task record, FileTasks included.
// Returns:
//   - error: non-nil if the insert fails.
func (r *PreprocessRepository) CreateTask(ctx context.Context, task *domain.PreprocessingTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// GetTask retrieves a batch task by ID, file sub-tasks preloaded.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: task ID.
// Returns:
//   - *domain.PreprocessingTask: task record if found.
//   - error: non-nil if lookup fails.
func (r *PreprocessRepository) GetTask(ctx context.Context, id string) (*domain.PreprocessingTask, error) {
	var task domain.PreprocessingTask
	if err := r.db.WithContext(ctx).
		Preload("FileTasks").
		First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ClaimTask transitions a task from pending to in_progress. The conditional
// update makes concurrent claims race-safe: only one caller wins.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: task ID.
// Returns:
//   - bool: true if this caller claimed the task.
//   - error: non-nil if the update fails.
func (r *PreprocessRepository) ClaimTask(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.PreprocessingTask{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]interface{}{
			"status":     domain.StatusInProgress,
			"started_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// UpdateTask persists task fields.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - task: task record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *PreprocessRepository) UpdateTask(ctx context.Context, task *domain.PreprocessingTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

// UpdateTaskFields applies a partial column update to a task.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: task ID.
//   - fields: column/value pairs to set.
// Returns:
//   - error: non-nil if the update fails.
func (r *PreprocessRepository) UpdateTaskFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&domain.PreprocessingTask{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// MarkTaskCancelled sets the cancellation flag on a task. Workers observe
// the flag and stop; finalization records the cancelled status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: task ID.
//   - rollback: whether partial documents should be rolled back.
// Returns:
//   - error: non-nil if the update fails.
func (r *PreprocessRepository) MarkTaskCancelled(ctx context.Context, id string, rollback bool) error {
	return r.db.WithContext(ctx).Model(&domain.PreprocessingTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_cancelled":       true,
			"rollback_on_cancel": rollback,
		}).Error
}

// IsTaskCancelled reads the cancellation flag.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: task ID.
// Returns:
//   - bool: current cancellation flag.
//   - error: non-nil if the lookup fails.
func (r *PreprocessRepository) IsTaskCancelled(ctx context.Context, id string) (bool, error) {
	var cancelled bool
	if err := r.db.WithContext(ctx).Model(&domain.PreprocessingTask{}).
		Where("id = ?", id).
		Pluck("is_cancelled", &cancelled).Error; err != nil {
		return false, err
	}
	return cancelled, nil
}

// ListTasksByProject retrieves batch tasks of a project, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.PreprocessingTask: matching task records.
//   - error: non-nil if the query fails.
func (r *PreprocessRepository) ListTasksByProject(ctx context.Context, projectID string, limit, offset int) ([]domain.PreprocessingTask, error) {
	var tasks []domain.PreprocessingTask
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListStalledTasks finds in_progress tasks whose last update is older than
// the cutoff. Used by the sweeper to fail orphaned runs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: stall threshold; tasks untouched since before it are stalled.
// Returns:
//   - []domain.PreprocessingTask: stalled task records.
//   - error: non-nil if the query fails.
func (r *PreprocessRepository) ListStalledTasks(ctx context.Context, cutoff time.Time) ([]domain.PreprocessingTask, error) {
	var tasks []domain.PreprocessingTask
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusInProgress, cutoff).
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ClaimFileTask transitions a file sub-task from pending to in_progress.
// A task whose status already advanced is not claimed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: file task ID.
// Returns:
//   - bool: true if this caller claimed the file task.
//   - error: non-nil if the update fails.
func (r *PreprocessRepository) ClaimFileTask(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.FilePreprocessingTask{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]interface{}{
			"status":     domain.StatusInProgress,
			"started_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

// GetFileTask retrieves a file sub-task by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: file task ID.
// Returns:
//   - *domain.FilePreprocessingTask: file task record if found.
//   - error: non-nil if lookup fails.
func (r *PreprocessRepository) GetFileTask(ctx context.Context, id string) (*domain.FilePreprocessingTask, error) {
	var ft domain.FilePreprocessingTask
	if err := r.db.WithContext(ctx).First(&ft, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ft, nil
}

// UpdateFileTask persists file sub-task fields.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ft: file task record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *PreprocessRepository) UpdateFileTask(ctx context.Context, ft *domain.FilePreprocessingTask) error {
	return r.db.WithContext(ctx).Save(ft).Error
}

// UpdateFileTaskFields applies a partial column update to a file sub-task.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: file task ID.
//   - fields: column/value pairs to set.
// Returns:
//   - error: non-nil if the update fails.
func (r *PreprocessRepository) UpdateFileTaskFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&domain.FilePreprocessingTask{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// ListFileTasks retrieves all file sub-tasks of one batch task.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - taskID: batch task ID.
// Returns:
//   - []domain.FilePreprocessingTask: matching file task records.
//   - error: non-nil if the query fails.
func (r *PreprocessRepository) ListFileTasks(ctx context.Context, taskID string) ([]domain.FilePreprocessingTask, error) {
	var fts []domain.FilePreprocessingTask
	if err := r.db.WithContext(ctx).
		Where("preprocessing_task_id = ?", taskID).
		Order("created_at ASC").
		Find(&fts).Error; err != nil {
		return nil, err
	}
	return fts, nil
}
