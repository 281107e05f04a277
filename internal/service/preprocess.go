package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/structex/structex/internal/convert"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/logger"
	"github.com/structex/structex/internal/repository"
	"github.com/structex/structex/internal/storage"
)

// errSkipClaimed marks a file task another worker already picked up.
var errSkipClaimed = errors.New("skipped: file task already claimed")

// PreprocessService runs batch preprocessing tasks: it turns uploaded files
// into plain-text documents with bounded concurrency, live progress and
// cooperative cancellation.
type PreprocessService struct {
	preRepo  *repository.PreprocessRepository
	docRepo  *repository.DocumentRepository
	fileRepo *repository.FileRepository
	store    storage.BlobStore
	conv     *convert.Converter
	logger   *logger.Logger

	workers          int
	progressInterval time.Duration
	watcherInterval  time.Duration
}

// PreprocessOptions holds orchestration tuning knobs.
type PreprocessOptions struct {
	Workers          int
	ProgressInterval time.Duration
	WatcherInterval  time.Duration
}

// NewPreprocessService creates a PreprocessService.
// Parameters:
//   - preRepo: preprocessing repository.
//   - docRepo: document repository.
//   - fileRepo: file repository.
//   - store: blob store holding file payloads.
//   - conv: converter producing document text.
//   - log: logger instance.
//   - opts: orchestration tuning knobs.
// Returns:
//   - *PreprocessService: initialized service.
func NewPreprocessService(
	preRepo *repository.PreprocessRepository,
	docRepo *repository.DocumentRepository,
	fileRepo *repository.FileRepository,
	store storage.BlobStore,
	conv *convert.Converter,
	log *logger.Logger,
	opts *PreprocessOptions,
) *PreprocessService {
	workers := opts.Workers
	if workers == 0 {
		workers = 5
	}
	progressInterval := opts.ProgressInterval
	if progressInterval == 0 {
		progressInterval = 3 * time.Second
	}
	watcherInterval := opts.WatcherInterval
	if watcherInterval == 0 {
		watcherInterval = time.Second
	}
	return &PreprocessService{
		preRepo:          preRepo,
		docRepo:          docRepo,
		fileRepo:         fileRepo,
		store:            store,
		conv:             conv,
		logger:           log,
		workers:          workers,
		progressInterval: progressInterval,
		watcherInterval:  watcherInterval,
	}
}

func (s *PreprocessService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// CreateTask validates the inputs and registers a batch task with one
// pending file sub-task per input file. Structural problems (missing file,
// missing config) fail here, before any work is scheduled.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - configID: preprocessing config snapshot to apply.
//   - fileIDs: files to process.
//   - rollbackOnCancel: whether cancellation rolls back partial documents.
// Returns:
//   - *domain.PreprocessingTask: created task with pending file tasks.
//   - error: non-nil if validation or persistence fails.
func (s *PreprocessService) CreateTask(ctx context.Context, projectID, configID string, fileIDs []string, rollbackOnCancel bool) (*domain.PreprocessingTask, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("no files to process")
	}
	if _, err := s.preRepo.GetConfig(ctx, configID); err != nil {
		return nil, fmt.Errorf("preprocessing config %s not found: %w", configID, err)
	}
	files, err := s.fileRepo.GetByIDs(ctx, fileIDs)
	if err != nil {
		return nil, err
	}
	if len(files) != len(fileIDs) {
		found := make(map[string]bool, len(files))
		for _, f := range files {
			found[f.ID] = true
		}
		for _, id := range fileIDs {
			if !found[id] {
				return nil, fmt.Errorf("file %s not found", id)
			}
		}
	}

	task := &domain.PreprocessingTask{
		ID:               uuid.New().String(),
		ProjectID:        projectID,
		ConfigID:         configID,
		Status:           domain.StatusPending,
		TotalFiles:       len(files),
		RollbackOnCancel: rollbackOnCancel,
	}
	for _, f := range files {
		task.FileTasks = append(task.FileTasks, domain.FilePreprocessingTask{
			ID:       uuid.New().String(),
			FileID:   f.ID,
			FileName: f.Name,
			Status:   domain.StatusPending,
		})
	}
	if err := s.preRepo.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Cancel flags a running task for cancellation. Workers observe the flag
// within one watcher tick and stop.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - taskID: task to cancel.
//   - rollback: whether partial documents should be rolled back.
// Returns:
//   - error: non-nil if the update fails.
func (s *PreprocessService) Cancel(ctx context.Context, taskID string, rollback bool) error {
	return s.preRepo.MarkTaskCancelled(ctx, taskID, rollback)
}

// taskCounters tracks live progress with atomics so the collector, the
// progress ticker and the workers never contend on a lock.
type taskCounters struct {
	completed int64
	failed    int64
	cancelled int64
	inFlight  int64
}

// Run executes a batch task to completion. It claims the task, fans file
// tasks out over the worker pool, keeps progress fresh, watches for
// cancellation and finalizes the parent status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - taskID: task to run; must be pending.
// Returns:
//   - error: non-nil on structural failure; per-file failures are recorded
//     on the file tasks instead.
func (s *PreprocessService) Run(ctx context.Context, taskID string) error {
	claimed, err := s.preRepo.ClaimTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !claimed {
		s.log(ctx).WithField(logger.FieldTaskID, taskID).Warn("Task not pending, skipping run")
		return nil
	}

	task, err := s.preRepo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	cfg, err := s.preRepo.GetConfig(ctx, task.ConfigID)
	if err != nil {
		s.failTask(ctx, task, fmt.Sprintf("preprocessing config not found: %v", err))
		return err
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldTaskID: taskID,
		"total_files":      task.TotalFiles,
		"workers":          s.workers,
	}).Info("Starting preprocessing task")

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	counters := &taskCounters{}
	startedAt := time.Now()

	// Cancellation watcher: one tick of latency at most
	var watcherWG sync.WaitGroup
	watcherWG.Add(1)
	go func() {
		defer watcherWG.Done()
		ticker := time.NewTicker(s.watcherInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				cancelled, err := s.preRepo.IsTaskCancelled(ctx, taskID)
				if err == nil && cancelled {
					cancelRun()
					return
				}
			}
		}
	}()

	// Progress updater
	watcherWG.Add(1)
	go func() {
		defer watcherWG.Done()
		ticker := time.NewTicker(s.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.publishProgress(ctx, task, counters, startedAt)
			}
		}
	}()

	// Worker pool over the pending file tasks
	fileTasks := make(chan domain.FilePreprocessingTask, s.workers*2)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ft := range fileTasks {
				select {
				case <-runCtx.Done():
					continue
				default:
				}

				atomic.AddInt64(&counters.inFlight, 1)
				err := s.processFileTask(runCtx, task, cfg, &ft)
				atomic.AddInt64(&counters.inFlight, -1)

				switch {
				case err == nil:
					atomic.AddInt64(&counters.completed, 1)
				case errors.Is(err, errSkipClaimed):
					// Another run owns it; nothing to count
				case errors.Is(err, context.Canceled):
					atomic.AddInt64(&counters.cancelled, 1)
				default:
					atomic.AddInt64(&counters.failed, 1)
					s.log(ctx).WithFields(logger.Fields{
						logger.FieldTaskID: taskID,
						"file_task_id":     ft.ID,
						"file":             ft.FileName,
					}).WithError(err).Error("File task failed")
				}
			}
		}()
	}

	for _, ft := range task.FileTasks {
		if ft.Status != domain.StatusPending {
			continue
		}
		select {
		case fileTasks <- ft:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}
	}
	close(fileTasks)
	wg.Wait()
	cancelRun()
	watcherWG.Wait()

	return s.finalize(ctx, taskID, startedAt)
}

// processFileTask converts one file into documents. Conversion errors mark
// only this file task failed.
func (s *PreprocessService) processFileTask(ctx context.Context, task *domain.PreprocessingTask, cfg *domain.PreprocessingConfig, ft *domain.FilePreprocessingTask) error {
	claimed, err := s.preRepo.ClaimFileTask(ctx, ft.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return errSkipClaimed
	}

	start := time.Now()
	if err := s.convertFile(ctx, task, cfg, ft, start); err != nil {
		status := domain.StatusFailed
		msg := err.Error()
		if errors.Is(err, context.Canceled) {
			status = domain.StatusCancelled
			msg = "cancelled"
		}
		now := time.Now().UTC()
		_ = s.preRepo.UpdateFileTaskFields(ctx, ft.ID, map[string]interface{}{
			"status":          status,
			"error_message":   msg,
			"processing_time": time.Since(start).Seconds(),
			"completed_at":    now,
		})
		return err
	}
	return nil
}

func (s *PreprocessService) convertFile(ctx context.Context, task *domain.PreprocessingTask, cfg *domain.PreprocessingConfig, ft *domain.FilePreprocessingTask, start time.Time) error {
	file, err := s.fileRepo.GetByID(ctx, ft.FileID)
	if err != nil {
		return fmt.Errorf("file record missing: %w", err)
	}
	data, err := s.store.Load(ctx, file.UUID)
	if err != nil {
		return fmt.Errorf("failed to load file payload: %w", err)
	}

	parts, err := s.conv.Convert(ctx, file.Name, data, cfg)
	if err != nil {
		return err
	}

	created := 0
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := &domain.Document{
			ID:             uuid.New().String(),
			ProjectID:      task.ProjectID,
			OriginalFileID: file.ID,
			ConfigID:       task.ConfigID,
			FileTaskID:     &ft.ID,
			DocumentName:   part.Name,
			Text:           part.Text,
			Meta:           part.Meta,
		}
		inserted, err := s.docRepo.CreateIgnoreDuplicate(ctx, doc)
		if err != nil {
			return fmt.Errorf("failed to store document %q: %w", part.Name, err)
		}
		if inserted {
			created++
		}
	}

	now := time.Now().UTC()
	return s.preRepo.UpdateFileTaskFields(ctx, ft.ID, map[string]interface{}{
		"status":          domain.StatusCompleted,
		"progress":        1.0,
		"document_count":  created,
		"processing_time": time.Since(start).Seconds(),
		"completed_at":    now,
	})
}

// publishProgress writes the live progress view, including the ETA
// extrapolated from throughput so far.
func (s *PreprocessService) publishProgress(ctx context.Context, task *domain.PreprocessingTask, counters *taskCounters, startedAt time.Time) {
	completed := int(atomic.LoadInt64(&counters.completed))
	failed := int(atomic.LoadInt64(&counters.failed))
	cancelled := int(atomic.LoadInt64(&counters.cancelled))
	inFlight := int(atomic.LoadInt64(&counters.inFlight))

	eta := 0.0
	done := completed + failed + cancelled
	remaining := task.TotalFiles - done
	if completed > 0 && remaining > 0 {
		eta = time.Since(startedAt).Seconds() / float64(completed) * float64(remaining)
	}

	progress := domain.TaskProgress{
		ETASeconds:     eta,
		InProgress:     inFlight,
		TotalFiles:     task.TotalFiles,
		CompletedFiles: completed,
		FailedFiles:    failed,
		CancelledFiles: cancelled,
	}
	if err := s.preRepo.UpdateTaskFields(ctx, task.ID, map[string]interface{}{
		"progress":        progress,
		"processed_files": completed,
		"failed_files":    failed,
	}); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to publish progress")
	}
}

// finalize settles the remaining file tasks and derives the parent status.
func (s *PreprocessService) finalize(ctx context.Context, taskID string, startedAt time.Time) error {
	task, err := s.preRepo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	// Cancellation settles every non-terminal file task
	if task.IsCancelled {
		for _, ft := range task.FileTasks {
			if ft.Status.Terminal() {
				continue
			}
			now := time.Now().UTC()
			_ = s.preRepo.UpdateFileTaskFields(ctx, ft.ID, map[string]interface{}{
				"status":       domain.StatusCancelled,
				"completed_at": now,
			})
		}
		task, err = s.preRepo.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
	}

	var completed, failed, cancelled int
	for _, ft := range task.FileTasks {
		switch ft.Status {
		case domain.StatusCompleted:
			completed++
		case domain.StatusFailed:
			failed++
		case domain.StatusCancelled:
			cancelled++
		}
	}

	status := domain.StatusCompleted
	message := fmt.Sprintf("processed %d files", completed)
	switch {
	case task.IsCancelled:
		status = domain.StatusCancelled
		message = s.applyRollback(ctx, task, completed)
	case failed == len(task.FileTasks):
		status = domain.StatusFailed
		message = fmt.Sprintf("all %d files failed", failed)
	case failed > 0 || cancelled > 0:
		status = domain.StatusFailed
		message = fmt.Sprintf("%d completed, %d failed, %d cancelled", completed, failed, cancelled)
	}

	now := time.Now().UTC()
	progress := domain.TaskProgress{
		TotalFiles:     task.TotalFiles,
		CompletedFiles: completed,
		FailedFiles:    failed,
		CancelledFiles: cancelled,
	}
	err = s.preRepo.UpdateTaskFields(ctx, taskID, map[string]interface{}{
		"status":          status,
		"message":         message,
		"processed_files": completed,
		"failed_files":    failed,
		"skipped_files":   cancelled,
		"progress":        progress,
		"completed_at":    now,
	})
	if err != nil {
		return err
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldTaskID: taskID,
		"status":           status,
		"completed":        completed,
		"failed":           failed,
		"cancelled":        cancelled,
		"duration":         time.Since(startedAt).String(),
	}).Info("Preprocessing task finalized")
	return nil
}

// applyRollback honors the rollback_on_cancel policy and returns the final
// task message describing what happened to partial output.
func (s *PreprocessService) applyRollback(ctx context.Context, task *domain.PreprocessingTask, completed int) string {
	if !task.RollbackOnCancel {
		return fmt.Sprintf("cancelled; %d completed files kept their documents", completed)
	}

	var removed int64
	for _, ft := range task.FileTasks {
		if ft.Status != domain.StatusCompleted {
			continue
		}
		n, err := s.docRepo.DeleteByFileTask(ctx, ft.ID)
		if err != nil {
			s.log(ctx).WithFields(logger.Fields{
				"file_task_id": ft.ID,
			}).WithError(err).Error("Failed to roll back documents")
			continue
		}
		removed += n
	}
	return fmt.Sprintf("cancelled; rolled back %d documents from %d completed files", removed, completed)
}

func (s *PreprocessService) failTask(ctx context.Context, task *domain.PreprocessingTask, message string) {
	now := time.Now().UTC()
	_ = s.preRepo.UpdateTaskFields(ctx, task.ID, map[string]interface{}{
		"status":       domain.StatusFailed,
		"message":      message,
		"completed_at": now,
	})
}
