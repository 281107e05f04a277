package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/logger"
	"github.com/structex/structex/internal/repository"
)

// workerLostMessage marks work whose background job died without finalizing.
const workerLostMessage = "worker process crashed or was killed"

// Sweeper fails orphaned work: tasks and trials whose worker died without
// finalizing. It runs periodically from the job queue.
type Sweeper struct {
	preRepo    *repository.PreprocessRepository
	trialRepo  *repository.TrialRepository
	logger     *logger.Logger
	stallAfter time.Duration
}

// NewSweeper creates a Sweeper.
// Parameters:
//   - preRepo: preprocessing repository.
//   - trialRepo: trial repository.
//   - log: logger instance.
//   - stallAfter: how long without updates marks a run as lost.
// Returns:
//   - *Sweeper: initialized sweeper.
func NewSweeper(preRepo *repository.PreprocessRepository, trialRepo *repository.TrialRepository, log *logger.Logger, stallAfter time.Duration) *Sweeper {
	if stallAfter == 0 {
		stallAfter = 30 * time.Minute
	}
	return &Sweeper{
		preRepo:    preRepo,
		trialRepo:  trialRepo,
		logger:     log,
		stallAfter: stallAfter,
	}
}

func (s *Sweeper) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Sweep finds stalled preprocessing tasks and trials and fails them. Safe
// to run concurrently with live work: live runs keep their updated_at fresh
// through progress and heartbeat writes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: non-nil if the stall queries fail.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.stallAfter)

	if err := s.sweepTasks(ctx, cutoff); err != nil {
		return err
	}
	return s.sweepTrials(ctx, cutoff)
}

// HandleJobFailure settles the row behind a queue job that exhausted its
// retries. Job names encode the target as "<kind>:<id>"; rows that already
// reached a terminal state are left alone.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobName: failed job's name.
//   - jobErr: the error that exhausted the retries.
func (s *Sweeper) HandleJobFailure(ctx context.Context, jobName string, jobErr error) {
	kind, id, ok := strings.Cut(jobName, ":")
	if !ok {
		return
	}
	switch kind {
	case "preprocess":
		s.failLostTask(ctx, id, jobErr)
	case "extract":
		s.failLostTrial(ctx, id, jobErr)
	}
}

func (s *Sweeper) failLostTask(ctx context.Context, taskID string, jobErr error) {
	task, err := s.preRepo.GetTask(ctx, taskID)
	if err != nil || task.Status.Terminal() {
		return
	}

	now := time.Now().UTC()
	for _, ft := range task.FileTasks {
		if ft.Status.Terminal() {
			continue
		}
		_ = s.preRepo.UpdateFileTaskFields(ctx, ft.ID, map[string]interface{}{
			"status":        domain.StatusFailed,
			"error_message": workerLostMessage,
			"completed_at":  now,
		})
	}
	_ = s.preRepo.UpdateTaskFields(ctx, taskID, map[string]interface{}{
		"status":       domain.StatusFailed,
		"message":      workerLostMessage,
		"completed_at": now,
	})

	s.log(ctx).WithField(logger.FieldTaskID, taskID).
		WithError(jobErr).Warn("Marked lost preprocessing task failed")
}

func (s *Sweeper) failLostTrial(ctx context.Context, trialID string, jobErr error) {
	trial, err := s.trialRepo.GetTrial(ctx, trialID)
	if err != nil || trial.Status.Terminal() {
		return
	}

	now := time.Now().UTC()
	_ = s.trialRepo.UpdateTrialFields(ctx, trialID, map[string]interface{}{
		"status": domain.StatusFailed,
		"meta": domain.TrialMeta{
			DocsDone: trial.Meta.DocsDone,
			Failures: map[string]string{"_trial": workerLostMessage},
		},
		"finished_at": now,
	})

	s.log(ctx).WithField(logger.FieldTrialID, trialID).
		WithError(jobErr).Warn("Marked lost trial failed")
}

func (s *Sweeper) sweepTasks(ctx context.Context, cutoff time.Time) error {
	tasks, err := s.preRepo.ListStalledTasks(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		fileTasks, err := s.preRepo.ListFileTasks(ctx, task.ID)
		if err != nil {
			return err
		}

		var completed, failed, cancelled int
		now := time.Now().UTC()
		for _, ft := range fileTasks {
			switch ft.Status {
			case domain.StatusCompleted:
				completed++
				continue
			case domain.StatusFailed:
				failed++
				continue
			case domain.StatusCancelled:
				cancelled++
				continue
			}
			// Still pending or in_progress: the worker is gone
			failed++
			_ = s.preRepo.UpdateFileTaskFields(ctx, ft.ID, map[string]interface{}{
				"status":        domain.StatusFailed,
				"error_message": "worker lost",
				"completed_at":  now,
			})
		}

		message := fmt.Sprintf("worker lost: %d completed, %d failed, %d cancelled", completed, failed, cancelled)
		_ = s.preRepo.UpdateTaskFields(ctx, task.ID, map[string]interface{}{
			"status":          domain.StatusFailed,
			"message":         message,
			"processed_files": completed,
			"failed_files":    failed,
			"completed_at":    now,
		})

		s.log(ctx).WithFields(logger.Fields{
			logger.FieldTaskID: task.ID,
			"stalled_since":    task.UpdatedAt,
		}).Warn("Swept stalled preprocessing task")
	}
	return nil
}

func (s *Sweeper) sweepTrials(ctx context.Context, cutoff time.Time) error {
	trials, err := s.trialRepo.ListStalledTrials(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, trial := range trials {
		results, err := s.trialRepo.ResultDocumentIDs(ctx, trial.ID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		_ = s.trialRepo.UpdateTrialFields(ctx, trial.ID, map[string]interface{}{
			"status": domain.StatusFailed,
			"meta": domain.TrialMeta{
				DocsDone: len(results),
				Failures: map[string]string{"_trial": "worker lost"},
			},
			"finished_at": now,
		})

		s.log(ctx).WithFields(logger.Fields{
			logger.FieldTrialID: trial.ID,
			"stalled_since":     trial.UpdatedAt,
		}).Warn("Swept stalled trial")
	}
	return nil
}
