package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/structex/structex/internal/config"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/logger"
	"github.com/structex/structex/internal/repository"
)

func sweeperFixture(t *testing.T) (*Sweeper, *repository.PreprocessRepository, *repository.TrialRepository, string) {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	projectID := uuid.New().String()
	if err := db.Create(&domain.Project{ID: projectID, Name: "project-" + projectID}).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}

	preRepo := repository.NewPreprocessRepository(db)
	trialRepo := repository.NewTrialRepository(db)
	return NewSweeper(preRepo, trialRepo, logger.New(nil), 0), preRepo, trialRepo, projectID
}

func TestHandleJobFailure_Preprocess(t *testing.T) {
	s, preRepo, _, projectID := sweeperFixture(t)
	ctx := context.Background()

	task := &domain.PreprocessingTask{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		ConfigID:   "cfg1",
		Status:     domain.StatusInProgress,
		TotalFiles: 1,
		FileTasks: []domain.FilePreprocessingTask{{
			ID:       uuid.New().String(),
			FileID:   "f1",
			FileName: "a.pdf",
			Status:   domain.StatusInProgress,
		}},
	}
	if err := preRepo.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	s.HandleJobFailure(ctx, "preprocess:"+task.ID, errors.New("boom"))

	got, err := preRepo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Errorf("task status = %v, want failed", got.Status)
	}
	if got.Message != workerLostMessage {
		t.Errorf("task message = %q, want %q", got.Message, workerLostMessage)
	}
	if got.CompletedAt == nil {
		t.Error("task should carry a completion timestamp")
	}
	if len(got.FileTasks) != 1 || got.FileTasks[0].Status != domain.StatusFailed {
		t.Errorf("file tasks = %+v, want failed", got.FileTasks)
	}
	if got.FileTasks[0].ErrorMessage != workerLostMessage {
		t.Errorf("file task error = %q", got.FileTasks[0].ErrorMessage)
	}
}

func TestHandleJobFailure_Extract(t *testing.T) {
	s, _, trialRepo, projectID := sweeperFixture(t)
	ctx := context.Background()

	trial := &domain.Trial{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		SchemaID:    "s1",
		PromptID:    "p1",
		DocumentIDs: domain.StringArray{"d1"},
		Model:       "gpt-test",
		Status:      domain.StatusInProgress,
	}
	if err := trialRepo.CreateTrial(ctx, trial); err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}

	s.HandleJobFailure(ctx, "extract:"+trial.ID, errors.New("boom"))

	got, err := trialRepo.GetTrial(ctx, trial.ID)
	if err != nil {
		t.Fatalf("GetTrial: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Errorf("trial status = %v, want failed", got.Status)
	}
	if got.Meta.Failures["_trial"] != workerLostMessage {
		t.Errorf("trial failure = %q, want %q", got.Meta.Failures["_trial"], workerLostMessage)
	}
	if got.FinishedAt == nil {
		t.Error("trial should carry a finish timestamp")
	}
}

func TestHandleJobFailure_LeavesTerminalWork(t *testing.T) {
	s, preRepo, _, projectID := sweeperFixture(t)
	ctx := context.Background()

	task := &domain.PreprocessingTask{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		ConfigID:  "cfg1",
		Status:    domain.StatusCompleted,
		Message:   "processed 3 files",
	}
	if err := preRepo.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	s.HandleJobFailure(ctx, "preprocess:"+task.ID, errors.New("boom"))

	got, err := preRepo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.Message != "processed 3 files" {
		t.Errorf("terminal task was touched: %+v", got)
	}
}

func TestHandleJobFailure_IgnoresUnknownJobNames(t *testing.T) {
	s, _, _, _ := sweeperFixture(t)
	ctx := context.Background()

	// Neither should panic or write anything
	s.HandleJobFailure(ctx, "no-separator", errors.New("boom"))
	s.HandleJobFailure(ctx, "sweep:ignored", errors.New("boom"))
	s.HandleJobFailure(ctx, "preprocess:does-not-exist", errors.New("boom"))
}
