package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/structex/structex/internal/config"
	"github.com/structex/structex/internal/domain"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	return db
}

func createProject(t *testing.T, db *gorm.DB) string {
	t.Helper()
	id := uuid.New().String()
	if err := db.Create(&domain.Project{ID: id, Name: "project-" + id}).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	return id
}

func TestInsertResult_Idempotent(t *testing.T) {
	db := testDB(t)
	repo := NewTrialRepository(db)
	ctx := context.Background()
	projectID := createProject(t, db)

	trial := &domain.Trial{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		SchemaID:    "s1",
		PromptID:    "p1",
		DocumentIDs: domain.StringArray{"d1"},
		Model:       "gpt-test",
	}
	if err := repo.CreateTrial(ctx, trial); err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}

	first := &domain.TrialResult{
		ID:         uuid.New().String(),
		TrialID:    trial.ID,
		DocumentID: "d1",
		Result:     domain.JSONMap{"vendor": "acme"},
	}
	inserted, err := repo.InsertResult(ctx, first)
	if err != nil || !inserted {
		t.Fatalf("first InsertResult = %v, %v; want inserted", inserted, err)
	}

	duplicate := &domain.TrialResult{
		ID:         uuid.New().String(),
		TrialID:    trial.ID,
		DocumentID: "d1",
		Result:     domain.JSONMap{"vendor": "other"},
	}
	inserted, err = repo.InsertResult(ctx, duplicate)
	if err != nil {
		t.Fatalf("duplicate InsertResult: %v", err)
	}
	if inserted {
		t.Error("duplicate (trial, document) pair should not insert")
	}

	results, err := repo.ListResults(ctx, trial.ID)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Result["vendor"] != "acme" {
		t.Errorf("first result should survive a re-run: %v", results[0].Result)
	}

	ids, err := repo.ResultDocumentIDs(ctx, trial.ID)
	if err != nil {
		t.Fatalf("ResultDocumentIDs: %v", err)
	}
	if _, ok := ids["d1"]; !ok || len(ids) != 1 {
		t.Errorf("ResultDocumentIDs = %v", ids)
	}
}

func TestCreateIgnoreDuplicate_Document(t *testing.T) {
	db := testDB(t)
	repo := NewDocumentRepository(db)
	ctx := context.Background()
	projectID := createProject(t, db)

	base := domain.Document{
		ProjectID:      projectID,
		OriginalFileID: "f1",
		ConfigID:       "c1",
		DocumentName:   "report.pdf:page:1",
		Text:           "original text",
	}

	first := base
	first.ID = uuid.New().String()
	inserted, err := repo.CreateIgnoreDuplicate(ctx, &first)
	if err != nil || !inserted {
		t.Fatalf("first CreateIgnoreDuplicate = %v, %v; want inserted", inserted, err)
	}

	second := base
	second.ID = uuid.New().String()
	second.Text = "reprocessed text"
	inserted, err = repo.CreateIgnoreDuplicate(ctx, &second)
	if err != nil {
		t.Fatalf("duplicate CreateIgnoreDuplicate: %v", err)
	}
	if inserted {
		t.Error("duplicate (file, config, name) identity should not insert")
	}

	docs, err := repo.ListByProject(ctx, projectID, 10, 0)
	if err != nil {
		t.Fatalf("ListByProject: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	if docs[0].Text != "original text" {
		t.Errorf("first document should survive: %q", docs[0].Text)
	}
}

func TestFindMatchingConfig(t *testing.T) {
	db := testDB(t)
	repo := NewPreprocessRepository(db)
	ctx := context.Background()
	projectID := createProject(t, db)

	stored := &domain.PreprocessingConfig{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		Name:          "first",
		PDFBackend:    "native",
		OCRBackend:    "vision",
		UseOCR:        true,
		OCRLanguages:  domain.StringArray{"en", "de"},
		TableStrategy: domain.StrategyFullDocument,
		TableSettings: domain.JSONMap{"case_id_column": "id"},
	}
	if err := repo.CreateConfig(ctx, stored); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	// Same effective settings, different name, languages reordered
	candidate := &domain.PreprocessingConfig{
		ProjectID:     projectID,
		Name:          "second",
		PDFBackend:    "native",
		OCRBackend:    "vision",
		UseOCR:        true,
		OCRLanguages:  domain.StringArray{"de", "en"},
		TableStrategy: domain.StrategyFullDocument,
		TableSettings: domain.JSONMap{"case_id_column": "id"},
	}
	match, err := repo.FindMatchingConfig(ctx, projectID, candidate)
	if err != nil {
		t.Fatalf("FindMatchingConfig: %v", err)
	}
	if match == nil || match.ID != stored.ID {
		t.Errorf("expected the stored config to match, got %+v", match)
	}

	// A differing scalar field breaks the match
	differs := *candidate
	differs.UseOCR = false
	if match, err := repo.FindMatchingConfig(ctx, projectID, &differs); err != nil || match != nil {
		t.Errorf("use_ocr mismatch should not match: %+v, %v", match, err)
	}

	// Differing table settings break the match
	differs = *candidate
	differs.TableSettings = domain.JSONMap{"case_id_column": "case"}
	if match, err := repo.FindMatchingConfig(ctx, projectID, &differs); err != nil || match != nil {
		t.Errorf("table settings mismatch should not match: %+v, %v", match, err)
	}

	// A config never matches itself
	self := *stored
	if match, err := repo.FindMatchingConfig(ctx, projectID, &self); err != nil || match != nil {
		t.Errorf("config should not match itself: %+v, %v", match, err)
	}
}
