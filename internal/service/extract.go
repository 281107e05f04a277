package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/llm"
	"github.com/structex/structex/internal/logger"
	"github.com/structex/structex/internal/repository"
)

// ExtractService runs extraction trials: one structured LLM call per
// document, all in flight at once, with heartbeat progress and cooperative
// cancellation.
type ExtractService struct {
	trialRepo *repository.TrialRepository
	docRepo   *repository.DocumentRepository
	logger    *logger.Logger

	defaultAPIKey     string
	defaultBaseURL    string
	requestTimeout    time.Duration
	heartbeatInterval time.Duration
	cancelInterval    time.Duration
}

// ExtractOptions holds orchestration tuning knobs.
type ExtractOptions struct {
	DefaultAPIKey     string
	DefaultBaseURL    string
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	CancelInterval    time.Duration
}

// NewExtractService creates an ExtractService.
// Parameters:
//   - trialRepo: trial repository.
//   - docRepo: document repository.
//   - log: logger instance.
//   - opts: orchestration tuning knobs.
// Returns:
//   - *ExtractService: initialized service.
func NewExtractService(trialRepo *repository.TrialRepository, docRepo *repository.DocumentRepository, log *logger.Logger, opts *ExtractOptions) *ExtractService {
	heartbeat := opts.HeartbeatInterval
	if heartbeat == 0 {
		heartbeat = 5 * time.Second
	}
	cancelInterval := opts.CancelInterval
	if cancelInterval == 0 {
		cancelInterval = time.Second
	}
	return &ExtractService{
		trialRepo:         trialRepo,
		docRepo:           docRepo,
		logger:            log,
		defaultAPIKey:     opts.DefaultAPIKey,
		defaultBaseURL:    opts.DefaultBaseURL,
		requestTimeout:    opts.RequestTimeout,
		heartbeatInterval: heartbeat,
		cancelInterval:    cancelInterval,
	}
}

func (s *ExtractService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// CreateTrial validates the inputs and registers a pending trial. The
// prompt must carry the content token and the schema must compile; both are
// checked here so a broken trial never reaches the run loop.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trial: trial to register; ID and status are set here.
// Returns:
//   - error: non-nil if validation or persistence fails.
func (s *ExtractService) CreateTrial(ctx context.Context, trial *domain.Trial) error {
	if len(trial.DocumentIDs) == 0 {
		return fmt.Errorf("trial has no documents")
	}
	schema, err := s.trialRepo.GetSchema(ctx, trial.SchemaID)
	if err != nil {
		return fmt.Errorf("schema %s not found: %w", trial.SchemaID, err)
	}
	if err := llm.CheckSchema(map[string]interface{}(schema.Definition)); err != nil {
		return fmt.Errorf("schema is not usable for extraction: %w", err)
	}
	prompt, err := s.trialRepo.GetPrompt(ctx, trial.PromptID)
	if err != nil {
		return fmt.Errorf("prompt %s not found: %w", trial.PromptID, err)
	}
	if err := prompt.Validate(); err != nil {
		return err
	}
	docs, err := s.docRepo.GetByIDs(ctx, trial.DocumentIDs)
	if err != nil {
		return err
	}
	if len(docs) != len(trial.DocumentIDs) {
		return fmt.Errorf("trial references %d documents, found %d", len(trial.DocumentIDs), len(docs))
	}

	trial.ID = uuid.New().String()
	trial.Status = domain.StatusPending
	return s.trialRepo.CreateTrial(ctx, trial)
}

// Cancel flags a running trial for cancellation.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trialID: trial to cancel.
// Returns:
//   - error: non-nil if the update fails.
func (s *ExtractService) Cancel(ctx context.Context, trialID string) error {
	return s.trialRepo.MarkTrialCancelled(ctx, trialID)
}

// Run executes a trial to completion: one extraction per document, skipping
// documents that already have a stored result.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trialID: trial to run; must be pending.
// Returns:
//   - error: non-nil on structural failure; per-document failures land in
//     the trial's failures map instead.
func (s *ExtractService) Run(ctx context.Context, trialID string) error {
	claimed, err := s.trialRepo.ClaimTrial(ctx, trialID)
	if err != nil {
		return err
	}
	if !claimed {
		s.log(ctx).WithField(logger.FieldTrialID, trialID).Warn("Trial not pending, skipping run")
		return nil
	}

	trial, err := s.trialRepo.GetTrial(ctx, trialID)
	if err != nil {
		return err
	}
	schema, err := s.trialRepo.GetSchema(ctx, trial.SchemaID)
	if err != nil {
		return s.failTrial(ctx, trialID, fmt.Sprintf("schema not found: %v", err))
	}
	prompt, err := s.trialRepo.GetPrompt(ctx, trial.PromptID)
	if err != nil {
		return s.failTrial(ctx, trialID, fmt.Sprintf("prompt not found: %v", err))
	}
	docs, err := s.docRepo.GetByIDs(ctx, trial.DocumentIDs)
	if err != nil {
		return err
	}
	docsByID := make(map[string]*domain.Document, len(docs))
	for i := range docs {
		docsByID[docs[i].ID] = &docs[i]
	}

	client := s.clientFor(trial)

	// Probe first so a dead key or model fails the whole run in one call
	// instead of once per document
	if err := client.Probe(ctx, trial.Model); err != nil {
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) && apiErr.Kind.Fatal() {
			return s.failTrial(ctx, trialID, fmt.Sprintf("model probe failed: %v", err))
		}
		s.log(ctx).WithField(logger.FieldTrialID, trialID).WithError(err).Warn("Model probe failed, continuing")
	}

	existing, err := s.trialRepo.ResultDocumentIDs(ctx, trialID)
	if err != nil {
		return err
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldTrialID: trialID,
		"model":             trial.Model,
		"documents":         len(trial.DocumentIDs),
		"already_done":      len(existing),
	}).Info("Starting extraction trial")

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var (
		done       int64
		failuresMu sync.Mutex
		failures   = make(map[string]string)
	)
	recordFailure := func(docID, reason string) {
		failuresMu.Lock()
		failures[docID] = reason
		failuresMu.Unlock()
	}

	startedAt := time.Now()

	// Cancellation watcher
	var watcherWG sync.WaitGroup
	watcherWG.Add(1)
	go func() {
		defer watcherWG.Done()
		ticker := time.NewTicker(s.cancelInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				cancelled, err := s.trialRepo.IsTrialCancelled(ctx, trialID)
				if err == nil && cancelled {
					cancelRun()
					return
				}
			}
		}
	}()

	// Heartbeat: progress meta plus updated_at bump for the sweeper
	total := len(trial.DocumentIDs)
	watcherWG.Add(1)
	go func() {
		defer watcherWG.Done()
		ticker := time.NewTicker(s.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d := int(atomic.LoadInt64(&done))
				eta := 0.0
				if d > 0 && d < total {
					eta = time.Since(startedAt).Seconds() / float64(d) * float64(total-d)
				}
				_ = s.trialRepo.UpdateTrialFields(ctx, trialID, map[string]interface{}{
					"meta": domain.TrialMeta{ETASeconds: eta, DocsDone: d},
				})
			}
		}
	}()

	// LLM latency dominates, so every document goes in flight at once; the
	// client's connection pool is the only cap
	var wg sync.WaitGroup
	for _, docID := range trial.DocumentIDs {
		if _, ok := existing[docID]; ok {
			atomic.AddInt64(&done, 1)
			continue
		}
		doc, ok := docsByID[docID]
		if !ok {
			recordFailure(docID, "document not found")
			continue
		}

		wg.Add(1)
		go func(doc *domain.Document) {
			defer wg.Done()

			if runCtx.Err() != nil {
				recordFailure(doc.ID, "cancelled")
				return
			}

			result, err := s.extractDocument(runCtx, client, trial, schema, prompt, doc)
			if err != nil {
				if runCtx.Err() != nil {
					recordFailure(doc.ID, "cancelled")
					return
				}
				recordFailure(doc.ID, err.Error())

				var apiErr *llm.APIError
				if errors.As(err, &apiErr) && apiErr.Kind.Fatal() {
					// Every remaining document would fail identically
					cancelRun()
				}
				return
			}

			inserted, err := s.trialRepo.InsertResult(ctx, &domain.TrialResult{
				ID:         uuid.New().String(),
				TrialID:    trial.ID,
				DocumentID: doc.ID,
				Result:     result,
			})
			if err != nil {
				recordFailure(doc.ID, fmt.Sprintf("failed to store result: %v", err))
				return
			}
			if !inserted {
				s.log(ctx).WithFields(logger.Fields{
					logger.FieldTrialID:    trial.ID,
					logger.FieldDocumentID: doc.ID,
				}).Debug("Result already stored, skipped duplicate")
			}
			atomic.AddInt64(&done, 1)
		}(doc)
	}
	wg.Wait()
	cancelRun()
	watcherWG.Wait()

	return s.finalize(ctx, trialID, total, failures)
}

func (s *ExtractService) clientFor(trial *domain.Trial) *llm.Client {
	apiKey := trial.APIKey
	if apiKey == "" {
		apiKey = s.defaultAPIKey
	}
	baseURL := trial.BaseURL
	if baseURL == "" {
		baseURL = s.defaultBaseURL
	}
	return llm.NewClient(&llm.ClientConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Timeout: s.requestTimeout,
	})
}

// extractDocument composes the prompts and runs one schema-constrained
// completion. No retries here: a failure becomes a failures-map entry.
func (s *ExtractService) extractDocument(ctx context.Context, client *llm.Client, trial *domain.Trial, schema *domain.Schema, prompt *domain.Prompt, doc *domain.Document) (domain.JSONMap, error) {
	systemPrompt := strings.ReplaceAll(prompt.SystemPrompt, domain.DocumentContentToken, doc.Text)
	userPrompt := strings.ReplaceAll(prompt.UserPrompt, domain.DocumentContentToken, doc.Text)

	result, err := client.Extract(ctx, &llm.ExtractRequest{
		Model:        trial.Model,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Schema:       map[string]interface{}(schema.Definition),
		Options:      map[string]interface{}(trial.AdvancedOptions),
	})
	if err != nil {
		return nil, err
	}

	if err := llm.ValidateAgainstSchema(map[string]interface{}(schema.Definition), result); err != nil {
		return nil, fmt.Errorf("model output failed schema validation: %w", err)
	}
	return domain.JSONMap(result), nil
}

// finalize derives the terminal trial status from stored results and the
// failures map.
func (s *ExtractService) finalize(ctx context.Context, trialID string, total int, failures map[string]string) error {
	trial, err := s.trialRepo.GetTrial(ctx, trialID)
	if err != nil {
		return err
	}
	results, err := s.trialRepo.ResultDocumentIDs(ctx, trialID)
	if err != nil {
		return err
	}
	done := len(results)

	status := domain.StatusFailed
	switch {
	case trial.IsCancelled:
		status = domain.StatusCancelled
	case done == total && len(failures) == 0:
		status = domain.StatusCompleted
	}

	now := time.Now().UTC()
	meta := domain.TrialMeta{DocsDone: done}
	if len(failures) > 0 {
		meta.Failures = failures
	}
	err = s.trialRepo.UpdateTrialFields(ctx, trialID, map[string]interface{}{
		"status":      status,
		"meta":        meta,
		"finished_at": now,
	})
	if err != nil {
		return err
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldTrialID: trialID,
		"status":            status,
		"done":              done,
		"total":             total,
		"failures":          len(failures),
	}).Info("Extraction trial finalized")
	return nil
}

func (s *ExtractService) failTrial(ctx context.Context, trialID, message string) error {
	now := time.Now().UTC()
	_ = s.trialRepo.UpdateTrialFields(ctx, trialID, map[string]interface{}{
		"status":      domain.StatusFailed,
		"meta":        domain.TrialMeta{Failures: map[string]string{"_trial": message}},
		"finished_at": now,
	})
	return fmt.Errorf("%s", message)
}
