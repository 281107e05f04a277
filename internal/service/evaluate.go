package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/structex/structex/internal/domain"
	"github.com/structex/structex/internal/logger"
	"github.com/structex/structex/internal/repository"
)

// EvaluateService scores a completed trial against a ground truth.
type EvaluateService struct {
	trialRepo  *repository.TrialRepository
	gtRepo     *repository.GroundTruthRepository
	evalRepo   *repository.EvaluationRepository
	docRepo    *repository.DocumentRepository
	fileRepo   *repository.FileRepository
	gtService  *GroundTruthService
	comparator *Comparator
	logger     *logger.Logger
	workers    int
}

// EvaluateConfig holds evaluation tuning knobs.
type EvaluateConfig struct {
	Workers        int
	FuzzyThreshold int
	NumericTol     float64
}

// NewEvaluateService creates an EvaluateService.
// Parameters:
//   - trialRepo: trial repository.
//   - gtRepo: ground truth repository.
//   - evalRepo: evaluation repository.
//   - docRepo: document repository.
//   - fileRepo: file repository.
//   - gtService: ground truth service for record access.
//   - log: logger instance.
//   - cfg: evaluation tuning knobs.
// Returns:
//   - *EvaluateService: initialized service.
func NewEvaluateService(
	trialRepo *repository.TrialRepository,
	gtRepo *repository.GroundTruthRepository,
	evalRepo *repository.EvaluationRepository,
	docRepo *repository.DocumentRepository,
	fileRepo *repository.FileRepository,
	gtService *GroundTruthService,
	log *logger.Logger,
	cfg *EvaluateConfig,
) *EvaluateService {
	workers := cfg.Workers
	if workers == 0 {
		workers = 5
	}
	return &EvaluateService{
		trialRepo:  trialRepo,
		gtRepo:     gtRepo,
		evalRepo:   evalRepo,
		docRepo:    docRepo,
		fileRepo:   fileRepo,
		gtService:  gtService,
		comparator: NewComparator(cfg.FuzzyThreshold, cfg.NumericTol),
		logger:     log,
		workers:    workers,
	}
}

func (s *EvaluateService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// docInfo is the primitive projection of a document handed to workers.
type docInfo struct {
	DocumentID   string
	DocumentName string
	FileName     string
	Exists       bool
}

// docJob is one unit of parallel work: a document identity, its prediction
// and its resolved ground-truth record. No persistence handles cross this
// boundary.
type docJob struct {
	DocumentID string
	GTKey      string
	Prediction map[string]interface{}
	GTRecord   map[string]interface{}
}

// fieldVerdict is one field comparison result inside a document.
type fieldVerdict struct {
	Field      string
	GTStr      string
	PredStr    string
	IsCorrect  bool
	ErrorType  string
	Confidence float64
	Detail     string
}

// docVerdict is the full evaluation of one document.
type docVerdict struct {
	DocumentID string
	Matched    bool
	Fields     []fieldVerdict
}

// Run evaluates a trial against a ground truth and persists the result.
// When force is false and an evaluation for the pair already exists, the
// stored one is returned untouched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trialID: completed trial to score.
//   - groundTruthID: ground truth to score against.
//   - force: recompute even if a stored evaluation exists.
// Returns:
//   - *domain.Evaluation: stored evaluation.
//   - error: non-nil if prerequisites fail or persistence fails.
func (s *EvaluateService) Run(ctx context.Context, trialID, groundTruthID string, force bool) (*domain.Evaluation, error) {
	if !force {
		if existing, err := s.evalRepo.GetByPair(ctx, trialID, groundTruthID); err == nil {
			return existing, nil
		}
	}

	// Phase A: prerequisites, collected so the caller sees every problem at
	// once instead of fixing them one by one
	var reasons []string

	trial, err := s.trialRepo.GetTrial(ctx, trialID)
	if err != nil {
		reasons = append(reasons, fmt.Sprintf("trial %s not found", trialID))
	} else if trial.Status != domain.StatusCompleted {
		reasons = append(reasons, fmt.Sprintf("trial is %s, needs completed", trial.Status))
	}

	gt, err := s.gtRepo.GetByID(ctx, groundTruthID)
	if err != nil {
		reasons = append(reasons, fmt.Sprintf("ground truth %s not found", groundTruthID))
	}

	var results []domain.TrialResult
	if trial != nil {
		results, err = s.trialRepo.ListResults(ctx, trialID)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			reasons = append(reasons, "trial has no results")
		}
	}

	var mappings []domain.FieldMapping
	if gt != nil && trial != nil {
		mappings, err = s.gtRepo.ListMappings(ctx, groundTruthID, trial.SchemaID)
		if err != nil {
			return nil, err
		}
		if len(mappings) == 0 {
			reasons = append(reasons, "no field mappings for this ground truth and schema")
		}
	}

	var records map[string]map[string]interface{}
	if gt != nil {
		records, err = s.gtService.Records(ctx, gt)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("ground truth data not parseable: %v", err))
		}
	}

	if len(reasons) > 0 {
		return nil, fmt.Errorf("evaluation prerequisites failed: %s", strings.Join(reasons, "; "))
	}

	// Phase C: preload every referenced document into primitive form
	docs, err := s.preloadDocuments(ctx, results)
	if err != nil {
		return nil, err
	}

	// Phase B: key consistency check
	keyIndex := buildKeyIndex(records)
	resolved := make(map[string]string, len(results))
	var unmatched []string
	for _, res := range results {
		info := docs[res.DocumentID]
		key := resolveGTKey(info, keyIndex)
		if key == "" {
			unmatched = append(unmatched, displayName(info))
			continue
		}
		resolved[res.DocumentID] = key
	}

	matchRate := float64(len(resolved)) / float64(len(results))
	if matchRate < 0.5 {
		return nil, fmt.Errorf("only %.0f%% of documents matched a ground truth key: unmatched %s; available keys %s",
			matchRate*100, sampleList(unmatched, 3), sampleList(keyList(records), 5))
	}

	message := ""
	if matchRate < 0.8 {
		message = fmt.Sprintf("low key match rate %.0f%%: unmatched %s", matchRate*100, sampleList(unmatched, 3))
		s.log(ctx).WithFields(logger.Fields{
			"trial_id":   trialID,
			"match_rate": matchRate,
		}).Warn("Low ground truth key match rate")
	}

	// Phase D: parallel per-document comparison over primitive payloads
	started := time.Now().UTC()
	verdicts := s.evaluateDocuments(ctx, results, resolved, records, mappings)

	// Phase E: aggregate and persist from the coordinator only
	eval := s.aggregate(trial, gt, verdicts, mappings, len(results), len(resolved))
	eval.Message = message
	eval.StartedAt = &started
	completed := time.Now().UTC()
	eval.CompletedAt = &completed

	if err := s.evalRepo.Upsert(ctx, eval); err != nil {
		return nil, fmt.Errorf("failed to store evaluation: %w", err)
	}
	if err := s.evalRepo.InsertMetrics(ctx, buildMetricRows(eval.ID, verdicts)); err != nil {
		return nil, fmt.Errorf("failed to store evaluation metrics: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		"evaluation_id": eval.ID,
		"trial_id":      trialID,
		"documents":     len(results),
		"matched":       len(resolved),
	}).Info("Evaluation completed")

	return eval, nil
}

func (s *EvaluateService) preloadDocuments(ctx context.Context, results []domain.TrialResult) (map[string]docInfo, error) {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.DocumentID)
	}
	docRecords, err := s.docRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	fileIDs := make([]string, 0, len(docRecords))
	for _, d := range docRecords {
		fileIDs = append(fileIDs, d.OriginalFileID)
	}
	files, err := s.fileRepo.GetByIDs(ctx, fileIDs)
	if err != nil {
		return nil, err
	}
	fileNames := make(map[string]string, len(files))
	for _, f := range files {
		fileNames[f.ID] = f.Name
	}

	infos := make(map[string]docInfo, len(results))
	for _, id := range ids {
		infos[id] = docInfo{DocumentID: id}
	}
	for _, d := range docRecords {
		infos[d.ID] = docInfo{
			DocumentID:   d.ID,
			DocumentName: d.DocumentName,
			FileName:     fileNames[d.OriginalFileID],
			Exists:       true,
		}
	}
	return infos, nil
}

// buildKeyIndex maps lowercased GT keys back to their original form.
func buildKeyIndex(records map[string]map[string]interface{}) map[string]string {
	index := make(map[string]string, len(records))
	for key := range records {
		index[strings.ToLower(strings.TrimSpace(key))] = key
	}
	return index
}

// resolveGTKey matches a document to a ground-truth key. Candidates are
// tried in a fixed priority order; the first hit wins.
func resolveGTKey(info docInfo, keyIndex map[string]string) string {
	var candidates []string
	if info.DocumentName != "" {
		candidates = append(candidates,
			info.DocumentName,
			trimExt(info.DocumentName),
		)
	}
	if info.FileName != "" {
		base := filepath.Base(info.FileName)
		candidates = append(candidates,
			info.FileName,
			trimExt(info.FileName),
			base,
			trimExt(base),
		)
	}
	if info.DocumentID != "" {
		candidates = append(candidates,
			info.DocumentID,
			"doc_"+info.DocumentID,
			"document_"+info.DocumentID,
		)
	}

	for _, cand := range candidates {
		if key, ok := keyIndex[strings.ToLower(strings.TrimSpace(cand))]; ok {
			return key
		}
	}
	return ""
}

func trimExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func displayName(info docInfo) string {
	if info.DocumentName != "" {
		return info.DocumentName
	}
	return info.DocumentID
}

func sampleList(items []string, max int) string {
	if len(items) == 0 {
		return "(none)"
	}
	sort.Strings(items)
	if len(items) > max {
		items = items[:max]
	}
	return strings.Join(items, ", ")
}

func keyList(records map[string]map[string]interface{}) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	return keys
}

// evaluateDocuments runs the worker pool. Workers see only primitive maps;
// all persistence stays with the caller.
func (s *EvaluateService) evaluateDocuments(
	ctx context.Context,
	results []domain.TrialResult,
	resolved map[string]string,
	records map[string]map[string]interface{},
	mappings []domain.FieldMapping,
) []docVerdict {
	jobs := make(chan docJob, s.workers*2)
	out := make(chan docVerdict, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				out <- s.evaluateOne(job, mappings)
			}
		}()
	}

	collected := make([]docVerdict, 0, len(results))
	done := make(chan struct{})
	go func() {
		for v := range out {
			collected = append(collected, v)
		}
		close(done)
	}()

	for _, res := range results {
		key, ok := resolved[res.DocumentID]
		job := docJob{
			DocumentID: res.DocumentID,
			Prediction: map[string]interface{}(res.Result),
		}
		if ok {
			job.GTKey = key
			job.GTRecord = records[key]
		}
		select {
		case jobs <- job:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
	close(out)
	<-done

	// Deterministic order for aggregation and stored metrics
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].DocumentID < collected[j].DocumentID
	})
	return collected
}

// evaluateOne scores every mapped field of one document.
func (s *EvaluateService) evaluateOne(job docJob, mappings []domain.FieldMapping) docVerdict {
	verdict := docVerdict{DocumentID: job.DocumentID}
	if job.GTRecord == nil {
		return verdict
	}
	verdict.Matched = true

	nested := hasNestedValues(job.GTRecord)
	flatPred := Flatten(job.Prediction)

	for _, m := range mappings {
		var gtValue, predValue interface{}
		var gtFound bool

		if nested {
			gtValue, gtFound = resolvePath(job.GTRecord, m.GroundTruthField)
			predValue, _ = resolvePath(job.Prediction, m.SchemaField)
		} else {
			gtValue, gtFound = job.GTRecord[m.GroundTruthField]
			predValue = flatPred[m.SchemaField]
		}

		// A ground truth without a value for this field says nothing about
		// the prediction; skip instead of counting
		if !gtFound || isNilValue(gtValue) {
			continue
		}

		cmp := s.comparator.Compare(gtValue, predValue, m.FieldType, m.ComparisonMethod, m.Options)
		verdict.Fields = append(verdict.Fields, fieldVerdict{
			Field:      m.SchemaField,
			GTStr:      asString(gtValue),
			PredStr:    predStr(predValue),
			IsCorrect:  cmp.IsCorrect,
			ErrorType:  cmp.ErrorType,
			Confidence: cmp.Confidence,
			Detail:     cmp.Detail,
		})
	}
	return verdict
}

func predStr(v interface{}) string {
	if v == nil {
		return ""
	}
	return asString(v)
}

func hasNestedValues(record map[string]interface{}) bool {
	for _, v := range record {
		if _, ok := v.(map[string]interface{}); ok {
			return true
		}
	}
	return false
}

// resolvePath walks a dotted path through nested maps and slices. An empty
// bracket pair means "first element", so "meds[].dose" reads meds.0.dose.
func resolvePath(m map[string]interface{}, path string) (interface{}, bool) {
	path = strings.ReplaceAll(path, "[]", ".0")
	var current interface{} = m
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		switch node := current.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []interface{}:
			idx := 0
			if _, err := fmt.Sscanf(seg, "%d", &idx); err != nil {
				return nil, false
			}
			if idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// aggregate folds per-document verdicts into overall, per-field, per-document
// and confusion-matrix metrics.
func (s *EvaluateService) aggregate(
	trial *domain.Trial,
	gt *domain.GroundTruth,
	verdicts []docVerdict,
	mappings []domain.FieldMapping,
	totalDocs, matchedDocs int,
) *domain.Evaluation {
	totalFields := 0
	correctFields := 0

	type fieldAgg struct {
		total   int
		correct int
		errors  map[string]int
	}
	fieldAggs := make(map[string]*fieldAgg)
	confusion := make(domain.JSONMap)
	documentMetrics := make(domain.JSONMap)

	for _, v := range verdicts {
		docCorrect := 0
		var missingFields, incorrectFields []string

		for _, f := range v.Fields {
			totalFields++
			agg := fieldAggs[f.Field]
			if agg == nil {
				agg = &fieldAgg{errors: make(map[string]int)}
				fieldAggs[f.Field] = agg
			}
			agg.total++
			if f.IsCorrect {
				correctFields++
				agg.correct++
				docCorrect++
			} else {
				agg.errors[f.ErrorType]++
				if f.ErrorType == ErrMissing {
					missingFields = append(missingFields, f.Field)
				} else {
					incorrectFields = append(incorrectFields, f.Field)
				}
			}

			// confusion[field][gt][pred]++
			fieldCM, _ := confusion[f.Field].(map[string]interface{})
			if fieldCM == nil {
				fieldCM = make(map[string]interface{})
				confusion[f.Field] = fieldCM
			}
			gtRow, _ := fieldCM[f.GTStr].(map[string]interface{})
			if gtRow == nil {
				gtRow = make(map[string]interface{})
				fieldCM[f.GTStr] = gtRow
			}
			count, _ := gtRow[f.PredStr].(int)
			gtRow[f.PredStr] = count + 1
		}

		docAccuracy := 0.0
		if len(v.Fields) > 0 {
			docAccuracy = float64(docCorrect) / float64(len(v.Fields))
		}
		documentMetrics[v.DocumentID] = map[string]interface{}{
			"document_id":      v.DocumentID,
			"accuracy":         docAccuracy,
			"correct_fields":   docCorrect,
			"total_fields":     len(v.Fields),
			"missing_fields":   missingFields,
			"incorrect_fields": incorrectFields,
			"has_error":        !v.Matched,
		}
	}

	fieldMetrics := make(domain.JSONMap, len(fieldAggs))
	for field, agg := range fieldAggs {
		accuracy := 0.0
		if agg.total > 0 {
			accuracy = float64(agg.correct) / float64(agg.total)
		}
		errDist := make(map[string]interface{}, len(agg.errors))
		for k, n := range agg.errors {
			errDist[k] = n
		}
		fieldMetrics[field] = map[string]interface{}{
			"total_count":        agg.total,
			"correct_count":      agg.correct,
			"error_distribution": errDist,
			"accuracy":           accuracy,
		}
	}

	accuracy := 0.0
	if totalFields > 0 {
		accuracy = float64(correctFields) / float64(totalFields)
	}

	return &domain.Evaluation{
		ID:            uuid.New().String(),
		ProjectID:     trial.ProjectID,
		TrialID:       trial.ID,
		GroundTruthID: gt.ID,
		Status:        domain.StatusCompleted,
		OverallMetrics: domain.JSONMap{
			"accuracy":        accuracy,
			"total_documents": totalDocs,
			"total_fields":    totalFields,
			"correct_fields":  correctFields,
		},
		FieldMetrics:      fieldMetrics,
		DocumentMetrics:   documentMetrics,
		ConfusionMatrices: confusion,
		MatchedDocuments:  matchedDocs,
		TotalDocuments:    totalDocs,
	}
}

func buildMetricRows(evaluationID string, verdicts []docVerdict) []domain.EvaluationMetric {
	var rows []domain.EvaluationMetric
	for _, v := range verdicts {
		for _, f := range v.Fields {
			outcome := f.ErrorType
			if f.IsCorrect {
				outcome = "correct"
			}
			rows = append(rows, domain.EvaluationMetric{
				ID:             uuid.New().String(),
				EvaluationID:   evaluationID,
				DocumentID:     v.DocumentID,
				FieldName:      f.Field,
				PredictedValue: f.PredStr,
				ExpectedValue:  f.GTStr,
				Outcome:        outcome,
				Score:          f.Confidence,
				Detail:         f.Detail,
			})
		}
	}
	return rows
}
